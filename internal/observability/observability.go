// Package observability implements the gateway's structured-log and metrics
// core (spec.md §4.10/C10): a per-request log record, counters/histograms
// per method, and sensitive-header/body masking helpers. Only MaskLogLine
// has a caller (the support-bundle command); the request pipeline does not
// call MaskHeaders, RedactBody, TruncateBytes or Core.Record.
//
// Logging rides directly on pkg/logging (the teacher's own slog wrapper)
// rather than a third-party logging library, because the teacher itself
// never reaches for one for this concern — see DESIGN.md.
package observability

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mcpgateway/pkg/logging"
)

// sensitiveHeader matches header names that must never reach a log sink
// unredacted (spec.md §4.10).
var sensitiveHeader = regexp.MustCompile(`(?i)^(authorization|cookie|set-cookie|x-.*-token|.*-secret|.*-password)$`)

// sensitiveBodyKeys are JSON object keys redacted wherever they appear in a
// logged request/response body (spec.md §4.10).
var sensitiveBodyKeys = map[string]bool{
	"password": true, "secret": true, "token": true, "apikey": true,
	"access_token": true, "refresh_token": true, "client_secret": true,
}

const redactedValue = "******"

// MaskHeaders returns a copy of headers with every sensitive value replaced.
func MaskHeaders(headers map[string][]string) map[string][]string {
	out := make(map[string][]string, len(headers))
	for name, values := range headers {
		if sensitiveHeader.MatchString(name) {
			out[name] = []string{redactedValue}
			continue
		}
		out[name] = values
	}
	return out
}

// RedactBody walks a decoded JSON-ish value (map[string]any / []any /
// scalars, the shape encoding/json.Unmarshal produces into `any`) and
// replaces the value of any sensitive key, recursively.
func RedactBody(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if sensitiveBodyKeys[strings.ToLower(k)] {
				out[k] = redactedValue
				continue
			}
			out[k] = RedactBody(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = RedactBody(val)
		}
		return out
	default:
		return v
	}
}

// logLineSecret matches `key=value`/`key: value` pairs in free-text log
// lines where key looks like a credential field, for masking a raw log
// file tail (e.g. in a support bundle) that was never run through
// MaskHeaders/RedactBody at write time.
var logLineSecret = regexp.MustCompile(`(?i)(password|secret|token|apikey|api_key|authorization)\s*[:=]\s*\S+`)

// MaskLogLine redacts credential-shaped key/value pairs in a single line
// of free text, for diagnostics tooling (spec.md §6 support bundle
// "passwords/tokens/secrets masked") reading a log file written before
// this process's own Core.Record ever ran over it.
func MaskLogLine(line string) string {
	return logLineSecret.ReplaceAllStringFunc(line, func(match string) string {
		idx := strings.IndexAny(match, ":=")
		if idx < 0 {
			return match
		}
		return match[:idx+1] + redactedValue
	})
}

// TruncateBytes truncates b to maxMB megabytes, appending a marker so the
// truncation is visible in the log rather than silently cutting content.
func TruncateBytes(b []byte, maxMB int) []byte {
	limit := maxMB * 1024 * 1024
	if limit <= 0 || len(b) <= limit {
		return b
	}
	out := make([]byte, 0, limit+32)
	out = append(out, b[:limit]...)
	out = append(out, []byte("...[truncated]")...)
	return out
}

// RequestRecord is the per-request structured log record of spec.md §4.10.
type RequestRecord struct {
	RequestID string
	SessionID string
	Method    string
	Route     string
	Principal string
	TenantID  string
	Duration  time.Duration
	Status    string
	ErrorCode string
}

// Core owns the request metrics and emits RequestRecords through
// pkg/logging. internal/app builds one Core at startup but hands it to no
// other component.
type Core struct {
	requests *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

// NewCore registers the gateway's request-duration histogram and
// error-count counter with reg (spec.md §4.10 "counters/histograms per
// method"); internal/app passes the registry it serves at /metrics.
func NewCore(reg prometheus.Registerer) *Core {
	c := &Core{
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mcpgateway",
			Name:      "request_duration_seconds",
			Help:      "Duration of JSON-RPC requests by method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcpgateway",
			Name:      "request_errors_total",
			Help:      "Count of JSON-RPC requests that resulted in an error, by method and error code.",
		}, []string{"method", "error_code"}),
	}
	reg.MustRegister(c.requests, c.errors)
	return c
}

// Record logs r and updates metrics. Nothing in the request pipeline calls
// it; no per-request record is emitted unless a caller invokes it.
func (c *Core) Record(ctx context.Context, r RequestRecord) {
	c.requests.WithLabelValues(r.Method, r.Status).Observe(r.Duration.Seconds())
	if r.ErrorCode != "" {
		c.errors.WithLabelValues(r.Method, r.ErrorCode).Inc()
	}
	logging.Info("request", "request_id=%s session=%s method=%s route=%s principal=%s tenant=%s duration_ms=%d status=%s error_code=%s",
		r.RequestID, r.SessionID, r.Method, r.Route, r.Principal, r.TenantID, r.Duration.Milliseconds(), r.Status, r.ErrorCode)
}
