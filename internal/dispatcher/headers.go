package dispatcher

import (
	"net/http"

	"mcpgateway/internal/auth"
	"mcpgateway/internal/store"
	"mcpgateway/pkg/logging"
)

// UpstreamAuthorizationHeader is the header a client sets to supply the
// per-request credential a one-time-auth gateway needs (spec.md §3): the
// gateway never stores that credential, so every call must carry it fresh,
// mapped onto Authorization for the upstream leg.
const UpstreamAuthorizationHeader = "X-Upstream-Authorization"

// buildOutboundHeaders assembles the header set internal/upstream forwards
// to gw for one call: the one-time-auth mapping (always applied, it is the
// gateway's only credential) plus the gateway's sanitized passthrough
// headers when cfg.EnableHeaderPassthrough is set (spec.md §4.1). When
// passthrough is disabled this logs a DEBUG line so an operator can see why
// a configured header never reached the upstream.
func (d *Dispatcher) buildOutboundHeaders(gw *store.Gateway, incoming http.Header) map[string]string {
	out := map[string]string{}
	if gw.OneTimeAuth {
		if v := incoming.Get(UpstreamAuthorizationHeader); v != "" {
			out["Authorization"] = v
		}
	}

	if !d.cfg.EnableHeaderPassthrough {
		logging.Debug(logSubsystem, "Header passthrough is disabled")
		return out
	}

	allowed := gw.PassthroughHeaders
	if len(allowed) == 0 {
		allowed = d.cfg.DefaultPassthroughHeaders
	}
	for name, values := range auth.SanitizePassthrough(incoming, allowed) {
		if len(values) > 0 {
			out[name] = values[0]
		}
	}
	return out
}

func headerMapToHTTP(m map[string]string) http.Header {
	h := make(http.Header, len(m))
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}

func httpToHeaderMap(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
