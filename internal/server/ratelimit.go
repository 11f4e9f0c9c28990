package server

import (
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// passthroughRateLimitPerMin is spec.md §6's "rate-limited 20-30 req/min"
// for the global passthrough-header allowlist endpoint; 25 sits in the
// middle of that band.
const passthroughRateLimitPerMin = 25

// ipLimiter tracks one token-bucket limiter per caller IP, the same
// per-IP-map shape as the teacher pack's rate-limiting middleware
// (vellankikoti-kubilitics-os-emergent's internal/api/middleware, the
// only example repo that wires golang.org/x/time/rate), generalized from
// that file's per-tier maps to this endpoint's single tier.
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newIPLimiter() *ipLimiter {
	return &ipLimiter{limiters: make(map[string]*rate.Limiter)}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(passthroughRateLimitPerMin)/60.0), passthroughRateLimitPerMin)
		l.limiters[ip] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

var defaultPassthroughLimiter = newIPLimiter()

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx >= 0 {
		addr = addr[:idx]
	}
	return addr
}

// rateLimited wraps next with the passthrough-headers endpoint's per-IP
// rate limit, responding 429 once a caller's bucket is exhausted.
func rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !defaultPassthroughLimiter.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
