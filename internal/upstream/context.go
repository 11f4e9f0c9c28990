package upstream

import "context"

type requestHeadersKey struct{}

// WithRequestHeaders attaches the per-call header set internal/dispatcher
// assembled for one request (sanitized passthrough headers, a one-time-auth
// gateway's X-Upstream-Authorization -> Authorization mapping) so
// StreamableHTTPClient's headerFunc can pick it up on the next outbound
// call made against the pool's shared connection. SSE/Stdio/WebSocket
// clients only support headers fixed at dial time and ignore this.
func WithRequestHeaders(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	return context.WithValue(ctx, requestHeadersKey{}, headers)
}

func requestHeadersFromContext(ctx context.Context) map[string]string {
	h, _ := ctx.Value(requestHeadersKey{}).(map[string]string)
	return h
}
