package upstream

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"strings"

	"mcpgateway/internal/auth"
	"mcpgateway/internal/store"
)

// NewClient builds the Client for a Gateway entity, picking the transport
// implementation by store.Transport the way the teacher's
// NewMCPClientFromType factory picks by api.MCPServerType. g must come from
// a credentialed accessor (store.GatewayStore.GetForConnection), not the
// admin-facing GetByID, or AuthMaterial will always be empty.
func NewClient(g *store.Gateway) (Client, error) {
	headers, err := authHeaders(g)
	if err != nil {
		return nil, err
	}

	switch g.Transport {
	case store.TransportStdio:
		return NewStdioClient(g.URL, nil, nil), nil

	case store.TransportSSE:
		return NewSSEClient(g.URL, headers), nil

	case store.TransportStreamableHTTP:
		// A header func (rather than a static map) so a one-time-auth
		// gateway's per-call X-Upstream-Authorization mapping, and any
		// sanitized passthrough headers, reach this shared connection on
		// every call even though Initialize only dials once.
		return NewStreamableHTTPClientWithHeaderFunc(g.URL, mergedHeaderFunc(headers)), nil

	case store.TransportWebSocket:
		h := make(http.Header, len(headers))
		for k, v := range headers {
			h.Set(k, v)
		}
		return NewWebSocketClient(g.URL, h), nil

	default:
		return nil, fmt.Errorf("unsupported upstream transport %q", g.Transport)
	}
}

// mergedHeaderFunc combines a gateway's static auth headers with whatever
// per-call headers internal/dispatcher attached to ctx via
// WithRequestHeaders, the latter winning on conflict (it carries the
// current request's one-time-auth credential).
func mergedHeaderFunc(base map[string]string) func(context.Context) map[string]string {
	return func(ctx context.Context) map[string]string {
		perCall := requestHeadersFromContext(ctx)
		if len(base) == 0 {
			return perCall
		}
		if len(perCall) == 0 {
			return base
		}
		out := make(map[string]string, len(base)+len(perCall))
		for k, v := range base {
			out[k] = v
		}
		for k, v := range perCall {
			out[k] = v
		}
		return out
	}
}

// authHeaders materializes the static headers implied by a Gateway's
// AuthType. AuthOAuth yields no static headers, since a static map can't
// express a refreshing token; NewOAuthClient builds a client around a
// rotating auth.Secret, but NewClient does not call it, so a client
// NewClient builds for an AuthOAuth gateway sends no Authorization
// header. A one-time-auth gateway never persists
// auth_material (spec.md §3), so it carries no static headers at all: its
// credential arrives per call via mergedHeaderFunc/WithRequestHeaders
// instead.
func authHeaders(g *store.Gateway) (map[string]string, error) {
	if g.OneTimeAuth {
		return nil, nil
	}
	switch g.AuthType {
	case store.AuthNone, store.AuthOAuth:
		return nil, nil
	case store.AuthBearer:
		if g.AuthMaterial == "" {
			return nil, fmt.Errorf("gateway %s: bearer auth requires auth_material", g.Name)
		}
		return map[string]string{"Authorization": "Bearer " + g.AuthMaterial}, nil
	case store.AuthBasic:
		if g.AuthMaterial == "" {
			return nil, fmt.Errorf("gateway %s: basic auth requires auth_material", g.Name)
		}
		return map[string]string{"Authorization": "Basic " + g.AuthMaterial}, nil
	case store.AuthCustomHeaders:
		return parseCustomHeaders(g.AuthMaterial), nil
	default:
		return nil, fmt.Errorf("gateway %s: unknown auth type %q", g.Name, g.AuthType)
	}
}

// parseCustomHeaders decodes the "Name: value\nName2: value2" encoding used
// for AuthCustomHeaders auth material.
func parseCustomHeaders(material string) map[string]string {
	headers := make(map[string]string)
	for _, line := range strings.Split(material, "\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return headers
}

// TLSConfig builds the *tls.Config for a Gateway carrying a custom CA
// certificate. Only NewRESTClient uses it: the MCP clients NewClient builds
// (stdio, SSE, Streamable HTTP, websocket) do not apply a gateway's CA
// certificate.
func TLSConfig(g *store.Gateway) (*tls.Config, error) {
	if g.CACertificate == "" {
		return nil, nil
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM([]byte(g.CACertificate)) {
		return nil, fmt.Errorf("gateway %s: invalid CA certificate", g.Name)
	}
	return &tls.Config{RootCAs: pool}, nil
}

// NewOAuthClient builds a Streamable HTTP client for an AuthOAuth gateway
// whose access token may be refreshed between calls, mirroring the
// teacher's DynamicAuthClient dynamic-header-injection pattern.
func NewOAuthClient(g *store.Gateway, secret func() auth.Secret) *StreamableHTTPClient {
	return NewStreamableHTTPClientWithHeaderFunc(g.URL, secretHeaderFunc("Authorization", secret))
}
