// Package server builds the gateway's top-level HTTP router: the stable
// endpoint table of spec.md §6 (health/ready/metrics, the per-virtual-server
// transports, and admin CRUD over the entity store), wired to
// internal/transport for the MCP-protocol legs and to internal/store
// directly for the REST admin surface. It replaces the teacher's
// internal/server (a Dex/Google OAuth callback server with no entity CRUD
// of its own); the mux-building and middleware-chaining shape below is
// grounded on that file's net/http usage, repointed at this gateway's own
// endpoint table.
package server

import (
	"encoding/json"
	"net/http"

	"mcpgateway/internal/auth"
	"mcpgateway/internal/config"
	"mcpgateway/internal/store"
	"mcpgateway/internal/transport"
	"mcpgateway/pkg/gwerr"
)

// NewRouter assembles the full HTTP surface for one gateway process.
func NewRouter(cfg *config.Config, h *transport.Handler, db *store.DB, verifier *auth.Verifier, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /ready", handleReady(db))
	mux.Handle("GET /metrics", metrics)

	mux.HandleFunc("/rpc", h.ServeStreamableHTTP(""))
	mux.HandleFunc("/servers/{vid}/mcp", withVID(h.ServeStreamableHTTP))
	mux.HandleFunc("/servers/{vid}/sse", withVID(h.ServeSSE))
	mux.HandleFunc("/servers/{vid}/sse/message", withVID(h.ServeSSEMessage))
	mux.HandleFunc("/servers/{vid}/ws", withVID(h.ServeWebSocket))

	a := &adminAPI{verifier: verifier, gateways: store.NewGatewayStore(db), tools: store.NewToolStore(db),
		resources: store.NewResourceStore(db), prompts: store.NewPromptStore(db),
		vservers: store.NewVirtualServerStore(db)}
	mux.HandleFunc("/gateways", a.gatewaysCollection)
	mux.HandleFunc("/gateways/{id}", a.gatewayItem)
	mux.HandleFunc("/tools", a.toolsCollection)
	mux.HandleFunc("/tools/{id}", a.toolItem)
	mux.HandleFunc("/resources", a.resourcesCollection)
	mux.HandleFunc("/resources/{id}", a.resourceItem)
	mux.HandleFunc("/prompts", a.promptsCollection)
	mux.HandleFunc("/prompts/{id}", a.promptItem)
	mux.HandleFunc("/servers", a.vserversCollection)
	mux.HandleFunc("/servers/{id}", a.vserverItem)

	passthrough := newPassthroughAdmin(cfg)
	mux.Handle("/admin/config/passthrough-headers", rateLimited(http.HandlerFunc(passthrough.serve)))

	return mux
}

// withVID adapts a func(vid string) http.HandlerFunc constructor to a plain
// http.HandlerFunc bound to the request's {vid} path value.
func withVID(build func(string) http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		build(r.PathValue("vid"))(w, r)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func handleReady(db *store.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := db.QueryContext(r.Context(), "SELECT 1"); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"not ready"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}

func writeJSONBody(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	ge := gwerr.Wrap(gwerr.KindOf(err), err, "%s", err.Error())
	writeJSONBody(w, ge.HTTPStatus(), map[string]string{"error": ge.Error()})
}
