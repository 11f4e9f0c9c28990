package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"mcpgateway/internal/auth"
	"mcpgateway/internal/config"
	"mcpgateway/internal/dispatcher"
	"mcpgateway/internal/jsonrpc"
	"mcpgateway/internal/session"
	"mcpgateway/internal/store"
	"mcpgateway/pkg/gwerr"
	"mcpgateway/pkg/logging"
)

// SessionIDHeader is the header an already-established session is bound to
// on every request after initialize, matching the MCP convention of a
// server-assigned session identifier.
const SessionIDHeader = "Mcp-Session-Id"

// RequestIDHeader correlates a request across transport, dispatcher, and
// log records (spec.md §6 "X-Request-Id (correlated; generated if absent)").
const RequestIDHeader = "X-Request-Id"

// Handler wires one HTTP mux's worth of client-facing transports to a
// single dispatcher.Dispatcher and session.Backend. One Handler serves
// every virtual-server-bound and unbound endpoint of spec.md §6.
type Handler struct {
	cfg      *config.Config
	dispatch *dispatcher.Dispatcher
	sessions session.Backend
	registry *Registry
	verifier *auth.Verifier
}

func NewHandler(cfg *config.Config, dispatch *dispatcher.Dispatcher, sessions session.Backend, registry *Registry, verifier *auth.Verifier) *Handler {
	return &Handler{cfg: cfg, dispatch: dispatch, sessions: sessions, registry: registry, verifier: verifier}
}

// authenticate resolves the caller's principal from the Authorization
// header via internal/auth.Verifier (spec.md §1 "the core consumes a
// verified principal").
func (h *Handler) authenticate(r *http.Request) (store.Principal, error) {
	return h.verifier.Authenticate(r.Context(), r.Header.Get("Authorization"))
}

func sessionID(r *http.Request) string {
	if id := r.Header.Get(SessionIDHeader); id != "" {
		return id
	}
	if id := r.URL.Query().Get("session_id"); id != "" {
		return id
	}
	return uuid.NewString()
}

func requestID(r *http.Request) string {
	if id := r.Header.Get(RequestIDHeader); id != "" {
		return id
	}
	return uuid.NewString()
}

// parseVID extracts the optional virtual-server id path value. An empty
// string (the /rpc endpoint carries none) means "no virtual-server
// binding" per spec.md §6.
func parseVID(raw string) (*store.ID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := store.ParseID(raw)
	if err != nil {
		return nil, gwerr.New(gwerr.KindInvalid, "malformed virtual server id %q", raw)
	}
	return &id, nil
}

// dispatchOne decodes and runs exactly one JSON-RPC request/notification
// through the dispatcher, returning the encoded response (nil for a
// notification, which must not be answered per spec.md §6).
func (h *Handler) dispatchOne(ctx context.Context, sid string, principal store.Principal, vid *store.ID, headers http.Header, body []byte) ([]byte, bool) {
	var req jsonrpc.Request
	if err := json.Unmarshal(body, &req); err != nil {
		resp := jsonrpc.NewError(jsonrpc.ID{}, -32600, "invalid request", nil)
		raw, _ := json.Marshal(resp)
		return raw, true
	}
	resp := h.dispatch.Handle(ctx, sid, principal, vid, headers, req)
	if req.IsNotification() {
		return nil, false
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		logging.Error(logSubsystem, err, "encoding response")
		return nil, false
	}
	return raw, true
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeHTTPError(w http.ResponseWriter, err error) {
	kind := gwerr.KindOf(err)
	ge := gwerr.Wrap(kind, err, "%s", err.Error())
	raw, _ := json.Marshal(map[string]any{"error": ge.Error()})
	writeJSON(w, ge.HTTPStatus(), raw)
}

// sseHeaders sets the response headers spec.md §6 requires on every
// server-initiated event stream.
func sseHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Connection", "keep-alive")
}

func writeSSEFrame(w http.ResponseWriter, flusher http.Flusher, data []byte) {
	_, _ = w.Write([]byte("event: message\ndata: "))
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n\n"))
	flusher.Flush()
}

func writeSSEHeartbeat(w http.ResponseWriter, flusher http.Flusher) {
	_, _ = w.Write([]byte(": heartbeat\n\n"))
	flusher.Flush()
}

// idleDeadlineExceeded reports whether a session has been idle past the
// configured SessionIdleTimeout, used by the long-lived stream loops to
// close the connection per spec.md §3 Session lifecycle.
func idleDeadlineExceeded(last time.Time, timeout time.Duration) bool {
	if timeout <= 0 {
		return false
	}
	return time.Since(last) > timeout
}
