package transport

import (
	"context"
	"io"
	"net/http"

	"mcpgateway/internal/dispatcher"
	"mcpgateway/internal/store"
)

// ServeStreamableHTTP implements spec.md §4.5's "Streamable HTTP" leg:
// POST carries one JSON-RPC request/notification and gets its response (if
// any) written directly to the HTTP response body; GET opens a
// server-initiated notification stream (elicitation/create and friends)
// bound to the session named by Mcp-Session-Id, framed as SSE per spec.md
// §6's Content-Type/Cache-Control/X-Accel-Buffering contract.
func (h *Handler) ServeStreamableHTTP(vidRaw string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vid, err := parseVID(vidRaw)
		if err != nil {
			writeHTTPError(w, err)
			return
		}

		principal, err := h.authenticate(r)
		if err != nil {
			writeHTTPError(w, err)
			return
		}

		sid := sessionID(r)
		w.Header().Set(SessionIDHeader, sid)
		ctx := dispatcher.WithRequestID(r.Context(), requestID(r))

		switch r.Method {
		case http.MethodPost:
			h.handleStreamablePost(ctx, w, r, sid, principal, vid)
		case http.MethodGet:
			h.handleStreamableGet(ctx, w, r, sid)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func (h *Handler) handleStreamablePost(ctx context.Context, w http.ResponseWriter, r *http.Request, sid string, principal store.Principal, vid *store.ID) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		writeHTTPError(w, err)
		return
	}
	resp, hasResp := h.dispatchOne(ctx, sid, principal, vid, r.Header, body)
	if !hasResp {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleStreamableGet(ctx context.Context, w http.ResponseWriter, r *http.Request, sid string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	sseHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	box := h.registry.register(sid)
	defer h.registry.unregister(sid)

	ticker := heartbeatTicker(h.cfg.SSEKeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-box.closed:
			return
		case <-box.notify:
			for _, frame := range box.drain() {
				writeSSEFrame(w, flusher, frame)
			}
		case <-ticker.C:
			sess, err := h.sessions.Get(ctx, sid)
			if err == nil && idleDeadlineExceeded(sess.LastActivityAt, h.cfg.SessionIdleTimeout) {
				return
			}
			writeSSEHeartbeat(w, flusher)
		}
	}
}
