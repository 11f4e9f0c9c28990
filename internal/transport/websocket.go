package transport

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"mcpgateway/internal/dispatcher"
	"mcpgateway/internal/store"
	"mcpgateway/pkg/logging"
)

// upgrader accepts any origin: the gateway sits behind its own
// authentication (Authorization header, checked before the upgrade), not
// browser same-origin policy.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWebSocket implements spec.md §4.5's WebSocket leg: one connection
// carries both directions, text frames only, with one read goroutine
// decoding inbound JSON-RPC and one write goroutine serializing both
// dispatch responses and registry-pushed server-initiated frames onto the
// wire, matching internal/upstream.WebSocketClient's client-side split.
func (h *Handler) ServeWebSocket(vidRaw string) http.HandlerFunc {
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

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warn(logSubsystem, "websocket upgrade failed: %v", err)
			return
		}

		sid := sessionID(r)
		ctx := dispatcher.WithRequestID(r.Context(), requestID(r))
		headers := r.Header.Clone()
		box := h.registry.register(sid)
		defer h.registry.unregister(sid)

		done := make(chan struct{})
		go h.wsWriteLoop(conn, box, done)
		h.wsReadLoop(ctx, conn, sid, principal, vid, headers)
		close(done)
		_ = conn.Close()
	}
}

// wsWriteLoop is the connection's single writer: it serializes dispatch
// responses (pushed by wsReadLoop onto box) and server-initiated frames
// (pushed by Registry.Notify) in arrival order.
func (h *Handler) wsWriteLoop(conn *websocket.Conn, box *outbound, done <-chan struct{}) {
	ticker := heartbeatTicker(h.cfg.SSEKeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-box.closed:
			return
		case <-box.notify:
			for _, frame := range box.drain() {
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					return
				}
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// wsReadLoop is the connection's single reader: every inbound text frame is
// one JSON-RPC request/notification, dispatched synchronously and its
// response (if any) handed to the write loop via the session's outbound
// mailbox. headers is the upgrade request's header set, reused for every
// frame on this connection since individual WebSocket frames carry none of
// their own. It returns when the connection closes or ctx is canceled.
func (h *Handler) wsReadLoop(ctx context.Context, conn *websocket.Conn, sid string, principal store.Principal, vid *store.ID, headers http.Header) {
	for {
		if ctx.Err() != nil {
			return
		}
		msgType, body, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		resp, hasResp := h.dispatchOne(ctx, sid, principal, vid, headers, body)
		if !hasResp {
			continue
		}
		h.registry.mu.RLock()
		box, ok := h.registry.boxes[sid]
		h.registry.mu.RUnlock()
		if ok {
			box.push(resp)
		}
	}
}
