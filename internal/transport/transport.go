// Package transport implements the gateway's client-facing transport
// translation layer (spec.md §4.5, component C5): simultaneous exposure of
// one JSON-RPC dispatcher over streamable HTTP, SSE, WebSocket, and a stdio
// bridge, each satisfying the single-response-writer-per-session guarantee
// of spec.md §5.
//
// It generalizes the teacher's internal/aggregator.AggregatorServer, which
// wires mark3labs/mcp-go's SSEServer/StreamableHTTPServer/StdioServer
// around its own tool registry. This gateway's dispatcher already owns the
// full JSON-RPC method table (virtual servers, federation, elicitation)
// so, rather than bridging through mcp-go's server.MCPServer (built around
// registering individual tool handlers, not routing an arbitrary method
// table), the four transports below talk raw JSON-RPC directly to
// internal/dispatcher over net/http and github.com/gorilla/websocket — see
// DESIGN.md for why this one concern is hand-built on net/http instead of
// wrapping the teacher's mcp-go server type.
package transport

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"mcpgateway/pkg/logging"
)

const logSubsystem = "transport"

// outboundQueueSize is the bounded per-session send queue (spec.md §4.5
// "per-session send queue bounded (default 1024 messages)").
const outboundQueueSize = 1024

// outbound is the bounded, ordered mailbox of server-initiated frames for
// one session. A single writer goroutine per connection drains it,
// satisfying "the response writer MUST serialize" (spec.md §4.5).
type outbound struct {
	mu     sync.Mutex
	queue  *list.List
	notify chan struct{}
	closed chan struct{}
	once   sync.Once
}

func newOutbound() *outbound {
	return &outbound{queue: list.New(), notify: make(chan struct{}, 1), closed: make(chan struct{})}
}

// push enqueues a frame, reporting false if the bounded queue is full (the
// caller must then drop the session per spec.md §4.5 backpressure policy).
func (o *outbound) push(frame []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	select {
	case <-o.closed:
		return true
	default:
	}
	if o.queue.Len() >= outboundQueueSize {
		return false
	}
	o.queue.PushBack(frame)
	select {
	case o.notify <- struct{}{}:
	default:
	}
	return true
}

// drain pops every currently queued frame in FIFO order.
func (o *outbound) drain() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.queue.Len() == 0 {
		return nil
	}
	out := make([][]byte, 0, o.queue.Len())
	for e := o.queue.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.([]byte))
	}
	o.queue.Init()
	return out
}

func (o *outbound) close() {
	o.once.Do(func() { close(o.closed) })
}

// Registry tracks the outbound mailbox for every live session across all
// four transports and implements dispatcher.Notifier so a server-initiated
// call (elicitation/create is the only one the core spec requires) reaches
// whichever transport currently owns that session.
type Registry struct {
	mu    sync.RWMutex
	boxes map[string]*outbound
}

func NewRegistry() *Registry {
	return &Registry{boxes: make(map[string]*outbound)}
}

func (r *Registry) register(sessionID string) *outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := newOutbound()
	r.boxes[sessionID] = b
	return b
}

func (r *Registry) unregister(sessionID string) {
	r.mu.Lock()
	b, ok := r.boxes[sessionID]
	delete(r.boxes, sessionID)
	r.mu.Unlock()
	if ok {
		b.close()
	}
}

// Notify implements dispatcher.Notifier, delivering a server-initiated
// JSON-RPC call to sessionID's outbound mailbox. It is a no-op error if the
// session has no live connection (the caller, e.g. elicitation, surfaces
// that as gwerr.Unavailable).
func (r *Registry) Notify(ctx context.Context, sessionID string, method string, params any) error {
	r.mu.RLock()
	b, ok := r.boxes[sessionID]
	r.mu.RUnlock()
	if !ok {
		return errNoConnection(sessionID)
	}
	frame := serverRequest{JSONRPC: "2.0", ID: json.RawMessage(`"` + method + `-notify"`), Method: method, Params: params}
	raw, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if !b.push(raw) {
		logging.Warn(logSubsystem, "session %s outbound queue full, dropping", logging.TruncateSessionID(sessionID))
		r.unregister(sessionID)
		return errNoConnection(sessionID)
	}
	return nil
}

type serverRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  any             `json:"params,omitempty"`
}

type connErr struct{ sessionID string }

func (e connErr) Error() string { return "transport: no live connection for session " + e.sessionID }

func errNoConnection(sessionID string) error { return connErr{sessionID: sessionID} }

// heartbeatTicker paces the keepalive comment/frame emitted on SSE,
// streamable-HTTP and WebSocket streams every SSEKeepaliveInterval (spec.md
// §4.5), defaulting to 30s when the interval is not positive.
func heartbeatTicker(interval time.Duration) *time.Ticker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return time.NewTicker(interval)
}
