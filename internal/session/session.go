// Package session implements the gateway's session registry (spec.md
// §4.6/C6): per-connection state, capability tracking, and the pending
// elicitation map a tool_pre_invoke plugin suspends into. It generalizes
// the teacher's aggregator.SessionRegistry (OAuth-scoped, in-process only)
// into a backend-pluggable registry selected by CACHE_BACKEND, because the
// gateway explicitly supports a multi-worker deployment sharing session
// state (spec.md §2 "leader-elected background tasks across a multi-worker
// deployment").
package session

import (
	"context"
	"sync"
	"time"

	"mcpgateway/internal/store"
	"mcpgateway/pkg/gwerr"
)

// Capability is a client-advertised MCP capability name (spec.md §3
// Session.capabilities; "elicitation" is the only one the core inspects).
type Capability string

const CapabilityElicitation Capability = "elicitation"

// TransportKind names which of the four transports (spec.md §4.5) a
// session was created on.
type TransportKind string

const (
	TransportStdio           TransportKind = "stdio"
	TransportSSE             TransportKind = "sse"
	TransportStreamableHTTP  TransportKind = "streamable_http"
	TransportWebSocket       TransportKind = "websocket"
)

// ElicitationRequest is what a suspended tool_pre_invoke plugin is waiting
// on (spec.md §4.3 contract 10).
type ElicitationRequest struct {
	Message  string
	Schema   []byte // JSON Schema, primitive types only
	Timeout  time.Duration
	response chan ElicitationResponse
}

// ElicitationResponse is the client's reply to an elicitation/create call.
type ElicitationResponse struct {
	Action string // "accept" | "decline" | "cancel"
	Data   map[string]any
}

// Session is one MCP connection (spec.md §3 "Session").
type Session struct {
	ID              string
	Principal       store.Principal
	Capabilities    map[Capability]bool
	Transport       TransportKind
	CreatedAt       time.Time
	LastActivityAt  time.Time
	KeepaliveDeadline time.Time

	mu                 sync.Mutex
	pendingElicitations map[string]*ElicitationRequest
}

// HasCapability reports whether the client advertised cap at handshake.
func (s *Session) HasCapability(cap Capability) bool {
	return s.Capabilities[cap]
}

// Backend is the pluggable store behind the session registry (spec.md
// §4.6): memory (default, single process), redis (shared across workers,
// elicitation wake via pub/sub), or database (CACHE_BACKEND=database).
type Backend interface {
	Create(ctx context.Context, id string, principal store.Principal, caps map[Capability]bool, kind TransportKind) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Touch(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error

	// AttachPendingElicitation registers a suspended request, failing when
	// the session already has the maximum number pending. AwaitElicitation
	// then blocks until ResolveElicitation delivers a response (from any
	// worker, for the redis backend) or timeout elapses.
	AttachPendingElicitation(ctx context.Context, sessionID, requestID string, req *ElicitationRequest) error
	ResolveElicitation(ctx context.Context, sessionID, requestID string, resp ElicitationResponse) error
	AwaitElicitation(ctx context.Context, sessionID, requestID string, timeout time.Duration) (ElicitationResponse, error)
}

// ErrTooManyElicitations is returned when a session's pending-elicitation
// count would exceed MAX_CONCURRENT (spec.md §4.6). It is a KindUnavailable
// error, surfaced as JSON-RPC -32000 with data.code=UNAVAILABLE.
func ErrTooManyElicitations() *gwerr.Error {
	return gwerr.New(gwerr.KindUnavailable, "too many concurrent elicitations")
}
