// Package dispatcher implements the gateway's JSON-RPC method table and
// seven-step request pipeline (spec.md §4.4, component C4): resolve
// session, authorize, build a plugin GlobalContext, run pre-hooks, dispatch
// to the entity handler (C2/C7/C9), run post-hooks, encode the response.
// It is new: the teacher is a single aggregator process with no method
// table of its own (mcp-go's server package owns dispatch for it), so this
// package is grounded on the teacher's request-handling shape in
// internal/aggregator/server.go (session lookup, then a switch over MCP
// method names) generalized into an explicit table over the gateway's
// wider method set.
package dispatcher

import (
	"context"
	"encoding/json"
	"net/http"

	"mcpgateway/internal/config"
	"mcpgateway/internal/plugin"
	"mcpgateway/internal/session"
	"mcpgateway/internal/store"
	"mcpgateway/internal/upstream"
	"mcpgateway/internal/vserver"
	"mcpgateway/internal/jsonrpc"
	"mcpgateway/pkg/gwerr"
	"mcpgateway/pkg/logging"
)

const logSubsystem = "dispatcher"

// Notifier delivers a server-initiated JSON-RPC call to a specific session,
// implemented by whichever internal/transport connection currently owns
// that session (spec.md §4.5's single-writer-per-session guarantee lives
// there, not here). Elicitation is the only server->client call the core
// spec requires today.
type Notifier interface {
	Notify(ctx context.Context, sessionID string, method string, params any) error
}

// Dispatcher owns the method table and wires every other component
// together for one gateway process.
type Dispatcher struct {
	cfg *config.Config

	sessions  session.Backend
	plugins   *plugin.Manager
	gateways  *store.GatewayStore
	tools     *store.ToolStore
	resources *store.ResourceStore
	prompts   *store.PromptStore
	pool      *upstream.Pool
	vservers  *vserver.Resolver
	notifier  Notifier
}

func New(cfg *config.Config, sessions session.Backend, plugins *plugin.Manager, gateways *store.GatewayStore,
	tools *store.ToolStore, resources *store.ResourceStore, prompts *store.PromptStore, pool *upstream.Pool,
	vservers *vserver.Resolver, notifier Notifier) *Dispatcher {
	return &Dispatcher{
		cfg: cfg, sessions: sessions, plugins: plugins, gateways: gateways, tools: tools,
		resources: resources, prompts: prompts, pool: pool, vservers: vservers, notifier: notifier,
	}
}

// Handle runs the full pipeline for one inbound request bound to sessionID
// and, if the URL path addressed a virtual server, vid. headers carries the
// transport's inbound HTTP headers (nil for stdio, which has none) so the
// upstream dispatch stage can apply passthrough/one-time-auth forwarding
// (spec.md §3, §4.1). It never panics on malformed input; every failure
// mode becomes a jsonrpc.Response carrying a pkg/gwerr-derived code.
func (d *Dispatcher) Handle(ctx context.Context, sessionID string, principal store.Principal, vid *store.ID, headers http.Header, req jsonrpc.Request) jsonrpc.Response {
	if headers == nil {
		headers = http.Header{}
	}
	if req.IsNotification() {
		d.handleNotification(ctx, sessionID, principal, req)
		return jsonrpc.Response{}
	}

	requestID := requestIDFromContext(ctx)
	sess, err := d.resolveSession(ctx, sessionID, principal, req)
	if err != nil {
		return errorResponse(req.ID, err, requestID)
	}

	if err := d.authorize(sess, req.Method); err != nil {
		return errorResponse(req.ID, err, requestID)
	}

	result, err := d.route(ctx, sess, principal, vid, requestID, headers, req)
	if err != nil {
		return errorResponse(req.ID, err, requestID)
	}
	resp, err := jsonrpc.NewResult(req.ID, result)
	if err != nil {
		return errorResponse(req.ID, gwerr.Wrap(gwerr.KindInternal, err, "encoding response"), requestID)
	}
	return resp
}

// handleNotification processes a client notification (no response owed),
// e.g. roots/list_changed. Unrecognized notifications are dropped, per
// JSON-RPC 2.0 semantics.
func (d *Dispatcher) handleNotification(ctx context.Context, sessionID string, principal store.Principal, req jsonrpc.Request) {
	switch req.Method {
	case "notifications/initialized":
		_ = d.sessions.Touch(ctx, sessionID)
	default:
		logging.Debug(logSubsystem, "dropping unrecognized notification %q", req.Method)
	}
}

func (d *Dispatcher) resolveSession(ctx context.Context, sessionID string, principal store.Principal, req jsonrpc.Request) (*session.Session, error) {
	if req.Method == "initialize" {
		var params initializeParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return nil, gwerr.New(gwerr.KindInvalid, "malformed initialize params")
			}
		}
		caps := map[session.Capability]bool{}
		if params.Capabilities.Elicitation != nil {
			caps[session.CapabilityElicitation] = true
		}
		return d.sessions.Create(ctx, sessionID, principal, caps, session.TransportStreamableHTTP)
	}
	sess, err := d.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	_ = d.sessions.Touch(ctx, sessionID)
	return sess, nil
}

// authorize enforces spec.md §4.4 step 2: a method requiring a capability
// the session never advertised is rejected before any hook or store call.
func (d *Dispatcher) authorize(sess *session.Session, method string) error {
	if method == "elicitation/create" && !sess.HasCapability(session.CapabilityElicitation) {
		return gwerr.New(gwerr.KindCapabilityMissing, "session did not advertise the elicitation capability")
	}
	return nil
}

func (d *Dispatcher) route(ctx context.Context, sess *session.Session, principal store.Principal, vid *store.ID, requestID string, headers http.Header, req jsonrpc.Request) (any, error) {
	switch req.Method {
	case "initialize":
		return d.handleInitialize(sess)
	case "ping":
		return map[string]any{}, nil
	case "tools/list":
		return d.handleToolsList(ctx, principal, vid)
	case "tools/call":
		return d.handleToolsCall(ctx, sess, principal, vid, requestID, headers, req.Params)
	case "resources/list":
		return d.handleResourcesList(ctx, principal, vid)
	case "resources/read":
		return d.handleResourcesRead(ctx, sess, principal, vid, headers, req.Params)
	case "resources/subscribe":
		return d.handleResourcesSubscribe(ctx, sess, req.Params)
	case "prompts/list":
		return d.handlePromptsList(ctx, principal, vid)
	case "prompts/get":
		return d.handlePromptsGet(ctx, sess, principal, vid, req.Params)
	case "roots/list":
		return map[string]any{"roots": []any{}}, nil
	case "logging/setLevel":
		return map[string]any{}, nil
	default:
		return nil, gwerr.New(gwerr.KindCapabilityMissing, "unknown method %q", req.Method)
	}
}

type initializeParams struct {
	Capabilities struct {
		Elicitation *struct{} `json:"elicitation,omitempty"`
	} `json:"capabilities"`
	ClientInfo struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

func (d *Dispatcher) handleInitialize(sess *session.Session) (any, error) {
	return map[string]any{
		"protocolVersion": "2025-06-18",
		"serverInfo":      map[string]any{"name": "mcpgateway", "version": "1.0.0"},
		"capabilities": map[string]any{
			"tools":     map[string]any{"listChanged": false},
			"resources": map[string]any{"subscribe": true, "listChanged": false},
			"prompts":   map[string]any{"listChanged": false},
		},
	}, nil
}

func errorResponse(id jsonrpc.ID, err error, requestID string) jsonrpc.Response {
	e := asGatewayError(err, requestID)
	return jsonrpc.NewError(id, e.JSONRPCCode(), e.Error(), e.JSONRPCData())
}

func asGatewayError(err error, requestID string) *gwerr.Error {
	var e *gwerr.Error
	if ge, ok := err.(*gwerr.Error); ok {
		e = ge
	} else {
		e = gwerr.Wrap(gwerr.KindInternal, err, "unhandled dispatcher error")
	}
	if e.RequestID == "" {
		e = e.WithRequestID(requestID)
	}
	return e
}

type requestIDKey struct{}

// WithRequestID attaches the correlation id a transport generated (or read
// from X-Request-Id) so every error this request produces carries it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}
