package plugin

import (
	"context"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"mcpgateway/internal/store"
)

// ExternalPluginConfig is one entry of the plugin config file (spec.md §4.3
// "plugins are declared in a config file, each with a mode and priority").
type ExternalPluginConfig struct {
	Name       string
	Gateway    store.Gateway
	HookType   HookType
	Priority   int
	Mode       Mode
	Timeout    time.Duration
	Conditions Conditions
}

// PromptFetch is the payload carried through the prompt_pre_fetch and
// prompt_post_fetch hook chains.
type PromptFetch struct {
	Prompt    store.Prompt
	Arguments map[string]string
	Result    *mcp.GetPromptResult // populated only for post-fetch
}

// ResourceFetch is the payload carried through the resource_pre_fetch and
// resource_post_fetch hook chains.
type ResourceFetch struct {
	Resource store.Resource
	Result   *mcp.ReadResourceResult // populated only for post-fetch
}

// HTTPForwarding is the payload carried through the
// http_pre_forwarding_call and http_post_forwarding_call hook chains, used
// when the gateway forwards a request to a REST-integration tool.
type HTTPForwarding struct {
	Header     http.Header
	Body       []byte
	StatusCode int // populated only for post-forwarding
}

// Manager owns every hook chain in the gateway and is the single entry
// point internal/dispatcher calls into for each pipeline stage (spec.md
// §4.3/§4.4 step 4 "run matching pre-hooks").
type Manager struct {
	promptPreFetch     *Chain[PromptFetch]
	promptPostFetch    *Chain[PromptFetch]
	toolPreInvoke      *Chain[ToolInvocation]
	toolPostInvoke     *Chain[ToolInvocation]
	resourcePreFetch   *Chain[ResourceFetch]
	resourcePostFetch  *Chain[ResourceFetch]
	httpPreForwarding  *Chain[HTTPForwarding]
	httpPostForwarding *Chain[HTTPForwarding]

	defaultTimeout time.Duration
}

// NewManager builds a Manager with its built-in denylist hook already
// registered on tool_pre_invoke. yolo disables that denylist, matching
// the teacher's --yolo flag on its destructive-tool guard.
func NewManager(yolo bool, defaultTimeout time.Duration) *Manager {
	m := &Manager{
		promptPreFetch:     NewChain[PromptFetch](),
		promptPostFetch:    NewChain[PromptFetch](),
		toolPreInvoke:      NewChain[ToolInvocation](),
		toolPostInvoke:     NewChain[ToolInvocation](),
		resourcePreFetch:   NewChain[ResourceFetch](),
		resourcePostFetch:  NewChain[ResourceFetch](),
		httpPreForwarding:  NewChain[HTTPForwarding](),
		httpPostForwarding: NewChain[HTTPForwarding](),
		defaultTimeout:     defaultTimeout,
	}
	m.toolPreInvoke.Register(NewDenylistHook(yolo))
	return m
}

// RegisterExternal wires an external plugin's hook into the matching
// chain, timing out each invocation at cfg.Timeout (or the manager
// default) per spec.md §4.3 contract 7. Any CallTool error, including one
// for a hook tool the plugin does not expose, is the hook's runtime error
// and is handled by cfg.Mode: skipped under enforce_ignore_error, returned
// to the caller in every other mode.
func (m *Manager) RegisterExternal(cfg ExternalPluginConfig, ext *ExternalPlugin) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = m.defaultTimeout
	}

	switch cfg.HookType {
	case HookToolPreInvoke:
		m.toolPreInvoke.Register(Hook[ToolInvocation]{
			Name: cfg.Name, Priority: cfg.Priority, Mode: cfg.Mode, Conditions: cfg.Conditions,
			Invoke: func(ctx Context, payload ToolInvocation) (PluginResult[ToolInvocation], error) {
				callCtx, cancel := context.WithTimeout(ctx.Context, timeout)
				defer cancel()
				return ext.InvokeToolPreInvoke(callCtx, payload)
			},
		})
	case HookToolPostInvoke:
		m.toolPostInvoke.Register(Hook[ToolInvocation]{
			Name: cfg.Name, Priority: cfg.Priority, Mode: cfg.Mode, Conditions: cfg.Conditions,
			Invoke: func(ctx Context, payload ToolInvocation) (PluginResult[ToolInvocation], error) {
				callCtx, cancel := context.WithTimeout(ctx.Context, timeout)
				defer cancel()
				return ext.InvokeToolPostInvoke(callCtx, payload)
			},
		})
	}
	// prompt_*/resource_*/http_* external hooks are not routed to an
	// ExternalPlugin method; only the two tool hooks spec.md's worked
	// examples exercise are wired. Native hooks for the remaining six
	// types can be registered through the RegisterNative* methods below.
}

// RunPromptPreFetch runs the prompt_pre_fetch chain before rendering a
// prompt template.
func (m *Manager) RunPromptPreFetch(ctx Context, p PromptFetch) (PromptFetch, *Violation, error) {
	return m.promptPreFetch.Run(ctx, p)
}

// RunPromptPostFetch runs the prompt_post_fetch chain once a prompt has
// been rendered.
func (m *Manager) RunPromptPostFetch(ctx Context, p PromptFetch) (PromptFetch, *Violation, error) {
	return m.promptPostFetch.Run(ctx, p)
}

// RunToolPreInvoke runs the tool_pre_invoke chain ahead of routing a call
// to its upstream. A non-nil elicitation return means the dispatcher must
// suspend the request and resume with RunToolPreInvokeFrom once the client
// replies (spec.md §4.3 contract 10).
func (m *Manager) RunToolPreInvoke(ctx Context, inv ToolInvocation) (result ToolInvocation, violation *Violation, elicit *ElicitationRequest, resumeIndex int, err error) {
	return m.toolPreInvoke.RunFrom(ctx, inv, 0)
}

// RunToolPreInvokeFrom resumes the tool_pre_invoke chain at resumeIndex,
// re-running the plugin that requested elicitation now that ctx carries
// its response (stashed by the caller via ctx.State before calling this).
func (m *Manager) RunToolPreInvokeFrom(ctx Context, inv ToolInvocation, resumeIndex int) (ToolInvocation, *Violation, *ElicitationRequest, int, error) {
	return m.toolPreInvoke.RunFrom(ctx, inv, resumeIndex)
}

// RunToolPostInvoke runs the tool_post_invoke chain once an upstream
// response has arrived. Per the gateway's cancellation policy (a
// request's context is already cancelled at this point if the client
// disconnected mid-call), callers should invoke this with a fresh,
// short-lived context rather than the original request context so a
// response that already arrived still gets its post-invoke hooks run.
func (m *Manager) RunToolPostInvoke(ctx Context, inv ToolInvocation) (ToolInvocation, *Violation, error) {
	return m.toolPostInvoke.Run(ctx, inv)
}

// RunResourcePreFetch runs the resource_pre_fetch chain ahead of reading
// a resource from its upstream.
func (m *Manager) RunResourcePreFetch(ctx Context, r ResourceFetch) (ResourceFetch, *Violation, error) {
	return m.resourcePreFetch.Run(ctx, r)
}

// RunResourcePostFetch runs the resource_post_fetch chain once a
// resource's content has been read.
func (m *Manager) RunResourcePostFetch(ctx Context, r ResourceFetch) (ResourceFetch, *Violation, error) {
	return m.resourcePostFetch.Run(ctx, r)
}

// RunHTTPPreForwarding runs the http_pre_forwarding_call chain before the
// gateway proxies a request body/header set to a REST-integration tool.
func (m *Manager) RunHTTPPreForwarding(ctx Context, h HTTPForwarding) (HTTPForwarding, *Violation, error) {
	return m.httpPreForwarding.Run(ctx, h)
}

// RunHTTPPostForwarding runs the http_post_forwarding_call chain once a
// REST-integration tool has responded.
func (m *Manager) RunHTTPPostForwarding(ctx Context, h HTTPForwarding) (HTTPForwarding, *Violation, error) {
	return m.httpPostForwarding.Run(ctx, h)
}

// The RegisterNative* methods register a native (in-process) hook directly
// on the named chain, for hook types with no external-plugin wiring.
func (m *Manager) RegisterNativePromptPreFetch(h Hook[PromptFetch])   { m.promptPreFetch.Register(h) }
func (m *Manager) RegisterNativePromptPostFetch(h Hook[PromptFetch])  { m.promptPostFetch.Register(h) }
func (m *Manager) RegisterNativeResourcePreFetch(h Hook[ResourceFetch]) {
	m.resourcePreFetch.Register(h)
}
func (m *Manager) RegisterNativeResourcePostFetch(h Hook[ResourceFetch]) {
	m.resourcePostFetch.Register(h)
}
func (m *Manager) RegisterNativeHTTPPreForwarding(h Hook[HTTPForwarding]) {
	m.httpPreForwarding.Register(h)
}
func (m *Manager) RegisterNativeHTTPPostForwarding(h Hook[HTTPForwarding]) {
	m.httpPostForwarding.Register(h)
}
