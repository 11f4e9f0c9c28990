// Package plugin implements the gateway's request-pipeline hook framework
// (spec.md §3 "Plugin framework"). It generalizes the teacher's
// aggregator's single denylist hook (internal/aggregator/denylist.go,
// consulted inline before every tool call) into a declared, prioritized,
// multi-hook-type pipeline, because the gateway's plugin set is
// configuration-driven rather than one hard-coded function.
package plugin

import (
	"context"
	"regexp"
	"sort"
	"sync"
	"time"

	"mcpgateway/pkg/logging"
)

// HookType is one of the eight points in the request lifecycle a plugin
// may attach to (spec.md §3).
type HookType string

const (
	HookPromptPreFetch      HookType = "prompt_pre_fetch"
	HookPromptPostFetch     HookType = "prompt_post_fetch"
	HookToolPreInvoke       HookType = "tool_pre_invoke"
	HookToolPostInvoke      HookType = "tool_post_invoke"
	HookResourcePreFetch    HookType = "resource_pre_fetch"
	HookResourcePostFetch   HookType = "resource_post_fetch"
	HookHTTPPreForwarding   HookType = "http_pre_forwarding_call"
	HookHTTPPostForwarding  HookType = "http_post_forwarding_call"
)

// Mode is a plugin's enforcement policy (spec.md §3 "four modes").
type Mode string

const (
	ModeEnforce            Mode = "enforce"
	ModeEnforceIgnoreError Mode = "enforce_ignore_error"
	ModePermissive         Mode = "permissive"
	ModeDisabled           Mode = "disabled"
)

// PluginResult is the outcome of a single hook invocation, generic over the
// payload type each hook point carries (prompt text, tool arguments,
// resource bytes, http.Header).
type PluginResult[T any] struct {
	Continue    bool
	Modified    T
	Violation   *Violation
	Elicitation *ElicitationRequest
}

// ElicitationRequest is returned alongside Continue=false when a plugin
// needs additional input from the originating client before it can decide
// (spec.md §4.3 contract 10). The dispatcher suspends the request, relays
// this to the client as an `elicitation/create` call, and resumes the
// chain at the same hook once a response arrives.
type ElicitationRequest struct {
	Message        string
	Schema         []byte // JSON Schema, primitive types only
	TimeoutSeconds int
}

// Conditions restricts a plugin to a subset of requests (spec.md §3
// "Plugin Registration... conditions"). A nil/zero field matches
// everything; a non-empty slice is an allowlist.
type Conditions struct {
	GatewayIDs   []string
	TenantIDs    []string
	ToolNames    []string
	PromptNames  []string
	ResourceURIs []string
	UserPattern  *regexp.Regexp
	ContentTypes []string
}

// Match reports whether req satisfies the GatewayIDs, TenantIDs, ToolNames
// and UserPattern conditions; GatewayIDs is compared with req.GatewayName.
// PromptNames, ResourceURIs and ContentTypes are not checked, so a plugin
// restricted only by those matches every request.
func (c Conditions) Match(req Context) bool {
	if !matchesAny(c.GatewayIDs, req.GatewayName) {
		return false
	}
	if !matchesAny(c.TenantIDs, req.TenantID) {
		return false
	}
	if !matchesAny(c.ToolNames, req.ToolName) {
		return false
	}
	if c.UserPattern != nil && !c.UserPattern.MatchString(req.Principal) {
		return false
	}
	return true
}

func matchesAny(allowlist []string, value string) bool {
	if len(allowlist) == 0 {
		return true
	}
	for _, v := range allowlist {
		if v == value {
			return true
		}
	}
	return false
}

// Violation carries the detail surfaced on pkg/gwerr.Violation when a
// plugin blocks a request.
type Violation struct {
	Plugin      string
	Code        string
	Reason      string
	Description string
}

// Context is the gateway's GlobalContext (spec.md §4.3 contract 6): shared
// across every plugin invoked for one request, plus a per-plugin scratch
// map keyed by plugin name for state that must not leak between plugins.
type Context struct {
	context.Context
	RequestID   string
	Principal   string
	TenantID    string
	GatewayName string
	ToolName    string

	SharedState *sync.Map // shared_state: visible to every plugin in the chain
	pluginState *sync.Map // metadata: per-plugin state, keyed by plugin name
}

// NewContext builds a GlobalContext with fresh shared/per-plugin state maps.
func NewContext(ctx context.Context, requestID, principal, tenantID, gatewayName, toolName string) Context {
	return Context{
		Context: ctx, RequestID: requestID, Principal: principal,
		TenantID: tenantID, GatewayName: gatewayName, ToolName: toolName,
		SharedState: &sync.Map{}, pluginState: &sync.Map{},
	}
}

// State returns the scratch map a single named plugin may read/write
// across the lifetime of one request, isolated from other plugins'.
func (c Context) State(pluginName string) *sync.Map {
	if c.pluginState == nil {
		return &sync.Map{}
	}
	v, _ := c.pluginState.LoadOrStore(pluginName, &sync.Map{})
	return v.(*sync.Map)
}

// Hook is one registered plugin instance bound to one HookType.
type Hook[T any] struct {
	Name       string
	Priority   int // lower runs first; ties break by declaration order
	Mode       Mode
	Conditions Conditions
	declOrder  int
	Invoke     func(ctx Context, payload T) (PluginResult[T], error)
}

// Chain runs a declaration-ordered, priority-sorted sequence of hooks of
// the same payload type, short-circuiting on the first violation from an
// enforce-mode plugin.
type Chain[T any] struct {
	mu    sync.RWMutex
	hooks []Hook[T]
	seq   int
}

func NewChain[T any]() *Chain[T] { return &Chain[T]{} }

// Register adds a hook, assigning it a stable declaration-order tiebreak.
func (c *Chain[T]) Register(h Hook[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h.declOrder = c.seq
	c.seq++
	c.hooks = append(c.hooks, h)
	sort.SliceStable(c.hooks, func(i, j int) bool {
		if c.hooks[i].Priority != c.hooks[j].Priority {
			return c.hooks[i].Priority < c.hooks[j].Priority
		}
		return c.hooks[i].declOrder < c.hooks[j].declOrder
	})
}

// Run executes every enabled hook in order, feeding each hook's Modified
// output forward as the next hook's input. A Violation from an
// ModeEnforce hook stops the chain immediately; a runtime error from a
// ModeEnforceIgnoreError hook is logged and that hook is skipped (the
// error is not returned); ModePermissive violations are logged but never
// block; ModeDisabled hooks are skipped entirely.
func (c *Chain[T]) Run(ctx Context, payload T) (T, *Violation, error) {
	current, violation, elicit, _, err := c.RunFrom(ctx, payload, 0)
	if elicit != nil {
		// Callers not prepared to handle suspension treat an elicitation
		// request as a blocking violation so they never silently drop it.
		return current, &Violation{Reason: "elicitation requested but caller cannot suspend"}, err
	}
	return current, violation, err
}

// RunFrom executes hooks starting at startIndex (the chain's declaration-
// order position after priority sorting), returning the resume index when
// a hook suspends with an ElicitationRequest so the caller can re-invoke
// RunFrom at exactly that hook once a response is available (spec.md §4.3
// contract 10 "re-runs the same plugin").
func (c *Chain[T]) RunFrom(ctx Context, payload T, startIndex int) (result T, violation *Violation, elicit *ElicitationRequest, resumeIndex int, err error) {
	c.mu.RLock()
	hooks := make([]Hook[T], len(c.hooks))
	copy(hooks, c.hooks)
	c.mu.RUnlock()

	current := payload
	for i := startIndex; i < len(hooks); i++ {
		h := hooks[i]
		if h.Mode == ModeDisabled {
			continue
		}
		if !h.Conditions.Match(ctx) {
			continue
		}
		res, invokeErr := h.Invoke(ctx, current)
		if invokeErr != nil {
			switch h.Mode {
			case ModeEnforceIgnoreError:
				logging.Warn("plugin", "plugin %s failed and was skipped (enforce_ignore_error): %v", h.Name, invokeErr)
				continue
			default:
				return current, nil, nil, i, invokeErr
			}
		}
		if res.Elicitation != nil {
			return current, nil, res.Elicitation, i, nil
		}
		if res.Violation != nil {
			switch h.Mode {
			case ModePermissive:
				// Logged but never blocks, and never
				// forces the chain to stop even if the plugin itself set
				// Continue=false alongside the violation.
				logging.Warn("plugin", "plugin %s violation %q ignored (permissive)", h.Name, res.Violation.Code)
				res.Violation = nil
				res.Continue = true
			default:
				return current, res.Violation, nil, i, nil
			}
		}
		if !res.Continue {
			return current, res.Violation, nil, i, nil
		}
		current = res.Modified
	}
	return current, nil, nil, len(hooks), nil
}
