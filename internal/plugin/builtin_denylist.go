package plugin

import (
	"regexp"

	"mcpgateway/internal/store"
)

// destructiveVerbs flags a tool name as destructive by its leading or
// trailing verb, generalizing the teacher's aggregator.destructiveTools
// (a literal table of domain-specific tool names) into a pattern any
// gateway's tool catalog can match, since the gateway has no fixed tool
// vocabulary the way a single muster install does.
var destructiveVerbs = regexp.MustCompile(`(?i)^(delete|remove|destroy|drop|purge|apply|patch|scale|rollout|uninstall|upgrade|reconcile|resume|suspend)[_-]|[_-](delete|remove|destroy|drop|purge)$`)

// NewDenylistHook builds the built-in tool_pre_invoke plugin that blocks
// tool names matching destructiveVerbs unless yolo is enabled, the same
// default-deny posture the teacher's isDestructiveTool check enforces
// ahead of every tool call.
func NewDenylistHook(yolo bool) Hook[ToolInvocation] {
	return Hook[ToolInvocation]{
		Name:     "builtin.denylist",
		Priority: -1000, // runs before any configured plugin
		Mode:     ModeEnforce,
		Invoke: func(ctx Context, payload ToolInvocation) (PluginResult[ToolInvocation], error) {
			if yolo || !destructiveVerbs.MatchString(payload.Tool.Name) {
				return PluginResult[ToolInvocation]{Continue: true, Modified: payload}, nil
			}
			return PluginResult[ToolInvocation]{
				Violation: &Violation{
					Plugin:      "builtin.denylist",
					Code:        "destructive_tool_blocked",
					Reason:      "tool name matches a destructive-operation pattern",
					Description: "blocked by default; enable yolo mode to allow destructive tools",
				},
			}, nil
		},
	}
}

// ToolInvocation is the payload carried through the tool_pre_invoke and
// tool_post_invoke hook chains.
type ToolInvocation struct {
	Tool      store.Tool
	Arguments map[string]any
	Result    map[string]any // populated only for post-invoke
}
