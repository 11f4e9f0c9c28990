package plugin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"mcpgateway/internal/store"
	"mcpgateway/internal/upstream"
)

// ExternalPlugin invokes a hook implemented by a separate MCP server,
// reusing internal/upstream.Client exactly as it connects to a Tool's
// Gateway — an external plugin is, on the wire, just another upstream
// exposing one well-known tool per hook type it implements.
type ExternalPlugin struct {
	name   string
	client upstream.Client
}

func NewExternalPlugin(name string, g *store.Gateway) (*ExternalPlugin, error) {
	client, err := upstream.NewClient(g)
	if err != nil {
		return nil, fmt.Errorf("external plugin %s: %w", name, err)
	}
	return &ExternalPlugin{name: name, client: client}, nil
}

func (p *ExternalPlugin) Connect(ctx context.Context) error {
	return p.client.Initialize(ctx)
}

// toolNameFor returns the well-known tool an external plugin exposes
// for each hook type it implements; the gateway calls it like any other
// tool, passing the hook payload as arguments and reading PluginResult
// back out of the first text content block of the CallToolResult.
func toolNameFor(hook HookType) string { return "plugin." + string(hook) }

// InvokeToolPreInvoke calls the external plugin's tool_pre_invoke hook.
func (p *ExternalPlugin) InvokeToolPreInvoke(ctx context.Context, payload ToolInvocation) (PluginResult[ToolInvocation], error) {
	args := map[string]any{"tool": payload.Tool.Name, "arguments": payload.Arguments}
	result, err := p.client.CallTool(ctx, toolNameFor(HookToolPreInvoke), args)
	if err != nil {
		return PluginResult[ToolInvocation]{}, err
	}
	return decodePluginResult(result, payload)
}

// InvokeToolPostInvoke calls the external plugin's tool_post_invoke hook,
// additionally carrying the upstream's result for the plugin to inspect
// or redact.
func (p *ExternalPlugin) InvokeToolPostInvoke(ctx context.Context, payload ToolInvocation) (PluginResult[ToolInvocation], error) {
	args := map[string]any{"tool": payload.Tool.Name, "arguments": payload.Arguments, "result": payload.Result}
	result, err := p.client.CallTool(ctx, toolNameFor(HookToolPostInvoke), args)
	if err != nil {
		return PluginResult[ToolInvocation]{}, err
	}
	return decodePluginResult(result, payload)
}

// decodePluginResult unmarshals the well-known response shape
// {"continue": bool, "arguments": {...}, "violation": {...}|null} an
// external plugin returns, carried in the first text content block of
// its CallToolResult.
func decodePluginResult(result *mcp.CallToolResult, payload ToolInvocation) (PluginResult[ToolInvocation], error) {
	if result == nil || len(result.Content) == 0 {
		return PluginResult[ToolInvocation]{}, fmt.Errorf("external plugin returned no content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return PluginResult[ToolInvocation]{}, fmt.Errorf("external plugin response was not text content")
	}

	var wire struct {
		Continue  bool            `json:"continue"`
		Arguments json.RawMessage `json:"arguments"`
		Violation *Violation      `json:"violation"`
	}
	if err := json.Unmarshal([]byte(text.Text), &wire); err != nil {
		return PluginResult[ToolInvocation]{}, fmt.Errorf("decode external plugin response: %w", err)
	}
	if wire.Violation != nil {
		return PluginResult[ToolInvocation]{Violation: wire.Violation}, nil
	}
	modified := payload
	if len(wire.Arguments) > 0 {
		var args map[string]any
		if err := json.Unmarshal(wire.Arguments, &args); err == nil {
			modified.Arguments = args
		}
	}
	return PluginResult[ToolInvocation]{Continue: wire.Continue, Modified: modified}, nil
}

func (p *ExternalPlugin) Close() error { return p.client.Close() }
