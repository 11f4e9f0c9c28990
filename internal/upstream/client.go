// Package upstream manages outbound connections to the MCP and REST
// servers a Gateway entity represents. It generalizes the teacher's
// internal/mcpserver client family (one struct per wire transport, sharing
// a baseMCPClient for the protocol operations) to the gateway's own
// transport set and adds the pieces a fan-in reverse proxy needs that a
// single aggregator process didn't: bounded per-upstream concurrency,
// retry with backoff, and a circuit breaker.
package upstream

import (
	"context"
	"fmt"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// Client is the transport-agnostic contract every upstream kind satisfies,
// carried over unchanged from the teacher's internal/mcpserver.MCPClient so
// the teacher's per-transport implementations adapt with their method sets
// intact.
type Client interface {
	Initialize(ctx context.Context) error
	Close() error
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)
	ListResources(ctx context.Context) ([]mcp.Resource, error)
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)
	ListPrompts(ctx context.Context) ([]mcp.Prompt, error)
	GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error)
	Ping(ctx context.Context) error
}

// baseClient centralizes the connected/client-handle bookkeeping shared by
// every transport, exactly as the teacher's baseMCPClient does.
type baseClient struct {
	inner     mcpclient.MCPClient
	mu        sync.RWMutex
	connected bool
}

func (b *baseClient) checkConnected() error {
	if !b.connected || b.inner == nil {
		return fmt.Errorf("upstream client not connected")
	}
	return nil
}

func (b *baseClient) closeClient() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected || b.inner == nil {
		return nil
	}
	err := b.inner.Close()
	b.connected = false
	b.inner = nil
	return err
}

func (b *baseClient) listTools(ctx context.Context) ([]mcp.Tool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.inner.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return result.Tools, nil
}

func (b *baseClient) callTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.inner.CallTool(ctx, mcp.CallToolRequest{
		Params: struct {
			Name      string    `json:"name"`
			Arguments any       `json:"arguments,omitempty"`
			Meta      *mcp.Meta `json:"_meta,omitempty"`
		}{Name: name, Arguments: args},
	})
	if err != nil {
		return nil, fmt.Errorf("call tool %s: %w", name, err)
	}
	return result, nil
}

func (b *baseClient) listResources(ctx context.Context) ([]mcp.Resource, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.inner.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return result.Resources, nil
}

func (b *baseClient) readResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.inner.ReadResource(ctx, mcp.ReadResourceRequest{
		Params: struct {
			URI       string         `json:"uri"`
			Arguments map[string]any `json:"arguments,omitempty"`
		}{URI: uri},
	})
	if err != nil {
		return nil, fmt.Errorf("read resource %s: %w", uri, err)
	}
	return result, nil
}

func (b *baseClient) listPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.inner.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	return result.Prompts, nil
}

func (b *baseClient) getPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	stringArgs := make(map[string]string, len(args))
	for k, v := range args {
		if s, ok := v.(string); ok {
			stringArgs[k] = s
		} else {
			stringArgs[k] = fmt.Sprintf("%v", v)
		}
	}
	result, err := b.inner.GetPrompt(ctx, mcp.GetPromptRequest{
		Params: struct {
			Name      string            `json:"name"`
			Arguments map[string]string `json:"arguments,omitempty"`
		}{Name: name, Arguments: stringArgs},
	})
	if err != nil {
		return nil, fmt.Errorf("get prompt %s: %w", name, err)
	}
	return result, nil
}

func (b *baseClient) ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return err
	}
	return b.inner.Ping(ctx)
}
