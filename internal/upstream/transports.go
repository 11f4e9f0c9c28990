package upstream

import (
	"context"
	"fmt"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"mcpgateway/internal/auth"
)

const protocolVersion = "2025-06-18"

var clientInfo = mcp.Implementation{Name: "mcpgateway", Version: "1.0.0"}

func initializeRequest() mcp.InitializeRequest {
	return mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: protocolVersion,
			ClientInfo:      clientInfo,
			Capabilities:    mcp.ClientCapabilities{},
		},
	}
}

// StdioClient proxies a locally spawned MCP server subprocess, adapted
// from the teacher's internal/mcpserver.StdioClient.
type StdioClient struct {
	baseClient
	command string
	args    []string
	env     map[string]string
}

func NewStdioClient(command string, args []string, env map[string]string) *StdioClient {
	return &StdioClient{command: command, args: args, env: env}
}

func (c *StdioClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	var envStrings []string
	for k, v := range c.env {
		envStrings = append(envStrings, fmt.Sprintf("%s=%s", k, v))
	}

	inner, err := mcpclient.NewStdioMCPClient(c.command, envStrings, c.args...)
	if err != nil {
		return fmt.Errorf("create stdio client: %w", err)
	}

	initCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}

	if _, err := inner.Initialize(initCtx, initializeRequest()); err != nil {
		inner.Close()
		return fmt.Errorf("initialize stdio upstream %s: %w", c.command, err)
	}

	c.inner, c.connected = inner, true
	return nil
}

func (c *StdioClient) Close() error { return c.closeClient() }
func (c *StdioClient) ListTools(ctx context.Context) ([]mcp.Tool, error) { return c.listTools(ctx) }
func (c *StdioClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return c.callTool(ctx, name, args)
}
func (c *StdioClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	return c.listResources(ctx)
}
func (c *StdioClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return c.readResource(ctx, uri)
}
func (c *StdioClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) { return c.listPrompts(ctx) }
func (c *StdioClient) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	return c.getPrompt(ctx, name, args)
}
func (c *StdioClient) Ping(ctx context.Context) error { return c.ping(ctx) }

// SSEClient proxies an upstream speaking the legacy SSE transport, adapted
// from the teacher's internal/mcpserver.SSEClient.
type SSEClient struct {
	baseClient
	url     string
	headers map[string]string
}

func NewSSEClient(url string, headers map[string]string) *SSEClient {
	return &SSEClient{url: url, headers: headers}
}

func (c *SSEClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	var opts []transport.ClientOption
	if len(c.headers) > 0 {
		opts = append(opts, transport.WithHeaders(c.headers))
	}

	inner, err := mcpclient.NewSSEMCPClient(c.url, opts...)
	if err != nil {
		return fmt.Errorf("create sse client: %w", err)
	}
	if err := inner.Start(ctx); err != nil {
		return fmt.Errorf("start sse transport: %w", err)
	}
	if _, err := inner.Initialize(ctx, initializeRequest()); err != nil {
		inner.Close()
		return fmt.Errorf("initialize sse upstream %s: %w", c.url, err)
	}

	c.inner, c.connected = inner, true
	return nil
}

func (c *SSEClient) Close() error { return c.closeClient() }
func (c *SSEClient) ListTools(ctx context.Context) ([]mcp.Tool, error) { return c.listTools(ctx) }
func (c *SSEClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return c.callTool(ctx, name, args)
}
func (c *SSEClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	return c.listResources(ctx)
}
func (c *SSEClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return c.readResource(ctx, uri)
}
func (c *SSEClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) { return c.listPrompts(ctx) }
func (c *SSEClient) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	return c.getPrompt(ctx, name, args)
}
func (c *SSEClient) Ping(ctx context.Context) error { return c.ping(ctx) }

// StreamableHTTPClient proxies an upstream speaking Streamable HTTP.
// headerFunc, when set, is consulted on every request instead of a static
// header map — the mechanism the teacher's DynamicAuthClient uses for
// token refresh, reused here for any auth.Secret that may rotate between
// calls (e.g. a short-lived OAuth access token).
type StreamableHTTPClient struct {
	baseClient
	url        string
	headers    map[string]string
	headerFunc func(context.Context) map[string]string
}

func NewStreamableHTTPClient(url string, headers map[string]string) *StreamableHTTPClient {
	return &StreamableHTTPClient{url: url, headers: headers}
}

func NewStreamableHTTPClientWithHeaderFunc(url string, fn func(context.Context) map[string]string) *StreamableHTTPClient {
	return &StreamableHTTPClient{url: url, headerFunc: fn}
}

func (c *StreamableHTTPClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	var opts []transport.StreamableHTTPCOption
	switch {
	case c.headerFunc != nil:
		opts = append(opts, transport.WithHTTPHeaderFunc(c.headerFunc))
	case len(c.headers) > 0:
		opts = append(opts, transport.WithHTTPHeaders(c.headers))
	}

	inner, err := mcpclient.NewStreamableHttpClient(c.url, opts...)
	if err != nil {
		return fmt.Errorf("create streamable-http client: %w", err)
	}
	if _, err := inner.Initialize(ctx, initializeRequest()); err != nil {
		inner.Close()
		return fmt.Errorf("initialize streamable-http upstream %s: %w", c.url, err)
	}

	c.inner, c.connected = inner, true
	return nil
}

func (c *StreamableHTTPClient) Close() error { return c.closeClient() }
func (c *StreamableHTTPClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return c.listTools(ctx)
}
func (c *StreamableHTTPClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return c.callTool(ctx, name, args)
}
func (c *StreamableHTTPClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	return c.listResources(ctx)
}
func (c *StreamableHTTPClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return c.readResource(ctx, uri)
}
func (c *StreamableHTTPClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	return c.listPrompts(ctx)
}
func (c *StreamableHTTPClient) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	return c.getPrompt(ctx, name, args)
}
func (c *StreamableHTTPClient) Ping(ctx context.Context) error { return c.ping(ctx) }

// secretHeaderFunc adapts a rotating auth.Secret into the header func the
// Streamable HTTP transport calls on every outbound request.
func secretHeaderFunc(headerName string, secret func() auth.Secret) func(context.Context) map[string]string {
	return func(ctx context.Context) map[string]string {
		s := secret()
		if s.IsEmpty() {
			return nil
		}
		return map[string]string{headerName: "Bearer " + s.Value()}
	}
}
