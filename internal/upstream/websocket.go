package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mark3labs/mcp-go/mcp"

	"mcpgateway/internal/jsonrpc"
)

// WebSocketClient is the one upstream transport the teacher never spoke:
// mark3labs/mcp-go ships no websocket dialer, so this is a small
// JSON-RPC-over-websocket client in the same shape as baseClient's
// delegating methods, with a single reader and single writer goroutine per
// connection (the same single-writer-per-connection discipline
// internal/transport uses on the server side, mirrored here on the client
// side since gorilla/websocket forbids concurrent writers).
type WebSocketClient struct {
	url     string
	headers http.Header

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	nextID    int64
	pending   map[string]chan jsonrpc.Response
	writeCh   chan []byte
	closeCh   chan struct{}
}

func NewWebSocketClient(url string, headers http.Header) *WebSocketClient {
	return &WebSocketClient{url: url, headers: headers, pending: make(map[string]chan jsonrpc.Response)}
}

func (c *WebSocketClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, c.headers)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("dial websocket upstream %s: %w", c.url, err)
	}
	c.conn = conn
	c.connected = true
	c.writeCh = make(chan []byte, 64)
	c.closeCh = make(chan struct{})
	c.mu.Unlock()

	go c.writeLoop()
	go c.readLoop()

	_, err = c.call(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo":      clientInfo,
		"capabilities":    mcp.ClientCapabilities{},
	})
	if err != nil {
		c.Close()
		return fmt.Errorf("initialize websocket upstream %s: %w", c.url, err)
	}
	return nil
}

func (c *WebSocketClient) writeLoop() {
	for {
		select {
		case <-c.closeCh:
			return
		case msg := <-c.writeCh:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (c *WebSocketClient) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.failAllPending(err)
			return
		}
		var resp jsonrpc.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID.String()]
		if ok {
			delete(c.pending, resp.ID.String())
		}
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *WebSocketClient) failAllPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		ch <- jsonrpc.NewError(jsonrpc.NewID(nil), -32000, err.Error(), nil)
		delete(c.pending, id)
	}
}

func (c *WebSocketClient) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, fmt.Errorf("websocket upstream not connected")
	}
	c.nextID++
	idRaw, _ := json.Marshal(c.nextID)
	id := jsonrpc.NewID(idRaw)
	ch := make(chan jsonrpc.Response, 1)
	c.pending[id.String()] = ch
	c.mu.Unlock()

	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	reqRaw, err := json.Marshal(jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: id, Method: method, Params: paramsRaw})
	if err != nil {
		return nil, err
	}

	select {
	case c.writeCh <- reqRaw:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, fmt.Errorf("upstream error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(30 * time.Second):
		return nil, fmt.Errorf("timed out waiting for %s response", method)
	}
}

func (c *WebSocketClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false
	close(c.closeCh)
	return c.conn.Close()
}

func (c *WebSocketClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	raw, err := c.call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var result struct {
		Tools []mcp.Tool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

func (c *WebSocketClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	raw, err := c.call(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return nil, err
	}
	var result mcp.CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *WebSocketClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	raw, err := c.call(ctx, "resources/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var result struct {
		Resources []mcp.Resource `json:"resources"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return result.Resources, nil
}

func (c *WebSocketClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	raw, err := c.call(ctx, "resources/read", map[string]any{"uri": uri})
	if err != nil {
		return nil, err
	}
	var result mcp.ReadResourceResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *WebSocketClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	raw, err := c.call(ctx, "prompts/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var result struct {
		Prompts []mcp.Prompt `json:"prompts"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return result.Prompts, nil
}

func (c *WebSocketClient) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	raw, err := c.call(ctx, "prompts/get", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return nil, err
	}
	var result mcp.GetPromptResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *WebSocketClient) Ping(ctx context.Context) error {
	_, err := c.call(ctx, "ping", map[string]any{})
	return err
}
