package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mcpgateway/internal/store"
)

// RESTClient invokes a Tool whose IntegrationType is REST: a plain HTTP
// call rather than an MCP session. The teacher has no REST-wrapped tool
// concept (every mcpserver client speaks the MCP protocol); this is new,
// grounded only in net/http, used wherever a REST Tool's RequestType
// (GET/POST/PUT/PATCH/DELETE) needs dispatching.
type RESTClient struct {
	http *http.Client
}

func NewRESTClient(g *store.Gateway) (*RESTClient, error) {
	tlsConf, err := TLSConfig(g)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConf
	return &RESTClient{http: &http.Client{Transport: transport, Timeout: 30 * time.Second}}, nil
}

// Invoke performs the REST call backing a Tool, injecting static auth
// headers in the same order NewClient does (Authorization first, then any
// gateway-configured custom headers) so header precedence stays consistent
// across MCP and REST upstreams. extraHeaders (the per-call passthrough set
// and a one-time-auth gateway's X-Upstream-Authorization mapping, both
// assembled by internal/dispatcher) are applied last and win on conflict.
func (c *RESTClient) Invoke(ctx context.Context, t *store.Tool, g *store.Gateway, args map[string]any, extraHeaders map[string]string) (*http.Response, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal REST tool arguments: %w", err)
	}

	method := string(t.RequestType)
	if method == "" {
		method = http.MethodPost
	}

	var reqBody io.Reader
	url := t.URL
	if method == http.MethodGet || method == http.MethodDelete {
		reqBody = nil
	} else {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build REST tool request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	headers, err := authHeaders(g)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("REST tool %s: %w", t.Name, err)
	}
	return resp, nil
}
