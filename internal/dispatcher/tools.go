package dispatcher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"time"

	"mcpgateway/internal/plugin"
	"mcpgateway/internal/session"
	"mcpgateway/internal/store"
	"mcpgateway/internal/upstream"
	"mcpgateway/pkg/gwerr"
)

// toolView is the wire shape for one entry of tools/list, independent of
// any upstream SDK type (internal/jsonrpc's own envelope, not mcp-go's).
type toolView struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

type listToolsResult struct {
	Tools []toolView `json:"tools"`
}

// handleToolsList computes the union of native + upstream-mirrored tools,
// filtered by principal visibility and (if vid is set) the virtual
// server's association set, stable-sorted by (gateway_name, tool_name)
// (spec.md §4.4, §8).
func (d *Dispatcher) handleToolsList(ctx context.Context, principal store.Principal, vid *store.ID) (any, error) {
	var tools []*store.Tool
	if vid != nil {
		comp, err := d.vservers.Resolve(ctx, *vid, principal)
		if err != nil {
			return nil, err
		}
		tools = comp.Tools
	} else {
		var err error
		tools, err = d.listAllTools(ctx, principal)
		if err != nil {
			return nil, err
		}
	}

	gatewayNames, err := d.gatewayNameIndex(ctx, principal)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tools, func(i, j int) bool {
		gi, gj := gatewayNames[tools[i].GatewayID], gatewayNames[tools[j].GatewayID]
		if gi != gj {
			return gi < gj
		}
		return tools[i].Name < tools[j].Name
	})

	out := make([]toolView, 0, len(tools))
	for _, t := range tools {
		if !t.Enabled {
			continue
		}
		out = append(out, toolView{Name: t.Name, Description: t.Description, InputSchema: json.RawMessage(nonEmptyOr(t.InputSchema, "{}"))})
	}
	return listToolsResult{Tools: out}, nil
}

func nonEmptyOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func (d *Dispatcher) listAllTools(ctx context.Context, principal store.Principal) ([]*store.Tool, error) {
	var all []*store.Tool
	page := store.Page{Limit: 500}
	for {
		batch, err := d.tools.List(ctx, principal, page)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < page.Limit {
			return all, nil
		}
		page.Offset += page.Limit
	}
}

func (d *Dispatcher) gatewayNameIndex(ctx context.Context, principal store.Principal) (map[store.ID]string, error) {
	idx := map[store.ID]string{store.ID{}: ""}
	page := store.Page{Limit: 500}
	for {
		batch, err := d.gateways.List(ctx, principal.TenantID, principal, page)
		if err != nil {
			return nil, err
		}
		for _, g := range batch {
			idx[g.ID] = g.Name
		}
		if len(batch) < page.Limit {
			return idx, nil
		}
		page.Offset += page.Limit
	}
}

func (d *Dispatcher) findTool(ctx context.Context, principal store.Principal, vid *store.ID, name string) (*store.Tool, error) {
	if vid != nil {
		return d.vservers.ResolveTool(ctx, *vid, principal, name)
	}
	all, err := d.listAllTools(ctx, principal)
	if err != nil {
		return nil, err
	}
	for _, t := range all {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, gwerr.New(gwerr.KindNotFound, "tool %q not found", name)
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// handleToolsCall runs the full tool_pre_invoke/dispatch/tool_post_invoke
// pipeline (spec.md §4.4 steps 4-6), suspending on an elicitation request
// from a pre-invoke plugin and resuming the same hook once the client
// replies (spec.md §4.3 contract 10).
func (d *Dispatcher) handleToolsCall(ctx context.Context, sess *session.Session, principal store.Principal, vid *store.ID, requestID string, headers http.Header, params json.RawMessage) (any, error) {
	var p callToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, gwerr.New(gwerr.KindInvalid, "malformed tools/call params")
	}
	if p.Name == "" {
		return nil, gwerr.New(gwerr.KindInvalid, "tools/call requires a tool name")
	}

	tool, err := d.findTool(ctx, principal, vid, p.Name)
	if err != nil {
		return nil, err
	}
	if !tool.Enabled {
		return nil, gwerr.New(gwerr.KindFeatureDisabled, "tool %q is disabled", p.Name)
	}

	gatewayName, err := d.gatewayName(ctx, tool.GatewayID)
	if err != nil {
		return nil, err
	}
	pctx := plugin.NewContext(ctx, requestID, principal.Subject, principal.TenantID.String(), gatewayName, tool.Name)
	inv := plugin.ToolInvocation{Tool: *tool, Arguments: p.Arguments}

	inv, err = d.runToolPreInvoke(ctx, sess, pctx, inv)
	if err != nil {
		return nil, err
	}

	result, err := d.invokeTool(ctx, pctx, tool, inv.Arguments, headers)
	if err != nil {
		return nil, err
	}

	inv.Result = result
	postCtx := plugin.NewContext(context.Background(), requestID, principal.Subject, principal.TenantID.String(), gatewayName, tool.Name)
	final, violation, postErr := d.plugins.RunToolPostInvoke(postCtx, inv)
	if postErr != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, postErr, "tool_post_invoke failed")
	}
	if violation != nil {
		return nil, gwerr.Violation(gwerr.PluginDetail{Plugin: violation.Plugin, Code: violation.Code, Reason: violation.Reason, Description: violation.Description})
	}
	return map[string]any{"content": []map[string]any{{"type": "text", "text": ""}}, "structuredContent": final.Result, "isError": false}, nil
}

// gatewayName resolves a tool's owning gateway to its display name for
// plugin condition matching; a zero id (native tool) has none.
func (d *Dispatcher) gatewayName(ctx context.Context, gatewayID store.ID) (string, error) {
	if gatewayID.IsZero() {
		return "", nil
	}
	gw, err := d.gateways.GetByID(ctx, gatewayID, store.Principal{IsAdmin: true})
	if err != nil {
		return "", err
	}
	return gw.Name, nil
}

// runToolPreInvoke drives the tool_pre_invoke chain, handling elicitation
// suspend/resume against the session registry.
func (d *Dispatcher) runToolPreInvoke(ctx context.Context, sess *session.Session, pctx plugin.Context, inv plugin.ToolInvocation) (plugin.ToolInvocation, error) {
	current, violation, elicit, resumeIdx, err := d.plugins.RunToolPreInvoke(pctx, inv)
	for {
		if err != nil {
			return current, gwerr.Wrap(gwerr.KindInternal, err, "tool_pre_invoke failed")
		}
		if violation != nil {
			return current, gwerr.Violation(gwerr.PluginDetail{Plugin: violation.Plugin, Code: violation.Code, Reason: violation.Reason, Description: violation.Description})
		}
		if elicit == nil {
			return current, nil
		}
		if !sess.HasCapability(session.CapabilityElicitation) {
			return current, gwerr.New(gwerr.KindCapabilityMissing, "plugin requires elicitation but client did not advertise the capability")
		}
		if d.notifier == nil {
			return current, gwerr.New(gwerr.KindUnavailable, "no transport notifier registered for elicitation")
		}

		requestID := store.NewID().String()
		timeout := d.cfg.ElicitationTimeout
		if elicit.TimeoutSeconds > 0 {
			timeout = time.Duration(elicit.TimeoutSeconds) * time.Second
		}
		req := &session.ElicitationRequest{Message: elicit.Message, Schema: elicit.Schema, Timeout: timeout}
		if attachErr := d.sessions.AttachPendingElicitation(ctx, sess.ID, requestID, req); attachErr != nil {
			return current, attachErr
		}
		if notifyErr := d.notifier.Notify(ctx, sess.ID, "elicitation/create", map[string]any{
			"message":         elicit.Message,
			"requestedSchema": json.RawMessage(nonEmptyOr(string(elicit.Schema), "{}")),
			"timeoutMs":       int(timeout.Milliseconds()),
		}); notifyErr != nil {
			return current, gwerr.Wrap(gwerr.KindUnavailable, notifyErr, "delivering elicitation/create")
		}

		resp, waitErr := d.sessions.AwaitElicitation(ctx, sess.ID, requestID, timeout)
		if waitErr != nil {
			return current, waitErr
		}
		pctx.State("elicitation").Store(requestID, resp)

		current, violation, elicit, resumeIdx, err = d.plugins.RunToolPreInvokeFrom(pctx, current, resumeIdx)
	}
}

// invokeTool dispatches to the upstream backing a tool: an MCP gateway via
// the pool (retried, circuit-broken), or a REST integration via plain
// net/http. A native tool (no GatewayID) has no execution backend. headers
// is the inbound request's HTTP headers, used to build the forwarded
// header set (passthrough + one-time-auth mapping, spec.md §3/§4.1).
func (d *Dispatcher) invokeTool(ctx context.Context, pctx plugin.Context, tool *store.Tool, args map[string]any, headers http.Header) (map[string]any, error) {
	if tool.GatewayID.IsZero() {
		return nil, gwerr.New(gwerr.KindUnavailable, "tool %q has no registered executor", tool.Name)
	}
	gw, err := d.gateways.GetForConnection(ctx, tool.GatewayID)
	if err != nil {
		return nil, err
	}
	outHeaders := d.buildOutboundHeaders(gw, headers)

	if tool.IntegrationType == store.IntegrationREST {
		return d.invokeRESTTool(ctx, pctx, tool, gw, args, outHeaders)
	}

	var out map[string]any
	callCtx := upstream.WithRequestHeaders(ctx, outHeaders)
	err = d.pool.Call(callCtx, gw, func(ctx context.Context, c upstream.Client) error {
		res, err := c.CallTool(ctx, tool.MCPMethod, args)
		if err != nil {
			return err
		}
		raw, _ := json.Marshal(res)
		return json.Unmarshal(raw, &out)
	})
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindUnavailable, err, "calling upstream tool %s", tool.Name)
	}
	return out, nil
}

// invokeRESTTool runs the http_pre_forwarding_call/http_post_forwarding_call
// plugin chain around a REST-integration tool call (spec.md §3, §4.3), then
// reads and returns the upstream's actual response body rather than just its
// status code.
func (d *Dispatcher) invokeRESTTool(ctx context.Context, pctx plugin.Context, tool *store.Tool, gw *store.Gateway, args map[string]any, outHeaders map[string]string) (map[string]any, error) {
	client, err := upstream.NewRESTClient(gw)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "building REST client for gateway %s", gw.Name)
	}

	reqBody, _ := json.Marshal(args)
	fwd, violation, err := d.plugins.RunHTTPPreForwarding(pctx, plugin.HTTPForwarding{Header: headerMapToHTTP(outHeaders), Body: reqBody})
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "http_pre_forwarding_call failed")
	}
	if violation != nil {
		return nil, gwerr.Violation(gwerr.PluginDetail{Plugin: violation.Plugin, Code: violation.Code, Reason: violation.Reason, Description: violation.Description})
	}
	sendHeaders := httpToHeaderMap(fwd.Header)
	if !d.cfg.EnableOverwriteBaseHeaders {
		// A pre-forwarding plugin may observe the base/auth headers but
		// never override them unless the operator opted in.
		for k, v := range outHeaders {
			sendHeaders[k] = v
		}
	}

	resp, err := client.Invoke(ctx, tool, gw, args, sendHeaders)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindUnavailable, err, "calling REST tool %s", tool.Name)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindUnavailable, err, "reading REST tool %s response", tool.Name)
	}

	post, violation, err := d.plugins.RunHTTPPostForwarding(pctx, plugin.HTTPForwarding{Header: resp.Header.Clone(), Body: respBody, StatusCode: resp.StatusCode})
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "http_post_forwarding_call failed")
	}
	if violation != nil {
		return nil, gwerr.Violation(gwerr.PluginDetail{Plugin: violation.Plugin, Code: violation.Code, Reason: violation.Reason, Description: violation.Description})
	}

	var payload any
	if len(post.Body) > 0 {
		if jsonErr := json.Unmarshal(post.Body, &payload); jsonErr != nil {
			payload = string(post.Body)
		}
	}
	return map[string]any{"status": post.StatusCode, "body": payload}, nil
}
