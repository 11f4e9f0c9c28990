package dispatcher

import (
	"context"
	"encoding/json"
	"net/http"

	"mcpgateway/internal/plugin"
	"mcpgateway/internal/session"
	"mcpgateway/internal/store"
	"mcpgateway/internal/upstream"
	"mcpgateway/pkg/gwerr"
)

type resourceView struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
}

type listResourcesResult struct {
	Resources []resourceView `json:"resources"`
}

// handleResourcesList mirrors handleToolsList's union/filter shape for
// resources (spec.md §4.4); unlike tools/list, the result is not sorted.
func (d *Dispatcher) handleResourcesList(ctx context.Context, principal store.Principal, vid *store.ID) (any, error) {
	var resources []*store.Resource
	if vid != nil {
		comp, err := d.vservers.Resolve(ctx, *vid, principal)
		if err != nil {
			return nil, err
		}
		resources = comp.Resources
	} else {
		var err error
		resources, err = d.listAllResources(ctx, principal)
		if err != nil {
			return nil, err
		}
	}

	out := make([]resourceView, 0, len(resources))
	for _, r := range resources {
		out = append(out, resourceView{URI: r.URI, MimeType: r.MimeType})
	}
	return listResourcesResult{Resources: out}, nil
}

func (d *Dispatcher) listAllResources(ctx context.Context, principal store.Principal) ([]*store.Resource, error) {
	var all []*store.Resource
	page := store.Page{Limit: 500}
	for {
		batch, err := d.resources.List(ctx, principal, page)
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

func (d *Dispatcher) findResource(ctx context.Context, principal store.Principal, vid *store.ID, uri string) (*store.Resource, error) {
	var candidates []*store.Resource
	var err error
	if vid != nil {
		comp, rerr := d.vservers.Resolve(ctx, *vid, principal)
		if rerr != nil {
			return nil, rerr
		}
		candidates = comp.Resources
	} else {
		candidates, err = d.listAllResources(ctx, principal)
		if err != nil {
			return nil, err
		}
	}
	for _, r := range candidates {
		if r.URI == uri {
			return r, nil
		}
	}
	return nil, gwerr.New(gwerr.KindNotFound, "resource %q not found", uri)
}

type readResourceParams struct {
	URI string `json:"uri"`
}

// handleResourcesRead runs resource_pre_fetch, reads the resource from its
// upstream gateway, then resource_post_fetch (spec.md §4.4).
func (d *Dispatcher) handleResourcesRead(ctx context.Context, sess *session.Session, principal store.Principal, vid *store.ID, headers http.Header, params json.RawMessage) (any, error) {
	var p readResourceParams
	if err := json.Unmarshal(params, &p); err != nil || p.URI == "" {
		return nil, gwerr.New(gwerr.KindInvalid, "malformed resources/read params")
	}

	r, err := d.findResource(ctx, principal, vid, p.URI)
	if err != nil {
		return nil, err
	}

	gatewayName, err := d.gatewayName(ctx, r.GatewayID)
	if err != nil {
		return nil, err
	}
	pctx := plugin.NewContext(ctx, requestIDFromContext(ctx), principal.Subject, principal.TenantID.String(), gatewayName, "")

	fetch := plugin.ResourceFetch{Resource: *r}
	fetch, violation, err := d.plugins.RunResourcePreFetch(pctx, fetch)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "resource_pre_fetch failed")
	}
	if violation != nil {
		return nil, gwerr.Violation(gwerr.PluginDetail{Plugin: violation.Plugin, Code: violation.Code, Reason: violation.Reason, Description: violation.Description})
	}

	if r.GatewayID.IsZero() {
		return nil, gwerr.New(gwerr.KindUnavailable, "resource %q has no registered source", p.URI)
	}
	gw, err := d.gateways.GetForConnection(ctx, r.GatewayID)
	if err != nil {
		return nil, err
	}
	outHeaders := d.buildOutboundHeaders(gw, headers)

	var result map[string]any
	callCtx := upstream.WithRequestHeaders(ctx, outHeaders)
	err = d.pool.Call(callCtx, gw, func(ctx context.Context, c upstream.Client) error {
		res, err := c.ReadResource(ctx, r.URI)
		if err != nil {
			return err
		}
		raw, _ := json.Marshal(res)
		return json.Unmarshal(raw, &result)
	})
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindUnavailable, err, "reading resource %s", r.URI)
	}

	fetch.Result = nil
	_, violation, err = d.plugins.RunResourcePostFetch(pctx, fetch)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "resource_post_fetch failed")
	}
	if violation != nil {
		return nil, gwerr.Violation(gwerr.PluginDetail{Plugin: violation.Plugin, Code: violation.Code, Reason: violation.Reason, Description: violation.Description})
	}
	return result, nil
}

type subscribeParams struct {
	URI string `json:"uri"`
}

// handleResourcesSubscribe acknowledges a client's subscription to a
// resource's update notifications. The gateway has no upstream-initiated
// resource change feed to relay yet, so this only validates the resource
// exists and records nothing further.
func (d *Dispatcher) handleResourcesSubscribe(ctx context.Context, sess *session.Session, params json.RawMessage) (any, error) {
	var p subscribeParams
	if err := json.Unmarshal(params, &p); err != nil || p.URI == "" {
		return nil, gwerr.New(gwerr.KindInvalid, "malformed resources/subscribe params")
	}
	if _, err := d.findResource(ctx, sess.Principal, nil, p.URI); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}
