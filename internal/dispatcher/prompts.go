package dispatcher

import (
	"context"
	"encoding/json"

	"mcpgateway/internal/plugin"
	"mcpgateway/internal/session"
	"mcpgateway/internal/store"
	"mcpgateway/internal/template"
	"mcpgateway/pkg/gwerr"
)

type promptView struct {
	Name string `json:"name"`
}

type listPromptsResult struct {
	Prompts []promptView `json:"prompts"`
}

// handlePromptsList mirrors handleToolsList's union/filter shape for
// prompts (spec.md §4.4).
func (d *Dispatcher) handlePromptsList(ctx context.Context, principal store.Principal, vid *store.ID) (any, error) {
	var prompts []*store.Prompt
	if vid != nil {
		comp, err := d.vservers.Resolve(ctx, *vid, principal)
		if err != nil {
			return nil, err
		}
		prompts = comp.Prompts
	} else {
		var err error
		prompts, err = d.listAllPrompts(ctx, principal)
		if err != nil {
			return nil, err
		}
	}

	out := make([]promptView, 0, len(prompts))
	for _, p := range prompts {
		out = append(out, promptView{Name: p.Name})
	}
	return listPromptsResult{Prompts: out}, nil
}

func (d *Dispatcher) listAllPrompts(ctx context.Context, principal store.Principal) ([]*store.Prompt, error) {
	var all []*store.Prompt
	page := store.Page{Limit: 500}
	for {
		batch, err := d.prompts.List(ctx, principal, page)
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

func (d *Dispatcher) findPrompt(ctx context.Context, principal store.Principal, vid *store.ID, name string) (*store.Prompt, error) {
	var candidates []*store.Prompt
	var err error
	if vid != nil {
		comp, rerr := d.vservers.Resolve(ctx, *vid, principal)
		if rerr != nil {
			return nil, rerr
		}
		candidates = comp.Prompts
	} else {
		candidates, err = d.listAllPrompts(ctx, principal)
		if err != nil {
			return nil, err
		}
	}
	for _, p := range candidates {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, gwerr.New(gwerr.KindNotFound, "prompt %q not found", name)
}

type getPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

// handlePromptsGet runs prompt_pre_fetch, renders the template by
// substituting {{argument}} placeholders (pure, no network I/O per
// spec.md §3), then prompt_post_fetch.
func (d *Dispatcher) handlePromptsGet(ctx context.Context, sess *session.Session, principal store.Principal, vid *store.ID, params json.RawMessage) (any, error) {
	var p getPromptParams
	if err := json.Unmarshal(params, &p); err != nil || p.Name == "" {
		return nil, gwerr.New(gwerr.KindInvalid, "malformed prompts/get params")
	}

	prompt, err := d.findPrompt(ctx, principal, vid, p.Name)
	if err != nil {
		return nil, err
	}

	gatewayName, err := d.gatewayName(ctx, prompt.GatewayID)
	if err != nil {
		return nil, err
	}
	pctx := plugin.NewContext(ctx, requestIDFromContext(ctx), principal.Subject, principal.TenantID.String(), gatewayName, "")

	fetch := plugin.PromptFetch{Prompt: *prompt, Arguments: p.Arguments}
	fetch, violation, err := d.plugins.RunPromptPreFetch(pctx, fetch)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "prompt_pre_fetch failed")
	}
	if violation != nil {
		return nil, gwerr.Violation(gwerr.PluginDetail{Plugin: violation.Plugin, Code: violation.Code, Reason: violation.Reason, Description: violation.Description})
	}

	rendered, err := template.Render(fetch.Prompt.Template, fetch.Arguments)
	if err != nil {
		return nil, err
	}

	fetch.Result = nil
	_, violation, err = d.plugins.RunPromptPostFetch(pctx, fetch)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "prompt_post_fetch failed")
	}
	if violation != nil {
		return nil, gwerr.Violation(gwerr.PluginDetail{Plugin: violation.Plugin, Code: violation.Code, Reason: violation.Reason, Description: violation.Description})
	}

	return map[string]any{
		"description": prompt.Name,
		"messages": []map[string]any{
			{"role": "user", "content": map[string]any{"type": "text", "text": rendered}},
		},
	}, nil
}
