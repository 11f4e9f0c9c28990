// Package vserver implements Virtual Server composition and resolution
// (spec.md §3/§4.9, component C9): a named subset of tools/resources/prompts
// drawn from one or more upstream Gateways, exposed to clients as a single
// MCP surface. It generalizes the teacher's aggregator.NameTracker
// (bidirectional exposed-name <-> (server, name) mapping) and
// ServerRegistry capability-caching pattern from internal/aggregator, now
// indexed by virtual-server id instead of a single global prefix.
package vserver

import (
	"context"
	"time"

	"mcpgateway/internal/store"
	"mcpgateway/pkg/gwerr"
	"mcpgateway/pkg/logging"
)

const logSubsystem = "vserver"

// Composition is a virtual server's associated entities, hydrated from ids
// into full records, ready to serve tools/list, resources/list, prompts/list.
type Composition struct {
	Server    *store.VirtualServer
	Tools     []*store.Tool
	Resources []*store.Resource
	Prompts   []*store.Prompt
}

// Resolver hydrates virtual server associations and keeps the association
// lists in the store pruned as backing entities are removed.
type Resolver struct {
	servers   *store.VirtualServerStore
	tools     *store.ToolStore
	resources *store.ResourceStore
	prompts   *store.PromptStore
}

func NewResolver(servers *store.VirtualServerStore, tools *store.ToolStore, resources *store.ResourceStore, prompts *store.PromptStore) *Resolver {
	return &Resolver{servers: servers, tools: tools, resources: resources, prompts: prompts}
}

// Resolve loads a virtual server and hydrates its (already self-healed,
// per VirtualServerStore.GetByID) association ids into full entities.
// Entities that vanish between the store's existence check and this
// hydration (a narrow race) are silently skipped rather than failing the
// whole resolution, matching spec.md §4.9's "best effort" framing.
func (r *Resolver) Resolve(ctx context.Context, id store.ID, principal store.Principal) (*Composition, error) {
	v, err := r.servers.GetByID(ctx, id, principal)
	if err != nil {
		return nil, err
	}
	c := &Composition{Server: v}
	for _, tid := range v.AssociatedTools {
		t, err := r.tools.GetByID(ctx, tid, principal)
		if err != nil {
			continue
		}
		c.Tools = append(c.Tools, t)
	}
	for _, rid := range v.AssociatedResources {
		res, err := r.resources.GetByID(ctx, rid, principal)
		if err != nil {
			continue
		}
		c.Resources = append(c.Resources, res)
	}
	for _, pid := range v.AssociatedPrompts {
		p, err := r.prompts.GetByID(ctx, pid, principal)
		if err != nil {
			continue
		}
		c.Prompts = append(c.Prompts, p)
	}
	return c, nil
}

// ResolveTool finds one associated tool by name within a virtual server,
// for tools/call dispatch (spec.md §4.4 step 2 "resolve against the virtual
// server's associated tool set").
func (r *Resolver) ResolveTool(ctx context.Context, id store.ID, principal store.Principal, name string) (*store.Tool, error) {
	c, err := r.Resolve(ctx, id, principal)
	if err != nil {
		return nil, err
	}
	for _, t := range c.Tools {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, gwerr.New(gwerr.KindNotFound, "tool %q not associated with virtual server %s", name, id)
}

// Sweeper periodically re-persists the self-healed association lists
// GetByID already computes on demand, so a virtual server whose backing
// tool/resource/prompt is deleted eventually has its stored association list
// shrink even without being read (spec.md §4.9 "pruned ... in a periodic
// sweep", admin-observable via virtual_servers.version incrementing).
type Sweeper struct {
	servers  *store.VirtualServerStore
	interval time.Duration
}

func NewSweeper(servers *store.VirtualServerStore, interval time.Duration) *Sweeper {
	return &Sweeper{servers: servers, interval: interval}
}

// Run blocks, sweeping every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	admin := store.Principal{IsAdmin: true}
	page := store.Page{Limit: 200}
	for {
		servers, err := s.servers.List(ctx, admin, page)
		if err != nil {
			logging.Error(logSubsystem, err, "sweep: listing virtual servers")
			return
		}
		if len(servers) == 0 {
			return
		}
		for _, v := range servers {
			// GetByID already applies the self-healing filter; persist its
			// result back so the prune survives without a client read.
			healed, err := s.servers.GetByID(ctx, v.ID, admin)
			if err != nil {
				continue
			}
			if err := s.servers.PersistPrunedAssociations(ctx, v.ID, healed.AssociatedTools, healed.AssociatedResources, healed.AssociatedPrompts); err != nil {
				logging.Error(logSubsystem, err, "sweep: persisting pruned associations for %s", v.ID)
			}
		}
		if len(servers) < page.Limit {
			return
		}
		page.Offset += page.Limit
	}
}
