package vserver

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mcpgateway/internal/store"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open("sqlite://"+path, 5, 5, 5*time.Second, time.Hour)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func adminPrincipal() store.Principal { return store.Principal{IsAdmin: true} }

func TestResolveHydratesAssociatedEntities(t *testing.T) {
	db := newTestDB(t)
	tools := store.NewToolStore(db)
	resources := store.NewResourceStore(db)
	prompts := store.NewPromptStore(db)
	servers := store.NewVirtualServerStore(db)
	ctx := context.Background()

	tool := &store.Tool{Name: "search", IntegrationType: store.IntegrationMCP, MCPMethod: "tools/call", Visibility: store.VisibilityPublic}
	if err := tools.Create(ctx, tool); err != nil {
		t.Fatalf("create tool: %v", err)
	}
	res := &store.Resource{URI: "file:///readme.md", Visibility: store.VisibilityPublic}
	if err := resources.Create(ctx, res); err != nil {
		t.Fatalf("create resource: %v", err)
	}
	prompt := &store.Prompt{Name: "greet", Template: "hello {{.name}}", Visibility: store.VisibilityPublic}
	if err := prompts.Create(ctx, prompt); err != nil {
		t.Fatalf("create prompt: %v", err)
	}

	v := &store.VirtualServer{
		Name:                "support-bundle",
		AssociatedTools:     []store.ID{tool.ID},
		AssociatedResources: []store.ID{res.ID},
		AssociatedPrompts:   []store.ID{prompt.ID},
		Visibility:          store.VisibilityPublic,
	}
	if err := servers.Create(ctx, v); err != nil {
		t.Fatalf("create virtual server: %v", err)
	}

	r := NewResolver(servers, tools, resources, prompts)
	c, err := r.Resolve(ctx, v.ID, adminPrincipal())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(c.Tools) != 1 || c.Tools[0].Name != "search" {
		t.Fatalf("expected hydrated tool %q, got %+v", "search", c.Tools)
	}
	if len(c.Resources) != 1 || c.Resources[0].URI != "file:///readme.md" {
		t.Fatalf("expected hydrated resource, got %+v", c.Resources)
	}
	if len(c.Prompts) != 1 || c.Prompts[0].Name != "greet" {
		t.Fatalf("expected hydrated prompt, got %+v", c.Prompts)
	}

	resolved, err := r.ResolveTool(ctx, v.ID, adminPrincipal(), "search")
	if err != nil {
		t.Fatalf("ResolveTool: %v", err)
	}
	if resolved.ID != tool.ID {
		t.Fatalf("ResolveTool returned wrong tool: %+v", resolved)
	}

	if _, err := r.ResolveTool(ctx, v.ID, adminPrincipal(), "missing"); err == nil {
		t.Fatal("expected error resolving unassociated tool name")
	}
}

func TestSweeperPersistsPrunedAssociations(t *testing.T) {
	db := newTestDB(t)
	tools := store.NewToolStore(db)
	servers := store.NewVirtualServerStore(db)
	ctx := context.Background()

	tool := &store.Tool{Name: "doomed", IntegrationType: store.IntegrationMCP, MCPMethod: "tools/call", Visibility: store.VisibilityPublic}
	if err := tools.Create(ctx, tool); err != nil {
		t.Fatalf("create tool: %v", err)
	}
	v := &store.VirtualServer{Name: "shrinking", AssociatedTools: []store.ID{tool.ID}, Visibility: store.VisibilityPublic}
	if err := servers.Create(ctx, v); err != nil {
		t.Fatalf("create virtual server: %v", err)
	}
	if err := tools.Delete(ctx, tool.ID, adminPrincipal()); err != nil {
		t.Fatalf("delete tool: %v", err)
	}

	sweeper := NewSweeper(servers, time.Hour)
	sweeper.sweepOnce(ctx)

	row := db.QueryRowContext(ctx, `SELECT associated_tools, version FROM virtual_servers WHERE id = ?`, v.ID)
	var assoc string
	var version int64
	if err := row.Scan(&assoc, &version); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if assoc != "" {
		t.Fatalf("expected associations pruned, got %q", assoc)
	}
	if version != 2 {
		t.Fatalf("expected version bumped by sweep, got %d", version)
	}
}
