package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open("sqlite://"+path, 5, 5, 5*time.Second, time.Hour)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func adminPrincipal() Principal { return Principal{IsAdmin: true} }

func TestGatewayCreateEnforcesNameUniqueness(t *testing.T) {
	db := newTestDB(t)
	gs := NewGatewayStore(db)
	tenant := NewID()

	g1 := &Gateway{TenantID: tenant, Name: "github", URL: "https://github.example", Transport: TransportSSE, AuthType: AuthNone, Enabled: true, Visibility: VisibilityPublic}
	if err := gs.Create(context.Background(), g1); err != nil {
		t.Fatalf("first create: %v", err)
	}

	g2 := &Gateway{TenantID: tenant, Name: "github", URL: "https://other.example", Transport: TransportSSE, AuthType: AuthNone, Visibility: VisibilityPublic}
	err := gs.Create(context.Background(), g2)
	if err == nil {
		t.Fatal("expected conflict on duplicate (tenant, name)")
	}
}

func TestOneTimeAuthNeverPersistsCredential(t *testing.T) {
	db := newTestDB(t)
	gs := NewGatewayStore(db)
	tenant := NewID()

	g := &Gateway{
		TenantID: tenant, Name: "onetime", URL: "https://upstream.example",
		Transport: TransportStreamableHTTP, AuthType: AuthBearer, AuthMaterial: "s3cret",
		OneTimeAuth: true, HealthChecksEnabled: true, Visibility: VisibilityPublic,
	}
	if err := gs.Create(context.Background(), g); err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.AuthMaterial != "" {
		t.Errorf("AuthMaterial should be cleared in-memory after Create, got %q", g.AuthMaterial)
	}

	fetched, err := gs.GetByID(context.Background(), g.ID, adminPrincipal())
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched.AuthMaterial != "" {
		t.Errorf("fetched gateway exposed auth_material: %q", fetched.AuthMaterial)
	}
	if fetched.HealthChecksEnabled {
		t.Errorf("one-time-auth gateway must have health_checks_enabled=false")
	}
}

func TestGetForConnectionReturnsCredentialGetByIDRedacts(t *testing.T) {
	db := newTestDB(t)
	gs := NewGatewayStore(db)
	tenant := NewID()

	g := &Gateway{
		TenantID: tenant, Name: "bearer-backed", URL: "https://upstream.example",
		Transport: TransportStreamableHTTP, AuthType: AuthBearer, AuthMaterial: "s3cret",
		Visibility: VisibilityPublic,
	}
	if err := gs.Create(context.Background(), g); err != nil {
		t.Fatalf("create: %v", err)
	}

	redacted, err := gs.GetByID(context.Background(), g.ID, adminPrincipal())
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if redacted.AuthMaterial != "" {
		t.Errorf("GetByID must never return auth_material, got %q", redacted.AuthMaterial)
	}

	withCreds, err := gs.GetForConnection(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("GetForConnection: %v", err)
	}
	if withCreds.AuthMaterial != "s3cret" {
		t.Errorf("GetForConnection AuthMaterial = %q, want s3cret", withCreds.AuthMaterial)
	}
}

func TestGatewayDeleteCascadesToolsAndPrunesVirtualServer(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	gs := NewGatewayStore(db)
	ts := NewToolStore(db)
	vs := NewVirtualServerStore(db)
	tenant := NewID()
	team := NewID()

	g := &Gateway{TenantID: tenant, Name: "peer1", URL: "https://peer1.example", Transport: TransportSSE, AuthType: AuthNone, Visibility: VisibilityPublic}
	if err := gs.Create(ctx, g); err != nil {
		t.Fatalf("create gateway: %v", err)
	}

	tool := &Tool{GatewayID: g.ID, Name: "peer1-a", IntegrationType: IntegrationMCP, MCPMethod: "a", OwnerTeamID: team, Visibility: VisibilityPublic, Enabled: true}
	if err := ts.Create(ctx, tool); err != nil {
		t.Fatalf("create tool: %v", err)
	}

	vserver := &VirtualServer{Name: "v1", AssociatedTools: []ID{tool.ID}, OwnerTeamID: team, Visibility: VisibilityPublic}
	if err := vs.Create(ctx, vserver); err != nil {
		t.Fatalf("create virtual server: %v", err)
	}

	if err := gs.Delete(ctx, g.ID, adminPrincipal()); err != nil {
		t.Fatalf("delete gateway: %v", err)
	}

	if _, err := ts.GetByID(ctx, tool.ID, adminPrincipal()); err == nil {
		t.Error("expected tool to be cascade-deleted with its gateway")
	}

	got, err := vs.GetByID(ctx, vserver.ID, adminPrincipal())
	if err != nil {
		t.Fatalf("GetByID virtual server: %v", err)
	}
	if len(got.AssociatedTools) != 0 {
		t.Errorf("expected virtual server association pruned, got %v", got.AssociatedTools)
	}
}

func TestToolNamePatternValidation(t *testing.T) {
	db := newTestDB(t)
	ts := NewToolStore(db)
	bad := &Tool{Name: "bad name!", IntegrationType: IntegrationMCP, MCPMethod: "x", Visibility: VisibilityPublic}
	if err := ts.Create(context.Background(), bad); err == nil {
		t.Fatal("expected validation error for bad tool name")
	}
}

func TestRESTToolRequiresURL(t *testing.T) {
	db := newTestDB(t)
	ts := NewToolStore(db)
	tool := &Tool{Name: "rest_tool", IntegrationType: IntegrationREST, Visibility: VisibilityPublic}
	if err := ts.Create(context.Background(), tool); err == nil {
		t.Fatal("expected validation error for REST tool without URL")
	}
}

func TestUpdateStaleVersionRejected(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	gs := NewGatewayStore(db)
	tenant := NewID()
	g := &Gateway{TenantID: tenant, Name: "g1", URL: "https://g1.example", Transport: TransportSSE, AuthType: AuthNone, Visibility: VisibilityPublic}
	if err := gs.Create(ctx, g); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := gs.Update(ctx, g.ID, g.Version+1, func(g *Gateway) { g.Enabled = false }, adminPrincipal())
	if err == nil {
		t.Fatal("expected Stale error for wrong expected version")
	}
}

func TestVirtualServerRejectsAssociationToMissingTool(t *testing.T) {
	db := newTestDB(t)
	vs := NewVirtualServerStore(db)
	v := &VirtualServer{Name: "dangling", AssociatedTools: []ID{NewID()}, Visibility: VisibilityPublic}
	if err := vs.Create(context.Background(), v); err == nil {
		t.Fatal("expected error for association to non-existent tool")
	}
}

func TestListPageNormalization(t *testing.T) {
	p := Page{Limit: 10000, Offset: -5}.Normalize()
	if p.Limit != 500 {
		t.Errorf("Limit = %d, want clamped to 500", p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("Offset = %d, want clamped to 0", p.Offset)
	}
}
