package upstream

import (
	"context"
	"testing"

	"mcpgateway/internal/store"
)

func TestAuthHeadersOneTimeAuthCarriesNoStaticCredential(t *testing.T) {
	g := &store.Gateway{Name: "peer", AuthType: store.AuthBearer, AuthMaterial: "", OneTimeAuth: true}
	headers, err := authHeaders(g)
	if err != nil {
		t.Fatalf("authHeaders() error = %v, want nil for one-time-auth gateway with no stored material", err)
	}
	if len(headers) != 0 {
		t.Errorf("authHeaders() = %v, want empty for one-time-auth gateway", headers)
	}
}

func TestAuthHeadersBearerRequiresMaterialWhenNotOneTimeAuth(t *testing.T) {
	g := &store.Gateway{Name: "peer", AuthType: store.AuthBearer, AuthMaterial: ""}
	if _, err := authHeaders(g); err == nil {
		t.Fatal("authHeaders() expected error for bearer gateway with no auth_material")
	}
}

func TestMergedHeaderFuncPerCallWinsOverBase(t *testing.T) {
	fn := mergedHeaderFunc(map[string]string{"Authorization": "Bearer base", "X-Static": "1"})

	ctx := WithRequestHeaders(context.Background(), map[string]string{"Authorization": "Bearer per-call"})
	got := fn(ctx)
	if got["Authorization"] != "Bearer per-call" {
		t.Errorf("Authorization = %q, want per-call value to win", got["Authorization"])
	}
	if got["X-Static"] != "1" {
		t.Errorf("X-Static = %q, want base header preserved", got["X-Static"])
	}

	gotNoOverride := fn(context.Background())
	if gotNoOverride["Authorization"] != "Bearer base" {
		t.Errorf("Authorization = %q, want base value with no per-call headers", gotNoOverride["Authorization"])
	}
}
