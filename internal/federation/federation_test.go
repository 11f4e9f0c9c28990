package federation

import (
	"testing"
	"time"

	"mcpgateway/internal/store"
)

func TestExposedNameResolvesCollisionsBySuffix(t *testing.T) {
	taken := map[string]bool{"github_search": true}
	gatewayID := store.NewID()

	name := exposedName("github", "search", "_", gatewayID, taken)
	if name == "github_search" {
		t.Fatalf("expected collision suffix, got %q", name)
	}
	if len(name) <= len("github_search") {
		t.Fatalf("expected suffixed name longer than collided candidate, got %q", name)
	}
}

func TestExposedNameNoCollision(t *testing.T) {
	name := exposedName("github", "search", "_", store.NewID(), map[string]bool{})
	if name != "github_search" {
		t.Fatalf("expected github_search, got %q", name)
	}
}

func TestRemoteNameFromExposedStripsPrefix(t *testing.T) {
	got := remoteNameFromExposed("github_search", "github", "_")
	if got != "search" {
		t.Fatalf("expected %q, got %q", "search", got)
	}
}

func TestPeerSlugFallsBackToGatewayID(t *testing.T) {
	g := &store.Gateway{ID: store.NewID()}
	slug := peerSlug(g)
	if slug == "" {
		t.Fatal("expected non-empty slug")
	}
	if len(slug) != 8 {
		t.Fatalf("expected 8-hex fallback slug, got %q", slug)
	}
}

func TestComputeFederationBackoffDoublesAndCaps(t *testing.T) {
	if computeFederationBackoff(0) != 2*time.Second {
		t.Fatalf("expected initial backoff, got %v", computeFederationBackoff(0))
	}
	if d := computeFederationBackoff(20); d > 2*time.Minute {
		t.Fatalf("expected backoff capped at 2m, got %v", d)
	}
}

func TestDelayedQueueFiresAfterBackoff(t *testing.T) {
	q := newDelayedQueue()
	id := store.NewID()
	q.push(id, 0)

	select {
	case item := <-q.ready():
		if item.gatewayID != id {
			t.Fatalf("expected gateway id %s, got %s", id, item.gatewayID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delayed queue item")
	}
}
