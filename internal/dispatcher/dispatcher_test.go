package dispatcher

import (
	"context"
	"encoding/json"
	"testing"

	"mcpgateway/internal/session"
	"mcpgateway/internal/store"
)

func newTestDispatcher() *Dispatcher {
	sessions := session.NewMemoryBackend(10, 0)
	return New(nil, sessions, nil, nil, nil, nil, nil, nil, nil, nil)
}

func TestDispatcherInitializeCreatesSession(t *testing.T) {
	d := newTestDispatcher()
	req := requestFor(t, 1, "initialize", map[string]any{"capabilities": map[string]any{"elicitation": map[string]any{}}})

	resp := d.Handle(context.Background(), "sess-1", store.Principal{}, nil, nil, req)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var result map[string]any
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if result["protocolVersion"] != "2025-06-18" {
		t.Fatalf("protocolVersion = %v", result["protocolVersion"])
	}
}

func TestDispatcherPingRequiresExistingSession(t *testing.T) {
	d := newTestDispatcher()
	req := requestFor(t, 2, "ping", nil)

	resp := d.Handle(context.Background(), "missing-session", store.Principal{}, nil, nil, req)
	if resp.Error == nil {
		t.Fatal("expected an error for ping on a session that was never initialized")
	}
}

func TestDispatcherUnknownMethodReturnsError(t *testing.T) {
	d := newTestDispatcher()
	initReq := requestFor(t, 1, "initialize", nil)
	d.Handle(context.Background(), "sess-2", store.Principal{}, nil, nil, initReq)

	req := requestFor(t, 3, "not/a_method", nil)
	resp := d.Handle(context.Background(), "sess-2", store.Principal{}, nil, nil, req)
	if resp.Error == nil {
		t.Fatal("expected an error for an unknown method")
	}
}

func TestDispatcherElicitationRequiresCapability(t *testing.T) {
	d := newTestDispatcher()
	initReq := requestFor(t, 1, "initialize", nil) // no elicitation capability advertised
	d.Handle(context.Background(), "sess-3", store.Principal{}, nil, nil, initReq)

	req := requestFor(t, 4, "elicitation/create", nil)
	resp := d.Handle(context.Background(), "sess-3", store.Principal{}, nil, nil, req)
	if resp.Error == nil {
		t.Fatal("expected CapabilityMissing error")
	}
	if resp.Error.Code != -32601 {
		t.Fatalf("resp.Error.Code = %d, want -32601", resp.Error.Code)
	}
}

func TestDispatcherNotificationProducesNoResponse(t *testing.T) {
	d := newTestDispatcher()
	req := requestForNotification(t, "notifications/initialized", nil)
	resp := d.Handle(context.Background(), "sess-4", store.Principal{}, nil, nil, req)
	if resp.JSONRPC != "" {
		t.Fatalf("notification must produce a zero-value response, got %+v", resp)
	}
}

func TestDispatcherIDEchoedOnError(t *testing.T) {
	d := newTestDispatcher()
	req := requestFor(t, 42, "ping", nil)
	resp := d.Handle(context.Background(), "never-initialized", store.Principal{}, nil, nil, req)
	if resp.ID.String() != "42" {
		t.Fatalf("resp.ID = %s, want 42", resp.ID.String())
	}
}
