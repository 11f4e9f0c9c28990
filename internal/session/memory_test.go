package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpgateway/internal/store"
)

func TestMemoryBackendCreateGetDelete(t *testing.T) {
	b := NewMemoryBackend(10, time.Minute)
	ctx := context.Background()

	s, err := b.Create(ctx, "sess-1", store.Principal{Subject: "alice"}, map[Capability]bool{CapabilityElicitation: true}, TransportSSE)
	require.NoError(t, err)
	assert.True(t, s.HasCapability(CapabilityElicitation))

	got, err := b.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got.ID)

	require.NoError(t, b.Delete(ctx, "sess-1"))
	_, err = b.Get(ctx, "sess-1")
	assert.Error(t, err)
}

func TestMemoryBackendIdleTimeout(t *testing.T) {
	b := NewMemoryBackend(10, 10*time.Millisecond)
	ctx := context.Background()
	_, err := b.Create(ctx, "sess-2", store.Principal{}, nil, TransportWebSocket)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, err = b.Get(ctx, "sess-2")
	assert.Error(t, err)
}

func TestMemoryBackendElicitationRoundTrip(t *testing.T) {
	b := NewMemoryBackend(2, time.Minute)
	ctx := context.Background()
	_, err := b.Create(ctx, "sess-3", store.Principal{}, nil, TransportStreamableHTTP)
	require.NoError(t, err)

	req := &ElicitationRequest{Message: "confirm?", Timeout: time.Second}
	require.NoError(t, b.AttachPendingElicitation(ctx, "sess-3", "req-1", req))

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = b.ResolveElicitation(ctx, "sess-3", "req-1", ElicitationResponse{Action: "accept", Data: map[string]any{"confirm_deletion": true}})
	}()

	resp, err := b.AwaitElicitation(ctx, "sess-3", "req-1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "accept", resp.Action)
}

func TestMemoryBackendTooManyElicitations(t *testing.T) {
	b := NewMemoryBackend(1, time.Minute)
	ctx := context.Background()
	_, err := b.Create(ctx, "sess-4", store.Principal{}, nil, TransportStdio)
	require.NoError(t, err)

	require.NoError(t, b.AttachPendingElicitation(ctx, "sess-4", "r1", &ElicitationRequest{Timeout: time.Second}))
	err = b.AttachPendingElicitation(ctx, "sess-4", "r2", &ElicitationRequest{Timeout: time.Second})
	assert.Error(t, err)
}
