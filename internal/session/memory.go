package session

import (
	"context"
	"sync"
	"time"

	"mcpgateway/internal/store"
	"mcpgateway/pkg/gwerr"
)

// MemoryBackend is the default, single-process session registry
// (CACHE_BACKEND=memory). It is the direct generalization of the
// teacher's aggregator.SessionRegistry, which also kept sessions in an
// in-process map guarded by a single mutex.
type MemoryBackend struct {
	mu                sync.Mutex
	sessions          map[string]*Session
	maxElicitations    int
	idleTimeout        time.Duration
}

// NewMemoryBackend builds an in-process session registry. maxElicitations
// is MCPGATEWAY_ELICITATION_MAX_CONCURRENT; idleTimeout is
// SESSION_IDLE_TIMEOUT (spec.md §3 "destroyed ... on idle timeout").
func NewMemoryBackend(maxElicitations int, idleTimeout time.Duration) *MemoryBackend {
	return &MemoryBackend{
		sessions:        make(map[string]*Session),
		maxElicitations: maxElicitations,
		idleTimeout:     idleTimeout,
	}
}

func (b *MemoryBackend) Create(ctx context.Context, id string, principal store.Principal, caps map[Capability]bool, kind TransportKind) (*Session, error) {
	now := time.Now()
	s := &Session{
		ID: id, Principal: principal, Capabilities: caps, Transport: kind,
		CreatedAt: now, LastActivityAt: now,
		pendingElicitations: make(map[string]*ElicitationRequest),
	}
	b.mu.Lock()
	b.sessions[id] = s
	b.mu.Unlock()
	return s, nil
}

func (b *MemoryBackend) Get(ctx context.Context, id string) (*Session, error) {
	b.mu.Lock()
	s, ok := b.sessions[id]
	b.mu.Unlock()
	if !ok {
		return nil, gwerr.New(gwerr.KindNotFound, "session %s not found", id)
	}
	if b.idleTimeout > 0 && time.Since(s.LastActivityAt) > b.idleTimeout {
		b.mu.Lock()
		delete(b.sessions, id)
		b.mu.Unlock()
		return nil, gwerr.New(gwerr.KindNotFound, "session %s expired", id)
	}
	return s, nil
}

func (b *MemoryBackend) Touch(ctx context.Context, id string) error {
	s, err := b.Get(ctx, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.LastActivityAt = time.Now()
	s.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	delete(b.sessions, id)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) AttachPendingElicitation(ctx context.Context, sessionID, requestID string, req *ElicitationRequest) error {
	s, err := b.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pendingElicitations) >= b.maxElicitations {
		return ErrTooManyElicitations()
	}
	req.response = make(chan ElicitationResponse, 1)
	s.pendingElicitations[requestID] = req
	return nil
}

func (b *MemoryBackend) ResolveElicitation(ctx context.Context, sessionID, requestID string, resp ElicitationResponse) error {
	s, err := b.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	req, ok := s.pendingElicitations[requestID]
	if ok {
		delete(s.pendingElicitations, requestID)
	}
	s.mu.Unlock()
	if !ok {
		return gwerr.New(gwerr.KindNotFound, "no pending elicitation %s on session %s", requestID, sessionID)
	}
	req.response <- resp
	return nil
}

// AwaitElicitation blocks (O(1) wake, per spec.md §4.6) until
// ResolveElicitation delivers a response or timeout elapses.
func (b *MemoryBackend) AwaitElicitation(ctx context.Context, sessionID, requestID string, timeout time.Duration) (ElicitationResponse, error) {
	s, err := b.Get(ctx, sessionID)
	if err != nil {
		return ElicitationResponse{}, err
	}
	s.mu.Lock()
	req, ok := s.pendingElicitations[requestID]
	s.mu.Unlock()
	if !ok {
		return ElicitationResponse{}, gwerr.New(gwerr.KindNotFound, "no pending elicitation %s", requestID)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp := <-req.response:
		return resp, nil
	case <-timer.C:
		s.mu.Lock()
		delete(s.pendingElicitations, requestID)
		s.mu.Unlock()
		return ElicitationResponse{}, gwerr.New(gwerr.KindTimeout, "elicitation %s timed out", requestID)
	case <-ctx.Done():
		return ElicitationResponse{}, gwerr.Wrap(gwerr.KindTimeout, ctx.Err(), "elicitation %s cancelled", requestID)
	}
}
