package upstream

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"mcpgateway/internal/store"
	"mcpgateway/pkg/gwerr"
)

// entry is everything the Pool tracks per upstream Gateway: its live
// client connection, a concurrency limiter (the teacher has no analogous
// per-server cap — aggregator fan-out is unbounded — but a gateway
// fronting many tenants needs one per spec.md §7), and a circuit breaker.
type entry struct {
	mu       sync.Mutex
	client   Client
	sem      *semaphore.Weighted
	breaker  *CircuitBreaker
	gateway  *store.Gateway
}

// Pool owns one upstream connection per Gateway, lazily dialed and reused
// across calls, generalizing the teacher's one-client-per-registered-server
// aggregator.ServerRegistry into a pool keyed by store.ID instead of by
// static config-file entry.
type Pool struct {
	mu            sync.RWMutex
	entries       map[store.ID]*entry
	maxConcurrent int64
	maxRetries    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func NewPool(maxConcurrent int, maxRetries int, initialBackoff, maxBackoff time.Duration) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	if initialBackoff <= 0 {
		initialBackoff = time.Second
	}
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	return &Pool{
		entries:        make(map[store.ID]*entry),
		maxConcurrent:  int64(maxConcurrent),
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
	}
}

func (p *Pool) entryFor(g *store.Gateway) *entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[g.ID]
	if !ok {
		e = &entry{
			sem:     semaphore.NewWeighted(p.maxConcurrent),
			breaker: NewCircuitBreaker(5, 30*time.Second),
			gateway: g,
		}
		p.entries[g.ID] = e
	}
	return e
}

// Acquire returns a connected Client for g, dialing it if necessary. The
// caller must call Release when done so other callers waiting on the
// per-gateway semaphore can proceed.
func (p *Pool) Acquire(ctx context.Context, g *store.Gateway) (Client, func(), error) {
	e := p.entryFor(g)

	if !e.breaker.Allow() {
		return nil, func() {}, gwerr.New(gwerr.KindUnavailable, "gateway %s: circuit breaker open", g.Name)
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, func() {}, gwerr.Wrap(gwerr.KindTimeout, err, "gateway %s: concurrency limit", g.Name)
	}
	release := func() { e.sem.Release(1) }

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		if err := e.client.Ping(ctx); err == nil {
			return e.client, release, nil
		}
		e.client.Close()
		e.client = nil
	}

	client, err := NewClient(g)
	if err != nil {
		release()
		return nil, func() {}, gwerr.Wrap(gwerr.KindInvalid, err, "building client for gateway %s", g.Name)
	}
	if err := client.Initialize(ctx); err != nil {
		e.breaker.RecordFailure()
		release()
		return nil, func() {}, gwerr.Wrap(gwerr.KindUnavailable, err, "connecting to gateway %s", g.Name)
	}

	e.client = client
	e.breaker.RecordSuccess()
	return client, release, nil
}

// Invalidate drops the cached connection for g, forcing the next Acquire
// to redial.
func (p *Pool) Invalidate(g *store.Gateway) {
	p.mu.RLock()
	e, ok := p.entries[g.ID]
	p.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		e.client.Close()
		e.client = nil
	}
}

// Call runs fn against g's client, retrying transient failures with full
// jitter exponential backoff (computeBackoff) and recording each outcome
// against the per-gateway circuit breaker. fn should return a
// gwerr-wrapped error so retriable-vs-terminal can be judged by Kind.
func (p *Pool) Call(ctx context.Context, g *store.Gateway, fn func(ctx context.Context, c Client) error) error {
	e := p.entryFor(g)
	var lastErr error

	for attempt := 1; attempt <= maxAttempts(p.maxRetries); attempt++ {
		client, release, err := p.Acquire(ctx, g)
		if err != nil {
			lastErr = err
			if !retriable(err) {
				return err
			}
		} else {
			err = fn(ctx, client)
			release()
			if err == nil {
				e.breaker.RecordSuccess()
				return nil
			}
			lastErr = err
			e.breaker.RecordFailure()
			if !retriable(err) {
				return err
			}
		}

		if attempt == maxAttempts(p.maxRetries) {
			break
		}
		wait := computeBackoff(attempt, p.initialBackoff, p.maxBackoff)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func maxAttempts(maxRetries int) int {
	if maxRetries <= 0 {
		return 1
	}
	return maxRetries + 1
}

func retriable(err error) bool {
	var gerr *gwerr.Error
	if errors.As(err, &gerr) {
		switch gerr.Kind {
		case gwerr.KindUnavailable, gwerr.KindTimeout:
			return true
		default:
			return false
		}
	}
	return true
}

// CloseAll closes every cached connection.
func (p *Pool) CloseAll() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.entries {
		e.mu.Lock()
		if e.client != nil {
			e.client.Close()
			e.client = nil
		}
		e.mu.Unlock()
	}
}
