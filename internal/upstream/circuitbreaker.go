package upstream

import (
	"sync"
	"time"
)

// breakerState is the three-state machine of spec.md §3's circuit breaker
// ("closed, open, half-open"). No pack example carries a circuit-breaker
// library (see DESIGN.md), so this is hand-rolled, sized to exactly the
// states and transitions the spec names.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreaker trips after a run of consecutive failures and recovers
// through a single half-open probe, the same shape as a standard
// Netflix-Hystrix-style breaker but sized down to the gateway's needs: per
// upstream Gateway, not per Tool.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            breakerState
	failureThreshold int
	resetTimeout     time.Duration
	consecutiveFails int
	openedAt         time.Time
}

func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{failureThreshold: failureThreshold, resetTimeout: resetTimeout}
}

// Allow reports whether a call may proceed, transitioning open -> half-open
// once resetTimeout has elapsed.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerClosed:
		return true
	case breakerHalfOpen:
		return true
	default: // breakerOpen
		if time.Since(b.openedAt) >= b.resetTimeout {
			b.state = breakerHalfOpen
			return true
		}
		return false
	}
}

// RecordSuccess closes the breaker; a successful half-open probe is what
// ends the open period.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed
	b.consecutiveFails = 0
}

// RecordFailure trips the breaker open once failureThreshold consecutive
// failures accumulate, or immediately re-opens it on a failed half-open
// probe.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == breakerHalfOpen {
		b.state = breakerOpen
		b.openedAt = time.Now()
		return
	}
	b.consecutiveFails++
	if b.consecutiveFails >= b.failureThreshold {
		b.state = breakerOpen
		b.openedAt = time.Now()
	}
}

func (b *CircuitBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}
