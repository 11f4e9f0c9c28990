package upstream

import (
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, 30*time.Second)
	for i := 0; i < 2; i++ {
		if !cb.Allow() {
			t.Fatalf("Allow() = false before threshold reached (i=%d)", i)
		}
		cb.RecordFailure()
	}
	if cb.State() != "closed" {
		t.Fatalf("State() = %q, want closed before threshold", cb.State())
	}
	cb.RecordFailure()
	if cb.State() != "open" {
		t.Fatalf("State() = %q, want open after 3 consecutive failures", cb.State())
	}
	if cb.Allow() {
		t.Fatal("Allow() must be false immediately after tripping open")
	}
}

func TestCircuitBreakerHalfOpenAfterResetTimeout(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	cb.RecordFailure()
	if cb.State() != "open" {
		t.Fatalf("State() = %q, want open", cb.State())
	}
	time.Sleep(20 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("Allow() must return true once resetTimeout elapses")
	}
	if cb.State() != "half-open" {
		t.Fatalf("State() = %q, want half-open", cb.State())
	}
}

func TestCircuitBreakerHalfOpenSuccessCloses(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	cb.Allow()
	cb.RecordSuccess()
	if cb.State() != "closed" {
		t.Fatalf("State() = %q, want closed after successful probe", cb.State())
	}
	if !cb.Allow() {
		t.Fatal("Allow() must be true once closed")
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	cb.Allow()
	cb.RecordFailure()
	if cb.State() != "open" {
		t.Fatalf("State() = %q, want open after a failed half-open probe", cb.State())
	}
}

func TestComputeBackoffNeverExceedsMax(t *testing.T) {
	max := 8 * time.Second
	for attempt := 1; attempt <= 10; attempt++ {
		d := computeBackoff(attempt, 250*time.Millisecond, max)
		if d < 0 || d > max {
			t.Fatalf("computeBackoff(%d) = %v, want within [0, %v]", attempt, d, max)
		}
	}
}

func TestComputeBackoffGrowsWithAttempt(t *testing.T) {
	// With full jitter the value is random, but the ceiling before the cap
	// kicks in must grow monotonically; assert on repeated sampling that
	// later attempts can reach higher values than attempt 1's ceiling.
	const trials = 200
	var maxSeenAttempt1, maxSeenAttempt4 time.Duration
	for i := 0; i < trials; i++ {
		if d := computeBackoff(1, 250*time.Millisecond, 8*time.Second); d > maxSeenAttempt1 {
			maxSeenAttempt1 = d
		}
		if d := computeBackoff(4, 250*time.Millisecond, 8*time.Second); d > maxSeenAttempt4 {
			maxSeenAttempt4 = d
		}
	}
	if maxSeenAttempt4 <= maxSeenAttempt1 {
		t.Fatalf("attempt 4 ceiling (%v) should exceed attempt 1 ceiling (%v) over %d trials", maxSeenAttempt4, maxSeenAttempt1, trials)
	}
}
