package upstream

import (
	"math/rand"
	"time"
)

// computeBackoff is the teacher's reconciler.Manager.calculateBackoff
// formula (initial * 2^(attempt-1), capped at max) extended with full
// jitter, since a shared gateway process retrying many upstream calls at
// once must not retry in lockstep the way a single reconciler loop can
// tolerate.
func computeBackoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := initial * time.Duration(uint64(1)<<uint(attempt-1))
	if backoff <= 0 || backoff > max {
		backoff = max
	}
	return time.Duration(rand.Int63n(int64(backoff) + 1))
}
