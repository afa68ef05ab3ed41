package guard

import (
	"context"
	"sync"

	"github.com/rafflehub/platform/internal/domain"
)

// IdempotencyGuard rejects a second submission carrying an Idempotency-Key
// that is still in flight. Keys are released once the first call finishes,
// so durable deduplication stays with the database.
type IdempotencyGuard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewIdempotencyGuard creates a new in-memory idempotency guard.
func NewIdempotencyGuard() *IdempotencyGuard {
	return &IdempotencyGuard{
		inFlight: make(map[string]struct{}),
	}
}

// Check claims key. An empty key is always allowed.
func (ig *IdempotencyGuard) Check(_ context.Context, key string) domain.GuardResult {
	if key == "" {
		return domain.GuardResult{Allowed: true}
	}

	ig.mu.Lock()
	defer ig.mu.Unlock()

	if _, busy := ig.inFlight[key]; busy {
		return domain.GuardResult{
			Allowed: false,
			Reason:  "duplicate request: idempotency key already in flight",
			Guard:   "idempotency",
		}
	}

	ig.inFlight[key] = struct{}{}
	return domain.GuardResult{Allowed: true}
}

// Release frees a key claimed by Check.
func (ig *IdempotencyGuard) Release(key string) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	delete(ig.inFlight, key)
}
