// Package guard holds the pre-call checks that sit in front of payment
// initiation and provider calls: rate limits, in-flight idempotency keys and
// per-gateway circuit breakers.
package guard

import (
	"context"

	"github.com/rafflehub/platform/internal/domain"
)

// Limiter is satisfied by both the in-process and the Redis rate limiter.
type Limiter interface {
	Check(ctx context.Context, key string) domain.GuardResult
}
