package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rafflehub/platform/internal/domain"
)

// ErrCircuitOpen is returned by Execute when the circuit rejects the call.
var ErrCircuitOpen = errors.New("circuit open")

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker tracks consecutive provider failures per key (one key per
// gateway) and short-circuits calls while a provider is failing.
type CircuitBreaker struct {
	mu            sync.Mutex
	circuits      map[string]*circuit
	failThreshold int
	resetTimeout  time.Duration
	halfOpenMax   int
	now           func() time.Time
}

type circuit struct {
	state       CircuitState
	failures    int
	probes      int
	lastFailure time.Time
}

// NewCircuitBreaker creates a circuit breaker with configurable thresholds.
func NewCircuitBreaker(failThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		circuits:      make(map[string]*circuit),
		failThreshold: failThreshold,
		resetTimeout:  resetTimeout,
		halfOpenMax:   1,
		now:           time.Now,
	}
}

func (cb *CircuitBreaker) get(key string) *circuit {
	c, ok := cb.circuits[key]
	if !ok {
		c = &circuit{state: CircuitClosed}
		cb.circuits[key] = c
	}
	return c
}

// Check returns whether the circuit for the given key allows a request.
func (cb *CircuitBreaker) Check(_ context.Context, key string) domain.GuardResult {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(key)
	switch c.state {
	case CircuitOpen:
		elapsed := cb.now().Sub(c.lastFailure)
		if elapsed > cb.resetTimeout {
			c.state = CircuitHalfOpen
			c.probes = 1
			return domain.GuardResult{Allowed: true}
		}
		return domain.GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("circuit open for %s, resets in %s", key, (cb.resetTimeout - elapsed).Round(time.Second)),
			Guard:   "circuit_breaker",
		}
	case CircuitHalfOpen:
		if c.probes >= cb.halfOpenMax {
			return domain.GuardResult{
				Allowed: false,
				Reason:  "circuit half-open, max probes reached",
				Guard:   "circuit_breaker",
			}
		}
		c.probes++
		return domain.GuardResult{Allowed: true}
	default:
		return domain.GuardResult{Allowed: true}
	}
}

// RecordSuccess closes the circuit for key.
func (cb *CircuitBreaker) RecordSuccess(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(key)
	c.state = CircuitClosed
	c.failures = 0
	c.probes = 0
}

// RecordFailure counts a failure; a failed half-open probe reopens at once.
func (cb *CircuitBreaker) RecordFailure(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(key)
	c.failures++
	c.lastFailure = cb.now()
	if c.state == CircuitHalfOpen || c.failures >= cb.failThreshold {
		c.state = CircuitOpen
		c.probes = 0
	}
}

// State reports the current state for key.
func (cb *CircuitBreaker) State(key string) CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if c, ok := cb.circuits[key]; ok {
		return c.state
	}
	return CircuitClosed
}

// Execute runs fn if the circuit allows it and records the outcome.
// Errors for which countable returns false (declines, validation) do not
// trip the breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, key string, countable func(error) bool, fn func() error) error {
	if res := cb.Check(ctx, key); !res.Allowed {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, res.Reason)
	}
	err := fn()
	if err != nil && (countable == nil || countable(err)) {
		cb.RecordFailure(key)
		return err
	}
	cb.RecordSuccess(key)
	return err
}
