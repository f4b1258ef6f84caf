// Package breaker implements the circuit-breaker state machine used by
// the Scheduler (global scope) and ExecutionEngine (symbol scope). The
// provider scope is defined in pkg/types, but the AdvisorGateway does not
// use a Breaker: it relies on per-key cooldowns only.
package breaker

import (
	"sync"
	"time"

	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
)

const historySize = 32

// Breaker guards one scope (a single global instance, or one per
// provider/symbol key) behind a consecutive-failure counter and a
// cooldown window.
type Breaker struct {
	scope   types.BreakerScope
	key     string
	maxFail int
	cooldown time.Duration

	mu                  sync.Mutex
	tripped             bool
	tripExpiry          time.Time
	consecutiveFailures int
	failureTimestamps   []time.Time
}

// New creates a breaker for the given scope/key that trips after maxFail
// consecutive failures and stays tripped for cooldown.
func New(scope types.BreakerScope, key string, maxFail int, cooldown time.Duration) *Breaker {
	return &Breaker{
		scope:    scope,
		key:      key,
		maxFail:  maxFail,
		cooldown: cooldown,
	}
}

// Allow reports whether a call may proceed at instant now. A tripped
// breaker auto-resets once now has passed tripExpiry.
func (b *Breaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tripped && !now.Before(b.tripExpiry) {
		b.tripped = false
		b.consecutiveFailures = 0
	}
	return !b.tripped
}

// RecordSuccess resets the consecutive-failure counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
}

// RecordFailure records a failure at instant now and trips the breaker if
// maxFail consecutive failures have accumulated. Returns true if this call
// caused the trip.
func (b *Breaker) RecordFailure(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	b.failureTimestamps = append(b.failureTimestamps, now)
	if len(b.failureTimestamps) > historySize {
		b.failureTimestamps = b.failureTimestamps[len(b.failureTimestamps)-historySize:]
	}

	if b.consecutiveFailures >= b.maxFail && !b.tripped {
		b.tripped = true
		b.tripExpiry = now.Add(b.cooldown)
		return true
	}
	return false
}

// Trip forces the breaker open for cooldown, regardless of the failure
// counter (used by the Scheduler's global breaker on a burst of broker
// errors within a single tick).
func (b *Breaker) Trip(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tripped = true
	b.tripExpiry = now.Add(b.cooldown)
}

// State returns a snapshot suitable for status reporting.
func (b *Breaker) State() types.CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	timestamps := make([]time.Time, len(b.failureTimestamps))
	copy(timestamps, b.failureTimestamps)

	return types.CircuitBreakerState{
		Scope:               b.scope,
		Key:                 b.key,
		Tripped:             b.tripped,
		TripExpiry:          b.tripExpiry,
		ConsecutiveFailures: b.consecutiveFailures,
		FailureTimestamps:   timestamps,
	}
}

// Registry owns a set of per-key breakers within one scope, e.g. one per
// symbol or one per provider. Reads and writes are short and guarded by a
// single registry-wide mutex, per the concurrency model.
type Registry struct {
	scope    types.BreakerScope
	maxFail  int
	cooldown time.Duration

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates an empty per-key breaker registry.
func NewRegistry(scope types.BreakerScope, maxFail int, cooldown time.Duration) *Registry {
	return &Registry{
		scope:    scope,
		maxFail:  maxFail,
		cooldown: cooldown,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for key, creating it on first use.
func (r *Registry) Get(key string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[key]
	if !ok {
		b = New(r.scope, key, r.maxFail, r.cooldown)
		r.breakers[key] = b
	}
	return b
}

// States returns a snapshot of every breaker currently tracked.
func (r *Registry) States() []types.CircuitBreakerState {
	r.mu.Lock()
	keys := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		keys = append(keys, b)
	}
	r.mu.Unlock()

	states := make([]types.CircuitBreakerState, 0, len(keys))
	for _, b := range keys {
		states = append(states, b.State())
	}
	return states
}
