package errors

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a call is rejected because the breaker
// tripped and the reset timeout has not elapsed yet.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker state.
type State int

const (
	// StateClosed admits all calls.
	StateClosed State = iota
	// StateOpen rejects all calls until the reset timeout elapses.
	StateOpen
	// StateHalfOpen admits probe calls to test whether the backend recovered.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreaker fails fast against a backend that keeps erroring, so one
// broken modality store cannot stall every fused query until its timeout.
// After maxFailures consecutive errors the breaker opens; once resetTimeout
// passes, the next call runs as a probe and either closes or re-opens it.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu       sync.RWMutex
	state    State
	failures int
	openedAt time.Time
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithMaxFailures sets how many consecutive failures trip the breaker.
func WithMaxFailures(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.maxFailures = n }
}

// WithResetTimeout sets how long the breaker stays open before probing.
func WithResetTimeout(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.resetTimeout = d }
}

// NewCircuitBreaker returns a closed breaker. Defaults: 5 failures trip it,
// probing resumes after 30 seconds.
func NewCircuitBreaker(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         name,
		maxFailures:  5,
		resetTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Name returns the breaker name, typically the modality it fronts.
func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the effective state, accounting for reset-timeout expiry.
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.effectiveState()
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}

// Allow reports whether a call should be admitted right now.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.effectiveState() != StateOpen
}

// effectiveState folds the reset timeout into the stored state.
// Callers must hold at least the read lock.
func (cb *CircuitBreaker) effectiveState() State {
	if cb.state == StateOpen && time.Since(cb.openedAt) > cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// RecordSuccess closes the breaker and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = StateClosed
}

// RecordFailure counts a failure and trips the breaker when the threshold
// is reached.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.failures >= cb.maxFailures {
		cb.state = StateOpen
		cb.openedAt = time.Now()
	}
}

// Execute runs fn under the breaker. An open breaker returns ErrCircuitOpen
// without invoking fn. A half-open breaker runs fn as a probe: success closes
// the breaker, failure re-opens it immediately.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	state := cb.effectiveState()
	if state == StateOpen {
		cb.mu.Unlock()
		return ErrCircuitOpen
	}
	cb.state = state
	cb.mu.Unlock()

	err := fn()
	if err == nil {
		cb.RecordSuccess()
		return nil
	}

	if state == StateHalfOpen {
		cb.mu.Lock()
		cb.state = StateOpen
		cb.openedAt = time.Now()
		cb.mu.Unlock()
	} else {
		cb.RecordFailure()
	}
	return err
}
