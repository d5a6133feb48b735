/*-------------------------------------------------------------------------
 *
 * circuit_breaker.go
 *    Circuit breaker for outbound provider calls
 *
 * Guards content generation and notification delivery against a
 * failing upstream. Consecutive failures trip the circuit; after the
 * reset timeout a probe call decides between closing it again and
 * re-opening it.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/reliability/circuit_breaker.go
 *
 *-------------------------------------------------------------------------
 */

package reliability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/neurondb/NeuronFlow/internal/metrics"
)

/* ErrCircuitOpen is returned when a call is rejected without being
 * attempted */
var ErrCircuitOpen = errors.New("circuit breaker open")

/* CircuitState is the breaker's admission mode */
type CircuitState string

const (
	StateClosed   CircuitState = "closed"
	StateOpen     CircuitState = "open"
	StateHalfOpen CircuitState = "half_open"
)

/* CircuitBreaker trips after maxFailures consecutive failures and
 * rejects calls until resetTimeout has elapsed since it opened */
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu            sync.Mutex
	state         CircuitState
	failures      int
	openedAt      time.Time
	onStateChange func(name string, from, to CircuitState)
}

/* NewCircuitBreaker creates a closed breaker for one upstream */
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
	}
}

/* Execute runs fn if the breaker admits the call and records the
 * outcome. Rejected calls return ErrCircuitOpen without invoking fn. */
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

/* allow admits or rejects a call, moving an expired open circuit to
 * half-open so the next call probes the upstream */
func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	if time.Since(cb.openedAt) < cb.resetTimeout {
		return fmt.Errorf("call rejected: upstream='%s', error=%w", cb.name, ErrCircuitOpen)
	}
	cb.transition(StateHalfOpen)
	cb.failures = 0
	return nil
}

/* record updates the breaker from a call outcome. A half-open probe
 * settles the circuit in one call either way; in the closed state only
 * an unbroken failure run trips it. */
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == StateHalfOpen {
			cb.transition(StateClosed)
		}
		cb.failures = 0
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.transition(StateOpen)
		cb.openedAt = time.Now()
	}
}

/* transition moves to a new state and reports it. Caller holds mu. */
func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
	metrics.InfoWithContext(context.Background(), "circuit breaker state changed", map[string]interface{}{
		"circuit": cb.name,
		"from":    string(from),
		"to":      string(to),
	})
}

/* GetState returns the current admission mode */
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

/* SetStateChangeCallback registers a callback fired on every state
 * transition, while the breaker's lock is held */
func (cb *CircuitBreaker) SetStateChangeCallback(callback func(name string, from, to CircuitState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = callback
}

/* CircuitBreakerManager hands out one shared breaker per upstream name */
type CircuitBreakerManager struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

/* NewCircuitBreakerManager creates an empty manager */
func NewCircuitBreakerManager() *CircuitBreakerManager {
	return &CircuitBreakerManager{breakers: make(map[string]*CircuitBreaker)}
}

/* GetOrCreate returns the breaker registered under name, creating it
 * with the given limits on first use. Later calls keep the original
 * limits. */
func (m *CircuitBreakerManager) GetOrCreate(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if breaker, ok := m.breakers[name]; ok {
		return breaker
	}
	breaker := NewCircuitBreaker(name, maxFailures, resetTimeout)
	m.breakers[name] = breaker
	return breaker
}

/* Get returns the breaker registered under name, if any */
func (m *CircuitBreakerManager) Get(name string) (*CircuitBreaker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	breaker, ok := m.breakers[name]
	return breaker, ok
}
