/*-------------------------------------------------------------------------
 *
 * circuit_breaker_test.go
 *    Tests for the circuit breaker
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/reliability/circuit_breaker_test.go
 *
 *-------------------------------------------------------------------------
 */

package reliability

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Minute)
	failing := func() error { return errors.New("boom") }

	for i := 0; i < 3; i++ {
		if err := cb.Execute(failing); err == nil {
			t.Fatal("Execute() swallowed the function error")
		}
	}
	if cb.GetState() != StateOpen {
		t.Errorf("state = %s, want open after 3 failures", cb.GetState())
	}

	/* Open circuit rejects without calling the function */
	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	if err == nil {
		t.Error("Execute() succeeded on an open circuit")
	}
	if called {
		t.Error("Execute() invoked the function on an open circuit")
	}
}

func TestCircuitBreakerRejectionWrapsErrCircuitOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, time.Minute)
	_ = cb.Execute(func() error { return errors.New("boom") })

	err := cb.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() error = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerRecoversViaHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 10*time.Millisecond)

	if err := cb.Execute(func() error { return errors.New("boom") }); err == nil {
		t.Fatal("Execute() swallowed the function error")
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %s, want open", cb.GetState())
	}

	time.Sleep(20 * time.Millisecond)

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute() after reset timeout error = %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("state = %s, want closed after half-open success", cb.GetState())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 10*time.Millisecond)

	_ = cb.Execute(func() error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)

	_ = cb.Execute(func() error { return errors.New("still down") })
	if cb.GetState() != StateOpen {
		t.Errorf("state = %s, want open after half-open failure", cb.GetState())
	}
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, time.Minute)

	_ = cb.Execute(func() error { return errors.New("boom") })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errors.New("boom") })

	if cb.GetState() != StateClosed {
		t.Errorf("state = %s, want closed since failures never reached the limit consecutively", cb.GetState())
	}
}

func TestCircuitBreakerStateChangeCallback(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, time.Minute)

	var transitions []string
	cb.SetStateChangeCallback(func(name string, from, to CircuitState) {
		transitions = append(transitions, string(from)+"->"+string(to))
	})

	_ = cb.Execute(func() error { return errors.New("boom") })
	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Errorf("transitions = %v, want [closed->open]", transitions)
	}
}

func TestCircuitBreakerManager(t *testing.T) {
	manager := NewCircuitBreakerManager()

	first := manager.GetOrCreate("generation", 5, time.Minute)
	second := manager.GetOrCreate("generation", 99, time.Hour)
	if first != second {
		t.Error("GetOrCreate() created a duplicate breaker for the same name")
	}

	if _, exists := manager.Get("generation"); !exists {
		t.Error("Get() did not find an existing breaker")
	}
	if _, exists := manager.Get("missing"); exists {
		t.Error("Get() found a breaker that was never created")
	}
}
