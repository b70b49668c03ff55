package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_SuccessKeepsClosed(t *testing.T) {
	cb := NewCircuitBreaker()

	result, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Execute() unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("Execute() result = %v, want %q", result, "ok")
	}
	if state := cb.State(); state != "closed" {
		t.Errorf("State() = %q, want %q", state, "closed")
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		MaxFailures:          2,
		Timeout:              time.Minute,
		HalfOpenMaxSuccesses: 1,
	})
	boom := errors.New("provider unavailable")

	for i := 0; i < 2; i++ {
		_, err := cb.Execute(context.Background(), func() (interface{}, error) {
			return nil, boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("failure %d: Execute() error = %v, want %v", i+1, err, boom)
		}
	}

	if state := cb.State(); state != "open" {
		t.Fatalf("State() after %d failures = %q, want %q", 2, state, "open")
	}

	// Calls while open are rejected without invoking the function.
	called := false
	_, err := cb.Execute(context.Background(), func() (interface{}, error) {
		called = true
		return "should not run", nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() while open error = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("function ran while circuit was open")
	}

	metrics := cb.Metrics()
	if metrics.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", metrics.TotalRequests)
	}
	if metrics.TotalFailures != 3 {
		t.Errorf("TotalFailures = %d, want 3", metrics.TotalFailures)
	}
}

func TestCircuitBreaker_SuccessResetsFailureStreak(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		MaxFailures:          2,
		Timeout:              time.Minute,
		HalfOpenMaxSuccesses: 1,
	})
	boom := errors.New("transient")

	_, _ = cb.Execute(context.Background(), func() (interface{}, error) { return nil, boom })
	_, _ = cb.Execute(context.Background(), func() (interface{}, error) { return "ok", nil })
	_, _ = cb.Execute(context.Background(), func() (interface{}, error) { return nil, boom })

	if state := cb.State(); state != "closed" {
		t.Errorf("State() = %q, want %q (streak should reset on success)", state, "closed")
	}
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb := NewCircuitBreaker()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cb.Execute(ctx, func() (interface{}, error) {
		t.Error("function ran despite cancelled context")
		return nil, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
}
