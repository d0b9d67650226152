package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LavishGent/backpressure/internal/config"
	"github.com/LavishGent/backpressure/internal/types"
)

func TestCircuitBreakerStateString(t *testing.T) {
	//nolint:govet // Test table - alignment not critical
	tests := []struct {
		state    State
		expected string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("State.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestNewCircuitBreaker(t *testing.T) {
	t.Run("applies defaults for zero values", func(t *testing.T) {
		cb := NewCircuitBreaker("svc", config.CircuitBreakerConfig{})

		if cb.failureThreshold != 5 {
			t.Errorf("failureThreshold = %v, want 5", cb.failureThreshold)
		}
		if cb.successThreshold != 2 {
			t.Errorf("successThreshold = %v, want 2", cb.successThreshold)
		}
		if cb.openDuration != 30*time.Second {
			t.Errorf("openDuration = %v, want 30s", cb.openDuration)
		}
		if cb.Name() != "svc" {
			t.Errorf("Name() = %q, want svc", cb.Name())
		}
		if cb.State() != StateClosed {
			t.Errorf("initial state = %v, want closed", cb.State())
		}
	})
}

func TestCircuitBreakerExecute(t *testing.T) {
	cfg := config.CircuitBreakerConfig{
		FailureThreshold:    2,
		SuccessThreshold:    1,
		OpenDuration:        30 * time.Millisecond,
		HalfOpenMaxRequests: 1,
	}
	boom := errors.New("boom")
	fail := func(context.Context) error { return boom }
	succeed := func(context.Context) error { return nil }
	ctx := context.Background()

	t.Run("opens after consecutive failures", func(t *testing.T) {
		cb := NewCircuitBreaker("svc", cfg)

		_ = cb.Execute(ctx, fail)
		if cb.State() != StateClosed {
			t.Fatalf("state after 1 failure = %v, want closed", cb.State())
		}
		_ = cb.Execute(ctx, fail)
		if !cb.IsOpen() {
			t.Fatalf("state after 2 failures = %v, want open", cb.State())
		}

		var called bool
		err := cb.Execute(ctx, func(context.Context) error {
			called = true
			return nil
		})
		if called {
			t.Error("operation ran while circuit open")
		}
		if !errors.Is(err, types.ErrCircuitOpen) || IsRetryable(err) {
			t.Errorf("Execute() error = %v, want non-retryable ErrCircuitOpen", err)
		}
	})

	t.Run("half-open probe closes the circuit", func(t *testing.T) {
		cb := NewCircuitBreaker("svc", cfg)
		_ = cb.Execute(ctx, fail)
		_ = cb.Execute(ctx, fail)

		time.Sleep(40 * time.Millisecond)

		if err := cb.Execute(ctx, succeed); err != nil {
			t.Fatalf("probe error = %v", err)
		}
		if cb.State() != StateClosed {
			t.Errorf("state after successful probe = %v, want closed", cb.State())
		}
	})

	t.Run("half-open failure reopens", func(t *testing.T) {
		cb := NewCircuitBreaker("svc", cfg)
		_ = cb.Execute(ctx, fail)
		_ = cb.Execute(ctx, fail)

		time.Sleep(40 * time.Millisecond)
		_ = cb.Execute(ctx, fail)

		if !cb.IsOpen() {
			t.Errorf("state after failed probe = %v, want open", cb.State())
		}
	})

	t.Run("caller cancellation is not a failure", func(t *testing.T) {
		cb := NewCircuitBreaker("svc", cfg)
		canceled := func(context.Context) error {
			return &types.CancellationError{Origin: types.OriginCaller}
		}

		for i := 0; i < 5; i++ {
			_ = cb.Execute(ctx, canceled)
		}
		if cb.State() != StateClosed {
			t.Errorf("state = %v, want closed", cb.State())
		}
	})

	t.Run("timeouts count as failures", func(t *testing.T) {
		cb := NewCircuitBreaker("svc", cfg)
		timedOut := func(context.Context) error {
			return &types.CancellationError{Origin: types.OriginTimeout}
		}

		_ = cb.Execute(ctx, timedOut)
		_ = cb.Execute(ctx, timedOut)
		if !cb.IsOpen() {
			t.Errorf("state = %v, want open", cb.State())
		}
	})
}

func TestCircuitBreakerStateChangeCallback(t *testing.T) {
	cb := NewCircuitBreaker("svc", config.CircuitBreakerConfig{FailureThreshold: 1, OpenDuration: time.Hour})

	var (
		mu          sync.Mutex
		transitions []string
	)
	cb.SetOnStateChange(func(from, to State) {
		// Reading state inside the callback must not deadlock.
		_ = cb.Stats()
		mu.Lock()
		transitions = append(transitions, from.String()+"->"+to.String())
		mu.Unlock()
	})

	cb.RecordFailure()
	cb.Reset()

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Errorf("transitions = %v, want [closed->open]", transitions)
	}
	if cb.State() != StateClosed {
		t.Errorf("state after Reset = %v, want closed", cb.State())
	}
}

func TestGuard(t *testing.T) {
	cb := NewCircuitBreaker("svc", config.CircuitBreakerConfig{})

	got, err := Guard(context.Background(), cb, func(context.Context) (string, error) {
		return "v", nil
	})
	if err != nil || got != "v" {
		t.Errorf("Guard() = %q, %v", got, err)
	}
}
