package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LavishGent/backpressure/internal/config"
	"github.com/LavishGent/backpressure/internal/types"
)

func TestRetryOptionsDelay(t *testing.T) {
	tests := []struct {
		name    string
		opts    RetryOptions
		attempt int
		want    time.Duration
	}{
		{"first retry uses base", RetryOptions{BaseDelay: 10 * time.Millisecond, Factor: 2}, 1, 10 * time.Millisecond},
		{"second retry doubles", RetryOptions{BaseDelay: 10 * time.Millisecond, Factor: 2}, 2, 20 * time.Millisecond},
		{"third retry factor 3", RetryOptions{BaseDelay: 10 * time.Millisecond, Factor: 3}, 3, 90 * time.Millisecond},
		{"zero factor means 2", RetryOptions{BaseDelay: 10 * time.Millisecond}, 3, 40 * time.Millisecond},
		{"capped by max delay", RetryOptions{BaseDelay: 10 * time.Millisecond, Factor: 2, MaxDelay: 25 * time.Millisecond}, 3, 25 * time.Millisecond},
		{"zero base means no delay", RetryOptions{Factor: 2}, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.Delay(tt.attempt); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}

	t.Run("jitter stays within 25%", func(t *testing.T) {
		opts := RetryOptions{BaseDelay: 100 * time.Millisecond, Factor: 2, Jitter: true}
		for i := 0; i < 50; i++ {
			d := opts.Delay(1)
			if d < 75*time.Millisecond || d > 125*time.Millisecond {
				t.Fatalf("Delay(1) with jitter = %v, want within [75ms, 125ms]", d)
			}
		}
	})
}

func TestRetry(t *testing.T) {
	t.Run("fails twice then succeeds", func(t *testing.T) {
		type call struct {
			attempt int
			delay   time.Duration
		}
		var (
			calls    int
			observed []call
		)

		opts := RetryOptions{
			Retries:   3,
			BaseDelay: 10 * time.Millisecond,
			Factor:    2,
			OnRetry: func(err error, attempt int, delay time.Duration) {
				if err == nil {
					t.Error("OnRetry called without an error")
				}
				observed = append(observed, call{attempt, delay})
			},
		}

		start := time.Now()
		got, err := Retry(context.Background(), opts, func(context.Context) (string, error) {
			calls++
			if calls <= 2 {
				return "", errors.New("transient")
			}
			return "ok", nil
		})
		elapsed := time.Since(start)

		if err != nil || got != "ok" {
			t.Fatalf("Retry() = %q, %v", got, err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
		want := []call{{1, 10 * time.Millisecond}, {2, 20 * time.Millisecond}}
		if len(observed) != len(want) {
			t.Fatalf("OnRetry calls = %v, want %v", observed, want)
		}
		for i := range want {
			if observed[i] != want[i] {
				t.Errorf("OnRetry[%d] = %+v, want %+v", i, observed[i], want[i])
			}
		}
		if elapsed < 30*time.Millisecond {
			t.Errorf("elapsed = %v, want >= 30ms of backoff", elapsed)
		}
	})

	t.Run("returns last error unchanged after exhaustion", func(t *testing.T) {
		var calls int
		var last error

		_, err := Retry(context.Background(), RetryOptions{Retries: 2}, func(context.Context) (int, error) {
			calls++
			last = errors.New("attempt failed")
			return 0, last
		})

		if err != last {
			t.Errorf("Retry() error = %v, want the last attempt's error", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("does not retry non-retryable errors", func(t *testing.T) {
		tests := []struct {
			err  error
			name string
		}{
			{types.NewConfigurationError("x", "y", "z"), "configuration"},
			{&types.CancellationError{Origin: types.OriginTimeout}, "timeout"},
			{types.ErrCircuitOpen, "circuit open"},
			{types.ErrClosed, "closed"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				var calls int
				_, err := Retry(context.Background(), RetryOptions{Retries: 3}, func(context.Context) (int, error) {
					calls++
					return 0, tt.err
				})
				if calls != 1 {
					t.Errorf("calls = %d, want 1", calls)
				}
				if !errors.Is(err, tt.err) {
					t.Errorf("Retry() error = %v, want %v", err, tt.err)
				}
			})
		}
	})

	t.Run("cancellation during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		opts := RetryOptions{
			Retries:   5,
			BaseDelay: time.Second,
			OnRetry:   func(error, int, time.Duration) { cancel() },
		}

		start := time.Now()
		_, err := Retry(ctx, opts, func(context.Context) (int, error) {
			return 0, errors.New("fail")
		})

		if !errors.Is(err, types.ErrCanceled) {
			t.Errorf("Retry() error = %v, want ErrCanceled", err)
		}
		if time.Since(start) > 500*time.Millisecond {
			t.Error("Retry() kept sleeping after cancellation")
		}
	})

	t.Run("pre-canceled context makes no attempt", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var calls int
		_, err := Retry(ctx, RetryOptions{Retries: 3}, func(context.Context) (int, error) {
			calls++
			return 0, nil
		})

		if calls != 0 {
			t.Errorf("calls = %d, want 0", calls)
		}
		if !types.IsCancellation(err) {
			t.Errorf("Retry() error = %v, want cancellation", err)
		}
	})
}

func TestRetryPolicy(t *testing.T) {
	rp := NewRetryPolicy(config.RetryConfig{Retries: 2, BaseDelay: time.Millisecond, Factor: 2})

	if got := rp.Options().Retries; got != 2 {
		t.Errorf("Options().Retries = %d, want 2", got)
	}

	var calls int
	err := rp.ExecuteCtx(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ExecuteCtx() error = %v", err)
	}

	_ = rp.ExecuteCtx(context.Background(), func(context.Context) error {
		return errors.New("always")
	})

	retries, success, failure := rp.Stats()
	if retries != 3 || success != 1 || failure != 1 {
		t.Errorf("Stats() = (%d, %d, %d), want (3, 1, 1)", retries, success, failure)
	}

	t.Run("override replaces options", func(t *testing.T) {
		var n int
		_, _ = RetryWithPolicy(context.Background(), rp, &RetryOptions{Retries: 0}, func(context.Context) (int, error) {
			n++
			return 0, errors.New("fail")
		})
		if n != 1 {
			t.Errorf("calls with Retries=0 override = %d, want 1", n)
		}
	})

	rp.Reset()
	if r, s, f := rp.Stats(); r+s+f != 0 {
		t.Errorf("Stats() after Reset = (%d, %d, %d)", r, s, f)
	}

	t.Run("disabled policy makes one attempt", func(t *testing.T) {
		var n int
		_ = NewDisabledRetryPolicy().ExecuteCtx(context.Background(), func(context.Context) error {
			n++
			return errors.New("fail")
		})
		if n != 1 {
			t.Errorf("calls = %d, want 1", n)
		}
	})
}
