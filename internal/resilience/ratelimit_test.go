package resilience

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/LavishGent/backpressure/internal/types"
)

func TestNewRateLimiter(t *testing.T) {
	tests := []struct {
		name   string
		field  string
		max    int
		window time.Duration
	}{
		{"zero max", "max", 0, time.Second},
		{"negative max", "max", -2, time.Second},
		{"zero window", "window", 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRateLimiter(tt.max, tt.window)
			var cfgErr *types.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("NewRateLimiter() error = %v, want ConfigurationError", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.field)
			}
			if types.IsRetryable(err) {
				t.Error("configuration errors must not be retryable")
			}
		})
	}
}

func TestRateLimiterWindow(t *testing.T) {
	const (
		window    = 200 * time.Millisecond
		tolerance = 15 * time.Millisecond
	)

	l, err := NewRateLimiter(2, window)
	if err != nil {
		t.Fatalf("NewRateLimiter() error = %v", err)
	}
	defer l.Close()

	var (
		mu     sync.Mutex
		starts []time.Duration
		wg     sync.WaitGroup
	)

	begin := time.Now()
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Do(context.Background(), func(context.Context) error {
				mu.Lock()
				starts = append(starts, time.Since(begin))
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	if starts[1] > window/2 {
		t.Errorf("first two starts = %v, want immediate", starts[:2])
	}
	if starts[2] < window-tolerance {
		t.Errorf("third start at %v, want >= %v", starts[2], window)
	}
	if starts[4] < 2*window-tolerance {
		t.Errorf("fifth start at %v, want >= %v", starts[4], 2*window)
	}

	// No trailing window may contain more than max starts.
	for i := 0; i+2 < len(starts); i++ {
		if gap := starts[i+2] - starts[i]; gap < window-tolerance {
			t.Errorf("starts %d and %d only %v apart, window %v", i, i+2, gap, window)
		}
	}

	if s := l.Stats(); s.Started != 5 || s.Queued != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestRateLimiterStartTimeAccounting(t *testing.T) {
	l, _ := NewRateLimiter(1, 100*time.Millisecond)
	defer l.Close()

	release, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	// Finishing immediately must not free the slot.
	release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := l.Acquire(ctx); !types.IsCancellation(err) {
		t.Errorf("Acquire() error = %v, want cancellation while slot is in window", err)
	}
}

func TestRateLimiterCancellation(t *testing.T) {
	l, _ := NewRateLimiter(1, time.Hour)
	defer l.Close()

	if _, err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := l.Acquire(ctx)
		errCh <- err
	}()
	waitFor(t, func() bool { return l.Stats().Queued == 1 })

	cancel()
	if err := <-errCh; !errors.Is(err, types.ErrCanceled) {
		t.Errorf("Acquire() error = %v, want ErrCanceled", err)
	}

	s := l.Stats()
	if s.Queued != 0 {
		t.Errorf("Queued = %d, want 0", s.Queued)
	}
	if s.InWindow != 1 || s.Started != 1 {
		t.Errorf("canceled waiter took a slot: %+v", s)
	}
}

func TestRateLimiterClose(t *testing.T) {
	l, _ := NewRateLimiter(1, time.Hour)

	if _, err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := l.Acquire(context.Background())
		errCh <- err
	}()
	waitFor(t, func() bool { return l.Stats().Queued == 1 })

	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := <-errCh; !errors.Is(err, types.ErrClosed) {
		t.Errorf("queued Acquire() error = %v, want ErrClosed", err)
	}
	if _, err := l.Acquire(context.Background()); !errors.Is(err, types.ErrClosed) {
		t.Errorf("Acquire() after Close error = %v, want ErrClosed", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
