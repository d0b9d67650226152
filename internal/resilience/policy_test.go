package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LavishGent/backpressure/internal/config"
	"github.com/LavishGent/backpressure/internal/types"
)

// recordingMetrics counts the calls the policy makes.
type recordingMetrics struct {
	mu           sync.Mutex
	retries      []int
	queueWaits   map[string]int
	stateChanges []string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{queueWaits: map[string]int{}}
}

func (m *recordingMetrics) RecordRequest(string, time.Duration, error) {}
func (m *recordingMetrics) RecordHit(string, string, time.Duration)    {}
func (m *recordingMetrics) RecordMiss(string, string, time.Duration)   {}
func (m *recordingMetrics) RecordError(string, string, error)          {}

func (m *recordingMetrics) RecordRetry(_ string, attempt int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries = append(m.retries, attempt)
}

func (m *recordingMetrics) RecordQueueWait(_ string, limiter string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueWaits[limiter]++
}

func (m *recordingMetrics) RecordCircuitBreakerStateChange(_ string, from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateChanges = append(m.stateChanges, from+"->"+to)
}

func TestNewPolicy(t *testing.T) {
	t.Run("zero options disable every layer", func(t *testing.T) {
		p, err := NewPolicy(PolicyOptions{Name: "svc"})
		if err != nil {
			t.Fatalf("NewPolicy() error = %v", err)
		}
		if p.ConcurrencyStats() != nil || p.RateLimiterStats() != nil {
			t.Error("limiters should be absent")
		}
		if p.CircuitState() != StateClosed {
			t.Errorf("CircuitState() = %v, want closed", p.CircuitState())
		}
	})

	t.Run("invalid rate limit is a configuration error", func(t *testing.T) {
		_, err := NewPolicy(PolicyOptions{RateLimit: &config.RateLimitConfig{Max: 0, Window: time.Second}})
		if !types.IsConfigurationError(err) {
			t.Errorf("NewPolicy() error = %v, want configuration error", err)
		}
	})

	t.Run("negative concurrency is a configuration error", func(t *testing.T) {
		_, err := NewPolicy(PolicyOptions{Concurrency: -1})
		if !types.IsConfigurationError(err) {
			t.Errorf("NewPolicy() error = %v, want configuration error", err)
		}
	})

	t.Run("from config", func(t *testing.T) {
		cfg := config.ForTesting()
		retries := 4
		svc := config.ServiceConfig{
			Name:        "svc",
			BaseURL:     "http://localhost",
			Concurrency: 2,
			RateLimit:   &config.RateLimitConfig{Max: 5, Window: time.Second},
			Retries:     &retries,
		}

		p, err := NewPolicyFromConfig(cfg, svc, nil, nil)
		if err != nil {
			t.Fatalf("NewPolicyFromConfig() error = %v", err)
		}
		defer p.Close()

		if p.retry.Options().Retries != 4 {
			t.Errorf("Retries = %d, want 4", p.retry.Options().Retries)
		}
		if p.timeout != cfg.Client.DefaultTimeout {
			t.Errorf("timeout = %v, want %v", p.timeout, cfg.Client.DefaultTimeout)
		}
		if s := p.ConcurrencyStats(); s == nil || s.Max != 2 {
			t.Errorf("ConcurrencyStats() = %+v", s)
		}
		if s := p.RateLimiterStats(); s == nil || s.Max != 5 {
			t.Errorf("RateLimiterStats() = %+v", s)
		}
	})
}

func TestPolicyRun(t *testing.T) {
	ctx := context.Background()

	t.Run("returns result", func(t *testing.T) {
		p, _ := NewPolicy(PolicyOptions{Name: "svc"})

		got, err := Run(ctx, p, CallOptions{}, func(context.Context) (int, error) {
			return 7, nil
		})
		if err != nil || got != 7 {
			t.Errorf("Run() = %d, %v", got, err)
		}
	})

	t.Run("each retry re-enters the rate limiter", func(t *testing.T) {
		const window = 30 * time.Millisecond
		metrics := newRecordingMetrics()
		p, err := NewPolicy(PolicyOptions{
			Name:      "svc",
			Retry:     RetryOptions{Retries: 2},
			RateLimit: &config.RateLimitConfig{Max: 1, Window: window},
			Metrics:   metrics,
		})
		if err != nil {
			t.Fatalf("NewPolicy() error = %v", err)
		}
		defer p.Close()

		var calls atomic.Int32
		start := time.Now()
		_, err = Run(ctx, p, CallOptions{}, func(context.Context) (int, error) {
			calls.Add(1)
			return 0, errors.New("down")
		})
		elapsed := time.Since(start)

		if err == nil {
			t.Fatal("Run() error = nil, want last attempt error")
		}
		if calls.Load() != 3 {
			t.Errorf("calls = %d, want 3", calls.Load())
		}
		if elapsed < 2*window-5*time.Millisecond {
			t.Errorf("elapsed = %v, want >= %v (one start per window)", elapsed, 2*window)
		}
		if s := p.RateLimiterStats(); s.Started != 3 {
			t.Errorf("rate limiter starts = %d, want 3", s.Started)
		}

		metrics.mu.Lock()
		defer metrics.mu.Unlock()
		if len(metrics.retries) != 2 || metrics.queueWaits["rate"] != 3 {
			t.Errorf("metrics retries = %v, queue waits = %v", metrics.retries, metrics.queueWaits)
		}
	})

	t.Run("per-call timeout is not retried", func(t *testing.T) {
		p, _ := NewPolicy(PolicyOptions{Name: "svc", Retry: RetryOptions{Retries: 3}, Timeout: time.Second})

		var calls atomic.Int32
		_, err := Run(ctx, p, CallOptions{Timeout: 10 * time.Millisecond}, func(ctx context.Context) (int, error) {
			calls.Add(1)
			<-ctx.Done()
			return 0, ctx.Err()
		})

		if !types.IsTimeout(err) {
			t.Errorf("Run() error = %v, want timeout", err)
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})

	t.Run("per-call retry override", func(t *testing.T) {
		p, _ := NewPolicy(PolicyOptions{Name: "svc", Retry: RetryOptions{Retries: 5}})

		var calls, observed atomic.Int32
		override := &RetryOptions{
			Retries: 1,
			OnRetry: func(error, int, time.Duration) { observed.Add(1) },
		}
		_, _ = Run(ctx, p, CallOptions{Retry: override}, func(context.Context) (int, error) {
			calls.Add(1)
			return 0, errors.New("fail")
		})

		if calls.Load() != 2 || observed.Load() != 1 {
			t.Errorf("calls = %d, observed retries = %d; want 2, 1", calls.Load(), observed.Load())
		}
	})

	t.Run("pre-canceled context never reaches the operation", func(t *testing.T) {
		p, _ := NewPolicy(PolicyOptions{
			Name:        "svc",
			Retry:       RetryOptions{Retries: 3},
			Concurrency: 1,
			RateLimit:   &config.RateLimitConfig{Max: 1, Window: time.Hour},
		})
		defer p.Close()

		canceled, cancel := context.WithCancel(ctx)
		cancel()

		var called bool
		_, err := Run(canceled, p, CallOptions{}, func(context.Context) (int, error) {
			called = true
			return 0, nil
		})

		if called {
			t.Error("operation invoked with a canceled context")
		}
		if !errors.Is(err, types.ErrCanceled) {
			t.Errorf("Run() error = %v, want ErrCanceled", err)
		}
		if s := p.RateLimiterStats(); s.InWindow != 0 {
			t.Errorf("canceled call took a rate slot: %+v", s)
		}
	})

	t.Run("open circuit stops retries", func(t *testing.T) {
		metrics := newRecordingMetrics()
		p, _ := NewPolicy(PolicyOptions{
			Name:  "svc",
			Retry: RetryOptions{Retries: 5},
			CircuitBreaker: &config.CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 2,
				OpenDuration:     time.Hour,
			},
			Metrics: metrics,
		})

		var calls atomic.Int32
		_, err := Run(ctx, p, CallOptions{}, func(context.Context) (int, error) {
			calls.Add(1)
			return 0, errors.New("down")
		})

		if !errors.Is(err, types.ErrCircuitOpen) {
			t.Errorf("Run() error = %v, want ErrCircuitOpen", err)
		}
		if calls.Load() != 2 {
			t.Errorf("calls = %d, want 2", calls.Load())
		}
		if p.CircuitState() != StateOpen {
			t.Errorf("CircuitState() = %v, want open", p.CircuitState())
		}

		metrics.mu.Lock()
		defer metrics.mu.Unlock()
		if len(metrics.stateChanges) != 1 || metrics.stateChanges[0] != "closed->open" {
			t.Errorf("state changes = %v", metrics.stateChanges)
		}
	})

	t.Run("concurrency bound holds across callers", func(t *testing.T) {
		p, _ := NewPolicy(PolicyOptions{Name: "svc", Concurrency: 2})

		var active, peak atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 6; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = p.Execute(ctx, CallOptions{}, func(context.Context) error {
					n := active.Add(1)
					for {
						cur := peak.Load()
						if n <= cur || peak.CompareAndSwap(cur, n) {
							break
						}
					}
					time.Sleep(10 * time.Millisecond)
					active.Add(-1)
					return nil
				})
			}()
		}
		wg.Wait()

		if peak.Load() > 2 {
			t.Errorf("peak = %d, want <= 2", peak.Load())
		}
		if _, success, _ := p.RetryStats(); success != 6 {
			t.Errorf("successes = %d, want 6", success)
		}
	})

	t.Run("timed-out operations keep their slot until they return", func(t *testing.T) {
		p, _ := NewPolicy(PolicyOptions{Name: "svc", Concurrency: 1, Timeout: 20 * time.Millisecond})

		var active, peak, finished atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := p.Execute(ctx, CallOptions{}, func(context.Context) error {
					n := active.Add(1)
					for {
						cur := peak.Load()
						if n <= cur || peak.CompareAndSwap(cur, n) {
							break
						}
					}
					time.Sleep(60 * time.Millisecond)
					active.Add(-1)
					finished.Add(1)
					return nil
				})
				if !types.IsTimeout(err) {
					t.Errorf("err = %v, want timeout", err)
				}
			}()
		}
		wg.Wait()

		deadline := time.Now().Add(2 * time.Second)
		for (finished.Load() < 4 || p.ConcurrencyStats().Active > 0) && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}

		if peak.Load() != 1 {
			t.Errorf("peak = %d, want 1", peak.Load())
		}
		if s := p.ConcurrencyStats(); s.Active != 0 || s.Queued != 0 {
			t.Errorf("stats = %+v, want idle", *s)
		}
	})
}
