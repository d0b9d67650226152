package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LavishGent/backpressure/internal/config"
)

func BenchmarkCircuitBreaker_Allow(b *testing.B) {
	cb := NewCircuitBreaker("bench", config.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenDuration:     30 * time.Second,
	})

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = cb.Allow()
	}
}

func BenchmarkRetry_Success(b *testing.B) {
	ctx := context.Background()
	opts := RetryOptions{Retries: 3, BaseDelay: time.Millisecond}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = Retry(ctx, opts, func(context.Context) (int, error) {
			return 1, nil
		})
	}
}

func BenchmarkRetry_NonRetryable(b *testing.B) {
	ctx := context.Background()
	opts := RetryOptions{Retries: 3, BaseDelay: time.Millisecond}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = Retry(ctx, opts, func(context.Context) (int, error) {
			return 0, ErrCircuitOpen
		})
	}
}

func BenchmarkConcurrencyLimiter_Uncontended(b *testing.B) {
	l, _ := NewConcurrencyLimiter(100)
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		release, _ := l.Acquire(ctx)
		release()
	}
}

func BenchmarkConcurrencyLimiter_Parallel(b *testing.B) {
	l, _ := NewConcurrencyLimiter(8)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = l.Do(ctx, func(context.Context) error { return nil })
		}
	})
}

func BenchmarkWithTimeout(b *testing.B) {
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = WithTimeout(ctx, time.Second, func(context.Context) (int, error) {
			return 1, nil
		})
	}
}

func BenchmarkPolicy_Run(b *testing.B) {
	p, _ := NewPolicy(PolicyOptions{
		Name:        "bench",
		Retry:       RetryOptions{Retries: 1},
		Concurrency: 16,
		CircuitBreaker: &config.CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 1000000,
		},
	})
	ctx := context.Background()
	fail := errors.New("fail")

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = Run(ctx, p, CallOptions{}, func(context.Context) (int, error) {
			if i%10 == 0 {
				return 0, fail
			}
			return i, nil
		})
	}
}
