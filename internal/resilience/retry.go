package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/LavishGent/backpressure/internal/config"
	"github.com/LavishGent/backpressure/internal/types"
)

// RetryOptions controls one retry loop.
//
//nolint:govet // Options struct - logical grouping prioritized over alignment
type RetryOptions struct {
	// Retries is the number of additional attempts after the first one.
	Retries   int
	BaseDelay time.Duration
	// Factor is the growth factor of the delay; zero means 2.
	Factor float64
	// MaxDelay caps a single delay when positive.
	MaxDelay time.Duration
	Jitter   bool
	// OnRetry is called synchronously before each retry sleep.
	OnRetry func(err error, attempt int, delay time.Duration)
}

// RetryOptionsFromConfig converts the configured retry section.
func RetryOptionsFromConfig(cfg config.RetryConfig) RetryOptions {
	return RetryOptions{
		Retries:   cfg.Retries,
		BaseDelay: cfg.BaseDelay,
		Factor:    cfg.Factor,
		MaxDelay:  cfg.MaxDelay,
		Jitter:    cfg.Jitter,
	}
}

// Delay returns the backoff before retry number attempt (1-based):
// BaseDelay * Factor^(attempt-1), capped at MaxDelay.
func (o RetryOptions) Delay(attempt int) time.Duration {
	if o.BaseDelay <= 0 || attempt < 1 {
		return 0
	}

	factor := o.Factor
	if factor <= 0 {
		factor = 2.0
	}

	backoff := float64(o.BaseDelay) * math.Pow(factor, float64(attempt-1))

	if o.MaxDelay > 0 && backoff > float64(o.MaxDelay) {
		backoff = float64(o.MaxDelay)
	}

	// Add jitter (±25%)
	if o.Jitter {
		jitterRange := backoff * 0.25
		backoff += (rand.Float64() * 2 * jitterRange) - jitterRange
	}

	return time.Duration(backoff)
}

// Retry attempts fn up to opts.Retries+1 times. The last error is returned
// unchanged. Errors that IsRetryable rejects end the loop immediately.
func Retry[T any](ctx context.Context, opts RetryOptions, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	retries := max(opts.Retries, 0)

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			delay := opts.Delay(attempt)
			if opts.OnRetry != nil {
				opts.OnRetry(lastErr, attempt, delay)
			}
			if err := sleep(ctx, delay); err != nil {
				return zero, err
			}
		}

		if ctx.Err() != nil {
			return zero, types.CallerCanceled(ctx)
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}

		lastErr = err

		if !IsRetryable(err) {
			return zero, err
		}
	}

	return zero, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return types.CallerCanceled(ctx)
	case <-timer.C:
		return nil
	}
}

// RetryPolicy holds the configured retry options and counts outcomes.
type RetryPolicy struct {
	opts RetryOptions

	totalRetries atomic.Int64
	totalSuccess atomic.Int64
	totalFailure atomic.Int64
}

// NewRetryPolicy creates a new retry policy with the given configuration.
func NewRetryPolicy(cfg config.RetryConfig) *RetryPolicy {
	return &RetryPolicy{opts: RetryOptionsFromConfig(cfg)}
}

// NewDisabledRetryPolicy creates a policy that makes exactly one attempt.
func NewDisabledRetryPolicy() *RetryPolicy {
	return &RetryPolicy{}
}

// Options returns the policy's default options.
func (rp *RetryPolicy) Options() RetryOptions {
	return rp.opts
}

// ExecuteCtx runs an operation with retry logic and context.
func (rp *RetryPolicy) ExecuteCtx(ctx context.Context, fn func(context.Context) error) error {
	_, err := RetryWithPolicy(ctx, rp, nil, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryWithPolicy runs fn with override when non-nil, otherwise with rp's
// options, and records the outcome in rp's counters.
func RetryWithPolicy[T any](ctx context.Context, rp *RetryPolicy, override *RetryOptions, fn func(context.Context) (T, error)) (T, error) {
	var opts RetryOptions
	switch {
	case override != nil:
		opts = *override
	case rp != nil:
		opts = rp.opts
	}

	if rp == nil {
		return Retry(ctx, opts, fn)
	}

	observer := opts.OnRetry
	opts.OnRetry = func(err error, attempt int, delay time.Duration) {
		rp.totalRetries.Add(1)
		if observer != nil {
			observer(err, attempt, delay)
		}
	}

	v, err := Retry(ctx, opts, fn)
	if err != nil {
		rp.totalFailure.Add(1)
	} else {
		rp.totalSuccess.Add(1)
	}
	return v, err
}

// Stats returns retry statistics.
func (rp *RetryPolicy) Stats() (retries, success, failure int64) {
	return rp.totalRetries.Load(), rp.totalSuccess.Load(), rp.totalFailure.Load()
}

// Reset resets the statistics.
func (rp *RetryPolicy) Reset() {
	rp.totalRetries.Store(0)
	rp.totalSuccess.Store(0)
	rp.totalFailure.Store(0)
}
