package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/LavishGent/backpressure/internal/config"
	"github.com/LavishGent/backpressure/internal/types"
)

// Policy composes the per-service pipeline. Execution order, outer to inner:
//
//	Retry -> Circuit Breaker -> Rate Limiter -> Concurrency Limiter -> Timeout -> Operation
//
// Every retry attempt re-enters the limiter queues as a fresh scheduling
// event, and every attempt counts toward the circuit state.
type Policy struct {
	logger      *slog.Logger
	metrics     types.MetricsRecorder
	retry       *RetryPolicy
	breaker     *CircuitBreaker
	rate        *RateLimiter
	concurrency *ConcurrencyLimiter
	name        string
	timeout     time.Duration
}

// PolicyOptions configures NewPolicy. Zero values disable the matching layer.
//
//nolint:govet // Options struct - logical grouping prioritized over alignment
type PolicyOptions struct {
	Name           string
	Retry          RetryOptions
	CircuitBreaker *config.CircuitBreakerConfig
	Concurrency    int
	RateLimit      *config.RateLimitConfig
	Timeout        time.Duration
	Logger         *slog.Logger
	Metrics        types.MetricsRecorder
}

// CallOptions overrides the policy defaults for one call.
type CallOptions struct {
	Retry   *RetryOptions
	Timeout time.Duration
}

// NewPolicy builds a pipeline. Invalid limiter parameters yield a
// *types.ConfigurationError.
func NewPolicy(opts PolicyOptions) (*Policy, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Policy{
		name:    opts.Name,
		timeout: opts.Timeout,
		retry:   &RetryPolicy{opts: opts.Retry},
		logger:  logger.With("component", "policy", "service", opts.Name),
		metrics: opts.Metrics,
	}

	if opts.Concurrency < 0 {
		return nil, types.NewConfigurationError("concurrency-limiter", "concurrency", "must be a positive integer")
	}
	if opts.Concurrency > 0 {
		cl, err := NewConcurrencyLimiter(opts.Concurrency)
		if err != nil {
			return nil, err
		}
		p.concurrency = cl
	}

	if opts.RateLimit != nil {
		rl, err := NewRateLimiter(opts.RateLimit.Max, opts.RateLimit.Window)
		if err != nil {
			return nil, err
		}
		p.rate = rl
	}

	if opts.CircuitBreaker != nil && opts.CircuitBreaker.Enabled {
		p.breaker = NewCircuitBreaker(opts.Name, *opts.CircuitBreaker)
		p.breaker.SetOnStateChange(p.onCircuitStateChange)
	}

	return p, nil
}

// NewPolicyFromConfig builds the pipeline for one configured service.
func NewPolicyFromConfig(cfg *config.Config, svc config.ServiceConfig, logger *slog.Logger, metrics types.MetricsRecorder) (*Policy, error) {
	retry := RetryOptionsFromConfig(cfg.Retry)
	retry.Retries = cfg.RetriesFor(svc)

	breaker := cfg.CircuitBreaker

	return NewPolicy(PolicyOptions{
		Name:           svc.Name,
		Retry:          retry,
		CircuitBreaker: &breaker,
		Concurrency:    svc.Concurrency,
		RateLimit:      svc.RateLimit,
		Timeout:        cfg.TimeoutFor(svc),
		Logger:         logger,
		Metrics:        metrics,
	})
}

func (p *Policy) onCircuitStateChange(from, to State) {
	p.logger.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
	if p.metrics != nil {
		p.metrics.RecordCircuitBreakerStateChange(p.name, from.String(), to.String())
	}
}

// Run executes fn through every configured layer of p.
func Run[T any](ctx context.Context, p *Policy, call CallOptions, fn func(context.Context) (T, error)) (T, error) {
	timeout := TimeoutOrDefault(call.Timeout, p.timeout)

	attempt := func(ctx context.Context) (T, error) {
		if p.breaker != nil {
			return Guard(ctx, p.breaker, func(ctx context.Context) (T, error) {
				return limited(ctx, p, timeout, fn)
			})
		}
		return limited(ctx, p, timeout, fn)
	}

	opts := p.retry.Options()
	if call.Retry != nil {
		opts = *call.Retry
	}

	observer := opts.OnRetry
	opts.OnRetry = func(err error, n int, delay time.Duration) {
		p.logger.Debug("retrying", "attempt", n, "delay", delay, "error", err)
		if p.metrics != nil {
			p.metrics.RecordRetry(p.name, n, delay)
		}
		if observer != nil {
			observer(err, n, delay)
		}
	}

	return RetryWithPolicy(ctx, p.retry, &opts, attempt)
}

func limited[T any](ctx context.Context, p *Policy, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if p.rate != nil {
		if _, err := p.acquire(ctx, p.rate, "rate"); err != nil {
			return zero, err
		}
	}

	if p.concurrency == nil {
		return WithTimeout(ctx, timeout, fn)
	}

	release, err := p.acquire(ctx, p.concurrency, "concurrency")
	if err != nil {
		return zero, err
	}
	// The slot follows fn, not the caller, so a timed-out operation that
	// ignores its context still counts against the bound.
	return withTimeout(ctx, timeout, fn, release)
}

func (p *Policy) acquire(ctx context.Context, l types.Limiter, kind string) (func(), error) {
	start := time.Now()
	release, err := l.Acquire(ctx)
	if p.metrics != nil {
		p.metrics.RecordQueueWait(p.name, kind, time.Since(start))
	}
	return release, err
}

// Execute runs an operation through all resilience layers.
func (p *Policy) Execute(ctx context.Context, call CallOptions, fn func(context.Context) error) error {
	_, err := Run(ctx, p, call, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// CircuitState returns the breaker state, or StateClosed when there is none.
func (p *Policy) CircuitState() State {
	if p.breaker == nil {
		return StateClosed
	}
	return p.breaker.State()
}

// RetryStats returns the retry counters.
func (p *Policy) RetryStats() (retries, success, failure int64) {
	return p.retry.Stats()
}

// ConcurrencyStats returns nil when no concurrency bound is configured.
func (p *Policy) ConcurrencyStats() *types.ConcurrencyStats {
	if p.concurrency == nil {
		return nil
	}
	s := p.concurrency.Stats()
	return &s
}

// RateLimiterStats returns nil when no rate limit is configured.
func (p *Policy) RateLimiterStats() *types.RateLimiterStats {
	if p.rate == nil {
		return nil
	}
	s := p.rate.Stats()
	return &s
}

// Close stops the rate limiter timer and fails its queued waiters.
func (p *Policy) Close() error {
	if p.rate != nil {
		return p.rate.Close()
	}
	return nil
}
