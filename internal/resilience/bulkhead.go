package resilience

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/LavishGent/backpressure/internal/types"
)

// ConcurrencyLimiter bounds how many tasks run at once. Tasks beyond the
// bound wait in strict FIFO order; nothing is rejected.
type ConcurrencyLimiter struct {
	sem *semaphore.Weighted
	max int

	active   atomic.Int64
	queued   atomic.Int64
	executed atomic.Int64
	canceled atomic.Int64
}

// NewConcurrencyLimiter creates a limiter allowing n tasks in flight.
func NewConcurrencyLimiter(n int) (*ConcurrencyLimiter, error) {
	if n <= 0 {
		return nil, types.NewConfigurationError("concurrency-limiter", "concurrency", "must be a positive integer")
	}
	return &ConcurrencyLimiter{sem: semaphore.NewWeighted(int64(n)), max: n}, nil
}

// Acquire blocks until a slot is free or ctx is done. A waiter whose context
// fires leaves the queue without ever holding a slot.
func (l *ConcurrencyLimiter) Acquire(ctx context.Context) (func(), error) {
	if ctx.Err() != nil {
		l.canceled.Add(1)
		return nil, types.CallerCanceled(ctx)
	}

	if !l.sem.TryAcquire(1) {
		l.queued.Add(1)
		err := l.sem.Acquire(ctx, 1)
		l.queued.Add(-1)
		if err != nil {
			l.canceled.Add(1)
			return nil, types.CallerCanceled(ctx)
		}
	}

	l.active.Add(1)
	return l.releaseOnce(), nil
}

func (l *ConcurrencyLimiter) releaseOnce() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			l.executed.Add(1)
			l.active.Add(-1)
			l.sem.Release(1)
		})
	}
}

// Do runs fn once a slot is available.
func (l *ConcurrencyLimiter) Do(ctx context.Context, fn func(context.Context) error) error {
	release, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	return fn(ctx)
}

// ActiveCount returns the number of slots held.
func (l *ConcurrencyLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// QueuedCount returns the number of callers waiting for a slot.
func (l *ConcurrencyLimiter) QueuedCount() int {
	return int(l.queued.Load())
}

// Stats returns limiter statistics.
func (l *ConcurrencyLimiter) Stats() types.ConcurrencyStats {
	return types.ConcurrencyStats{
		Max:      l.max,
		Active:   l.ActiveCount(),
		Queued:   l.QueuedCount(),
		Executed: l.executed.Load(),
		Canceled: l.canceled.Load(),
	}
}

// UnlimitedLimiter is a no-op limiter used when no bound is configured.
type UnlimitedLimiter struct{}

// Acquire grants at once unless ctx is already done.
func (UnlimitedLimiter) Acquire(ctx context.Context) (func(), error) {
	if ctx.Err() != nil {
		return nil, types.CallerCanceled(ctx)
	}
	return func() {}, nil
}

// Limit runs fn under l. The slot is held until fn returns.
func Limit[T any](ctx context.Context, l types.Limiter, fn func(context.Context) (T, error)) (T, error) {
	release, err := l.Acquire(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	defer release()

	return fn(ctx)
}
