package resilience

import (
	"context"
	"time"

	"github.com/LavishGent/backpressure/internal/types"
)

// DefaultTimeout applies when neither the call nor the configuration sets one.
const DefaultTimeout = 30 * time.Second

// TimeoutOrDefault returns timeout if positive, else def, else DefaultTimeout.
func TimeoutOrDefault(timeout, def time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	if def > 0 {
		return def
	}
	return DefaultTimeout
}

type outcome[T any] struct {
	val T
	err error
}

// WithTimeout runs fn with a context that is canceled when either ctx is done
// or timeout elapses, whichever happens first. The returned error tells the
// two apart: a *types.CancellationError with OriginCaller when ctx fired, or
// OriginTimeout when this layer gave up.
//
// fn runs on its own goroutine so that WithTimeout returns as soon as the
// context fires, even if fn is slow to notice.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	return withTimeout(ctx, timeout, fn, nil)
}

// withTimeout is WithTimeout with a hook that runs exactly once, after fn
// has returned, or before withTimeout returns when fn never started. A
// limiter slot released from onDone stays held by an abandoned fn.
func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error), onDone func()) (T, error) {
	var zero T

	if ctx.Err() != nil {
		if onDone != nil {
			onDone()
		}
		return zero, types.CallerCanceled(ctx)
	}

	timeout = TimeoutOrDefault(timeout, 0)
	expired := &types.CancellationError{
		Origin:  types.OriginTimeout,
		Timeout: timeout,
		Err:     context.DeadlineExceeded,
	}

	callCtx, cancel := context.WithTimeoutCause(ctx, timeout, expired)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		if onDone != nil {
			defer onDone()
		}
		v, err := fn(callCtx)
		done <- outcome[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && callCtx.Err() != nil {
			return zero, cancellationCause(ctx, callCtx, expired)
		}
		return r.val, r.err
	case <-callCtx.Done():
		return zero, cancellationCause(ctx, callCtx, expired)
	}
}

// cancellationCause reports which side fired first. context.Cause on the
// derived context returns the parent's cause when the parent won the race.
func cancellationCause(parent, derived context.Context, expired *types.CancellationError) error {
	if context.Cause(derived) == expired {
		return expired
	}
	return types.CallerCanceled(parent)
}
