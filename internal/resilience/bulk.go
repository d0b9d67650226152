package resilience

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/LavishGent/backpressure/internal/types"
)

// BulkOptions configures MapWithConcurrencyAndRetry.
type BulkOptions struct {
	Retry       RetryOptions
	Concurrency int
}

// ItemResult is the outcome of one input item. Exactly one of Value and Err
// is meaningful.
type ItemResult[T any] struct {
	Value T
	Err   error
	Index int
}

// MapWithConcurrencyAndRetry maps items through mapper with at most
// opts.Concurrency calls in flight, retrying each item inside its slot.
//
// Every item runs to success or retry exhaustion; one failure never stops the
// others. Results come back in input order. The error is a
// *types.AggregateError holding a *types.ItemError per failed item, or nil.
func MapWithConcurrencyAndRetry[In, Out any](
	ctx context.Context,
	items []In,
	mapper func(context.Context, In) (Out, error),
	opts BulkOptions,
) ([]ItemResult[Out], error) {
	if opts.Concurrency <= 0 {
		return nil, types.NewConfigurationError("bulk", "concurrency", "must be a positive integer")
	}

	results := make([]ItemResult[Out], len(items))

	// A plain Group: errgroup.WithContext would cancel siblings on the first failure.
	var g errgroup.Group
	g.SetLimit(opts.Concurrency)

	for i, item := range items {
		g.Go(func() error {
			v, err := Retry(ctx, opts.Retry, func(ctx context.Context) (Out, error) {
				return mapper(ctx, item)
			})
			results[i] = ItemResult[Out]{Index: i, Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, &types.ItemError{Index: r.Index, Err: r.Err})
		}
	}
	if len(errs) > 0 {
		return results, &types.AggregateError{Errors: errs, Total: len(items)}
	}

	return results, nil
}

// Values returns the values of the successful results, in input order.
func Values[T any](results []ItemResult[T]) []T {
	out := make([]T, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Value)
		}
	}
	return out
}
