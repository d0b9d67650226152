package backpressure

import (
	"context"

	"github.com/LavishGent/backpressure/internal/config"
	"github.com/LavishGent/backpressure/internal/resilience"
)

// BulkOptions configures MapWithConcurrencyAndRetry.
type BulkOptions = resilience.BulkOptions

// BulkOptionsFromConfig uses cfg's retry settings with the given concurrency.
func BulkOptionsFromConfig(cfg *config.Config, concurrency int) BulkOptions {
	return BulkOptions{
		Retry:       resilience.RetryOptionsFromConfig(cfg.Retry),
		Concurrency: concurrency,
	}
}

// MapWithConcurrencyAndRetry maps items through mapper with at most
// opts.Concurrency calls in flight, retrying each item on its own.
//
// All items are attempted. Results keep input order and carry either a value
// or the item's last error; the returned error is an *AggregateError when any
// item failed.
func MapWithConcurrencyAndRetry[In, Out any](
	ctx context.Context,
	items []In,
	mapper func(context.Context, In) (Out, error),
	opts BulkOptions,
) ([]ItemResult[Out], error) {
	return resilience.MapWithConcurrencyAndRetry(ctx, items, mapper, opts)
}

// Values returns the successful values in input order.
func Values[T any](results []ItemResult[T]) []T {
	return resilience.Values(results)
}
