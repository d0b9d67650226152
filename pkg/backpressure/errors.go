package backpressure

import (
	"github.com/LavishGent/backpressure/internal/types"
)

type (
	// ConfigurationError reports an invalid limiter, client or cache parameter.
	ConfigurationError = types.ConfigurationError
	// TransportError reports a non-2xx response or a network failure.
	TransportError = types.TransportError
	// CancellationError reports a timeout or a caller abort.
	CancellationError = types.CancellationError
	// AggregateError bundles the failures of a bulk map.
	AggregateError = types.AggregateError
	// ItemError is one failed bulk item.
	ItemError = types.ItemError
)

var (
	// ErrClosed indicates that the client or cache has been closed.
	ErrClosed = types.ErrClosed
	// ErrCircuitOpen indicates that the circuit breaker rejected the call.
	ErrCircuitOpen = types.ErrCircuitOpen
	// ErrInvalidConfig is wrapped by every ConfigurationError.
	ErrInvalidConfig = types.ErrInvalidConfig
	// ErrTimeout matches cancellations caused by the per-call timeout.
	ErrTimeout = types.ErrTimeout
	// ErrCanceled matches cancellations caused by the caller's context.
	ErrCanceled = types.ErrCanceled
	// ErrInvalidKey indicates that a path or cache key is invalid.
	ErrInvalidKey = types.ErrInvalidKey
	// ErrEmptyBody indicates a successful response without a body.
	ErrEmptyBody = types.ErrEmptyBody
	// ErrCacheMiss indicates that a store has no entry for a key.
	ErrCacheMiss = types.ErrCacheMiss
	// ErrUnavailable indicates that a remote store cannot be reached.
	ErrUnavailable = types.ErrUnavailable
)

// NewConfigurationError creates a configuration error for component.field.
func NewConfigurationError(component, field, reason string) *ConfigurationError {
	return types.NewConfigurationError(component, field, reason)
}

// IsRetryable returns true if the retry layer would re-attempt after err.
func IsRetryable(err error) bool {
	return types.IsRetryable(err)
}

// IsCancellation returns true for timeouts and caller aborts.
func IsCancellation(err error) bool {
	return types.IsCancellation(err)
}

func IsTimeout(err error) bool {
	return types.IsTimeout(err)
}

func IsCircuitOpen(err error) bool {
	return types.IsCircuitOpen(err)
}

func IsConfigurationError(err error) bool {
	return types.IsConfigurationError(err)
}

func IsCacheMiss(err error) bool {
	return types.IsCacheMiss(err)
}
