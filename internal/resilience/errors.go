package resilience

import (
	"github.com/LavishGent/backpressure/internal/types"
)

// ErrCircuitOpen is returned by Guard and Execute while the breaker is open.
var ErrCircuitOpen = types.ErrCircuitOpen

// IsRetryable determines if an error may be re-attempted.
// Retries are not content-aware: transport failures of any kind are retried,
// while cancellation, configuration, closed and open-circuit errors are not.
func IsRetryable(err error) bool {
	return types.IsRetryable(err)
}
