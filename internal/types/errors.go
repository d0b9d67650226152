package types

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrClosed        = errors.New("backpressure: closed")
	ErrCircuitOpen   = errors.New("backpressure: circuit breaker open")
	ErrInvalidConfig = errors.New("backpressure: invalid configuration")
	ErrTimeout       = errors.New("backpressure: timed out")
	ErrCanceled      = errors.New("backpressure: canceled by caller")
	ErrInvalidKey    = errors.New("backpressure: invalid cache key")
	ErrEmptyBody     = errors.New("backpressure: empty response body")
	ErrCacheMiss     = errors.New("backpressure: cache miss")
	ErrUnavailable   = errors.New("backpressure: store unavailable")
)

// ConfigurationError reports an invalid limiter, client or cache parameter.
// It is raised at construction time and is never retried.
type ConfigurationError struct {
	Component string
	Field     string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %s", e.Component, e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrInvalidConfig
}

func NewConfigurationError(component, field, reason string) *ConfigurationError {
	return &ConfigurationError{
		Component: component,
		Field:     field,
		Reason:    reason,
	}
}

// MaxBodySnippet is the maximum number of characters of a response body kept in a TransportError.
const MaxBodySnippet = 300

// TransportError is returned by the transport for non-2xx responses and network failures.
type TransportError struct {
	URL        string
	Status     string
	Body       string
	Err        error
	StatusCode int
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		msg := fmt.Sprintf("request to %s failed: %s", e.URL, e.Status)
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
		if e.Body != "" {
			msg += ": " + e.Body
		}
		return msg
	}
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Snippet truncates body to at most MaxBodySnippet characters.
func Snippet(body string) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= MaxBodySnippet {
		return body
	}
	return string(runes[:MaxBodySnippet])
}

// CancellationOrigin tells which side gave up on a call.
type CancellationOrigin int

const (
	OriginCaller CancellationOrigin = iota + 1
	OriginTimeout
)

func (o CancellationOrigin) String() string {
	switch o {
	case OriginCaller:
		return "caller"
	case OriginTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// CancellationError is returned when a call was aborted, either because the
// caller's context fired or because the per-call timeout elapsed first.
type CancellationError struct {
	Err     error
	Origin  CancellationOrigin
	Timeout time.Duration
}

func (e *CancellationError) Error() string {
	if e.Origin == OriginTimeout {
		return fmt.Sprintf("backpressure: timed out after %v", e.Timeout)
	}
	if e.Err != nil {
		return fmt.Sprintf("backpressure: canceled by caller: %v", e.Err)
	}
	return ErrCanceled.Error()
}

// Is matches ErrTimeout or ErrCanceled depending on the origin.
func (e *CancellationError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Origin == OriginTimeout
	case ErrCanceled:
		return e.Origin == OriginCaller
	}
	return false
}

func (e *CancellationError) Unwrap() error {
	return e.Err
}

// CallerCanceled builds the CancellationError for a context that is already done.
func CallerCanceled(ctx context.Context) *CancellationError {
	err := context.Cause(ctx)
	if err == nil {
		err = context.Canceled
	}
	return &CancellationError{Origin: OriginCaller, Err: err}
}

// ItemError is one failed element of a bulk operation.
type ItemError struct {
	Err   error
	Index int
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// AggregateError bundles the failures of a bulk operation after every item was attempted.
type AggregateError struct {
	Errors []error
	Total  int
}

func (e *AggregateError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d items failed", len(e.Errors), e.Total)
	for _, err := range e.Errors {
		b.WriteString("; ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

func IsCancellation(err error) bool {
	var ce *CancellationError
	return errors.As(err, &ce)
}

func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

// IsRetryable reports whether the retry layer may re-attempt after err.
// Retries are not content-aware: anything that is not a cancellation,
// configuration, closed or open-circuit error is retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if IsCancellation(err) {
		return false
	}

	if IsConfigurationError(err) {
		return false
	}

	if errors.Is(err, ErrClosed) {
		return false
	}

	if IsCircuitOpen(err) {
		return false
	}

	return true
}
