package types

import (
	"context"
	"encoding/json"
	"time"
)

// Transport performs exactly one network call. Implementations must honor ctx
// and return an error for non-success responses.
type Transport interface {
	Do(ctx context.Context, url string, token SecretString) (json.RawMessage, error)
}

// TransportFunc adapts a plain function to Transport.
type TransportFunc func(ctx context.Context, url string, token SecretString) (json.RawMessage, error)

func (f TransportFunc) Do(ctx context.Context, url string, token SecretString) (json.RawMessage, error) {
	return f(ctx, url, token)
}

// Limiter gates the start of a task. The returned release must be called
// exactly once after the task settles.
type Limiter interface {
	Acquire(ctx context.Context) (release func(), err error)
}

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, dest any) error
}

type MetricsRecorder interface {
	RecordRequest(service string, latency time.Duration, err error)
	RecordRetry(service string, attempt int, delay time.Duration)
	RecordQueueWait(service string, limiter string, wait time.Duration)
	RecordHit(layer string, key string, latency time.Duration)
	RecordMiss(layer string, key string, latency time.Duration)
	RecordError(layer string, operation string, err error)
	RecordCircuitBreakerStateChange(service string, from, to string)
}

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
