package backpressure

import (
	"github.com/LavishGent/backpressure/internal/cache"
	"github.com/LavishGent/backpressure/internal/client"
	"github.com/LavishGent/backpressure/internal/config"
	"github.com/LavishGent/backpressure/internal/metrics"
	"github.com/LavishGent/backpressure/internal/resilience"
	"github.com/LavishGent/backpressure/internal/types"
)

type (
	// ServiceConfig describes one downstream API.
	ServiceConfig = config.ServiceConfig
	// RateLimitConfig bounds call starts within a rolling window.
	RateLimitConfig = config.RateLimitConfig
	// Request describes one call made through a Client.
	Request = client.Request
	// RetryOptions controls attempts and exponential backoff.
	RetryOptions = resilience.RetryOptions
	// ClientStats contains a client's counters and limiter state.
	ClientStats = types.ClientStats
	// SecretString holds a token that is redacted in logs and JSON.
	SecretString = types.SecretString
	// Key is a cache key or NoCache.
	Key = types.Key
	// Transport performs the HTTP call.
	Transport = types.Transport
	// TransportFunc adapts a function to Transport.
	TransportFunc = types.TransportFunc
	// Store is the byte store behind memory caches.
	Store = types.Store
	// MetricsRecorder receives request, retry, queue, cache and circuit events.
	MetricsRecorder = types.MetricsRecorder
	// MetricsSnapshot contains a point-in-time view of the tracker.
	MetricsSnapshot = types.MetricsSnapshot
	// HealthMetrics is the set of gauges published periodically.
	HealthMetrics = types.HealthMetrics
	// Timer measures one operation for Telemetry.StartTimer.
	Timer = metrics.Timer
	// Logger provides logging operations.
	Logger = types.Logger
	// Clock supplies the current time to TTL checks.
	Clock = types.Clock
)

type (
	// MemoryCacheOptions configures WithMemoryCache.
	MemoryCacheOptions[A, V any] = cache.MemoryOptions[A, V]
	// FileCacheOptions configures WithFileCache.
	FileCacheOptions[A, V any] = cache.FileOptions[A, V]
	// ItemResult is the outcome of one bulk item.
	ItemResult[T any] = resilience.ItemResult[T]
)

// NoExpiry as a cache TTL keeps entries until they are invalidated.
const NoExpiry = cache.NoExpiry

// NoCache makes a cache wrapper call the fetcher without storing the result.
var NoCache = types.NoCache

// KeyOf returns a cacheable key. The empty string yields NoCache.
func KeyOf(s string) Key {
	return types.KeyOf(s)
}

// NewSecretString wraps a token.
func NewSecretString(value string) SecretString {
	return types.NewSecretString(value)
}
