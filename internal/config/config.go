// Package config provides configuration management for backpressure.
package config

import (
	"time"

	"github.com/LavishGent/backpressure/internal/types"
)

// SecretString is a string type that redacts its value when marshaled to JSON.
type SecretString = types.SecretString

// NewSecretString creates a new SecretString with the provided value.
func NewSecretString(value string) SecretString {
	return types.NewSecretString(value)
}

// Config contains all configuration for backpressure clients and caches.
//
// Precedence for per-call settings, highest first: the call's own options,
// the service entry in Services, the Client defaults. LoadWithEnv applies
// environment overrides on top of the file before validation.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type Config struct {
	Services       map[string]ServiceConfig `json:"services"`
	Client         ClientConfig             `json:"client"`
	Retry          RetryConfig              `json:"retry"`
	CircuitBreaker CircuitBreakerConfig     `json:"circuitBreaker"`
	MemoryCache    MemoryCacheConfig        `json:"memoryCache"`
	Redis          RedisConfig              `json:"redis"`
	FileCache      FileCacheConfig          `json:"fileCache"`
	Metrics        MetricsConfig            `json:"metrics"`
}

// ClientConfig holds transport defaults shared by every service.
type ClientConfig struct {
	DefaultTimeout time.Duration `json:"defaultTimeout"`
	ConnectTimeout time.Duration `json:"connectTimeout"`
	UserAgent      string        `json:"userAgent"`
}

// ServiceConfig describes one downstream API the factory builds a client for.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type ServiceConfig struct {
	Name        string           `json:"name"`
	BaseURL     string           `json:"baseUrl"`
	AuthToken   SecretString     `json:"authToken"`
	Concurrency int              `json:"concurrency"`
	RateLimit   *RateLimitConfig `json:"rateLimit,omitempty"`
	Timeout     time.Duration    `json:"timeout"`
	Retries     *int             `json:"retries,omitempty"`
}

// RateLimitConfig bounds how many calls may start within a rolling window.
type RateLimitConfig struct {
	Max    int           `json:"max"`
	Window time.Duration `json:"window"`
}

// RetryConfig contains configuration for the retry pattern.
type RetryConfig struct {
	BaseDelay time.Duration `json:"baseDelay"`
	MaxDelay  time.Duration `json:"maxDelay"`
	Factor    float64       `json:"factor"`
	Retries   int           `json:"retries"`
	Jitter    bool          `json:"jitter"`
}

// CircuitBreakerConfig contains configuration for the circuit breaker pattern.
type CircuitBreakerConfig struct {
	Enabled             bool          `json:"enabled"`
	FailureThreshold    int           `json:"failureThreshold"`
	SuccessThreshold    int           `json:"successThreshold"`
	OpenDuration        time.Duration `json:"openDuration"`
	HalfOpenMaxRequests int           `json:"halfOpenMaxRequests"`
}

// MemoryCacheConfig contains configuration for the in-process TTL cache.
type MemoryCacheConfig struct {
	TTL              time.Duration `json:"ttl"`
	MaxTTL           time.Duration `json:"maxTTL"`
	CleanupInterval  time.Duration `json:"cleanupInterval"`
	MaxSizeMB        int           `json:"maxSizeMB"`
	Shards           int           `json:"shards"`
	MaxEntrySize     int           `json:"maxEntrySize"`
	MaxEntries       int           `json:"maxEntries"`
	ShouldCacheEmpty bool          `json:"shouldCacheEmpty"`
}

// RedisConfig contains configuration for the optional shared Redis store.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type RedisConfig struct {
	DialTimeout   time.Duration `json:"dialTimeout"`
	ReadTimeout   time.Duration `json:"readTimeout"`
	WriteTimeout  time.Duration `json:"writeTimeout"`
	HealthCheck   time.Duration `json:"healthCheck"`
	Password      SecretString  `json:"password"`
	Address       string        `json:"address"`
	KeyPrefix     string        `json:"keyPrefix"`
	DB            int           `json:"db"`
	PoolSize      int           `json:"poolSize"`
	Enabled       bool          `json:"enabled"`
	EnableTLS     bool          `json:"enableTLS"`
	TLSSkipVerify bool          `json:"tlsSkipVerify"`
}

// FileCacheConfig contains configuration for the persistent file-backed cache.
type FileCacheConfig struct {
	Dir        string        `json:"dir"`
	FileName   string        `json:"fileName"`
	TTL        time.Duration `json:"ttl"`
	FlushDelay time.Duration `json:"flushDelay"`
}

// MetricsConfig contains configuration for metrics publishing.
//
//nolint:govet // Small config struct - minimal alignment benefit
type MetricsConfig struct {
	PublishInterval time.Duration    `json:"publishInterval"`
	DataDog         DataDogConfig    `json:"datadog"`
	Prometheus      PrometheusConfig `json:"prometheus"`
	Enabled         bool             `json:"enabled"`
}

// DataDogConfig contains configuration for DataDog metrics publishing.
//
//nolint:govet // Small config struct - minimal alignment benefit
type DataDogConfig struct {
	Tags      []string `json:"tags"`
	AgentHost string   `json:"agentHost"`
	Prefix    string   `json:"prefix"`
	Port      int      `json:"port"`
	Enabled   bool     `json:"enabled"`
}

// PrometheusConfig contains configuration for the Prometheus collector.
type PrometheusConfig struct {
	Namespace string `json:"namespace"`
	Enabled   bool   `json:"enabled"`
}

// Service returns the named service entry with its Name filled in.
func (c *Config) Service(name string) (ServiceConfig, bool) {
	svc, ok := c.Services[name]
	if !ok {
		return ServiceConfig{}, false
	}
	if svc.Name == "" {
		svc.Name = name
	}
	return svc, true
}

// RetriesFor returns the service's retry count or the global default.
func (c *Config) RetriesFor(svc ServiceConfig) int {
	if svc.Retries != nil {
		return *svc.Retries
	}
	return c.Retry.Retries
}

// TimeoutFor returns the service's timeout or the client default.
func (c *Config) TimeoutFor(svc ServiceConfig) time.Duration {
	if svc.Timeout > 0 {
		return svc.Timeout
	}
	return c.Client.DefaultTimeout
}
