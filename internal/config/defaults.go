package config

import "time"

const (
	DefaultCacheDir      = ".cache"
	DefaultCacheFileName = "persistent-cache.json"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Services: map[string]ServiceConfig{},
		Client: ClientConfig{
			DefaultTimeout: 30 * time.Second,
			ConnectTimeout: 10 * time.Second,
			UserAgent:      "backpressure/1.0",
		},
		Retry: RetryConfig{
			Retries:   3,
			BaseDelay: 500 * time.Millisecond,
			Factor:    2.0,
			MaxDelay:  0,
			Jitter:    false,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:             false,
			FailureThreshold:    5,
			SuccessThreshold:    2,
			OpenDuration:        30 * time.Second,
			HalfOpenMaxRequests: 3,
		},
		MemoryCache: MemoryCacheConfig{
			TTL:             5 * time.Minute,
			MaxTTL:          24 * time.Hour,
			CleanupInterval: time.Minute,
			MaxSizeMB:       64,
			Shards:          256,
			MaxEntrySize:    1024 * 1024, // 1MB
			MaxEntries:      10000,
		},
		Redis: RedisConfig{
			Enabled:      false,
			Address:      "localhost:6379",
			KeyPrefix:    "backpressure:",
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			HealthCheck:  10 * time.Second,
		},
		FileCache: FileCacheConfig{
			Dir:        DefaultCacheDir,
			FileName:   DefaultCacheFileName,
			TTL:        24 * time.Hour,
			FlushDelay: time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:         false,
			PublishInterval: 10 * time.Second,
			DataDog: DataDogConfig{
				Enabled:   false,
				AgentHost: "127.0.0.1",
				Port:      8125,
				Prefix:    "backpressure",
				Tags:      []string{},
			},
			Prometheus: PrometheusConfig{
				Enabled:   false,
				Namespace: "backpressure",
			},
		},
	}
}

// ForTesting returns a minimal configuration suitable for unit tests:
// short timeouts, no backoff to speak of, no external backends.
func ForTesting() *Config {
	cfg := DefaultConfig()
	cfg.Client.DefaultTimeout = time.Second
	cfg.Client.ConnectTimeout = time.Second
	cfg.Retry = RetryConfig{
		Retries:   2,
		BaseDelay: time.Millisecond,
		Factor:    2.0,
	}
	cfg.CircuitBreaker.OpenDuration = 100 * time.Millisecond
	cfg.MemoryCache.MaxSizeMB = 8
	cfg.MemoryCache.Shards = 16
	cfg.MemoryCache.CleanupInterval = 0
	cfg.Redis.KeyPrefix = "backpressure:test:"
	cfg.FileCache.FlushDelay = 10 * time.Millisecond
	cfg.Metrics.PublishInterval = 10 * time.Millisecond
	return cfg
}

// ForTestingWithRedis returns a test config with Redis enabled.
func ForTestingWithRedis(addr string) *Config {
	cfg := ForTesting()
	cfg.Redis.Enabled = true
	cfg.Redis.Address = addr
	return cfg
}
