package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tailscale/hujson"

	"github.com/LavishGent/backpressure/internal/types"
)

// Load loads configuration from a JSON or JSONC file.
// If the file doesn't exist, returns default configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := Parse(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes JSONC (comments and trailing commas allowed) into cfg.
func Parse(data []byte, cfg *Config) error {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("invalid JSONC: %w", err)
	}

	if err := json.Unmarshal(standardized, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// LoadWithEnv loads configuration from a file and applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

//nolint:gocyclo // Environment variable parsing requires many conditional checks
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BACKPRESSURE_DEFAULT_TIMEOUT"); v != "" {
		cfg.Client.DefaultTimeout = parseDuration(v, cfg.Client.DefaultTimeout)
	}
	if v := os.Getenv("BACKPRESSURE_CONNECT_TIMEOUT"); v != "" {
		cfg.Client.ConnectTimeout = parseDuration(v, cfg.Client.ConnectTimeout)
	}
	if v := os.Getenv("BACKPRESSURE_USER_AGENT"); v != "" {
		cfg.Client.UserAgent = v
	}

	if v := os.Getenv("BACKPRESSURE_RETRY_RETRIES"); v != "" {
		cfg.Retry.Retries = parseInt(v, cfg.Retry.Retries)
	}
	if v := os.Getenv("BACKPRESSURE_RETRY_BASE_DELAY"); v != "" {
		cfg.Retry.BaseDelay = parseDuration(v, cfg.Retry.BaseDelay)
	}
	if v := os.Getenv("BACKPRESSURE_RETRY_FACTOR"); v != "" {
		cfg.Retry.Factor = parseFloat(v, cfg.Retry.Factor)
	}

	if v := os.Getenv("BACKPRESSURE_CIRCUIT_BREAKER_ENABLED"); v != "" {
		cfg.CircuitBreaker.Enabled = parseBool(v)
	}
	if v := os.Getenv("BACKPRESSURE_CIRCUIT_BREAKER_FAILURE_THRESHOLD"); v != "" {
		cfg.CircuitBreaker.FailureThreshold = parseInt(v, cfg.CircuitBreaker.FailureThreshold)
	}

	if v := os.Getenv("BACKPRESSURE_MEMORY_CACHE_TTL"); v != "" {
		cfg.MemoryCache.TTL = parseDuration(v, cfg.MemoryCache.TTL)
	}

	if v := os.Getenv("BACKPRESSURE_REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = parseBool(v)
	}
	if v := os.Getenv("BACKPRESSURE_REDIS_ADDRESS"); v != "" {
		cfg.Redis.Address = v
	}
	if v := os.Getenv("BACKPRESSURE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = NewSecretString(v)
	}

	if v := os.Getenv("BACKPRESSURE_FILE_CACHE_DIR"); v != "" {
		cfg.FileCache.Dir = v
	}
	if v := os.Getenv("BACKPRESSURE_FILE_CACHE_FILE"); v != "" {
		cfg.FileCache.FileName = v
	}
	if v := os.Getenv("BACKPRESSURE_FILE_CACHE_TTL"); v != "" {
		cfg.FileCache.TTL = parseDuration(v, cfg.FileCache.TTL)
	}

	if v := os.Getenv("BACKPRESSURE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("BACKPRESSURE_PROMETHEUS_ENABLED"); v != "" {
		cfg.Metrics.Prometheus.Enabled = parseBool(v)
	}

	if v := os.Getenv("DD_AGENT_HOST"); v != "" {
		cfg.Metrics.DataDog.AgentHost = v
		cfg.Metrics.DataDog.Enabled = true
	}
	if v := os.Getenv("DD_DOGSTATSD_PORT"); v != "" {
		cfg.Metrics.DataDog.Port = parseInt(v, cfg.Metrics.DataDog.Port)
	}
	if v := os.Getenv("DD_SERVICE"); v != "" {
		cfg.Metrics.DataDog.Prefix = v
	}
	if v := os.Getenv("DD_ENV"); v != "" {
		cfg.Metrics.DataDog.Tags = append(cfg.Metrics.DataDog.Tags, "env:"+v)
	}

	// Tokens are per service: BACKPRESSURE_<SERVICE>_TOKEN.
	for name, svc := range cfg.Services {
		if v := os.Getenv(serviceEnvKey(name, "TOKEN")); v != "" {
			svc.AuthToken = NewSecretString(v)
			cfg.Services[name] = svc
		}
	}
}

func serviceEnvKey(service, suffix string) string {
	name := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(service))
	return "BACKPRESSURE_" + name + "_" + suffix
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Client.DefaultTimeout <= 0 {
		return types.NewConfigurationError("config", "client.defaultTimeout", "must be positive")
	}
	if c.Client.ConnectTimeout < 0 {
		return types.NewConfigurationError("config", "client.connectTimeout", "must not be negative")
	}

	if c.Retry.Retries < 0 {
		return types.NewConfigurationError("config", "retry.retries", "must not be negative")
	}
	if c.Retry.Factor < 1 {
		return types.NewConfigurationError("config", "retry.factor", "must be at least 1")
	}

	for name, svc := range c.Services {
		if err := svc.validate(name); err != nil {
			return err
		}
	}

	if c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.FailureThreshold <= 0 {
			return types.NewConfigurationError("config", "circuitBreaker.failureThreshold", "must be positive")
		}
		if c.CircuitBreaker.OpenDuration <= 0 {
			return types.NewConfigurationError("config", "circuitBreaker.openDuration", "must be positive")
		}
	}

	if c.MemoryCache.MaxEntries < 0 {
		return types.NewConfigurationError("config", "memoryCache.maxEntries", "must not be negative")
	}

	if c.MemoryCache.Shards <= 0 || (c.MemoryCache.Shards&(c.MemoryCache.Shards-1)) != 0 {
		return types.NewConfigurationError("config", "memoryCache.shards", "must be a positive power of 2")
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		return types.NewConfigurationError("config", "redis.address", "required when redis is enabled")
	}

	if c.FileCache.FileName == "" {
		return types.NewConfigurationError("config", "fileCache.fileName", "must not be empty")
	}

	return nil
}

func (s ServiceConfig) validate(name string) error {
	field := func(f string) string { return "services." + name + "." + f }

	if s.BaseURL == "" {
		return types.NewConfigurationError("config", field("baseUrl"), "is required")
	}
	if s.Concurrency < 0 {
		return types.NewConfigurationError("config", field("concurrency"), "must not be negative")
	}
	if s.RateLimit != nil {
		if s.RateLimit.Max <= 0 {
			return types.NewConfigurationError("config", field("rateLimit.max"), "must be a positive integer")
		}
		if s.RateLimit.Window <= 0 {
			return types.NewConfigurationError("config", field("rateLimit.window"), "must be positive")
		}
	}
	if s.Retries != nil && *s.Retries < 0 {
		return types.NewConfigurationError("config", field("retries"), "must not be negative")
	}
	return nil
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func parseInt(s string, defaultVal int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return defaultVal
	}
	return v
}

func parseFloat(s string, defaultVal float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseDuration accepts Go duration strings or a bare number of milliseconds.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)

	if d, err := time.ParseDuration(s); err == nil {
		return d
	}

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}

	return defaultVal
}
