// Package backpressure wraps outbound HTTP calls in a fault-tolerant,
// throughput-controlled client.
//
// backpressure composes rate limiting, concurrency bounding, retry with
// exponential backoff, per-call timeouts and an optional circuit breaker
// around a JSON transport, and adds two caching layers for fetchers: an
// in-process TTL cache with single-flight de-duplication and a persistent
// file-backed cache.
//
// # Features
//
//   - Rate Limiting: at most Max call starts in any rolling Window
//   - Concurrency Bounding: FIFO queue with a fixed number of in-flight calls
//   - Retry: exponential backoff with optional jitter and a delay cap
//   - Cancellation: timeout and caller aborts are distinguished
//   - Caching: memory (bigcache, optionally in front of Redis) and a JSON file
//   - Bulk Mapping: bounded fan-out where every item is attempted
//   - Observability: tracker, DogStatsD and Prometheus recorders
//
// # Quick Start
//
// Build a client for one service:
//
//	c, err := backpressure.APIFactory(backpressure.ServiceConfig{
//	    Name:        "users",
//	    BaseURL:     "https://api.example.com/v1",
//	    AuthToken:   backpressure.NewSecretString(os.Getenv("USERS_TOKEN")),
//	    Concurrency: 4,
//	    RateLimit:   &backpressure.RateLimitConfig{Max: 10, Window: time.Second},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	user, err := backpressure.Get[User](ctx, c, "/users/42")
//
// Per-call settings override the service configuration:
//
//	user, err := backpressure.Do[User](ctx, c, backpressure.Request{
//	    Path:    "/users/42",
//	    Timeout: 2 * time.Second,
//	    Retry:   &backpressure.RetryOptions{Retries: 1, BaseDelay: 100 * time.Millisecond, Factor: 2},
//	})
//
// # Errors
//
// Errors are classified so callers can branch with errors.Is and errors.As:
//
//   - *ConfigurationError: invalid parameters, returned at construction
//   - *TransportError: non-2xx status or network failure, retried
//   - *CancellationError: matches ErrTimeout or ErrCanceled, never retried
//   - *AggregateError: failed items of MapWithConcurrencyAndRetry
//
// The client returns the error of the last attempt verbatim.
//
// # Memory Cache
//
// WithMemoryCache wraps a fetcher. Concurrent calls for the same key share
// one fetch, and returning NoCache from GetKey bypasses the cache:
//
//	users, err := backpressure.WithMemoryCache(backpressure.MemoryCacheOptions[int, User]{
//	    GetKey: func(id int) backpressure.Key { return backpressure.KeyOf(strconv.Itoa(id)) },
//	    Fetcher: func(ctx context.Context, id int) (User, error) {
//	        return backpressure.Get[User](ctx, c, "/users/"+strconv.Itoa(id))
//	    },
//	    TTL: time.Minute,
//	})
//	defer users.Close()
//
//	u, err := users.Get(ctx, 42)
//
// Hits return the value the fetcher produced. To share entries between caches
// or processes, pass a store built by NewStore; values are then also written
// to it as JSON:
//
//	store, err := backpressure.NewStore(backpressure.WithConfig(cfg))
//	defer store.Close()
//	users, err := backpressure.WithMemoryCache(opts, backpressure.WithStore(store))
//
// # File Cache
//
// OpenFileCache returns a persistent store; wrappers created with
// WithFileCache share it. Close flushes pending writes:
//
//	fc := backpressure.OpenFileCache(backpressure.WithConfig(cfg))
//	defer fc.Close()
//
//	lookup := backpressure.WithFileCache(fc, backpressure.FileCacheOptions[string, Repo]{
//	    GetKey:  func(name string) backpressure.Key { return backpressure.KeyOf("repo:" + name) },
//	    Fetcher: fetchRepo,
//	})
//
// # Bulk Requests
//
//	results, err := backpressure.MapWithConcurrencyAndRetry(ctx, ids, fetchUser,
//	    backpressure.BulkOptionsFromConfig(cfg, 8))
//	var agg *backpressure.AggregateError
//	if errors.As(err, &agg) {
//	    // results still holds the successful values
//	}
//
// # Configuration
//
// Load configuration from a JSON or JSONC file with environment overrides:
//
//	c, err := backpressure.NewFromFile("backpressure.jsonc", "users")
//
// Or start from the defaults:
//
//	cfg := backpressure.Config()
//	cfg.Retry.Retries = 5
//	c, err := backpressure.NewFromConfig(cfg, "users")
//
// For testing, use the test configuration:
//
//	cfg := backpressure.TestConfig()
//
// # Thread Safety
//
// Clients, cache wrappers and telemetry are safe for concurrent use.
package backpressure
