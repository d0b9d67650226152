package types

import "time"

// ConcurrencyStats is a point-in-time view of a concurrency limiter.
type ConcurrencyStats struct {
	Max      int
	Active   int
	Queued   int
	Executed int64
	Canceled int64
}

// RateLimiterStats is a point-in-time view of a rate limiter.
type RateLimiterStats struct {
	Window   time.Duration
	Max      int
	InWindow int
	Queued   int
	Started  int64
	Canceled int64
}

// ClientStats aggregates the counters of one request client.
//
//nolint:govet // Stats struct - logical grouping prioritized over alignment
type ClientStats struct {
	Service     string
	Requests    int64
	Failures    int64
	Retries     int64
	Concurrency *ConcurrencyStats
	RateLimit   *RateLimiterStats
	Circuit     string
}
