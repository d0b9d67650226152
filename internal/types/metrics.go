package types

import "time"

// Publisher sends metrics to a backend such as DogStatsD or a log.
type Publisher interface {
	Gauge(name string, value float64, tags ...string)
	Incr(name string, tags ...string)
	Count(name string, value int64, tags ...string)
	Histogram(name string, value float64, tags ...string)
	Timing(name string, duration time.Duration, tags ...string)
	Event(title, text, alertType string, tags ...string)
	PublishHealthMetrics(m *HealthMetrics)
	Close() error
}

// MetricsSnapshot is a point-in-time copy of tracked counters.
type MetricsSnapshot struct {
	Timestamp      time.Time
	Requests       int64
	Failures       int64
	Retries        int64
	QueueWaits     int64
	CacheHits      int64
	CacheMisses    int64
	Errors         int64
	CircuitChanges int64
	AvgLatencyMs   float64
	P50LatencyMs   float64
	P95LatencyMs   float64
	P99LatencyMs   float64
	AvgQueueWaitMs float64
}

func (s MetricsSnapshot) HitRatio() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

func (s MetricsSnapshot) FailureRatio() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Requests)
}

// HealthMetrics is the batch a BackgroundPublisher sends each interval.
type HealthMetrics struct {
	Requests         int64
	Failures         int64
	Retries          int64
	FailureRatio     float64
	HitRatio         float64
	AverageLatencyMs float64
	P95LatencyMs     float64
	AverageQueueMs   float64
}

// HealthFromSnapshot derives the published batch from a snapshot.
func HealthFromSnapshot(s MetricsSnapshot) *HealthMetrics {
	return &HealthMetrics{
		Requests:         s.Requests,
		Failures:         s.Failures,
		Retries:          s.Retries,
		FailureRatio:     s.FailureRatio(),
		HitRatio:         s.HitRatio(),
		AverageLatencyMs: s.AvgLatencyMs,
		P95LatencyMs:     s.P95LatencyMs,
		AverageQueueMs:   s.AvgQueueWaitMs,
	}
}
