package metrics

import (
	"time"

	"github.com/LavishGent/backpressure/internal/types"
)

// NoOpTracker discards everything.
type NoOpTracker struct{}

func NewNoOpTracker() *NoOpTracker {
	return &NoOpTracker{}
}

func (*NoOpTracker) RecordRequest(string, time.Duration, error) {}
func (*NoOpTracker) RecordRetry(string, int, time.Duration) {}
func (*NoOpTracker) RecordQueueWait(string, string, time.Duration) {}
func (*NoOpTracker) RecordHit(string, string, time.Duration) {}
func (*NoOpTracker) RecordMiss(string, string, time.Duration) {}
func (*NoOpTracker) RecordError(string, string, error) {}
func (*NoOpTracker) RecordCircuitBreakerStateChange(string, string, string) {}

func (*NoOpTracker) Snapshot() types.MetricsSnapshot { return types.MetricsSnapshot{} }
func (*NoOpTracker) Health() *types.HealthMetrics { return nil }

// NoOpPublisher is used when publishing is disabled.
type NoOpPublisher struct{}

func NewNoOpPublisher() *NoOpPublisher {
	return &NoOpPublisher{}
}

func (*NoOpPublisher) Gauge(string, float64, ...string) {}
func (*NoOpPublisher) Incr(string, ...string) {}
func (*NoOpPublisher) Count(string, int64, ...string) {}
func (*NoOpPublisher) Histogram(string, float64, ...string) {}
func (*NoOpPublisher) Timing(string, time.Duration, ...string) {}
func (*NoOpPublisher) Event(string, string, string, ...string) {}
func (*NoOpPublisher) PublishHealthMetrics(*types.HealthMetrics) {}
func (*NoOpPublisher) Close() error { return nil }

var (
	_ types.MetricsRecorder = (*NoOpTracker)(nil)
	_ types.Publisher       = (*NoOpPublisher)(nil)
)
