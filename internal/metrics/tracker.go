// Package metrics records request, retry, queue and cache events and
// publishes them to logs, DogStatsD or Prometheus.
package metrics

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LavishGent/backpressure/internal/types"
)

const (
	defaultLatencyBufferSize = 10000
)

// Tracker keeps in-process counters and a ring buffer of request latencies.
type Tracker struct {
	requests       atomic.Int64
	failures       atomic.Int64
	retries        atomic.Int64
	queueWaits     atomic.Int64
	queueWaitNanos atomic.Int64
	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	errorCount     atomic.Int64
	cbStateChanges atomic.Int64

	latencyMu     sync.RWMutex
	latencyBuffer []time.Duration
	latencyIndex  int
	latencyCount  int
}

var _ types.MetricsRecorder = (*Tracker)(nil)

func NewTracker() *Tracker {
	return &Tracker{
		latencyBuffer: make([]time.Duration, defaultLatencyBufferSize),
	}
}

func (t *Tracker) RecordRequest(_ string, latency time.Duration, err error) {
	t.requests.Add(1)
	if err != nil {
		t.failures.Add(1)
	}
	t.recordLatency(latency)
}

func (t *Tracker) RecordRetry(string, int, time.Duration) {
	t.retries.Add(1)
}

func (t *Tracker) RecordQueueWait(_ string, _ string, wait time.Duration) {
	t.queueWaits.Add(1)
	t.queueWaitNanos.Add(int64(wait))
}

func (t *Tracker) RecordHit(string, string, time.Duration) {
	t.cacheHits.Add(1)
}

func (t *Tracker) RecordMiss(string, string, time.Duration) {
	t.cacheMisses.Add(1)
}

func (t *Tracker) RecordError(string, string, error) {
	t.errorCount.Add(1)
}

func (t *Tracker) RecordCircuitBreakerStateChange(string, string, string) {
	t.cbStateChanges.Add(1)
}

// recordLatency writes into the ring buffer without allocating.
func (t *Tracker) recordLatency(latency time.Duration) {
	t.latencyMu.Lock()
	t.latencyBuffer[t.latencyIndex] = latency
	t.latencyIndex = (t.latencyIndex + 1) % len(t.latencyBuffer)
	if t.latencyCount < len(t.latencyBuffer) {
		t.latencyCount++
	}
	t.latencyMu.Unlock()
}

// Snapshot returns the current counters and latency percentiles.
func (t *Tracker) Snapshot() types.MetricsSnapshot {
	t.latencyMu.RLock()
	count := t.latencyCount
	latencies := make([]time.Duration, count)
	if count > 0 {
		if count < len(t.latencyBuffer) {
			copy(latencies, t.latencyBuffer[:count])
		} else {
			// Full buffer: the oldest sample sits at latencyIndex.
			first := len(t.latencyBuffer) - t.latencyIndex
			copy(latencies[:first], t.latencyBuffer[t.latencyIndex:])
			copy(latencies[first:], t.latencyBuffer[:t.latencyIndex])
		}
	}
	t.latencyMu.RUnlock()

	snapshot := types.MetricsSnapshot{
		Timestamp:      time.Now(),
		Requests:       t.requests.Load(),
		Failures:       t.failures.Load(),
		Retries:        t.retries.Load(),
		QueueWaits:     t.queueWaits.Load(),
		CacheHits:      t.cacheHits.Load(),
		CacheMisses:    t.cacheMisses.Load(),
		Errors:         t.errorCount.Load(),
		CircuitChanges: t.cbStateChanges.Load(),
	}

	if n := snapshot.QueueWaits; n > 0 {
		snapshot.AvgQueueWaitMs = millis(time.Duration(t.queueWaitNanos.Load() / n))
	}

	if len(latencies) > 0 {
		slices.Sort(latencies)
		snapshot.AvgLatencyMs = millis(avgDuration(latencies))
		snapshot.P50LatencyMs = millis(percentile(latencies, 50))
		snapshot.P95LatencyMs = millis(percentile(latencies, 95))
		snapshot.P99LatencyMs = millis(percentile(latencies, 99))
	}

	return snapshot
}

// Health is Snapshot in the shape publishers consume.
func (t *Tracker) Health() *types.HealthMetrics {
	return types.HealthFromSnapshot(t.Snapshot())
}

func (t *Tracker) Reset() {
	t.requests.Store(0)
	t.failures.Store(0)
	t.retries.Store(0)
	t.queueWaits.Store(0)
	t.queueWaitNanos.Store(0)
	t.cacheHits.Store(0)
	t.cacheMisses.Store(0)
	t.errorCount.Store(0)
	t.cbStateChanges.Store(0)

	t.latencyMu.Lock()
	t.latencyIndex = 0
	t.latencyCount = 0
	t.latencyMu.Unlock()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func avgDuration(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return total / time.Duration(len(durations))
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := (len(sorted) - 1) * p / 100
	return sorted[idx]
}
