package metrics

import (
	"strconv"
	"time"

	"github.com/LavishGent/backpressure/internal/types"
)

// Emitter turns recorder events into Publisher calls, one metric per event.
// Cache keys are not used as tags.
type Emitter struct {
	publisher types.Publisher
}

var _ types.MetricsRecorder = (*Emitter)(nil)

func NewEmitter(publisher types.Publisher) *Emitter {
	return &Emitter{publisher: publisher}
}

func (e *Emitter) RecordRequest(service string, latency time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.publisher.Timing("request.latency", latency, ServiceTag(service), StatusTag(status))
}

func (e *Emitter) RecordRetry(service string, attempt int, delay time.Duration) {
	e.publisher.Incr("request.retry", ServiceTag(service), Tag("attempt", strconv.Itoa(attempt)))
	e.publisher.Histogram("request.retry_delay_ms", float64(delay.Milliseconds()), ServiceTag(service))
}

func (e *Emitter) RecordQueueWait(service, limiter string, wait time.Duration) {
	e.publisher.Timing("queue.wait", wait, ServiceTag(service), LimiterTag(limiter))
}

func (e *Emitter) RecordHit(layer, _ string, latency time.Duration) {
	e.publisher.Timing("cache.get", latency, LayerTag(layer), StatusTag("hit"))
}

func (e *Emitter) RecordMiss(layer, _ string, latency time.Duration) {
	e.publisher.Timing("cache.get", latency, LayerTag(layer), StatusTag("miss"))
}

func (e *Emitter) RecordError(layer, operation string, _ error) {
	e.publisher.Incr("cache.error", LayerTag(layer), OperationTag(operation))
}

func (e *Emitter) RecordCircuitBreakerStateChange(service, from, to string) {
	e.publisher.Incr("circuit.transition", ServiceTag(service), CircuitStateTag(to))
	e.publisher.Event("circuit breaker "+to,
		service+" moved from "+from+" to "+to,
		alertType(to),
		ServiceTag(service),
	)
}

func alertType(state string) string {
	switch state {
	case "open":
		return "error"
	case "half-open":
		return "warning"
	default:
		return "success"
	}
}

// Multi fans every event out to all recorders. Nil entries are skipped.
type Multi []types.MetricsRecorder

var _ types.MetricsRecorder = Multi(nil)

// NewMulti returns nil when no recorder is left, so callers can skip
// recording entirely.
func NewMulti(recorders ...types.MetricsRecorder) types.MetricsRecorder {
	var m Multi
	for _, r := range recorders {
		if r != nil {
			m = append(m, r)
		}
	}
	switch len(m) {
	case 0:
		return nil
	case 1:
		return m[0]
	default:
		return m
	}
}

func (m Multi) RecordRequest(service string, latency time.Duration, err error) {
	for _, r := range m {
		r.RecordRequest(service, latency, err)
	}
}

func (m Multi) RecordRetry(service string, attempt int, delay time.Duration) {
	for _, r := range m {
		r.RecordRetry(service, attempt, delay)
	}
}

func (m Multi) RecordQueueWait(service, limiter string, wait time.Duration) {
	for _, r := range m {
		r.RecordQueueWait(service, limiter, wait)
	}
}

func (m Multi) RecordHit(layer, key string, latency time.Duration) {
	for _, r := range m {
		r.RecordHit(layer, key, latency)
	}
}

func (m Multi) RecordMiss(layer, key string, latency time.Duration) {
	for _, r := range m {
		r.RecordMiss(layer, key, latency)
	}
}

func (m Multi) RecordError(layer, operation string, err error) {
	for _, r := range m {
		r.RecordError(layer, operation, err)
	}
}

func (m Multi) RecordCircuitBreakerStateChange(service, from, to string) {
	for _, r := range m {
		r.RecordCircuitBreakerStateChange(service, from, to)
	}
}
