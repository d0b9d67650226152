package backpressure

import (
	"context"
	"errors"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/LavishGent/backpressure/internal/config"
	"github.com/LavishGent/backpressure/internal/metrics"
	"github.com/LavishGent/backpressure/internal/metrics/datadog"
	"github.com/LavishGent/backpressure/internal/metrics/prometheus"
	"github.com/LavishGent/backpressure/internal/types"
)

// Telemetry owns the recorders and publishers described by the Metrics
// configuration section: an in-process tracker, a DogStatsD emitter and a
// Prometheus collector, plus the loop that publishes tracker health.
//
// Pass it to several clients and cache wrappers with WithMetrics.
type Telemetry struct {
	recorder   types.MetricsRecorder
	tracker    tracker
	publisher  types.Publisher
	background *metrics.BackgroundPublisher
}

type tracker interface {
	Snapshot() types.MetricsSnapshot
	Health() *types.HealthMetrics
}

var _ types.MetricsRecorder = (*Telemetry)(nil)

// NewTelemetry builds the recorders cfg enables and starts health publishing.
// A disabled section yields a Telemetry that records nothing.
func NewTelemetry(cfg config.MetricsConfig, opts ...Option) (*Telemetry, error) {
	o := applyOptions(opts)

	if !cfg.Enabled {
		return &Telemetry{
			tracker:   metrics.NewNoOpTracker(),
			publisher: metrics.NewNoOpPublisher(),
		}, nil
	}

	logger := o.logger
	tr := metrics.NewTracker()
	t := &Telemetry{tracker: tr}
	recorders := []types.MetricsRecorder{tr}

	var publisher types.Publisher = metrics.NewLoggingPublisher(logger)
	if cfg.DataDog.Enabled {
		dd, err := datadog.NewPublisher(cfg.DataDog, logger)
		if err != nil {
			return nil, err
		}
		publisher = dd
		recorders = append(recorders, metrics.NewEmitter(dd))
	}

	if cfg.Prometheus.Enabled {
		collector, err := registerCollector(cfg.Prometheus.Namespace, o.registry)
		if err != nil {
			_ = publisher.Close()
			return nil, err
		}
		recorders = append(recorders, collector)
	}

	t.recorder = metrics.NewMulti(recorders...)
	t.publisher = publisher
	t.background = metrics.NewTrackerPublisher(tr, publisher, cfg.PublishInterval, logger)
	t.background.Start(context.Background())

	logger.Debug("telemetry started",
		"datadog", cfg.DataDog.Enabled,
		"prometheus", cfg.Prometheus.Enabled,
		"interval", cfg.PublishInterval,
	)

	return t, nil
}

// registerCollector reuses a collector already registered under namespace,
// so several clients in one process share the same series.
func registerCollector(namespace string, reg prom.Registerer) (*prometheus.Collector, error) {
	collector, err := prometheus.NewCollector(namespace, reg)
	if err == nil {
		return collector, nil
	}

	var already prom.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(*prometheus.Collector); ok {
			return existing, nil
		}
	}
	return nil, err
}

// Snapshot returns the tracker's counters. It is zero when metrics are disabled.
func (t *Telemetry) Snapshot() MetricsSnapshot {
	return t.tracker.Snapshot()
}

// Health returns nil when metrics are disabled.
func (t *Telemetry) Health() *HealthMetrics {
	return t.tracker.Health()
}

// StartTimer measures one operation; Stop sends it to the publisher as a
// timing.
func (t *Telemetry) StartTimer(name string, tags ...string) *Timer {
	return metrics.NewTimer(t.publisher, name, tags...)
}

// Close stops publishing after one final report and closes the publisher.
// It is not safe to call concurrently.
func (t *Telemetry) Close() error {
	if t.background != nil {
		t.background.Stop()
		t.background = nil
	}
	err := t.publisher.Close()
	t.publisher = metrics.NewNoOpPublisher()
	return err
}

func (t *Telemetry) RecordRequest(service string, latency time.Duration, err error) {
	if t.recorder != nil {
		t.recorder.RecordRequest(service, latency, err)
	}
}

func (t *Telemetry) RecordRetry(service string, attempt int, delay time.Duration) {
	if t.recorder != nil {
		t.recorder.RecordRetry(service, attempt, delay)
	}
}

func (t *Telemetry) RecordQueueWait(service, limiter string, wait time.Duration) {
	if t.recorder != nil {
		t.recorder.RecordQueueWait(service, limiter, wait)
	}
}

func (t *Telemetry) RecordHit(layer, key string, latency time.Duration) {
	if t.recorder != nil {
		t.recorder.RecordHit(layer, key, latency)
	}
}

func (t *Telemetry) RecordMiss(layer, key string, latency time.Duration) {
	if t.recorder != nil {
		t.recorder.RecordMiss(layer, key, latency)
	}
}

func (t *Telemetry) RecordError(layer, operation string, err error) {
	if t.recorder != nil {
		t.recorder.RecordError(layer, operation, err)
	}
}

func (t *Telemetry) RecordCircuitBreakerStateChange(service, from, to string) {
	if t.recorder != nil {
		t.recorder.RecordCircuitBreakerStateChange(service, from, to)
	}
}

// recorderOrNil keeps a disabled Telemetry from being wired as a recorder.
func (t *Telemetry) recorderOrNil() types.MetricsRecorder {
	if t == nil || t.recorder == nil {
		return nil
	}
	return t
}
