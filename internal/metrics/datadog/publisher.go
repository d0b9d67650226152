// Package datadog publishes metrics to a DogStatsD agent.
package datadog

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/LavishGent/backpressure/internal/config"
	"github.com/LavishGent/backpressure/internal/metrics"
	"github.com/LavishGent/backpressure/internal/types"
)

// statsdClient is the subset of statsd.ClientInterface the publisher uses.
type statsdClient interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Incr(name string, tags []string, rate float64) error
	Count(name string, value int64, tags []string, rate float64) error
	Histogram(name string, value float64, tags []string, rate float64) error
	Timing(name string, value time.Duration, tags []string, rate float64) error
	Event(e *statsd.Event) error
	Close() error
}

// Publisher sends metrics through the DataDog StatsD client. Configured tags
// are attached by the client to every metric.
type Publisher struct {
	client statsdClient
	logger *slog.Logger
}

var _ types.Publisher = (*Publisher)(nil)

// NewPublisher returns a metrics.NoOpPublisher when DataDog is disabled.
func NewPublisher(cfg config.DataDogConfig, logger *slog.Logger) (types.Publisher, error) {
	if !cfg.Enabled {
		return metrics.NewNoOpPublisher(), nil
	}

	if logger == nil {
		logger = slog.Default()
	}

	addr := fmt.Sprintf("%s:%d", cfg.AgentHost, cfg.Port)

	opts := []statsd.Option{statsd.WithTags(cfg.Tags)}
	if cfg.Prefix != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Prefix+"."))
	}

	client, err := statsd.New(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("create statsd client: %w", err)
	}

	logger.Info("datadog publisher initialized", "address", addr, "prefix", cfg.Prefix, "tags", cfg.Tags)

	return newPublisher(client, logger), nil
}

func newPublisher(client statsdClient, logger *slog.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger.With("component", "datadog"),
	}
}

func (p *Publisher) Gauge(name string, value float64, tags ...string) {
	if err := p.client.Gauge(name, value, tags, 1); err != nil {
		p.logger.Debug("failed to send gauge", "name", name, "error", err)
	}
}

func (p *Publisher) Incr(name string, tags ...string) {
	if err := p.client.Incr(name, tags, 1); err != nil {
		p.logger.Debug("failed to send incr", "name", name, "error", err)
	}
}

func (p *Publisher) Count(name string, value int64, tags ...string) {
	if err := p.client.Count(name, value, tags, 1); err != nil {
		p.logger.Debug("failed to send count", "name", name, "error", err)
	}
}

func (p *Publisher) Histogram(name string, value float64, tags ...string) {
	if err := p.client.Histogram(name, value, tags, 1); err != nil {
		p.logger.Debug("failed to send histogram", "name", name, "error", err)
	}
}

func (p *Publisher) Timing(name string, duration time.Duration, tags ...string) {
	if err := p.client.Timing(name, duration, tags, 1); err != nil {
		p.logger.Debug("failed to send timing", "name", name, "error", err)
	}
}

func (p *Publisher) Event(title, text, alertType string, tags ...string) {
	event := &statsd.Event{
		Title:     title,
		Text:      text,
		AlertType: statsd.EventAlertType(alertType),
		Tags:      tags,
	}
	if err := p.client.Event(event); err != nil {
		p.logger.Debug("failed to send event", "title", title, "error", err)
	}
}

// PublishHealthMetrics sends one gauge per field.
func (p *Publisher) PublishHealthMetrics(m *types.HealthMetrics) {
	if m == nil {
		return
	}

	p.Gauge("requests.total", float64(m.Requests))
	p.Gauge("requests.failed", float64(m.Failures))
	p.Gauge("requests.retried", float64(m.Retries))
	p.Gauge("requests.failure_ratio", clamp(m.FailureRatio, 0, 1))
	p.Gauge("cache.hit_ratio", clamp(m.HitRatio, 0, 1))
	p.Gauge("latency.average_ms", max(0, m.AverageLatencyMs))
	p.Gauge("latency.p95_ms", max(0, m.P95LatencyMs))
	p.Gauge("queue.average_wait_ms", max(0, m.AverageQueueMs))
}

func (p *Publisher) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

func clamp(val, lo, hi float64) float64 {
	return min(max(val, lo), hi)
}
