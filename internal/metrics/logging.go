package metrics

import (
	"log/slog"
	"time"

	"github.com/LavishGent/backpressure/internal/types"
)

// LoggingPublisher writes metrics as debug log lines and health batches at
// info level.
type LoggingPublisher struct {
	logger   *slog.Logger
	baseTags []string
}

func NewLoggingPublisher(logger *slog.Logger, baseTags ...string) *LoggingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPublisher{
		logger:   logger.With("component", "metrics"),
		baseTags: baseTags,
	}
}

func (p *LoggingPublisher) Gauge(name string, value float64, tags ...string) {
	p.logger.Debug("gauge", "name", name, "value", value, "tags", mergeTags(p.baseTags, tags))
}

func (p *LoggingPublisher) Incr(name string, tags ...string) {
	p.logger.Debug("incr", "name", name, "tags", mergeTags(p.baseTags, tags))
}

func (p *LoggingPublisher) Count(name string, value int64, tags ...string) {
	p.logger.Debug("count", "name", name, "value", value, "tags", mergeTags(p.baseTags, tags))
}

func (p *LoggingPublisher) Histogram(name string, value float64, tags ...string) {
	p.logger.Debug("histogram", "name", name, "value", value, "tags", mergeTags(p.baseTags, tags))
}

func (p *LoggingPublisher) Timing(name string, duration time.Duration, tags ...string) {
	p.logger.Debug("timing", "name", name, "duration_ms", duration.Milliseconds(), "tags", mergeTags(p.baseTags, tags))
}

func (p *LoggingPublisher) Event(title, text, alertType string, tags ...string) {
	p.logger.Info("event",
		"title", title,
		"text", text,
		"alert_type", alertType,
		"tags", mergeTags(p.baseTags, tags),
	)
}

func (p *LoggingPublisher) PublishHealthMetrics(m *types.HealthMetrics) {
	if m == nil {
		return
	}

	p.logger.Info("health_metrics",
		"requests", m.Requests,
		"failures", m.Failures,
		"retries", m.Retries,
		"failure_ratio", m.FailureRatio,
		"hit_ratio", m.HitRatio,
		"avg_latency_ms", m.AverageLatencyMs,
		"p95_latency_ms", m.P95LatencyMs,
		"avg_queue_ms", m.AverageQueueMs,
	)
}

func (p *LoggingPublisher) Close() error {
	return nil
}

var _ types.Publisher = (*LoggingPublisher)(nil)
