// Package prometheus exposes recorder events as Prometheus metrics.
package prometheus

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/LavishGent/backpressure/internal/types"
)

// Collector implements types.MetricsRecorder on top of client_golang vectors.
// It is itself a prom.Collector so it registers as one unit.
type Collector struct {
	requests           *prom.CounterVec
	requestDuration    *prom.HistogramVec
	retries            *prom.CounterVec
	queueWait          *prom.HistogramVec
	cacheLookups       *prom.CounterVec
	cacheErrors        *prom.CounterVec
	circuitState       *prom.GaugeVec
	circuitTransitions *prom.CounterVec
}

var (
	_ types.MetricsRecorder = (*Collector)(nil)
	_ prom.Collector        = (*Collector)(nil)
)

// NewCollector builds the vectors under namespace and registers them with
// reg. A nil reg leaves registration to the caller.
func NewCollector(namespace string, reg prom.Registerer) (*Collector, error) {
	c := &Collector{
		requests: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests completed, by service and outcome.",
		}, []string{"service", "status"}),
		requestDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request latency including retries and queueing.",
			Buckets:   prom.DefBuckets,
		}, []string{"service"}),
		retries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retry attempts scheduled.",
		}, []string{"service"}),
		queueWait: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_wait_seconds",
			Help:      "Time spent waiting for a limiter slot.",
			Buckets:   prom.ExponentialBuckets(0.001, 4, 8),
		}, []string{"service", "limiter"}),
		cacheLookups: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by layer and result.",
		}, []string{"layer", "result"}),
		cacheErrors: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Cache store failures.",
		}, []string{"layer", "operation"}),
		circuitState: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}, []string{"service"}),
		circuitTransitions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_transitions_total",
			Help:      "Circuit breaker state changes by target state.",
		}, []string{"service", "to"}),
	}

	if reg != nil {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) vectors() []prom.Collector {
	return []prom.Collector{
		c.requests,
		c.requestDuration,
		c.retries,
		c.queueWait,
		c.cacheLookups,
		c.cacheErrors,
		c.circuitState,
		c.circuitTransitions,
	}
}

func (c *Collector) Describe(ch chan<- *prom.Desc) {
	for _, v := range c.vectors() {
		v.Describe(ch)
	}
}

func (c *Collector) Collect(ch chan<- prom.Metric) {
	for _, v := range c.vectors() {
		v.Collect(ch)
	}
}

func (c *Collector) RecordRequest(service string, latency time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.requests.WithLabelValues(service, status).Inc()
	c.requestDuration.WithLabelValues(service).Observe(latency.Seconds())
}

func (c *Collector) RecordRetry(service string, _ int, _ time.Duration) {
	c.retries.WithLabelValues(service).Inc()
}

func (c *Collector) RecordQueueWait(service, limiter string, wait time.Duration) {
	c.queueWait.WithLabelValues(service, limiter).Observe(wait.Seconds())
}

func (c *Collector) RecordHit(layer, _ string, _ time.Duration) {
	c.cacheLookups.WithLabelValues(layer, "hit").Inc()
}

func (c *Collector) RecordMiss(layer, _ string, _ time.Duration) {
	c.cacheLookups.WithLabelValues(layer, "miss").Inc()
}

func (c *Collector) RecordError(layer, operation string, _ error) {
	c.cacheErrors.WithLabelValues(layer, operation).Inc()
}

func (c *Collector) RecordCircuitBreakerStateChange(service, _, to string) {
	c.circuitTransitions.WithLabelValues(service, to).Inc()
	c.circuitState.WithLabelValues(service).Set(stateValue(to))
}

func stateValue(state string) float64 {
	switch state {
	case "open":
		return 2
	case "half-open":
		return 1
	default:
		return 0
	}
}
