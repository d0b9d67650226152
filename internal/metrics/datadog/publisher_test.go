package datadog

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LavishGent/backpressure/internal/config"
	"github.com/LavishGent/backpressure/internal/metrics"
	"github.com/LavishGent/backpressure/internal/types"
)

type fakeStatsd struct {
	mu     sync.Mutex
	gauges map[string]float64
	names  []string
	events []*statsd.Event
	err    error
	closed bool
}

func newFakeStatsd() *fakeStatsd {
	return &fakeStatsd{gauges: make(map[string]float64)}
}

func (f *fakeStatsd) add(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
	return f.err
}

func (f *fakeStatsd) Gauge(name string, value float64, _ []string, _ float64) error {
	f.mu.Lock()
	f.gauges[name] = value
	f.mu.Unlock()
	return f.add(name)
}

func (f *fakeStatsd) Incr(name string, _ []string, _ float64) error { return f.add(name) }

func (f *fakeStatsd) Count(name string, _ int64, _ []string, _ float64) error { return f.add(name) }

func (f *fakeStatsd) Histogram(name string, _ float64, _ []string, _ float64) error {
	return f.add(name)
}

func (f *fakeStatsd) Timing(name string, _ time.Duration, _ []string, _ float64) error {
	return f.add(name)
}

func (f *fakeStatsd) Event(e *statsd.Event) error {
	f.mu.Lock()
	f.events = append(f.events, e)
	f.mu.Unlock()
	return f.err
}

func (f *fakeStatsd) Close() error {
	f.closed = true
	return nil
}

func TestNewPublisherDisabled(t *testing.T) {
	p, err := NewPublisher(config.DataDogConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &metrics.NoOpPublisher{}, p)
}

func TestNewPublisherEnabled(t *testing.T) {
	// DogStatsD over UDP does not need a listening agent.
	p, err := NewPublisher(config.DataDogConfig{
		Enabled:   true,
		AgentHost: "127.0.0.1",
		Port:      8125,
		Prefix:    "backpressure",
		Tags:      []string{"env:test"},
	}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Publisher{}, p)
	p.Incr("test.counter")
	require.NoError(t, p.Close())
}

func TestPublisherHealthMetrics(t *testing.T) {
	client := newFakeStatsd()
	p := newPublisher(client, slog.Default())

	p.PublishHealthMetrics(&types.HealthMetrics{
		Requests:         10,
		Failures:         2,
		FailureRatio:     0.2,
		HitRatio:         1.5,
		AverageLatencyMs: -1,
		P95LatencyMs:     12,
	})
	p.PublishHealthMetrics(nil)

	assert.Equal(t, 10.0, client.gauges["requests.total"])
	assert.Equal(t, 2.0, client.gauges["requests.failed"])
	assert.Equal(t, 0.2, client.gauges["requests.failure_ratio"])
	assert.Equal(t, 1.0, client.gauges["cache.hit_ratio"])
	assert.Equal(t, 0.0, client.gauges["latency.average_ms"])
	assert.Equal(t, 12.0, client.gauges["latency.p95_ms"])
	assert.Len(t, client.gauges, 8)
}

func TestPublisherForwardsAndSwallowsErrors(t *testing.T) {
	client := newFakeStatsd()
	client.err = errors.New("socket closed")
	p := newPublisher(client, slog.Default())

	p.Incr("a")
	p.Count("b", 2)
	p.Histogram("c", 1)
	p.Timing("d", time.Millisecond)
	p.Event("circuit breaker open", "users moved", "error", "service:users")

	assert.Equal(t, []string{"a", "b", "c", "d"}, client.names)
	require.Len(t, client.events, 1)
	assert.Equal(t, statsd.Error, client.events[0].AlertType)
	assert.Equal(t, []string{"service:users"}, client.events[0].Tags)

	require.NoError(t, p.Close())
	assert.True(t, client.closed)
}
