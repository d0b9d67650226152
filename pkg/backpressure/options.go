package backpressure

import (
	"log/slog"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/LavishGent/backpressure/internal/config"
	"github.com/LavishGent/backpressure/internal/types"
)

// Option customizes the collaborators of a client or cache wrapper.
type Option func(*options)

type options struct {
	config    *config.Config
	logger    *slog.Logger
	metrics   types.MetricsRecorder
	transport types.Transport
	clock     types.Clock
	store     types.Store
	registry  prom.Registerer
}

func applyOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.config == nil {
		o.config = config.DefaultConfig()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.clock == nil {
		o.clock = types.SystemClock{}
	}
	if o.registry == nil {
		o.registry = prom.DefaultRegisterer
	}
	return o
}

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithLogger routes logs to a Logger implementation.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = types.NewSlogLogger(logger)
		}
	}
}

func WithSlogLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the recorder and disables the recorders built from the
// Metrics section of the configuration.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithTransport replaces the HTTP transport. The caller keeps ownership.
func WithTransport(transport Transport) Option {
	return func(o *options) {
		o.transport = transport
	}
}

// WithClock sets the clock cache wrappers use for TTL checks.
func WithClock(clock Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithRegisterer sets where the Prometheus collector is registered when the
// configuration enables it. Defaults to prometheus.DefaultRegisterer.
func WithRegisterer(reg prom.Registerer) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithStore shares memory cache entries through store, such as one built by
// NewStore. The caller keeps ownership.
func WithStore(store Store) Option {
	return func(o *options) {
		o.store = store
	}
}
