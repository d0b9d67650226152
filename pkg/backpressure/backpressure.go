package backpressure

import (
	"context"

	"github.com/LavishGent/backpressure/internal/client"
	"github.com/LavishGent/backpressure/internal/config"
)

// Client issues requests against one downstream service through the
// resilience pipeline. It is safe for concurrent use.
type Client struct {
	*client.Client
	telemetry *Telemetry
}

// APIFactory builds a client for svc. Invalid limiter settings or base URL
// yield a *ConfigurationError before any request is made.
//
// When no recorder is passed with WithMetrics and the configuration enables
// metrics, the client owns a Telemetry and closes it with itself.
func APIFactory(svc ServiceConfig, opts ...Option) (*Client, error) {
	o := applyOptions(opts)

	var owned *Telemetry
	recorder := o.metrics
	if recorder == nil && o.config.Metrics.Enabled {
		t, err := NewTelemetry(o.config.Metrics, opts...)
		if err != nil {
			return nil, err
		}
		owned = t
		recorder = t.recorderOrNil()
	}

	c, err := client.New(svc, client.Options{
		Config:    o.config,
		Transport: o.transport,
		Logger:    o.logger,
		Metrics:   recorder,
	})
	if err != nil {
		if owned != nil {
			_ = owned.Close()
		}
		return nil, err
	}

	return &Client{Client: c, telemetry: owned}, nil
}

// NewFromConfig builds the client for the named service in cfg.
func NewFromConfig(cfg *config.Config, service string, opts ...Option) (*Client, error) {
	svc, ok := cfg.Service(service)
	if !ok {
		return nil, NewConfigurationError("client", "service", service+" is not configured")
	}
	return APIFactory(svc, append(opts, WithConfig(cfg))...)
}

// LoadConfig reads a JSON or JSONC config file and applies BACKPRESSURE_*
// environment overrides. A missing file yields the defaults.
func LoadConfig(path string) (*config.Config, error) {
	return config.LoadWithEnv(path)
}

// NewFromFile loads a JSON or JSONC config file, applies BACKPRESSURE_*
// environment overrides, and builds the client for the named service.
func NewFromFile(path, service string, opts ...Option) (*Client, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(cfg, service, opts...)
}

// Config returns a default configuration that can be modified before creating a client.
func Config() *config.Config {
	return config.DefaultConfig()
}

// TestConfig returns a configuration suitable for unit tests.
func TestConfig() *config.Config {
	return config.ForTesting()
}

// Telemetry returns the metrics the client owns, or nil when it records into
// a caller-supplied recorder or none at all.
func (c *Client) Telemetry() *Telemetry {
	return c.telemetry
}

// Close releases the pipeline and any telemetry the client owns.
func (c *Client) Close() error {
	err := c.Client.Close()
	if c.telemetry != nil {
		if terr := c.telemetry.Close(); err == nil {
			err = terr
		}
	}
	return err
}

// Get requests path and decodes the JSON body into T.
func Get[T any](ctx context.Context, c *Client, path string) (T, error) {
	return client.Get[T](ctx, c.Client, Request{Path: path})
}

// Do performs req and decodes the JSON body into T. Retry and Timeout in req
// override the service settings for this call only.
func Do[T any](ctx context.Context, c *Client, req Request) (T, error) {
	return client.Get[T](ctx, c.Client, req)
}
