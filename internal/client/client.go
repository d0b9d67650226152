// Package client composes the transport with the resilience pipeline into
// one request callable per downstream service.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/LavishGent/backpressure/internal/config"
	"github.com/LavishGent/backpressure/internal/resilience"
	"github.com/LavishGent/backpressure/internal/transport"
	"github.com/LavishGent/backpressure/internal/types"
)

// Options carries the collaborators of a Client. Zero values fall back to
// config.DefaultConfig, an owned HTTPTransport, slog.Default and no metrics.
type Options struct {
	Config    *config.Config
	Transport types.Transport
	Logger    *slog.Logger
	Metrics   types.MetricsRecorder
}

// Request describes one call. Retry and Timeout override the service defaults.
type Request struct {
	Retry   *resilience.RetryOptions
	Path    string
	Timeout time.Duration
}

// Client issues requests against one base URL through the service pipeline:
// retry, circuit breaker, rate limiter, concurrency limiter, timeout, transport.
type Client struct {
	transport types.Transport
	owned     io.Closer
	policy    *resilience.Policy
	logger    *slog.Logger
	metrics   types.MetricsRecorder
	token     types.SecretString
	name      string
	baseURL   string

	requests atomic.Int64
	failures atomic.Int64
	closed   atomic.Bool
}

// New builds a client for svc. Invalid limiter settings or base URL yield a
// *types.ConfigurationError.
func New(svc config.ServiceConfig, opts Options) (*Client, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if svc.Name == "" {
		svc.Name = "default"
	}

	base, err := normalizeBaseURL(svc.BaseURL)
	if err != nil {
		return nil, err
	}

	policy, err := resilience.NewPolicyFromConfig(cfg, svc, logger, opts.Metrics)
	if err != nil {
		return nil, err
	}

	c := &Client{
		transport: opts.Transport,
		policy:    policy,
		logger:    logger.With("component", "client", "service", svc.Name),
		metrics:   opts.Metrics,
		token:     svc.AuthToken,
		name:      svc.Name,
		baseURL:   base,
	}

	if c.transport == nil {
		t := transport.NewHTTPTransport(transport.Options{
			ConnectTimeout: cfg.Client.ConnectTimeout,
			UserAgent:      cfg.Client.UserAgent,
			Logger:         logger,
		})
		c.transport = t
		c.owned = t
	}

	c.logger.Debug("client created",
		"baseUrl", base,
		"concurrency", svc.Concurrency,
		"rateLimited", svc.RateLimit != nil,
		"token", svc.AuthToken,
	)

	return c, nil
}

// NewFromConfig builds the client for the named service in cfg.
func NewFromConfig(cfg *config.Config, name string, opts Options) (*Client, error) {
	svc, ok := cfg.Service(name)
	if !ok {
		return nil, types.NewConfigurationError("client", "service", fmt.Sprintf("%q is not configured", name))
	}
	opts.Config = cfg
	return New(svc, opts)
}

// normalizeBaseURL strips trailing slashes once and checks the URL is absolute.
func normalizeBaseURL(raw string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if base == "" {
		return "", types.NewConfigurationError("client", "baseUrl", "is required")
	}

	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", types.NewConfigurationError("client", "baseUrl", fmt.Sprintf("%q is not an absolute URL", raw))
	}
	return base, nil
}

// normalizePath adds the leading slash when absent.
func normalizePath(path string) (string, error) {
	if err := types.DefaultPathValidator.Validate(path); err != nil {
		return "", err
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path, nil
}

// URL returns the absolute URL a request path resolves to.
func (c *Client) URL(path string) (string, error) {
	p, err := normalizePath(path)
	if err != nil {
		return "", err
	}
	return c.baseURL + p, nil
}

// Request performs req and returns the raw JSON body. The error of the last
// attempt is returned verbatim.
func (c *Client) Request(ctx context.Context, req Request) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, types.ErrClosed
	}

	target, err := c.URL(req.Path)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	body, err := resilience.Run(ctx, c.policy, resilience.CallOptions{Retry: req.Retry, Timeout: req.Timeout},
		func(ctx context.Context) (json.RawMessage, error) {
			return c.transport.Do(ctx, target, c.token)
		})
	latency := time.Since(start)

	c.requests.Add(1)
	if c.metrics != nil {
		c.metrics.RecordRequest(c.name, latency, err)
	}

	if err != nil {
		c.failures.Add(1)
		c.logger.Debug("request failed", "path", req.Path, "latency", latency, "error", err)
		return nil, err
	}

	return body, nil
}

// Get performs req and decodes the JSON body into T.
func Get[T any](ctx context.Context, c *Client, req Request) (T, error) {
	var out T

	body, err := c.Request(ctx, req)
	if err != nil {
		return out, err
	}

	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode response for %s: %w", req.Path, err)
	}
	return out, nil
}

// Name returns the service name.
func (c *Client) Name() string {
	return c.name
}

// Stats returns the client's counters and limiter state.
func (c *Client) Stats() types.ClientStats {
	retries, _, _ := c.policy.RetryStats()

	return types.ClientStats{
		Service:     c.name,
		Requests:    c.requests.Load(),
		Failures:    c.failures.Load(),
		Retries:     retries,
		Concurrency: c.policy.ConcurrencyStats(),
		RateLimit:   c.policy.RateLimiterStats(),
		Circuit:     c.policy.CircuitState().String(),
	}
}

// Close fails queued waiters, stops timers and releases an owned transport.
// Requests after Close return types.ErrClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := c.policy.Close()
	if c.owned != nil {
		if cerr := c.owned.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
