// Package transport performs the single network call underneath every
// client pipeline.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/LavishGent/backpressure/internal/types"
)

// maxBodySize bounds how much of a response is read into memory.
const maxBodySize = 32 << 20

// Options configures an HTTPTransport. Nothing here is process-global: each
// transport owns its connection pool.
type Options struct {
	// Client replaces the internally built http.Client when set.
	Client         *http.Client
	Logger         *slog.Logger
	UserAgent      string
	ConnectTimeout time.Duration
}

// HTTPTransport issues JSON GET requests.
type HTTPTransport struct {
	client    *http.Client
	logger    *slog.Logger
	userAgent string
}

var _ types.Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a transport. The per-call deadline comes from the
// context; ConnectTimeout only bounds dialing.
func NewHTTPTransport(opts Options) *HTTPTransport {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := opts.Client
	if client == nil {
		dialer := &net.Dialer{
			Timeout:   opts.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   opts.ConnectTimeout,
				ExpectContinueTimeout: time.Second,
			},
		}
	}

	return &HTTPTransport{
		client:    client,
		logger:    logger.With("component", "transport"),
		userAgent: opts.UserAgent,
	}
}

// Do performs one GET. Non-2xx responses, network failures and bodies that
// are not JSON yield a *types.TransportError. Context errors are returned
// as-is so the caller can classify them.
func (t *HTTPTransport) Do(ctx context.Context, url string, token types.SecretString) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &types.TransportError{URL: url, Err: err}
	}

	req.Header.Set("Accept", "application/json")
	if auth := token.BearerHeader(); auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &types.TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &types.TransportError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		t.logger.Debug("request failed", "url", url, "status", resp.StatusCode)
		return nil, &types.TransportError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       types.Snippet(string(body)),
		}
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, &types.TransportError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status, Err: types.ErrEmptyBody}
	}
	if !json.Valid(body) {
		return nil, &types.TransportError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       types.Snippet(string(body)),
			Err:        errors.New("response is not valid JSON"),
		}
	}

	return json.RawMessage(body), nil
}

// Close releases idle connections.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
