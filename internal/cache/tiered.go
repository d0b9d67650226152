package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LavishGent/backpressure/internal/config"
	"github.com/LavishGent/backpressure/internal/resilience"
	"github.com/LavishGent/backpressure/internal/types"
)

const (
	DefaultShutdownTimeout     = 5 * time.Second
	DefaultBackgroundOpTimeout = 2 * time.Second
)

// Tiered reads the local store first and falls back to the remote one,
// back-filling local hits in the background. Writes go to both; a remote
// write failure is logged and the local write stands.
type Tiered struct {
	local   types.Store
	remote  types.Store
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	bgMu           sync.Mutex
	bgWg           sync.WaitGroup
	closed         atomic.Bool
}

var _ types.Store = (*Tiered)(nil)

// NewTiered layers local over remote. Remote calls go through a circuit
// breaker built from cb so an unreachable Redis fails fast.
func NewTiered(local, remote types.Store, cb config.CircuitBreakerConfig, logger *slog.Logger) *Tiered {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Tiered{
		local:          local,
		remote:         remote,
		breaker:        resilience.NewCircuitBreaker("redis", cb),
		logger:         logger.With("component", "tiered-store"),
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, error) {
	if t.closed.Load() {
		return nil, types.ErrClosed
	}

	data, err := t.local.Get(ctx, key)
	if err == nil {
		return data, nil
	}
	if !types.IsCacheMiss(err) {
		t.logger.Debug("local store error", "key", key, "error", err)
	}

	// A remote miss is a healthy round trip and must not trip the breaker.
	data, err = resilience.Guard(ctx, t.breaker, func(ctx context.Context) ([]byte, error) {
		data, err := t.remote.Get(ctx, key)
		if types.IsCacheMiss(err) {
			return nil, nil
		}
		return data, err
	})
	if err != nil {
		t.logger.Debug("remote store error", "key", key, "error", err)
		return nil, types.ErrCacheMiss
	}
	if data == nil {
		return nil, types.ErrCacheMiss
	}

	t.runBackground(func(ctx context.Context) {
		if err := t.local.Set(ctx, key, data, 0); err != nil {
			t.logger.Debug("failed to back-fill local store", "key", key, "error", err)
		}
	})

	return data, nil
}

func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if t.closed.Load() {
		return types.ErrClosed
	}

	if err := t.local.Set(ctx, key, value, ttl); err != nil {
		return err
	}

	err := t.breaker.Execute(ctx, func(ctx context.Context) error {
		return t.remote.Set(ctx, key, value, ttl)
	})
	if err != nil {
		t.logger.Warn("remote set failed, wrote to local store only", "key", key, "error", err)
	}
	return nil
}

func (t *Tiered) Delete(ctx context.Context, key string) error {
	if t.closed.Load() {
		return types.ErrClosed
	}

	localErr := t.local.Delete(ctx, key)
	remoteErr := t.breaker.Execute(ctx, func(ctx context.Context) error {
		return t.remote.Delete(ctx, key)
	})
	if remoteErr != nil {
		t.logger.Warn("remote delete failed", "key", key, "error", remoteErr)
	}
	return localErr
}

// Close waits up to DefaultShutdownTimeout for back-fills, then closes both
// stores.
func (t *Tiered) Close() error {
	return t.CloseWithTimeout(DefaultShutdownTimeout)
}

func (t *Tiered) CloseWithTimeout(timeout time.Duration) error {
	// bgMu orders the closed flag against bgWg.Add in runBackground.
	t.bgMu.Lock()
	if t.closed.Swap(true) {
		t.bgMu.Unlock()
		return nil
	}
	t.shutdownCancel()
	t.bgMu.Unlock()

	done := make(chan struct{})
	go func() {
		t.bgWg.Wait()
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-time.After(timeout):
		t.logger.Warn("shutdown timeout exceeded, closing stores", "timeout", timeout)
		errs = append(errs, types.ErrTimeout)
	}

	if err := t.local.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := t.remote.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (t *Tiered) runBackground(fn func(ctx context.Context)) {
	t.bgMu.Lock()
	if t.closed.Load() {
		t.bgMu.Unlock()
		return
	}
	t.bgWg.Add(1)
	t.bgMu.Unlock()

	go func() {
		defer t.bgWg.Done()
		ctx, cancel := context.WithTimeout(t.shutdownCtx, DefaultBackgroundOpTimeout)
		defer cancel()
		fn(ctx)
	}()
}
