package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LavishGent/backpressure/internal/config"
	"github.com/LavishGent/backpressure/internal/types"
)

const disconnectErrorThreshold = 5

// RedisStore is a shared Store backed by Redis. Entry TTLs are applied with
// SET EX so Redis expires keys on its own.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
	prefix string

	mu            sync.RWMutex
	lastError     error
	lastErrorTime time.Time
	connected     atomic.Bool
	errorCount    atomic.Int64

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
}

var _ types.Store = (*RedisStore)(nil)

// NewRedisStore connects to cfg.Address. A failed initial ping is logged and
// the store starts disconnected; the health check restores it.
func NewRedisStore(cfg config.RedisConfig, logger *slog.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		return nil, types.NewConfigurationError("redis-store", "address", "is required")
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password.Value(),
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	if cfg.EnableTLS {
		opts.TLSConfig = &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify, //nolint:gosec // opt-in via config
		}
		if cfg.TLSSkipVerify {
			logger.Warn("TLS certificate verification is disabled")
		}
	}

	s := &RedisStore{
		client: redis.NewClient(opts),
		logger: logger.With("component", "redis-store"),
		prefix: cfg.KeyPrefix,
		stopCh: make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout(cfg.DialTimeout))
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Warn("redis initial connection failed", "address", cfg.Address, "error", err)
		s.setError(err)
	} else {
		s.connected.Store(true)
		s.logger.Info("redis connected", "address", cfg.Address)
	}

	if cfg.HealthCheck > 0 {
		s.wg.Add(1)
		go s.healthCheckWorker(cfg.HealthCheck, dialTimeout(cfg.DialTimeout))
	}

	return s, nil
}

func dialTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

// IsAvailable reports whether the last round trip succeeded.
func (s *RedisStore) IsAvailable() bool {
	return s.connected.Load()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if !s.connected.Load() {
		return nil, types.ErrUnavailable
	}

	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.misses.Add(1)
			return nil, types.ErrCacheMiss
		}
		s.handleError(err)
		return nil, err
	}

	s.hits.Add(1)
	s.clearError()
	return data, nil
}

// Set writes value with an expiry of ttl. A non-positive ttl keeps the key
// until it is deleted.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !s.connected.Load() {
		return types.ErrUnavailable
	}
	if ttl < 0 {
		ttl = 0
	}

	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		s.handleError(err)
		return err
	}

	s.sets.Add(1)
	s.clearError()
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if !s.connected.Load() {
		return types.ErrUnavailable
	}

	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		s.handleError(err)
		return err
	}

	s.deletes.Add(1)
	s.clearError()
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// LastError returns the most recent Redis failure and when it happened.
func (s *RedisStore) LastError() (error, time.Time) { //nolint:revive // pair mirrors a status read
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError, s.lastErrorTime
}

func (s *RedisStore) Close() error {
	var err error
	s.once.Do(func() {
		s.connected.Store(false)
		close(s.stopCh)
		s.wg.Wait()
		err = s.client.Close()
	})
	return err
}

func (s *RedisStore) healthCheckWorker(interval, timeout time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.healthCheck(timeout)
		}
	}
}

func (s *RedisStore) healthCheck(timeout time.Duration) {
	wasConnected := s.connected.Load()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		if wasConnected {
			s.logger.Warn("redis health check failed", "error", err)
			s.setError(err)
		}
		return
	}

	if !wasConnected {
		s.errorCount.Store(0)
		s.connected.Store(true)
		s.logger.Info("redis connection restored")
	}
}

func (s *RedisStore) handleError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastError = err
	s.lastErrorTime = time.Now()
	count := s.errorCount.Add(1)

	if count >= disconnectErrorThreshold && s.connected.CompareAndSwap(true, false) {
		s.logger.Warn("redis marked as disconnected", "errorCount", count, "lastError", err)
	}
}

func (s *RedisStore) clearError() {
	s.errorCount.Store(0)
}

func (s *RedisStore) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err
	s.lastErrorTime = time.Now()
	s.connected.Store(false)
}
