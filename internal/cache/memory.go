package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/LavishGent/backpressure/internal/config"
	"github.com/LavishGent/backpressure/internal/types"
)

// MemoryStore is the default in-process Store, backed by BigCache.
//
// BigCache only knows one global LifeWindow, so per-entry TTLs are enforced
// by the envelope Memo writes; LifeWindow is the upper bound (MaxTTL).
type MemoryStore struct {
	cache  *bigcache.BigCache
	logger *slog.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64

	closed atomic.Bool
}

var _ types.Store = (*MemoryStore)(nil)

// MemoryStats is a snapshot of MemoryStore counters.
type MemoryStats struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Deletes   int64
	Evictions int64
	Entries   int
}

// NewMemoryStore creates a MemoryStore. Shards must be a power of two.
func NewMemoryStore(cfg config.MemoryCacheConfig, logger *slog.Logger) (*MemoryStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &MemoryStore{logger: logger.With("component", "memory-store")}

	life := cfg.MaxTTL
	if life <= 0 {
		life = 24 * time.Hour
	}

	shards := cfg.Shards
	if shards <= 0 {
		shards = 1024
	}

	// bigcache preallocates from MaxEntrySize; an uncapped store would
	// reserve gigabytes up front.
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 64
	}

	bc, err := bigcache.New(context.Background(), bigcache.Config{
		Shards:             shards,
		LifeWindow:         life,
		CleanWindow:        cfg.CleanupInterval,
		MaxEntriesInWindow: 1000 * 10 * 60,
		MaxEntrySize:       cfg.MaxEntrySize,
		HardMaxCacheSize:   maxSize,
		Logger:             &bigcacheLogger{logger: s.logger},
		OnRemoveWithReason: func(_ string, _ []byte, reason bigcache.RemoveReason) {
			if reason == bigcache.NoSpace || reason == bigcache.Expired {
				s.evictions.Add(1)
			}
		},
	})
	if err != nil {
		return nil, types.NewConfigurationError("memory-store", "shards", err.Error())
	}

	s.cache = bc
	return s, nil
}

// Get returns types.ErrCacheMiss when key is absent.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, types.ErrClosed
	}

	data, err := s.cache.Get(key)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			s.misses.Add(1)
			return nil, types.ErrCacheMiss
		}
		return nil, err
	}

	s.hits.Add(1)
	return data, nil
}

// Set stores value. ttl is not applied here; see MemoryStore.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if s.closed.Load() {
		return types.ErrClosed
	}

	if err := s.cache.Set(key, value); err != nil {
		return err
	}

	s.sets.Add(1)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	if s.closed.Load() {
		return types.ErrClosed
	}

	if err := s.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return err
	}

	s.deletes.Add(1)
	return nil
}

func (s *MemoryStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.cache.Close()
}

func (s *MemoryStore) Stats() MemoryStats {
	stats := MemoryStats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Sets:      s.sets.Load(),
		Deletes:   s.deletes.Load(),
		Evictions: s.evictions.Load(),
	}
	if !s.closed.Load() {
		stats.Entries = s.cache.Len()
	}
	return stats
}

type bigcacheLogger struct {
	logger *slog.Logger
}

func (l *bigcacheLogger) Printf(format string, args ...any) {
	l.logger.Debug("bigcache: "+format, args...)
}
