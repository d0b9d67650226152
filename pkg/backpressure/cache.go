package backpressure

import (
	"context"
	"time"

	"github.com/LavishGent/backpressure/internal/cache"
	"github.com/LavishGent/backpressure/internal/types"
)

// NewStore builds the byte store described by the configuration: bigcache
// alone, or bigcache in front of Redis when Redis is enabled. A Redis store
// that cannot be built is logged and the memory store is used alone. Pass
// the result to WithStore to share entries between memory caches.
func NewStore(opts ...Option) (Store, error) {
	o := applyOptions(opts)
	return newStore(o)
}

func newStore(o *options) (types.Store, error) {
	local, err := cache.NewMemoryStore(o.config.MemoryCache, o.logger)
	if err != nil {
		return nil, err
	}

	if !o.config.Redis.Enabled {
		return local, nil
	}

	remote, err := cache.NewRedisStore(o.config.Redis, o.logger)
	if err != nil {
		o.logger.Warn("redis store unavailable, using memory only", "error", err)
		return local, nil
	}
	return cache.NewTiered(local, remote, o.config.CircuitBreaker, o.logger), nil
}

// MemoryCache is a fetcher wrapped with TTL caching and single-flight
// de-duplication. Close releases the shared store it built, if any.
type MemoryCache[A, V any] struct {
	*cache.Memo[A, V]
	owned types.Store
}

// WithMemoryCache wraps opts.Fetcher with an in-process cache. Concurrent
// calls with the same key share one fetch. A GetKey result of NoCache makes
// that call bypass the cache. Hits return the fetched value itself.
//
// Entries are also written to a shared byte store when one is passed with
// WithStore, or when the configuration enables Redis.
//
// Defaults come from the MemoryCache section of the configuration: a zero
// TTL takes the configured TTL (use NoExpiry to keep entries until
// invalidated), and a nil ShouldCacheEmpty takes the configured flag.
// Logger, Metrics and Clock default to the options.
func WithMemoryCache[A, V any](opts MemoryCacheOptions[A, V], options ...Option) (*MemoryCache[A, V], error) {
	o := applyOptions(options)

	if opts.Fetcher == nil {
		return nil, NewConfigurationError("memory-cache", "fetcher", "is required")
	}
	if opts.GetKey == nil {
		return nil, NewConfigurationError("memory-cache", "getKey", "is required")
	}

	mc := o.config.MemoryCache
	if opts.TTL == 0 {
		opts.TTL = mc.TTL
	}
	if opts.ShouldCacheEmpty == nil {
		cacheEmpty := mc.ShouldCacheEmpty
		opts.ShouldCacheEmpty = &cacheEmpty
	}
	if opts.MaxEntries == 0 {
		opts.MaxEntries = mc.MaxEntries
	}
	if opts.Shards == 0 {
		opts.Shards = mc.Shards
	}
	if opts.Logger == nil {
		opts.Logger = o.logger
	}
	if opts.Metrics == nil {
		opts.Metrics = o.metrics
	}
	if opts.Clock == nil {
		opts.Clock = o.clock
	}

	shared := o.store
	var owned types.Store
	if shared == nil && o.config.Redis.Enabled {
		store, err := newStore(o)
		if err != nil {
			return nil, err
		}
		shared, owned = store, store
	}

	return &MemoryCache[A, V]{
		Memo:  cache.Memoize(shared, opts),
		owned: owned,
	}, nil
}

func (c *MemoryCache[A, V]) Close() error {
	if c.owned == nil {
		return nil
	}
	return c.owned.Close()
}

// FileCache is a persistent key/value file shared by file-cached fetchers.
// Writes are flushed after a quiet period; Close performs the final flush.
type FileCache struct {
	*cache.FileStore
	ttl time.Duration
}

// OpenFileCache prepares the cache file from the FileCache section of the
// configuration. The default location is .cache/persistent-cache.json under
// the working directory.
func OpenFileCache(opts ...Option) *FileCache {
	o := applyOptions(opts)
	fc := o.config.FileCache

	store := cache.OpenFileStore(cache.FileStoreConfig{
		Clock:      o.clock,
		Dir:        fc.Dir,
		FileName:   fc.FileName,
		FlushDelay: fc.FlushDelay,
	}, o.logger)

	o.logger.Debug("file cache opened", "path", store.Path(), "ttl", fc.TTL)

	return &FileCache{FileStore: store, ttl: fc.TTL}
}

// FileCachedFunc is a fetcher backed by a FileCache.
type FileCachedFunc[A, V any] struct {
	memo *cache.FileMemo[A, V]
}

// WithFileCache wraps opts.Fetcher with fc. A zero TTL takes the file
// cache's configured TTL; NoExpiry keeps entries until they are deleted.
func WithFileCache[A, V any](fc *FileCache, opts FileCacheOptions[A, V]) *FileCachedFunc[A, V] {
	switch {
	case opts.TTL == 0:
		opts.TTL = fc.ttl
	case opts.TTL < 0:
		opts.TTL = 0
	}
	return &FileCachedFunc[A, V]{memo: cache.WithFile(fc.FileStore, opts)}
}

// Get returns the persisted value for args or fetches and persists it.
// Fetcher errors are returned verbatim after OnError observes them.
func (f *FileCachedFunc[A, V]) Get(ctx context.Context, args A) (V, error) {
	return f.memo.Get(ctx, args)
}
