// Package cache memoizes fetchers in a typed in-process LRU, optionally
// shared through a byte Store such as bigcache or Redis, with a persistent
// JSON file variant for values that should survive restarts.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"reflect"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/LavishGent/backpressure/internal/types"
)

// NoExpiry as a TTL keeps entries until they are invalidated or evicted.
const NoExpiry time.Duration = -1

// MemoryOptions configures Memoize. GetKey and Fetcher are required.
type MemoryOptions[A, V any] struct {
	GetKey  func(A) types.Key
	Fetcher func(context.Context, A) (V, error)
	// OnError observes fetcher failures before they propagate.
	OnError func(err error, key string)
	// IsEmpty decides which results are skipped unless ShouldCacheEmpty is
	// set. Defaults to IsEmptyValue.
	IsEmpty    func(V) bool
	Clock      types.Clock
	Serializer types.Serializer
	Metrics    types.MetricsRecorder
	Logger     *slog.Logger
	// ShouldCacheEmpty of nil means false.
	ShouldCacheEmpty *bool
	// TTL of zero or NoExpiry keeps entries until they are invalidated.
	TTL time.Duration
	// MaxEntries bounds the in-process entries; least recently used go
	// first. Defaults to DefaultMaxEntries.
	MaxEntries int
	Shards     int
}

// Memo is a fetcher wrapped with TTL caching and single-flight.
//
// Entries live in a typed in-process LRU, so a hit returns the value the
// fetcher produced. An optional shared Store receives an encoded copy for
// other processes and is read only on a local miss.
type Memo[A, V any] struct {
	local      *typedLRU[V]
	shared     types.Store
	opts       MemoryOptions[A, V]
	logger     *slog.Logger
	group      singleflight.Group
	cacheEmpty bool
}

// Memoize wraps opts.Fetcher. Concurrent misses for the same key share one
// fetch; each caller still stops waiting when its own context ends. shared
// may be nil.
func Memoize[A, V any](shared types.Store, opts MemoryOptions[A, V]) *Memo[A, V] {
	if opts.Clock == nil {
		opts.Clock = types.SystemClock{}
	}
	if opts.Serializer == nil {
		opts.Serializer = NewJSONSerializer()
	}
	if opts.IsEmpty == nil {
		opts.IsEmpty = IsEmptyValue[V]
	}
	if opts.TTL < 0 {
		opts.TTL = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Memo[A, V]{
		local:      newTypedLRU[V](opts.Shards, opts.MaxEntries),
		shared:     shared,
		opts:       opts,
		logger:     logger.With("component", "memo"),
		cacheEmpty: opts.ShouldCacheEmpty != nil && *opts.ShouldCacheEmpty,
	}
}

// Get returns the cached value for args or fetches it.
func (m *Memo[A, V]) Get(ctx context.Context, args A) (V, error) {
	var zero V

	if m.opts.Fetcher == nil {
		return zero, types.NewConfigurationError("memo", "fetcher", "is required")
	}
	if err := ctx.Err(); err != nil {
		return zero, types.CallerCanceled(ctx)
	}

	key, ok := m.key(args)
	if !ok {
		return m.opts.Fetcher(ctx, args)
	}

	if v, hit := m.lookup(ctx, key); hit {
		return v, nil
	}

	// The shared fetch outlives any single waiter.
	fetchCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (any, error) {
		v, err := m.opts.Fetcher(fetchCtx, args)
		if err != nil {
			if m.opts.OnError != nil {
				m.opts.OnError(err, key)
			}
			return nil, err
		}
		m.save(fetchCtx, key, v)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	case <-ctx.Done():
		return zero, types.CallerCanceled(ctx)
	}
}

// Invalidate drops the entry for args from both tiers.
func (m *Memo[A, V]) Invalidate(ctx context.Context, args A) error {
	key, ok := m.key(args)
	if !ok {
		return nil
	}
	m.local.delete(key)
	if m.shared == nil {
		return nil
	}
	return m.shared.Delete(ctx, key)
}

// Len returns the number of in-process entries, expired ones included
// until they are next read.
func (m *Memo[A, V]) Len() int {
	return m.local.count()
}

func (m *Memo[A, V]) key(args A) (string, bool) {
	if m.opts.GetKey == nil {
		return "", false
	}
	return m.opts.GetKey(args).Value()
}

func (m *Memo[A, V]) lookup(ctx context.Context, key string) (V, bool) {
	var zero V
	start := time.Now()
	now := m.opts.Clock.Now()

	if v, ok := m.local.get(key, now); ok {
		m.recordHit(key, time.Since(start))
		return v, true
	}
	if m.shared == nil {
		m.recordMiss(key, time.Since(start))
		return zero, false
	}

	data, err := m.shared.Get(ctx, key)
	if err != nil {
		if !types.IsCacheMiss(err) {
			m.logger.Debug("store get failed", "key", key, "error", err)
			m.recordError("get", err)
		}
		m.recordMiss(key, time.Since(start))
		return zero, false
	}

	var entry types.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.IsExpired(now) {
		_ = m.shared.Delete(ctx, key)
		m.recordMiss(key, time.Since(start))
		return zero, false
	}

	var v V
	if err := m.opts.Serializer.Unmarshal(entry.Value, &v); err != nil {
		m.logger.Warn("shared cache value does not decode", "key", key, "error", err)
		_ = m.shared.Delete(ctx, key)
		m.recordMiss(key, time.Since(start))
		return zero, false
	}

	m.local.set(key, v, entry.ExpiresAt)
	m.recordHit(key, time.Since(start))
	return v, true
}

func (m *Memo[A, V]) save(ctx context.Context, key string, v V) {
	if !m.cacheEmpty && m.opts.IsEmpty(v) {
		return
	}

	now := m.opts.Clock.Now()
	var expiresAt int64
	if m.opts.TTL > 0 {
		expiresAt = now.Add(m.opts.TTL).UnixMilli()
	}
	m.local.set(key, v, expiresAt)

	if m.shared == nil {
		return
	}

	value, err := m.opts.Serializer.Marshal(v)
	if err != nil {
		m.logger.Warn("value cannot be shared, caching in process only", "key", key, "error", err)
		m.recordError("marshal", err)
		return
	}

	data, err := json.Marshal(types.NewCacheEntry(value, now, m.opts.TTL))
	if err != nil {
		m.recordError("marshal", err)
		return
	}

	if err := m.shared.Set(ctx, key, data, m.opts.TTL); err != nil {
		m.logger.Debug("store set failed", "key", key, "error", err)
		m.recordError("set", err)
	}
}

func (m *Memo[A, V]) recordHit(key string, latency time.Duration) {
	if m.opts.Metrics != nil {
		m.opts.Metrics.RecordHit("memory", key, latency)
	}
}

func (m *Memo[A, V]) recordMiss(key string, latency time.Duration) {
	if m.opts.Metrics != nil {
		m.opts.Metrics.RecordMiss("memory", key, latency)
	}
}

func (m *Memo[A, V]) recordError(op string, err error) {
	if m.opts.Metrics != nil {
		m.opts.Metrics.RecordError("memory", op, err)
	}
}

// IsEmptyValue reports whether v is nil. Values of non-nillable types are
// never empty, so a cached 0 or "" is a real answer.
func IsEmptyValue[V any](v V) bool {
	rv := reflect.ValueOf(&v).Elem()
	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}
