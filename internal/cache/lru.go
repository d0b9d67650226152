package cache

import (
	"container/list"
	"hash/maphash"
	"sync"
	"time"
)

// DefaultMaxEntries bounds a memo's in-process entries when no limit is set.
const DefaultMaxEntries = 10000

const defaultLRUShards = 16

// typedLRU is a sharded LRU of typed values. Values are kept exactly as the
// fetcher returned them; nothing is encoded.
type typedLRU[V any] struct {
	shards []*lruShard[V]
	seed   maphash.Seed
	mask   uint64
}

type lruShard[V any] struct {
	items map[string]*list.Element
	order list.List // front is most recently used
	max   int
	mu    sync.Mutex
}

type lruEntry[V any] struct {
	value     V
	key       string
	expiresAt int64 // unix ms, zero never expires
}

// newTypedLRU splits maxEntries over shards. shards is rounded up to a power
// of two.
func newTypedLRU[V any](shards, maxEntries int) *typedLRU[V] {
	if shards <= 0 {
		shards = defaultLRUShards
	}
	n := 1
	for n < shards {
		n <<= 1
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if n > maxEntries {
		n = 1
		for n*2 <= maxEntries {
			n <<= 1
		}
	}
	perShard := (maxEntries + n - 1) / n

	l := &typedLRU[V]{
		shards: make([]*lruShard[V], n),
		seed:   maphash.MakeSeed(),
		mask:   uint64(n - 1),
	}
	for i := range l.shards {
		l.shards[i] = &lruShard[V]{items: make(map[string]*list.Element), max: perShard}
	}
	return l
}

func (l *typedLRU[V]) shard(key string) *lruShard[V] {
	return l.shards[maphash.String(l.seed, key)&l.mask]
}

// get returns the live value for key. Expired entries are dropped.
func (l *typedLRU[V]) get(key string, now time.Time) (V, bool) {
	s := l.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V
	elem, ok := s.items[key]
	if !ok {
		return zero, false
	}
	e := elem.Value.(*lruEntry[V])
	if e.expiresAt != 0 && now.UnixMilli() >= e.expiresAt {
		s.order.Remove(elem)
		delete(s.items, key)
		return zero, false
	}
	s.order.MoveToFront(elem)
	return e.value, true
}

// set stores value until expiresAt and evicts the least recently used
// entries beyond the shard's share.
func (l *typedLRU[V]) set(key string, value V, expiresAt int64) {
	s := l.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		e := elem.Value.(*lruEntry[V])
		e.value = value
		e.expiresAt = expiresAt
		s.order.MoveToFront(elem)
		return
	}

	s.items[key] = s.order.PushFront(&lruEntry[V]{key: key, value: value, expiresAt: expiresAt})
	for s.order.Len() > s.max {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(*lruEntry[V]).key)
	}
}

func (l *typedLRU[V]) delete(key string) {
	s := l.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		s.order.Remove(elem)
		delete(s.items, key)
	}
}

func (l *typedLRU[V]) count() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += s.order.Len()
		s.mu.Unlock()
	}
	return n
}
