// Package types provides shared types for the backpressure toolkit.
// This package breaks import cycles between pkg/backpressure and the internal packages.
package types

import (
	"encoding/json"
	"time"
)

// Key is the result of a cache key function: either a concrete key or NoCache,
// which makes the wrapper bypass caching for that call.
type Key struct {
	value string
	ok    bool
}

// NoCache bypasses the cache: the fetcher runs on every call and nothing is stored.
var NoCache = Key{}

// KeyOf returns a cacheable key. The empty string yields NoCache.
func KeyOf(s string) Key {
	if s == "" {
		return NoCache
	}
	return Key{value: s, ok: true}
}

func (k Key) Value() (string, bool) {
	return k.value, k.ok
}

func (k Key) IsNoCache() bool {
	return !k.ok
}

func (k Key) String() string {
	if !k.ok {
		return "<no-cache>"
	}
	return k.value
}

// CacheEntry is the envelope stored for one cached value. ExpiresAt is epoch
// milliseconds; zero means the entry never expires.
type CacheEntry struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt int64           `json:"expiresAt"`
}

func NewCacheEntry(value json.RawMessage, now time.Time, ttl time.Duration) CacheEntry {
	entry := CacheEntry{Value: value}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl).UnixMilli()
	}
	return entry
}

func (e CacheEntry) IsExpired(now time.Time) bool {
	if e.ExpiresAt == 0 {
		return false
	}
	return now.UnixMilli() >= e.ExpiresAt
}
