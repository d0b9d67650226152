package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/LavishGent/backpressure/internal/config"
	"github.com/LavishGent/backpressure/internal/types"
)

// FileStoreConfig locates the cache file. Empty fields fall back to
// config.DefaultCacheDir and config.DefaultCacheFileName under the working
// directory.
type FileStoreConfig struct {
	Clock      types.Clock
	Dir        string
	FileName   string
	FlushDelay time.Duration
}

// fileDocument is the on-disk layout.
type fileDocument struct {
	Entries map[string]types.CacheEntry `json:"entries"`
}

// FileStore keeps a JSON map of entries in memory and writes it back after
// a quiet period. Disk failures are logged and never returned from reads or
// writes of entries.
type FileStore struct {
	clock      types.Clock
	logger     *slog.Logger
	timer      *time.Timer
	entries    map[string]types.CacheEntry
	path       string
	flushDelay time.Duration

	mu      sync.Mutex
	writeMu sync.Mutex
	warn    rate.Sometimes
	loaded  bool
	dirty   bool
	pending bool
	closed  bool
}

// OpenFileStore prepares a store at cfg's path. The file is read on first
// access.
func OpenFileStore(cfg FileStoreConfig, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = types.SystemClock{}
	}
	if cfg.Dir == "" {
		cfg.Dir = config.DefaultCacheDir
	}
	if cfg.FileName == "" {
		cfg.FileName = config.DefaultCacheFileName
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = time.Second
	}

	return &FileStore{
		clock:      cfg.Clock,
		logger:     logger.With("component", "file-store"),
		path:       filepath.Join(cfg.Dir, cfg.FileName),
		flushDelay: cfg.FlushDelay,
		warn:       rate.Sometimes{First: 3, Interval: time.Minute},
	}
}

// Path returns the cache file location.
func (s *FileStore) Path() string {
	return s.path
}

// Get returns the stored JSON for key if present and not expired.
func (s *FileStore) Get(key string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false
	}
	s.access()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return entry.Value, true
}

// Set stores value for ttl. A ttl of zero never expires. It reports false
// once the store is closed; an accepted write reaches disk by Close at the
// latest.
func (s *FileStore) Set(key string, value json.RawMessage, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.access()

	s.entries[key] = types.NewCacheEntry(value, s.clock.Now(), ttl)
	s.markDirty()
	return true
}

func (s *FileStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.access()

	if _, ok := s.entries[key]; ok {
		delete(s.entries, key)
		s.markDirty()
	}
}

// Len returns the number of live entries.
func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0
	}
	s.access()
	return len(s.entries)
}

// Flush writes pending changes now.
func (s *FileStore) Flush() error {
	return s.flush()
}

// Close cancels the pending timer and performs a final flush. The store
// ignores reads and writes afterwards.
func (s *FileStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.pending = false
	s.mu.Unlock()

	err := s.flush()

	s.mu.Lock()
	s.entries = nil
	s.dirty = false
	s.mu.Unlock()
	return err
}

// access loads the file once and prunes expired entries. Called with mu held.
func (s *FileStore) access() {
	if !s.loaded {
		s.entries = s.load()
		s.loaded = true
	}

	now := s.clock.Now()
	pruned := false
	for k, e := range s.entries {
		if e.IsExpired(now) {
			delete(s.entries, k)
			pruned = true
		}
	}
	if pruned {
		s.markDirty()
	}
}

func (s *FileStore) load() map[string]types.CacheEntry {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("cache file not found, starting empty", "path", s.path)
		} else {
			s.logger.Warn("cache file unreadable, starting empty", "path", s.path, "error", err)
		}
		return make(map[string]types.CacheEntry)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("cache file corrupt, starting empty", "path", s.path, "error", err)
		return make(map[string]types.CacheEntry)
	}
	if doc.Entries == nil {
		doc.Entries = make(map[string]types.CacheEntry)
	}

	s.logger.Debug("cache file loaded", "path", s.path, "entries", len(doc.Entries))
	return doc.Entries
}

// markDirty arms the flush timer unless one is already pending. Called with
// mu held.
func (s *FileStore) markDirty() {
	s.dirty = true
	if s.pending || s.closed {
		return
	}
	s.pending = true
	s.timer = time.AfterFunc(s.flushDelay, func() {
		s.mu.Lock()
		s.pending = false
		s.mu.Unlock()

		if err := s.flush(); err != nil {
			s.warn.Do(func() {
				s.logger.Warn("cache file write failed", "path", s.path, "error", err)
			})
		}
	})
}

// flush snapshots the entries and writes them atomically. writeMu keeps
// snapshots landing on disk in the order they were taken.
func (s *FileStore) flush() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if !s.dirty || s.entries == nil {
		s.mu.Unlock()
		return nil
	}
	data, err := json.Marshal(fileDocument{Entries: s.entries})
	s.dirty = false
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.redirty()
		return err
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		s.redirty()
		return err
	}
	return nil
}

// redirty keeps a failed snapshot pending for the next mutation or Close.
func (s *FileStore) redirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// FileOptions configures WithFile. GetKey and Fetcher are required.
type FileOptions[A, V any] struct {
	GetKey  func(A) types.Key
	Fetcher func(context.Context, A) (V, error)
	// ShouldCache filters fetched values; nil accepts everything.
	ShouldCache func(V) bool
	OnError     func(err error, key string)
	TTL         time.Duration
}

// FileMemo is a fetcher backed by a FileStore.
type FileMemo[A, V any] struct {
	store *FileStore
	opts  FileOptions[A, V]
	group singleflight.Group
}

func WithFile[A, V any](store *FileStore, opts FileOptions[A, V]) *FileMemo[A, V] {
	return &FileMemo[A, V]{store: store, opts: opts}
}

// Get returns the persisted value for args or fetches and persists it.
func (m *FileMemo[A, V]) Get(ctx context.Context, args A) (V, error) {
	var zero V

	if m.opts.Fetcher == nil {
		return zero, types.NewConfigurationError("file-memo", "fetcher", "is required")
	}
	if err := ctx.Err(); err != nil {
		return zero, types.CallerCanceled(ctx)
	}

	var key string
	ok := false
	if m.opts.GetKey != nil {
		key, ok = m.opts.GetKey(args).Value()
	}
	if !ok {
		return m.opts.Fetcher(ctx, args)
	}

	if raw, hit := m.store.Get(key); hit {
		var v V
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		m.store.Delete(key)
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (any, error) {
		v, err := m.opts.Fetcher(fetchCtx, args)
		if err != nil {
			if m.opts.OnError != nil {
				m.opts.OnError(err, key)
			}
			return nil, err
		}
		if m.opts.ShouldCache == nil || m.opts.ShouldCache(v) {
			if raw, err := json.Marshal(v); err == nil {
				m.store.Set(key, raw, m.opts.TTL)
			}
		}
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
