// Package cache provides the content-addressed store for expensive analysis
// artifacts: LLM script verdicts and registry reputation payloads. Entries
// carry an absolute expiry and LRU bookkeeping; when the configured size
// ceiling would be exceeded, the least recently accessed entries are evicted
// first.
//
// Every method is best-effort: backend failures are logged and swallowed so
// that an audit completes correctly (if more slowly) with the cache degraded
// or disabled entirely.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Default TTLs for the artifact classes stored here.
const (
	DefaultLLMVerdictTTL = 168 * time.Hour
	DefaultReputationTTL = 24 * time.Hour
)

// DefaultMaxSizeBytes caps total stored entry payloads at 100 MB.
const DefaultMaxSizeBytes = 100 << 20

// Entry is a single cached record with its bookkeeping fields.
type Entry struct {
	Key          string
	Value        []byte
	CreatedAt    time.Time
	ExpiresAt    time.Time
	HitCount     int64
	LastAccessed time.Time
	SizeBytes    int64
}

// Expired reports whether the entry's TTL has elapsed at now.
func (e *Entry) Expired(now time.Time) bool { return !now.Before(e.ExpiresAt) }

// Backend is the storage layer beneath Cache. Implementations do not check
// expiry on Get; the Cache front handles TTL and eviction policy.
type Backend interface {
	// Name identifies the backend in stats output ("sqlite", "memory", ...).
	Name() string
	// Get returns the entry for key, or nil when absent.
	Get(ctx context.Context, key string) (*Entry, error)
	// Put inserts or replaces an entry.
	Put(ctx context.Context, e *Entry) error
	// Touch records a hit: increments hit_count and sets last_accessed.
	Touch(ctx context.Context, key string, at time.Time) error
	// Delete removes an entry if present.
	Delete(ctx context.Context, key string) error
	// DeleteExpired removes all entries expired at now, returning the count.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	// Clear removes every entry.
	Clear(ctx context.Context) error
	// TotalSize returns the sum of stored entry sizes in bytes.
	TotalSize(ctx context.Context) (int64, error)
	// EvictLRU deletes entries by ascending last_accessed until at least
	// need bytes have been freed, returning the number evicted.
	EvictLRU(ctx context.Context, need int64) (int, error)
	// Stats reports entry counts and sizes.
	Stats(ctx context.Context, now time.Time) (BackendStats, error)
	// Close releases backend resources.
	Close() error
}

// BackendStats holds the raw counters a backend reports.
type BackendStats struct {
	Entries        int   `json:"entries"`
	ExpiredEntries int   `json:"expired_entries"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
	TotalHits      int64 `json:"total_hits"`
}

// Stats is the user-visible cache statistics block.
type Stats struct {
	Backend string `json:"backend"`
	BackendStats
	MaxSizeBytes int64 `json:"max_size_bytes"`
}

// Cache fronts a Backend with TTL checks, LRU size enforcement, and
// best-effort error handling. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	backend  Backend
	maxBytes int64
	logger   *log.Logger
	degraded bool // set once a backend failure has been logged
	now      func() time.Time
}

// Options configures cache construction.
type Options struct {
	// Backend selects the storage layer: "sqlite" (default), "memory",
	// "redis", or "null" to disable caching.
	Backend string
	// Dir is the directory for the sqlite database file.
	Dir string
	// RedisAddr is the host:port for the redis backend.
	RedisAddr string
	// MaxSizeBytes caps total stored payload bytes (default 100 MB).
	MaxSizeBytes int64
	// Logger receives degradation warnings. Defaults to log.Default().
	Logger *log.Logger
}

// New constructs a Cache. If the durable backend fails to initialize, the
// cache falls back to the in-memory backend and records that in Stats.
func New(opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	maxBytes := opts.MaxSizeBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxSizeBytes
	}

	var backend Backend
	var err error
	switch opts.Backend {
	case "", "sqlite":
		backend, err = NewSQLiteBackend(opts.Dir)
		if err != nil {
			logger.Warn("durable cache unavailable, falling back to memory", "err", err)
			backend = NewMemoryBackend()
		}
	case "memory":
		backend = NewMemoryBackend()
	case "redis":
		backend, err = NewRedisBackend(opts.RedisAddr)
		if err != nil {
			logger.Warn("redis cache unavailable, falling back to memory", "err", err)
			backend = NewMemoryBackend()
		}
	case "null":
		backend = NullBackend{}
	default:
		logger.Warn("unknown cache backend, using memory", "backend", opts.Backend)
		backend = NewMemoryBackend()
	}

	return &Cache{backend: backend, maxBytes: maxBytes, logger: logger, now: time.Now}
}

// NewWithBackend wraps an existing backend; used by tests and callers that
// construct backends themselves.
func NewWithBackend(b Backend, maxBytes int64, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Default()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxSizeBytes
	}
	return &Cache{backend: b, maxBytes: maxBytes, logger: logger, now: time.Now}
}

// Get retrieves the value stored under key and unmarshals it into v,
// returning true on a valid (unexpired) hit. A hit atomically updates the
// entry's hit count and last-accessed time. Expired entries miss and are
// deleted opportunistically. Backend errors miss.
func (c *Cache) Get(ctx context.Context, key string, v any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.backend.Get(ctx, key)
	if err != nil {
		c.warnOnce("cache get failed", err)
		return false
	}
	if e == nil {
		return false
	}
	now := c.now()
	if e.Expired(now) {
		_ = c.backend.Delete(ctx, key)
		return false
	}
	if err := json.Unmarshal(e.Value, v); err != nil {
		c.warnOnce("cache entry undecodable", err)
		_ = c.backend.Delete(ctx, key)
		return false
	}
	if err := c.backend.Touch(ctx, key, now); err != nil {
		c.warnOnce("cache touch failed", err)
	}
	return true
}

// Store inserts or replaces the entry for key with the given TTL, evicting
// least-recently-accessed entries first if the size ceiling would be
// exceeded. Hit count resets to zero. Failures are logged and swallowed.
func (c *Cache) Store(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		c.warnOnce("cache value not serializable", err)
		return
	}
	if int64(len(data)) > c.maxBytes {
		c.logger.Debug("cache entry larger than ceiling, skipping", "key", key, "size", len(data))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e := &Entry{
		Key:          key,
		Value:        data,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastAccessed: now,
		SizeBytes:    int64(len(data)),
	}

	total, err := c.backend.TotalSize(ctx)
	if err != nil {
		c.warnOnce("cache size query failed", err)
	} else if prev, _ := c.backend.Get(ctx, key); prev != nil {
		// Remove the replaced entry before sizing the eviction, so its
		// bytes cannot be counted as freed twice when it is also the LRU
		// victim.
		if err := c.backend.Delete(ctx, key); err != nil {
			c.warnOnce("cache replace failed", err)
		} else {
			total -= prev.SizeBytes
		}
	}
	if need := total + e.SizeBytes - c.maxBytes; need > 0 {
		if n, err := c.backend.EvictLRU(ctx, need); err != nil {
			c.warnOnce("cache eviction failed", err)
		} else if n > 0 {
			c.logger.Debug("cache evicted entries", "count", n, "freed_for", e.SizeBytes)
		}
	}
	if err := c.backend.Put(ctx, e); err != nil {
		c.warnOnce("cache store failed", err)
	}
}

// Invalidate removes the entry for key if present.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.backend.Delete(ctx, key); err != nil {
		c.warnOnce("cache invalidate failed", err)
	}
}

// ClearAll removes every entry.
func (c *Cache) ClearAll(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.backend.Clear(ctx); err != nil {
		c.warnOnce("cache clear failed", err)
	}
}

// CleanupExpired deletes all expired entries and returns the count removed.
func (c *Cache) CleanupExpired(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.backend.DeleteExpired(ctx, c.now())
	if err != nil {
		c.warnOnce("cache cleanup failed", err)
		return 0
	}
	return n
}

// Stats reports the cache statistics block, including which backend is
// actually serving (the fallback is visible here).
func (c *Cache) Stats(ctx context.Context) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	bs, err := c.backend.Stats(ctx, c.now())
	if err != nil {
		c.warnOnce("cache stats failed", err)
	}
	return Stats{Backend: c.backend.Name(), BackendStats: bs, MaxSizeBytes: c.maxBytes}
}

// Close releases the underlying backend.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend.Close()
}

// warnOnce logs the first backend failure per session at warn level and
// subsequent ones at debug, so a dead backend does not flood the output.
func (c *Cache) warnOnce(msg string, err error) {
	if c.degraded {
		c.logger.Debug(msg, "err", err)
		return
	}
	c.degraded = true
	c.logger.Warn(msg+" (cache degraded for this session)", "err", err)
}
