// Package cache holds query results per grid: an LRU with TTL and
// byte accounting, keyed by the canonical JSON of the query. All
// operations run synchronously under one mutex; there are no
// background sweepers. Expiry is checked on access and on put.
package cache

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mounirtms/gridcore/pkg/errors"
	"github.com/mounirtms/gridcore/pkg/json"
	"github.com/mounirtms/gridcore/pkg/loader"
	"github.com/mounirtms/gridcore/pkg/logger"
	"github.com/mounirtms/gridcore/pkg/metrics"
)

// Defaults bound the cache when Config fields are zero.
const (
	DefaultMaxEntries = 16
	DefaultMaxBytes   = 8 << 20
	DefaultTTL        = 5 * time.Minute
)

// Config bounds one grid's cache.
type Config struct {
	MaxEntries int
	MaxBytes   int64
	TTL        time.Duration
}

// DefaultConfig returns the default bounds.
func DefaultConfig() Config {
	return Config{
		MaxEntries: DefaultMaxEntries,
		MaxBytes:   DefaultMaxBytes,
		TTL:        DefaultTTL,
	}
}

// Entry is one cached page. Rows are shared with callers and must be
// treated as read-only.
type Entry struct {
	Rows        []loader.Row
	TotalCount  int
	StoredAt    time.Time
	ApproxBytes int64
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Entries   int     `json:"entries"`
	Bytes     int64   `json:"bytes"`
	HitRate   float64 `json:"hitRate"`
}

// Cache is the query result cache of one grid.
type Cache struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*Entry
	lru     *lruList
	bytes   int64

	hits      int64
	misses    int64
	evictions int64

	collector *metrics.Collector
	log       *zap.Logger
	now       func() time.Time
}

// New creates a cache for the named grid. Zero config fields fall back
// to the defaults.
func New(gridName string, cfg Config) *Cache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	return &Cache{
		cfg:       cfg,
		entries:   make(map[string]*Entry),
		lru:       newLRUList(),
		collector: metrics.NewCollector(gridName),
		log:       logger.WithGrid(gridName).Named("cache"),
		now:       time.Now,
	}
}

// Key derives the canonical cache key of a query: identical queries
// always map to the same key regardless of map iteration order.
func Key(q loader.Query) string {
	raw, err := json.MarshalCanonical(q)
	if err != nil {
		// Queries are plain data; encoding them cannot realistically
		// fail, but a collision-free fallback beats a panic.
		return fmt.Sprintf("%+v", q)
	}
	return string(raw)
}

// Get returns the entry for key and refreshes its recency. Expired
// entries are evicted on the spot and count as misses.
func (c *Cache) Get(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		c.misses++
		c.collector.CacheMiss()
		return nil, false
	}

	if c.expired(entry, c.now()) {
		c.removeLocked(key, "ttl")
		c.misses++
		c.collector.CacheMiss()
		return nil, false
	}

	c.hits++
	c.collector.CacheHit()
	c.lru.moveToFront(key)
	return entry, true
}

// Put stores a page under key, last write wins. The entry size is
// estimated by JSON encoding. Entries larger than the whole cache are
// rejected; otherwise older entries are evicted until count and byte
// bounds hold.
func (c *Cache) Put(key string, rows []loader.Row, totalCount int) {
	size := int64(json.EstimateBytes(rows))

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweepExpiredLocked(now)

	if size > c.cfg.MaxBytes {
		// Never an API error: log the typed error and drop the entry.
		err := errors.Newf(errors.ErrorTypeCacheCapacity,
			"entry of %d bytes exceeds cache capacity of %d", size, c.cfg.MaxBytes)
		c.log.Warn("rejecting oversized cache entry",
			zap.Int64("bytes", size),
			zap.Int64("max_bytes", c.cfg.MaxBytes),
			zap.Int("rows", len(rows)),
			zap.Error(err))
		return
	}

	if existing, exists := c.entries[key]; exists {
		c.bytes -= existing.ApproxBytes
		c.lru.remove(key)
		delete(c.entries, key)
	}

	for len(c.entries)+1 > c.cfg.MaxEntries {
		if !c.evictOldestLocked("lru") {
			break
		}
	}
	for c.bytes+size > c.cfg.MaxBytes {
		if !c.evictOldestLocked("bytes") {
			break
		}
	}

	c.entries[key] = &Entry{
		Rows:        rows,
		TotalCount:  totalCount,
		StoredAt:    now,
		ApproxBytes: size,
	}
	c.bytes += size
	c.lru.addToFront(key)
	c.collector.CacheSize(len(c.entries), c.bytes)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	if n == 0 {
		return
	}

	c.entries = make(map[string]*Entry)
	c.lru = newLRUList()
	c.bytes = 0
	c.evictions += int64(n)
	c.collector.CacheEvicted("clear", n)
	c.collector.CacheSize(0, 0)
	c.log.Debug("cache cleared", zap.Int("entries", n))
}

// Invalidate removes entries the predicate selects and returns how
// many were dropped.
func (c *Cache) Invalidate(pred func(key string, e *Entry) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var doomed []string
	for key, entry := range c.entries {
		if pred(key, entry) {
			doomed = append(doomed, key)
		}
	}
	for _, key := range doomed {
		c.removeLocked(key, "invalidate")
	}
	if len(doomed) > 0 {
		c.collector.CacheSize(len(c.entries), c.bytes)
	}
	return len(doomed)
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   len(c.entries),
		Bytes:     c.bytes,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

func (c *Cache) expired(e *Entry, now time.Time) bool {
	return now.Sub(e.StoredAt) > c.cfg.TTL
}

func (c *Cache) sweepExpiredLocked(now time.Time) {
	var doomed []string
	for key, entry := range c.entries {
		if c.expired(entry, now) {
			doomed = append(doomed, key)
		}
	}
	for _, key := range doomed {
		c.removeLocked(key, "ttl")
	}
}

func (c *Cache) evictOldestLocked(reason string) bool {
	key := c.lru.removeOldest()
	if key == "" {
		return false
	}
	entry, exists := c.entries[key]
	if !exists {
		return true
	}
	delete(c.entries, key)
	c.bytes -= entry.ApproxBytes
	c.evictions++
	c.collector.CacheEvicted(reason, 1)
	return true
}

func (c *Cache) removeLocked(key, reason string) {
	entry, exists := c.entries[key]
	if !exists {
		return
	}
	delete(c.entries, key)
	c.lru.remove(key)
	c.bytes -= entry.ApproxBytes
	c.evictions++
	c.collector.CacheEvicted(reason, 1)
}
