package ephemeris

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orrery/orrery/internal/hierarchy"
	"github.com/orrery/orrery/internal/metrics"
	"github.com/orrery/orrery/internal/system"
)

// CacheEntry wraps a frame with generation metadata.
type CacheEntry struct {
	Frame       *hierarchy.Frame
	GeneratedAt time.Time
}

// FrameCache is an in-memory frame cache with a rolling window. It keeps
// frames for [clock, clock+horizon] in master seconds, generating at the
// leading edge and evicting behind the trailing edge. When the system
// snapshot changes, the cache is rebuilt without interrupting reads.
// Safe for concurrent use by multiple goroutines.
type FrameCache struct {
	mu      sync.RWMutex
	entries map[int64]*CacheEntry

	config Config
	engine *Engine
	store  *system.Store
	clock  *Clock
	logger *slog.Logger

	// Track the current snapshot for change detection.
	currentLoadedAt time.Time

	// Counters (lock-free).
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	// Cutover state.
	inGracePeriod atomic.Bool
}

// NewFrameCache creates a new frame cache.
func NewFrameCache(config Config, engine *Engine, store *system.Store, clock *Clock, logger *slog.Logger) *FrameCache {
	logger.Info("frame cache initialized",
		"step_seconds", config.Step,
		"horizon_seconds", config.Horizon,
		"buffer_seconds", config.Buffer,
	)

	return &FrameCache{
		entries: make(map[int64]*CacheEntry),
		config:  config,
		engine:  engine,
		store:   store,
		clock:   clock,
		logger:  logger,
	}
}

// RoundToStep rounds a master time down to the nearest step boundary.
// Rounding is toward negative infinity so pre-epoch times land on
// consistent keys too.
func (c *FrameCache) RoundToStep(t int64) int64 {
	mod := t % c.config.Step
	if mod < 0 {
		mod += c.config.Step
	}
	return t - mod
}

// Get returns the frame for the given master time, or nil if not cached.
// The time is rounded to the step boundary.
func (c *FrameCache) Get(t int64) *hierarchy.Frame {
	key := c.RoundToStep(t)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok {
		c.hits.Add(1)
		metrics.IncCacheHits()
		return entry.Frame
	}

	c.misses.Add(1)
	metrics.IncCacheMisses()
	return nil
}

// GetRecent returns up to count frames before (and including) time t,
// ordered oldest-first. Used to build orbital trails.
func (c *FrameCache) GetRecent(t int64, count int) []*hierarchy.Frame {
	if count <= 0 {
		return nil
	}

	key := c.RoundToStep(t)

	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*hierarchy.Frame, 0, count)
	for i := count - 1; i >= 0; i-- {
		ts := key - int64(i)*c.config.Step
		if entry, ok := c.entries[ts]; ok {
			result = append(result, entry.Frame)
		}
	}
	return result
}

// GetLatest returns the frame closest to (but not after) the clock.
func (c *FrameCache) GetLatest() *hierarchy.Frame {
	now := c.RoundToStep(c.clock.Now())

	c.mu.RLock()
	defer c.mu.RUnlock()

	// Walk backwards from now to find the most recent entry.
	for i := int64(0); i < 10; i++ {
		key := now - i*c.config.Step
		if entry, ok := c.entries[key]; ok {
			c.hits.Add(1)
			metrics.IncCacheHits()
			return entry.Frame
		}
	}

	c.misses.Add(1)
	metrics.IncCacheMisses()
	return nil
}

// Put stores a frame in the cache under its step-rounded time. Exposed so
// callers can seed the cache outside the maintenance loop.
func (c *FrameCache) Put(frame *hierarchy.Frame) {
	c.put(frame)
}

// put stores a frame in the cache. Caller must not hold mu.
func (c *FrameCache) put(frame *hierarchy.Frame) {
	key := c.RoundToStep(frame.Time)
	entry := &CacheEntry{
		Frame:       frame,
		GeneratedAt: time.Now(),
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()

	c.updateMetrics()
}

// evictExpired removes entries older than clock - buffer.
func (c *FrameCache) evictExpired() int {
	cutoff := c.clock.Now() - c.config.Buffer
	var removed int

	c.mu.Lock()
	for ts := range c.entries {
		if ts < cutoff {
			delete(c.entries, ts)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.evictions.Add(int64(removed))
		metrics.AddCacheEvictions(removed)
		c.updateMetrics()
		c.logger.Debug("cache eviction", "entries_removed", removed)
	}

	return removed
}

// replaceAll atomically replaces all cache entries (used during cutover).
func (c *FrameCache) replaceAll(newEntries map[int64]*CacheEntry) {
	c.mu.Lock()
	c.entries = newEntries
	c.mu.Unlock()
	c.updateMetrics()
}

// CacheStats holds cache statistics for the stats endpoint.
type CacheStats struct {
	Entries       int   `json:"entries"`
	SizeBytes     int64 `json:"sizeBytes"`
	OldestTime    int64 `json:"oldestTime"`
	NewestTime    int64 `json:"newestTime"`
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Evictions     int64 `json:"evictions"`
	InGracePeriod bool  `json:"inGracePeriod"`
}

// Stats returns current cache statistics.
func (c *FrameCache) Stats() CacheStats {
	c.mu.RLock()
	count := len(c.entries)

	var oldest, newest int64
	first := true
	for ts := range c.entries {
		if first || ts < oldest {
			oldest = ts
		}
		if first || ts > newest {
			newest = ts
		}
		first = false
	}
	c.mu.RUnlock()

	return CacheStats{
		Entries:       count,
		SizeBytes:     c.estimateSizeBytes(),
		OldestTime:    oldest,
		NewestTime:    newest,
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Evictions:     c.evictions.Load(),
		InGracePeriod: c.inGracePeriod.Load(),
	}
}

// estimateSizeBytes returns a rough estimate of the cache memory footprint.
func (c *FrameCache) estimateSizeBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var total int64
	for _, entry := range c.entries {
		if entry.Frame == nil {
			continue
		}
		// Per position: map key string header(16) + average id(16) + Vec3(24).
		posSize := int64(len(entry.Frame.Positions)) * 56
		// Warnings: node id(16+16) + code and detail headers(32) + average text(32).
		warnSize := int64(len(entry.Frame.Warnings)) * 96
		// Frame overhead: Time(8) + map header(8) + slice header(24).
		frameOverhead := int64(40)
		// CacheEntry overhead: pointer(8) + GeneratedAt(24).
		entryOverhead := int64(32)
		total += posSize + warnSize + frameOverhead + entryOverhead
	}

	// Map overhead (rough: 8 bytes per bucket).
	total += int64(len(c.entries)) * 8

	return total
}

// updateMetrics publishes current cache size to Prometheus.
func (c *FrameCache) updateMetrics() {
	c.mu.RLock()
	count := len(c.entries)
	c.mu.RUnlock()

	metrics.SetCacheEntries(count)
	metrics.SetCacheSizeBytes(c.estimateSizeBytes())
}
