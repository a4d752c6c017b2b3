package ephemeris

import (
	"context"
	"time"

	"github.com/orrery/orrery/internal/metrics"
)

// systemChanged checks if the system snapshot has been replaced since the
// cache was last built.
func (c *FrameCache) systemChanged() bool {
	sys := c.store.Get()
	if sys == nil {
		return false
	}
	return !sys.LoadedAt.Equal(c.currentLoadedAt)
}

// performCutover rebuilds the entire cache against the new system snapshot.
//
// Strategy:
//  1. Set grace period flag (old cache continues serving reads)
//  2. Build new entries map in the background
//  3. Atomic swap: replace old entries with new
//  4. Clear grace period flag
//
// During the rebuild, reads against the old cache continue uninterrupted.
func (c *FrameCache) performCutover(ctx context.Context) {
	sys := c.store.Get()
	if sys == nil {
		return
	}

	c.logger.Info("system cutover starting",
		"old_loaded_at", c.currentLoadedAt.UTC().Format(time.RFC3339),
		"new_loaded_at", sys.LoadedAt.UTC().Format(time.RFC3339),
		"system", sys.Name,
	)

	c.inGracePeriod.Store(true)
	metrics.SetCacheGracePeriodActive(true)

	start := time.Now()
	now := c.RoundToStep(c.clock.Now())
	numFrames := int(c.config.Horizon/c.config.Step) + 1

	newEntries := make(map[int64]*CacheEntry, numFrames)
	generated := 0

	for i := 0; i < numFrames; i++ {
		select {
		case <-ctx.Done():
			c.inGracePeriod.Store(false)
			metrics.SetCacheGracePeriodActive(false)
			c.logger.Warn("cutover cancelled by context")
			return
		default:
		}

		target := now + int64(i)*c.config.Step
		frame, err := c.engine.FrameAt(ctx, target)
		if err != nil {
			c.logger.Warn("cutover resolution failed",
				"time", target,
				"error", err,
			)
			metrics.IncCacheRegenerationErrors()
			continue
		}

		newEntries[c.RoundToStep(frame.Time)] = &CacheEntry{
			Frame:       frame,
			GeneratedAt: time.Now(),
		}
		generated++
	}

	// Atomic swap.
	c.replaceAll(newEntries)
	c.currentLoadedAt = sys.LoadedAt

	c.inGracePeriod.Store(false)
	metrics.SetCacheGracePeriodActive(false)

	duration := time.Since(start)
	c.logger.Info("system cutover complete",
		"duration_ms", duration.Milliseconds(),
		"entries_replaced", generated,
	)
	metrics.ObserveCacheRegenerationDuration(duration)
}
