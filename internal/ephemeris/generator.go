package ephemeris

import (
	"context"
	"time"

	"github.com/orrery/orrery/internal/metrics"
)

// Start begins the background cache maintenance loop. It performs an
// initial warmup (filling the full [clock, clock+horizon] window), then
// continuously:
//   - Generates missing frames at the leading edge
//   - Evicts expired entries from the trailing edge
//   - Detects system snapshot changes and triggers cutover
//
// Blocks until ctx is cancelled.
func (c *FrameCache) Start(ctx context.Context) {
	// Wait for a system to be loaded before warmup.
	if !c.waitForSystem(ctx) {
		return
	}

	c.warmup(ctx)

	ticker := time.NewTicker(c.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("cache generator stopped")
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// waitForSystem blocks until a system is available in the store, checking
// every second. Returns false if ctx is cancelled.
func (c *FrameCache) waitForSystem(ctx context.Context) bool {
	if c.store.Get() != nil {
		return true
	}

	c.logger.Info("cache waiting for system data...")
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if c.store.Get() != nil {
				c.logger.Info("system data available, starting cache warmup")
				return true
			}
		}
	}
}

// warmup fills the cache with frames for [clock, clock+horizon].
func (c *FrameCache) warmup(ctx context.Context) {
	sys := c.store.Get()
	if sys == nil {
		return
	}
	c.currentLoadedAt = sys.LoadedAt

	now := c.RoundToStep(c.clock.Now())
	numFrames := int(c.config.Horizon/c.config.Step) + 1

	c.logger.Info("cache warmup starting",
		"frames", numFrames,
		"from", now,
		"to", now+c.config.Horizon,
	)

	start := time.Now()
	frames, err := c.engine.FrameRange(ctx, now, c.config.Step, numFrames)
	if err != nil {
		c.logger.Warn("warmup resolution failed", "error", err)
		metrics.IncCacheRegenerationErrors()
		return
	}
	for _, frame := range frames {
		c.put(frame)
	}

	duration := time.Since(start)
	c.logger.Info("cache warmup complete",
		"generated", len(frames),
		"duration_ms", duration.Milliseconds(),
	)
	metrics.ObserveCacheRegenerationDuration(duration)
}

// tick runs one iteration of the maintenance loop.
func (c *FrameCache) tick(ctx context.Context) {
	metrics.SetSimMasterTime(c.clock.Now())
	metrics.SetSystemAge(c.store.AgeSeconds())

	// Check for system snapshot change.
	if c.systemChanged() {
		c.performCutover(ctx)
		return
	}

	// Generate missing frames at the leading edge.
	c.fillLeadingEdge(ctx)

	// Evict expired entries.
	c.evictExpired()
}

// fillLeadingEdge generates any frames missing from the cache window.
// At normal rates this is one frame per step; after a rate increase or
// clock jump it backfills the whole window.
func (c *FrameCache) fillLeadingEdge(ctx context.Context) {
	now := c.RoundToStep(c.clock.Now())
	numFrames := int(c.config.Horizon/c.config.Step) + 1

	var missing []int64
	c.mu.RLock()
	for i := 0; i < numFrames; i++ {
		key := now + int64(i)*c.config.Step
		if _, ok := c.entries[key]; !ok {
			missing = append(missing, key)
		}
	}
	c.mu.RUnlock()

	if len(missing) == 0 {
		return
	}

	start := time.Now()
	generated := 0
	for _, target := range missing {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := c.engine.FrameAt(ctx, target)
		if err != nil {
			c.logger.Warn("leading edge generation failed",
				"time", target,
				"error", err,
			)
			metrics.IncCacheRegenerationErrors()
			continue
		}
		c.put(frame)
		generated++
	}
	duration := time.Since(start)
	metrics.ObserveCacheRegenerationDuration(duration)

	c.logger.Debug("leading edge generated",
		"frames", generated,
		"duration_ms", duration.Milliseconds(),
	)
}
