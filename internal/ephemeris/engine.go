// Package ephemeris orchestrates frame resolution: a worker pool fans out
// batch requests, a rolling cache keeps the window around the simulated
// clock warm, and the clock itself maps wall time onto master seconds.
package ephemeris

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/orrery/orrery/internal/hierarchy"
	"github.com/orrery/orrery/internal/metrics"
	"github.com/orrery/orrery/internal/system"
)

// Config holds ephemeris configuration loaded from environment variables.
// Step, Horizon and Buffer are simulated seconds; TickInterval is wall time.
type Config struct {
	Step         int64         // frame interval in the cache (default: 60)
	Horizon      int64         // how far ahead of the clock to cache (default: 3600)
	Buffer       int64         // keep frames this long behind the clock (default: 300)
	Workers      int           // parallel frame resolutions (default: 4)
	TickInterval time.Duration // cache maintenance cadence (default: 1s)
}

// Engine resolves frames against the current system snapshot.
type Engine struct {
	store  *system.Store
	pool   *WorkerPool
	config Config
	logger *slog.Logger
}

// NewEngine creates a new frame resolution engine.
func NewEngine(store *system.Store, config Config, logger *slog.Logger) *Engine {
	pool := NewWorkerPool(config.Workers, logger)
	metrics.SetResolutionWorkersActive(config.Workers)
	return &Engine{
		store:  store,
		pool:   pool,
		config: config,
		logger: logger,
	}
}

// FrameAt resolves a single frame at the given master time using the
// current system snapshot.
func (e *Engine) FrameAt(ctx context.Context, t int64) (*hierarchy.Frame, error) {
	sys := e.store.Get()
	if sys == nil {
		return nil, fmt.Errorf("no system loaded")
	}

	start := time.Now()
	frame, err := hierarchy.Resolve(sys, t)
	if err != nil {
		return nil, err
	}
	duration := time.Since(start)

	codes := make([]string, 0, len(frame.Warnings))
	for _, w := range frame.Warnings {
		codes = append(codes, w.Code)
	}
	metrics.RecordResolution(duration, len(frame.Positions), codes)

	e.logger.Debug("frame resolved",
		"time", t,
		"nodes", len(frame.Positions),
		"warnings", len(frame.Warnings),
		"duration_us", duration.Microseconds(),
	)

	return frame, nil
}

// FrameRange resolves count frames starting at startTime, step seconds
// apart, using the worker pool.
func (e *Engine) FrameRange(ctx context.Context, startTime, step int64, count int) ([]*hierarchy.Frame, error) {
	if count <= 0 {
		return nil, nil
	}
	if step <= 0 {
		return nil, fmt.Errorf("step must be positive, got %d", step)
	}

	sys := e.store.Get()
	if sys == nil {
		return nil, fmt.Errorf("no system loaded")
	}

	times := make([]int64, count)
	for i := range times {
		times[i] = startTime + int64(i)*step
	}

	start := time.Now()
	frames, successCount, errorCount := e.pool.ResolveBatch(ctx, sys, times)
	duration := time.Since(start)

	e.logger.Debug("frame range resolved",
		"requested", count,
		"success", successCount,
		"errors", errorCount,
		"duration_ms", duration.Milliseconds(),
	)

	if errorCount > 0 && successCount == 0 {
		return nil, fmt.Errorf("all %d frames failed to resolve", errorCount)
	}
	return frames, nil
}
