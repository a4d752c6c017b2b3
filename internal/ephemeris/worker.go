package ephemeris

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/orrery/orrery/internal/hierarchy"
	"github.com/orrery/orrery/internal/system"
)

// resolveJob is a unit of work for the worker pool: one frame time.
type resolveJob struct {
	time int64
}

// resolveResult is the output of resolving one frame.
type resolveResult struct {
	frame *hierarchy.Frame
	err   error
	time  int64
}

// WorkerPool manages a fixed number of goroutines for parallel frame
// resolution. Frames at distinct times are independent, so a batch fans
// out one frame per job.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// ResolveBatch resolves the system at every given time using the worker pool.
// Returns the successful frames ordered by time, plus success and error
// counts. Failed frames are logged and skipped.
func (wp *WorkerPool) ResolveBatch(ctx context.Context, sys *system.System, times []int64) ([]*hierarchy.Frame, int, int) {
	if len(times) == 0 {
		return nil, 0, 0
	}

	jobs := make(chan resolveJob, wp.workers*2)
	results := make(chan resolveResult, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				frame, err := hierarchy.Resolve(sys, job.time)
				select {
				case results <- resolveResult{frame: frame, err: err, time: job.time}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, t := range times {
			select {
			case jobs <- resolveJob{time: t}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	frames := make([]*hierarchy.Frame, 0, len(times))
	var successCount, errorCount int

	for result := range results {
		if result.err != nil {
			errorCount++
			wp.logger.Warn("frame resolution failed",
				"time", result.time,
				"error", result.err,
			)
			continue
		}
		successCount++
		frames = append(frames, result.frame)
	}

	sort.Slice(frames, func(i, j int) bool { return frames[i].Time < frames[j].Time })

	return frames, successCount, errorCount
}
