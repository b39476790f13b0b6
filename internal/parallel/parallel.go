// Package parallel provides a bounded worker fan-out over an index range.
// It is the shared scheduling primitive for ray-parallel forward projection
// and for precomputing ray weights.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Ranges splits [0, n) into at most `workers` contiguous chunks and runs fn
// once per chunk on its own goroutine. fn receives the worker index and the
// half-open range it owns. Workers <= 0 means use all available CPUs.
//
// Chunk boundaries depend only on (workers, n), so a caller that keeps
// per-worker state indexed by the worker argument gets a deterministic
// partition for a given worker count.
func Ranges(ctx context.Context, workers, n int, fn func(worker, start, end int) error) error {
	if n <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}

	per := (n + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := w * per
		end := start + per
		if start >= n {
			break
		}
		if end > n {
			end = n
		}
		worker := w
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(worker, start, end)
		})
	}
	return g.Wait()
}

// WorkerCount normalizes a configured worker count the same way Ranges does,
// so callers can size per-worker buffers before fanning out.
func WorkerCount(workers, n int) int {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if n > 0 && workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}
