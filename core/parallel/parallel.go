// Package parallel splits per-target work into contiguous index ranges and
// runs them on a bounded number of goroutines.
package parallel

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/YuminosukeSato/connmodel/pkg/errors"
)

// DefaultThreshold is the item count at or below which ForEachChunk runs
// sequentially.
const DefaultThreshold = 4

// Parallelize divides items into NumCPU contiguous ranges and runs fn on
// each range in its own goroutine.
func Parallelize(items int, fn func(start, end int)) {
	if items == 0 {
		return
	}
	numWorkers := runtime.NumCPU()
	if numWorkers > items {
		numWorkers = items
	}
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := min(start+chunkSize, items)
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ParallelizeWithThreshold runs fn(0, items) inline when items <= threshold
// and falls back to Parallelize otherwise.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, fn)
}

// Chunks returns the contiguous [start, end) ranges used for items split
// across workers. workers <= 0 means runtime.NumCPU().
func Chunks(items, workers int) [][2]int {
	if items <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > items {
		workers = items
	}
	chunkSize := (items + workers - 1) / workers
	chunks := make([][2]int, 0, workers)
	for start := 0; start < items; start += chunkSize {
		chunks = append(chunks, [2]int{start, min(start+chunkSize, items)})
	}
	return chunks
}

// ForEachChunk runs fn over contiguous ranges of [0, items) with at most
// workers goroutines. The first error cancels the context passed to the
// remaining chunks and is returned; a panic inside fn is returned as a
// *errors.PanicError. At or below threshold items the loop runs inline.
func ForEachChunk(ctx context.Context, items, workers, threshold int, fn func(ctx context.Context, start, end int) error) error {
	if items <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if items <= threshold || workers == 1 {
		return runChunk(ctx, fn, 0, items)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range Chunks(items, workers) {
		start, end := c[0], c[1]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return runChunk(gctx, fn, start, end)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func runChunk(ctx context.Context, fn func(ctx context.Context, start, end int) error, start, end int) (err error) {
	defer errors.Recover(&err, "parallel.ForEachChunk")
	return fn(ctx, start, end)
}
