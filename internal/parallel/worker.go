// Package parallel provides the worker pool used to fit and query tree
// ensembles concurrently.
//
// Work is fanned out to a fixed number of goroutines and fanned back in with
// results kept in input order, so callers see the same output no matter how
// the items were scheduled. Cancelling the pool's context stops scheduling
// further items.
package parallel

import (
	"context"
	"runtime"
	"sync"
)

// WorkerPool manages a pool of goroutines for parallel processing
type WorkerPool struct {
	numWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewWorkerPool creates a new worker pool; numWorkers <= 0 uses every CPU
func NewWorkerPool(numWorkers int) *WorkerPool {
	return NewWorkerPoolContext(context.Background(), numWorkers)
}

// NewWorkerPoolContext creates a worker pool bound to ctx
func NewWorkerPoolContext(ctx context.Context, numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		numWorkers: numWorkers,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Size returns the number of workers
func (wp *WorkerPool) Size() int {
	return wp.numWorkers
}

// Err reports why the pool stopped scheduling, or nil while it is live.
func (wp *WorkerPool) Err() error {
	return wp.ctx.Err()
}

// ProcessIndexed executes work items in parallel while preserving order.
// Items not started before cancellation keep the zero value of R.
func ProcessIndexed[T, R any](
	wp *WorkerPool,
	items []T,
	worker func(int, T) R,
) []R {
	if len(items) == 0 {
		return nil
	}

	itemCh := make(chan indexedItem[T], len(items))
	resultCh := make(chan indexedResult[R], len(items))

	var wg sync.WaitGroup
	for i := 0; i < min(wp.numWorkers, len(items)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range itemCh {
				select {
				case <-wp.ctx.Done():
					return
				default:
					resultCh <- indexedResult[R]{
						index:  item.index,
						result: worker(item.index, item.value),
					}
				}
			}
		}()
	}

	go func() {
		defer close(itemCh)
		for i, item := range items {
			select {
			case <-wp.ctx.Done():
				return
			case itemCh <- indexedItem[T]{index: i, value: item}:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]R, len(items))
	for result := range resultCh {
		results[result.index] = result.result
	}

	return results
}

// Range runs fn for every index in [0, n) and returns the first error in
// index order, or the pool's context error if it was cancelled.
func Range(wp *WorkerPool, n int, fn func(int) error) error {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	errs := ProcessIndexed(wp, idx, func(_ int, i int) error { return fn(i) })
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return wp.Err()
}

// Close shuts down the worker pool
func (wp *WorkerPool) Close() {
	wp.cancel()
}

// indexedItem holds an item with its index
type indexedItem[T any] struct {
	index int
	value T
}

// indexedResult holds a result with its index
type indexedResult[R any] struct {
	index  int
	result R
}
