package concurrent

import (
	"context"
	"fmt"
	"sync"
)

// WorkerPool bounds how many blocking calls run at once.
type WorkerPool struct {
	maxWorkers int
	sem        chan struct{}
}

// NewWorkerPool creates a pool with the given number of slots (default 10).
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		sem:        make(chan struct{}, maxWorkers),
	}
}

// Size returns the number of slots.
func (wp *WorkerPool) Size() int { return wp.maxWorkers }

// Do waits for a free slot and runs fn on the calling goroutine.
func (wp *WorkerPool) Do(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case wp.sem <- struct{}{}:
		defer func() { <-wp.sem }()
		return fn()
	}
}

// Submit runs fn on a pool slot in its own goroutine and returns its result, or
// ctx.Err() if the caller gives up first. The goroutine keeps
// running after ctx is cancelled when fn itself ignores ctx; its result is then dropped.
func Submit[T any](ctx context.Context, wp *WorkerPool, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		var r result
		r.err = wp.Do(ctx, func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("worker panic: %v", p)
				}
			}()
			r.val, err = fn(ctx)
			return err
		})
		done <- r
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-done:
		return r.val, r.err
	}
}

// ParallelMap applies fn to every item with bounded concurrency. Results keep input order.
// The first error (by index) is returned together with the partial results.
func ParallelMap[T, R any](ctx context.Context, items []T, fn func(T) (R, error), maxConcurrency int) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}

	results := make([]R, len(items))
	errs := make([]error, len(items))

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrency)
	for i, item := range items {
		wg.Add(1)
		go func(idx int, val T) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				errs[idx] = ctx.Err()
			case sem <- struct{}{}:
				defer func() { <-sem }()
				results[idx], errs[idx] = fn(val)
			}
		}(i, item)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
