// Package pool runs a batch of independent items through one worker
// function with bounded parallelism.  Every sync and dispatch loop uses
// it so that ordering and failure semantics stay identical whether a
// batch runs strictly sequentially (concurrency 1, the default) or
// pooled.
package pool

import (
	"context"
	"sync"
)

// Result pairs one input item with the outcome of its worker call.
// Results are returned in input order regardless of completion order.
type Result[T, R any] struct {
	Item  T
	Value R
	Err   error
}

// ForEach applies fn to every item with at most concurrency workers in
// flight.  A failing item never stops its siblings; each item's error is
// carried in its Result.  Context cancellation stops new items from
// starting; already-running workers finish, and unstarted items report
// ctx.Err().
func ForEach[T, R any](ctx context.Context, concurrency int, items []T, fn func(ctx context.Context, item T) (R, error)) []Result[T, R] {
	if concurrency <= 1 {
		return sequential(ctx, items, fn)
	}

	results := make([]Result[T, R], len(items))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, item := range items {
		results[i].Item = item
		select {
		case <-ctx.Done():
			results[i].Err = ctx.Err()
			continue
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i].Value, results[i].Err = fn(ctx, item)
		}(i, item)
	}
	wg.Wait()
	return results
}

func sequential[T, R any](ctx context.Context, items []T, fn func(ctx context.Context, item T) (R, error)) []Result[T, R] {
	results := make([]Result[T, R], len(items))
	for i, item := range items {
		results[i].Item = item
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		results[i].Value, results[i].Err = fn(ctx, item)
	}
	return results
}
