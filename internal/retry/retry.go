// Package retry implements bounded retry with jittered exponential
// backoff.  Every network-facing operation in the sync and dispatch paths
// goes through Do so that transient failures are absorbed with one
// consistent policy.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Default policy applied when callers pass zero values.
const (
	DefaultRetries   = 3
	DefaultBaseDelay = 500 * time.Millisecond
	maxJitter        = 100 * time.Millisecond
)

// Do invokes fn and, on failure, retries up to retries additional times.
// Between attempt n and n+1 it sleeps baseDelay * 2^(n-1) plus a random
// 0-100ms jitter.  The last error is returned after the budget is
// exhausted.  The sleep is context-aware: a cancelled context cuts the
// wait short and returns ctx.Err().
func Do(ctx context.Context, retries int, baseDelay time.Duration, fn func() error) error {
	if retries <= 0 {
		retries = DefaultRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt > retries {
			return err
		}
		delay := baseDelay<<(attempt-1) + time.Duration(rand.Int63n(int64(maxJitter)))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Value runs fn through Do and returns its result alongside the final
// error.  It exists so call sites fetching data do not need a captured
// variable for every retried request.
func Value[T any](ctx context.Context, retries int, baseDelay time.Duration, fn func() (T, error)) (T, error) {
	var out T
	err := Do(ctx, retries, baseDelay, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
