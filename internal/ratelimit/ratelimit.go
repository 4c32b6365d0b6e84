// Package ratelimit provides a fixed-window counter keyed by an opaque
// string (e.g. "command:42").  It is in-process and best-effort; the
// target deployment is a single instance, so no shared store is involved.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrLimitExceeded is returned when a key has no tokens left in the
// current window.  Callers abort the whole request on this error.
var ErrLimitExceeded = errors.New("ratelimit: limit exceeded")

type window struct {
	start     time.Time
	remaining int
}

// Limiter tracks one fixed window per key.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time // overridable for tests
}

// New returns an empty limiter.
func New() *Limiter {
	return &Limiter{windows: make(map[string]*window), now: time.Now}
}

// Enforce consumes one token for key.  When no window is active or the
// previous window has elapsed, a new window opens with limit-1 tokens
// remaining.  Otherwise the counter decrements, or ErrLimitExceeded is
// returned once it reaches zero.
func (l *Limiter) Enforce(key string, limit int, windowDur time.Duration) error {
	if limit <= 0 {
		return ErrLimitExceeded
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= windowDur {
		l.windows[key] = &window{start: now, remaining: limit - 1}
		return nil
	}
	if w.remaining <= 0 {
		return ErrLimitExceeded
	}
	w.remaining--
	return nil
}
