// Package ratelimit implements a per-user fixed-window request limiter.
package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of an Allow check.
type Decision struct {
	// OK indicates the request is within the window budget.
	OK bool

	// RetryAfter is how long the caller should wait before retrying.
	// Zero when OK is true.
	RetryAfter time.Duration
}

// RetryAfterSeconds returns the retry hint rounded up to whole seconds.
func (d Decision) RetryAfterSeconds() int {
	if d.OK || d.RetryAfter <= 0 {
		return 0
	}
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

type window struct {
	start time.Time
	count int
}

// Limiter counts requests per user in aligned fixed windows.
//
// The window is keyed by floor(now / windowSize): coarser than a sliding
// window but bounded and cheap. One active window per user; the counter
// resets when the wall clock crosses into the next window.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	size    time.Duration
	max     int
}

// New creates a Limiter allowing max requests per size-long window.
func New(size time.Duration, max int) *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		size:    size,
		max:     max,
	}
}

// Allow records one request for userID at the given instant and reports
// whether it fits the current window. Callers pass now explicitly so tests
// can drive the limiter with a fake clock.
func (l *Limiter) Allow(userID string, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := now.Truncate(l.size)
	w, ok := l.windows[userID]
	if !ok || !w.start.Equal(start) {
		w = &window{start: start}
		l.windows[userID] = w
	}

	w.count++
	if w.count > l.max {
		return Decision{RetryAfter: start.Add(l.size).Sub(now)}
	}
	return Decision{OK: true}
}

// Forget drops the active window for userID, if any. Called when a session
// ends so the map does not accumulate stale users.
func (l *Limiter) Forget(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, userID)
}
