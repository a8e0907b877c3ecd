package telemetry

import (
	"sync"
	"time"
)

// RateLimiter is a fixed-window per-client counter. A client may make at
// most max requests per window; the window resets wholesale rather than
// sliding.
type RateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	buckets map[string]*bucket

	// now is swappable for tests.
	now func() time.Time
}

type bucket struct {
	windowStart time.Time
	count       int
}

// NewRateLimiter builds a limiter allowing max requests per window.
func NewRateLimiter(window time.Duration, max int) *RateLimiter {
	return &RateLimiter{
		window:  window,
		max:     max,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow records one request for client and reports whether it fits in the
// current window. When denied, retryAfter is the time until the window
// resets.
func (l *RateLimiter) Allow(client string) (ok bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, exists := l.buckets[client]
	if !exists || now.Sub(b.windowStart) >= l.window {
		l.buckets[client] = &bucket{windowStart: now, count: 1}
		l.pruneLocked(now)
		return true, 0
	}
	if b.count >= l.max {
		return false, b.windowStart.Add(l.window).Sub(now)
	}
	b.count++
	return true, 0
}

// pruneLocked drops buckets whose window has long passed so the map does not
// grow with every client ever seen. Called opportunistically on new-window
// creation; must hold mu.
func (l *RateLimiter) pruneLocked(now time.Time) {
	if len(l.buckets) < 1024 {
		return
	}
	for client, b := range l.buckets {
		if now.Sub(b.windowStart) >= 2*l.window {
			delete(l.buckets, client)
		}
	}
}
