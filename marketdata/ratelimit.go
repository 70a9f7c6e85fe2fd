package marketdata

import (
	"sync"
	"time"
)

// DefaultRequestsPerMinute is the provider's free-tier ceiling.
const DefaultRequestsPerMinute = 8

// RateLimiter is a fixed-window request counter. It never queues: a request
// over the ceiling fails immediately with the time left in the window.
type RateLimiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	count       int
	windowStart time.Time
	now         func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// WithClock replaces the limiter's time source.
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}

// Allow records one request or returns a *RateLimitError.
func (l *RateLimiter) Allow() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.roll(now)

	if l.count >= l.limit {
		return &RateLimitError{Wait: l.window - now.Sub(l.windowStart)}
	}
	l.count++
	return nil
}

// Remaining reports how many requests are left in the current window.
func (l *RateLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.roll(l.now())
	return l.limit - l.count
}

func (l *RateLimiter) roll(now time.Time) {
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
		l.count = 0
		l.windowStart = now
	}
}
