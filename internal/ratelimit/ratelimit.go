package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Defaults for the /api limiter: 100 requests per client every 15 minutes.
const (
	DefaultRequests = 100
	DefaultWindow   = 15 * time.Minute
)

// RateLimiter decides whether a request identified by key may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
}

// InMemoryRateLimiter keeps one token bucket per key. It is suitable for a
// single dashboard instance.
type InMemoryRateLimiter struct {
	rate  rate.Limit
	burst int

	// limiters stores per-key rate limiters
	limiters sync.Map // map[string]*rate.Limiter

	// lastAccess tracks when each limiter was last used
	lastAccess sync.Map // map[string]time.Time

	cleanupInterval time.Duration
	maxAge          time.Duration
	now             func() time.Time
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewInMemoryRateLimiter creates a limiter allowing rps requests per second
// with bursts up to burst.
func NewInMemoryRateLimiter(rps float64, burst int) *InMemoryRateLimiter {
	l := &InMemoryRateLimiter{
		rate:            rate.Limit(rps),
		burst:           burst,
		cleanupInterval: 5 * time.Minute,
		maxAge:          10 * time.Minute,
		now:             time.Now,
		stopCleanup:     make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// NewWindowLimiter allows requests per window for each key. A client may
// spend the whole budget at once; it then refills evenly over the window.
func NewWindowLimiter(requests int, window time.Duration) *InMemoryRateLimiter {
	if requests < 1 {
		requests = DefaultRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := NewInMemoryRateLimiter(float64(requests)/window.Seconds(), requests)
	if window > l.maxAge {
		l.maxAge = window
	}
	return l
}

// Allow checks if a single request is allowed
func (l *InMemoryRateLimiter) Allow(ctx context.Context, key string) bool {
	now := l.now()
	l.lastAccess.Store(key, now)
	return l.getLimiter(key).AllowN(now, 1)
}

// RetryAfter estimates how long key must wait for its next token.
func (l *InMemoryRateLimiter) RetryAfter(key string) time.Duration {
	if l.rate <= 0 {
		return 0
	}
	now := l.now()
	tokens := l.getLimiter(key).TokensAt(now)
	if tokens >= 1 {
		return 0
	}
	return time.Duration((1 - tokens) / float64(l.rate) * float64(time.Second))
}

func (l *InMemoryRateLimiter) getLimiter(key string) *rate.Limiter {
	if limiter, ok := l.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}
	actual, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.rate, l.burst))
	return actual.(*rate.Limiter)
}

func (l *InMemoryRateLimiter) cleanup() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanupOldLimiters()
		case <-l.stopCleanup:
			return
		}
	}
}

// cleanupOldLimiters drops limiters idle for longer than maxAge. A dropped
// client starts again with a full bucket, which maxAge >= window makes
// equivalent to having waited it out.
func (l *InMemoryRateLimiter) cleanupOldLimiters() int {
	cutoff := l.now().Add(-l.maxAge)
	removed := 0
	l.lastAccess.Range(func(key, value any) bool {
		if value.(time.Time).Before(cutoff) {
			l.limiters.Delete(key)
			l.lastAccess.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (l *InMemoryRateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCleanup) })
}
