package ratelimit

import (
	"sync"
	"time"
)

// tokenBucket implements a token bucket rate limiter
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	rate       float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

func newTokenBucket(rate, capacity int, now func() time.Time) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(capacity),
		capacity:   float64(capacity),
		rate:       float64(rate),
		lastRefill: now(),
		now:        now,
	}
}

// Allow consumes a token if one is available.
func (tb *tokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	tb.tokens += now.Sub(tb.lastRefill).Seconds() * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

type entry struct {
	bucket   *tokenBucket
	lastSeen time.Time
}

// Limiter keeps one bucket per source host.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*entry
	rate    int
	burst   int
	now     func() time.Time
}

// NewLimiter returns nil when rate is not positive; a nil *Limiter allows everything.
func NewLimiter(rate, burst int) *Limiter {
	if rate <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = rate
	}
	return &Limiter{buckets: make(map[string]*entry), rate: rate, burst: burst, now: time.Now}
}

// Allow checks if a connection from host is allowed.
func (l *Limiter) Allow(host string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	e, ok := l.buckets[host]
	if !ok {
		e = &entry{bucket: newTokenBucket(l.rate, l.burst, l.now)}
		l.buckets[host] = e
	}
	e.lastSeen = l.now()
	l.mu.Unlock()
	return e.bucket.Allow()
}

// Sweep drops buckets idle for longer than maxIdle and returns how many went.
func (l *Limiter) Sweep(maxIdle time.Duration) int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-maxIdle)
	n := 0
	for host, e := range l.buckets {
		if e.lastSeen.Before(cutoff) {
			delete(l.buckets, host)
			n++
		}
	}
	return n
}

// Len is the number of tracked hosts.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
