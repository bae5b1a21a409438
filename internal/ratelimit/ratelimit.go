// Package ratelimit throttles engine calls with a lazy-refill token bucket.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result is the outcome of a non-blocking check.
type Result struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter is a token bucket shared by all workers of a run. It refills on
// demand; there is no background goroutine. A nil *Limiter never throttles.
type Limiter struct {
	mu       sync.Mutex
	tokens   float64
	burst    float64
	rate     float64 // tokens per second
	lastFill time.Time
	now      func() time.Time
}

// New creates a limiter admitting perSecond calls per second with bursts of
// up to burst calls. It returns nil when perSecond <= 0.
func New(perSecond float64, burst int) *Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		tokens: float64(burst),
		burst:  float64(burst),
		rate:   perSecond,
		now:    time.Now,
	}
	l.lastFill = l.now()
	return l
}

func (l *Limiter) refill(now time.Time) {
	elapsed := now.Sub(l.lastFill).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens = min(l.burst, l.tokens+elapsed*l.rate)
	l.lastFill = now
}

// reserve takes a token if one is available, otherwise reports how long
// until one will be.
func (l *Limiter) reserve() (time.Duration, int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(l.now())
	if l.tokens >= 1 {
		l.tokens--
		return 0, int64(l.tokens), true
	}
	deficit := 1 - l.tokens
	return time.Duration(deficit / l.rate * float64(time.Second)), 0, false
}

// Allow consumes a token without blocking.
func (l *Limiter) Allow() Result {
	if l == nil {
		return Result{Allowed: true}
	}
	wait, remaining, ok := l.reserve()
	return Result{Allowed: ok, Remaining: remaining, RetryAfter: wait}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	for {
		wait, _, ok := l.reserve()
		if ok {
			return nil
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
