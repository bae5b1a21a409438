package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLimiter_AllowBurst(t *testing.T) {
	t.Parallel()
	l := New(1, 3)

	for i := range 3 {
		if r := l.Allow(); !r.Allowed {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}
	r := l.Allow()
	if r.Allowed {
		t.Error("4th call should be denied")
	}
	if r.RetryAfter <= 0 {
		t.Error("RetryAfter should be positive")
	}
}

func TestLimiter_Refill(t *testing.T) {
	t.Parallel()
	l := New(1, 1)
	base := time.Unix(1_700_000_000, 0)
	now := base
	l.now = func() time.Time { return now }
	l.lastFill = base

	if !l.Allow().Allowed {
		t.Fatal("first call should be allowed")
	}
	if l.Allow().Allowed {
		t.Fatal("second call should be denied")
	}
	now = base.Add(1100 * time.Millisecond)
	if !l.Allow().Allowed {
		t.Error("call should be allowed after refill")
	}
}

func TestLimiter_NilNeverThrottles(t *testing.T) {
	t.Parallel()
	var l *Limiter = New(0, 10)
	if l != nil {
		t.Fatal("New(0, ...) should return nil")
	}
	if !l.Allow().Allowed {
		t.Error("nil limiter should allow")
	}
	if err := l.Wait(context.Background()); err != nil {
		t.Errorf("Wait = %v, want nil", err)
	}
}

func TestLimiter_WaitBlocksUntilToken(t *testing.T) {
	t.Parallel()
	l := New(50, 1)
	ctx := context.Background()

	if err := l.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := l.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("second Wait returned after %v, want ~20ms", elapsed)
	}
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	t.Parallel()
	l := New(0.001, 1)
	l.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v, want DeadlineExceeded", err)
	}
}

func TestLimiter_ConcurrentAllow(t *testing.T) {
	t.Parallel()
	l := New(0.001, 100)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				if l.Allow().Allowed {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if n := allowed.Load(); n != 100 {
		t.Errorf("allowed = %d, want 100", n)
	}
}
