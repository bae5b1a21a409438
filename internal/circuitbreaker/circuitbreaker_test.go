package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errEngine = errors.New("engine down")

// fakeClock is advanced manually by tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg Config) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := NewBreaker(cfg)
	b.now = clock.Now
	return b, clock
}

func testConfig() Config {
	return Config{
		ErrorThreshold: 0.30,
		MinSamples:     10,
		WindowSeconds:  60,
		OpenTimeout:    30 * time.Second,
	}
}

func TestWindow_Rate(t *testing.T) {
	t.Parallel()

	w := newWindow(60)
	now := time.Now()
	for range 7 {
		w.record(0, now)
	}
	for range 3 {
		w.record(1.0, now)
	}

	rate, samples := w.rate(now)
	if samples != 10 {
		t.Fatalf("samples = %d, want 10", samples)
	}
	if rate < 0.29 || rate > 0.31 {
		t.Fatalf("rate = %f, want ~0.30", rate)
	}
}

func TestWindow_Expiry(t *testing.T) {
	t.Parallel()

	w := newWindow(5)
	base := time.Now()
	w.record(1.0, base)

	rate, samples := w.rate(base.Add(6 * time.Second))
	if samples != 0 || rate != 0 {
		t.Fatalf("after expiry: samples=%d rate=%f, want 0/0", samples, rate)
	}
}

func TestBreaker_OpensOnThreshold(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(testConfig())
	if !b.Allow() {
		t.Fatal("closed breaker should allow")
	}
	for range 7 {
		b.Record(nil)
	}
	for range 3 {
		b.Record(errEngine)
	}

	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	if b.Allow() {
		t.Fatal("open breaker should reject")
	}
}

func TestBreaker_MinSamplesRequired(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(testConfig())
	for range 9 {
		b.Record(errEngine)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed below min samples", b.State())
	}
}

func TestBreaker_CancellationIgnored(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(testConfig())
	for range 20 {
		b.Record(context.Canceled)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		probeErr  error
		wantState State
	}{
		{"probe_succeeds", nil, StateClosed},
		{"probe_fails", errEngine, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, clock := newTestBreaker(testConfig())
			for range 10 {
				b.Record(errEngine)
			}
			clock.Advance(31 * time.Second)

			if !b.Allow() {
				t.Fatal("expected probe to be admitted")
			}
			if b.State() != StateHalfOpen {
				t.Fatalf("state = %v, want half_open", b.State())
			}
			if b.Allow() {
				t.Fatal("second probe should be rejected")
			}

			b.Record(tt.probeErr)
			if b.State() != tt.wantState {
				t.Fatalf("state = %v, want %v", b.State(), tt.wantState)
			}
		})
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	t.Parallel()

	var transitions []string
	cfg := testConfig()
	cfg.OnStateChange = func(from, to State) {
		transitions = append(transitions, from.String()+">"+to.String())
	}
	b, clock := newTestBreaker(cfg)

	for range 10 {
		b.Record(errEngine)
	}
	clock.Advance(time.Minute)
	b.Allow()
	b.Record(nil)

	want := []string{"closed>open", "open>half_open", "half_open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestBreaker_Concurrent(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(testConfig())
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if b.Allow() {
					if i%2 == 0 {
						b.Record(nil)
					} else {
						b.Record(errEngine)
					}
				}
				_ = b.State()
			}
		}()
	}
	wg.Wait()
}
