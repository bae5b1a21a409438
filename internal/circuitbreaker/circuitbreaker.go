// Package circuitbreaker guards a scoring engine with a sliding-window error
// rate detector. While open, calls fail immediately instead of waiting on an
// engine that is known to be down.
package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed allows all calls through.
	StateClosed State = iota
	// StateOpen rejects all calls.
	StateOpen
	// StateHalfOpen allows a single probe call.
	StateHalfOpen
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker parameters.
type Config struct {
	ErrorThreshold float64       // weighted error rate to trip (e.g. 0.50)
	MinSamples     int           // calls in the window before the breaker may open
	WindowSeconds  int           // sliding window length, at most 60
	OpenTimeout    time.Duration // time spent open before a probe is admitted

	// OnStateChange, if set, is called after every transition. It runs with
	// the breaker lock held and must not call back into the breaker.
	OnStateChange func(from, to State)
}

// DefaultConfig returns the defaults used by the job.
func DefaultConfig() Config {
	return Config{
		ErrorThreshold: 0.50,
		MinSamples:     20,
		WindowSeconds:  30,
		OpenTimeout:    10 * time.Second,
	}
}

type slot struct {
	errors float64
	total  int
}

// window is a ring of one-second slots.
type window struct {
	slots    [60]slot
	size     int
	head     int
	headTime int64
}

func newWindow(seconds int) window {
	if seconds <= 0 || seconds > 60 {
		seconds = 60
	}
	return window{size: seconds}
}

// advance moves head to nowSec, clearing the slots skipped over.
func (w *window) advance(nowSec int64) {
	if w.headTime == 0 {
		w.headTime = nowSec
		return
	}
	gap := nowSec - w.headTime
	if gap <= 0 {
		return
	}
	for i := range min(int(gap), w.size) {
		w.slots[(w.head+1+i)%w.size] = slot{}
	}
	w.head = (w.head + int(gap)) % w.size
	w.headTime = nowSec
}

func (w *window) record(weight float64, now time.Time) {
	w.advance(now.Unix())
	w.slots[w.head].total++
	w.slots[w.head].errors += weight
}

// rate returns the weighted error rate and the number of samples.
func (w *window) rate(now time.Time) (float64, int) {
	w.advance(now.Unix())
	var errs float64
	var total int
	for i := range w.size {
		errs += w.slots[i].errors
		total += w.slots[i].total
	}
	if total == 0 {
		return 0, 0
	}
	return errs / float64(total), total
}

func (w *window) reset() {
	*w = window{size: w.size}
}

// Breaker is a circuit breaker state machine. It is safe for concurrent use.
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	state    State
	window   window
	openedAt time.Time
	probing  bool
	now      func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg Config) *Breaker {
	return &Breaker{
		cfg:    cfg,
		window: newWindow(cfg.WindowSeconds),
		now:    time.Now,
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. A true result from an open or
// half-open breaker admits the single probe; its outcome must be passed to
// Record.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.OpenTimeout {
			return false
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// Record feeds the outcome of an admitted call into the window. Errors are
// weighted with ClassifyError; a zero weight counts as a success.
func (b *Breaker) Record(err error) {
	weight := ClassifyError(err)
	if weight < 0 {
		// Not an engine outcome. Release a probe slot without judging it.
		b.mu.Lock()
		b.probing = false
		b.mu.Unlock()
		return
	}

	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.window.record(weight, now)

	switch b.state {
	case StateClosed:
		if weight == 0 {
			return
		}
		rate, samples := b.window.rate(now)
		if samples >= b.cfg.MinSamples && rate >= b.cfg.ErrorThreshold {
			b.open(now)
		}
	case StateHalfOpen:
		b.probing = false
		if weight == 0 {
			b.window.reset()
			b.transition(StateClosed)
			return
		}
		b.open(now)
	}
}

func (b *Breaker) open(now time.Time) {
	b.openedAt = now
	b.probing = false
	b.transition(StateOpen)
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if b.cfg.OnStateChange != nil && from != to {
		b.cfg.OnStateChange(from, to)
	}
}
