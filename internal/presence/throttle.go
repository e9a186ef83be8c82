// Package presence rate-limits cursor and selection updates.
package presence

import (
	"sync"
	"time"

	"github.com/roach88/coedit/internal/clock"
)

// DefaultInterval is the minimum spacing between presence sends.
const DefaultInterval = 100 * time.Millisecond

// Cursor is a caret position with an optional selection, in characters.
type Cursor struct {
	Position       int
	SelectionStart int
	SelectionEnd   int
}

// SendFunc transmits one presence update.
type SendFunc func(Cursor)

// Option configures a Throttler.
type Option func(*Throttler)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(t *Throttler) {
		t.clock = c
	}
}

// Throttler forwards at most one update per interval. An update arriving
// too soon is held until the interval has elapsed; a newer update replaces
// the held one, so the last position always goes out (trailing edge).
//
// Thread-safety: all methods are safe for concurrent use. send is called
// without the throttler's lock held.
type Throttler struct {
	interval time.Duration
	send     SendFunc
	clock    clock.Clock

	mu      sync.Mutex
	last    time.Time
	pending Cursor
	timer   clock.Timer
	seq     uint64
	stopped bool
}

// NewThrottler creates a throttler calling send. A non-positive interval
// uses DefaultInterval.
func NewThrottler(interval time.Duration, send SendFunc, opts ...Option) *Throttler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := &Throttler{
		interval: interval,
		send:     send,
		clock:    clock.Real(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track records a cursor update.
func (t *Throttler) Track(cursor, selectionStart, selectionEnd int) {
	c := Cursor{Position: cursor, SelectionStart: selectionStart, SelectionEnd: selectionEnd}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	elapsed := now.Sub(t.last)
	if t.last.IsZero() || elapsed >= t.interval {
		t.cancelLocked()
		t.last = now
		t.mu.Unlock()
		t.send(c)
		return
	}

	t.cancelLocked()
	t.pending = c
	seq := t.seq
	t.timer = t.clock.AfterFunc(t.interval-elapsed, func() { t.fire(seq) })
	t.mu.Unlock()
}

func (t *Throttler) fire(seq uint64) {
	t.mu.Lock()
	if t.stopped || seq != t.seq {
		t.mu.Unlock()
		return
	}
	c := t.pending
	t.timer = nil
	t.seq++
	t.last = t.clock.Now()
	t.mu.Unlock()
	t.send(c)
}

// Pending reports whether an update is held for later delivery.
func (t *Throttler) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

// Stop discards any held update. Later calls to Track are ignored.
func (t *Throttler) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
	t.stopped = true
}

// cancelLocked drops the held update. Bumping seq also disarms a timer
// whose callback is already waiting on the lock.
func (t *Throttler) cancelLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.seq++
}
