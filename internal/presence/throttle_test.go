package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/coedit/internal/testutil"
)

type recorder struct {
	mu   sync.Mutex
	sent []Cursor
}

func (r *recorder) send(c Cursor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, c)
}

func (r *recorder) positions() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.sent))
	for _, c := range r.sent {
		out = append(out, c.Position)
	}
	return out
}

func newTestThrottler() (*Throttler, *recorder, *testutil.FakeClock) {
	clk := testutil.NewFakeClock()
	rec := &recorder{}
	return NewThrottler(100*time.Millisecond, rec.send, WithClock(clk)), rec, clk
}

func TestThrottler_FirstUpdateSendsImmediately(t *testing.T) {
	th, rec, _ := newTestThrottler()
	th.Track(3, 3, 7)
	assert.Equal(t, []Cursor{{Position: 3, SelectionStart: 3, SelectionEnd: 7}}, rec.sent)
	assert.False(t, th.Pending())
}

func TestThrottler_TrailingEdgeCoalesces(t *testing.T) {
	th, rec, clk := newTestThrottler()

	th.Track(1, 1, 1)
	clk.Advance(20 * time.Millisecond)
	th.Track(2, 2, 2)
	clk.Advance(20 * time.Millisecond)
	th.Track(3, 3, 3)

	assert.Equal(t, []int{1}, rec.positions())
	assert.True(t, th.Pending())

	d, ok := clk.NextDeadline()
	assert.True(t, ok)
	assert.Equal(t, 60*time.Millisecond, d, "held update fires at the remaining delay")

	clk.Advance(60 * time.Millisecond)
	assert.Equal(t, []int{1, 3}, rec.positions(), "only the latest held update is sent")
	assert.False(t, th.Pending())
}

func TestThrottler_SpacedUpdatesPassThrough(t *testing.T) {
	th, rec, clk := newTestThrottler()
	for i := 0; i < 4; i++ {
		th.Track(i, i, i)
		clk.Advance(100 * time.Millisecond)
	}
	assert.Equal(t, []int{0, 1, 2, 3}, rec.positions())
}

func TestThrottler_IntervalRestartsAfterTrailingSend(t *testing.T) {
	th, rec, clk := newTestThrottler()

	th.Track(1, 1, 1)
	clk.Advance(50 * time.Millisecond)
	th.Track(2, 2, 2)
	clk.Advance(50 * time.Millisecond) // trailing send of 2 at t=100
	clk.Advance(30 * time.Millisecond)
	th.Track(3, 3, 3) // 30ms after the trailing send

	assert.Equal(t, []int{1, 2}, rec.positions())
	d, _ := clk.NextDeadline()
	assert.Equal(t, 70*time.Millisecond, d)
}

func TestThrottler_Stop(t *testing.T) {
	th, rec, clk := newTestThrottler()

	th.Track(1, 1, 1)
	th.Track(2, 2, 2)
	th.Stop()
	clk.Advance(time.Second)
	th.Track(3, 3, 3)

	assert.Equal(t, []int{1}, rec.positions())
	assert.Equal(t, 0, clk.Pending())
}

func TestThrottler_DefaultInterval(t *testing.T) {
	th := NewThrottler(0, func(Cursor) {})
	assert.Equal(t, DefaultInterval, th.interval)
}
