package conn

import "time"

// latencyWindow keeps the most recent samples in a ring.
type latencyWindow struct {
	samples []time.Duration
	next    int
	full    bool
}

func newLatencyWindow(size int) *latencyWindow {
	return &latencyWindow{samples: make([]time.Duration, size)}
}

func (w *latencyWindow) Record(d time.Duration) {
	if len(w.samples) == 0 {
		return
	}
	w.samples[w.next] = d
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

// Average returns the mean of the retained samples, or 0 with no samples.
func (w *latencyWindow) Average() time.Duration {
	n := w.next
	if w.full {
		n = len(w.samples)
	}
	if n == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range w.samples[:n] {
		sum += d
	}
	return sum / time.Duration(n)
}

func (w *latencyWindow) Len() int {
	if w.full {
		return len(w.samples)
	}
	return w.next
}
