package ot

import "sync/atomic"

// RevisionClock is the monotonic revision counter of an engine.
//
// Each operation that reaches history is stamped with the value returned by
// Next, so revisions are strictly increasing and gap-free per client. They
// are not a global order across clients.
//
// Thread-safety: RevisionClock is safe for concurrent use.
type RevisionClock struct {
	rev atomic.Int64
}

// NewRevisionClock creates a clock starting at revision 0.
func NewRevisionClock() *RevisionClock {
	return &RevisionClock{}
}

// NewRevisionClockAt creates a clock positioned at start.
// Used when an engine is restored from a journal.
func NewRevisionClockAt(start int64) *RevisionClock {
	c := &RevisionClock{}
	c.rev.Store(start)
	return c
}

// Next increments the clock and returns the new revision.
func (c *RevisionClock) Next() int64 {
	return c.rev.Add(1)
}

// Current returns the current revision without incrementing.
func (c *RevisionClock) Current() int64 {
	return c.rev.Load()
}
