package ot

import (
	"log/slog"
	"sync"
)

// DefaultUndoLimit bounds the undo and redo stacks.
const DefaultUndoLimit = 1000

// Applied is the result of a local apply.
type Applied struct {
	Operation Operation
	Revision  int64
}

// Engine tracks the operation log of one editing session.
//
// INVARIANTS:
//   - history is append-only; its order is the order operations were applied
//   - revision == number of operations appended to history (plus the start
//     revision of a restored engine)
//   - every local apply pushes the inverse onto undo and clears redo
//   - undo moves the top operation to redo; redo moves it back
type Engine struct {
	mu        sync.Mutex
	clock     *RevisionClock
	history   []Operation
	pending   []Operation
	undo      []Operation
	redo      []Operation
	undoLimit int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithUndoLimit bounds the undo and redo stacks. When a push would exceed
// the limit the oldest entry is dropped. A limit <= 0 means unbounded.
func WithUndoLimit(n int) EngineOption {
	return func(e *Engine) {
		e.undoLimit = n
	}
}

// WithHistory seeds the engine with previously applied operations, for
// example from a journal. The revision clock resumes at len(ops).
func WithHistory(ops []Operation) EngineOption {
	return func(e *Engine) {
		e.history = append([]Operation(nil), ops...)
		e.clock = NewRevisionClockAt(int64(len(ops)))
	}
}

// NewEngine creates an empty engine at revision 0.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		clock:     NewRevisionClock(),
		undoLimit: DefaultUndoLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ApplyLocal records a locally authored operation. It never fails: the
// engine does not own the text, so op is not validated against it.
func (e *Engine) ApplyLocal(op Operation) Applied {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, op)
	rev := e.clock.Next()
	e.redo = nil
	e.undo = e.push(e.undo, Invert(op))

	return Applied{Operation: op, Revision: rev}
}

// ApplyRemote rebases a remote operation past every pending local
// operation, records it, and returns the transformed operation. Pending
// operations are left untouched.
//
// remoteRevision is the server revision the operation was stamped with; it
// is logged for diagnostics only because the pending list already captures
// what the remote author could not have seen.
func (e *Engine) ApplyRemote(op Operation, remoteRevision int64) Operation {
	e.mu.Lock()
	defer e.mu.Unlock()

	transformed := op
	for _, p := range e.pending {
		transformed, _ = Transform(transformed, p)
	}

	e.history = append(e.history, transformed)
	rev := e.clock.Next()

	slog.Debug("remote operation applied",
		"op", transformed.String(),
		"remote_revision", remoteRevision,
		"revision", rev,
		"pending", len(e.pending),
	)
	return transformed
}

// AddPending marks op as sent but not yet acknowledged by the server.
func (e *Engine) AddPending(op Operation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, op)
}

// AcknowledgePending drops the oldest pending operation, which the server
// has now incorporated. Returns false when nothing was pending.
func (e *Engine) AcknowledgePending() (Operation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.pending) == 0 {
		return Operation{}, false
	}
	op := e.pending[0]
	e.pending = e.pending[1:]
	if len(e.pending) == 0 {
		e.pending = nil
	}
	return op, true
}

// ClearPending forgets every pending operation.
func (e *Engine) ClearPending() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = nil
}

// Pending returns a snapshot of the pending operations.
func (e *Engine) Pending() []Operation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Operation(nil), e.pending...)
}

// Undo pops the most recent inverse operation and moves it to the redo
// stack. Returns false when there is nothing to undo.
func (e *Engine) Undo() (Operation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.undo)
	if n == 0 {
		return Operation{}, false
	}
	op := e.undo[n-1]
	e.undo = e.undo[:n-1]
	e.redo = e.push(e.redo, op)
	return op, true
}

// Redo pops the most recently undone operation and moves it back to the
// undo stack. Returns false when there is nothing to redo.
//
// The returned operation is the same inverse that Undo returned; re-doing
// the original edit means applying Invert of it.
func (e *Engine) Redo() (Operation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.redo)
	if n == 0 {
		return Operation{}, false
	}
	op := e.redo[n-1]
	e.redo = e.redo[:n-1]
	e.undo = e.push(e.undo, op)
	return op, true
}

// CanUndo reports whether Undo would return an operation.
func (e *Engine) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.undo) > 0
}

// CanRedo reports whether Redo would return an operation.
func (e *Engine) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.redo) > 0
}

// History returns a snapshot of the applied operations in revision order.
func (e *Engine) History() []Operation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Operation(nil), e.history...)
}

// Revision returns the current revision.
func (e *Engine) Revision() int64 {
	return e.clock.Current()
}

// Transform is Transform exposed on the engine for callers holding one.
func (e *Engine) Transform(a, b Operation) (Operation, Operation) {
	return Transform(a, b)
}

// Compose is Compose exposed on the engine.
func (e *Engine) Compose(a, b Operation) Operation {
	return Compose(a, b)
}

// Invert is Invert exposed on the engine.
func (e *Engine) Invert(op Operation) Operation {
	return Invert(op)
}

// ApplyToText is ApplyToText exposed on the engine.
func (e *Engine) ApplyToText(text string, op Operation) string {
	return ApplyToText(text, op)
}

// push appends op to stack, dropping the oldest entry past the limit.
// Caller must hold e.mu.
func (e *Engine) push(stack []Operation, op Operation) []Operation {
	stack = append(stack, op)
	if e.undoLimit > 0 && len(stack) > e.undoLimit {
		copy(stack, stack[1:])
		stack = stack[:len(stack)-1]
	}
	return stack
}
