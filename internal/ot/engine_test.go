package ot

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_ApplyLocal(t *testing.T) {
	e := NewEngine()

	res := e.ApplyLocal(Insert(0, "hi"))
	assert.Equal(t, int64(1), res.Revision)
	assert.Equal(t, Insert(0, "hi"), res.Operation)
	assert.True(t, e.CanUndo())
	assert.False(t, e.CanRedo())

	res = e.ApplyLocal(Delete(0, 1))
	assert.Equal(t, int64(2), res.Revision)
	assert.Equal(t, []Operation{Insert(0, "hi"), Delete(0, 1)}, e.History())
}

func TestEngine_ApplyRemote_TransformsAgainstPending(t *testing.T) {
	e := NewEngine()

	local := Insert(0, "abc")
	e.ApplyLocal(local)
	e.AddPending(local)

	// Remote author did not see our insert at 0.
	got := e.ApplyRemote(Insert(2, "X"), 0)
	assert.Equal(t, Insert(5, "X"), got)

	assert.Equal(t, []Operation{local}, e.Pending(), "pending must not be mutated")
	assert.Equal(t, int64(2), e.Revision())
	assert.Equal(t, Insert(5, "X"), e.History()[1])
}

func TestEngine_ApplyRemote_MultiplePending(t *testing.T) {
	e := NewEngine()
	base := "0123456789"

	p1 := Insert(1, "AA")
	p2 := Delete(6, 2)
	text := ApplyToText(ApplyToText(base, p1), p2)
	e.AddPending(p1)
	e.AddPending(p2)

	// Remote insert authored against base at position 9.
	got := e.ApplyRemote(Insert(9, "R"), 7)
	assert.Equal(t, Insert(9, "R"), got)
	assert.Equal(t, "0AA123678R9", ApplyToText(text, got))
}

func TestEngine_ApplyRemote_NoPending(t *testing.T) {
	e := NewEngine()
	got := e.ApplyRemote(Delete(2, 1), 4)
	assert.Equal(t, Delete(2, 1), got)
	assert.False(t, e.CanUndo(), "remote operations are not undoable locally")
}

func TestEngine_ApplyRemote_DeleteAtPendingInsert(t *testing.T) {
	e := NewEngine()
	base := "abcd"

	local := Insert(1, "X")
	e.ApplyLocal(local)
	e.AddPending(local)
	text := ApplyToText(base, local)

	// Remote author removed "bc" without seeing our X.
	remote := Delete(1, 2)
	got := e.ApplyRemote(remote, 0)
	assert.Equal(t, Delete(2, 2), got)
	assert.Equal(t, "aXd", ApplyToText(text, got))

	// The server applies our insert after the remote delete.
	_, serverLocal := Transform(remote, local)
	assert.Equal(t, "aXd", ApplyToText(ApplyToText(base, remote), serverLocal))
}

func TestEngine_RevisionMonotonic(t *testing.T) {
	e := NewEngine()
	const n = 25
	last := int64(0)
	for i := 0; i < n; i++ {
		if i%3 == 0 {
			e.ApplyRemote(Insert(0, "r"), int64(i))
		} else {
			res := e.ApplyLocal(Insert(0, "l"))
			assert.Greater(t, res.Revision, last)
			last = res.Revision
		}
	}
	assert.Equal(t, int64(n), e.Revision())
	assert.Len(t, e.History(), n)
}

func TestEngine_UndoRedoDiscipline(t *testing.T) {
	e := NewEngine()

	e.ApplyLocal(Insert(0, "a"))
	e.ApplyLocal(Insert(1, "b"))

	op, ok := e.Undo()
	require.True(t, ok)
	assert.Equal(t, KindDelete, op.Kind)
	assert.Equal(t, 1, op.Position)
	assert.True(t, e.CanRedo())

	e.ApplyLocal(Insert(1, "c"))
	assert.False(t, e.CanRedo(), "new local edit clears redo")
}

func TestEngine_UndoRedoMirror(t *testing.T) {
	e := NewEngine()
	e.ApplyLocal(Insert(0, "xyz"))

	undone, ok := e.Undo()
	require.True(t, ok)
	assert.False(t, e.CanUndo())

	redone, ok := e.Redo()
	require.True(t, ok)
	assert.Equal(t, undone, redone, "redo returns the same stored operation")
	assert.True(t, e.CanUndo())
	assert.False(t, e.CanRedo())
}

func TestEngine_UndoRedoEmpty(t *testing.T) {
	e := NewEngine()

	_, ok := e.Undo()
	assert.False(t, ok)
	_, ok = e.Redo()
	assert.False(t, ok)
}

func TestEngine_UndoRestoresText(t *testing.T) {
	e := NewEngine()
	text := "hello"

	op := Insert(5, " world")
	e.ApplyLocal(op)
	text = ApplyToText(text, op)

	del := CaptureDelete(text, Delete(0, 6))
	e.ApplyLocal(del)
	text = ApplyToText(text, del)
	assert.Equal(t, "world", text)

	undo, _ := e.Undo()
	text = ApplyToText(text, undo)
	assert.Equal(t, "hello world", text)

	undo, _ = e.Undo()
	text = ApplyToText(text, undo)
	assert.Equal(t, "hello", text)

	redo, _ := e.Redo()
	text = ApplyToText(text, Invert(redo))
	assert.Equal(t, "hello world", text)
}

func TestEngine_UndoLimit(t *testing.T) {
	e := NewEngine(WithUndoLimit(2))
	e.ApplyLocal(Insert(0, "a"))
	e.ApplyLocal(Insert(1, "b"))
	e.ApplyLocal(Insert(2, "c"))

	first, ok := e.Undo()
	require.True(t, ok)
	assert.Equal(t, 2, first.Position)

	second, ok := e.Undo()
	require.True(t, ok)
	assert.Equal(t, 1, second.Position)

	_, ok = e.Undo()
	assert.False(t, ok, "oldest entry dropped past the limit")
}

func TestEngine_HistoryIsSnapshot(t *testing.T) {
	e := NewEngine()
	e.ApplyLocal(Insert(0, "a"))

	snap := e.History()
	snap[0] = Delete(0, 99)
	e.ApplyLocal(Insert(1, "b"))

	assert.Len(t, snap, 1, "snapshot must not observe later appends")
	assert.Equal(t, Insert(0, "a"), e.History()[0], "snapshot must not alias engine state")
}

func TestEngine_AcknowledgePending(t *testing.T) {
	e := NewEngine()
	e.AddPending(Insert(0, "a"))
	e.AddPending(Insert(1, "b"))

	op, ok := e.AcknowledgePending()
	require.True(t, ok)
	assert.Equal(t, Insert(0, "a"), op)
	assert.Equal(t, []Operation{Insert(1, "b")}, e.Pending())

	e.ClearPending()
	_, ok = e.AcknowledgePending()
	assert.False(t, ok)
	assert.Empty(t, e.Pending())
}

func TestEngine_WithHistory(t *testing.T) {
	ops := []Operation{Insert(0, "abc"), Delete(1, 1)}
	e := NewEngine(WithHistory(ops))

	assert.Equal(t, int64(2), e.Revision())
	assert.Equal(t, ops, e.History())
	assert.False(t, e.CanUndo(), "restored history is not undoable")

	res := e.ApplyLocal(Insert(2, "z"))
	assert.Equal(t, int64(3), res.Revision)
}

func TestEngine_ConcurrentUse(t *testing.T) {
	e := NewEngine()
	const goroutines = 20
	const perGoroutine = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				if i%2 == 0 {
					e.ApplyLocal(Insert(0, "x"))
				} else {
					e.ApplyRemote(Insert(0, "y"), 0)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(goroutines*perGoroutine), e.Revision())
	assert.Len(t, e.History(), goroutines*perGoroutine)
}
