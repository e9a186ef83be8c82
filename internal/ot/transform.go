package ot

// Transform derives the bottom two sides of the OT diamond: given a and b
// authored against the same text, it returns a' (a rebased past b) and b'
// (b rebased past a). For inserts at the same position a has priority.
func Transform(a, b Operation) (Operation, Operation) {
	switch {
	case a.Kind == KindInsert && b.Kind == KindInsert:
		if a.Position <= b.Position {
			return a, shift(b, a.Size())
		}
		return shift(a, b.Size()), b

	case a.Kind == KindInsert && b.Kind == KindDelete:
		return transformInsertDelete(a, b)

	case a.Kind == KindDelete && b.Kind == KindInsert:
		ins, del := transformInsertDelete(b, a)
		return del, ins

	case a.Kind == KindDelete && b.Kind == KindDelete:
		return transformDeleteDelete(a, b)
	}
	return a, b
}

// transformInsertDelete handles the mixed case with the insert first. An
// insert at the delete's start lands before the range in either argument
// order, so the typed text survives and the delete still removes what its
// author selected.
func transformInsertDelete(ins, del Operation) (Operation, Operation) {
	switch {
	case ins.Position <= del.Position:
		// Insert before the range. Delete moves right.
		return ins, shift(del, ins.Size())
	case ins.Position >= del.End():
		// Insert after the range. Insert moves left.
		return shift(ins, -del.Length), del
	default:
		// Insert inside the range. Both are kept as authored.
		return ins, del
	}
}

func transformDeleteDelete(a, b Operation) (Operation, Operation) {
	if a.End() <= b.Position {
		return a, shift(b, -a.Length)
	}
	if b.End() <= a.Position {
		return shift(a, -b.Length), b
	}
	// Ranges overlap: one delete spans the union, the other is emptied.
	pos := min(a.Position, b.Position)
	end := max(a.End(), b.End())
	union := Delete(pos, end-pos)
	union.Deleted = unionDeleted(a, b)
	return union, Delete(pos, 0)
}

// unionDeleted stitches the captured text of two overlapping deletes. It
// returns "" unless both deletes carry complete captures.
func unionDeleted(a, b Operation) string {
	if !hasCapture(a) || !hasCapture(b) {
		return ""
	}
	if b.Position < a.Position {
		a, b = b, a
	}
	if b.End() <= a.End() {
		return a.Deleted
	}
	tail := []rune(b.Deleted)[a.End()-b.Position:]
	return a.Deleted + string(tail)
}

func hasCapture(op Operation) bool {
	return op.Length > 0 && len([]rune(op.Deleted)) == op.Length
}

// shift returns a copy of op moved by delta characters.
func shift(op Operation, delta int) Operation {
	op.Position += delta
	return op
}

// Compose merges two adjacent operations of the same kind: an insert
// followed by an insert at its end, or two deletes at the same position.
// It returns a unchanged when the pair cannot be composed.
func Compose(a, b Operation) Operation {
	if c, ok := compose(a, b); ok {
		return c
	}
	return a
}

func compose(a, b Operation) (Operation, bool) {
	switch {
	case a.Kind == KindInsert && b.Kind == KindInsert && a.End() == b.Position:
		return Insert(a.Position, a.Content+b.Content), true
	case a.Kind == KindDelete && b.Kind == KindDelete && a.Position == b.Position:
		d := Delete(a.Position, a.Length+b.Length)
		if (hasCapture(a) || a.Length == 0) && (hasCapture(b) || b.Length == 0) {
			d.Deleted = a.Deleted + b.Deleted
		}
		return d, true
	}
	return Operation{}, false
}

// Compact folds consecutive composable operations together. The result
// applies to a text exactly like the input sequence does.
func Compact(ops []Operation) []Operation {
	out := make([]Operation, 0, len(ops))
	for _, op := range ops {
		if n := len(out); n > 0 {
			if c, ok := compose(out[n-1], op); ok {
				out[n-1] = c
				continue
			}
		}
		out = append(out, op)
	}
	return out
}

// Invert returns the operation that undoes op.
//
// An insert inverts to a delete of its content. A delete inverts to an
// insert of its captured text; when the delete was not captured with
// CaptureDelete the inverse inserts the empty string and undo cannot
// restore the removed characters.
func Invert(op Operation) Operation {
	switch op.Kind {
	case KindInsert:
		d := Delete(op.Position, op.Size())
		d.Deleted = op.Content
		return d
	case KindDelete:
		return Insert(op.Position, op.Deleted)
	}
	return op
}

// CaptureDelete records the characters a delete would remove from text so
// that its inverse restores them. Other kinds are returned unchanged.
func CaptureDelete(text string, op Operation) Operation {
	if op.Kind != KindDelete {
		return op
	}
	r := []rune(text)
	start, end := deleteBounds(len(r), op)
	op.Deleted = string(r[start:end])
	return op
}

// ApplyToText applies op to text. Positions and lengths outside the text
// are clamped because operations may arrive after the text changed length.
func ApplyToText(text string, op Operation) string {
	if op.IsNoop() {
		return text
	}
	r := []rune(text)
	switch op.Kind {
	case KindInsert:
		pos := clamp(op.Position, 0, len(r))
		return string(r[:pos]) + op.Content + string(r[pos:])
	case KindDelete:
		start, end := deleteBounds(len(r), op)
		return string(r[:start]) + string(r[end:])
	}
	return text
}

// ApplyAll applies ops to text in order.
func ApplyAll(text string, ops []Operation) string {
	for _, op := range ops {
		text = ApplyToText(text, op)
	}
	return text
}

// deleteBounds clamps a delete to a text of n characters. The length is
// bounded before it is added so that huge lengths cannot overflow.
func deleteBounds(n int, op Operation) (int, int) {
	start := clamp(op.Position, 0, n)
	return start, start + clamp(op.Length, 0, n-start)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
