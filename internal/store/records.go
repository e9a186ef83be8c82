package store

import (
	"time"

	"github.com/roach88/coedit/internal/ot"
)

// Origin records why an operation was applied.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
	OriginUndo   Origin = "undo"
	OriginRedo   Origin = "redo"
)

// Valid reports whether o is a known origin.
func (o Origin) Valid() bool {
	switch o {
	case OriginLocal, OriginRemote, OriginUndo, OriginRedo:
		return true
	}
	return false
}

// InHistory reports whether operations of this origin are part of the
// engine's history. Undo and redo operations change the text but are not
// logged as history entries.
func (o Origin) InHistory() bool {
	return o == OriginLocal || o == OriginRemote
}

// OperationRecord is one journaled operation.
type OperationRecord struct {
	Seq       int64 // assigned by AppendOperation
	SessionID string
	Revision  int64
	UserID    string
	Origin    Origin
	Operation ot.Operation
	CreatedAt time.Time
}

// CommentRecord is one journaled comment.
type CommentRecord struct {
	Seq        int64 // assigned by AddComment
	ID         string
	SessionID  string
	UserID     string
	LineNumber int
	Content    string
	CreatedAt  time.Time
}
