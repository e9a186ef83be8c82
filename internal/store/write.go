package store

import (
	"context"
	"fmt"

	"github.com/roach88/coedit/internal/ot"
)

// AppendOperation journals rec and returns its seq.
// The operation is stored in its JSON wire form.
func (s *Store) AppendOperation(ctx context.Context, rec OperationRecord) (int64, error) {
	if !rec.Origin.Valid() {
		return 0, fmt.Errorf("append operation: invalid origin %q", rec.Origin)
	}
	opJSON, err := ot.Serialize(rec.Operation)
	if err != nil {
		return 0, fmt.Errorf("append operation: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO operations
		(session_id, revision, user_id, origin, operation, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		rec.SessionID,
		rec.Revision,
		rec.UserID,
		string(rec.Origin),
		string(opJSON),
		rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("append operation: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append operation: %w", err)
	}
	return seq, nil
}

// AddComment journals rec. Uses ON CONFLICT(id) DO NOTHING for idempotency:
// a comment echoed back by the server is not stored twice. Reports whether
// a row was inserted.
func (s *Store) AddComment(ctx context.Context, rec CommentRecord) (bool, error) {
	if rec.ID == "" {
		return false, fmt.Errorf("add comment: empty id")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO comments
		(id, session_id, user_id, line_number, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.SessionID,
		rec.UserID,
		rec.LineNumber,
		rec.Content,
		rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("add comment: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add comment: %w", err)
	}
	return n > 0, nil
}
