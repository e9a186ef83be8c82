package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/coedit/internal/ot"
)

// Operations returns every journaled operation of a session ordered by seq.
//
// Returns an empty slice (not nil) if the session has no operations.
func (s *Store) Operations(ctx context.Context, sessionID string) ([]OperationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, session_id, revision, user_id, origin, operation, created_at
		FROM operations
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	records := []OperationRecord{}
	for rows.Next() {
		rec, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return records, nil
}

func scanOperation(rows *sql.Rows) (OperationRecord, error) {
	var (
		rec       OperationRecord
		origin    string
		opJSON    string
		createdAt int64
	)
	if err := rows.Scan(&rec.Seq, &rec.SessionID, &rec.Revision, &rec.UserID, &origin, &opJSON, &createdAt); err != nil {
		return OperationRecord{}, fmt.Errorf("scan operation: %w", err)
	}
	op, err := ot.Deserialize([]byte(opJSON))
	if err != nil {
		return OperationRecord{}, fmt.Errorf("decode operation seq=%d: %w", rec.Seq, err)
	}
	rec.Origin = Origin(origin)
	rec.Operation = op
	rec.CreatedAt = time.UnixMilli(createdAt)
	return rec, nil
}

// Comments returns the comments of a session ordered by line number, then
// insertion order.
//
// Returns an empty slice (not nil) if the session has no comments.
func (s *Store) Comments(ctx context.Context, sessionID string) ([]CommentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, session_id, user_id, line_number, content, created_at
		FROM comments
		WHERE session_id = ?
		ORDER BY line_number ASC, seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	records := []CommentRecord{}
	for rows.Next() {
		var (
			rec       CommentRecord
			createdAt int64
		)
		if err := rows.Scan(&rec.Seq, &rec.ID, &rec.SessionID, &rec.UserID, &rec.LineNumber, &rec.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return records, nil
}

// LastRevision returns the highest revision journaled for a session, or 0.
func (s *Store) LastRevision(ctx context.Context, sessionID string) (int64, error) {
	var rev sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(revision) FROM operations WHERE session_id = ?
	`, sessionID).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("query last revision: %w", err)
	}
	return rev.Int64, nil
}

// Sessions returns the ids of every session with journaled operations or
// comments, sorted.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id FROM operations
		UNION
		SELECT session_id FROM comments
		ORDER BY 1 ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return ids, nil
}
