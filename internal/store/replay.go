package store

import (
	"context"
	"fmt"

	"github.com/roach88/coedit/internal/ot"
)

// SessionState is a session rebuilt from the journal.
type SessionState struct {
	SessionID    string
	Text         string
	History      []ot.Operation // local and remote operations, for ot.WithHistory
	Applied      int            // every journaled operation, undo and redo included
	LastRevision int64
	Comments     []CommentRecord
}

// Replay rebuilds a session by applying its journaled operations to the
// empty text in seq order.
func (s *Store) Replay(ctx context.Context, sessionID string) (SessionState, error) {
	state := SessionState{
		SessionID: sessionID,
		History:   []ot.Operation{},
	}

	records, err := s.Operations(ctx, sessionID)
	if err != nil {
		return state, fmt.Errorf("replay %s: %w", sessionID, err)
	}

	for _, rec := range records {
		state.Text = ot.ApplyToText(state.Text, rec.Operation)
		state.Applied++
		if rec.Origin.InHistory() {
			state.History = append(state.History, rec.Operation)
		}
		if rec.Revision > state.LastRevision {
			state.LastRevision = rec.Revision
		}
	}

	comments, err := s.Comments(ctx, sessionID)
	if err != nil {
		return state, fmt.Errorf("replay %s: %w", sessionID, err)
	}
	state.Comments = comments

	return state, nil
}
