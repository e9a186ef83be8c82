package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/coedit/internal/ot"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func opRecord(session string, rev int64, origin Origin, op ot.Operation) OperationRecord {
	return OperationRecord{
		SessionID: session,
		Revision:  rev,
		UserID:    "alice",
		Origin:    origin,
		Operation: op,
		CreatedAt: testTime,
	}
}

func commentRecord(id, session string, line int, content string) CommentRecord {
	return CommentRecord{
		ID:         id,
		SessionID:  session,
		UserID:     "alice",
		LineNumber: line,
		Content:    content,
		CreatedAt:  testTime,
	}
}
