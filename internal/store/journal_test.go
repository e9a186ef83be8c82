package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/coedit/internal/ot"
)

func TestAppendOperation_AssignsSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq1, err := s.AppendOperation(ctx, opRecord("doc", 1, OriginLocal, ot.Insert(0, "hi")))
	require.NoError(t, err)
	seq2, err := s.AppendOperation(ctx, opRecord("doc", 2, OriginRemote, ot.Delete(0, 1)))
	require.NoError(t, err)
	assert.Greater(t, seq2, seq1)
}

func TestAppendOperation_RejectsInvalidOrigin(t *testing.T) {
	s := createTestStore(t)
	_, err := s.AppendOperation(context.Background(), opRecord("doc", 1, Origin("psychic"), ot.Insert(0, "x")))
	assert.Error(t, err)
}

func TestOperations_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	del := ot.CaptureDelete("héllo", ot.Delete(1, 2))
	want := []OperationRecord{
		opRecord("doc", 1, OriginLocal, ot.Insert(0, "héllo")),
		opRecord("doc", 2, OriginLocal, del),
		opRecord("doc", 2, OriginUndo, ot.Invert(del)),
	}
	for _, rec := range want {
		_, err := s.AppendOperation(ctx, rec)
		require.NoError(t, err)
	}
	_, err := s.AppendOperation(ctx, opRecord("other", 1, OriginLocal, ot.Insert(0, "zzz")))
	require.NoError(t, err)

	got, err := s.Operations(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range want {
		assert.Equal(t, want[i].Operation, got[i].Operation)
		assert.Equal(t, want[i].Origin, got[i].Origin)
		assert.Equal(t, want[i].Revision, got[i].Revision)
		assert.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt))
	}
	assert.Equal(t, "él", got[1].Operation.Deleted, "captured text survives the journal")
}

func TestOperations_EmptySession(t *testing.T) {
	s := createTestStore(t)
	got, err := s.Operations(context.Background(), "nothing")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAddComment_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	inserted, err := s.AddComment(ctx, commentRecord("c1", "doc", 3, "first"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.AddComment(ctx, commentRecord("c1", "doc", 3, "echo"))
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate id ignored")

	_, err = s.AddComment(ctx, commentRecord("", "doc", 3, "no id"))
	assert.Error(t, err)
}

func TestComments_OrderedByLineThenInsertion(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, rec := range []CommentRecord{
		commentRecord("c1", "doc", 5, "five-a"),
		commentRecord("c2", "doc", 1, "one"),
		commentRecord("c3", "doc", 5, "five-b"),
		commentRecord("c4", "other", 1, "elsewhere"),
	} {
		_, err := s.AddComment(ctx, rec)
		require.NoError(t, err)
	}

	got, err := s.Comments(ctx, "doc")
	require.NoError(t, err)
	var contents []string
	for _, c := range got {
		contents = append(contents, c.Content)
	}
	assert.Equal(t, []string{"one", "five-a", "five-b"}, contents)
}

func TestLastRevision(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rev, err := s.LastRevision(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rev)

	for _, r := range []int64{1, 4, 2} {
		_, err := s.AppendOperation(ctx, opRecord("doc", r, OriginRemote, ot.Insert(0, "x")))
		require.NoError(t, err)
	}
	rev, err = s.LastRevision(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, int64(4), rev)
}

func TestSessions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.AppendOperation(ctx, opRecord("beta", 1, OriginLocal, ot.Insert(0, "x")))
	require.NoError(t, err)
	_, err = s.AppendOperation(ctx, opRecord("alpha", 1, OriginLocal, ot.Insert(0, "x")))
	require.NoError(t, err)
	_, err = s.AddComment(ctx, commentRecord("c1", "gamma", 0, "hi"))
	require.NoError(t, err)
	_, err = s.AddComment(ctx, commentRecord("c2", "alpha", 0, "hi"))
	require.NoError(t, err)

	ids, err := s.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, ids)
}

func TestReplay(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	text := ""
	var records []OperationRecord
	add := func(rev int64, origin Origin, op ot.Operation) {
		op = ot.CaptureDelete(text, op)
		text = ot.ApplyToText(text, op)
		records = append(records, opRecord("doc", rev, origin, op))
	}
	add(1, OriginLocal, ot.Insert(0, "hello"))
	add(2, OriginLocal, ot.Insert(5, " world"))
	add(3, OriginRemote, ot.Delete(0, 6))
	add(3, OriginUndo, ot.Invert(records[2].Operation))

	for _, rec := range records {
		_, err := s.AppendOperation(ctx, rec)
		require.NoError(t, err)
	}
	_, err := s.AddComment(ctx, commentRecord("c1", "doc", 0, "greeting"))
	require.NoError(t, err)

	state, err := s.Replay(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, "hello world", state.Text)
	assert.Equal(t, text, state.Text)
	assert.Equal(t, 4, state.Applied)
	assert.Len(t, state.History, 3, "undo is not a history entry")
	assert.Equal(t, int64(3), state.LastRevision)
	require.Len(t, state.Comments, 1)
	assert.Equal(t, "greeting", state.Comments[0].Content)

	e := ot.NewEngine(ot.WithHistory(state.History))
	assert.Equal(t, int64(3), e.Revision())
}

func TestReplay_EmptySession(t *testing.T) {
	s := createTestStore(t)
	state, err := s.Replay(context.Background(), "empty")
	require.NoError(t, err)
	assert.Equal(t, "", state.Text)
	assert.Empty(t, state.History)
	assert.Empty(t, state.Comments)
}
