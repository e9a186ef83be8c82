package session

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/coedit/internal/conn"
	"github.com/roach88/coedit/internal/protocol"
	"github.com/roach88/coedit/internal/store"
)

// fakeConnection records sent messages and delivers inbound ones
// synchronously to registered handlers.
type fakeConnection struct {
	mu         sync.Mutex
	userID     string
	status     conn.Status
	connectErr error
	sent       []protocol.Message
	handlers   map[protocol.MessageType]map[conn.Subscription]conn.Handler
	nextSub    conn.Subscription
	disconnect int
}

func newFakeConnection(userID string) *fakeConnection {
	return &fakeConnection{
		userID:   userID,
		handlers: make(map[protocol.MessageType]map[conn.Subscription]conn.Handler),
	}
}

func (f *fakeConnection) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.status = conn.StatusAuthenticated
	return nil
}

func (f *fakeConnection) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = conn.StatusDisconnected
	f.disconnect++
}

func (f *fakeConnection) Send(msg protocol.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.UserID == "" {
		msg.UserID = f.userID
	}
	f.sent = append(f.sent, msg)
	return f.status == conn.StatusAuthenticated
}

func (f *fakeConnection) On(t protocol.MessageType, h conn.Handler) conn.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSub++
	if f.handlers[t] == nil {
		f.handlers[t] = make(map[conn.Subscription]conn.Handler)
	}
	f.handlers[t][f.nextSub] = h
	return f.nextSub
}

func (f *fakeConnection) Off(t protocol.MessageType, id conn.Subscription) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.handlers[t][id]; !ok {
		return false
	}
	delete(f.handlers[t], id)
	return true
}

func (f *fakeConnection) Status() conn.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeConnection) UserID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID
}

func (f *fakeConnection) deliver(msg protocol.Message) {
	f.mu.Lock()
	var hs []conn.Handler
	for _, h := range f.handlers[msg.Type] {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, h := range hs {
		h(msg)
	}
}

func (f *fakeConnection) handlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, hs := range f.handlers {
		n += len(hs)
	}
	return n
}

func (f *fakeConnection) sentOfType(t protocol.MessageType) []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.Message
	for _, m := range f.sent {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// renderLog records every Render call.
type renderLog struct {
	mu    sync.Mutex
	texts []string
	last  []Cursor
}

func (r *renderLog) Render(text string, cursors []Cursor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	r.last = cursors
}

func (r *renderLog) lastText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.texts) == 0 {
		return ""
	}
	return r.texts[len(r.texts)-1]
}

func (r *renderLog) cursors() []Cursor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// memJournal is an in-memory Journal.
type memJournal struct {
	mu       sync.Mutex
	ops      []store.OperationRecord
	comments []store.CommentRecord
}

func (j *memJournal) AppendOperation(_ context.Context, rec store.OperationRecord) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec.Seq = int64(len(j.ops) + 1)
	j.ops = append(j.ops, rec)
	return rec.Seq, nil
}

func (j *memJournal) AddComment(_ context.Context, rec store.CommentRecord) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range j.comments {
		if c.ID == rec.ID {
			return false, nil
		}
	}
	j.comments = append(j.comments, rec)
	return true, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
