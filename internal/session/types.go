package session

import (
	"context"
	"time"

	"github.com/roach88/coedit/internal/conn"
	"github.com/roach88/coedit/internal/protocol"
	"github.com/roach88/coedit/internal/store"
)

// Connection is the message transport a Coordinator drives.
// Implemented by *conn.Manager.
type Connection interface {
	Connect(ctx context.Context) error
	Disconnect()
	Send(msg protocol.Message) bool
	On(t protocol.MessageType, h conn.Handler) conn.Subscription
	Off(t protocol.MessageType, id conn.Subscription) bool
	Status() conn.Status
	UserID() string
}

// Renderer paints the document and remote cursors.
type Renderer interface {
	Render(text string, cursors []Cursor)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(text string, cursors []Cursor)

func (f RendererFunc) Render(text string, cursors []Cursor) {
	f(text, cursors)
}

// Journal persists applied operations and comments.
// Implemented by *store.Store.
type Journal interface {
	AppendOperation(ctx context.Context, rec store.OperationRecord) (int64, error)
	AddComment(ctx context.Context, rec store.CommentRecord) (bool, error)
}

// Participant is the presence record of one remote user.
type Participant struct {
	UserID         string
	UserName       string
	Color          string
	CursorPosition int
	SelectionStart int
	SelectionEnd   int
	IsOnline       bool
	LastActivity   time.Time
}

// Cursor is a participant's caret as handed to the Renderer.
type Cursor struct {
	UserID         string
	UserName       string
	Color          string
	Position       int
	SelectionStart int
	SelectionEnd   int
}

// Comment is a note attached to a line.
type Comment struct {
	ID         string
	UserID     string
	LineNumber int
	Content    string
	CreatedAt  time.Time
}

// Info describes the session as last reported by the server.
type Info struct {
	SessionID       string
	Title           string
	DocumentVersion int64
	LastModified    time.Time
}

const (
	defaultUserName = "Unknown"
	defaultColor    = "#000000"
)

// Palette is the set of colors assigned to users that do not pick one.
var Palette = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#FFA07A",
	"#98D8C8", "#F7DC6F", "#BB8FCE", "#85C1E2",
}
