// Package session binds one document session to a connection and an OT
// engine.
//
// The Coordinator owns the local copy of the text. Local edits run through
// the engine, are kept pending until the server echoes them, and go out as
// edit messages. Remote edits are transformed against the pending ones
// before they touch the text. Presence records and line comments received
// from other participants are kept alongside, and every change to the text
// or the cursors is pushed to the Renderer.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/coedit/internal/clock"
	"github.com/roach88/coedit/internal/conn"
	"github.com/roach88/coedit/internal/ot"
	"github.com/roach88/coedit/internal/presence"
	"github.com/roach88/coedit/internal/protocol"
	"github.com/roach88/coedit/internal/store"
)

// ErrNotJoined is returned by operations that need an active session.
var ErrNotJoined = errors.New("session not joined")

// ErrEmptyComment is returned by AddComment for blank content.
var ErrEmptyComment = errors.New("comment content is empty")

// Config identifies the local participant and the session.
type Config struct {
	SessionID string
	UserID    string
	UserName  string
	UserColor string // derived from UserID when empty

	// InitialText seeds the document, e.g. from store.Replay.
	InitialText string

	// PresenceInterval throttles cursor updates. Zero uses
	// presence.DefaultInterval.
	PresenceInterval time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRenderer sets the rendering collaborator.
func WithRenderer(r Renderer) Option {
	return func(c *Coordinator) {
		c.renderer = r
	}
}

// WithJournal persists operations and comments to j.
func WithJournal(j Journal) Option {
	return func(c *Coordinator) {
		c.journal = j
	}
}

// WithClock replaces the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clk
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.log = l
	}
}

// WithIDGenerator sets the generator for comment ids.
func WithIDGenerator(g protocol.IDGenerator) Option {
	return func(c *Coordinator) {
		c.ids = g
	}
}

// Coordinator maps one (session, user) onto a Connection and an Engine.
//
// Thread-safety: all methods are safe for concurrent use. Inbound
// handlers run on the connection's read goroutine. The Renderer is called
// without the coordinator's lock held.
type Coordinator struct {
	conn     Connection
	engine   *ot.Engine
	cfg      Config
	renderer Renderer
	journal  Journal
	clock    clock.Clock
	log      *slog.Logger
	ids      protocol.IDGenerator

	mu             sync.Mutex
	joined         bool
	subs           map[protocol.MessageType]conn.Subscription
	throttler      *presence.Throttler
	text           string
	participants   map[string]*Participant
	comments       map[int][]Comment
	commentIDs     map[string]struct{}
	serverRevision int64
	info           Info
}

// New creates a Coordinator. The engine should already hold any history
// matching cfg.InitialText.
func New(c Connection, engine *ot.Engine, cfg Config, opts ...Option) *Coordinator {
	if cfg.UserColor == "" {
		cfg.UserColor = ColorFor(cfg.UserID)
	}
	co := &Coordinator{
		conn:         c,
		engine:       engine,
		cfg:          cfg,
		renderer:     RendererFunc(func(string, []Cursor) {}),
		clock:        clock.Real(),
		log:          slog.Default(),
		ids:          protocol.UUIDv7Generator{},
		subs:         make(map[protocol.MessageType]conn.Subscription),
		text:         cfg.InitialText,
		participants: make(map[string]*Participant),
		comments:     make(map[int][]Comment),
		commentIDs:   make(map[string]struct{}),
		info:         Info{SessionID: cfg.SessionID},
	}
	for _, opt := range opts {
		opt(co)
	}
	return co
}

// ColorFor picks a stable palette color for a user id.
func ColorFor(userID string) string {
	return Palette[xxhash.Sum64String(userID)%uint64(len(Palette))]
}

// Join registers the inbound handlers, connects, and announces the local
// participant. A connection error is returned, but the session stays
// joined: the join message is queued and goes out once a reconnect
// authenticates.
func (c *Coordinator) Join(ctx context.Context) error {
	c.mu.Lock()
	if c.joined {
		c.mu.Unlock()
		return nil
	}
	c.joined = true
	c.throttler = presence.NewThrottler(c.cfg.PresenceInterval, c.sendPresence, presence.WithClock(c.clock))
	handlers := map[protocol.MessageType]conn.Handler{
		protocol.TypeJoin:     c.handleJoin,
		protocol.TypeLeave:    c.handleLeave,
		protocol.TypeEdit:     c.handleEdit,
		protocol.TypeAck:      c.handleAck,
		protocol.TypePresence: c.handlePresence,
		protocol.TypeComment:  c.handleComment,
		protocol.TypeSync:     c.handleSync,
		protocol.TypeError:    c.handleError,
	}
	for t, h := range handlers {
		c.subs[t] = c.conn.On(t, h)
	}
	c.mu.Unlock()

	connErr := c.conn.Connect(ctx)
	if errors.Is(connErr, conn.ErrAlreadyConnected) {
		connErr = nil
	}

	c.send(protocol.MustNew(protocol.TypeJoin, protocol.JoinData{
		UserName:  c.cfg.UserName,
		UserColor: c.cfg.UserColor,
	}))
	c.log.Info("joined session", "session", c.cfg.SessionID, "user", c.cfg.UserID)
	c.render()

	if connErr != nil {
		return fmt.Errorf("join %s: %w", c.cfg.SessionID, connErr)
	}
	return nil
}

// Leave announces departure, disconnects, and forgets the participants.
// The text and the engine are kept.
func (c *Coordinator) Leave() {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return
	}
	c.joined = false
	for t, id := range c.subs {
		c.conn.Off(t, id)
	}
	c.subs = make(map[protocol.MessageType]conn.Subscription)
	c.throttler.Stop()
	c.participants = make(map[string]*Participant)
	c.mu.Unlock()

	if c.conn.Status() == conn.StatusAuthenticated {
		c.send(protocol.Message{Type: protocol.TypeLeave, Data: []byte("{}")})
	}
	c.conn.Disconnect()
	c.log.Info("left session", "session", c.cfg.SessionID)
	c.render()
}

// Edit applies a local operation: to the text, to the engine's history and
// pending list, to the wire, and to the journal. Deletes are captured
// against the current text so that undo restores them.
func (c *Coordinator) Edit(ctx context.Context, op ot.Operation) (ot.Applied, error) {
	if err := op.Validate(); err != nil {
		return ot.Applied{}, fmt.Errorf("edit: %w", err)
	}

	c.mu.Lock()
	if op.Kind == ot.KindDelete && op.Deleted == "" {
		op = ot.CaptureDelete(c.text, op)
	}
	applied := c.engine.ApplyLocal(op)
	c.engine.AddPending(op)
	c.text = ot.ApplyToText(c.text, op)
	c.mu.Unlock()

	c.sendEdit(op, applied.Revision)
	c.record(ctx, store.OriginLocal, op, applied.Revision)
	c.render()
	return applied, nil
}

// Insert is Edit(ot.Insert(pos, s)).
func (c *Coordinator) Insert(ctx context.Context, pos int, s string) (ot.Applied, error) {
	return c.Edit(ctx, ot.Insert(pos, s))
}

// Delete is Edit(ot.Delete(pos, n)).
func (c *Coordinator) Delete(ctx context.Context, pos, n int) (ot.Applied, error) {
	return c.Edit(ctx, ot.Delete(pos, n))
}

// Undo reverts the most recent local edit. The inverse operation is sent
// like any local edit but is not appended to the engine's history.
// Returns false when there is nothing to undo.
func (c *Coordinator) Undo(ctx context.Context) (ot.Operation, bool) {
	op, ok := c.engine.Undo()
	if !ok {
		return ot.Operation{}, false
	}
	c.applyUndoRedo(ctx, store.OriginUndo, op)
	return op, true
}

// Redo reapplies the most recently undone edit.
func (c *Coordinator) Redo(ctx context.Context) (ot.Operation, bool) {
	stored, ok := c.engine.Redo()
	if !ok {
		return ot.Operation{}, false
	}
	op := ot.Invert(stored)
	c.applyUndoRedo(ctx, store.OriginRedo, op)
	return op, true
}

func (c *Coordinator) applyUndoRedo(ctx context.Context, origin store.Origin, op ot.Operation) {
	c.mu.Lock()
	c.engine.AddPending(op)
	c.text = ot.ApplyToText(c.text, op)
	rev := c.engine.Revision()
	c.mu.Unlock()

	c.sendEdit(op, rev)
	c.record(ctx, origin, op, rev)
	c.render()
}

// UpdatePresence reports the local cursor. Updates are throttled.
func (c *Coordinator) UpdatePresence(cursor, selectionStart, selectionEnd int) error {
	c.mu.Lock()
	th := c.throttler
	joined := c.joined
	c.mu.Unlock()
	if !joined {
		return ErrNotJoined
	}
	th.Track(cursor, selectionStart, selectionEnd)
	return nil
}

func (c *Coordinator) sendPresence(cur presence.Cursor) {
	online := true
	c.send(protocol.MustNew(protocol.TypePresence, protocol.PresenceData{
		UserName:       c.cfg.UserName,
		Color:          c.cfg.UserColor,
		CursorPosition: &cur.Position,
		SelectionStart: &cur.SelectionStart,
		SelectionEnd:   &cur.SelectionEnd,
		IsOnline:       &online,
	}))
}

// AddComment attaches a comment to a line, records it locally, and sends
// it. The echo from the server is recognized by id and ignored.
func (c *Coordinator) AddComment(ctx context.Context, content string, line int) (Comment, error) {
	content = norm.NFC.String(strings.TrimSpace(content))
	if content == "" {
		return Comment{}, ErrEmptyComment
	}
	if line < 0 {
		return Comment{}, fmt.Errorf("add comment: negative line %d", line)
	}

	cm := Comment{
		ID:         c.ids.Generate(),
		UserID:     c.userID(),
		LineNumber: line,
		Content:    content,
		CreatedAt:  c.clock.Now(),
	}
	c.mu.Lock()
	c.addCommentLocked(cm)
	c.mu.Unlock()

	c.send(protocol.MustNew(protocol.TypeComment, protocol.CommentData{
		Content:    cm.Content,
		LineNumber: cm.LineNumber,
		CommentID:  cm.ID,
	}))
	c.recordComment(ctx, cm)
	return cm, nil
}

// addCommentLocked stores cm unless its id is already known.
func (c *Coordinator) addCommentLocked(cm Comment) bool {
	if _, ok := c.commentIDs[cm.ID]; ok {
		return false
	}
	c.commentIDs[cm.ID] = struct{}{}
	c.comments[cm.LineNumber] = append(c.comments[cm.LineNumber], cm)
	return true
}

// Text returns the current document text.
func (c *Coordinator) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// Revision returns the engine revision.
func (c *Coordinator) Revision() int64 {
	return c.engine.Revision()
}

// ServerRevision returns the highest revision the server has reported.
func (c *Coordinator) ServerRevision() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverRevision
}

// CanUndo reports whether Undo has an edit to revert.
func (c *Coordinator) CanUndo() bool {
	return c.engine.CanUndo()
}

// CanRedo reports whether Redo has an edit to reapply.
func (c *Coordinator) CanRedo() bool {
	return c.engine.CanRedo()
}

// Joined reports whether Join was called without a later Leave.
func (c *Coordinator) Joined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

// Info returns session metadata.
func (c *Coordinator) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// Participants returns the remote participants sorted by user id.
func (c *Coordinator) Participants() []Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.participantsLocked()
}

func (c *Coordinator) participantsLocked() []Participant {
	out := make([]Participant, 0, len(c.participants))
	for _, p := range c.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Comments returns the comments on a line in insertion order.
func (c *Coordinator) Comments(line int) []Comment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Comment(nil), c.comments[line]...)
}

// CommentLines returns the lines that carry comments, ascending.
func (c *Coordinator) CommentLines() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := make([]int, 0, len(c.comments))
	for line := range c.comments {
		lines = append(lines, line)
	}
	sort.Ints(lines)
	return lines
}

func (c *Coordinator) userID() string {
	if id := c.conn.UserID(); id != "" {
		return id
	}
	return c.cfg.UserID
}

func (c *Coordinator) isSelf(userID string) bool {
	return userID != "" && userID == c.userID()
}

func (c *Coordinator) send(msg protocol.Message) {
	if msg.SessionID == "" {
		msg.SessionID = c.cfg.SessionID
	}
	if !c.conn.Send(msg) {
		c.log.Debug("message queued", "type", msg.Type)
	}
}

func (c *Coordinator) sendEdit(op ot.Operation, rev int64) {
	msg := protocol.MustNew(protocol.TypeEdit, protocol.EditData{Operation: op})
	c.send(msg.WithRevision(rev))
}

func (c *Coordinator) record(ctx context.Context, origin store.Origin, op ot.Operation, rev int64) {
	c.recordAs(ctx, origin, op, rev, c.userID())
}

func (c *Coordinator) recordAs(ctx context.Context, origin store.Origin, op ot.Operation, rev int64, userID string) {
	if c.journal == nil {
		return
	}
	_, err := c.journal.AppendOperation(ctx, store.OperationRecord{
		SessionID: c.cfg.SessionID,
		Revision:  rev,
		UserID:    userID,
		Origin:    origin,
		Operation: op,
		CreatedAt: c.clock.Now(),
	})
	if err != nil {
		c.log.Warn("journal operation failed", "origin", origin, "error", err)
	}
}

func (c *Coordinator) recordComment(ctx context.Context, cm Comment) {
	if c.journal == nil {
		return
	}
	_, err := c.journal.AddComment(ctx, store.CommentRecord{
		ID:         cm.ID,
		SessionID:  c.cfg.SessionID,
		UserID:     cm.UserID,
		LineNumber: cm.LineNumber,
		Content:    cm.Content,
		CreatedAt:  cm.CreatedAt,
	})
	if err != nil {
		c.log.Warn("journal comment failed", "id", cm.ID, "error", err)
	}
}

// render pushes the current text and cursors to the renderer.
func (c *Coordinator) render() {
	c.mu.Lock()
	text := c.text
	participants := c.participantsLocked()
	c.mu.Unlock()

	cursors := make([]Cursor, 0, len(participants))
	for _, p := range participants {
		if !p.IsOnline {
			continue
		}
		cursors = append(cursors, Cursor{
			UserID:         p.UserID,
			UserName:       p.UserName,
			Color:          p.Color,
			Position:       p.CursorPosition,
			SelectionStart: p.SelectionStart,
			SelectionEnd:   p.SelectionEnd,
		})
	}
	c.renderer.Render(text, cursors)
}
