package conn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/roach88/coedit/internal/clock"
	"github.com/roach88/coedit/internal/protocol"
)

// Status is the connection state.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ErrAlreadyConnected is returned by Connect when a transport is open or
// being opened.
var ErrAlreadyConnected = errors.New("connection already open")

// errSuperseded is returned by a dial that was overtaken by Disconnect.
var errSuperseded = errors.New("connection attempt superseded")

// Handler receives inbound messages of one type.
type Handler func(protocol.Message)

// Subscription identifies a registered handler for Off.
type Subscription uint64

type subscription struct {
	id Subscription
	fn Handler
}

// Stats is a snapshot of connection counters.
type Stats struct {
	MessagesSent       int64
	MessagesReceived   int64
	ReconnectAttempts  int
	LastMessageTime    time.Time
	ConnectionDuration time.Duration
	AverageLatency     time.Duration
	QueueLength        int
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) {
		m.dialer = d
	}
}

// WithClock replaces the wall clock used for timers, timestamps, and
// latency.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// WithIDGenerator sets the generator for message ids.
func WithIDGenerator(g protocol.IDGenerator) Option {
	return func(m *Manager) {
		m.ids = g
	}
}

// Manager is a reconnecting, authenticating message connection.
//
// Thread-safety: all methods are safe for concurrent use. Handlers and
// status callbacks run outside the manager's lock, on the read goroutine
// or the goroutine that caused the change. Transport writes never hold mu,
// so Status and Stats answer while a write is blocked.
type Manager struct {
	cfg    Config
	dialer Dialer
	clock  clock.Clock
	log    *slog.Logger
	ids    protocol.IDGenerator

	// writeMu orders transport writes. It is taken before mu, never after.
	writeMu sync.Mutex

	mu       sync.Mutex
	status   Status
	conn     Conn
	gen      uint64 // bumped per transport; stale callbacks compare against it
	manual   bool   // Disconnect was called; suppress reconnection
	userID   string
	queue    *outboundQueue
	latency  *latencyWindow
	backoff  *backoff.ExponentialBackOff
	attempts int

	exhausted      bool
	heartbeatTimer clock.Timer
	reconnectTimer clock.Timer

	handlers       map[protocol.MessageType][]subscription
	statusHandlers []func(Status)
	nextSub        Subscription

	sent        int64
	received    int64
	lastMessage time.Time
	connectedAt time.Time
}

// NewManager creates a disconnected Manager. Zero tuning fields in cfg take
// their defaults.
func NewManager(cfg Config, opts ...Option) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:      cfg,
		dialer:   NewWebsocketDialer(),
		clock:    clock.Real(),
		log:      slog.Default(),
		ids:      protocol.UUIDv7Generator{},
		userID:   cfg.UserID,
		queue:    newOutboundQueue(cfg.QueueSize),
		latency:  newLatencyWindow(cfg.LatencyWindow),
		handlers: make(map[protocol.MessageType][]subscription),
	}
	for _, opt := range opts {
		opt(m)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialReconnectDelay
	b.MaxInterval = cfg.MaxReconnectDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	m.backoff = b

	return m
}

// Connect opens the transport and starts the authenticate handshake. It
// blocks until the transport is open or the dial fails. A failed dial
// leaves the manager Disconnected with a reconnect scheduled, and the
// error is returned for information only.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.status != StatusDisconnected {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.manual = false
	m.exhausted = false
	m.attempts = 0
	m.backoff.Reset()
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.mu.Unlock()

	return m.dial(ctx)
}

func (m *Manager) dial(ctx context.Context) error {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	url := m.cfg.URL
	notify := m.setStatusLocked(StatusConnecting)
	m.mu.Unlock()
	notify()

	c, err := m.dialer.Dial(ctx, url)

	m.writeMu.Lock()
	m.mu.Lock()
	if gen != m.gen || m.manual {
		m.mu.Unlock()
		m.writeMu.Unlock()
		if c != nil {
			_ = c.Close()
		}
		return errSuperseded
	}
	if err != nil {
		notify := m.setStatusLocked(StatusDisconnected)
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		m.writeMu.Unlock()
		notify()
		m.log.Warn("connection failed", "url", url, "error", err)
		return fmt.Errorf("connect %s: %w", url, err)
	}

	m.conn = c
	m.connectedAt = m.clock.Now()
	m.attempts = 0
	m.backoff.Reset()
	notify = m.setStatusLocked(StatusConnected)
	m.startHeartbeatLocked(gen)

	auth := m.envelopeLocked(protocol.MustNew(protocol.TypeAuthenticate, protocol.AuthData{
		Token:     m.cfg.Token,
		SessionID: m.cfg.SessionID,
	}))
	m.mu.Unlock()

	if _, err := m.write(c, auth); err != nil {
		m.log.Warn("authenticate write failed", "error", err)
	}
	m.writeMu.Unlock()
	notify()

	m.log.Info("connection open", "url", url, "session", m.cfg.SessionID)
	go m.readLoop(gen, c)
	return nil
}

// Send transmits msg if the connection is authenticated. Otherwise msg is
// queued and Send returns false. Empty session id, user id, timestamp, and
// message id are filled in.
func (m *Manager) Send(msg protocol.Message) bool {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	msg = m.envelopeLocked(msg)
	if msg.MessageID == "" {
		msg.MessageID = m.ids.Generate()
	}
	c := m.conn
	if m.status != StatusAuthenticated || c == nil {
		m.enqueueLocked(msg)
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()

	if _, err := m.write(c, msg); err != nil {
		m.log.Warn("send failed, message queued", "type", msg.Type, "error", err)
		m.mu.Lock()
		m.enqueueLocked(msg)
		m.mu.Unlock()
		return false
	}
	return true
}

// On registers h for messages of type t. Handlers run in registration
// order.
func (m *Manager) On(t protocol.MessageType, h Handler) Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSub++
	m.handlers[t] = append(m.handlers[t], subscription{id: m.nextSub, fn: h})
	return m.nextSub
}

// Off removes a handler registered with On. Returns false if it was not
// registered.
func (m *Manager) Off(t protocol.MessageType, id Subscription) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.handlers[t]
	for i, s := range subs {
		if s.id == id {
			m.handlers[t] = append(subs[:i:i], subs[i+1:]...)
			return true
		}
	}
	return false
}

// OnStatusChange registers f to be called after every status transition.
func (m *Manager) OnStatusChange(f func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusHandlers = append(m.statusHandlers, f)
}

// Disconnect closes the transport and cancels heartbeat and reconnection.
// Queued messages are kept for the next Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.manual = true
	m.gen++
	m.stopTimersLocked()
	c := m.conn
	m.conn = nil
	m.connectedAt = time.Time{}
	notify := m.setStatusLocked(StatusDisconnected)
	m.mu.Unlock()

	if c != nil {
		if err := c.Close(); err != nil {
			m.log.Debug("close transport", "error", err)
		}
	}
	notify()
}

// Status returns the current connection state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// IsReady reports whether application messages are written immediately.
func (m *Manager) IsReady() bool {
	return m.Status() == StatusAuthenticated
}

// Exhausted reports whether reconnection gave up after
// MaxReconnectAttempts.
func (m *Manager) Exhausted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exhausted
}

// UserID returns the configured user id, or the one assigned by the server
// on authentication.
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// SessionID returns the configured session id.
func (m *Manager) SessionID() string {
	return m.cfg.SessionID
}

// QueueLen returns the number of messages waiting for authentication.
func (m *Manager) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Len()
}

// Stats returns a snapshot of the connection counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{
		MessagesSent:      m.sent,
		MessagesReceived:  m.received,
		ReconnectAttempts: m.attempts,
		LastMessageTime:   m.lastMessage,
		AverageLatency:    m.latency.Average(),
		QueueLength:       m.queue.Len(),
	}
	if !m.connectedAt.IsZero() {
		s.ConnectionDuration = m.clock.Now().Sub(m.connectedAt)
	}
	return s
}

func (m *Manager) readLoop(gen uint64, c Conn) {
	for {
		data, err := c.ReadMessage()
		if err != nil {
			m.handleClose(gen, err)
			return
		}
		m.handleFrame(gen, data)
	}
}

func (m *Manager) handleFrame(gen uint64, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		m.log.Warn("dropping malformed message", "error", err)
		return
	}

	// Replies are written after mu is released but before writeMu is,
	// so nothing sent concurrently overtakes the queue flush.
	replies := msg.Type == protocol.TypeAuthenticated || msg.Type == protocol.TypePing
	if replies {
		m.writeMu.Lock()
	}

	var (
		notify func()
		out    []protocol.Message
	)
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if replies {
			m.writeMu.Unlock()
		}
		return
	}
	now := m.clock.Now()
	m.received++
	m.lastMessage = now
	if msg.Timestamp > 0 {
		m.latency.Record(max(now.Sub(msg.SentAt()), 0))
	}

	switch msg.Type {
	case protocol.TypeAuthenticated:
		notify, out = m.authenticatedLocked(msg)
	case protocol.TypePing:
		out = []protocol.Message{m.envelopeLocked(protocol.Message{Type: protocol.TypePong})}
	}
	c := m.conn
	subs := slices.Clone(m.handlers[msg.Type])
	m.mu.Unlock()

	if replies {
		switch msg.Type {
		case protocol.TypeAuthenticated:
			m.flush(c, out)
		case protocol.TypePing:
			if _, err := m.write(c, out...); err != nil {
				m.log.Debug("pong write failed", "error", err)
			}
		}
		m.writeMu.Unlock()
	}

	if notify != nil {
		notify()
	}
	m.dispatch(msg, subs)
}

// authenticatedLocked records the authentication and drains the queue. The
// caller writes the drained messages with flush.
func (m *Manager) authenticatedLocked(msg protocol.Message) (func(), []protocol.Message) {
	if msg.UserID != "" {
		m.userID = msg.UserID
	}
	var data protocol.AuthenticatedData
	if len(msg.Data) > 0 && msg.DecodeData(&data) == nil && data.UserID != "" {
		m.userID = data.UserID
	}
	m.attempts = 0
	m.exhausted = false
	m.backoff.Reset()
	notify := m.setStatusLocked(StatusAuthenticated)

	pending := m.queue.Drain()
	for i := range pending {
		if pending[i].UserID == "" {
			pending[i].UserID = m.userID
		}
	}
	m.log.Info("authenticated", "user", m.userID, "queued", len(pending))
	return notify, pending
}

// flush writes queued messages in order. On failure the unwritten rest goes
// back to the head of the queue for the next authentication.
func (m *Manager) flush(c Conn, pending []protocol.Message) {
	n, err := m.write(c, pending...)
	if err == nil {
		return
	}
	m.mu.Lock()
	dropped := m.queue.PushFront(pending[n:])
	m.mu.Unlock()
	m.log.Warn("flush interrupted", "remaining", len(pending)-n, "dropped", dropped, "error", err)
}

func (m *Manager) dispatch(msg protocol.Message, subs []subscription) {
	for _, s := range subs {
		m.invoke(msg, s.fn)
	}
}

func (m *Manager) invoke(msg protocol.Message, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("message handler panicked", "type", msg.Type, "panic", r)
		}
	}()
	h(msg)
}

func (m *Manager) handleClose(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.stopTimersLocked()
	m.conn = nil
	m.connectedAt = time.Time{}
	notify := m.setStatusLocked(StatusDisconnected)
	if !m.manual {
		m.scheduleReconnectLocked()
	}
	m.mu.Unlock()

	m.log.Info("connection closed", "error", cause)
	notify()
}

func (m *Manager) scheduleReconnectLocked() {
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.exhausted = true
		m.log.Error("giving up reconnecting", "attempts", m.attempts)
		return
	}
	delay := m.backoff.NextBackOff()
	m.attempts++
	gen := m.gen
	m.log.Info("reconnecting", "attempt", m.attempts, "delay", delay)
	m.reconnectTimer = m.clock.AfterFunc(delay, func() {
		m.mu.Lock()
		if gen != m.gen || m.manual || m.status != StatusDisconnected {
			m.mu.Unlock()
			return
		}
		m.reconnectTimer = nil
		m.mu.Unlock()
		_ = m.dial(context.Background())
	})
}

func (m *Manager) startHeartbeatLocked(gen uint64) {
	if m.cfg.HeartbeatInterval <= 0 {
		return
	}
	m.heartbeatTimer = m.clock.AfterFunc(m.cfg.HeartbeatInterval, func() {
		m.writeMu.Lock()
		defer m.writeMu.Unlock()

		m.mu.Lock()
		c := m.conn
		if gen != m.gen || c == nil {
			m.mu.Unlock()
			return
		}
		ping := m.envelopeLocked(protocol.Message{Type: protocol.TypePing})
		m.startHeartbeatLocked(gen)
		m.mu.Unlock()

		if _, err := m.write(c, ping); err != nil {
			m.log.Debug("heartbeat write failed", "error", err)
		}
	})
}

func (m *Manager) stopTimersLocked() {
	if m.heartbeatTimer != nil {
		m.heartbeatTimer.Stop()
		m.heartbeatTimer = nil
	}
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) envelopeLocked(msg protocol.Message) protocol.Message {
	if msg.SessionID == "" {
		msg.SessionID = m.cfg.SessionID
	}
	if msg.UserID == "" {
		msg.UserID = m.userID
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = m.clock.Now().UnixMilli()
	}
	return msg
}

func (m *Manager) enqueueLocked(msg protocol.Message) {
	if dropped, ok := m.queue.Push(msg); ok {
		m.log.Warn("outbound queue full, dropped oldest message",
			"type", dropped.Type, "id", dropped.MessageID, "size", m.cfg.QueueSize)
	}
}

// write encodes and writes msgs on c in order and returns how many were
// written. The caller holds writeMu and not mu.
func (m *Manager) write(c Conn, msgs ...protocol.Message) (int, error) {
	n := 0
	var err error
	for _, msg := range msgs {
		if err = writeFrame(c, msg); err != nil {
			break
		}
		n++
	}
	m.mu.Lock()
	m.sent += int64(n)
	m.mu.Unlock()
	return n, err
}

func writeFrame(c Conn, msg protocol.Message) error {
	if c == nil {
		return errors.New("no transport")
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	if err := c.WriteMessage(data); err != nil {
		return fmt.Errorf("write %s: %w", msg.Type, err)
	}
	return nil
}

// setStatusLocked records s and returns a function that notifies status
// handlers. The caller invokes it after releasing the lock.
func (m *Manager) setStatusLocked(s Status) func() {
	if m.status == s {
		return func() {}
	}
	m.status = s
	handlers := slices.Clone(m.statusHandlers)
	return func() {
		for _, h := range handlers {
			m.invokeStatus(h, s)
		}
	}
}

func (m *Manager) invokeStatus(h func(Status), s Status) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("status handler panicked", "status", s, "panic", r)
		}
	}()
	h(s)
}
