// Package relay is a minimal collaboration server for coedit clients.
//
// A relay authenticates websocket clients, stamps each edit with the next
// session revision, and fans every application message out to all members
// of the session, the sender included. The echo of an edit is the sender's
// acknowledgement. The relay does not transform operations.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/roach88/coedit/internal/conn"
	"github.com/roach88/coedit/internal/protocol"
)

// Error codes sent in error messages.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeUnsupported  = "UNSUPPORTED"
	CodeInternal     = "INTERNAL"
)

// Server relays messages between the clients of each session.
type Server struct {
	cfg      Config
	broker   Broker
	log      *slog.Logger
	ids      protocol.IDGenerator
	upgrader websocket.Upgrader

	mu      sync.Mutex
	members map[string]map[*client]struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithBroker replaces the in-memory broker.
func WithBroker(b Broker) Option {
	return func(s *Server) {
		s.broker = b
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithIDGenerator sets the generator for user ids assigned in open mode.
func WithIDGenerator(g protocol.IDGenerator) Option {
	return func(s *Server) {
		s.ids = g
	}
}

// NewServer creates a relay. Without WithBroker sessions live in memory.
func NewServer(cfg Config, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg.withDefaults(),
		log:     slog.Default(),
		ids:     protocol.UUIDv7Generator{},
		members: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.broker == nil {
		s.broker = NewMemoryBroker()
	}
	return s
}

// Handler returns the relay's HTTP routes.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, req)
			s.log.Info("handled", "method", req.Method, "url", req.URL, "duration", m.Duration, "status", m.Code)
		})
	})
	r.Methods(http.MethodGet).Path("/ws").HandlerFunc(s.serveWS)
	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(s.serveHealth)
	r.Methods(http.MethodGet).Path("/sessions/{session}").HandlerFunc(s.serveSession)
	return r
}

// ListenAndServe serves on cfg.Addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("relay listening", "addr", s.cfg.Addr, "open", s.cfg.OpenMode())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
	}
	s.closeAll()
	return s.broker.Close()
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	n := 0
	for _, m := range s.members {
		n += len(m)
	}
	sessions := len(s.members)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"clients":  n,
		"sessions": sessions,
	})
}

// SessionView is the JSON body of GET /sessions/{session}.
type SessionView struct {
	SessionID string   `json:"sessionId"`
	Revision  int64    `json:"revision"`
	Users     []string `json:"users"`
}

func (s *Server) serveSession(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["session"]
	rev, err := s.broker.Revision(req.Context(), id)
	if err != nil {
		s.log.Error("session revision", "session", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, SessionView{
		SessionID: id,
		Revision:  rev,
		Users:     s.users(id),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) serveWS(w http.ResponseWriter, req *http.Request) {
	ws, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote", req.RemoteAddr, "error", err)
		return
	}
	c := &client{
		srv:  s,
		conn: conn.NewWebsocketConn(ws, s.cfg.WriteTimeout()),
		log:  s.log.With("remote", req.RemoteAddr),
	}
	c.run(context.Background())
}

func (s *Server) join(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[c.session] == nil {
		s.members[c.session] = make(map[*client]struct{})
	}
	s.members[c.session][c] = struct{}{}
}

func (s *Server) part(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[c.session], c)
	if len(s.members[c.session]) == 0 {
		delete(s.members, c.session)
	}
}

// users returns the sorted ids of the session's local members.
func (s *Server) users(sessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]string, 0, len(s.members[sessionID]))
	for c := range s.members[sessionID] {
		users = append(users, c.user)
	}
	sort.Strings(users)
	return users
}

// roster returns presence records for the session's announced members
// other than exclude.
func (s *Server) roster(sessionID string, exclude *client) []protocol.PresenceData {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []protocol.PresenceData
	for c := range s.members[sessionID] {
		if c == exclude {
			continue
		}
		if p, ok := c.presence(); ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (s *Server) closeAll() {
	s.mu.Lock()
	var all []*client
	for _, m := range s.members {
		for c := range m {
			all = append(all, c)
		}
	}
	s.mu.Unlock()
	for _, c := range all {
		_ = c.conn.Close()
	}
}

// authenticate resolves the user id for a token. In open mode the client's
// claimed id is kept, or one is assigned.
func (s *Server) authenticate(token, claimed string) (string, error) {
	if s.cfg.OpenMode() {
		if claimed != "" {
			return claimed, nil
		}
		return s.ids.Generate(), nil
	}
	user, ok := s.cfg.Tokens[token]
	if !ok {
		return "", fmt.Errorf("invalid token")
	}
	return user, nil
}
