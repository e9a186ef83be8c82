package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/coedit/internal/conn"
	"github.com/roach88/coedit/internal/ot"
	"github.com/roach88/coedit/internal/session"
	"github.com/roach88/coedit/internal/store"
)

// DefaultRelayURL is the websocket endpoint of a local "coedit relay".
const DefaultRelayURL = "ws://localhost:8080/ws"

// JoinOptions holds flags for the join command.
type JoinOptions struct {
	*RootOptions
	Config       string
	URL          string
	SessionID    string
	UserID       string
	UserName     string
	Token        string
	Database     string
	Watch        bool
	ReadyTimeout time.Duration
}

// NewJoinCommand creates the join command.
func NewJoinCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JoinOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a session and edit it from standard input",
		Long: `Join a collaborative session and read editing commands, one per line,
from standard input:

  insert POS TEXT        insert TEXT (optionally "quoted") at POS
  delete POS N           delete N characters at POS
  undo | redo
  cursor POS [START END] report the cursor and selection
  comment LINE TEXT      comment on a line
  text                   print the document
  who                    list participants
  comments               list comments
  stats                  print connection statistics
  quit

With --db every applied operation is journaled, and a later join resumes
from the journaled text.

Examples:
  coedit join --session doc-1 --user alice --name Alice
  coedit join --config client.yaml --db ./coedit.db --watch`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "YAML connection config")
	cmd.Flags().StringVar(&opts.URL, "url", DefaultRelayURL, "relay websocket URL")
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "session id")
	cmd.Flags().StringVar(&opts.UserID, "user", "", "user id (assigned by the relay when empty)")
	cmd.Flags().StringVar(&opts.UserName, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Token, "token", "", "authentication token")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite journal path")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "print the document after every change")
	cmd.Flags().DurationVar(&opts.ReadyTimeout, "ready-timeout", 10*time.Second, "how long to wait for authentication before reading commands")

	return cmd
}

// connConfig merges the config file and the flags. Flags win when set.
func (o *JoinOptions) connConfig(cmd *cobra.Command) (conn.Config, error) {
	cfg := conn.DefaultConfig()
	if o.Config != "" {
		loaded, err := conn.LoadConfig(o.Config)
		if err != nil {
			return conn.Config{}, err
		}
		cfg = loaded
	}
	flags := cmd.Flags()
	if flags.Changed("url") || cfg.URL == "" {
		cfg.URL = o.URL
	}
	if flags.Changed("session") || cfg.SessionID == "" {
		cfg.SessionID = o.SessionID
	}
	if flags.Changed("user") || cfg.UserID == "" {
		cfg.UserID = o.UserID
	}
	if flags.Changed("token") || cfg.Token == "" {
		cfg.Token = o.Token
	}
	return cfg, cfg.Validate()
}

func runJoin(opts *JoinOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	log := opts.logger()
	out := &lockedWriter{w: cmd.OutOrStdout()}

	cfg, err := opts.connConfig(cmd)
	if err != nil {
		return newFormatter(opts.RootOptions, cmd).Failure(ExitCommandError, CodeConfig, "invalid connection config", err.Error())
	}

	engine := ot.NewEngine()
	initial := ""
	var sessOpts []session.Option
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer st.Close()
		state, err := st.Replay(ctx, cfg.SessionID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to replay journal", err)
		}
		engine = ot.NewEngine(ot.WithHistory(state.History))
		initial = state.Text
		sessOpts = append(sessOpts, session.WithJournal(st))
		log.Info("resumed from journal", "session", cfg.SessionID, "operations", state.Applied, "revision", state.LastRevision)
	}
	if opts.Watch {
		sessOpts = append(sessOpts, session.WithRenderer(session.RendererFunc(func(text string, cursors []session.Cursor) {
			fmt.Fprintf(out, "> %q (%d cursors)\n", text, len(cursors))
		})))
	}
	sessOpts = append(sessOpts, session.WithLogger(log))

	m := conn.NewManager(cfg, conn.WithLogger(log))
	ready := make(chan struct{}, 1)
	m.OnStatusChange(func(s conn.Status) {
		if s == conn.StatusAuthenticated {
			select {
			case ready <- struct{}{}:
			default:
			}
		}
	})

	co := session.New(m, engine, session.Config{
		SessionID:   cfg.SessionID,
		UserID:      cfg.UserID,
		UserName:    opts.UserName,
		InitialText: initial,
	}, sessOpts...)
	if err := co.Join(ctx); err != nil {
		co.Leave()
		return WrapExitError(ExitCommandError, "failed to join session", err)
	}
	defer co.Leave()

	select {
	case <-ready:
		log.Debug("ready", "user", m.UserID())
	case <-time.After(opts.ReadyTimeout):
		log.Warn("not authenticated yet, edits will be queued", "timeout", opts.ReadyTimeout)
	}

	sh := &joinShell{co: co, m: m, out: out}
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		quit, err := sh.exec(ctx, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
		if quit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return WrapExitError(ExitCommandError, "failed to read commands", err)
	}
	return nil
}

// lockedWriter serializes writes from the shell and the renderer.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// joinShell executes the line commands of "coedit join".
type joinShell struct {
	co  *session.Coordinator
	m   *conn.Manager
	out io.Writer
}

func (s *joinShell) exec(ctx context.Context, line string) (bool, error) {
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "quit", "exit":
		return true, nil

	case "insert":
		posArg, text, _ := strings.Cut(rest, " ")
		pos, err := strconv.Atoi(posArg)
		if err != nil {
			return false, fmt.Errorf("insert: bad position %q", posArg)
		}
		text, err = unquote(text)
		if err != nil {
			return false, fmt.Errorf("insert: %w", err)
		}
		if text == "" {
			return false, fmt.Errorf("insert: nothing to insert")
		}
		_, err = s.co.Insert(ctx, pos, text)
		return false, err

	case "delete":
		n, err := ints(rest, 2)
		if err != nil {
			return false, fmt.Errorf("delete: %w", err)
		}
		_, err = s.co.Delete(ctx, n[0], n[1])
		return false, err

	case "undo":
		if _, ok := s.co.Undo(ctx); !ok {
			fmt.Fprintln(s.out, "nothing to undo")
		}
		return false, nil

	case "redo":
		if _, ok := s.co.Redo(ctx); !ok {
			fmt.Fprintln(s.out, "nothing to redo")
		}
		return false, nil

	case "cursor":
		fields := strings.Fields(rest)
		if len(fields) != 1 && len(fields) != 3 {
			return false, fmt.Errorf("cursor: want POS or POS START END")
		}
		n, err := ints(rest, len(fields))
		if err != nil {
			return false, fmt.Errorf("cursor: %w", err)
		}
		if len(n) == 1 {
			n = append(n, n[0], n[0])
		}
		return false, s.co.UpdatePresence(n[0], n[1], n[2])

	case "comment":
		lineArg, text, _ := strings.Cut(rest, " ")
		ln, err := strconv.Atoi(lineArg)
		if err != nil {
			return false, fmt.Errorf("comment: bad line %q", lineArg)
		}
		text, err = unquote(text)
		if err != nil {
			return false, fmt.Errorf("comment: %w", err)
		}
		_, err = s.co.AddComment(ctx, text, ln)
		return false, err

	case "text":
		fmt.Fprintf(s.out, "%q\n", s.co.Text())

	case "who":
		for _, p := range s.co.Participants() {
			fmt.Fprintf(s.out, "%s %s %s cursor=%d online=%v\n", p.UserID, p.UserName, p.Color, p.CursorPosition, p.IsOnline)
		}

	case "comments":
		for _, ln := range s.co.CommentLines() {
			for _, c := range s.co.Comments(ln) {
				fmt.Fprintf(s.out, "line %d %s: %q\n", c.LineNumber, c.UserID, c.Content)
			}
		}

	case "stats":
		st := s.m.Stats()
		fmt.Fprintf(s.out, "status=%s sent=%d received=%d queued=%d latency=%s reconnects=%d\n",
			s.m.Status(), st.MessagesSent, st.MessagesReceived, st.QueueLength, st.AverageLatency, st.ReconnectAttempts)

	default:
		return false, fmt.Errorf("unknown command %q", verb)
	}
	return false, nil
}

// unquote accepts bare text or a Go-quoted string.
func unquote(s string) (string, error) {
	if strings.HasPrefix(s, `"`) {
		return strconv.Unquote(s)
	}
	return s, nil
}

// ints parses exactly n space-separated integers.
func ints(s string, n int) ([]int, error) {
	fields := strings.Fields(s)
	if len(fields) != n {
		return nil, fmt.Errorf("want %d numbers, got %d", n, len(fields))
	}
	out := make([]int, n)
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", f)
		}
		out[i] = v
	}
	return out, nil
}
