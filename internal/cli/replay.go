package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/coedit/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database  string
	SessionID string // optional - one session only
}

// ReplayComment is a journaled comment in replay output.
type ReplayComment struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	LineNumber int    `json:"line_number"`
	Content    string `json:"content"`
}

// ReplaySession is one session rebuilt from the journal.
type ReplaySession struct {
	SessionID  string          `json:"session_id"`
	Text       string          `json:"text"`
	Revision   int64           `json:"revision"`
	Operations int             `json:"operations"`
	History    int             `json:"history"`
	Comments   []ReplayComment `json:"comments"`
}

// ReplayResult holds every replayed session.
type ReplayResult struct {
	Sessions []ReplaySession `json:"sessions"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild documents from a local edit journal",
		Long: `Replay the operations journaled by "coedit join --db" and print the
resulting text, revision, and comments of each session.

Exit codes:
  0 - Replayed
  2 - Command error (journal not found, unreadable, etc.)

Examples:
  coedit replay --db ./coedit.db
  coedit replay --db ./coedit.db --session doc-1
  coedit replay --db ./coedit.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "replay one session only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := newFormatter(opts.RootOptions, cmd)

	// store.Open creates missing files; a typo should not yield an empty journal.
	if _, err := os.Stat(opts.Database); err != nil {
		return out.Failure(ExitCommandError, CodeJournal, "journal not found", err.Error())
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	var ids []string
	if opts.SessionID != "" {
		ids = []string{opts.SessionID}
	} else {
		ids, err = st.Sessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
	}

	result := ReplayResult{Sessions: make([]ReplaySession, 0, len(ids))}
	for _, id := range ids {
		s, err := replaySession(ctx, st, id)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay session %s", id), err)
		}
		opts.logger().Debug("replayed session", "session", id, "operations", s.Operations, "revision", s.Revision)
		result.Sessions = append(result.Sessions, s)
	}

	return out.Success(result, func(w io.Writer) { printReplay(w, result) })
}

func replaySession(ctx context.Context, st *store.Store, sessionID string) (ReplaySession, error) {
	state, err := st.Replay(ctx, sessionID)
	if err != nil {
		return ReplaySession{}, err
	}
	s := ReplaySession{
		SessionID:  sessionID,
		Text:       state.Text,
		Revision:   state.LastRevision,
		Operations: state.Applied,
		History:    len(state.History),
		Comments:   make([]ReplayComment, 0, len(state.Comments)),
	}
	for _, c := range state.Comments {
		s.Comments = append(s.Comments, ReplayComment{
			ID:         c.ID,
			UserID:     c.UserID,
			LineNumber: c.LineNumber,
			Content:    c.Content,
		})
	}
	return s, nil
}

func printReplay(w io.Writer, r ReplayResult) {
	if len(r.Sessions) == 0 {
		fmt.Fprintln(w, "No sessions found in journal.")
		return
	}
	for i, s := range r.Sessions {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "session %s\n", s.SessionID)
		fmt.Fprintf(w, "  revision: %d\n", s.Revision)
		fmt.Fprintf(w, "  operations: %d (%d in history)\n", s.Operations, s.History)
		fmt.Fprintf(w, "  text: %q\n", s.Text)
		for _, c := range s.Comments {
			fmt.Fprintf(w, "  comment line %d by %s: %q\n", c.LineNumber, c.UserID, c.Content)
		}
	}
}
