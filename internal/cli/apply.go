package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/coedit/internal/ot"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Text  string
	Steps bool
}

// ApplyStep is the text after one operation.
type ApplyStep struct {
	Operation ot.Operation `json:"operation"`
	Text      string       `json:"text"`
}

// ApplyResult is the outcome of the apply command.
type ApplyResult struct {
	Text       string      `json:"text"`
	Operations int         `json:"operations"`
	Steps      []ApplyStep `json:"steps,omitempty"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <ops>...",
		Short: "Apply operations to a text",
		Long: `Apply JSON operations to a text in order and print the result. Each
argument is one operation object or an array of them.

Examples:
  coedit apply --text hello '{"type":"insert","position":5,"content":" world"}'
  coedit apply --text hello --steps '[{"type":"delete","position":0,"length":1}]'`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.Text, "text", "", "starting text")
	cmd.Flags().BoolVar(&opts.Steps, "steps", false, "show the text after every operation")

	return cmd
}

func runApply(opts *ApplyOptions, cmd *cobra.Command, args []string) error {
	out := newFormatter(opts.RootOptions, cmd)

	var ops []ot.Operation
	for i, arg := range args {
		parsed, err := parseOps(arg)
		if err != nil {
			return out.Failure(ExitCommandError, CodeInvalidOperation,
				fmt.Sprintf("invalid operation in argument %d", i+1), err.Error())
		}
		ops = append(ops, parsed...)
	}

	result := ApplyResult{Text: opts.Text, Operations: len(ops)}
	for _, op := range ops {
		result.Text = ot.ApplyToText(result.Text, op)
		if opts.Steps {
			result.Steps = append(result.Steps, ApplyStep{Operation: op, Text: result.Text})
		}
	}

	return out.Success(result, func(w io.Writer) {
		if !opts.Steps {
			fmt.Fprintln(w, result.Text)
			return
		}
		fmt.Fprintf(w, "start => %q\n", opts.Text)
		for _, s := range result.Steps {
			fmt.Fprintf(w, "%s => %q\n", s.Operation, s.Text)
		}
	})
}
