package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/coedit/internal/ot"
)

// TransformOptions holds flags for the transform command.
type TransformOptions struct {
	*RootOptions
	Text string
}

// TransformResult is the outcome of transforming a against b.
type TransformResult struct {
	APrime    ot.Operation `json:"a_prime"`
	BPrime    ot.Operation `json:"b_prime"`
	Text      *string      `json:"text,omitempty"`
	ViaA      *string      `json:"via_a,omitempty"` // text, then a, then b'
	ViaB      *string      `json:"via_b,omitempty"` // text, then b, then a'
	Converges *bool        `json:"converges,omitempty"`
}

// NewTransformCommand creates the transform command.
func NewTransformCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TransformOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "transform <a> <b>",
		Short: "Transform two concurrent operations against each other",
		Long: `Transform two operations authored against the same text and print a'
(a rebased past b) and b' (b rebased past a). With --text both orders are
applied and compared.

Operations are JSON objects in wire form:
  {"type":"insert","position":2,"content":"X"}
  {"type":"delete","position":0,"length":1}

Exit codes:
  0 - Transformed (and converged, with --text)
  1 - The two orders produced different texts
  2 - Invalid operation

Examples:
  coedit transform '{"type":"insert","position":2,"content":"X"}' '{"type":"delete","position":0,"length":1}'
  coedit transform --text abcd '<a>' '<b>' --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransform(opts, cmd, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.Text, "text", "", "apply both orders to this text and check convergence")

	return cmd
}

func runTransform(opts *TransformOptions, cmd *cobra.Command, argA, argB string) error {
	out := newFormatter(opts.RootOptions, cmd)

	a, err := parseOp(argA)
	if err != nil {
		return out.Failure(ExitCommandError, CodeInvalidOperation, "invalid operation a", err.Error())
	}
	b, err := parseOp(argB)
	if err != nil {
		return out.Failure(ExitCommandError, CodeInvalidOperation, "invalid operation b", err.Error())
	}

	aPrime, bPrime := ot.Transform(a, b)
	result := TransformResult{APrime: aPrime, BPrime: bPrime}

	if cmd.Flags().Changed("text") {
		text := opts.Text
		viaA := ot.ApplyAll(text, []ot.Operation{a, bPrime})
		viaB := ot.ApplyAll(text, []ot.Operation{b, aPrime})
		converges := viaA == viaB
		result.Text, result.ViaA, result.ViaB, result.Converges = &text, &viaA, &viaB, &converges
	}

	opts.logger().Debug("transformed", "a", a, "b", b, "a_prime", aPrime, "b_prime", bPrime)

	if err := out.Success(result, func(w io.Writer) { printTransform(w, result) }); err != nil {
		return err
	}
	if result.Converges != nil && !*result.Converges {
		return NewExitError(ExitFailure, "transformed operations diverge")
	}
	return nil
}

func printTransform(w io.Writer, r TransformResult) {
	fmt.Fprintf(w, "a' = %s\n", r.APrime)
	fmt.Fprintf(w, "b' = %s\n", r.BPrime)
	if r.Converges == nil {
		return
	}
	fmt.Fprintf(w, "a;b' = %q\n", *r.ViaA)
	fmt.Fprintf(w, "b;a' = %q\n", *r.ViaB)
	fmt.Fprintf(w, "converges: %v\n", *r.Converges)
}
