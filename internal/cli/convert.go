package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/egx/internal/egraph"
)

// ConvertOptions holds flags for the convert command.
type ConvertOptions struct {
	*RootOptions
	Dedup bool
}

// ConvertReport is the payload of the convert command.
type ConvertReport struct {
	Input   string `json:"input"`
	Output  string `json:"output"`
	Nodes   int    `json:"nodes"`
	Classes int    `json:"classes"`
	Removed int    `json:"removed"`
	Digest  string `json:"digest"`
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConvertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "convert <in> <out>",
		Short: "Re-encode an e-graph",
		Long: `Read an e-graph and write it back out, compressing by extension
(.zst, .gz) and optionally removing redundant nodes.

Examples:
  egx convert graph.json graph.json.zst
  egx convert graph.json.gz small.json --dedup`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(opts, args[0], args[1], cmd)
		},
	}
	cmd.Flags().BoolVar(&opts.Dedup, "dedup", false, "remove redundant nodes")

	return cmd
}

func runConvert(opts *ConvertOptions, in, out string, cmd *cobra.Command) error {
	g, err := egraph.Load(in)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading e-graph", err)
	}
	report := ConvertReport{Input: in, Output: out}
	if opts.Dedup {
		g, report.Removed = egraph.RemoveRedundant(g)
	}
	if err := egraph.Save(out, g); err != nil {
		return WrapExitError(ExitCommandError, "saving e-graph", err)
	}
	report.Nodes = g.NumNodes()
	report.Classes = g.NumClasses()
	report.Digest = egraph.Digest(g)

	return opts.formatter(cmd).Render(report, func(w io.Writer) error {
		fmt.Fprintf(w, "wrote %s (%d nodes, %d classes", out, report.Nodes, report.Classes)
		if opts.Dedup {
			fmt.Fprintf(w, ", %d removed", report.Removed)
		}
		fmt.Fprintln(w, ")")
		return nil
	})
}
