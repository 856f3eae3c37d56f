package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/egx/internal/extract"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	graphOptions
}

// CheckReport is the payload of the check command.
type CheckReport struct {
	Valid    bool                  `json:"valid"`
	Choices  int                   `json:"choices"`
	Active   int                   `json:"active"`
	TreeCost *float64              `json:"tree_cost,omitempty"`
	DAGCost  *float64              `json:"dag_cost,omitempty"`
	Depth    int                   `json:"depth"`
	Cycles   []extract.CycleReport `json:"cycles,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <graph> <result.json>",
		Short: "Check an extraction result against an e-graph",
		Long: `Verify that a stored result is a valid extraction and report its costs.

When the chosen nodes form cycles, every cycle component is listed with
a shortest cycle through it.

Exit codes:
  0 - The result is valid
  1 - The result is invalid
  2 - Command error`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args[0], args[1], cmd)
		},
	}
	addGraphFlags(cmd, &opts.graphOptions)

	return cmd
}

func runCheck(opts *CheckOptions, graphPath, resultPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	g, roots, err := loadGraph(graphPath, opts.graphOptions, false)
	if err != nil {
		return err
	}
	res, err := readResultFile(resultPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "reading result", err)
	}

	report := CheckReport{Choices: res.Len(), Depth: -1}
	if err := res.Check(g, roots); err != nil {
		report.Cycles = res.AnalyzeCycles(g, roots)
		if ferr := formatter.Error(errorCode(err), err.Error(), report); ferr != nil {
			return ferr
		}
		if opts.Format != "json" {
			for _, c := range report.Cycles {
				fmt.Fprintf(formatter.Writer, "  %s\n", c.Message)
			}
		}
		return WrapExitError(ExitFailure, "invalid result", err)
	}

	report.Valid = true
	report.Active = len(res.ActiveNodes(g, roots))
	report.TreeCost = finite(res.TreeCost(g, roots))
	report.DAGCost = finite(res.DAGCost(g, roots))
	report.Depth = res.DepthCost(g, roots)

	return formatter.Render(report, func(w io.Writer) error {
		fmt.Fprintf(w, "✓ valid (%d choices, %d active)\n", report.Choices, report.Active)
		fmt.Fprintf(w, "tree cost  %s\n", formatCost(report.TreeCost))
		fmt.Fprintf(w, "dag cost   %s\n", formatCost(report.DAGCost))
		fmt.Fprintf(w, "depth      %d\n", report.Depth)
		return nil
	})
}
