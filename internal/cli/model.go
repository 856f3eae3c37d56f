package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/egx/internal/ilp"
)

// ModelOptions holds flags for the model command.
type ModelOptions struct {
	*RootOptions
	graphOptions
	OutDir string
}

// ModelReport is the payload of the model command.
type ModelReport struct {
	UpperBound  *float64       `json:"upper_bound,omitempty"`
	Classes     int            `json:"classes"`
	Candidates  int            `json:"candidates"`
	Constraints int            `json:"constraints"`
	Variables   int            `json:"variables"`
	ZeroNodes   int            `json:"zero_nodes"`
	Passes      []ilp.PassStat `json:"passes"`
	Files       []string       `json:"files,omitempty"`
}

// NewModelCommand creates the model command.
func NewModelCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ModelOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "model <graph>",
		Short: "Build the ILP model without solving it",
		Long: `Run the heuristic, the reduction passes and the model encoder, then
write the files the solver would receive.

With -o, the LP model, the warm start and the zero-node hints are written
to the directory. Without it, the LP model is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModel(opts, args[0], cmd)
		},
	}
	cmd.Flags().StringVarP(&opts.OutDir, "output", "o", "", "directory for the model files")
	addGraphFlags(cmd, &opts.graphOptions)

	return cmd
}

func runModel(opts *ModelOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	g, roots, err := loadGraph(path, opts.graphOptions, opts.Config.Dedup)
	if err != nil {
		return err
	}
	e := ilp.New(opts.Config.ILP)
	e.OnPass = opts.Metrics.ObservePass
	pr, err := e.Prepare(cmd.Context(), g, roots)
	if err != nil {
		return WrapExitError(ExitCommandError, "preparing model", err)
	}
	if err := pr.Infeasible(); err != nil {
		if ferr := formatter.Error(errorCode(err), err.Error(), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitFailure, "model is infeasible", err)
	}

	report := ModelReport{
		UpperBound:  finite(pr.UpperBound),
		Classes:     pr.Problem.NumClasses(),
		Candidates:  pr.Problem.NumCandidates(),
		Constraints: len(pr.Model.Constraints),
		Variables:   len(pr.Model.Binaries) + len(pr.Model.Generals),
		ZeroNodes:   len(pr.ZeroNodes),
		Passes:      pr.Passes,
	}

	if opts.OutDir == "" {
		if opts.Format == "json" {
			return formatter.Render(report, nil)
		}
		formatter.VerboseLog("%d classes, %d candidates after reduction", report.Classes, report.Candidates)
		return ilp.WriteLP(formatter.Writer, pr.Model)
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return WrapExitError(ExitCommandError, "creating output directory", err)
	}
	write := func(name string, fn func(io.Writer) error) error {
		p := filepath.Join(opts.OutDir, name)
		if err := writeFile(p, fn); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("writing %s", name), err)
		}
		report.Files = append(report.Files, p)
		return nil
	}
	if err := write(ilp.ModelFile, func(w io.Writer) error { return ilp.WriteLP(w, pr.Model) }); err != nil {
		return err
	}
	if pr.Initial != nil {
		err := write(ilp.WarmStartFile, func(w io.Writer) error {
			return ilp.WriteWarmStart(w, pr.Model, g, roots, pr.Initial)
		})
		if err != nil {
			return err
		}
	}
	if len(pr.ZeroNodes) > 0 {
		if err := write(ilp.ZeroNodeFile, func(w io.Writer) error { return ilp.WriteZeroNodes(w, pr.ZeroNodes) }); err != nil {
			return err
		}
	}

	return formatter.Render(report, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ROUND\tPASS\tCHANGED")
		for _, ps := range report.Passes {
			fmt.Fprintf(tw, "%d\t%s\t%d\n", ps.Round, ps.Pass, ps.Changed)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%d classes, %d candidates, %d constraints, upper bound %s\n",
			report.Classes, report.Candidates, report.Constraints, formatCost(report.UpperBound))
		for _, f := range report.Files {
			fmt.Fprintf(w, "wrote %s\n", f)
		}
		return nil
	})
}

func writeFile(path string, fn func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(f)
}
