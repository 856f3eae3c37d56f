package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/egx/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string // scenario filter (glob pattern)
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run extraction scenarios",
		Long: `Run YAML scenarios: each builds an e-graph, runs extractors on it and
checks costs, choices and expected errors.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  egx test ./scenarios
  egx test ./scenarios --filter "ilp/*.yaml"
  egx test ./scenarios --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}
	paths, err := harness.FindScenarios(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "finding scenarios", err)
	}

	reg, err := buildRegistry(opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "building extractors", err)
	}
	h := harness.New(reg, slog.Default())
	result, err := h.RunSuite(cmd.Context(), paths)
	if err != nil {
		return WrapExitError(ExitCommandError, "running scenarios", err)
	}

	if err := opts.formatter(cmd).Render(result, func(w io.Writer) error {
		return printSuite(w, result)
	}); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

func printSuite(w io.Writer, r *harness.SuiteResult) error {
	if r.TotalScenarios == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}
	for _, f := range r.Failures {
		name := f.Name
		if name == "" {
			name = f.ScenarioPath
		}
		fmt.Fprintf(w, "✗ %s\n    %s\n", name, f.Error)
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", r.Passed, r.Failed, r.TotalScenarios)
	return nil
}
