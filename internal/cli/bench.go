package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"text/tabwriter"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/egx/internal/egraph"
	"github.com/roach88/egx/internal/extract"
)

// DefaultBenchPattern matches plain and compressed e-graph files.
const DefaultBenchPattern = "**/*.{json,json.gz,json.zst}"

// BenchOptions holds flags for the bench command.
type BenchOptions struct {
	*RootOptions
	Pattern    string
	Extractors []string
	DB         string
	Dedup      bool
}

// BenchRow is one extractor run on one graph.
type BenchRow struct {
	Graph      string   `json:"graph"`
	Extractor  string   `json:"extractor"`
	OK         bool     `json:"ok"`
	ErrorCode  string   `json:"error_code,omitempty"`
	TreeCost   *float64 `json:"tree_cost,omitempty"`
	DAGCost    *float64 `json:"dag_cost,omitempty"`
	Depth      int      `json:"depth"`
	DurationMS float64  `json:"duration_ms"`
	RunID      string   `json:"run_id,omitempty"`
}

// BenchReport is the payload of the bench command.
type BenchReport struct {
	Graphs int        `json:"graphs"`
	Failed int        `json:"failed"`
	Rows   []BenchRow `json:"rows"`
}

// NewBenchCommand creates the bench command.
func NewBenchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BenchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bench <dir>",
		Short: "Run extractors over a directory of e-graphs",
		Long: `Run every selected extractor on every e-graph under a directory and
report tree cost, DAG cost, depth and runtime. Runs are recorded when a
run store is configured.

Without --extractors, every extractor marked for benchmarking is used.

Exit codes:
  0 - Every run succeeded
  1 - At least one run failed
  2 - Command error

Examples:
  egx bench ./graphs
  egx bench ./graphs --pattern "tensat/*.json" -x greedy-dag,ilp --db runs.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(opts, args[0], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Pattern, "pattern", DefaultBenchPattern, "glob selecting e-graph files under <dir>")
	cmd.Flags().StringSliceVarP(&opts.Extractors, "extractors", "x", nil, "extractors to run (default: bench set)")
	cmd.Flags().StringVar(&opts.DB, "db", "", "run store path (default from config)")
	cmd.Flags().BoolVar(&opts.Dedup, "dedup", false, "remove redundant nodes before extracting")

	return cmd
}

func runBench(opts *BenchOptions, dir string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := opts.formatter(cmd)

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("graph directory not found: %s", dir))
	}
	if !doublestar.ValidatePattern(opts.Pattern) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid pattern %q", opts.Pattern))
	}
	matches, err := doublestar.Glob(os.DirFS(dir), opts.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return WrapExitError(ExitCommandError, "finding graphs", err)
	}
	slices.Sort(matches)

	reg, err := buildRegistry(opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "building extractors", err)
	}
	entries, err := benchEntries(reg, opts.Extractors)
	if err != nil {
		return err
	}

	st, err := openStore(opts.RootOptions, opts.DB)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	report := BenchReport{Graphs: len(matches), Rows: []BenchRow{}}
	for _, m := range matches {
		path := filepath.Join(dir, filepath.FromSlash(m))
		g, roots, err := loadGraph(path, graphOptions{Dedup: opts.Dedup}, opts.Config.Dedup)
		if err != nil {
			return err
		}
		digest := egraph.Digest(g)
		formatter.VerboseLog("%s: %s nodes, %s classes",
			m, humanize.Comma(int64(g.NumNodes())), humanize.Comma(int64(g.NumClasses())))

		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return WrapExitError(ExitCommandError, "bench interrupted", err)
			}
			out := extract.Run(ctx, e, g, roots)
			opts.Metrics.ObserveRun(m, out)

			row := BenchRow{
				Graph:      m,
				Extractor:  e.Name,
				OK:         out.OK(),
				TreeCost:   finite(out.TreeCost),
				DAGCost:    finite(out.DAGCost),
				Depth:      out.Depth,
				DurationMS: float64(out.Duration.Microseconds()) / 1000,
			}
			if !row.OK {
				row.ErrorCode = errorCode(out.Err)
				report.Failed++
				slog.Warn("extraction failed", "graph", m, "extractor", e.Name, "error", out.Err)
			}
			if st != nil {
				row.RunID, err = recordRun(ctx, st, opts.RootOptions, path, digest, out)
				if err != nil {
					return WrapExitError(ExitCommandError, "recording run", err)
				}
			}
			report.Rows = append(report.Rows, row)
		}
	}

	if err := formatter.Render(report, func(w io.Writer) error {
		return printBench(w, report)
	}); err != nil {
		return err
	}
	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d runs failed", report.Failed, len(report.Rows)))
	}
	return nil
}

func benchEntries(reg *extract.Registry, names []string) ([]extract.Entry, error) {
	if len(names) == 0 {
		var entries []extract.Entry
		for _, e := range reg.Entries() {
			if e.Bench {
				entries = append(entries, e)
			}
		}
		return entries, nil
	}
	entries := make([]extract.Entry, 0, len(names))
	for _, name := range names {
		e, ok := reg.Get(name)
		if !ok {
			return nil, NewExitError(ExitCommandError,
				fmt.Sprintf("unknown extractor %q: must be one of %v", name, reg.Names()))
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func printBench(w io.Writer, r BenchReport) error {
	if len(r.Rows) == 0 {
		fmt.Fprintln(w, "No graphs found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GRAPH\tEXTRACTOR\tTREE\tDAG\tDEPTH\tTIME")
	for _, row := range r.Rows {
		if !row.OK {
			fmt.Fprintf(tw, "%s\t%s\t%s\t\t\t%.3fms\n", row.Graph, row.Extractor, row.ErrorCode, row.DurationMS)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.3fms\n",
			row.Graph, row.Extractor, formatCost(row.TreeCost), formatCost(row.DAGCost), row.Depth, row.DurationMS)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d graph(s), %d run(s), %d failed\n", r.Graphs, len(r.Rows), r.Failed)
	return nil
}
