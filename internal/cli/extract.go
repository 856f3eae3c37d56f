package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/egx/internal/egraph"
	"github.com/roach88/egx/internal/extract"
	"github.com/roach88/egx/internal/store"
)

// ExtractOptions holds flags for the extract command.
type ExtractOptions struct {
	*RootOptions
	graphOptions
	Extractor string
	Output    string
	DB        string
	NoRecord  bool
}

// ExtractSummary is the payload of a completed extraction.
type ExtractSummary struct {
	Graph      string   `json:"graph"`
	Digest     string   `json:"digest"`
	Nodes      int      `json:"nodes"`
	Classes    int      `json:"classes"`
	Extractor  string   `json:"extractor"`
	OK         bool     `json:"ok"`
	ErrorCode  string   `json:"error_code,omitempty"`
	TreeCost   *float64 `json:"tree_cost,omitempty"`
	DAGCost    *float64 `json:"dag_cost,omitempty"`
	Depth      int      `json:"depth"`
	DurationMS float64  `json:"duration_ms"`
	Output     string   `json:"output,omitempty"`
	RunID      string   `json:"run_id,omitempty"`
}

// NewExtractCommand creates the extract command.
func NewExtractCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExtractOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "extract <graph>",
		Short: "Extract a term from an e-graph",
		Long: `Run one extractor on an e-graph, check the result and report its costs.

The result is written as JSON with -o. When a run store is configured
(--db or store.path), the run and its choices are recorded.

Exit codes:
  0 - Extraction succeeded and the result is valid
  1 - Extraction failed or produced an invalid result
  2 - Command error (unreadable graph, unknown extractor, etc.)

Examples:
  egx extract graph.json
  egx extract graph.json.zst -x greedy-dag -o result.json
  egx extract graph.json -x ilp --root 3 --db runs.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Extractor, "extractor", "x", "", "extractor name (default from config)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the result to this JSON file")
	cmd.Flags().StringVar(&opts.DB, "db", "", "run store path (default from config)")
	cmd.Flags().BoolVar(&opts.NoRecord, "no-record", false, "do not record the run")
	addGraphFlags(cmd, &opts.graphOptions)

	return cmd
}

func addGraphFlags(cmd *cobra.Command, gopts *graphOptions) {
	cmd.Flags().StringSliceVar(&gopts.Roots, "root", nil, "root class to extract (repeatable; default the graph's roots)")
	cmd.Flags().BoolVar(&gopts.Dedup, "dedup", false, "remove redundant nodes before extracting")
}

func runExtract(opts *ExtractOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := opts.formatter(cmd)

	reg, err := buildRegistry(opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "building extractors", err)
	}
	name := opts.Extractor
	if name == "" {
		name = opts.Config.Extractor
	}
	entry, ok := reg.Get(name)
	if !ok {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("unknown extractor %q: must be one of %v", name, reg.Names()))
	}

	g, roots, err := loadGraph(path, opts.graphOptions, opts.Config.Dedup)
	if err != nil {
		return err
	}
	digest := egraph.Digest(g)
	formatter.VerboseLog("Loaded %s: %s nodes, %s classes, %d root(s)",
		path, humanize.Comma(int64(g.NumNodes())), humanize.Comma(int64(g.NumClasses())), len(roots))

	out := extract.Run(ctx, entry, g, roots)
	opts.Metrics.ObserveRun(filepath.Base(path), out)

	summary := ExtractSummary{
		Graph:      path,
		Digest:     digest,
		Nodes:      g.NumNodes(),
		Classes:    g.NumClasses(),
		Extractor:  out.Extractor,
		OK:         out.OK(),
		TreeCost:   finite(out.TreeCost),
		DAGCost:    finite(out.DAGCost),
		Depth:      out.Depth,
		DurationMS: float64(out.Duration.Microseconds()) / 1000,
	}

	if !opts.NoRecord {
		st, err := openStore(opts.RootOptions, opts.DB)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close()
			summary.RunID, err = recordRun(ctx, st, opts.RootOptions, path, digest, out)
			if err != nil {
				return WrapExitError(ExitCommandError, "recording run", err)
			}
			slog.Debug("run recorded", "run", summary.RunID, "status", statusOf(out))
		}
	}

	if !out.OK() {
		summary.ErrorCode = errorCode(out.Err)
		if err := formatter.Error(summary.ErrorCode, out.Err.Error(), summary); err != nil {
			return err
		}
		return WrapExitError(ExitFailure, fmt.Sprintf("extractor %s failed", out.Extractor), out.Err)
	}

	if opts.Output != "" {
		if err := writeResultFile(opts.Output, out.Result); err != nil {
			return WrapExitError(ExitCommandError, "writing result", err)
		}
		summary.Output = opts.Output
	}

	return formatter.Render(summary, func(w io.Writer) error {
		printSummary(w, summary)
		return nil
	})
}

func printSummary(w io.Writer, s ExtractSummary) {
	fmt.Fprintf(w, "extractor  %s\n", s.Extractor)
	fmt.Fprintf(w, "graph      %s (%s nodes, %s classes)\n",
		s.Graph, humanize.Comma(int64(s.Nodes)), humanize.Comma(int64(s.Classes)))
	fmt.Fprintf(w, "tree cost  %s\n", formatCost(s.TreeCost))
	fmt.Fprintf(w, "dag cost   %s\n", formatCost(s.DAGCost))
	fmt.Fprintf(w, "depth      %d\n", s.Depth)
	fmt.Fprintf(w, "duration   %.3fms\n", s.DurationMS)
	if s.Output != "" {
		fmt.Fprintf(w, "result     %s\n", s.Output)
	}
	if s.RunID != "" {
		fmt.Fprintf(w, "run        %s\n", s.RunID)
	}
}

func formatCost(c *float64) string {
	if c == nil {
		return "inf"
	}
	return humanize.FtoaWithDigits(*c, 6)
}

func statusOf(out extract.Outcome) store.Status {
	if out.OK() {
		return store.StatusOK
	}
	return store.StatusFailed
}

func writeResultFile(path string, r *extract.Result) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return extract.WriteResult(f, r)
}

func readResultFile(path string) (*extract.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return extract.ReadResult(f)
}
