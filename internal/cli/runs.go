package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/egx/internal/egraph"
	"github.com/roach88/egx/internal/store"
)

// RunsOptions holds flags for the runs command and its subcommands.
type RunsOptions struct {
	*RootOptions
	DB        string
	Graph     string // e-graph file whose digest selects runs
	Digest    string
	Extractor string
	Status    string
	Limit     int
	Output    string
}

// RunView is a stored run as the CLI reports it.
type RunView struct {
	Seq        int64          `json:"seq"`
	ID         string         `json:"id"`
	Graph      string         `json:"graph"`
	Digest     string         `json:"digest"`
	Extractor  string         `json:"extractor"`
	Status     string         `json:"status"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Error      string         `json:"error,omitempty"`
	TreeCost   *float64       `json:"tree_cost,omitempty"`
	DAGCost    *float64       `json:"dag_cost,omitempty"`
	Depth      int            `json:"depth"`
	DurationMS float64        `json:"duration_ms"`
	Config     map[string]any `json:"config,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func newRunView(r store.Run) RunView {
	return RunView{
		Seq:        r.Seq,
		ID:         r.ID,
		Graph:      r.GraphName,
		Digest:     r.GraphDigest,
		Extractor:  r.Extractor,
		Status:     string(r.Status),
		ErrorCode:  string(r.ErrorCode),
		Error:      r.Error,
		TreeCost:   finite(r.TreeCost),
		DAGCost:    finite(r.DAGCost),
		Depth:      r.Depth,
		DurationMS: float64(r.Duration.Microseconds()) / 1000,
		Config:     r.Config,
		CreatedAt:  r.CreatedAt,
	}
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Query the run store",
		Long: `List recorded extraction runs, newest first.

Examples:
  egx runs --db runs.db
  egx runs --db runs.db --graph graph.json --extractor ilp
  egx runs best --db runs.db --graph graph.json -o best.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListRuns(opts, cmd)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "run store path (default from config)")
	cmd.PersistentFlags().StringVar(&opts.Graph, "graph", "", "select runs on this e-graph file")
	cmd.PersistentFlags().StringVar(&opts.Digest, "digest", "", "select runs on the e-graph with this digest")
	cmd.Flags().StringVarP(&opts.Extractor, "extractor", "x", "", "select runs of this extractor")
	cmd.Flags().StringVar(&opts.Status, "status", "", "select runs with this status (ok|failed)")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "most recent runs to show (0 for all)")

	best := &cobra.Command{
		Use:   "best",
		Short: "Show the lowest DAG-cost successful run for an e-graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBestRun(opts, cmd)
		},
	}
	best.Flags().StringVarP(&opts.Output, "output", "o", "", "write the run's result to this JSON file")
	cmd.AddCommand(best)

	return cmd
}

func (o *RunsOptions) open() (*store.Store, error) {
	st, err := openStore(o.RootOptions, o.DB)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, NewExitError(ExitCommandError, "no run store: pass --db or set store.path")
	}
	return st, nil
}

// digest resolves --graph or --digest. Empty means no graph filter.
func (o *RunsOptions) digest() (string, error) {
	if o.Graph == "" {
		return o.Digest, nil
	}
	if o.Digest != "" {
		return "", NewExitError(ExitCommandError, "--graph and --digest are mutually exclusive")
	}
	g, err := egraph.Load(o.Graph)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "loading e-graph", err)
	}
	if o.Config.Dedup {
		g, _ = egraph.RemoveRedundant(g)
	}
	return egraph.Digest(g), nil
}

func runListRuns(opts *RunsOptions, cmd *cobra.Command) error {
	switch store.Status(opts.Status) {
	case "", store.StatusOK, store.StatusFailed:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid status %q: must be ok or failed", opts.Status))
	}
	digest, err := opts.digest()
	if err != nil {
		return err
	}
	st, err := opts.open()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), store.RunFilter{
		GraphDigest: digest,
		Extractor:   opts.Extractor,
		Status:      store.Status(opts.Status),
		Limit:       opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "listing runs", err)
	}
	views := make([]RunView, len(runs))
	for i, r := range runs {
		views[i] = newRunView(r)
	}

	return opts.formatter(cmd).Render(views, func(w io.Writer) error {
		return printRuns(w, views)
	})
}

func printRuns(w io.Writer, views []RunView) error {
	if len(views) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tGRAPH\tEXTRACTOR\tSTATUS\tDAG\tTIME\tWHEN")
	for _, v := range views {
		status := v.Status
		if v.ErrorCode != "" {
			status += " (" + v.ErrorCode + ")"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%.3fms\t%s\n",
			v.Seq, v.Graph, v.Extractor, status, formatCost(v.DAGCost), v.DurationMS, humanize.Time(v.CreatedAt))
	}
	return tw.Flush()
}

func runBestRun(opts *RunsOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	digest, err := opts.digest()
	if err != nil {
		return err
	}
	if digest == "" {
		return NewExitError(ExitCommandError, "best needs --graph or --digest")
	}
	st, err := opts.open()
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.BestRun(ctx, digest)
	if errors.Is(err, store.ErrNotFound) {
		return NewExitError(ExitFailure, fmt.Sprintf("no successful run for digest %s", digest))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "reading best run", err)
	}

	if opts.Output != "" {
		res, err := st.ReadResult(ctx, run.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "reading result", err)
		}
		if err := writeResultFile(opts.Output, res); err != nil {
			return WrapExitError(ExitCommandError, "writing result", err)
		}
	}

	view := newRunView(run)
	return opts.formatter(cmd).Render(view, func(w io.Writer) error {
		fmt.Fprintf(w, "run        %s (#%d)\n", view.ID, view.Seq)
		fmt.Fprintf(w, "graph      %s\n", view.Graph)
		fmt.Fprintf(w, "extractor  %s\n", view.Extractor)
		fmt.Fprintf(w, "tree cost  %s\n", formatCost(view.TreeCost))
		fmt.Fprintf(w, "dag cost   %s\n", formatCost(view.DAGCost))
		fmt.Fprintf(w, "depth      %d\n", view.Depth)
		if opts.Output != "" {
			fmt.Fprintf(w, "result     %s\n", opts.Output)
		}
		return nil
	})
}
