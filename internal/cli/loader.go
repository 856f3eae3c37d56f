package cli

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"

	"github.com/roach88/egx/internal/egraph"
	"github.com/roach88/egx/internal/extract"
	"github.com/roach88/egx/internal/ilp"
	"github.com/roach88/egx/internal/store"
)

// graphOptions are the flags shared by every command that reads an e-graph.
type graphOptions struct {
	Roots []string
	Dedup bool
}

// loadGraph reads path, removes redundant nodes when asked, and resolves
// the roots: --root flags if given, otherwise the graph's own roots.
func loadGraph(path string, gopts graphOptions, dedupByDefault bool) (*egraph.EGraph, []egraph.ClassID, error) {
	g, err := egraph.Load(path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "loading e-graph", err)
	}
	if gopts.Dedup || dedupByDefault {
		var removed int
		g, removed = egraph.RemoveRedundant(g)
		slog.Debug("removed redundant nodes", "graph", path, "removed", removed)
	}

	roots := g.Roots()
	if len(gopts.Roots) > 0 {
		roots = roots[:0]
		for _, s := range gopts.Roots {
			c, err := egraph.ParseClassID(s)
			if err != nil {
				return nil, nil, WrapExitError(ExitCommandError, "parsing --root", err)
			}
			roots = append(roots, c)
		}
	}
	if len(roots) == 0 {
		return nil, nil, NewExitError(ExitCommandError, fmt.Sprintf("e-graph %s has no roots; pass --root", path))
	}
	for _, r := range roots {
		if _, ok := g.LookupClass(r); !ok {
			return nil, nil, NewExitError(ExitCommandError, fmt.Sprintf("root class %s is not in %s", r, path))
		}
	}
	return g, roots, nil
}

// buildRegistry returns the heuristics plus the ILP extractor, configured
// from opts.Config and reporting passes to opts.Metrics.
func buildRegistry(opts *RootOptions) (*extract.Registry, error) {
	reg := extract.Heuristics(opts.Config.ExtractOptions())
	e := ilp.New(opts.Config.ILP)
	if opts.Metrics != nil {
		e.OnPass = opts.Metrics.ObservePass
	}
	if err := ilp.Register(reg, e); err != nil {
		return nil, err
	}
	return reg, nil
}

// openStore opens the run store named by dbFlag, falling back to the
// config. A nil store means recording is disabled.
func openStore(opts *RootOptions, dbFlag string) (*store.Store, error) {
	path := dbFlag
	if path == "" {
		path = opts.Config.Store.Path
	}
	if path == "" {
		return nil, nil
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "opening run store", err)
	}
	return st, nil
}

// recordRun stores one outcome and returns its run id.
func recordRun(ctx context.Context, st *store.Store, opts *RootOptions, graphPath, digest string, out extract.Outcome) (string, error) {
	run, err := store.NewRun(filepath.Base(graphPath), digest, out, runConfig(opts, out.Extractor))
	if err != nil {
		return "", err
	}
	var choices []extract.Choice
	if out.Result != nil {
		choices = out.Result.Choices()
	}
	if _, err := st.WriteRun(ctx, run, choices); err != nil {
		return "", fmt.Errorf("recording run: %w", err)
	}
	return run.ID, nil
}

// runConfig is the slice of settings that can change an extractor's result.
func runConfig(opts *RootOptions, extractor string) map[string]any {
	cfg := opts.Config
	m := map[string]any{
		"workers":    cfg.Workers,
		"batch_size": cfg.BatchSize,
		"dedup":      cfg.Dedup,
	}
	switch extractor {
	case "greedy-dag-mt":
		m["passes"] = cfg.Passes
		m["seed"] = cfg.Seed
	case "ilp":
		m["ilp_rounds"] = cfg.ILP.Rounds
		m["ilp_bound"] = cfg.ILP.Bound
		m["ilp_solver"] = cfg.ILP.Solver.Path
		m["ilp_time_limit"] = cfg.ILP.Solver.TimeLimit.String()
	}
	return m
}

// finite returns a pointer to v, or nil for infinite costs, which JSON
// cannot encode.
func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
