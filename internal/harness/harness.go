package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/egx/internal/egraph"
	"github.com/roach88/egx/internal/extract"
	"github.com/roach88/egx/internal/ilp"
)

// Harness runs scenarios against a registry of extractors.
type Harness struct {
	// ModelConfig shapes the ILP models snapshotted by RunWithGolden.
	ModelConfig ilp.Config

	registry *extract.Registry
	logger   *slog.Logger
}

// New returns a Harness over reg. A nil logger discards output.
func New(reg *extract.Registry, logger *slog.Logger) *Harness {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Harness{ModelConfig: ilp.DefaultConfig(), registry: reg, logger: logger}
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Load the graph and apply dedup and root overrides
//  2. Run each selected extractor; results are checked by extract.Run
//  3. Flag unexpected failures
//  4. Evaluate assertions
//
// An error is returned only when the scenario cannot be executed at all.
func (h *Harness) Run(ctx context.Context, s *Scenario) (*Result, error) {
	g, roots, err := LoadGraph(s)
	if err != nil {
		return nil, err
	}
	entries, err := h.entries(s.Extractors)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	for _, e := range entries {
		out := extract.Run(ctx, e, g, roots)
		o := summarize(g, roots, out)
		result.Outcomes = append(result.Outcomes, o)

		if !o.OK && !expectsError(s.Assertions, e.Name) {
			result.AddError(fmt.Sprintf("extractor %s failed: %s", e.Name, o.Error))
		}
		h.logger.Info("scenario run completed",
			"scenario", s.Name,
			"extractor", e.Name,
			"ok", o.OK,
			"dag_cost", out.DAGCost,
			"duration", out.Duration,
		)
	}

	for _, msg := range EvaluateAssertions(result, s.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// LoadGraph builds the scenario's e-graph and the roots to extract from.
func LoadGraph(s *Scenario) (*egraph.EGraph, []egraph.ClassID, error) {
	var (
		g   *egraph.EGraph
		err error
	)
	if s.Graph != nil {
		g, err = s.Graph.Build()
	} else {
		g, err = egraph.Load(s.GraphFile)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("scenario %s: loading graph: %w", s.Name, err)
	}
	if s.Dedup {
		g, _ = egraph.RemoveRedundant(g)
	}

	roots := g.Roots()
	if len(s.Roots) > 0 {
		roots = s.Roots
	}
	if len(roots) == 0 {
		return nil, nil, fmt.Errorf("scenario %s: graph has no roots", s.Name)
	}
	for _, r := range roots {
		if _, ok := g.LookupClass(r); !ok {
			return nil, nil, fmt.Errorf("scenario %s: root class %s is not in the graph", s.Name, r)
		}
	}
	return g, roots, nil
}

func (h *Harness) entries(names []string) ([]extract.Entry, error) {
	if len(names) == 0 {
		return h.registry.Entries(), nil
	}
	out := make([]extract.Entry, 0, len(names))
	for _, name := range names {
		e, ok := h.registry.Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown extractor %q", name)
		}
		out = append(out, e)
	}
	return out, nil
}

func expectsError(assertions []Assertion, name string) bool {
	for _, a := range assertions {
		if a.Type == AssertError && a.Extractor == name {
			return true
		}
	}
	return false
}
