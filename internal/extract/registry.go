package extract

import (
	"fmt"
	"slices"
)

// Optimal names the cost model an extractor targets.
type Optimal string

const (
	OptimalTree    Optimal = "tree"
	OptimalDAG     Optimal = "dag"
	OptimalNeither Optimal = "neither"
)

// Entry describes a registered extractor.
type Entry struct {
	Name        string
	Description string
	Extractor   Extractor
	Optimal     Optimal
	// Bench marks extractors that are cheap enough to include in default
	// benchmark sweeps.
	Bench bool
}

// Registry maps extractor names to entries, preserving registration order.
type Registry struct {
	entries map[string]Entry
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds an entry. Names must be unique.
func (r *Registry) Register(e Entry) error {
	if e.Name == "" {
		return fmt.Errorf("extractor name is required")
	}
	if e.Extractor == nil {
		return fmt.Errorf("extractor %q: implementation is required", e.Name)
	}
	if _, exists := r.entries[e.Name]; exists {
		return fmt.Errorf("extractor %q already registered", e.Name)
	}
	r.entries[e.Name] = e
	r.order = append(r.order, e.Name)
	return nil
}

// Get returns the entry registered under name.
func (r *Registry) Get(name string) (Entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Names returns every registered name in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// Entries returns every entry in registration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.order))
	for i, name := range r.order {
		out[i] = r.entries[name]
	}
	return out
}

// Options tunes the parallel heuristic extractors.
type Options struct {
	Workers      int
	BatchSize    int
	GreedyPasses int
	Seed         uint64
}

// Heuristics returns a registry holding every built-in heuristic extractor.
// The ILP extractor lives in its own package and registers itself on top.
func Heuristics(opts Options) *Registry {
	r := NewRegistry()
	for _, e := range []Entry{
		{
			Name:        "bottom-up",
			Description: "cheapest tree cost per class, sequential worklist",
			Extractor:   BottomUp{},
			Optimal:     OptimalTree,
			Bench:       true,
		},
		{
			Name:        "bottom-up-mt",
			Description: "cheapest tree cost per class, parallel batches",
			Extractor:   ParallelBottomUp{Workers: opts.Workers, BatchSize: opts.BatchSize},
			Optimal:     OptimalTree,
			Bench:       true,
		},
		{
			Name:        "depth",
			Description: "shallowest term per class, sequential worklist",
			Extractor:   Depth{},
			Optimal:     OptimalNeither,
		},
		{
			Name:        "depth-mt",
			Description: "shallowest term per class, parallel batches",
			Extractor:   ParallelDepth{Workers: opts.Workers, BatchSize: opts.BatchSize},
			Optimal:     OptimalNeither,
		},
		{
			Name:        "greedy-dag",
			Description: "greedy DAG cost with per-class cost sets, sequential",
			Extractor:   GreedyDAG{},
			Optimal:     OptimalNeither,
			Bench:       true,
		},
		{
			Name:        "greedy-dag-mt",
			Description: "greedy DAG cost with per-class cost sets, parallel batches",
			Extractor: ParallelGreedyDAG{
				Workers:   opts.Workers,
				BatchSize: opts.BatchSize,
				Passes:    opts.GreedyPasses,
				Seed:      opts.Seed,
			},
			Optimal: OptimalNeither,
			Bench:   true,
		},
	} {
		if err := r.Register(e); err != nil {
			panic(err) // built-in names are unique
		}
	}
	return r
}
