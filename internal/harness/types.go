package harness

import (
	"github.com/roach88/egx/internal/egraph"
	"github.com/roach88/egx/internal/extract"
)

// Outcome summarizes one extractor run for assertions and golden files.
// Costs of failed runs are omitted.
type Outcome struct {
	Extractor string            `json:"extractor"`
	OK        bool              `json:"ok"`
	ErrorCode string            `json:"error_code,omitempty"`
	Error     string            `json:"-"`
	TreeCost  *float64          `json:"tree_cost,omitempty"`
	DAGCost   *float64          `json:"dag_cost,omitempty"`
	Depth     *int              `json:"depth,omitempty"`
	Choices   map[string]string `json:"choices,omitempty"`
}

// summarize converts a run into an Outcome. Choices cover only the nodes
// reachable from the roots, so extractors that decide extra classes still
// produce comparable snapshots.
func summarize(g *egraph.EGraph, roots []egraph.ClassID, out extract.Outcome) Outcome {
	o := Outcome{Extractor: out.Extractor, OK: out.OK()}
	if !o.OK {
		o.ErrorCode = string(extract.CodeOf(out.Err))
		o.Error = out.Err.Error()
		return o
	}
	tree, dag, depth := out.TreeCost, out.DAGCost, out.Depth
	o.TreeCost, o.DAGCost, o.Depth = &tree, &dag, &depth

	o.Choices = make(map[string]string)
	for _, nid := range out.Result.ActiveNodes(g, roots) {
		o.Choices[egraph.ClassID(nid.Class).String()] = nid.String()
	}
	return o
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every run behaved and every assertion held.
	Pass bool `json:"pass"`

	// Outcomes holds one entry per extractor, in run order.
	Outcomes []Outcome `json:"outcomes"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Outcomes: []Outcome{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Outcome returns the run of the named extractor.
func (r *Result) Outcome(name string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Extractor == name {
			return o, true
		}
	}
	return Outcome{}, false
}
