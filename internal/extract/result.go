package extract

import (
	"math"
	"slices"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/egx/internal/egraph"
)

// Infinity is the cost of a class that has no known finite choice yet.
var Infinity = math.Inf(1)

// Choice pairs a class with the node chosen to represent it.
type Choice struct {
	Class egraph.ClassID `json:"class"`
	Node  egraph.NodeID  `json:"node"`
}

// Stats counts the work an extractor did. Extractors fill what applies.
type Stats struct {
	Evaluations int64 // node cost evaluations
	Commits     int64 // strict improvements written to the cost table
	Batches     int64 // parallel batches drained
	Passes      int   // outer passes over the graph
}

// Result is an extraction: one chosen node per class the extractor decided,
// plus any per-node costs it recorded along the way.
type Result struct {
	choices map[egraph.ClassID]egraph.NodeID
	order   []egraph.ClassID

	// NodeCost holds, for extractors that compute it, the best cost seen
	// for each node. Used to bound ILP variables.
	NodeCost map[egraph.NodeID]float64

	Stats Stats
}

// NewResult returns an empty result.
func NewResult() *Result {
	return &Result{
		choices:  make(map[egraph.ClassID]egraph.NodeID),
		NodeCost: make(map[egraph.NodeID]float64),
	}
}

// Choose records nid as the choice for class, replacing any earlier choice.
func (r *Result) Choose(class egraph.ClassID, nid egraph.NodeID) {
	if _, exists := r.choices[class]; !exists {
		r.order = append(r.order, class)
	}
	r.choices[class] = nid
}

// Choice returns the node chosen for class.
func (r *Result) Choice(class egraph.ClassID) (egraph.NodeID, bool) {
	nid, ok := r.choices[class]
	return nid, ok
}

// Len returns the number of classes with a choice.
func (r *Result) Len() int {
	return len(r.choices)
}

// Choices returns every choice sorted by class id.
func (r *Result) Choices() []Choice {
	out := make([]Choice, 0, len(r.choices))
	for c, n := range r.choices {
		out = append(out, Choice{Class: c, Node: n})
	}
	slices.SortFunc(out, func(a, b Choice) int {
		switch {
		case a.Class < b.Class:
			return -1
		case a.Class > b.Class:
			return 1
		}
		return 0
	})
	return out
}

// Merge copies every choice of other into r. Choices in other win.
func (r *Result) Merge(other *Result) {
	for _, c := range other.order {
		r.Choose(c, other.choices[c])
	}
}

// Check verifies that r is a valid extraction of g from roots:
//   - there is at least one root and every root has a choice
//   - every chosen node exists and lives in the class it was chosen for
//   - every class reachable from the roots through chosen nodes has a choice
//   - the chosen nodes reachable from the roots form no cycle
//
// All violations are reported together. When a cycle is found the error
// includes the shortest one.
func (r *Result) Check(g *egraph.EGraph, roots []egraph.ClassID) error {
	var merr *multierror.Error

	if len(roots) == 0 {
		merr = multierror.Append(merr, &Error{Code: ErrCodeInvalidResult, Message: "no root classes"})
	}
	for _, root := range roots {
		if _, ok := r.choices[root]; !ok {
			merr = multierror.Append(merr, newClassError(ErrCodeInvalidResult, root, "root class has no choice"))
		}
	}

	for _, c := range r.order {
		nid := r.choices[c]
		n, ok := g.LookupNode(nid)
		if !ok {
			merr = multierror.Append(merr, newClassError(ErrCodeInvalidResult, c, "chosen node %s does not exist", nid))
			continue
		}
		if n.EClass != c {
			merr = multierror.Append(merr, newClassError(ErrCodeInvalidResult, c, "chosen node %s belongs to class %s", nid, n.EClass))
		}
	}
	if merr.ErrorOrNil() != nil {
		return merr.ErrorOrNil()
	}

	todo := slices.Clone(roots)
	visited := make(map[egraph.ClassID]bool)
	for len(todo) > 0 {
		c := todo[len(todo)-1]
		todo = todo[:len(todo)-1]
		if visited[c] {
			continue
		}
		visited[c] = true
		nid, ok := r.choices[c]
		if !ok {
			merr = multierror.Append(merr, newClassError(ErrCodeInvalidResult, c, "reachable class has no choice"))
			continue
		}
		todo = append(todo, g.Node(nid).Children...)
	}
	if merr.ErrorOrNil() != nil {
		return merr.ErrorOrNil()
	}

	if len(r.FindCycles(g, roots)) > 0 {
		merr = multierror.Append(merr, NewCycleError(r.FindShortestCycle(g, roots)))
	}
	return merr.ErrorOrNil()
}

// MustCheck panics if Check fails. Intended for tests and benchmarks.
func (r *Result) MustCheck(g *egraph.EGraph, roots []egraph.ClassID) {
	if err := r.Check(g, roots); err != nil {
		panic(err)
	}
}

type visitStatus uint8

const (
	statusTodo visitStatus = iota
	statusDoing
	statusDone
)

// FindCycles returns the classes at which a depth-first walk from roots
// re-entered a class still on its stack. An empty result means the chosen
// nodes reachable from roots are acyclic. Unchosen classes are skipped.
func (r *Result) FindCycles(g *egraph.EGraph, roots []egraph.ClassID) []egraph.ClassID {
	status := make(map[egraph.ClassID]visitStatus)
	var cycles []egraph.ClassID

	var visit func(c egraph.ClassID)
	visit = func(c egraph.ClassID) {
		switch status[c] {
		case statusDone:
			return
		case statusDoing:
			cycles = append(cycles, c)
			return
		}
		nid, ok := r.choices[c]
		if !ok {
			status[c] = statusDone
			return
		}
		status[c] = statusDoing
		for _, child := range g.Node(nid).Children {
			visit(child)
		}
		status[c] = statusDone
	}
	for _, root := range roots {
		visit(root)
	}
	return cycles
}

// FindShortestCycle returns a shortest cycle among the chosen nodes reachable
// from roots, or nil if there is none.
func (r *Result) FindShortestCycle(g *egraph.EGraph, roots []egraph.ClassID) []egraph.ClassID {
	graph := r.choiceGraph(g, roots)

	var best []egraph.ClassID
	for _, scc := range tarjanSCC(graph) {
		if len(scc) == 1 && !hasSelfLoop(scc[0], graph) {
			continue
		}
		members := make(map[egraph.ClassID]bool, len(scc))
		for _, c := range scc {
			members[c] = true
		}
		slices.Sort(scc)
		for _, start := range scc {
			cycle := shortestCycleThrough(start, graph, members)
			if cycle != nil && (best == nil || cycleLess(cycle, best)) {
				best = cycle
			}
		}
	}
	return best
}

// choiceGraph maps each chosen class reachable from roots to its child
// classes through the chosen node.
func (r *Result) choiceGraph(g *egraph.EGraph, roots []egraph.ClassID) dependencyGraph {
	graph := make(dependencyGraph)
	todo := slices.Clone(roots)
	for len(todo) > 0 {
		c := todo[len(todo)-1]
		todo = todo[:len(todo)-1]
		if _, seen := graph[c]; seen {
			continue
		}
		nid, ok := r.choices[c]
		if !ok {
			graph[c] = []egraph.ClassID{}
			continue
		}
		children := g.Node(nid).Children
		graph[c] = slices.Clone(children)
		todo = append(todo, children...)
	}
	return graph
}

// TreeCost is the cost of the extracted term written out as a tree: a shared
// class is paid once per occurrence. Cyclic or incomplete results cost
// Infinity.
func (r *Result) TreeCost(g *egraph.EGraph, roots []egraph.ClassID) float64 {
	memo := make(map[egraph.ClassID]float64)
	onStack := make(map[egraph.ClassID]bool)

	var cost func(c egraph.ClassID) float64
	cost = func(c egraph.ClassID) float64 {
		if v, ok := memo[c]; ok {
			return v
		}
		nid, ok := r.choices[c]
		if !ok || onStack[c] {
			return Infinity
		}
		onStack[c] = true
		n := g.Node(nid)
		total := n.Cost
		for _, child := range n.Children {
			total += cost(child)
		}
		onStack[c] = false
		memo[c] = total
		return total
	}

	total := 0.0
	for _, root := range roots {
		total += cost(root)
	}
	return total
}

// DAGCost is the cost of the extracted term with sharing: every reachable
// class is paid exactly once. Incomplete results cost Infinity.
func (r *Result) DAGCost(g *egraph.EGraph, roots []egraph.ClassID) float64 {
	seen := make(map[egraph.ClassID]bool)
	var reached []egraph.ClassID
	todo := slices.Clone(roots)
	for len(todo) > 0 {
		c := todo[len(todo)-1]
		todo = todo[:len(todo)-1]
		if seen[c] {
			continue
		}
		seen[c] = true
		nid, ok := r.choices[c]
		if !ok {
			return Infinity
		}
		reached = append(reached, c)
		todo = append(todo, g.Node(nid).Children...)
	}

	// Sum in class order so the total does not depend on traversal order.
	slices.Sort(reached)
	total := 0.0
	for _, c := range reached {
		total += g.Node(r.choices[c]).Cost
	}
	return total
}

// DepthCost is the height of the extracted term: a leaf has depth 1. The
// deepest root wins. Cyclic or incomplete results report -1.
func (r *Result) DepthCost(g *egraph.EGraph, roots []egraph.ClassID) int {
	memo := make(map[egraph.ClassID]int)
	onStack := make(map[egraph.ClassID]bool)

	var depth func(c egraph.ClassID) int
	depth = func(c egraph.ClassID) int {
		if v, ok := memo[c]; ok {
			return v
		}
		nid, ok := r.choices[c]
		if !ok || onStack[c] {
			return -1
		}
		onStack[c] = true
		deepest := 0
		for _, child := range g.Node(nid).Children {
			d := depth(child)
			if d < 0 {
				onStack[c] = false
				return -1
			}
			deepest = max(deepest, d)
		}
		onStack[c] = false
		memo[c] = deepest + 1
		return deepest + 1
	}

	out := 0
	for _, root := range roots {
		d := depth(root)
		if d < 0 {
			return -1
		}
		out = max(out, d)
	}
	return out
}

// ActiveNodes returns the chosen nodes reachable from roots, sorted.
func (r *Result) ActiveNodes(g *egraph.EGraph, roots []egraph.ClassID) []egraph.NodeID {
	seen := make(map[egraph.ClassID]bool)
	var out []egraph.NodeID
	todo := slices.Clone(roots)
	for len(todo) > 0 {
		c := todo[len(todo)-1]
		todo = todo[:len(todo)-1]
		if seen[c] {
			continue
		}
		seen[c] = true
		nid, ok := r.choices[c]
		if !ok {
			continue
		}
		out = append(out, nid)
		todo = append(todo, g.Node(nid).Children...)
	}
	slices.SortFunc(out, egraph.NodeID.Compare)
	return out
}

// NodeSumCost is the node's own cost plus the costs of its child classes
// looked up in costs. Missing children count as Infinity.
func NodeSumCost(n *egraph.Node, costs func(egraph.ClassID) (float64, bool)) float64 {
	total := n.Cost
	for _, child := range n.Children {
		c, ok := costs(child)
		if !ok {
			return Infinity
		}
		total += c
	}
	return total
}
