package extract

import (
	"fmt"
	"slices"

	"github.com/roach88/egx/internal/egraph"
)

// CycleReport describes one strongly connected group of classes among the
// chosen nodes of a result.
type CycleReport struct {
	Classes []egraph.ClassID `json:"classes"` // members of the component, sorted
	Path    []egraph.ClassID `json:"path"`    // a shortest cycle through the component
	Message string           `json:"message"` // human-readable description
}

// AnalyzeCycles reports every cycle component among the chosen nodes
// reachable from roots. An acyclic result returns an empty list.
//
// The algorithm:
//  1. Build the class graph induced by the chosen nodes
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each component with more than one class, or with a self-loop
func (r *Result) AnalyzeCycles(g *egraph.EGraph, roots []egraph.ClassID) []CycleReport {
	graph := r.choiceGraph(g, roots)

	reports := []CycleReport{}
	for _, scc := range tarjanSCC(graph) {
		if len(scc) == 1 && !hasSelfLoop(scc[0], graph) {
			continue
		}
		members := make(map[egraph.ClassID]bool, len(scc))
		for _, c := range scc {
			members[c] = true
		}
		slices.Sort(scc)

		var path []egraph.ClassID
		for _, start := range scc {
			cycle := shortestCycleThrough(start, graph, members)
			if cycle != nil && (path == nil || cycleLess(cycle, path)) {
				path = cycle
			}
		}

		msg := fmt.Sprintf("cycle through %d classes: %s", len(scc), FormatCycle(path))
		if len(scc) == 1 {
			msg = fmt.Sprintf("class %s chooses a node that is its own child", scc[0])
		}
		reports = append(reports, CycleReport{Classes: scc, Path: path, Message: msg})
	}

	slices.SortFunc(reports, func(a, b CycleReport) int {
		return int(a.Classes[0]) - int(b.Classes[0])
	})
	return reports
}

// dependencyGraph maps a class to the classes its chosen node points at.
type dependencyGraph map[egraph.ClassID][]egraph.ClassID

// hasSelfLoop checks if a class has an edge to itself.
func hasSelfLoop(c egraph.ClassID, graph dependencyGraph) bool {
	return slices.Contains(graph[c], c)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of classes.
// Single-class SCCs without self-loops are NOT cycles.
// Classes are visited in ascending order so the output is deterministic.
func tarjanSCC(graph dependencyGraph) [][]egraph.ClassID {
	var (
		index   = 0
		stack   []egraph.ClassID
		indices = make(map[egraph.ClassID]int)
		lowlink = make(map[egraph.ClassID]int)
		onStack = make(map[egraph.ClassID]bool)
		sccs    [][]egraph.ClassID
	)

	var strongConnect func(egraph.ClassID)
	strongConnect = func(v egraph.ClassID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is the root of a component: pop it off the stack
		if lowlink[v] == indices[v] {
			var scc []egraph.ClassID
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]egraph.ClassID, 0, len(graph))
	for c := range graph {
		nodes = append(nodes, c)
	}
	slices.Sort(nodes)
	for _, c := range nodes {
		if _, visited := indices[c]; !visited {
			strongConnect(c)
		}
	}

	return sccs
}

// shortestCycleThrough runs a breadth-first search from start, staying inside
// members, and returns the shortest path back to start (start first, not
// repeated at the end). Returns nil if start is not on a cycle.
func shortestCycleThrough(start egraph.ClassID, graph dependencyGraph, members map[egraph.ClassID]bool) []egraph.ClassID {
	prev := map[egraph.ClassID]egraph.ClassID{}
	queue := []egraph.ClassID{start}
	seen := map[egraph.ClassID]bool{start: true}

	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range graph[v] {
			if !members[w] {
				continue
			}
			if w == start {
				var path []egraph.ClassID
				for c := v; c != start; c = prev[c] {
					path = append(path, c)
				}
				path = append(path, start)
				slices.Reverse(path)
				return path
			}
			if !seen[w] {
				seen[w] = true
				prev[w] = v
				queue = append(queue, w)
			}
		}
	}
	return nil
}

// cycleLess orders cycles by length, then by their rotation that starts at
// the smallest class.
func cycleLess(a, b []egraph.ClassID) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return slices.Compare(canonicalRotation(a), canonicalRotation(b)) < 0
}

func canonicalRotation(cycle []egraph.ClassID) []egraph.ClassID {
	if len(cycle) == 0 {
		return cycle
	}
	at := slices.Index(cycle, slices.Min(cycle))
	return append(slices.Clone(cycle[at:]), cycle[:at]...)
}
