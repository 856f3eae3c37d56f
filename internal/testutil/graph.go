package testutil

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/roach88/egx/internal/egraph"
)

// NodeSpec describes one node for Graph. Node ordinals are assigned in the
// order specs for the same class appear.
type NodeSpec struct {
	Class    egraph.ClassID
	Op       string
	Cost     float64
	Children []egraph.ClassID
}

// Leaf returns a childless node spec.
func Leaf(class egraph.ClassID, op string, cost float64) NodeSpec {
	return NodeSpec{Class: class, Op: op, Cost: cost}
}

// Op returns a node spec with children.
func Op(class egraph.ClassID, op string, cost float64, children ...egraph.ClassID) NodeSpec {
	return NodeSpec{Class: class, Op: op, Cost: cost, Children: children}
}

// Graph builds an e-graph from specs, failing the test on any error.
func Graph(t testing.TB, roots []egraph.ClassID, specs ...NodeSpec) *egraph.EGraph {
	t.Helper()
	b := egraph.NewBuilder()
	next := make(map[egraph.ClassID]uint32)
	for _, s := range specs {
		idx := next[s.Class]
		next[s.Class] = idx + 1
		err := b.Add(egraph.Node{
			Op:       s.Op,
			ID:       egraph.NewNodeID(s.Class, idx),
			Children: s.Children,
			EClass:   s.Class,
			Cost:     s.Cost,
		})
		if err != nil {
			t.Fatalf("adding node %v: %v", s, err)
		}
	}
	for _, r := range roots {
		b.AddRoot(r)
	}
	g, err := b.Build()
	if err != nil {
		t.Fatalf("building graph: %v", err)
	}
	return g
}

// Chain builds a linear graph 0 -> 1 -> ... -> n-1 with unit costs and
// class 0 as root. Class i also gets an expensive leaf alternative so every
// class has a choice to make.
func Chain(t testing.TB, n int) *egraph.EGraph {
	t.Helper()
	var specs []NodeSpec
	for i := 0; i < n; i++ {
		c := egraph.ClassID(i)
		if i == n-1 {
			specs = append(specs, Leaf(c, "x", 1))
			continue
		}
		specs = append(specs, Op(c, "f", 1, c+1))
		specs = append(specs, Leaf(c, "big", float64(n+1)))
	}
	return Graph(t, []egraph.ClassID{0}, specs...)
}

// OptimalDAG finds the minimum DAG-cost acyclic selection from roots by
// exhaustive search. allow restricts the candidate nodes; nil allows every
// node. Only usable on small graphs. ok is false when no acyclic selection
// exists.
func OptimalDAG(g *egraph.EGraph, roots []egraph.ClassID, allow func(egraph.NodeID) bool) (choices map[egraph.ClassID]egraph.NodeID, cost float64, ok bool) {
	best := math.Inf(1)
	var bestChoices map[egraph.ClassID]egraph.NodeID
	cur := make(map[egraph.ClassID]egraph.NodeID)

	var search func(pending []egraph.ClassID)
	search = func(pending []egraph.ClassID) {
		for len(pending) > 0 {
			if _, done := cur[pending[0]]; !done {
				break
			}
			pending = pending[1:]
		}
		if len(pending) == 0 {
			if acyclic(g, cur, roots) {
				if c := dagCost(g, cur, roots); c < best {
					best = c
					bestChoices = make(map[egraph.ClassID]egraph.NodeID, len(cur))
					for k, v := range cur {
						bestChoices[k] = v
					}
				}
			}
			return
		}
		class := pending[0]
		for _, nid := range g.Class(class).Nodes {
			if allow != nil && !allow(nid) {
				continue
			}
			cur[class] = nid
			next := append([]egraph.ClassID{}, pending[1:]...)
			next = append(next, g.Node(nid).Children...)
			search(next)
			delete(cur, class)
		}
	}
	search(append([]egraph.ClassID{}, roots...))

	if bestChoices == nil {
		return nil, math.Inf(1), false
	}
	return bestChoices, best, true
}

func dagCost(g *egraph.EGraph, choices map[egraph.ClassID]egraph.NodeID, roots []egraph.ClassID) float64 {
	seen := make(map[egraph.ClassID]bool)
	stack := append([]egraph.ClassID{}, roots...)
	total := 0.0
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[c] {
			continue
		}
		seen[c] = true
		n := g.Node(choices[c])
		total += n.Cost
		stack = append(stack, n.Children...)
	}
	return total
}

func acyclic(g *egraph.EGraph, choices map[egraph.ClassID]egraph.NodeID, roots []egraph.ClassID) bool {
	const (
		doing = 1
		done  = 2
	)
	state := make(map[egraph.ClassID]int)
	var visit func(c egraph.ClassID) bool
	visit = func(c egraph.ClassID) bool {
		switch state[c] {
		case doing:
			return false
		case done:
			return true
		}
		state[c] = doing
		for _, child := range g.Node(choices[c]).Children {
			if !visit(child) {
				return false
			}
		}
		state[c] = done
		return true
	}
	for _, r := range roots {
		if !visit(r) {
			return false
		}
	}
	return true
}

// RandomGraph builds a reproducible pseudo-random e-graph with integer costs
// and class 0 as root. The first node of every class only points at higher
// classes, so every class has a finite acyclic choice. With cyclic set,
// later nodes may also point back at lower or equal classes.
func RandomGraph(t testing.TB, seed uint64, classes, maxNodes int, cyclic bool) *egraph.EGraph {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed+1))
	var specs []NodeSpec
	for i := 0; i < classes; i++ {
		c := egraph.ClassID(i)
		n := 1 + rng.IntN(maxNodes)
		for j := 0; j < n; j++ {
			cost := float64(rng.IntN(5))
			var children []egraph.ClassID
			if i < classes-1 {
				for k := rng.IntN(3); k > 0; k-- {
					children = append(children, egraph.ClassID(i+1+rng.IntN(classes-i-1)))
				}
			}
			if cyclic && j > 0 && rng.IntN(4) == 0 {
				children = append(children, egraph.ClassID(rng.IntN(i+1)))
			}
			specs = append(specs, Op(c, fmt.Sprintf("op%d", j), cost, children...))
		}
	}
	return Graph(t, []egraph.ClassID{0}, specs...)
}
