package ilp

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/egx/internal/egraph"
)

// candidate is one node a class may choose. children is the set of classes
// that must be active if the candidate is; passes edit it, so it can differ
// from the node's children in the e-graph.
type candidate struct {
	node     egraph.NodeID
	cost     float64
	children []egraph.ClassID // insertion order, no duplicates
}

func (c *candidate) references(class egraph.ClassID) bool {
	return slices.Contains(c.children, class)
}

func (c *candidate) addChild(class egraph.ClassID) {
	if !c.references(class) {
		c.children = append(c.children, class)
	}
}

// subsetOf reports whether every child class of c is a child class of o.
func (c *candidate) subsetOf(o *candidate) bool {
	for _, x := range c.children {
		if !o.references(x) {
			return false
		}
	}
	return true
}

type classVars struct {
	id         egraph.ClassID
	candidates []candidate
}

func (cv *classVars) minCost() float64 {
	if len(cv.candidates) == 0 {
		return 0
	}
	m := cv.candidates[0].cost
	for _, c := range cv.candidates[1:] {
		m = min(m, c.cost)
	}
	return m
}

// Problem is the reduced form of an e-graph that the ILP model is built
// from. Classes keep the e-graph's class order.
type Problem struct {
	classes map[egraph.ClassID]*classVars
	order   []egraph.ClassID
	roots   []egraph.ClassID

	// decided holds classes settled during reduction. They are no longer
	// part of the problem and must be merged into the final result.
	decided map[egraph.ClassID]egraph.NodeID
}

// NewProblem builds a problem from every class of g. Roots are sorted and
// deduplicated.
func NewProblem(g *egraph.EGraph, roots []egraph.ClassID) (*Problem, error) {
	p := &Problem{
		classes: make(map[egraph.ClassID]*classVars, g.NumClasses()),
		decided: make(map[egraph.ClassID]egraph.NodeID),
	}
	for _, class := range g.Classes() {
		cv := &classVars{id: class.ID, candidates: make([]candidate, 0, len(class.Nodes))}
		for _, nid := range class.Nodes {
			n := g.Node(nid)
			cand := candidate{node: nid, cost: n.Cost}
			for _, child := range n.Children {
				cand.addChild(child)
			}
			cv.candidates = append(cv.candidates, cand)
		}
		p.classes[class.ID] = cv
		p.order = append(p.order, class.ID)
	}

	p.roots = slices.Clone(roots)
	slices.Sort(p.roots)
	p.roots = slices.Compact(p.roots)
	for _, r := range p.roots {
		if _, ok := p.classes[r]; !ok {
			return nil, fmt.Errorf("root class %s is not in the e-graph", r)
		}
	}
	return p, nil
}

// Roots returns the root classes, including any discovered during
// reduction.
func (p *Problem) Roots() []egraph.ClassID {
	return slices.Clone(p.roots)
}

// NumClasses returns the number of classes still in the problem.
func (p *Problem) NumClasses() int {
	return len(p.order)
}

// NumCandidates returns the number of candidates still in the problem.
func (p *Problem) NumCandidates() int {
	total := 0
	for _, c := range p.order {
		total += len(p.classes[c].candidates)
	}
	return total
}

// Decided returns the choices fixed during reduction.
func (p *Problem) Decided() map[egraph.ClassID]egraph.NodeID {
	out := make(map[egraph.ClassID]egraph.NodeID, len(p.decided))
	for c, n := range p.decided {
		out[c] = n
	}
	return out
}

// InfeasibleRoots returns the root classes left without candidates. Any such
// root makes the problem infeasible.
func (p *Problem) InfeasibleRoots() []egraph.ClassID {
	var out []egraph.ClassID
	for _, r := range p.roots {
		cv, ok := p.classes[r]
		if !ok || len(cv.candidates) == 0 {
			if _, decided := p.decided[r]; !decided {
				out = append(out, r)
			}
		}
	}
	return out
}

// HasCandidate reports whether nid is still a candidate of its class.
func (p *Problem) HasCandidate(nid egraph.NodeID) bool {
	cv, ok := p.classes[egraph.ClassID(nid.Class)]
	if !ok {
		return false
	}
	return slices.ContainsFunc(cv.candidates, func(c candidate) bool { return c.node == nid })
}

func (p *Problem) isRoot(c egraph.ClassID) bool {
	_, found := slices.BinarySearch(p.roots, c)
	return found
}

func (p *Problem) addRoot(c egraph.ClassID) bool {
	i, found := slices.BinarySearch(p.roots, c)
	if found {
		return false
	}
	p.roots = slices.Insert(p.roots, i, c)
	return true
}

// retainClasses drops every class for which keep returns false.
func (p *Problem) retainClasses(keep func(egraph.ClassID) bool) int {
	before := len(p.order)
	p.order = slices.DeleteFunc(p.order, func(c egraph.ClassID) bool {
		if keep(c) {
			return false
		}
		delete(p.classes, c)
		return true
	})
	return before - len(p.order)
}

// childToParents maps each referenced class to the classes whose candidates
// reference it, both in problem order.
func (p *Problem) childToParents() (children []egraph.ClassID, parents map[egraph.ClassID][]egraph.ClassID) {
	parents = make(map[egraph.ClassID][]egraph.ClassID)
	for _, id := range p.order {
		for _, cand := range p.classes[id].candidates {
			for _, child := range cand.children {
				ps, seen := parents[child]
				if !seen {
					children = append(children, child)
				}
				if !slices.Contains(ps, id) {
					parents[child] = append(ps, id)
				}
			}
		}
	}
	return children, parents
}

type singleParent struct {
	child, parent egraph.ClassID
}

// classesWithSingleParent lists the classes referenced from exactly one
// other class.
func (p *Problem) classesWithSingleParent() []singleParent {
	children, parents := p.childToParents()
	var out []singleParent
	for _, child := range children {
		if ps := parents[child]; len(ps) == 1 {
			out = append(out, singleParent{child: child, parent: ps[0]})
		}
	}
	return out
}

// String renders the problem one class per line, for debugging and tests.
func (p *Problem) String() string {
	var sb strings.Builder
	for _, id := range p.order {
		fmt.Fprintf(&sb, "%s:", id)
		for _, cand := range p.classes[id].candidates {
			fmt.Fprintf(&sb, " %s(%g)%v", cand.node, cand.cost, cand.children)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
