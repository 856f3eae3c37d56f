package ilp

import (
	"log/slog"
	"math"
	"slices"

	"github.com/roach88/egx/internal/egraph"
)

// Epsilon is the slack allowed when comparing a candidate cost against the
// heuristic upper bound.
const Epsilon = 1e-5

// maxPullUpIterations bounds the fixed-point loops of the pull-up passes.
const maxPullUpIterations = 10

// PassStat records what one pass did in one round.
type PassStat struct {
	Round   int    `json:"round"`
	Pass    string `json:"pass"`
	Changed int    `json:"changed"`
}

// pass is one reduction step. run returns how many candidates, classes or
// links it changed.
type pass struct {
	name    string
	enabled func(Config) bool
	run     func(p *Problem, upperBound float64) int
}

var pipeline = []pass{
	{"remove_self_loops", func(c Config) bool { return c.RemoveSelfLoops }, func(p *Problem, _ float64) int { return p.removeSelfLoops() }},
	{"remove_high_cost", func(c Config) bool { return c.RemoveHighCost }, (*Problem).removeHighCost},
	{"remove_subsumed", func(c Config) bool { return c.RemoveSubsumed }, func(p *Problem, _ float64) int { return p.removeSubsumed() }},
	{"remove_unreachable", func(c Config) bool { return c.RemoveUnreachable }, func(p *Problem, _ float64) int { return p.removeUnreachable() }},
	{"pull_up_single_parent", func(c Config) bool { return c.PullUpSingleParent }, func(p *Problem, _ float64) int { return p.pullUpSingleParent() }},
	{"pull_up_costs", func(c Config) bool { return c.PullUpCosts }, func(p *Problem, _ float64) int { return p.pullUpCosts() }},
	{"remove_single_zero_cost", func(c Config) bool { return c.RemoveSingleZeroCost }, func(p *Problem, _ float64) int { return p.removeSingleZeroCost() }},
	{"find_extra_roots", func(c Config) bool { return c.FindExtraRoots }, func(p *Problem, _ float64) int { return p.findExtraRoots() }},
	{"remove_empty_classes", func(c Config) bool { return c.RemoveEmptyClasses }, func(p *Problem, _ float64) int { return p.removeEmptyClasses() }},
}

// PassNames lists the reduction passes in the order they run.
func PassNames() []string {
	names := make([]string, len(pipeline))
	for i, ps := range pipeline {
		names[i] = ps.name
	}
	return names
}

// Reduce runs the enabled passes for cfg.Rounds rounds. upperBound is the
// DAG cost of a known valid extraction; pass +Inf when there is none.
func (p *Problem) Reduce(cfg Config, upperBound float64) []PassStat {
	var stats []PassStat
	for round := 0; round < cfg.Rounds; round++ {
		for _, ps := range pipeline {
			if !ps.enabled(cfg) {
				continue
			}
			n := ps.run(p, upperBound)
			stats = append(stats, PassStat{Round: round, Pass: ps.name, Changed: n})
			slog.Info("ilp pass",
				"round", round,
				"pass", ps.name,
				"changed", n,
				"classes", p.NumClasses(),
				"candidates", p.NumCandidates(),
			)
		}
	}
	return stats
}

// removeSelfLoops drops candidates that reference their own class, or the
// root when there is exactly one.
func (p *Problem) removeSelfLoops() int {
	removed := 0
	for _, id := range p.order {
		cv := p.classes[id]
		before := len(cv.candidates)
		cv.candidates = slices.DeleteFunc(cv.candidates, func(c candidate) bool {
			return c.references(id) || (len(p.roots) == 1 && c.references(p.roots[0]))
		})
		removed += before - len(cv.candidates)
	}
	return removed
}

// removeHighCost drops candidates that alone cost more than any improvement
// on upperBound allows. Every root pays at least its cheapest member, so a
// non-root candidate above upperBound minus those floors cannot be part of a
// solution at most as good as upperBound. A root candidate gets its own
// floor back.
func (p *Problem) removeHighCost(upperBound float64) int {
	if math.IsInf(upperBound, 1) || math.IsNaN(upperBound) {
		return 0
	}
	floors := 0.0
	for _, r := range p.roots {
		if cv, ok := p.classes[r]; ok && len(cv.candidates) > 0 {
			floors += cv.minCost()
		}
	}

	removed := 0
	for _, id := range p.order {
		cv := p.classes[id]
		limit := upperBound - floors + Epsilon
		if p.isRoot(id) {
			limit += cv.minCost()
		}
		before := len(cv.candidates)
		cv.candidates = slices.DeleteFunc(cv.candidates, func(c candidate) bool {
			return c.cost > limit
		})
		removed += before - len(cv.candidates)
	}
	return removed
}

// removeSubsumed drops a candidate when another candidate of the same class
// costs no more and needs a subset of its child classes.
func (p *Problem) removeSubsumed() int {
	removed := 0
	for _, id := range p.order {
		cv := p.classes[id]
		sorted := slices.Clone(cv.candidates)
		slices.SortStableFunc(sorted, func(a, b candidate) int {
			if d := len(a.children) - len(b.children); d != 0 {
				return d
			}
			switch {
			case a.cost < b.cost:
				return -1
			case a.cost > b.cost:
				return 1
			}
			return 0
		})

		dropped := make(map[egraph.NodeID]bool)
		for i := 0; i < len(sorted); i++ {
			for j := len(sorted) - 1; j > i; j-- {
				if sorted[i].cost <= sorted[j].cost && sorted[i].subsetOf(&sorted[j]) {
					dropped[sorted[j].node] = true
					sorted = slices.Delete(sorted, j, j+1)
				}
			}
		}
		if len(dropped) == 0 {
			continue
		}
		cv.candidates = slices.DeleteFunc(cv.candidates, func(c candidate) bool { return dropped[c.node] })
		removed += len(dropped)
	}
	return removed
}

// removeUnreachable drops classes no root can reach through the remaining
// candidates.
func (p *Problem) removeUnreachable() int {
	reached := make(map[egraph.ClassID]bool, len(p.order))
	todo := slices.Clone(p.roots)
	for len(todo) > 0 {
		c := todo[len(todo)-1]
		todo = todo[:len(todo)-1]
		if reached[c] {
			continue
		}
		reached[c] = true
		cv, ok := p.classes[c]
		if !ok {
			continue
		}
		for _, cand := range cv.candidates {
			todo = append(todo, cand.children...)
		}
	}
	return p.retainClasses(func(c egraph.ClassID) bool { return reached[c] })
}

// pullUpSingleParent splices the child classes of a single-member class
// into the one parent candidate that references it, then clears the
// member's own children. Chains collapse over repeated iterations.
func (p *Problem) pullUpSingleParent() int {
	total := 0
	for iter := 0; iter < maxPullUpIterations; iter++ {
		count := 0
		for _, sp := range p.classesWithSingleParent() {
			if sp.child == sp.parent || p.isRoot(sp.child) {
				continue
			}
			child, okc := p.classes[sp.child]
			parent, okp := p.classes[sp.parent]
			if !okc || !okp || len(child.candidates) != 1 || len(child.candidates[0].children) == 0 {
				continue
			}

			at := -1
			found := 0
			for i := range parent.candidates {
				if parent.candidates[i].references(sp.child) {
					at = i
					found++
				}
			}
			if found != 1 {
				continue
			}

			for _, grandchild := range child.candidates[0].children {
				parent.candidates[at].addChild(grandchild)
			}
			child.candidates[0].children = nil
			count++
		}
		total += count
		if count == 0 {
			break
		}
	}
	return total
}

// pullUpCosts moves the cheapest member cost of a single-parent class onto
// every parent candidate that references it. The class can only be active
// through those candidates, so every solution pays the same total.
func (p *Problem) pullUpCosts() int {
	moved := 0
	singles := p.classesWithSingleParent()
	for iter, changed := 0, true; changed && iter < maxPullUpIterations; iter++ {
		changed = false
		for _, sp := range singles {
			if sp.child == sp.parent || p.isRoot(sp.child) {
				continue
			}
			child, okc := p.classes[sp.child]
			parent, okp := p.classes[sp.parent]
			if !okc || !okp || len(child.candidates) == 0 {
				continue
			}
			m := child.minCost()
			if m <= 0 {
				continue
			}
			changed = true
			moved++
			for i := range child.candidates {
				child.candidates[i].cost -= m
			}
			for i := range parent.candidates {
				if parent.candidates[i].references(sp.child) {
					parent.candidates[i].cost += m
				}
			}
		}
	}
	return moved
}

// removeSingleZeroCost decides every non-root class whose only candidate is
// free and needs nothing, then erases references to it.
func (p *Problem) removeSingleZeroCost() int {
	zero := make(map[egraph.ClassID]bool)
	for _, id := range p.order {
		cv := p.classes[id]
		if len(cv.candidates) == 1 && len(cv.candidates[0].children) == 0 &&
			cv.candidates[0].cost == 0 && !p.isRoot(id) {
			zero[id] = true
		}
	}
	if len(zero) == 0 {
		return 0
	}

	for _, id := range p.order {
		cv := p.classes[id]
		for i := range cv.candidates {
			cv.candidates[i].children = slices.DeleteFunc(cv.candidates[i].children, func(c egraph.ClassID) bool {
				return zero[c]
			})
		}
	}
	for id := range zero {
		p.decided[id] = p.classes[id].candidates[0].node
	}
	return p.retainClasses(func(c egraph.ClassID) bool { return !zero[c] })
}

// findExtraRoots promotes to root every class referenced by all candidates
// of a root. Roots found this way are examined in the same pass.
func (p *Problem) findExtraRoots() int {
	extra := 0
	queue := slices.Clone(p.roots)
	for i := 0; i < len(queue); i++ {
		cv, ok := p.classes[queue[i]]
		if !ok || len(cv.candidates) == 0 {
			continue
		}
		common := slices.Clone(cv.candidates[0].children)
		for _, cand := range cv.candidates[1:] {
			common = slices.DeleteFunc(common, func(c egraph.ClassID) bool { return !cand.references(c) })
		}
		for _, c := range common {
			if p.addRoot(c) {
				queue = append(queue, c)
				extra++
			}
		}
	}
	return extra
}

// removeEmptyClasses drops every candidate that references a class with no
// candidates. That can empty its own class, so removal cascades.
func (p *Problem) removeEmptyClasses() int {
	_, parents := p.childToParents()

	var queue []egraph.ClassID
	for _, id := range p.order {
		if len(p.classes[id].candidates) == 0 {
			queue = append(queue, id)
		}
	}

	removed := 0
	done := make(map[egraph.ClassID]bool)
	for len(queue) > 0 {
		empty := queue[0]
		queue = queue[1:]
		if done[empty] {
			continue
		}
		done[empty] = true

		for _, parent := range parents[empty] {
			cv, ok := p.classes[parent]
			if !ok {
				continue
			}
			before := len(cv.candidates)
			cv.candidates = slices.DeleteFunc(cv.candidates, func(c candidate) bool { return c.references(empty) })
			removed += before - len(cv.candidates)
			if before > 0 && len(cv.candidates) == 0 {
				queue = append(queue, parent)
			}
		}
	}
	return removed
}
