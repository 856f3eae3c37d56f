package extract

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"slices"

	"github.com/roach88/egx/internal/egraph"
)

// DefaultGreedyPasses is the number of outer passes the parallel greedy-DAG
// extractor makes. The first pass seeds the queue with leaves, later passes
// with every node.
const DefaultGreedyPasses = 2

// costSet is the greedy-DAG cost of choosing a node: the set of classes its
// sub-DAG needs, each paid once, and the sum of those payments.
type costSet struct {
	costs  map[egraph.ClassID]float64
	total  float64
	choice egraph.NodeID
}

var infiniteCostSet = &costSet{total: Infinity}

// calculateCostSet computes the cost set of n given the committed cost sets
// of its child classes. lookup must return a set for every child class; the
// caller checks that first. best is the class's current total and enables an
// early exit for single-child nodes.
func calculateCostSet(n *egraph.Node, lookup func(egraph.ClassID) (*costSet, bool), best float64) *costSet {
	if n.IsLeaf() {
		return &costSet{
			costs:  map[egraph.ClassID]float64{n.EClass: n.Cost},
			total:  n.Cost,
			choice: n.ID,
		}
	}

	childClasses := slices.Clone(n.Children)
	slices.Sort(childClasses)
	childClasses = slices.Compact(childClasses)

	childSets := make([]*costSet, 0, len(childClasses))
	for _, c := range childClasses {
		cs, ok := lookup(c)
		if !ok {
			return infiniteCostSet
		}
		childSets = append(childSets, cs)
	}

	if slices.Contains(childClasses, n.EClass) ||
		(len(childSets) == 1 && n.Cost+childSets[0].total > best) {
		// Cannot beat the current choice.
		return infiniteCostSet
	}

	biggest := 0
	for i, cs := range childSets {
		if len(cs.costs) > len(childSets[biggest].costs) {
			biggest = i
		}
	}

	merged := make(map[egraph.ClassID]float64, len(childSets[biggest].costs)+1)
	for c, v := range childSets[biggest].costs {
		merged[c] = v
	}
	for i, cs := range childSets {
		if i == biggest {
			continue
		}
		for c, v := range cs.costs {
			if _, present := merged[c]; !present {
				merged[c] = v
			}
		}
	}

	if _, cyclic := merged[n.EClass]; cyclic {
		return infiniteCostSet
	}
	merged[n.EClass] = n.Cost

	return &costSet{costs: merged, total: sumInClassOrder(merged), choice: n.ID}
}

// sumInClassOrder adds the values in ascending class order so the total is
// the same however the map was built.
func sumInClassOrder(m map[egraph.ClassID]float64) float64 {
	total := 0.0
	for _, c := range sortedKeys(m) {
		total += m[c]
	}
	return total
}

func childrenReady[V any](n *egraph.Node, lookup func(egraph.ClassID) (V, bool)) bool {
	for _, c := range n.Children {
		if _, ok := lookup(c); !ok {
			return false
		}
	}
	return true
}

// GreedyDAG approximates minimum DAG cost. Each class keeps the cost set of
// its best node, where a shared sub-term is paid once.
type GreedyDAG struct{}

// Extract implements Extractor.
func (GreedyDAG) Extract(ctx context.Context, g *egraph.EGraph, roots []egraph.ClassID) (*Result, error) {
	parents := buildParentIndex(g)
	costs := make(map[egraph.ClassID]*costSet, g.NumClasses())
	lookup := func(c egraph.ClassID) (*costSet, bool) {
		cs, ok := costs[c]
		return cs, ok
	}

	result := NewResult()
	q := newUniqueQueue[egraph.NodeID]()
	q.Extend(leaves(g))

	for pops := 0; ; pops++ {
		if pops%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		nid, ok := q.Pop()
		if !ok {
			break
		}
		n := g.Node(nid)
		if !childrenReady(n, lookup) {
			continue
		}

		prev := Infinity
		if cs, ok := costs[n.EClass]; ok {
			prev = cs.total
		}
		cs := calculateCostSet(n, lookup, prev)
		result.Stats.Evaluations++
		recordNodeCost(result, nid, cs.total)

		if cs.total < prev {
			costs[n.EClass] = cs
			result.Stats.Commits++
			q.Extend(parents[n.EClass])
		}
	}

	for _, c := range sortedKeys(costs) {
		result.Choose(c, costs[c].choice)
	}
	result.Stats.Passes = 1
	return breakCycles(ctx, g, roots, result, "greedy-dag")
}

// ParallelGreedyDAG is GreedyDAG with batched parallel evaluation and several
// outer passes over the classes in shuffled order. It also fills
// Result.NodeCost with the best total seen for every node.
type ParallelGreedyDAG struct {
	Workers   int
	BatchSize int
	Passes    int    // <= 0 uses DefaultGreedyPasses
	Seed      uint64 // shuffle seed; 0 picks one at random
}

type costSetCandidate struct {
	set   *costSet
	class egraph.ClassID
	node  egraph.NodeID
	ready bool
}

// Extract implements Extractor.
func (e ParallelGreedyDAG) Extract(ctx context.Context, g *egraph.EGraph, roots []egraph.ClassID) (*Result, error) {
	passes := e.Passes
	if passes <= 0 {
		passes = DefaultGreedyPasses
	}
	batchSize := e.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	seed := e.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	parents := buildParentIndex(g)
	var costs costMap[*costSet]
	lookup := costs.Load

	result := NewResult()
	q := newBatchQueue[egraph.NodeID]()

	for pass := 0; pass < passes; pass++ {
		classes := g.Classes()
		rng.Shuffle(len(classes), func(i, j int) { classes[i], classes[j] = classes[j], classes[i] })
		for _, class := range classes {
			for _, nid := range class.Nodes {
				if pass == 0 && !g.Node(nid).IsLeaf() {
					continue
				}
				q.Extend([]egraph.NodeID{nid})
			}
		}

		for {
			batch := q.Drain(batchSize)
			if len(batch) == 0 {
				break
			}
			result.Stats.Batches++

			cands, err := batchMap(ctx, batch, e.Workers, func(nid egraph.NodeID) costSetCandidate {
				n := g.Node(nid)
				if !childrenReady(n, lookup) {
					return costSetCandidate{class: n.EClass, node: nid}
				}
				prev := Infinity
				if cs, ok := lookup(n.EClass); ok {
					prev = cs.total
				}
				return costSetCandidate{
					set:   calculateCostSet(n, lookup, prev),
					class: n.EClass,
					node:  nid,
					ready: true,
				}
			})
			if err != nil {
				return nil, err
			}

			best := make(map[egraph.ClassID]*costSet)
			for _, c := range cands {
				if !c.ready {
					continue
				}
				result.Stats.Evaluations++
				recordNodeCost(result, c.node, c.set.total)
				if c.set.total == Infinity {
					continue
				}
				cur, ok := best[c.class]
				if !ok || c.set.total < cur.total || (c.set.total == cur.total && c.node.Less(cur.choice)) {
					best[c.class] = c.set
				}
			}

			for _, class := range sortedKeys(best) {
				cs := best[class]
				if prev, ok := costs.Load(class); ok && cs.total >= prev.total {
					continue
				}
				if stale(g.Node(cs.choice), lookup) {
					// A child committed earlier in this batch now depends on
					// class; re-evaluate against the fresh sets.
					q.Extend([]egraph.NodeID{cs.choice})
					continue
				}
				costs.Store(class, cs)
				result.Stats.Commits++
				q.Extend(parents[class])
			}
		}
	}

	final := make(map[egraph.ClassID]egraph.NodeID, costs.Len())
	costs.Range(func(c egraph.ClassID, cs *costSet) bool {
		final[c] = cs.choice
		return true
	})
	for _, c := range sortedKeys(final) {
		result.Choose(c, final[c])
	}
	result.Stats.Passes = passes
	return breakCycles(ctx, g, roots, result, "greedy-dag-mt")
}

// breakCycles returns result unless its choices reachable from roots form a
// cycle. Cost sets are snapshots, so a class can keep a set that predates a
// later change below it, and the union of per-class choices can then loop.
// In that case the bottom-up extraction, which never loops, is returned.
func breakCycles(ctx context.Context, g *egraph.EGraph, roots []egraph.ClassID, result *Result, name string) (*Result, error) {
	if len(roots) == 0 || len(result.FindCycles(g, roots)) == 0 {
		return result, nil
	}
	slog.Warn("greedy choices form a cycle, falling back to bottom-up",
		"extractor", name,
		"cycle", FormatCycle(result.FindShortestCycle(g, roots)),
	)
	fallback, err := relax(ctx, g, sumEval)
	if err != nil {
		return nil, err
	}
	fallback.NodeCost = result.NodeCost
	fallback.Stats.Evaluations += result.Stats.Evaluations
	fallback.Stats.Commits += result.Stats.Commits
	fallback.Stats.Batches += result.Stats.Batches
	fallback.Stats.Passes += result.Stats.Passes
	return fallback, nil
}

// stale reports whether a child class of n now holds a cost set that
// contains n's own class. The candidate was built from older child sets, so
// committing it could close a cycle through a set written earlier in the same
// batch. Re-evaluation against the current sets yields Infinity instead.
func stale(n *egraph.Node, lookup func(egraph.ClassID) (*costSet, bool)) bool {
	for _, c := range n.Children {
		cur, ok := lookup(c)
		if !ok {
			continue
		}
		if _, dependsOnClass := cur.costs[n.EClass]; dependsOnClass {
			return true
		}
	}
	return false
}
