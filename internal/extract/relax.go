package extract

import (
	"context"
	"slices"

	"github.com/roach88/egx/internal/egraph"
)

// evalFunc computes a node's candidate cost from the current per-class
// costs. It must be a pure function of its inputs.
type evalFunc func(n *egraph.Node, lookup func(egraph.ClassID) (float64, bool)) float64

// sumEval is the tree cost of a node: its own cost plus each child class.
func sumEval(n *egraph.Node, lookup func(egraph.ClassID) (float64, bool)) float64 {
	return NodeSumCost(n, lookup)
}

// depthEval is the height of a node: one more than its deepest child class.
func depthEval(n *egraph.Node, lookup func(egraph.ClassID) (float64, bool)) float64 {
	deepest := 0.0
	for _, child := range n.Children {
		d, ok := lookup(child)
		if !ok {
			return Infinity
		}
		deepest = max(deepest, d)
	}
	return 1 + deepest
}

// cancelCheckInterval is how many queue pops pass between context checks in
// the sequential drivers.
const cancelCheckInterval = 1 << 14

// relax runs worklist relaxation to a fixed point. The queue starts with the
// leaves; whenever a node strictly improves its class, every parent of that
// class is queued again.
func relax(ctx context.Context, g *egraph.EGraph, eval evalFunc) (*Result, error) {
	parents := buildParentIndex(g)
	costs := make(map[egraph.ClassID]float64, g.NumClasses())
	lookup := func(c egraph.ClassID) (float64, bool) {
		v, ok := costs[c]
		return v, ok
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
		cand := eval(n, lookup)
		result.Stats.Evaluations++
		recordNodeCost(result, nid, cand)

		prev, known := costs[n.EClass]
		if !known {
			prev = Infinity
		}
		if cand < prev {
			costs[n.EClass] = cand
			result.Choose(n.EClass, nid)
			result.Stats.Commits++
			q.Extend(parents[n.EClass])
		}
	}
	result.Stats.Passes = 1
	return result, nil
}

type candidate struct {
	node  egraph.NodeID
	class egraph.ClassID
	cost  float64
}

// relaxParallel is relax with batched evaluation. Each batch is evaluated
// concurrently against a snapshot of the shared cost table, reduced to the
// best candidate per class, and then committed only where it still beats the
// table. Costs therefore never increase, and the fixed point matches relax.
func relaxParallel(ctx context.Context, g *egraph.EGraph, eval evalFunc, workers, batchSize int) (*Result, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	parents := buildParentIndex(g)
	var costs costMap[float64]
	lookup := costs.Load

	result := NewResult()
	q := newBatchQueue[egraph.NodeID]()
	q.Extend(leaves(g))

	for {
		batch := q.Drain(batchSize)
		if len(batch) == 0 {
			break
		}
		result.Stats.Batches++

		cands, err := batchMap(ctx, batch, workers, func(nid egraph.NodeID) candidate {
			n := g.Node(nid)
			return candidate{node: nid, class: n.EClass, cost: eval(n, lookup)}
		})
		if err != nil {
			return nil, err
		}
		result.Stats.Evaluations += int64(len(cands))

		best := make(map[egraph.ClassID]candidate)
		for _, c := range cands {
			recordNodeCost(result, c.node, c.cost)
			if c.cost == Infinity {
				continue
			}
			cur, ok := best[c.class]
			if !ok || c.cost < cur.cost || (c.cost == cur.cost && c.node.Less(cur.node)) {
				best[c.class] = c
			}
		}

		for _, class := range sortedKeys(best) {
			c := best[class]
			prev, known := costs.Load(class)
			if known && c.cost >= prev {
				continue
			}
			costs.Store(class, c.cost)
			result.Choose(class, c.node)
			result.Stats.Commits++
			q.Extend(parents[class])
		}
	}
	result.Stats.Passes = 1
	return result, nil
}

func recordNodeCost(r *Result, nid egraph.NodeID, cost float64) {
	if cost == Infinity {
		return
	}
	if prev, ok := r.NodeCost[nid]; !ok || cost < prev {
		r.NodeCost[nid] = cost
	}
}

func sortedKeys[V any](m map[egraph.ClassID]V) []egraph.ClassID {
	keys := make([]egraph.ClassID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
