package extract

import "github.com/roach88/egx/internal/egraph"

// parentIndex maps each class to the nodes that list it as a child. A node
// that names the same child twice appears once per mention; queues dedupe.
type parentIndex map[egraph.ClassID][]egraph.NodeID

func buildParentIndex(g *egraph.EGraph) parentIndex {
	parents := make(parentIndex, g.NumClasses())
	for _, c := range g.Classes() {
		parents[c.ID] = nil
	}
	for _, n := range g.Nodes() {
		for _, child := range n.Children {
			parents[child] = append(parents[child], n.ID)
		}
	}
	return parents
}

// leaves returns the childless nodes in graph order.
func leaves(g *egraph.EGraph) []egraph.NodeID {
	var out []egraph.NodeID
	for _, n := range g.Nodes() {
		if n.IsLeaf() {
			out = append(out, n.ID)
		}
	}
	return out
}
