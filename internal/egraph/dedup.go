package egraph

import (
	"slices"
	"strconv"
	"strings"
)

// RemoveRedundant returns a copy of g in which, inside every class, nodes
// with the same multiset of child classes are collapsed into the cheapest of
// them (the earliest on ties). The number of removed nodes is returned with
// the new graph. Operators are ignored: two nodes in one class with the same
// children are interchangeable for extraction.
func RemoveRedundant(g *EGraph) (*EGraph, int) {
	keep := make(map[NodeID]bool, len(g.nodes))
	for _, class := range g.classes {
		best := make(map[string]NodeID, len(class.Nodes))
		for _, id := range class.Nodes {
			key := childMultisetKey(g.Node(id).Children)
			cur, seen := best[key]
			if !seen || g.Node(id).Cost < g.Node(cur).Cost {
				best[key] = id
			}
		}
		for _, id := range best {
			keep[id] = true
		}
	}

	b := NewBuilder()
	removed := 0
	for _, n := range g.nodes {
		if !keep[n.ID] {
			removed++
			continue
		}
		// Add cannot fail: the node was already accepted into g.
		_ = b.Add(n)
	}
	for _, r := range g.roots {
		b.AddRoot(r)
	}
	b.SetClassData(g.classData)
	out, err := b.Build()
	if err != nil {
		// Every class keeps at least one node, so references stay valid.
		panic("egraph: dedup produced an invalid graph: " + err.Error())
	}
	return out, removed
}

func childMultisetKey(children []ClassID) string {
	sorted := slices.Clone(children)
	slices.Sort(sorted)
	var sb strings.Builder
	for i, c := range sorted {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatUint(uint64(c), 10))
	}
	return sb.String()
}
