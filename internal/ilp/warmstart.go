package ilp

import (
	"bufio"
	"fmt"
	"io"
	"slices"

	"github.com/roach88/egx/internal/egraph"
	"github.com/roach88/egx/internal/extract"
)

// WriteWarmStart writes a start file from a heuristic extraction: "N_c_n 1"
// for every chosen node reachable from roots and "A_c 0" for every other
// chosen class. Variables the model does not contain are skipped.
func WriteWarmStart(w io.Writer, m *Model, g *egraph.EGraph, roots []egraph.ClassID, res *extract.Result) error {
	active := make(map[egraph.NodeID]bool)
	for _, nid := range res.ActiveNodes(g, roots) {
		active[nid] = true
	}
	binaries := make(map[string]bool, len(m.Binaries))
	for _, v := range m.Binaries {
		binaries[v] = true
	}

	bw := bufio.NewWriter(w)
	for _, choice := range res.Choices() {
		if active[choice.Node] {
			if v := NodeVar(choice.Node); hasNodeVar(m, v) {
				fmt.Fprintf(bw, "%s 1\n", v)
			}
			continue
		}
		if v := ClassVar(choice.Class); binaries[v] {
			fmt.Fprintf(bw, "%s 0\n", v)
		}
	}
	return bw.Flush()
}

func hasNodeVar(m *Model, v string) bool {
	_, ok := m.Nodes[v]
	return ok
}

// ZeroNodes returns the nodes whose cached cost exceeds bound times the
// cheapest cached cost in their class, sorted. Nodes without a cached cost
// are never returned.
func ZeroNodes(nodeCost map[egraph.NodeID]float64, bound float64) []egraph.NodeID {
	if bound <= 0 {
		return nil
	}
	cheapest := make(map[uint32]float64)
	for nid, c := range nodeCost {
		if m, ok := cheapest[nid.Class]; !ok || c < m {
			cheapest[nid.Class] = c
		}
	}
	var out []egraph.NodeID
	for nid, c := range nodeCost {
		if c > cheapest[nid.Class]*bound {
			out = append(out, nid)
		}
	}
	slices.SortFunc(out, egraph.NodeID.Compare)
	return out
}

// WriteZeroNodes writes one "N_c_n 0" line per node.
func WriteZeroNodes(w io.Writer, nodes []egraph.NodeID) error {
	bw := bufio.NewWriter(w)
	for _, nid := range nodes {
		fmt.Fprintf(bw, "%s 0\n", NodeVar(nid))
	}
	return bw.Flush()
}
