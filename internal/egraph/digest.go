package egraph

import (
	"encoding/hex"
	"slices"
	"strconv"

	"golang.org/x/text/unicode/norm"
	"lukechampine.com/blake3"
)

// DomainGraph prefixes the content digest of an e-graph.
// Version suffix allows changing the canonical encoding later.
const DomainGraph = "egx/egraph/v1"

// Digest returns a content address for g. Two graphs with the same nodes and
// roots have the same digest regardless of node order in the source document.
// Operator names are NFC-normalized first so visually identical names hash
// identically.
//
// Format: BLAKE3(domain + 0x00 + canonical)
func Digest(g *EGraph) string {
	h := blake3.New(32, nil)
	h.Write([]byte(DomainGraph))
	h.Write([]byte{0x00})
	h.Write(canonicalBytes(g))
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalBytes renders one line per node, sorted by node id, followed by
// the sorted root list.
func canonicalBytes(g *EGraph) []byte {
	nodes := g.Nodes()
	slices.SortFunc(nodes, func(a, b *Node) int { return a.ID.Compare(b.ID) })

	var buf []byte
	for _, n := range nodes {
		buf = append(buf, n.ID.String()...)
		buf = append(buf, 0x1f)
		buf = strconv.AppendQuote(buf, norm.NFC.String(n.Op))
		buf = append(buf, 0x1f)
		buf = strconv.AppendFloat(buf, n.Cost, 'g', -1, 64)
		for _, c := range n.Children {
			buf = append(buf, 0x1f)
			buf = strconv.AppendUint(buf, uint64(c), 10)
		}
		buf = append(buf, '\n')
	}

	roots := slices.Clone(g.roots)
	slices.Sort(roots)
	roots = slices.Compact(roots)
	buf = append(buf, "roots"...)
	for _, r := range roots {
		buf = append(buf, 0x1f)
		buf = strconv.AppendUint(buf, uint64(r), 10)
	}
	return buf
}
