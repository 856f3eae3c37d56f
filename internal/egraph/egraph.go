package egraph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

// DefaultCost is the cost given to a node that does not declare one.
const DefaultCost = 1.0

// Node is a single operator application. Children name e-classes, never
// specific nodes.
type Node struct {
	Op       string
	ID       NodeID
	Children []ClassID
	EClass   ClassID
	Cost     float64
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Class is an equivalence class of nodes. Nodes are listed in the order they
// were added to the graph.
type Class struct {
	ID    ClassID
	Nodes []NodeID
}

// EGraph is an immutable e-graph. Classes are grouped once when the graph is
// built; every accessor afterwards is read-only and safe for concurrent use.
type EGraph struct {
	nodes     []Node
	nodeIndex map[NodeID]int

	classes    []Class
	classIndex map[ClassID]int

	roots []ClassID

	// classData is carried through untouched; extraction never reads it.
	classData json.RawMessage
}

// Builder accumulates nodes and roots before the class index is built.
type Builder struct {
	nodes     []Node
	nodeIndex map[NodeID]int
	roots     []ClassID
	classData json.RawMessage
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{nodeIndex: make(map[NodeID]int)}
}

// Add appends a node. Node ids must be unique and the id's class ordinal
// must match the node's e-class.
func (b *Builder) Add(n Node) error {
	if _, exists := b.nodeIndex[n.ID]; exists {
		return &LoadError{Code: ErrCodeDuplicateNode, Message: fmt.Sprintf("duplicate node %s", n.ID)}
	}
	if n.ID.Class != uint32(n.EClass) {
		return &LoadError{
			Code:    ErrCodeClassMismatch,
			Message: fmt.Sprintf("node %s is declared in e-class %s", n.ID, n.EClass),
		}
	}
	if math.IsNaN(n.Cost) || math.IsInf(n.Cost, 0) || n.Cost < 0 {
		return &LoadError{
			Code:    ErrCodeInvalidCost,
			Message: fmt.Sprintf("node %s has invalid cost %v", n.ID, n.Cost),
		}
	}
	n.Children = slices.Clone(n.Children)
	b.nodeIndex[n.ID] = len(b.nodes)
	b.nodes = append(b.nodes, n)
	return nil
}

// AddRoot marks a class as a root.
func (b *Builder) AddRoot(c ClassID) {
	b.roots = append(b.roots, c)
}

// SetClassData attaches the document's opaque per-class metadata. A JSON
// null or empty value clears it.
func (b *Builder) SetClassData(data json.RawMessage) {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		b.classData = nil
		return
	}
	b.classData = slices.Clone(data)
}

// Build groups nodes into classes and checks that every child and root
// reference names a class that has at least one node.
func (b *Builder) Build() (*EGraph, error) {
	g := &EGraph{
		nodes:      b.nodes,
		nodeIndex:  b.nodeIndex,
		classIndex: make(map[ClassID]int),
		roots:      slices.Clone(b.roots),
		classData:  b.classData,
	}

	for _, n := range g.nodes {
		idx, ok := g.classIndex[n.EClass]
		if !ok {
			idx = len(g.classes)
			g.classIndex[n.EClass] = idx
			g.classes = append(g.classes, Class{ID: n.EClass})
		}
		g.classes[idx].Nodes = append(g.classes[idx].Nodes, n.ID)
	}

	for _, n := range g.nodes {
		for _, c := range n.Children {
			if _, ok := g.classIndex[c]; !ok {
				return nil, &LoadError{
					Code:    ErrCodeMissingClass,
					Message: fmt.Sprintf("node %s references e-class %s which has no nodes", n.ID, c),
				}
			}
		}
	}
	for _, r := range g.roots {
		if _, ok := g.classIndex[r]; !ok {
			return nil, &LoadError{
				Code:    ErrCodeMissingClass,
				Message: fmt.Sprintf("root e-class %s has no nodes", r),
			}
		}
	}

	// Builder must not be reused once its storage is shared with the graph.
	b.nodes, b.nodeIndex, b.roots = nil, make(map[NodeID]int), nil
	return g, nil
}

// Roots returns the root classes in declaration order.
func (g *EGraph) Roots() []ClassID {
	return slices.Clone(g.roots)
}

// ClassData returns the opaque per-class metadata the graph was loaded with,
// or nil.
func (g *EGraph) ClassData() json.RawMessage {
	return slices.Clone(g.classData)
}

// NumNodes returns the number of nodes.
func (g *EGraph) NumNodes() int { return len(g.nodes) }

// NumClasses returns the number of classes.
func (g *EGraph) NumClasses() int { return len(g.classes) }

// Nodes returns every node in insertion order. The returned nodes must not
// be modified.
func (g *EGraph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	for i := range g.nodes {
		out[i] = &g.nodes[i]
	}
	return out
}

// Classes returns every class in order of first appearance.
func (g *EGraph) Classes() []*Class {
	out := make([]*Class, len(g.classes))
	for i := range g.classes {
		out[i] = &g.classes[i]
	}
	return out
}

// Node returns the node with the given id. It panics if the id is unknown;
// use LookupNode for ids that come from outside the graph.
func (g *EGraph) Node(id NodeID) *Node {
	n, ok := g.LookupNode(id)
	if !ok {
		panic(fmt.Sprintf("egraph: unknown node %s", id))
	}
	return n
}

// LookupNode returns the node with the given id, if any.
func (g *EGraph) LookupNode(id NodeID) (*Node, bool) {
	idx, ok := g.nodeIndex[id]
	if !ok {
		return nil, false
	}
	return &g.nodes[idx], true
}

// Class returns the class with the given id. It panics if the id is unknown.
func (g *EGraph) Class(id ClassID) *Class {
	c, ok := g.LookupClass(id)
	if !ok {
		panic(fmt.Sprintf("egraph: unknown e-class %s", id))
	}
	return c
}

// LookupClass returns the class with the given id, if any.
func (g *EGraph) LookupClass(id ClassID) (*Class, bool) {
	idx, ok := g.classIndex[id]
	if !ok {
		return nil, false
	}
	return &g.classes[idx], true
}

// ClassOf returns the class containing the node.
func (g *EGraph) ClassOf(id NodeID) ClassID {
	return g.Node(id).EClass
}

// ClassIDs returns every class id sorted ascending.
func (g *EGraph) ClassIDs() []ClassID {
	ids := make([]ClassID, len(g.classes))
	for i := range g.classes {
		ids[i] = g.classes[i].ID
	}
	slices.Sort(ids)
	return ids
}
