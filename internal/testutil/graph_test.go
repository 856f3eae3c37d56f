package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/egx/internal/egraph"
)

func TestGraph_AssignsOrdinalsPerClass(t *testing.T) {
	g := Graph(t, []egraph.ClassID{0},
		Op(0, "f", 1, 1),
		Leaf(0, "a", 3),
		Leaf(1, "b", 1),
	)

	assert.Equal(t, []egraph.NodeID{{Class: 0, Index: 0}, {Class: 0, Index: 1}}, g.Class(0).Nodes)
	assert.Equal(t, []egraph.NodeID{{Class: 1, Index: 0}}, g.Class(1).Nodes)
}

func TestOptimalDAG_SharedChildCountedOnce(t *testing.T) {
	// r -> {x, y}, x -> z, y -> z. Alternative leaf for r costs 5.
	g := Graph(t, []egraph.ClassID{0},
		Op(0, "r", 1, 1, 2),
		Leaf(0, "alt", 5),
		Op(1, "x", 1, 3),
		Op(2, "y", 1, 3),
		Leaf(3, "z", 1),
	)

	choices, cost, ok := OptimalDAG(g, g.Roots(), nil)
	require.True(t, ok)
	assert.Equal(t, 4.0, cost)
	assert.Equal(t, egraph.NodeID{Class: 0, Index: 0}, choices[0])
}

func TestOptimalDAG_NoAcyclicSelection(t *testing.T) {
	g := Graph(t, []egraph.ClassID{0},
		Op(0, "f", 1, 1),
		Op(1, "g", 1, 0),
	)

	_, _, ok := OptimalDAG(g, g.Roots(), nil)
	assert.False(t, ok)
}
