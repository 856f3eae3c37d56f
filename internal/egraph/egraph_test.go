package egraph_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/egx/internal/egraph"
	"github.com/roach88/egx/internal/testutil"
)

func TestParseNodeID(t *testing.T) {
	id, err := egraph.ParseNodeID("12.3")
	require.NoError(t, err)
	assert.Equal(t, egraph.NodeID{Class: 12, Index: 3}, id)
	assert.Equal(t, "12.3", id.String())

	for _, bad := range []string{"", "12", "a.b", "1.2.3", "-1.0", "4294967296.0"} {
		t.Run(bad, func(t *testing.T) {
			_, err := egraph.ParseNodeID(bad)
			assert.Error(t, err)
		})
	}
}

func TestNodeID_Ordering(t *testing.T) {
	a := egraph.NodeID{Class: 1, Index: 9}
	b := egraph.NodeID{Class: 2, Index: 0}
	c := egraph.NodeID{Class: 2, Index: 1}

	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.False(t, c.Less(a))
	assert.Equal(t, 0, b.Compare(b))
	assert.Equal(t, -1, a.Compare(c))
	assert.Equal(t, 1, c.Compare(a))
}

func TestBuilder_GroupsClassesInFirstAppearanceOrder(t *testing.T) {
	g := testutil.Graph(t, []egraph.ClassID{5},
		testutil.Op(5, "f", 1, 2),
		testutil.Leaf(2, "a", 1),
		testutil.Leaf(5, "b", 4),
	)

	classes := g.Classes()
	require.Len(t, classes, 2)
	assert.Equal(t, egraph.ClassID(5), classes[0].ID)
	assert.Equal(t, egraph.ClassID(2), classes[1].ID)
	assert.Len(t, classes[0].Nodes, 2)
	assert.Equal(t, 3, g.NumNodes())
	assert.Equal(t, 2, g.NumClasses())
	assert.Equal(t, []egraph.ClassID{2, 5}, g.ClassIDs())
	assert.Equal(t, egraph.ClassID(5), g.ClassOf(egraph.NodeID{Class: 5, Index: 1}))
}

func TestBuilder_Rejects(t *testing.T) {
	tests := []struct {
		name string
		node egraph.Node
		code string
	}{
		{
			name: "class mismatch",
			node: egraph.Node{Op: "x", ID: egraph.NodeID{Class: 1, Index: 0}, EClass: 2, Cost: 1},
			code: egraph.ErrCodeClassMismatch,
		},
		{
			name: "negative cost",
			node: egraph.Node{Op: "x", ID: egraph.NodeID{Class: 1, Index: 0}, EClass: 1, Cost: -1},
			code: egraph.ErrCodeInvalidCost,
		},
		{
			name: "nan cost",
			node: egraph.Node{Op: "x", ID: egraph.NodeID{Class: 1, Index: 0}, EClass: 1, Cost: math.NaN()},
			code: egraph.ErrCodeInvalidCost,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := egraph.NewBuilder().Add(tt.node)
			var le *egraph.LoadError
			require.True(t, errors.As(err, &le))
			assert.Equal(t, tt.code, le.Code)
		})
	}
}

func TestBuilder_RejectsDuplicateNode(t *testing.T) {
	b := egraph.NewBuilder()
	n := egraph.Node{Op: "x", ID: egraph.NodeID{Class: 0, Index: 0}, EClass: 0, Cost: 1}
	require.NoError(t, b.Add(n))

	var le *egraph.LoadError
	require.True(t, errors.As(b.Add(n), &le))
	assert.Equal(t, egraph.ErrCodeDuplicateNode, le.Code)
}

func TestBuilder_RejectsDanglingReferences(t *testing.T) {
	t.Run("child", func(t *testing.T) {
		b := egraph.NewBuilder()
		require.NoError(t, b.Add(egraph.Node{Op: "f", ID: egraph.NodeID{}, Children: []egraph.ClassID{7}, Cost: 1}))
		_, err := b.Build()
		var le *egraph.LoadError
		require.True(t, errors.As(err, &le))
		assert.Equal(t, egraph.ErrCodeMissingClass, le.Code)
	})

	t.Run("root", func(t *testing.T) {
		b := egraph.NewBuilder()
		require.NoError(t, b.Add(egraph.Node{Op: "a", ID: egraph.NodeID{}, Cost: 1}))
		b.AddRoot(3)
		_, err := b.Build()
		var le *egraph.LoadError
		require.True(t, errors.As(err, &le))
		assert.Equal(t, egraph.ErrCodeMissingClass, le.Code)
	})
}

func TestEGraph_NodePanicsOnUnknownID(t *testing.T) {
	g := testutil.Graph(t, nil, testutil.Leaf(0, "a", 1))

	_, ok := g.LookupNode(egraph.NodeID{Class: 9, Index: 9})
	assert.False(t, ok)
	assert.Panics(t, func() { g.Node(egraph.NodeID{Class: 9, Index: 9}) })
	assert.Panics(t, func() { g.Class(9) })
}

func TestRemoveRedundant_KeepsCheapestPerChildMultiset(t *testing.T) {
	g := testutil.Graph(t, []egraph.ClassID{0},
		testutil.Op(0, "add", 3, 1, 2),
		testutil.Op(0, "add2", 2, 2, 1), // same multiset, cheaper
		testutil.Op(0, "dbl", 1, 1, 1),  // different multiset
		testutil.Leaf(1, "a", 1),
		testutil.Leaf(2, "b", 1),
	)

	out, removed := egraph.RemoveRedundant(g)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 4, out.NumNodes())

	_, ok := out.LookupNode(egraph.NodeID{Class: 0, Index: 0})
	assert.False(t, ok)
	_, ok = out.LookupNode(egraph.NodeID{Class: 0, Index: 1})
	assert.True(t, ok)
	assert.Equal(t, g.Roots(), out.Roots())
}

func TestDigest_IndependentOfNodeOrder(t *testing.T) {
	a := testutil.Graph(t, []egraph.ClassID{0},
		testutil.Op(0, "f", 1, 1),
		testutil.Leaf(1, "a", 1),
	)
	b := testutil.Graph(t, []egraph.ClassID{0},
		testutil.Leaf(1, "a", 1),
		testutil.Op(0, "f", 1, 1),
	)
	c := testutil.Graph(t, []egraph.ClassID{0},
		testutil.Op(0, "f", 2, 1),
		testutil.Leaf(1, "a", 1),
	)

	assert.Equal(t, egraph.Digest(a), egraph.Digest(b))
	assert.NotEqual(t, egraph.Digest(a), egraph.Digest(c))
	assert.Len(t, egraph.Digest(a), 64)
}

func TestDigest_NormalizesOperatorNames(t *testing.T) {
	// "é" precomposed vs "e" + combining acute accent.
	a := testutil.Graph(t, nil, testutil.Leaf(0, "caf\u00e9", 1))
	b := testutil.Graph(t, nil, testutil.Leaf(0, "cafe\u0301", 1))

	assert.Equal(t, egraph.Digest(a), egraph.Digest(b))
}
