package egraph_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/egx/internal/egraph"
)

const legacyDoc = `{
  "nodes": {
    "0.0": {"op": "+", "id": "0.0", "children": [1, 2], "eclass": 0, "cost": 1},
    "0.1": {"op": "x", "id": "0.1", "children": [], "eclass": 0, "cost": 7.5},
    "1.0": {"op": "a", "id": "1.0", "children": [], "eclass": 1, "cost": 1},
    "2.0": {"op": "b", "id": "2.0", "children": [], "eclass": 2, "cost": 0}
  },
  "root_eclasses": [0]
}`

func TestRead_Legacy(t *testing.T) {
	g, err := egraph.Read(strings.NewReader(legacyDoc))
	require.NoError(t, err)

	assert.Equal(t, 4, g.NumNodes())
	assert.Equal(t, 3, g.NumClasses())
	assert.Equal(t, []egraph.ClassID{0}, g.Roots())

	plus := g.Node(egraph.NodeID{Class: 0, Index: 0})
	assert.Equal(t, "+", plus.Op)
	assert.Equal(t, []egraph.ClassID{1, 2}, plus.Children)
	assert.Equal(t, 7.5, g.Node(egraph.NodeID{Class: 0, Index: 1}).Cost)
	assert.Equal(t, 0.0, g.Node(egraph.NodeID{Class: 2, Index: 0}).Cost)
}

func TestRead_PreservesDocumentOrder(t *testing.T) {
	doc := `{"nodes": {
		"3.0": {"op": "c", "children": [], "eclass": 3},
		"1.0": {"op": "a", "children": [3], "eclass": 1}
	}, "root_eclasses": [1]}`

	g, err := egraph.Read(strings.NewReader(doc))
	require.NoError(t, err)

	classes := g.Classes()
	require.Len(t, classes, 2)
	assert.Equal(t, egraph.ClassID(3), classes[0].ID)
	assert.Equal(t, egraph.ClassID(1), classes[1].ID)
}

func TestRead_AcceptsLooseEncodings(t *testing.T) {
	// Missing ids and costs, string class ids, node-id child references,
	// and structured [class, node] ids are all accepted.
	doc := `{"nodes": {
		"0.0": {"op": "f", "id": [0, 0], "children": ["1.4", "2"], "eclass": "0"},
		"1.4": {"op": "a", "children": [], "eclass": 1},
		"2.0": {"op": "b", "children": [], "eclass": 2, "cost": 3}
	}, "root_eclasses": ["0"]}`

	g, err := egraph.Read(strings.NewReader(doc))
	require.NoError(t, err)

	f := g.Node(egraph.NodeID{Class: 0, Index: 0})
	assert.Equal(t, []egraph.ClassID{1, 2}, f.Children)
	assert.Equal(t, egraph.DefaultCost, f.Cost)
	assert.Equal(t, []egraph.ClassID{0}, g.Roots())
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code string
	}{
		{"not json", `{"nodes": `, egraph.ErrCodeMalformed},
		{"missing nodes", `{"root_eclasses": []}`, egraph.ErrCodeMalformed},
		{"nodes array", `{"nodes": []}`, egraph.ErrCodeMalformed},
		{"bad key", `{"nodes": {"zero": {"op": "a", "children": [], "eclass": 0}}}`, egraph.ErrCodeMalformed},
		{"key id mismatch", `{"nodes": {"0.0": {"op": "a", "id": "0.1", "children": [], "eclass": 0}}}`, egraph.ErrCodeMalformed},
		{"eclass mismatch", `{"nodes": {"0.0": {"op": "a", "children": [], "eclass": 4}}}`, egraph.ErrCodeClassMismatch},
		{"dangling child", `{"nodes": {"0.0": {"op": "a", "children": [9], "eclass": 0}}}`, egraph.ErrCodeMissingClass},
		{"negative cost", `{"nodes": {"0.0": {"op": "a", "children": [], "eclass": 0, "cost": -2}}}`, egraph.ErrCodeInvalidCost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := egraph.Read(strings.NewReader(tt.doc))
			var le *egraph.LoadError
			require.True(t, errors.As(err, &le), "expected LoadError, got %v", err)
			assert.Equal(t, tt.code, le.Code)
		})
	}
}

func TestWrite_RoundTripsLegacyDocument(t *testing.T) {
	g, err := egraph.Read(strings.NewReader(legacyDoc))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, egraph.Write(&buf, g))
	assert.JSONEq(t, legacyDoc, buf.String())

	// A second pass is byte-for-byte stable.
	g2, err := egraph.Read(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	var buf2 bytes.Buffer
	require.NoError(t, egraph.Write(&buf2, g2))
	assert.Equal(t, buf.String(), buf2.String())
}

func TestWrite_KeepsClassData(t *testing.T) {
	doc := `{
  "nodes": {
    "0.0": {"op": "f", "id": "0.0", "children": [1], "eclass": 0, "cost": 1},
    "1.0": {"op": "x", "id": "1.0", "children": [], "eclass": 1, "cost": 2}
  },
  "root_eclasses": [0],
  "class_data": {"0": {"type": "Expr"}, "1": {"type": "i64"}}
}`
	g, err := egraph.Read(strings.NewReader(doc))
	require.NoError(t, err)
	assert.JSONEq(t, `{"0": {"type": "Expr"}, "1": {"type": "i64"}}`, string(g.ClassData()))

	var buf bytes.Buffer
	require.NoError(t, egraph.Write(&buf, g))
	assert.JSONEq(t, doc, buf.String())

	path := filepath.Join(t.TempDir(), "graph.json.zst")
	require.NoError(t, egraph.Save(path, g))
	loaded, err := egraph.Load(path)
	require.NoError(t, err)
	assert.JSONEq(t, string(g.ClassData()), string(loaded.ClassData()))

	deduped, _ := egraph.RemoveRedundant(loaded)
	assert.JSONEq(t, string(g.ClassData()), string(deduped.ClassData()))
}

func TestWrite_OmitsNullClassData(t *testing.T) {
	g, err := egraph.Read(strings.NewReader(`{"nodes": {"0.0": {"op": "x", "children": [], "eclass": 0}},
		"root_eclasses": [0], "class_data": null}`))
	require.NoError(t, err)
	assert.Nil(t, g.ClassData())

	var buf bytes.Buffer
	require.NoError(t, egraph.Write(&buf, g))
	assert.NotContains(t, buf.String(), "class_data")
}

func TestSaveLoad_Compressed(t *testing.T) {
	g, err := egraph.Read(strings.NewReader(legacyDoc))
	require.NoError(t, err)

	for _, name := range []string{"graph.json", "graph.json.zst", "graph.json.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, egraph.Save(path, g))

			loaded, err := egraph.Load(path)
			require.NoError(t, err)
			assert.Equal(t, egraph.Digest(g), egraph.Digest(loaded))

			if name != "graph.json" {
				raw, err := os.ReadFile(path)
				require.NoError(t, err)
				assert.NotEqual(t, byte('{'), raw[0], "file should be compressed")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := egraph.Load(filepath.Join(t.TempDir(), "nope.json"))
	var le *egraph.LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, egraph.ErrCodeIO, le.Code)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
