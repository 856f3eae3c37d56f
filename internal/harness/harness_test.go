package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/egx/internal/extract"
	"github.com/roach88/egx/internal/ilp"
)

func newHarness() *Harness {
	return New(extract.Heuristics(extract.Options{Workers: 2, BatchSize: 2}), nil)
}

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRun_Scenarios(t *testing.T) {
	h := newHarness()
	for _, name := range []string{"pick", "diamond", "root_leaf"} {
		t.Run(name, func(t *testing.T) {
			result, err := h.Run(context.Background(), loadScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRunWithGolden_Pick(t *testing.T) {
	h := newHarness()
	h.ModelConfig = ilp.NoPasses()

	result, err := RunWithGolden(t, h, loadScenario(t, "pick"))
	require.NoError(t, err)
	assert.True(t, result.Pass)
	assert.Len(t, result.Outcomes, 3)
}

func TestRun_AllRegisteredByDefault(t *testing.T) {
	s := loadScenario(t, "pick")
	s.Extractors = nil

	reg := extract.Heuristics(extract.Options{})
	result, err := New(reg, nil).Run(context.Background(), s)
	require.NoError(t, err)

	var names []string
	for _, o := range result.Outcomes {
		names = append(names, o.Extractor)
	}
	assert.Equal(t, reg.Names(), names)
}

func TestRun_FailingAssertions(t *testing.T) {
	s := loadScenario(t, "diamond")
	seven := 7.0
	s.Assertions = []Assertion{
		{Type: AssertDAGCost, Extractor: "greedy-dag", Value: &seven},
		{Type: AssertCostOrder, Extractors: []string{"bottom-up", "greedy-dag"}, Metric: MetricTree},
	}

	result, err := newHarness().Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1, "tree costs are equal, so only the dag_cost check fails")
	assert.Contains(t, result.Errors[0], "Assertion failed: dag_cost")
	assert.Contains(t, result.Errors[0], "Actual: 8")
	assert.Contains(t, result.Errors[0], "greedy-dag: tree=13 dag=8 depth=3")
}

func cycleScenario(assertions ...Assertion) *Scenario {
	return &Scenario{
		Name:        "cycle",
		Description: "two classes that only reference each other",
		Graph: &GraphSpec{
			Roots: roots(0),
			Nodes: []NodeSpec{
				{ID: "0.0", Op: "f", Children: roots(1)},
				{ID: "1.0", Op: "g", Children: roots(0)},
			},
		},
		Extractors: []string{"bottom-up"},
		Assertions: assertions,
	}
}

func TestRun_UnexpectedFailure(t *testing.T) {
	result, err := newHarness().Run(context.Background(), cycleScenario(Assertion{Type: AssertValid}))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "extractor bottom-up failed")
	assert.Contains(t, result.Errors[1], "failed with INVALID_RESULT")
}

func TestRun_ExpectedFailure(t *testing.T) {
	s := cycleScenario(Assertion{Type: AssertError, Extractor: "bottom-up", Code: "INVALID_RESULT"})
	result, err := newHarness().Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	o, ok := result.Outcome("bottom-up")
	require.True(t, ok)
	assert.False(t, o.OK)
	assert.Nil(t, o.DAGCost)
}

func TestRun_Errors(t *testing.T) {
	h := newHarness()

	s := loadScenario(t, "pick")
	s.Extractors = []string{"nope"}
	_, err := h.Run(context.Background(), s)
	assert.ErrorContains(t, err, `unknown extractor "nope"`)

	s = loadScenario(t, "pick")
	s.Roots = roots(9)
	_, err = h.Run(context.Background(), s)
	assert.ErrorContains(t, err, "root class 9 is not in the graph")

	s = loadScenario(t, "pick")
	s.Graph.Nodes[0].Children = roots(4)
	_, err = h.Run(context.Background(), s)
	assert.ErrorContains(t, err, "loading graph")
}

func TestRun_Dedup(t *testing.T) {
	s := &Scenario{
		Name:        "dedup",
		Description: "identical children collapse to the cheapest node",
		Graph: &GraphSpec{
			Roots: roots(0),
			Nodes: []NodeSpec{
				{ID: "0.0", Op: "a", Cost: cost(4), Children: roots(1)},
				{ID: "0.1", Op: "b", Cost: cost(2), Children: roots(1)},
				{ID: "1.0", Op: "x"},
			},
		},
		Dedup:      true,
		Extractors: []string{"depth"},
		Assertions: []Assertion{
			{Type: AssertChoice, Extractor: "depth", Class: classPtr(0), Node: "0.1"},
		},
	}
	result, err := newHarness().Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunSuite(t *testing.T) {
	paths, err := FindScenarios(filepath.Join("testdata", "scenarios"), "")
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, "diamond.yaml", filepath.Base(paths[0]))

	broken := writeScenario(t, "broken.yaml", "name: broken\n")
	result, err := newHarness().RunSuite(context.Background(), append(paths, broken))
	require.NoError(t, err)
	assert.Equal(t, 4, result.TotalScenarios)
	assert.Equal(t, 3, result.Passed)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, broken, result.Failures[0].ScenarioPath)
	assert.Contains(t, result.Failures[0].Error, "failed to load scenario")
}

func TestRunSuite_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newHarness().RunSuite(ctx, []string{"x.yaml"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFindScenarios_BadPattern(t *testing.T) {
	_, err := FindScenarios(t.TempDir(), "[")
	assert.ErrorContains(t, err, "invalid scenario pattern")
}
