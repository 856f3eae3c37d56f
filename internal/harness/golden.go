package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/egx/internal/egraph"
	"github.com/roach88/egx/internal/ilp"
)

// Snapshot captures the deterministic part of a scenario execution.
type Snapshot struct {
	ScenarioName string    `json:"scenario_name"`
	Pass         bool      `json:"pass"`
	Outcomes     []Outcome `json:"outcomes"`
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

// RunWithGolden executes a scenario and compares its outcomes against
// testdata/golden/{scenario.Name}.golden. When the scenario sets model, the
// ILP model built with h.ModelConfig is compared against
// {scenario.Name}_lp.golden as well.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the output doesn't match.
func RunWithGolden(t *testing.T, h *Harness, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := h.Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}

	if scenario.Model {
		g, roots, err := LoadGraph(scenario)
		if err != nil {
			return nil, err
		}
		if err := AssertModelGolden(t, scenario.Name+"_lp", g, roots, h.ModelConfig); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// AssertGolden compares the outcomes of an already executed scenario
// against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot := Snapshot{
		ScenarioName: name,
		Pass:         result.Pass,
		Outcomes:     result.Outcomes,
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	newGoldie(t).Assert(t, name, append(data, '\n'))
	return nil
}

// AssertModelGolden builds the ILP model of g under cfg and compares its LP
// text against a golden file. No solver is run.
func AssertModelGolden(t *testing.T, name string, g *egraph.EGraph, roots []egraph.ClassID, cfg ilp.Config) error {
	t.Helper()

	pr, err := ilp.New(cfg).Prepare(context.Background(), g, roots)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := ilp.WriteLP(&buf, pr.Model); err != nil {
		return err
	}
	newGoldie(t).Assert(t, name, buf.Bytes())
	return nil
}
