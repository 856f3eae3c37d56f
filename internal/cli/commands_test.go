package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/egx/internal/egraph"
	"github.com/roach88/egx/internal/harness"
	"github.com/roach88/egx/internal/ilp"
)

const (
	diamondGraph = "testdata/graphs/diamond.json"
	loopGraph    = "testdata/graphs/loop.json"
	noLeafGraph  = "testdata/noleaf.json"
)

func TestExtract_Text(t *testing.T) {
	out, err := execute(t, "extract", diamondGraph, "-x", "greedy-dag")
	require.NoError(t, err)

	assert.Contains(t, out, "extractor  greedy-dag")
	assert.Contains(t, out, "(4 nodes, 4 classes)")
	assert.Contains(t, out, "tree cost  13\n")
	assert.Contains(t, out, "dag cost   8\n")
	assert.Contains(t, out, "depth      3\n")
	assert.NotContains(t, out, "run ")
}

func TestExtract_DefaultExtractorFromConfig(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "egx.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("extractor: depth\n"), 0o644))

	out, err := execute(t, "--config", cfg, "--format", "json", "extract", diamondGraph)
	require.NoError(t, err)

	var s ExtractSummary
	decodeData(t, out, &s)
	assert.Equal(t, "depth", s.Extractor)
	assert.True(t, s.OK)
}

func TestExtract_RecordsRunAndWritesResult(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	result := filepath.Join(dir, "result.json")

	out, err := execute(t, "--format", "json", "extract", diamondGraph, "-x", "bottom-up", "-o", result, "--db", db)
	require.NoError(t, err)

	var s ExtractSummary
	decodeData(t, out, &s)
	assert.True(t, s.OK)
	assert.Equal(t, 13.0, *s.TreeCost)
	assert.Equal(t, 8.0, *s.DAGCost)
	assert.NotEmpty(t, s.RunID)
	assert.NotEmpty(t, s.Digest)
	assert.FileExists(t, result)

	out, err = execute(t, "--format", "json", "runs", "--db", db, "--graph", diamondGraph)
	require.NoError(t, err)
	var runs []RunView
	decodeData(t, out, &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, s.RunID, runs[0].ID)
	assert.Equal(t, s.Digest, runs[0].Digest)
	assert.Equal(t, "ok", runs[0].Status)
	assert.Equal(t, "diamond.json", runs[0].Graph)

	out, err = execute(t, "check", diamondGraph, result)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ valid (4 choices, 4 active)")
	assert.Contains(t, out, "tree cost  13\n")
}

func TestExtract_NoRecord(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	_, err := execute(t, "extract", diamondGraph, "--db", db, "--no-record")
	require.NoError(t, err)
	assert.NoFileExists(t, db)
}

func TestExtract_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown extractor", []string{"extract", diamondGraph, "-x", "fastest"}, `unknown extractor "fastest"`},
		{"missing graph", []string{"extract", "testdata/graphs/none.json"}, "loading e-graph"},
		{"bad root", []string{"extract", diamondGraph, "--root", "x"}, "parsing --root"},
		{"absent root", []string{"extract", diamondGraph, "--root", "9"}, "root class 9 is not in"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestExtract_RootOverride(t *testing.T) {
	out, err := execute(t, "--format", "json", "extract", diamondGraph, "--root", "1", "-x", "bottom-up")
	require.NoError(t, err)

	var s ExtractSummary
	decodeData(t, out, &s)
	assert.Equal(t, 6.0, *s.TreeCost)
	assert.Equal(t, 2, s.Depth)
}

func TestCheck_Cycle(t *testing.T) {
	out, err := execute(t, "check", loopGraph, "testdata/loop_result.json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [CYCLE_DETECTED]")
	assert.Contains(t, out, "cycle through 2 classes")
}

func TestCheck_CycleJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "check", loopGraph, "testdata/loop_result.json")
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CYCLE_DETECTED", resp.Error.Code)
	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, details["valid"])
	assert.Len(t, details["cycles"], 1)
}

func TestConvert(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "diamond.json.zst")
	out, err := execute(t, "convert", diamondGraph, dst)
	require.NoError(t, err)
	assert.Contains(t, out, "(4 nodes, 4 classes)")

	g, err := egraph.Load(dst)
	require.NoError(t, err)
	src, err := egraph.Load(diamondGraph)
	require.NoError(t, err)
	assert.Equal(t, egraph.Digest(src), egraph.Digest(g))
	assert.JSONEq(t, `{"3": {"type": "i64"}}`, string(g.ClassData()))
}

func TestModel_WritesFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "model")
	out, err := execute(t, "--format", "json", "model", diamondGraph, "-o", dir)
	require.NoError(t, err)

	var r ModelReport
	decodeData(t, out, &r)
	require.NotNil(t, r.UpperBound)
	assert.Equal(t, 8.0, *r.UpperBound)
	assert.NotEmpty(t, r.Passes)
	assert.FileExists(t, filepath.Join(dir, ilp.ModelFile))
	assert.FileExists(t, filepath.Join(dir, ilp.WarmStartFile))
	assert.Contains(t, r.Files, filepath.Join(dir, ilp.ModelFile))
}

func TestModel_PrintsLP(t *testing.T) {
	out, err := execute(t, "model", diamondGraph)
	require.NoError(t, err)
	assert.Contains(t, out, "Minimize\n")
	assert.Contains(t, out, "Subject To\n")
	assert.Contains(t, out, "End\n")
}

func TestBench(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	out, err := execute(t, "--format", "json", "bench", "testdata/graphs", "-x", "bottom-up,greedy-dag", "--db", db)
	require.NoError(t, err)

	var r BenchReport
	decodeData(t, out, &r)
	assert.Equal(t, 2, r.Graphs)
	assert.Equal(t, 0, r.Failed)
	require.Len(t, r.Rows, 4)
	assert.Equal(t, "diamond.json", r.Rows[0].Graph)
	assert.Equal(t, "bottom-up", r.Rows[0].Extractor)
	assert.Equal(t, 8.0, *r.Rows[1].DAGCost)
	assert.Equal(t, "loop.json", r.Rows[2].Graph)
	assert.Equal(t, 11.0, *r.Rows[2].TreeCost)
	for _, row := range r.Rows {
		assert.NotEmpty(t, row.RunID)
	}

	out, err = execute(t, "runs", "best", "--db", db, "--graph", loopGraph)
	require.NoError(t, err)
	assert.Contains(t, out, "dag cost   11\n")
}

func TestBench_Text(t *testing.T) {
	out, err := execute(t, "bench", "testdata/graphs", "--pattern", "diamond.*", "-x", "greedy-dag")
	require.NoError(t, err)
	assert.Contains(t, out, "GRAPH")
	assert.Contains(t, out, "1 graph(s), 1 run(s), 0 failed")
}

func TestBench_Errors(t *testing.T) {
	_, err := execute(t, "bench", "testdata/none")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "bench", "testdata/graphs", "--pattern", "[")
	assert.ErrorContains(t, err, "invalid pattern")

	_, err = execute(t, "bench", "testdata/graphs", "-x", "nope")
	assert.ErrorContains(t, err, `unknown extractor "nope"`)
}

func TestRuns_NeedsStore(t *testing.T) {
	_, err := execute(t, "runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no run store")
}

func TestRuns_BestNotFound(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	_, err := execute(t, "runs", "best", "--db", db, "--digest", "abc")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestRuns_BadStatus(t *testing.T) {
	_, err := execute(t, "runs", "--db", filepath.Join(t.TempDir(), "r.db"), "--status", "maybe")
	assert.ErrorContains(t, err, `invalid status "maybe"`)
}

func TestExtractors(t *testing.T) {
	out, err := execute(t, "--format", "json", "extractors")
	require.NoError(t, err)

	var infos []ExtractorInfo
	decodeData(t, out, &infos)
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	assert.Equal(t, []string{"bottom-up", "bottom-up-mt", "depth", "depth-mt", "greedy-dag", "greedy-dag-mt", "ilp"}, names)
	assert.Equal(t, "tree", infos[0].Optimal)
}

func TestTestCommand(t *testing.T) {
	out, err := execute(t, "test", "testdata/scenarios", "--filter", "diamond.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")

	out, err = execute(t, "--format", "json", "test", "testdata/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var r harness.SuiteResult
	decodeData(t, out, &r)
	assert.Equal(t, 2, r.TotalScenarios)
	require.Len(t, r.Failures, 1)
	assert.Equal(t, "wrong", r.Failures[0].Name)
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, err := execute(t, "test", "testdata/none")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMetricsTextfile(t *testing.T) {
	dir := t.TempDir()
	prom := filepath.Join(dir, "egx.prom")
	cfg := filepath.Join(dir, "egx.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("metrics:\n  textfile: "+prom+"\n"), 0o644))

	_, err := execute(t, "--config", cfg, "extract", diamondGraph, "-x", "greedy-dag")
	require.NoError(t, err)

	data, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(data), `egx_runs_total{extractor="greedy-dag",status="ok"} 1`)
	assert.Contains(t, string(data), `egx_dag_cost{extractor="greedy-dag",graph="diamond.json"} 8`)
}

func TestMetricsTextfile_FailedRun(t *testing.T) {
	dir := t.TempDir()
	prom := filepath.Join(dir, "egx.prom")
	cfg := filepath.Join(dir, "egx.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("metrics:\n  textfile: "+prom+"\n"), 0o644))

	_, err := execute(t, "--config", cfg, "extract", noLeafGraph, "-x", "bottom-up")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	data, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(data), `egx_runs_total{extractor="bottom-up",status="failed"} 1`)
	assert.NotContains(t, string(data), `status="ok"`)
}

func TestTraceFile(t *testing.T) {
	dir := t.TempDir()
	spans := filepath.Join(dir, "extract.jsonl")

	_, err := execute(t, "--trace", spans, "extract", diamondGraph, "-x", "greedy-dag")
	require.NoError(t, err)

	byName := readSpans(t, spans)
	require.Contains(t, byName, "extract/greedy-dag")
	assert.Contains(t, byName["extract/greedy-dag"], attr{Key: "egx.extractor", Value: attrValue{Type: "STRING", Value: "greedy-dag"}})
	assert.Contains(t, byName["extract/greedy-dag"], attr{Key: "egx.dag_cost", Value: attrValue{Type: "FLOAT64", Value: 8.0}})

	spans = filepath.Join(dir, "model.jsonl")
	_, err = execute(t, "--trace", spans, "model", diamondGraph, "-o", filepath.Join(dir, "model"))
	require.NoError(t, err)

	byName = readSpans(t, spans)
	require.Contains(t, byName, "ilp/reduce")
	assert.Contains(t, byName["ilp/reduce"], attr{Key: "egx.upper_bound", Value: attrValue{Type: "FLOAT64", Value: 8.0}})
}

func TestTraceFile_FromConfigOnFailure(t *testing.T) {
	dir := t.TempDir()
	spans := filepath.Join(dir, "spans.jsonl")
	cfg := filepath.Join(dir, "egx.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("trace:\n  file: "+spans+"\n"), 0o644))

	_, err := execute(t, "--config", cfg, "extract", noLeafGraph, "-x", "depth")
	require.Error(t, err)

	byName := readSpans(t, spans)
	assert.Contains(t, byName, "extract/depth")
}

type attrValue struct {
	Type  string
	Value any
}

type attr struct {
	Key   string
	Value attrValue
}

// readSpans decodes an exported span file into attributes by span name.
func readSpans(t *testing.T, path string) map[string][]attr {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	byName := make(map[string][]attr)
	dec := json.NewDecoder(f)
	for dec.More() {
		var span struct {
			Name       string
			Attributes []attr
		}
		require.NoError(t, dec.Decode(&span))
		byName[span.Name] = span.Attributes
	}
	return byName
}
