package ilp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"

	"github.com/roach88/egx/internal/egraph"
	"github.com/roach88/egx/internal/extract"
	"github.com/roach88/egx/internal/testutil"
)

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, *egraph.EGraph, []egraph.ClassID) (*extract.Result, error) {
	return nil, errors.New("no heuristic today")
}

func timeoutErr() error {
	return &extract.Error{Code: extract.ErrCodeSolverTimeout, Message: "solver still running"}
}

// writeSolutionFile makes a runner that writes body as the solution.
func writeSolutionFile(body string, err error) Runner {
	return runnerFunc(func(_ context.Context, job Job) error {
		if werr := os.WriteFile(job.OutputFile, []byte(body), 0o644); werr != nil {
			return werr
		}
		return err
	})
}

func TestExtractor_Diamond(t *testing.T) {
	g := loopDiamond(t)
	runner := &bruteRunner{}
	e := &Extractor{Config: DefaultConfig(), Runner: runner}

	res, err := e.Extract(context.Background(), g, g.Roots())
	require.NoError(t, err)
	require.NoError(t, res.Check(g, g.Roots()))
	assert.Equal(t, 4.0, res.DAGCost(g, g.Roots()))
	assert.Equal(t, 1, runner.calls)
	assert.NotEmpty(t, runner.jobs[0].WarmStartFile)
}

func TestExtractor_Spans(t *testing.T) {
	sr := testutil.RecordSpans(t)
	g := loopDiamond(t)
	runner := &bruteRunner{}
	e := &Extractor{Config: DefaultConfig(), Runner: runner}

	_, err := e.Extract(context.Background(), g, g.Roots())
	require.NoError(t, err)
	pr, err := e.Prepare(context.Background(), g, g.Roots())
	require.NoError(t, err)

	reduce := testutil.SpanAttrs(testutil.EndedSpan(t, sr, "ilp/reduce"))
	assert.Equal(t, int64(g.NumClasses()), reduce["egx.classes"].AsInt64())
	assert.Equal(t, int64(g.NumNodes()), reduce["egx.nodes"].AsInt64())
	assert.Equal(t, pr.UpperBound, reduce["egx.upper_bound"].AsFloat64())
	assert.Equal(t, int64(pr.Problem.NumClasses()), reduce["egx.remaining_classes"].AsInt64())
	assert.Equal(t, int64(pr.Problem.NumCandidates()), reduce["egx.remaining_candidates"].AsInt64())

	solve := testutil.EndedSpan(t, sr, "ilp/solve")
	attrs := testutil.SpanAttrs(solve)
	assert.Equal(t, runner.jobs[0].LPFile, attrs["egx.lp_file"].AsString())
	assert.Equal(t, int64(len(pr.Model.Constraints)), attrs["egx.constraints"].AsInt64())
	assert.Equal(t, int64(len(pr.Model.Binaries)), attrs["egx.binaries"].AsInt64())
	assert.Equal(t, codes.Unset, solve.Status().Code)
}

func TestExtractor_SolveSpanRecordsFailure(t *testing.T) {
	sr := testutil.RecordSpans(t)
	g := loopDiamond(t)
	crash := runnerFunc(func(context.Context, Job) error { return errors.New("solver crashed") })
	e := &Extractor{Config: DefaultConfig(), Runner: crash}

	_, err := e.Extract(context.Background(), g, g.Roots())
	require.Error(t, err)

	solve := testutil.EndedSpan(t, sr, "ilp/solve")
	assert.Equal(t, codes.Error, solve.Status().Code)
	assert.Equal(t, "solver crashed", solve.Status().Description)
}

func TestExtractor_MatchesExhaustiveSearch(t *testing.T) {
	hoist := DefaultConfig()
	hoist.HoistMinCost = true
	oneRound := DefaultConfig()
	oneRound.Rounds = 1

	configs := map[string]Config{
		"default":   DefaultConfig(),
		"no passes": NoPasses(),
		"hoist":     hoist,
		"one round": oneRound,
	}
	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			for seed := uint64(1); seed <= 30; seed++ {
				g := testutil.RandomGraph(t, seed, 6, 3, seed%2 == 0)
				_, want, ok := testutil.OptimalDAG(g, g.Roots(), nil)
				require.True(t, ok, "seed %d", seed)

				e := &Extractor{Config: cfg, Runner: &bruteRunner{}}
				res, err := e.Extract(context.Background(), g, g.Roots())
				require.NoError(t, err, "seed %d", seed)
				require.NoError(t, res.Check(g, g.Roots()), "seed %d", seed)
				assert.Equal(t, want, res.DAGCost(g, g.Roots()), "seed %d", seed)

				greedy, err := extract.GreedyDAG{}.Extract(context.Background(), g, g.Roots())
				require.NoError(t, err)
				assert.LessOrEqual(t, res.DAGCost(g, g.Roots()), greedy.DAGCost(g, g.Roots()), "seed %d", seed)
			}
		})
	}
}

func TestExtractor_MutualCycleIsInfeasible(t *testing.T) {
	g := testutil.Graph(t, roots(0),
		testutil.Op(0, "a", 1, 1),
		testutil.Op(1, "b", 1, 0),
	)
	runner := &bruteRunner{}
	e := &Extractor{Config: DefaultConfig(), Runner: runner}

	_, err := e.Extract(context.Background(), g, g.Roots())
	require.Error(t, err)
	assert.True(t, extract.IsInfeasible(err), "got %v", err)
	assert.Zero(t, runner.calls, "the solver never runs")
}

func TestExtractor_Timeout(t *testing.T) {
	g := loopDiamond(t)

	t.Run("falls back to the heuristic", func(t *testing.T) {
		e := &Extractor{
			Config:  DefaultConfig(),
			Initial: extract.BottomUp{},
			Runner:  runnerFunc(func(context.Context, Job) error { return timeoutErr() }),
		}
		res, err := e.Extract(context.Background(), g, g.Roots())
		require.NoError(t, err)
		choice, _ := res.Choice(0)
		assert.Equal(t, nid(0, 1), choice, "bottom-up picks the leaf")
	})

	t.Run("keeps an improved solution", func(t *testing.T) {
		e := &Extractor{
			Config:  DefaultConfig(),
			Initial: extract.BottomUp{},
			Runner: runnerFunc(func(ctx context.Context, job Job) error {
				require.NoError(t, solveFile(job.LPFile, job.OutputFile))
				return timeoutErr()
			}),
		}
		res, err := e.Extract(context.Background(), g, g.Roots())
		require.NoError(t, err)
		assert.Equal(t, 4.0, res.DAGCost(g, g.Roots()))
	})

	t.Run("ignores the solution when told to", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ReturnImprovedOnTimeout = false
		e := &Extractor{
			Config:  cfg,
			Initial: extract.BottomUp{},
			Runner: runnerFunc(func(ctx context.Context, job Job) error {
				require.NoError(t, solveFile(job.LPFile, job.OutputFile))
				return timeoutErr()
			}),
		}
		res, err := e.Extract(context.Background(), g, g.Roots())
		require.NoError(t, err)
		assert.Equal(t, 4.5, res.DAGCost(g, g.Roots()))
	})

	t.Run("fails without a heuristic", func(t *testing.T) {
		e := &Extractor{
			Config:  DefaultConfig(),
			Initial: failingExtractor{},
			Runner:  runnerFunc(func(context.Context, Job) error { return timeoutErr() }),
		}
		_, err := e.Extract(context.Background(), g, g.Roots())
		require.Error(t, err)
		assert.True(t, extract.IsSolverTimeout(err))
	})
}

func TestExtractor_WorseSolutionKeepsHeuristic(t *testing.T) {
	g := loopDiamond(t)
	e := &Extractor{
		Config: NoPasses(),
		Runner: writeSolutionFile("N_0_1 1\n", nil),
	}
	res, err := e.Extract(context.Background(), g, g.Roots())
	require.NoError(t, err)
	choice, _ := res.Choice(0)
	assert.Equal(t, nid(0, 0), choice, "greedy's 4 beats the solver's 4.5")
}

func TestExtractor_BadSolutions(t *testing.T) {
	g := loopDiamond(t)

	tests := []struct {
		name string
		body string
		code extract.ErrorCode
		want string
	}{
		{"node outside the model", "N_9_9 1\n", extract.ErrCodeBadSolution, "not in the model"},
		{"root left out", "N_1_0 1\n", extract.ErrCodeInvalidResult, "ilp solution failed validation"},
		{"garbage", "N_0_0 one\n", extract.ErrCodeBadSolution, "line 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Extractor{Config: NoPasses(), Runner: writeSolutionFile(tt.body, nil)}
			_, err := e.Extract(context.Background(), g, g.Roots())
			require.Error(t, err)
			assert.Equal(t, tt.code, extract.CodeOf(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExtractor_SolverFailureIsReturned(t *testing.T) {
	g := loopDiamond(t)
	failed := &extract.Error{Code: extract.ErrCodeSolverFailed, Message: "boom"}
	e := &Extractor{Config: DefaultConfig(), Runner: runnerFunc(func(context.Context, Job) error { return failed })}

	_, err := e.Extract(context.Background(), g, g.Roots())
	assert.ErrorIs(t, err, failed)
}

func TestExtractor_WorkDir(t *testing.T) {
	g := loopDiamond(t)

	for _, keep := range []bool{true, false} {
		t.Run(fmt.Sprintf("keep=%v", keep), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Bound = 1.5
			cfg.Solver.WorkDir = filepath.Join(t.TempDir(), "ilp")
			cfg.Solver.KeepFiles = keep
			e := &Extractor{Config: cfg, Initial: extract.BottomUp{}, Runner: &bruteRunner{}}

			_, err := e.Extract(context.Background(), g, g.Roots())
			require.NoError(t, err)

			for _, name := range []string{ModelFile, WarmStartFile, ZeroNodeFile, SolutionFile} {
				_, err := os.Stat(filepath.Join(cfg.Solver.WorkDir, name))
				if keep {
					assert.NoError(t, err, name)
				} else {
					assert.ErrorIs(t, err, os.ErrNotExist, name)
				}
			}
			if keep {
				data, err := os.ReadFile(filepath.Join(cfg.Solver.WorkDir, ZeroNodeFile))
				require.NoError(t, err)
				assert.Equal(t, "N_3_1 0\n", string(data))
			}
		})
	}
}

func TestExtractor_StaleSolutionIsNotReused(t *testing.T) {
	g := loopDiamond(t)
	cfg := DefaultConfig()
	cfg.Solver.WorkDir = t.TempDir()
	cfg.Solver.KeepFiles = true
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Solver.WorkDir, SolutionFile), []byte("N_0_0 1\n"), 0o644))

	var sawStale bool
	e := &Extractor{Config: cfg, Runner: runnerFunc(func(_ context.Context, job Job) error {
		_, err := os.Stat(job.OutputFile)
		sawStale = err == nil
		return &extract.Error{Code: extract.ErrCodeSolverFailed, Message: "nothing written"}
	})}
	_, err := e.Extract(context.Background(), g, g.Roots())
	require.Error(t, err)
	assert.False(t, sawStale)
}

func TestPrepare(t *testing.T) {
	g := loopDiamond(t)
	cfg := DefaultConfig()
	cfg.Bound = 1.5

	var passes []PassStat
	e := &Extractor{Config: cfg, Initial: extract.BottomUp{}, OnPass: func(ps PassStat) { passes = append(passes, ps) }}
	pr, err := e.Prepare(context.Background(), g, g.Roots())
	require.NoError(t, err)

	assert.Equal(t, 4.5, pr.UpperBound)
	assert.Equal(t, pr.Passes, passes)
	assert.Equal(t, []egraph.NodeID{nid(3, 1)}, pr.ZeroNodes)
	assert.NoError(t, pr.Infeasible())
	assert.NotNil(t, pr.Model)
}

func TestPrepare_HeuristicFailureMeansNoBound(t *testing.T) {
	g := loopDiamond(t)
	e := &Extractor{Config: DefaultConfig(), Initial: failingExtractor{}}
	pr, err := e.Prepare(context.Background(), g, g.Roots())
	require.NoError(t, err)
	assert.Nil(t, pr.Initial)
	assert.Equal(t, inf, pr.UpperBound)
}

func TestPrepare_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rounds = -1
	_, err := (&Extractor{Config: cfg}).Prepare(context.Background(), loopDiamond(t), roots(0))
	require.Error(t, err)
}

func TestRegister(t *testing.T) {
	reg := extract.Heuristics(extract.Options{})
	require.NoError(t, Register(reg, &Extractor{Config: DefaultConfig(), Runner: &bruteRunner{}}))

	entry, ok := reg.Get("ilp")
	require.True(t, ok)
	assert.Equal(t, extract.OptimalDAG, entry.Optimal)
	assert.Error(t, Register(reg, New(DefaultConfig())), "names are unique")

	g := loopDiamond(t)
	out := extract.Run(context.Background(), entry, g, g.Roots())
	require.True(t, out.OK(), "%v", out.Err)
	assert.Equal(t, 4.0, out.DAGCost)
}
