package ilp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/egx/internal/egraph"
	"github.com/roach88/egx/internal/extract"
)

func fakeCommand(mode string) Command {
	return Command{
		Path:      os.Args[0],
		Env:       []string{fakeSolverEnv + "=" + mode},
		KillGrace: 200 * time.Millisecond,
	}
}

// newJob writes the loop diamond model into a temp dir.
func newJob(t *testing.T) Job {
	t.Helper()
	dir := t.TempDir()
	job := Job{
		LPFile:     filepath.Join(dir, ModelFile),
		OutputFile: filepath.Join(dir, SolutionFile),
		LogFile:    filepath.Join(dir, LogFile),
		TimeLimit:  30 * time.Second,
	}
	m := BuildModel(newProblem(t, loopDiamond(t)), DefaultConfig(), nil)
	f, err := os.Create(job.LPFile)
	require.NoError(t, err)
	require.NoError(t, WriteLP(f, m))
	require.NoError(t, f.Close())
	return job
}

func TestCommand_Solves(t *testing.T) {
	job := newJob(t)
	require.NoError(t, fakeCommand("brute").Run(context.Background(), job))

	f, err := os.Open(job.OutputFile)
	require.NoError(t, err)
	defer f.Close()
	got, err := ParseSolution(f)
	require.NoError(t, err)
	assert.Equal(t, map[egraph.ClassID]egraph.NodeID{
		0: nid(0, 0),
		1: nid(1, 0),
		2: nid(2, 0),
		3: nid(3, 0),
	}, got)
}

func TestCommand_Arguments(t *testing.T) {
	job := newJob(t)
	job.WarmStartFile = filepath.Join(filepath.Dir(job.LPFile), WarmStartFile)
	job.TimeLimit = 1500 * time.Millisecond

	cmd := fakeCommand("args")
	cmd.Args = []string{"--threads", "4"}
	require.NoError(t, cmd.Run(context.Background(), job))

	data, err := os.ReadFile(job.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"--threads", "4",
		"--mst_file", job.WarmStartFile,
		"--lp_file", job.LPFile,
		"--output_file", job.OutputFile,
		"--time_limit", "2",
		"--log_file", job.LogFile,
	}, strings.Fields(string(data)))
}

func TestCommand_Failures(t *testing.T) {
	tests := []struct {
		mode string
		want string
	}{
		{"fail", "solver exited with an error"},
		{"empty", "empty solution file"},
		{"none", "no solution file"},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			err := fakeCommand(tt.mode).Run(context.Background(), newJob(t))
			require.Error(t, err)
			assert.Equal(t, extract.ErrCodeSolverFailed, extract.CodeOf(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCommand_FailureDetails(t *testing.T) {
	err := fakeCommand("fail").Run(context.Background(), newJob(t))

	var e *extract.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "3", e.Details["exit_code"])
	assert.Contains(t, e.Details["stderr"], "license expired")
	assert.NotEmpty(t, e.Details["log_file"])
}

func TestCommand_MissingExecutable(t *testing.T) {
	err := Command{Path: filepath.Join(t.TempDir(), "no-such-solver")}.Run(context.Background(), newJob(t))
	require.Error(t, err)
	assert.Equal(t, extract.ErrCodeSolverFailed, extract.CodeOf(err))
}

func TestCommand_Timeout(t *testing.T) {
	job := newJob(t)
	job.TimeLimit = 10 * time.Millisecond

	start := time.Now()
	err := fakeCommand("sleep").Run(context.Background(), job)
	require.Error(t, err)
	assert.True(t, extract.IsSolverTimeout(err), "got %v", err)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestCommand_ParentContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := fakeCommand("sleep").Run(ctx, newJob(t))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, extract.IsSolverTimeout(err), "the caller gave up, not the solver")
}
