package ilp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/roach88/egx/internal/extract"
)

// Job is one solver invocation. Paths are absolute or relative to the
// working directory of the caller.
type Job struct {
	LPFile        string
	OutputFile    string
	LogFile       string
	WarmStartFile string // optional
	TimeLimit     time.Duration
}

// Runner solves a job, leaving the solution in job.OutputFile.
//
// A Runner returns an *extract.Error with code SOLVER_TIMEOUT when the
// solver ran out of time and SOLVER_FAILED for any other failure.
type Runner interface {
	Run(ctx context.Context, job Job) error
}

// Command runs an external solver executable:
//
//	<path> <args...> [--mst_file F] --lp_file F --output_file F --time_limit S --log_file F
type Command struct {
	Path      string
	Args      []string
	Env       []string // appended to the current environment
	KillGrace time.Duration
}

// NewCommand returns the Command described by cfg.
func NewCommand(cfg SolverConfig) Command {
	return Command{Path: cfg.Path, Args: cfg.Args, KillGrace: cfg.KillGrace}
}

// Run implements Runner. The process is killed once the time limit plus the
// kill grace has passed.
func (c Command) Run(ctx context.Context, job Job) error {
	args := append([]string{}, c.Args...)
	if job.WarmStartFile != "" {
		args = append(args, "--mst_file", job.WarmStartFile)
	}
	args = append(args,
		"--lp_file", job.LPFile,
		"--output_file", job.OutputFile,
		"--time_limit", strconv.Itoa(int(math.Ceil(job.TimeLimit.Seconds()))),
		"--log_file", job.LogFile,
	)

	grace := c.KillGrace
	if grace <= 0 {
		grace = DefaultKillGrace
	}
	runCtx := ctx
	if job.TimeLimit > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, job.TimeLimit+grace)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, c.Path, args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return &extract.Error{
			Code:    extract.ErrCodeSolverTimeout,
			Message: fmt.Sprintf("solver still running after %s", job.TimeLimit+grace),
			Details: map[string]string{"log_file": job.LogFile, "stderr": stderr.String()},
			Err:     err,
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		details := map[string]string{"log_file": job.LogFile, "stderr": stderr.String()}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			details["exit_code"] = strconv.Itoa(exitErr.ExitCode())
		}
		return &extract.Error{
			Code:    extract.ErrCodeSolverFailed,
			Message: "solver exited with an error",
			Details: details,
			Err:     err,
		}
	}
	return checkOutput(job.OutputFile)
}

// checkOutput fails unless path exists and is not empty.
func checkOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &extract.Error{Code: extract.ErrCodeSolverFailed, Message: "solver produced no solution file", Err: err}
	}
	if info.Size() == 0 {
		return &extract.Error{
			Code:    extract.ErrCodeSolverFailed,
			Message: "solver produced an empty solution file",
			Details: map[string]string{"output_file": path},
		}
	}
	return nil
}
