package ilp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/egx/internal/egraph"
	"github.com/roach88/egx/internal/extract"
)

// TracerName names the tracer that spans from this package are started on.
const TracerName = "github.com/roach88/egx/internal/ilp"

// tracer is looked up on every span so a provider installed after init is
// honoured.
func tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// File names inside the solver work directory.
const (
	ModelFile     = "model.lp"
	WarmStartFile = "start.mst"
	ZeroNodeFile  = "zero.mst"
	SolutionFile  = "solution.sol"
	LogFile       = "solver.log"
)

// Extractor finds a minimum DAG-cost extraction by reducing the e-graph,
// encoding it as an integer program and handing it to an external solver.
//
// A heuristic extraction runs first. Its DAG cost bounds the reduction, it
// seeds the solver, and it is returned when the solver runs out of time or
// finds nothing better.
type Extractor struct {
	Config Config

	// Runner solves the model. Nil runs Config.Solver as a subprocess.
	Runner Runner

	// Initial is the heuristic. Nil uses extract.GreedyDAG.
	Initial extract.Extractor

	// OnPass, when set, is called after every reduction pass.
	OnPass func(PassStat)
}

// New returns an Extractor that runs cfg.Solver as a subprocess.
func New(cfg Config) *Extractor {
	return &Extractor{Config: cfg}
}

// Prepared is everything computed before the solver is called.
type Prepared struct {
	Problem    *Problem
	Model      *Model
	Initial    *extract.Result // nil if the heuristic found no valid extraction
	UpperBound float64         // DAG cost of Initial, or +Inf
	Passes     []PassStat
	ZeroNodes  []egraph.NodeID
}

// Infeasible returns an INFEASIBLE error if a root has no candidates left.
func (pr *Prepared) Infeasible() error {
	if bad := pr.Problem.InfeasibleRoots(); len(bad) > 0 {
		return extract.NewInfeasibleError(bad)
	}
	return nil
}

// Prepare runs the heuristic, reduces the problem and builds the model.
func (e *Extractor) Prepare(ctx context.Context, g *egraph.EGraph, roots []egraph.ClassID) (*Prepared, error) {
	if err := e.Config.Validate(); err != nil {
		return nil, err
	}
	pr := &Prepared{UpperBound: math.Inf(1)}

	initial := e.Initial
	if initial == nil {
		initial = extract.GreedyDAG{}
	}
	res, err := initial.Extract(ctx, g, roots)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("ilp: heuristic extraction failed, continuing without a bound", "error", err)
	case res.Check(g, roots) != nil:
		slog.Warn("ilp: heuristic extraction is not valid, continuing without a bound")
	default:
		pr.Initial = res
		pr.UpperBound = res.DAGCost(g, roots)
	}

	_, span := tracer().Start(ctx, "ilp/reduce", trace.WithAttributes(
		attribute.Int("egx.classes", g.NumClasses()),
		attribute.Int("egx.nodes", g.NumNodes()),
		attribute.Float64("egx.upper_bound", pr.UpperBound),
	))
	p, err := NewProblem(g, roots)
	if err != nil {
		span.End()
		return nil, err
	}
	pr.Passes = p.Reduce(e.Config, pr.UpperBound)
	if e.OnPass != nil {
		for _, ps := range pr.Passes {
			e.OnPass(ps)
		}
	}
	span.SetAttributes(
		attribute.Int("egx.remaining_classes", p.NumClasses()),
		attribute.Int("egx.remaining_candidates", p.NumCandidates()),
	)
	span.End()
	pr.Problem = p

	if pr.Initial != nil && e.Config.Bound > 0 {
		pr.ZeroNodes = ZeroNodes(pr.Initial.NodeCost, e.Config.Bound)
	}
	pr.Model = BuildModel(p, e.Config, pr.ZeroNodes)
	return pr, nil
}

// Extract implements extract.Extractor.
func (e *Extractor) Extract(ctx context.Context, g *egraph.EGraph, roots []egraph.ClassID) (*extract.Result, error) {
	pr, err := e.Prepare(ctx, g, roots)
	if err != nil {
		return nil, err
	}
	if err := pr.Infeasible(); err != nil {
		return nil, err
	}

	dir, cleanup, err := e.workDir()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	job, err := e.writeFiles(dir, g, roots, pr)
	if err != nil {
		return nil, err
	}

	solveCtx, span := tracer().Start(ctx, "ilp/solve", trace.WithAttributes(
		attribute.String("egx.lp_file", job.LPFile),
		attribute.Int("egx.constraints", len(pr.Model.Constraints)),
		attribute.Int("egx.binaries", len(pr.Model.Binaries)),
	))
	err = e.runner().Run(solveCtx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	switch {
	case extract.IsSolverTimeout(err):
		return e.onTimeout(g, roots, pr, job, err)
	case err != nil:
		return nil, err
	}

	res, err := e.readResult(g, roots, pr, job.OutputFile)
	if err != nil {
		return nil, err
	}
	if pr.Initial != nil && res.DAGCost(g, roots) > pr.UpperBound+Epsilon {
		slog.Warn("ilp: solver solution is worse than the heuristic, keeping the heuristic",
			"solver_cost", res.DAGCost(g, roots),
			"heuristic_cost", pr.UpperBound,
		)
		return pr.Initial, nil
	}
	return res, nil
}

// onTimeout keeps an improved solution the solver managed to write, else
// falls back to the heuristic.
func (e *Extractor) onTimeout(g *egraph.EGraph, roots []egraph.ClassID, pr *Prepared, job Job, timeoutErr error) (*extract.Result, error) {
	if e.Config.ReturnImprovedOnTimeout && checkOutput(job.OutputFile) == nil {
		res, err := e.readResult(g, roots, pr, job.OutputFile)
		if err == nil && (pr.Initial == nil || res.DAGCost(g, roots) < pr.UpperBound) {
			slog.Info("ilp: solver timed out, using its best solution", "cost", res.DAGCost(g, roots))
			return res, nil
		}
	}
	if pr.Initial != nil {
		slog.Warn("ilp: solver timed out, using the heuristic extraction", "cost", pr.UpperBound)
		return pr.Initial, nil
	}
	return nil, timeoutErr
}

// readResult parses a solution file and merges in the classes decided
// during reduction. The result must pass Check.
func (e *Extractor) readResult(g *egraph.EGraph, roots []egraph.ClassID, pr *Prepared, path string) (*extract.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &extract.Error{Code: extract.ErrCodeSolverFailed, Message: "opening solution", Err: err}
	}
	defer f.Close()

	choices, err := ParseSolution(f)
	if err != nil {
		return nil, err
	}

	res := extract.NewResult()
	decided := pr.Problem.Decided()
	for _, c := range sortedClasses(decided) {
		res.Choose(c, decided[c])
	}
	for _, c := range sortedClasses(choices) {
		nid := choices[c]
		if _, ok := pr.Model.Nodes[NodeVar(nid)]; !ok {
			return nil, &extract.Error{
				Code:    extract.ErrCodeBadSolution,
				Message: fmt.Sprintf("solution chose %s, which is not in the model", nid),
			}
		}
		res.Choose(c, nid)
	}
	if err := res.Check(g, roots); err != nil {
		return nil, fmt.Errorf("ilp solution failed validation: %w", err)
	}
	return res, nil
}

func (e *Extractor) runner() Runner {
	if e.Runner != nil {
		return e.Runner
	}
	return NewCommand(e.Config.Solver)
}

func (e *Extractor) workDir() (string, func(), error) {
	sc := e.Config.Solver
	if sc.WorkDir == "" {
		dir, err := os.MkdirTemp("", "egx-ilp-*")
		if err != nil {
			return "", nil, fmt.Errorf("creating solver work dir: %w", err)
		}
		if sc.KeepFiles {
			slog.Info("ilp: keeping solver files", "dir", dir)
			return dir, func() {}, nil
		}
		return dir, func() { os.RemoveAll(dir) }, nil
	}

	if err := os.MkdirAll(sc.WorkDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating solver work dir: %w", err)
	}
	if sc.KeepFiles {
		return sc.WorkDir, func() {}, nil
	}
	return sc.WorkDir, func() {
		for _, name := range []string{ModelFile, WarmStartFile, ZeroNodeFile, SolutionFile, LogFile} {
			os.Remove(filepath.Join(sc.WorkDir, name))
		}
	}, nil
}

// writeFiles writes the model, the warm start and the zero-node list into
// dir and returns the job describing them.
func (e *Extractor) writeFiles(dir string, g *egraph.EGraph, roots []egraph.ClassID, pr *Prepared) (Job, error) {
	job := Job{
		LPFile:     filepath.Join(dir, ModelFile),
		OutputFile: filepath.Join(dir, SolutionFile),
		LogFile:    filepath.Join(dir, LogFile),
		TimeLimit:  e.Config.Solver.TimeLimit,
	}
	// A stale solution from an earlier run must not be mistaken for output.
	if err := os.Remove(job.OutputFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Job{}, err
	}

	if err := writeFile(job.LPFile, func(f *os.File) error { return WriteLP(f, pr.Model) }); err != nil {
		return Job{}, err
	}
	if pr.Initial != nil {
		job.WarmStartFile = filepath.Join(dir, WarmStartFile)
		err := writeFile(job.WarmStartFile, func(f *os.File) error {
			return WriteWarmStart(f, pr.Model, g, roots, pr.Initial)
		})
		if err != nil {
			return Job{}, err
		}
	}
	if len(pr.ZeroNodes) > 0 {
		err := writeFile(filepath.Join(dir, ZeroNodeFile), func(f *os.File) error {
			return WriteZeroNodes(f, pr.ZeroNodes)
		})
		if err != nil {
			return Job{}, err
		}
	}
	return job, nil
}

func writeFile(path string, fn func(*os.File) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err := fn(f); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func sortedClasses(m map[egraph.ClassID]egraph.NodeID) []egraph.ClassID {
	keys := make([]egraph.ClassID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Register adds e to reg as "ilp".
func Register(reg *extract.Registry, e *Extractor) error {
	return reg.Register(extract.Entry{
		Name:        "ilp",
		Description: "minimum DAG cost via an external integer-program solver",
		Extractor:   e,
		Optimal:     extract.OptimalDAG,
	})
}
