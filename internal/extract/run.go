package extract

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/egx/internal/egraph"
)

// TracerName names the tracer that spans from this package are started on.
const TracerName = "github.com/roach88/egx/internal/extract"

// tracer is looked up on every span so a provider installed after init is
// honoured.
func tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// Outcome is a checked and measured extraction.
type Outcome struct {
	Extractor string
	Result    *Result
	TreeCost  float64
	DAGCost   float64
	Depth     int
	Duration  time.Duration

	// Err is the extraction error, or the Check error of its result.
	Err error
}

// OK reports whether the extraction succeeded and passed Check.
func (o *Outcome) OK() bool {
	return o.Err == nil
}

// Run extracts with e, checks the result against roots, and measures it.
// Failures are reported in Outcome.Err rather than returned so callers
// sweeping many extractors can keep going.
func Run(ctx context.Context, e Entry, g *egraph.EGraph, roots []egraph.ClassID) Outcome {
	ctx, span := tracer().Start(ctx, "extract/"+e.Name, trace.WithAttributes(
		attribute.String("egx.extractor", e.Name),
		attribute.Int("egx.nodes", g.NumNodes()),
		attribute.Int("egx.classes", g.NumClasses()),
		attribute.Int("egx.roots", len(roots)),
	))
	defer span.End()

	out := Outcome{Extractor: e.Name, TreeCost: Infinity, DAGCost: Infinity, Depth: -1}
	start := time.Now()
	res, err := e.Extractor.Extract(ctx, g, roots)
	out.Duration = time.Since(start)
	out.Result = res

	if err == nil {
		err = res.Check(g, roots)
	}
	if err != nil {
		out.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Debug("extraction failed", "extractor", e.Name, "duration", out.Duration, "error", err)
		return out
	}

	out.TreeCost = res.TreeCost(g, roots)
	out.DAGCost = res.DAGCost(g, roots)
	out.Depth = res.DepthCost(g, roots)
	span.SetAttributes(
		attribute.Float64("egx.tree_cost", out.TreeCost),
		attribute.Float64("egx.dag_cost", out.DAGCost),
		attribute.Int("egx.depth", out.Depth),
		attribute.Int64("egx.evaluations", res.Stats.Evaluations),
	)
	slog.Debug("extraction finished",
		"extractor", e.Name,
		"duration", out.Duration,
		"tree_cost", out.TreeCost,
		"dag_cost", out.DAGCost,
		"depth", out.Depth,
		"evaluations", res.Stats.Evaluations,
		"commits", res.Stats.Commits,
	)
	return out
}
