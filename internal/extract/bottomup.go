package extract

import (
	"context"

	"github.com/roach88/egx/internal/egraph"
)

// Extractor picks one node per class so that the roots are covered.
//
// Heuristic extractors decide every class they can reach from the leaves and
// ignore roots while searching; roots only matter to the ILP extractor and
// to result evaluation.
type Extractor interface {
	Extract(ctx context.Context, g *egraph.EGraph, roots []egraph.ClassID) (*Result, error)
}

// BottomUp minimises tree cost: a class costs its cheapest node, and a node
// costs itself plus the cost of every child class.
type BottomUp struct{}

// Extract implements Extractor.
func (BottomUp) Extract(ctx context.Context, g *egraph.EGraph, _ []egraph.ClassID) (*Result, error) {
	return relax(ctx, g, sumEval)
}

// ParallelBottomUp is BottomUp with batched parallel evaluation. Final class
// costs equal those of BottomUp.
type ParallelBottomUp struct {
	Workers   int // <= 0 uses GOMAXPROCS
	BatchSize int // <= 0 uses DefaultBatchSize
}

// Extract implements Extractor.
func (e ParallelBottomUp) Extract(ctx context.Context, g *egraph.EGraph, _ []egraph.ClassID) (*Result, error) {
	return relaxParallel(ctx, g, sumEval, e.Workers, e.BatchSize)
}

// Depth minimises the height of the extracted term, ignoring node costs.
type Depth struct{}

// Extract implements Extractor.
func (Depth) Extract(ctx context.Context, g *egraph.EGraph, _ []egraph.ClassID) (*Result, error) {
	return relax(ctx, g, depthEval)
}

// ParallelDepth is Depth with batched parallel evaluation.
type ParallelDepth struct {
	Workers   int
	BatchSize int
}

// Extract implements Extractor.
func (e ParallelDepth) Extract(ctx context.Context, g *egraph.EGraph, _ []egraph.ClassID) (*Result, error) {
	return relaxParallel(ctx, g, depthEval, e.Workers, e.BatchSize)
}
