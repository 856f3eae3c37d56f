// Package extract chooses one node per e-class so that the chosen nodes form
// a term for each root.
//
// Heuristic extractors all share one shape: a worklist seeded with leaf
// nodes, a per-class cost table, and a parent index used to re-queue the
// parents of any class whose cost strictly improves. The parallel variants
// drain the worklist in batches, evaluate a batch concurrently against a
// snapshot of the table, reduce to the best candidate per class, and commit
// only candidates that still beat the table.
//
// Extractors provided:
//   - BottomUp / ParallelBottomUp: minimum tree cost per class
//   - Depth / ParallelDepth: minimum term height per class
//   - GreedyDAG / ParallelGreedyDAG: per-class cost sets that pay shared
//     sub-terms once, approximating minimum DAG cost
//
// The ILP extractor lives in package ilp and implements the same Extractor
// interface.
//
// Every Result can be validated with Check, which reports missing choices,
// misplaced choices, and cycles, and measured with TreeCost, DAGCost and
// DepthCost.
package extract
