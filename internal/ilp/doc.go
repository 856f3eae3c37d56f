// Package ilp extracts a minimum DAG-cost term by integer programming.
//
// The pipeline:
//  1. run a heuristic extractor for an upper bound and a warm start
//  2. copy the e-graph into a Problem and shrink it with reduction passes
//     that never change the optimum
//  3. encode the Problem as a Model and write it in LP format
//  4. run an external solver on it (see Runner)
//  5. parse the solution, merge the classes the passes decided, and Check
//
// Cycles are excluded inside the model by giving every class an integer
// level that must increase along each chosen edge.
package ilp
