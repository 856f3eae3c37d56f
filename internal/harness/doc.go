// Package harness runs extraction scenarios as executable contract tests.
//
// A scenario carries a small e-graph, names the extractors to run on it,
// and states what every run must produce.
//
// # Scenario Format
//
//	name: diamond
//	description: "shared leaf is paid once in DAG cost"
//	graph:
//	  roots: [0]
//	  nodes:
//	    - {id: "0.0", op: r, cost: 1, children: [1, 2]}
//	    - {id: "1.0", op: x, cost: 1, children: [3]}
//	    - {id: "2.0", op: y, cost: 1, children: [3]}
//	    - {id: "3.0", op: z, cost: 5}
//	extractors: [bottom-up, greedy-dag]
//	model: true
//	assertions:
//	  - type: dag_cost
//	    extractor: greedy-dag
//	    value: 8
//	  - type: tree_cost
//	    extractor: bottom-up
//	    value: 13
//
// Instead of an inline graph, graph_file names a serialized e-graph relative
// to the scenario file. An empty extractors list runs every registered
// extractor. Every run must pass the result check unless an error assertion
// names it.
//
// # Assertion Types
//
//   - valid: the named extractors (default: all) succeeded
//   - tree_cost, dag_cost, depth: exact value, or at most max
//   - choice: the extractor chose node for class
//   - error: the extractor failed with code
//   - cost_order: each extractor's metric is <= the next one's
//   - same_cost: every extractor reached the same metric
//
// # Golden Files
//
// RunWithGolden snapshots the outcomes of a scenario (costs, depth, choices,
// error codes; never durations) under testdata/golden. With model: true the
// ILP model text is snapshotted alongside. Regenerate with
//
//	go test ./internal/harness -update
package harness
