// Package egraph holds the immutable e-graph model shared by every extractor.
//
// An e-graph is a set of nodes grouped into equivalence classes. Each node
// has an operator name, a cost, and a list of child classes. Classes are
// grouped exactly once, when a Builder is turned into an EGraph; after that
// the graph is read-only and may be shared between goroutines freely.
//
// Node ids are (class ordinal, node ordinal) pairs. The legacy textual form
// "a.b" is used for JSON object keys and is accepted wherever a node id is
// read.
//
// Key constraints:
//   - Costs are finite and non-negative
//   - Every child and root reference names a class with at least one node
//   - A node's id class ordinal equals its e-class
package egraph
