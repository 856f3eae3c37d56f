// Package store provides SQLite-backed storage for extraction runs.
//
// The store is append-only:
//   - Runs: one row per extractor run on one e-graph, with its costs,
//     duration, status and the configuration it ran with
//   - Choices: the class → node selection of every successful run
//
// Runs are keyed by a UUIDv7 id and ordered by seq, the insertion counter.
// Timestamps are recorded for humans and never used for ordering.
//
// E-graphs are identified by their content digest (see egraph.Digest), so
// the same graph loaded from differently named or compressed files lands
// on the same key.
//
// Every connection runs in WAL mode with a five second busy timeout, so
// `egx runs` can read while a bench sweep writes. Schema upgrades are
// tracked in SQLite's user_version.
package store
