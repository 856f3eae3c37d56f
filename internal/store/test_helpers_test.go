package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/egx/internal/extract"
	"github.com/roach88/egx/internal/testutil"
)

// testRunIDs replaces UUIDs in test runs so failures name runs readably.
var testRunIDs = testutil.NewSequentialRunIDs()

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a successful run with minimal required fields.
func createTestRun(t *testing.T, digest, extractor string, dagCost float64) Run {
	t.Helper()
	run, err := NewRun("test.json", digest, extract.Outcome{
		Extractor: extractor,
		TreeCost:  dagCost + 1,
		DAGCost:   dagCost,
		Depth:     2,
		Duration:  3 * time.Millisecond,
	}, map[string]any{"workers": 4})
	if err != nil {
		t.Fatalf("NewRun() failed: %v", err)
	}
	run.ID = testRunIDs.Generate()
	return run
}
