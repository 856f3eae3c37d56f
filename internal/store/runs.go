package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/egx/internal/egraph"
	"github.com/roach88/egx/internal/extract"
)

// Status is the outcome of a run.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Run is one extractor run on one e-graph.
type Run struct {
	ID          string
	Seq         int64 // assigned on write
	GraphName   string
	GraphDigest string
	Extractor   string
	Status      Status
	ErrorCode   extract.ErrorCode
	Error       string

	// Costs are +Inf and Depth is -1 for failed runs.
	TreeCost float64
	DAGCost  float64
	Depth    int
	Duration time.Duration

	Config    map[string]any
	CreatedAt time.Time
}

// NewRun builds a run record from a measured extraction.
func NewRun(graphName, digest string, out extract.Outcome, config map[string]any) (Run, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Run{}, fmt.Errorf("generate run id: %w", err)
	}
	run := Run{
		ID:          id.String(),
		GraphName:   graphName,
		GraphDigest: digest,
		Extractor:   out.Extractor,
		Status:      StatusOK,
		TreeCost:    out.TreeCost,
		DAGCost:     out.DAGCost,
		Depth:       out.Depth,
		Duration:    out.Duration,
		Config:      config,
		CreatedAt:   time.Now().UTC(),
	}
	if out.Err != nil {
		run.Status = StatusFailed
		run.ErrorCode = extract.CodeOf(out.Err)
		run.Error = out.Err.Error()
	}
	return run, nil
}

// WriteRun inserts a run and, for successful runs, its choices in one
// transaction. The assigned seq is returned.
func (s *Store) WriteRun(ctx context.Context, run Run, choices []extract.Choice) (int64, error) {
	configJSON, err := marshalConfig(run.Config)
	if err != nil {
		return 0, fmt.Errorf("write run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, graph_name, graph_digest, extractor, status, error_code, error,
		 tree_cost, dag_cost, depth, duration_ns, config, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.GraphName,
		run.GraphDigest,
		run.Extractor,
		string(run.Status),
		string(run.ErrorCode),
		run.Error,
		nullCost(run.TreeCost),
		nullCost(run.DAGCost),
		run.Depth,
		run.Duration.Nanoseconds(),
		configJSON,
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("write run: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("write run: last insert id: %w", err)
	}

	if run.Status == StatusOK && len(choices) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO choices (run_id, class_id, node_id) VALUES (?, ?, ?)`)
		if err != nil {
			return 0, fmt.Errorf("write run: prepare choices: %w", err)
		}
		defer stmt.Close()
		for _, c := range choices {
			if _, err := stmt.ExecContext(ctx, run.ID, int64(c.Class), c.Node.String()); err != nil {
				return 0, fmt.Errorf("write run: choice for class %s: %w", c.Class, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("write run: commit: %w", err)
	}
	return seq, nil
}

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	GraphDigest string
	Extractor   string
	Status      Status
	Limit       int // most recent N; 0 means all
}

const runColumns = `seq, id, graph_name, graph_digest, extractor, status, error_code, error,
	tree_cost, dag_cost, depth, duration_ns, config, created_at`

// ListRuns returns matching runs ordered by seq ASC.
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListRuns(ctx context.Context, f RunFilter) ([]Run, error) {
	var where []string
	var args []any
	if f.GraphDigest != "" {
		where = append(where, "graph_digest = ?")
		args = append(args, f.GraphDigest)
	}
	if f.Extractor != "" {
		where = append(where, "extractor = ?")
		args = append(args, f.Extractor)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	query := "SELECT " + runColumns + " FROM runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Limit > 0 {
		// Keep the newest N, still returned oldest first.
		query = "SELECT * FROM (" + query + " ORDER BY seq DESC LIMIT ?) ORDER BY seq ASC"
		args = append(args, f.Limit)
	} else {
		query += " ORDER BY seq ASC"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun retrieves a single run by id.
// Returns ErrNotFound if there is none.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

// BestRun returns the successful run with the lowest DAG cost for a graph.
// Ties go to the earliest run. Returns ErrNotFound if there is none.
func (s *Store) BestRun(ctx context.Context, digest string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE graph_digest = ? AND status = 'ok' AND dag_cost IS NOT NULL
		ORDER BY dag_cost ASC, seq ASC
		LIMIT 1
	`, digest)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: no successful run for graph %s", ErrNotFound, digest)
	}
	return run, err
}

// ReadChoices returns the choices of a run ordered by class.
func (s *Store) ReadChoices(ctx context.Context, runID string) ([]extract.Choice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT class_id, node_id
		FROM choices
		WHERE run_id = ?
		ORDER BY class_id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query choices: %w", err)
	}
	defer rows.Close()

	choices := []extract.Choice{}
	for rows.Next() {
		var class int64
		var node string
		if err := rows.Scan(&class, &node); err != nil {
			return nil, fmt.Errorf("scan choice: %w", err)
		}
		nid, err := egraph.ParseNodeID(node)
		if err != nil {
			return nil, fmt.Errorf("scan choice: %w", err)
		}
		choices = append(choices, extract.Choice{Class: egraph.ClassID(class), Node: nid})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate choices: %w", err)
	}
	return choices, nil
}

// ReadResult loads a run's choices as an extraction result.
func (s *Store) ReadResult(ctx context.Context, runID string) (*extract.Result, error) {
	choices, err := s.ReadChoices(ctx, runID)
	if err != nil {
		return nil, err
	}
	res := extract.NewResult()
	for _, c := range choices {
		res.Choose(c.Class, c.Node)
	}
	return res, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans one row selected with runColumns.
func scanRun(row scanner) (Run, error) {
	var (
		run                   Run
		status, code, created string
		configJSON            string
		tree, dag             sql.NullFloat64
		durationNS            int64
	)
	if err := row.Scan(
		&run.Seq, &run.ID, &run.GraphName, &run.GraphDigest, &run.Extractor,
		&status, &code, &run.Error, &tree, &dag, &run.Depth, &durationNS,
		&configJSON, &created,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	run.Status = Status(status)
	run.ErrorCode = extract.ErrorCode(code)
	run.TreeCost = costOf(tree)
	run.DAGCost = costOf(dag)
	run.Duration = time.Duration(durationNS)

	config, err := unmarshalConfig(configJSON)
	if err != nil {
		return Run{}, err
	}
	run.Config = config

	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Run{}, fmt.Errorf("scan run: created_at: %w", err)
	}
	run.CreatedAt = t
	return run, nil
}
