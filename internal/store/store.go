package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// connParams are applied by the driver to every connection it opens.
// journal_mode=WAL lets `egx runs` read while a bench sweep is writing.
var connParams = url.Values{
	"_journal_mode": {"WAL"},
	"_synchronous":  {"NORMAL"},
	"_busy_timeout": {"5000"},
	"_foreign_keys": {"on"},
}

// migration upgrades a store whose user_version is below version.
type migration struct {
	version int
	stmt    string
}

// migrations run in order on top of schema.sql. The last entry's version is
// the one written to user_version.
var migrations = []migration{
	{1, `CREATE INDEX IF NOT EXISTS idx_runs_best ON runs(graph_digest, dag_cost)`},
}

// Store records extraction runs in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens the run store at path, creating the file and its tables on
// first use and upgrading an older store in place.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?"+connParams.Encode())
	if err != nil {
		return nil, fmt.Errorf("opening run store %s: %w", path, err)
	}
	// One writer; a second pooled connection would only wait on busy_timeout.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening run store %s: %w", path, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables in %s: %w", path, err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("upgrading %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database. Closing a zero Store is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func schemaVersion() int {
	return migrations[len(migrations)-1].version
}

// migrate applies every migration newer than the stored user_version in a
// single transaction.
func migrate(db *sql.DB) error {
	var have int
	if err := db.QueryRow("PRAGMA user_version").Scan(&have); err != nil {
		return fmt.Errorf("reading user_version: %w", err)
	}
	if have >= schemaVersion() {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, m := range migrations {
		if m.version <= have {
			continue
		}
		if _, err := tx.Exec(m.stmt); err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion())); err != nil {
		return fmt.Errorf("writing user_version: %w", err)
	}
	return tx.Commit()
}

// pragma reads the current value of a connection setting.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("reading pragma %s: %w", name, err)
	}
	return value, nil
}
