// Package sqlite is the SQLite storage backend (pure Go driver
// modernc.org/sqlite). Timestamps are stored as RFC3339 text.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"cuiregistry/internal/storage"

	_ "modernc.org/sqlite"
)

// rowsPerStatement keeps each INSERT well under SQLite's variable limit.
const rowsPerStatement = 200

// Repo implements storage.Repository for SQLite.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database at cfg.DSN (a file path or "file:" URI).
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// One writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

var createStatements = []string{
	`CREATE TABLE IF NOT EXISTS cui_runs (
	run_id TEXT PRIMARY KEY,
	index_url TEXT NOT NULL,
	harvested_at TEXT NOT NULL,
	total_records INTEGER NOT NULL,
	sanction_columns INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS cui_authorities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES cui_runs(run_id),
	row_hash TEXT NOT NULL,
	position INTEGER NOT NULL,
	organization TEXT NOT NULL,
	category TEXT NOT NULL,
	authority TEXT NOT NULL,
	designation TEXT NOT NULL,
	safeguarding TEXT NOT NULL,
	sanctions TEXT NOT NULL,
	source_url TEXT NOT NULL,
	UNIQUE (run_id, row_hash)
)`,
	`CREATE INDEX IF NOT EXISTS cui_authorities_category ON cui_authorities (category)`,
}

// EnsureTables creates the tables and the category index if missing.
func (r *Repo) EnsureTables(ctx context.Context) error {
	for _, stmt := range createStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: ensure tables: %w", err)
		}
	}
	return nil
}

// SaveRun inserts the run and its rows in one transaction. Rows already
// present for the run are ignored via INSERT OR IGNORE on the
// (run_id, row_hash) unique constraint.
func (r *Repo) SaveRun(ctx context.Context, run storage.Run, rows []storage.Row) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	runArgs := run.Values()
	runArgs[2] = run.HarvestedAt.UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, buildInsertSQL(storage.RunsTable, storage.RunColumns, 1), runArgs...); err != nil {
		return 0, fmt.Errorf("sqlite: insert run: %w", err)
	}

	var inserted int64
	for _, chunk := range storage.Chunks(rows, rowsPerStatement) {
		args := make([]any, 0, len(chunk)*len(storage.AuthorityColumns))
		for _, row := range chunk {
			args = append(args, row.Values()...)
		}
		res, err := tx.ExecContext(ctx, buildInsertSQL(storage.AuthoritiesTable, storage.AuthorityColumns, len(chunk)), args...)
		if err != nil {
			return inserted, fmt.Errorf("sqlite: insert authorities: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("sqlite: rows affected: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return inserted, nil
}

// buildInsertSQL returns an INSERT OR IGNORE for n rows of columns.
func buildInsertSQL(table string, columns []string, n int) string {
	var b strings.Builder
	b.WriteString("INSERT OR IGNORE INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES ")

	tuple := "(" + strings.TrimRight(strings.Repeat("?, ", len(columns)), ", ") + ")"
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
	}
	return b.String()
}
