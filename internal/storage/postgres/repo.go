// Package postgres is the Postgres storage backend built on pgxpool.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"cuiregistry/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres allows 65535 bind parameters per statement.
const rowsPerStatement = 1000

// Repo implements storage.Repository for Postgres.
type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// New creates a pool for cfg.DSN and verifies connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureTables creates the tables and the category index if missing.
func (r *Repo) EnsureTables(ctx context.Context) error {
	for _, stmt := range createStatements() {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: ensure tables: %w", err)
		}
	}
	return nil
}

// SaveRun inserts the run and its rows in one transaction using
// ON CONFLICT DO NOTHING, so re-saving a run changes nothing.
func (r *Repo) SaveRun(ctx context.Context, run storage.Run, rows []storage.Row) (int64, error) {
	var inserted int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		q, args := buildInsertSQL(storage.RunsTable, storage.RunColumns, [][]any{run.Values()}, []string{"run_id"})
		if _, err := tx.Exec(ctx, q, args...); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		for _, chunk := range storage.Chunks(rows, rowsPerStatement) {
			values := make([][]any, len(chunk))
			for i, row := range chunk {
				values[i] = row.Values()
			}
			q, args := buildInsertSQL(storage.AuthoritiesTable, storage.AuthorityColumns, values, []string{"run_id", "row_hash"})
			tag, err := tx.Exec(ctx, q, args...)
			if err != nil {
				return fmt.Errorf("insert authorities: %w", err)
			}
			inserted += tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("postgres: %w", err)
	}
	return inserted, nil
}

func createStatements() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS cui_runs (
	run_id TEXT PRIMARY KEY,
	index_url TEXT NOT NULL,
	harvested_at TIMESTAMPTZ NOT NULL,
	total_records INTEGER NOT NULL,
	sanction_columns INTEGER NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS cui_authorities (
	id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES cui_runs (run_id),
	row_hash CHAR(64) NOT NULL,
	position INTEGER NOT NULL,
	organization TEXT NOT NULL,
	category TEXT NOT NULL,
	authority TEXT NOT NULL,
	designation TEXT NOT NULL,
	safeguarding TEXT NOT NULL,
	sanctions TEXT NOT NULL,
	source_url TEXT NOT NULL,
	CONSTRAINT cui_authorities_run_row UNIQUE (run_id, row_hash)
)`,
		`CREATE INDEX IF NOT EXISTS cui_authorities_category ON cui_authorities (category)`,
	}
}

// buildInsertSQL constructs a single INSERT statement and its args.
//
// It is pure, so placeholder numbering and the ON CONFLICT clause are unit
// tested without a database. Every row must have len(columns) values.
func buildInsertSQL(table string, columns []string, rows [][]any, conflictColumns []string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	n := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			args = append(args, row[j])
		}
		b.WriteByte(')')
	}

	if len(conflictColumns) > 0 {
		b.WriteString(" ON CONFLICT (")
		for i, c := range conflictColumns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgIdent(c))
		}
		b.WriteString(") DO NOTHING")
	}
	return b.String(), args
}

// pgIdent quotes an identifier.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
