// Package mssql is the Microsoft SQL Server storage backend.
//
// This package does not import a driver. The "sqlserver" driver is
// registered by internal/storage/all (github.com/microsoft/go-mssqldb).
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"cuiregistry/internal/storage"
)

// SQL Server allows 2100 parameters per statement; 150 rows of 10 columns
// stays well below that.
const rowsPerStatement = 150

// Repo implements storage.Repository for SQL Server.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", New)
}

// New opens cfg.DSN with the "sqlserver" driver and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return newWithDB(db), nil
}

func newWithDB(db *sql.DB) *Repo { return &Repo{db: db} }

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

var createStatements = []string{
	`IF OBJECT_ID(N'dbo.cui_runs', N'U') IS NULL
CREATE TABLE dbo.cui_runs (
	run_id NVARCHAR(64) NOT NULL PRIMARY KEY,
	index_url NVARCHAR(2048) NOT NULL,
	harvested_at DATETIMEOFFSET NOT NULL,
	total_records INT NOT NULL,
	sanction_columns INT NOT NULL
)`,
	`IF OBJECT_ID(N'dbo.cui_authorities', N'U') IS NULL
CREATE TABLE dbo.cui_authorities (
	id BIGINT IDENTITY(1,1) NOT NULL PRIMARY KEY,
	run_id NVARCHAR(64) NOT NULL REFERENCES dbo.cui_runs (run_id),
	row_hash CHAR(64) NOT NULL,
	position INT NOT NULL,
	organization NVARCHAR(512) NOT NULL,
	category NVARCHAR(512) NOT NULL,
	authority NVARCHAR(MAX) NOT NULL,
	designation NVARCHAR(256) NOT NULL,
	safeguarding NVARCHAR(MAX) NOT NULL,
	sanctions NVARCHAR(MAX) NOT NULL,
	source_url NVARCHAR(2048) NOT NULL,
	CONSTRAINT cui_authorities_run_row UNIQUE (run_id, row_hash)
)`,
}

// EnsureTables creates the tables if missing.
func (r *Repo) EnsureTables(ctx context.Context) error {
	for _, stmt := range createStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("mssql: ensure tables: %w", err)
		}
	}
	return nil
}

// SaveRun inserts the run and its rows in one transaction.
//
// SQL Server has no ON CONFLICT; idempotency comes from NOT EXISTS
// against the target plus an in-batch dedupe, because a VALUES source with
// the same key twice would otherwise violate the unique constraint.
func (r *Repo) SaveRun(ctx context.Context, run storage.Run, rows []storage.Row) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mssql: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q, args := buildInsertRunSQL(run)
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return 0, fmt.Errorf("mssql: insert run: %w", err)
	}

	var inserted int64
	for _, chunk := range storage.Chunks(storage.DedupeRows(rows), rowsPerStatement) {
		q, args := buildInsertNotExistsSQL(chunk)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("mssql: insert authorities: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("mssql: rows affected: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mssql: commit: %w", err)
	}
	return inserted, nil
}

func buildInsertRunSQL(run storage.Run) (string, []any) {
	cols := strings.Join(storage.RunColumns, ", ")
	q := "IF NOT EXISTS (SELECT 1 FROM dbo.cui_runs WHERE run_id = @p1) " +
		"INSERT INTO dbo.cui_runs (" + cols + ") VALUES (" + placeholders(1, len(storage.RunColumns)) + ")"
	return q, run.Values()
}

// buildInsertNotExistsSQL inserts rows whose (run_id, row_hash) is not yet in
// the target.
func buildInsertNotExistsSQL(rows []storage.Row) (string, []any) {
	cols := storage.AuthorityColumns
	colList := strings.Join(cols, ", ")

	var b strings.Builder
	b.WriteString("INSERT INTO dbo.cui_authorities (")
	b.WriteString(colList)
	b.WriteString(") SELECT ")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("v." + c)
	}
	b.WriteString(" FROM (VALUES ")

	args := make([]any, 0, len(rows)*len(cols))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(" + placeholders(len(args)+1, len(cols)) + ")")
		args = append(args, row.Values()...)
	}
	b.WriteString(") AS v (")
	b.WriteString(colList)
	b.WriteString(") WHERE NOT EXISTS (SELECT 1 FROM dbo.cui_authorities t WHERE t.run_id = v.run_id AND t.row_hash = v.row_hash)")
	return b.String(), args
}

// placeholders returns "@p<start>, ..., @p<start+n-1>".
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "@p" + strconv.Itoa(start+i)
	}
	return strings.Join(parts, ", ")
}
