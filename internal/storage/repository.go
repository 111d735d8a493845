// Package storage mirrors harvest runs into a SQL database.
//
// Backends register themselves by kind ("sqlite", "postgres", "mssql") from
// an init function; import internal/storage/all to link every backend and
// its driver. Each run is appended to cui_runs and its records to
// cui_authorities. Re-saving a run is a no-op per (run_id, row_hash).
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cuiregistry/internal/cui"
)

// Config selects and configures a backend.
type Config struct {
	Kind string
	DSN  string
}

// Table names.
const (
	RunsTable        = "cui_runs"
	AuthoritiesTable = "cui_authorities"
)

// Run is one row of cui_runs.
type Run struct {
	ID            string
	IndexURL      string
	HarvestedAt   time.Time
	Total         int
	SanctionWidth int
}

// Row is one row of cui_authorities. Sanctions holds the entries joined
// with "; ".
type Row struct {
	RunID        string
	RowHash      string
	Position     int
	Organization string
	Category     string
	Authority    string
	Designation  string
	Safeguarding string
	Sanctions    string
	SourceURL    string
}

// AuthorityColumns is the insert column order for cui_authorities. It
// matches Row.Values.
var AuthorityColumns = []string{
	"run_id", "row_hash", "position", "organization", "category",
	"authority", "designation", "safeguarding", "sanctions", "source_url",
}

// RunColumns is the insert column order for cui_runs. It matches
// Run.Values.
var RunColumns = []string{"run_id", "index_url", "harvested_at", "total_records", "sanction_columns"}

// Values returns r in AuthorityColumns order.
func (r Row) Values() []any {
	return []any{
		r.RunID, r.RowHash, r.Position, r.Organization, r.Category,
		r.Authority, r.Designation, r.Safeguarding, r.Sanctions, r.SourceURL,
	}
}

// Values returns r in RunColumns order. Timestamps are UTC.
func (r Run) Values() []any {
	return []any{r.ID, r.IndexURL, r.HarvestedAt.UTC(), r.Total, r.SanctionWidth}
}

// Repository is implemented by every backend.
type Repository interface {
	// Close releases connections. Call once.
	Close()

	// EnsureTables creates cui_runs and cui_authorities if missing.
	EnsureTables(ctx context.Context) error

	// SaveRun stores run and its rows in one transaction and returns the
	// number of authority rows actually inserted.
	SaveRun(ctx context.Context, run Run, rows []Row) (int64, error)
}

// Factory builds a Repository for one backend kind.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available to New. It panics on an empty kind, a
// nil factory or a duplicate kind.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Kinds lists the registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New constructs the Repository registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// RunFromDataset describes ds as a cui_runs row.
func RunFromDataset(ds *cui.Dataset) Run {
	return Run{
		ID:            ds.RunID,
		IndexURL:      ds.IndexURL,
		HarvestedAt:   ds.HarvestedAt,
		Total:         ds.Total(),
		SanctionWidth: ds.SanctionWidth(),
	}
}

// RowsFromDataset flattens ds into cui_authorities rows in record order.
func RowsFromDataset(ds *cui.Dataset) []Row {
	rows := make([]Row, 0, ds.Total())
	for i, r := range ds.Records {
		rows = append(rows, Row{
			RunID:        ds.RunID,
			RowHash:      RowHash(r),
			Position:     i,
			Organization: r.Organization,
			Category:     r.Category,
			Authority:    r.Authority,
			Designation:  string(r.Designation),
			Safeguarding: r.Safeguarding,
			Sanctions:    cui.JoinSanctions(r.Sanctions),
			SourceURL:    r.SourceURL,
		})
	}
	return rows
}

// SaveDataset ensures the tables exist and saves ds as one run.
func SaveDataset(ctx context.Context, repo Repository, ds *cui.Dataset) (int64, error) {
	if err := repo.EnsureTables(ctx); err != nil {
		return 0, fmt.Errorf("ensure tables: %w", err)
	}
	n, err := repo.SaveRun(ctx, RunFromDataset(ds), RowsFromDataset(ds))
	if err != nil {
		return n, fmt.Errorf("save run %s: %w", ds.RunID, err)
	}
	return n, nil
}

// DedupeRows keeps the first row per RowHash, preserving order. Backends
// whose idempotent insert does not collapse duplicates inside one statement
// use it before inserting.
func DedupeRows(rows []Row) []Row {
	seen := make(map[string]struct{}, len(rows))
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if _, dup := seen[r.RowHash]; dup {
			continue
		}
		seen[r.RowHash] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Chunks splits rows into batches of at most size rows.
func Chunks(rows []Row, size int) [][]Row {
	if size <= 0 {
		size = len(rows)
	}
	var out [][]Row
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}
