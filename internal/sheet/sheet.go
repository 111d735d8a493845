// Package sheet persists a harvested cui.Dataset as an .xlsx workbook and
// reads it back for the viewer.
//
// The workbook holds four sheets: the record table, two per-category
// aggregates and a one-row Metadata sheet. An empty harvest writes an Error
// marker into Metadata instead of a record count, and Read refuses such a
// workbook with ErrEmptyHarvest.
package sheet

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cuiregistry/internal/cui"

	"github.com/xuri/excelize/v2"
)

// Sheet names.
const (
	SheetRecords   = "CUI Authorities"
	SheetSources   = "Sources Per Category"
	SheetSanctions = "Sanctions Per Category"
	SheetMetadata  = "Metadata"
)

// Record table headers. Sanction columns are "Sanction 1".."Sanction N".
const (
	ColOrganization = "Organizational Category"
	ColCategory     = "Category"
	ColAuthority    = "Authority"
	ColDesignation  = "Basic/Specified"
	ColSafeguarding = "Safeguarding and/or Dissemination Authority"
	ColSourceURL    = "Source URL"
	colSanctionN    = "Sanction "
	colSanctions    = "Sanctions" // single raw column of older workbooks
)

// Metadata keys.
const (
	MetaTotal          = "Total Sources"
	MetaRunID          = "Run ID"
	MetaHarvestedAt    = "Harvested At"
	MetaIndexURL       = "Index URL"
	MetaSanctionWidth  = "Sanction Columns"
	MetaError          = "Error"
	EmptyHarvestMarker = "No data scraped"
)

var (
	// ErrEmptyHarvest reports a workbook whose Metadata carries the
	// empty-run marker.
	ErrEmptyHarvest = errors.New("harvest produced no data")
	// ErrMissingSheet reports a workbook without one of the expected sheets.
	ErrMissingSheet = errors.New("missing sheet")
)

// SanctionHeader is the header of the i-th (1-based) sanction column.
func SanctionHeader(i int) string { return colSanctionN + strconv.Itoa(i) }

// RecordHeaders returns the record table header for a run-wide sanction
// width.
func RecordHeaders(width int) []string {
	h := []string{ColOrganization, ColCategory, ColAuthority, ColDesignation, ColSafeguarding}
	for i := 1; i <= width; i++ {
		h = append(h, SanctionHeader(i))
	}
	return append(h, ColSourceURL)
}

// WriteFile writes ds to path, creating parent directories.
func WriteFile(path string, ds *cui.Dataset) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Write(out, ds); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// Write encodes ds as an xlsx workbook to w.
func Write(w io.Writer, ds *cui.Dataset) error {
	f, err := build(ds)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func build(ds *cui.Dataset) (*excelize.File, error) {
	if ds == nil {
		ds = &cui.Dataset{}
	}
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetRecords); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename default sheet: %w", err)
	}
	for _, name := range []string{SheetSources, SheetSanctions, SheetMetadata} {
		if _, err := f.NewSheet(name); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("new sheet %q: %w", name, err)
		}
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}

	w := &sheetWriter{f: f, headerStyle: bold}
	w.records(ds)
	w.counts(SheetSources, "Source Count", ds.CountByCategory())
	w.counts(SheetSanctions, "Sanction Count", ds.SanctionedByCategory())
	w.metadata(ds)
	if w.err != nil {
		_ = f.Close()
		return nil, w.err
	}
	f.SetActiveSheet(0)
	return f, nil
}

// sheetWriter keeps the first error so the layout code reads top to bottom.
type sheetWriter struct {
	f           *excelize.File
	headerStyle int
	err         error
}

func (w *sheetWriter) row(sheet string, n int, values []any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetSheetRow(sheet, cell, &values); err != nil {
		w.err = fmt.Errorf("%s row %d: %w", sheet, n, err)
	}
}

func (w *sheetWriter) header(sheet string, names []string) {
	values := make([]any, len(names))
	for i, n := range names {
		values[i] = n
	}
	w.row(sheet, 1, values)
	if w.err != nil {
		return
	}
	if err := w.f.SetRowStyle(sheet, 1, 1, w.headerStyle); err != nil {
		w.err = fmt.Errorf("%s header style: %w", sheet, err)
		return
	}
	if err := w.f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		w.err = fmt.Errorf("%s freeze header: %w", sheet, err)
	}
}

func (w *sheetWriter) records(ds *cui.Dataset) {
	width := ds.SanctionWidth()
	w.header(SheetRecords, RecordHeaders(width))
	for i, r := range ds.Records {
		values := []any{r.Organization, r.Category, r.Authority, string(r.Designation), r.Safeguarding}
		for _, s := range ds.PaddedSanctions(i) {
			values = append(values, s)
		}
		values = append(values, r.SourceURL)
		w.row(SheetRecords, i+2, values)
	}
}

func (w *sheetWriter) counts(sheet, countHeader string, counts []cui.CategoryCount) {
	w.header(sheet, []string{ColCategory, countHeader})
	for i, c := range counts {
		w.row(sheet, i+2, []any{c.Category, c.Count})
	}
}

func (w *sheetWriter) metadata(ds *cui.Dataset) {
	harvestedAt := ""
	if !ds.HarvestedAt.IsZero() {
		harvestedAt = ds.HarvestedAt.UTC().Format(time.RFC3339)
	}
	if ds.Empty() {
		w.header(SheetMetadata, []string{MetaError, MetaRunID, MetaHarvestedAt})
		w.row(SheetMetadata, 2, []any{EmptyHarvestMarker, ds.RunID, harvestedAt})
		return
	}
	w.header(SheetMetadata, []string{MetaTotal, MetaRunID, MetaHarvestedAt, MetaIndexURL, MetaSanctionWidth})
	w.row(SheetMetadata, 2, []any{ds.Total(), ds.RunID, harvestedAt, ds.IndexURL, ds.SanctionWidth()})
}

// ReadFile opens an xlsx workbook written by WriteFile.
func ReadFile(path string) (*cui.Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return read(f)
}

// Read decodes a workbook written by Write.
func Read(r io.Reader) (*cui.Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return read(f)
}

func read(f *excelize.File) (*cui.Dataset, error) {
	present := make(map[string]bool)
	for _, name := range f.GetSheetList() {
		present[name] = true
	}
	for _, name := range []string{SheetRecords, SheetMetadata} {
		if !present[name] {
			return nil, fmt.Errorf("%w: %q", ErrMissingSheet, name)
		}
	}

	meta, err := readMetadata(f)
	if err != nil {
		return nil, err
	}
	if msg, ok := meta[MetaError]; ok {
		return nil, fmt.Errorf("%w: %s", ErrEmptyHarvest, msg)
	}

	ds := &cui.Dataset{RunID: meta[MetaRunID], IndexURL: meta[MetaIndexURL]}
	if ts := meta[MetaHarvestedAt]; ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			ds.HarvestedAt = t
		}
	}

	rows, err := f.GetRows(SheetRecords)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", SheetRecords, err)
	}
	if len(rows) == 0 {
		return ds, nil
	}
	cols, err := mapColumns(rows[0])
	if err != nil {
		return nil, err
	}
	for _, row := range rows[1:] {
		rec, ok := cols.record(row)
		if ok {
			ds.Records = append(ds.Records, rec)
		}
	}
	return ds, nil
}

func readMetadata(f *excelize.File) (map[string]string, error) {
	rows, err := f.GetRows(SheetMetadata)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", SheetMetadata, err)
	}
	meta := make(map[string]string)
	if len(rows) == 0 {
		return meta, nil
	}
	var values []string
	if len(rows) > 1 {
		values = rows[1]
	}
	for i, key := range rows[0] {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		meta[key] = cell(values, i)
	}
	return meta, nil
}

// columns maps record fields to column positions of the header row.
type columns struct {
	org, cat, auth, desig, safe, src int
	sanctions                        []int
	raw                              int
}

func mapColumns(header []string) (columns, error) {
	c := columns{org: -1, cat: -1, auth: -1, desig: -1, safe: -1, src: -1, raw: -1}
	for i, h := range header {
		switch h = strings.TrimSpace(h); {
		case h == ColOrganization:
			c.org = i
		case h == ColCategory:
			c.cat = i
		case h == ColAuthority:
			c.auth = i
		case h == ColDesignation:
			c.desig = i
		case h == ColSafeguarding:
			c.safe = i
		case h == ColSourceURL:
			c.src = i
		case h == colSanctions:
			c.raw = i
		case strings.HasPrefix(h, colSanctionN):
			c.sanctions = append(c.sanctions, i)
		}
	}
	if c.cat < 0 {
		return c, fmt.Errorf("%s: missing %q column", SheetRecords, ColCategory)
	}
	return c, nil
}

// record converts one data row. GetRows drops trailing empty cells, so every
// lookup tolerates short rows.
func (c columns) record(row []string) (cui.Record, bool) {
	empty := true
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			empty = false
			break
		}
	}
	if empty {
		return cui.Record{}, false
	}
	rec := cui.Record{
		Organization: cell(row, c.org),
		Category:     cell(row, c.cat),
		Authority:    cell(row, c.auth),
		Designation:  cui.ParseDesignation(cell(row, c.desig)),
		Safeguarding: cell(row, c.safe),
		SourceURL:    cell(row, c.src),
	}
	for _, i := range c.sanctions {
		if v := cell(row, i); v != "" {
			rec.Sanctions = append(rec.Sanctions, v)
		}
	}
	if c.raw >= 0 {
		rec.Sanctions = append(rec.Sanctions, cui.SplitSanctions(cell(row, c.raw))...)
	}
	return rec, true
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
