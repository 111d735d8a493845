package sheet

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cuiregistry/internal/cui"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() *cui.Dataset {
	return &cui.Dataset{
		RunID:       "run-42",
		IndexURL:    "https://www.archives.gov/cui/registry/category-list",
		HarvestedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Records: []cui.Record{
			{Organization: "OrgX", Category: "CategoryA", Authority: "32 CFR 123", Designation: cui.Basic, Safeguarding: "Limited", Sanctions: []string{"Fine", "Suspension"}, SourceURL: "https://www.archives.gov/a"},
			{Organization: "OrgX", Category: "CategoryA", Authority: "5 USC 552", Designation: cui.Specified, SourceURL: "https://www.archives.gov/a"},
			{Organization: "OrgY", Category: "CategoryB", Authority: "18 USC 1905", Designation: "Basic/Specified", Sanctions: []string{"1", "2", "3", "4", "5"}, SourceURL: "https://www.archives.gov/b"},
		},
	}
}

func openWritten(t *testing.T, ds *cui.Dataset) *excelize.File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, ds))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestWrite_Layout(t *testing.T) {
	t.Parallel()

	f := openWritten(t, sampleDataset())
	assert.Equal(t, []string{SheetRecords, SheetSources, SheetSanctions, SheetMetadata}, f.GetSheetList())

	rows, err := f.GetRows(SheetRecords)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, RecordHeaders(5), rows[0])
	assert.Equal(t, "Sanction 5", rows[0][9])

	sources, err := f.GetRows(SheetSources)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Category", "Source Count"}, {"CategoryA", "2"}, {"CategoryB", "1"}}, sources)

	sanctions, err := f.GetRows(SheetSanctions)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Category", "Sanction Count"}, {"CategoryA", "1"}, {"CategoryB", "1"}}, sanctions)

	meta, err := f.GetRows(SheetMetadata)
	require.NoError(t, err)
	require.Len(t, meta, 2)
	assert.Equal(t, []string{MetaTotal, MetaRunID, MetaHarvestedAt, MetaIndexURL, MetaSanctionWidth}, meta[0])
	assert.Equal(t, []string{"3", "run-42", "2026-03-01T12:00:00Z", "https://www.archives.gov/cui/registry/category-list", "5"}, meta[1])
}

// Every record gets the run-wide number of sanction cells; the unused ones
// are empty and Source URL always lands in the column after the last one.
func TestWrite_SanctionPadding(t *testing.T) {
	t.Parallel()

	f := openWritten(t, sampleDataset())
	rows, err := f.GetRows(SheetRecords)
	require.NoError(t, err)
	for i, row := range rows[1:] {
		require.Len(t, row, 11, "row %d", i+2)
		assert.NotEmpty(t, row[10], "source url (row %d)", i+2)
	}
	assert.Equal(t, []string{"Fine", "Suspension", "", "", ""}, rows[1][5:10])
	assert.Equal(t, []string{"", "", "", "", ""}, rows[2][5:10])
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	want := sampleDataset()
	path := filepath.Join(t.TempDir(), "out", "CUI_Authorities.xlsx")
	require.NoError(t, WriteFile(path, want))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 5, got.SanctionWidth())
}

func TestEmptyHarvest(t *testing.T) {
	t.Parallel()

	ds := &cui.Dataset{RunID: "run-0", HarvestedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	f := openWritten(t, ds)

	meta, err := f.GetRows(SheetMetadata)
	require.NoError(t, err)
	require.Len(t, meta, 2)
	assert.Equal(t, []string{MetaError, MetaRunID, MetaHarvestedAt}, meta[0])
	assert.Equal(t, EmptyHarvestMarker, meta[1][0])
	assert.NotContains(t, meta[0], MetaTotal)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, ds))
	_, err = Read(&buf)
	assert.True(t, errors.Is(err, ErrEmptyHarvest), "err=%v", err)
}

func TestRead_MissingSheet(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	defer f.Close()
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	_, err := Read(&buf)
	assert.True(t, errors.Is(err, ErrMissingSheet), "err=%v", err)
}

// Older workbooks carry one raw "Sanctions" column and no Source URL.
func TestRead_LegacySanctionsColumn(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", SheetRecords))
	_, err := f.NewSheet(SheetMetadata)
	require.NoError(t, err)

	header := []any{ColSafeguarding, ColOrganization, ColAuthority, ColDesignation, ColCategory, "Sanctions"}
	row := []any{"Limited", "OrgX", "32 CFR 123", "Basic", "CategoryA", "Fine;\nSuspension"}
	require.NoError(t, f.SetSheetRow(SheetRecords, "A1", &header))
	require.NoError(t, f.SetSheetRow(SheetRecords, "A2", &row))
	metaHeader := []any{MetaTotal}
	metaRow := []any{1}
	require.NoError(t, f.SetSheetRow(SheetMetadata, "A1", &metaHeader))
	require.NoError(t, f.SetSheetRow(SheetMetadata, "A2", &metaRow))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	ds, err := Read(&buf)
	require.NoError(t, err)
	require.Len(t, ds.Records, 1)
	assert.Equal(t, cui.Record{
		Organization: "OrgX",
		Category:     "CategoryA",
		Authority:    "32 CFR 123",
		Designation:  cui.Basic,
		Safeguarding: "Limited",
		Sanctions:    []string{"Fine", "Suspension"},
	}, ds.Records[0])
}
