package cui

import (
	"sort"
	"time"
)

// Dataset is the ordered output of one harvest run. The harvester builds it
// once; everything downstream treats it as read-only.
type Dataset struct {
	RunID       string
	IndexURL    string
	HarvestedAt time.Time
	Records     []Record
}

// CategoryCount is one row of a per-category aggregate.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Total is the number of records in the dataset.
func (d *Dataset) Total() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// Empty reports whether the run produced no records.
func (d *Dataset) Empty() bool { return d.Total() == 0 }

// SanctionWidth is the run-wide number of sanction columns: the largest
// sanction count of any record.
func (d *Dataset) SanctionWidth() int {
	if d == nil {
		return 0
	}
	return SanctionWidth(d.Records)
}

// PaddedSanctions returns record i's sanctions padded to SanctionWidth.
func (d *Dataset) PaddedSanctions(i int) []string {
	return PadSanctions(d.Records[i].Sanctions, d.SanctionWidth())
}

// CountByCategory counts records per CUI category.
func (d *Dataset) CountByCategory() []CategoryCount {
	if d == nil {
		return nil
	}
	return CountByCategory(d.Records)
}

// SanctionedByCategory counts records per CUI category that carry at least
// one sanction entry.
func (d *Dataset) SanctionedByCategory() []CategoryCount {
	if d == nil {
		return nil
	}
	return SanctionedByCategory(d.Records)
}

// SanctionWidth returns the largest sanction count across records.
func SanctionWidth(records []Record) int {
	width := 0
	for _, r := range records {
		if n := len(r.Sanctions); n > width {
			width = n
		}
	}
	return width
}

// CountByCategory groups records by category. The result is ordered by
// category name.
func CountByCategory(records []Record) []CategoryCount {
	return countBy(records, func(Record) bool { return true })
}

// SanctionedByCategory is CountByCategory restricted to records with a
// non-empty sanction entry. Categories without such records are omitted.
func SanctionedByCategory(records []Record) []CategoryCount {
	return countBy(records, Record.HasSanction)
}

func countBy(records []Record, keep func(Record) bool) []CategoryCount {
	counts := make(map[string]int)
	for _, r := range records {
		if keep(r) {
			counts[r.Category]++
		}
	}
	out := make([]CategoryCount, 0, len(counts))
	for cat, n := range counts {
		out = append(out, CategoryCount{Category: cat, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// CountsAsMap flattens an aggregate into a map keyed by category.
func CountsAsMap(counts []CategoryCount) map[string]int {
	m := make(map[string]int, len(counts))
	for _, c := range counts {
		m[c.Category] = c.Count
	}
	return m
}
