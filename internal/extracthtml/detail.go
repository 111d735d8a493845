package extracthtml

import (
	"fmt"
	"strings"

	"cuiregistry/internal/cui"

	"github.com/PuerkitoBio/goquery"
)

// RawRow is one authority row exactly as found in a detail-page table, before
// the sanctions cell is split.
type RawRow struct {
	Authority    string `json:"authority"`
	Designation  string `json:"basic_or_specified"`
	Safeguarding string `json:"safeguarding"`
	Sanctions    string `json:"sanctions_raw"`
}

// Record converts the row into a cui.Record belonging to link.
func (r RawRow) Record(link cui.CategoryLink) cui.Record {
	return cui.Record{
		Organization: link.Organization,
		Category:     link.Category,
		Authority:    r.Authority,
		Designation:  cui.ParseDesignation(r.Designation),
		Safeguarding: r.Safeguarding,
		Sanctions:    cui.SplitSanctions(r.Sanctions),
		SourceURL:    link.URL,
	}
}

// DetailPolicy decides which tables on a detail page hold authority rows and
// extracts them.
type DetailPolicy interface {
	Name() string
	Rows(doc *goquery.Document) []RawRow
}

// Policy names accepted by PolicyByName.
const (
	PolicyHeaderChecked = "header_checked"
	PolicyPositional    = "positional"
)

// PolicyByName maps a configured policy name to its implementation. The
// empty name selects HeaderChecked.
func PolicyByName(name string) (DetailPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyHeaderChecked:
		return HeaderChecked{}, nil
	case PolicyPositional:
		return Positional{}, nil
	}
	return nil, fmt.Errorf("unknown detail policy %q", name)
}

// ExtractAuthorities parses a detail page and applies policy to it.
// Malformed tables yield no rows rather than an error.
func ExtractAuthorities(src string, policy DetailPolicy) ([]RawRow, error) {
	if policy == nil {
		policy = HeaderChecked{}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return policy.Rows(doc), nil
}

// HeaderChecked only reads tables whose first header cell mentions
// "authority" and whose second mentions "basic".
type HeaderChecked struct{}

func (HeaderChecked) Name() string { return PolicyHeaderChecked }

func (HeaderChecked) Rows(doc *goquery.Document) []RawRow {
	return tableRows(doc, headerAccepts)
}

func headerAccepts(header *goquery.Selection) bool {
	cells := header.ChildrenFiltered("th, td")
	if cells.Length() < 2 {
		return false
	}
	first := strings.ToLower(cellText(cells.Eq(0)))
	second := strings.ToLower(cellText(cells.Eq(1)))
	return strings.Contains(first, "authority") && strings.Contains(second, "basic")
}

// Positional reads every table and maps the first four cells of each data
// row. It picks up unrelated tables and is kept for pages that lack headers.
type Positional struct{}

func (Positional) Name() string { return PolicyPositional }

func (Positional) Rows(doc *goquery.Document) []RawRow {
	return tableRows(doc, func(*goquery.Selection) bool { return true })
}

// tableRows skips each accepted table's first row and maps every following
// row with at least four td cells. Rows of nested tables belong to the
// nested table only.
func tableRows(doc *goquery.Document, accept func(header *goquery.Selection) bool) []RawRow {
	var out []RawRow
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := ownRows(table)
		if rows.Length() < 2 || !accept(rows.First()) {
			return
		}
		rows.Slice(1, rows.Length()).Each(func(_ int, tr *goquery.Selection) {
			cells := tr.ChildrenFiltered("td")
			if cells.Length() < 4 {
				return
			}
			out = append(out, RawRow{
				Authority:    cellText(cells.Eq(0)),
				Designation:  cellText(cells.Eq(1)),
				Safeguarding: cellText(cells.Eq(2)),
				Sanctions:    cellMultiline(cells.Eq(3)),
			})
		})
	})
	return out
}

// ownRows returns the rows of table, excluding rows of nested tables.
func ownRows(table *goquery.Selection) *goquery.Selection {
	return table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.Closest("table").IsSelection(table)
	})
}
