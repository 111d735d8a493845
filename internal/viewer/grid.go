package viewer

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"cuiregistry/internal/cui"
)

// PageSize is the fixed number of grid rows per page.
const PageSize = 15

// Column keys. Sanction columns are "sanction_1" .. "sanction_N".
const (
	ColOrganization = "org_category"
	ColCategory     = "cui_category"
	ColAuthority    = "legal_authority"
	ColDesignation  = "type"
	ColSafeguarding = "safeguarding"
	ColSourceURL    = "source_url"
	sanctionPrefix  = "sanction_"
)

// Column is one grid column: a stable key and its display title.
type Column struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}

// Columns returns the grid layout for a dataset whose widest sanction list
// has width entries.
func Columns(width int) []Column {
	cols := []Column{
		{Key: ColOrganization, Title: "Org Category"},
		{Key: ColCategory, Title: "CUI Category"},
		{Key: ColAuthority, Title: "Legal Authority"},
		{Key: ColDesignation, Title: "Type"},
		{Key: ColSafeguarding, Title: "Safeguarding"},
	}
	for i := 1; i <= width; i++ {
		cols = append(cols, Column{Key: sanctionPrefix + strconv.Itoa(i), Title: "Sanction " + strconv.Itoa(i)})
	}
	return append(cols, Column{Key: ColSourceURL, Title: "Source URL"})
}

// cellValue returns the display text of record r under column key.
func cellValue(r cui.Record, key string) string {
	switch key {
	case ColOrganization:
		return r.Organization
	case ColCategory:
		return r.Category
	case ColAuthority:
		return r.Authority
	case ColDesignation:
		return string(r.Designation)
	case ColSafeguarding:
		return r.Safeguarding
	case ColSourceURL:
		return r.SourceURL
	}
	if n, ok := strings.CutPrefix(key, sanctionPrefix); ok {
		i, err := strconv.Atoi(n)
		if err == nil && i >= 1 && i <= len(r.Sanctions) {
			return r.Sanctions[i-1]
		}
	}
	return ""
}

// GridQuery is the grid's own state: sort column, per-column filters and
// the 1-based page number.
type GridQuery struct {
	Sort    string
	Desc    bool
	Filters map[string]string
	Page    int
}

// ParseGridQuery reads sort=, desc=, page= and f.<column>= parameters.
func ParseGridQuery(q url.Values) GridQuery {
	g := GridQuery{Sort: q.Get("sort"), Page: 1}
	g.Desc, _ = strconv.ParseBool(q.Get("desc"))
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		g.Page = p
	}
	for k, v := range q {
		if key, ok := strings.CutPrefix(k, "f."); ok && len(v) > 0 && strings.TrimSpace(v[0]) != "" {
			if g.Filters == nil {
				g.Filters = map[string]string{}
			}
			g.Filters[key] = v[0]
		}
	}
	return g
}

// GridPage is one rendered page of the grid.
type GridPage struct {
	Columns []Column   `json:"columns"`
	Rows    [][]string `json:"rows"`
	Page    int        `json:"page"`
	Pages   int        `json:"pages"`
	Matched int        `json:"matched"`
}

// BuildGrid filters, sorts and pages records. Column filters are
// case-insensitive substring matches and combine with AND; filters on
// unknown columns are ignored. Sorting is
// stable and uses English collation. A page past the end is clamped to the
// last page.
func BuildGrid(records []cui.Record, width int, q GridQuery) GridPage {
	cols := Columns(width)

	filters := map[string]string{}
	for key, want := range q.Filters {
		if hasColumn(cols, key) {
			filters[key] = strings.ToLower(strings.TrimSpace(want))
		}
	}

	rows := make([]cui.Record, 0, len(records))
	for _, r := range records {
		if matchesFilters(r, filters) {
			rows = append(rows, r)
		}
	}

	if q.Sort != "" && hasColumn(cols, q.Sort) {
		coll := newCollator()
		sort.SliceStable(rows, func(i, j int) bool {
			c := coll.CompareString(cellValue(rows[i], q.Sort), cellValue(rows[j], q.Sort))
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}

	pages := (len(rows) + PageSize - 1) / PageSize
	if pages == 0 {
		pages = 1
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	start := (page - 1) * PageSize
	end := min(start+PageSize, len(rows))
	out := GridPage{Columns: cols, Page: page, Pages: pages, Matched: len(rows), Rows: make([][]string, 0, end-start)}
	for _, r := range rows[start:end] {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = cellValue(r, c.Key)
		}
		out.Rows = append(out.Rows, cells)
	}
	return out
}

func matchesFilters(r cui.Record, filters map[string]string) bool {
	for key, want := range filters {
		if !strings.Contains(strings.ToLower(cellValue(r, key)), want) {
			return false
		}
	}
	return true
}

func hasColumn(cols []Column, key string) bool {
	for _, c := range cols {
		if c.Key == key {
			return true
		}
	}
	return false
}
