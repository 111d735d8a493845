// Package viewer serves the dashboard over a harvested dataset: two
// multi-select filters, a paged record grid and two per-category bar charts.
//
// The dataset is read-only after load. Every request recomputes its view
// from the full record list, so there is no shared mutable state.
package viewer

import (
	"net/url"
	"strings"

	"cuiregistry/internal/cui"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Query parameter names for the two filter dimensions.
const (
	ParamCategory = "category"
	ParamOrg      = "org"
)

// Selection is the current filter state. An empty slice means that
// dimension is not filtered.
type Selection struct {
	Categories []string `json:"categories"`
	Orgs       []string `json:"orgs"`
}

// ParseSelection reads repeated category= and org= query parameters.
// Blank values are ignored.
func ParseSelection(q url.Values) Selection {
	return Selection{
		Categories: nonBlank(q[ParamCategory]),
		Orgs:       nonBlank(q[ParamOrg]),
	}
}

// Query encodes the selection back into query parameters.
func (s Selection) Query() url.Values {
	q := url.Values{}
	for _, c := range s.Categories {
		q.Add(ParamCategory, c)
	}
	for _, o := range s.Orgs {
		q.Add(ParamOrg, o)
	}
	return q
}

// Apply returns the records that pass both dimensions, in input order.
func (s Selection) Apply(records []cui.Record) []cui.Record {
	cats := toSet(s.Categories)
	orgs := toSet(s.Orgs)
	out := make([]cui.Record, 0, len(records))
	for _, r := range records {
		if cats != nil && !cats[r.Category] {
			continue
		}
		if orgs != nil && !orgs[r.Organization] {
			continue
		}
		out = append(out, r)
	}
	return out
}

// FilterOptions are the choices offered by the two filter controls.
type FilterOptions struct {
	Categories []string `json:"categories"`
	Orgs       []string `json:"orgs"`
}

// FilterChoices returns the distinct non-empty categories and organizations in
// records, in English collation order.
func FilterChoices(records []cui.Record) FilterOptions {
	cats := map[string]struct{}{}
	orgs := map[string]struct{}{}
	for _, r := range records {
		if r.Category != "" {
			cats[r.Category] = struct{}{}
		}
		if r.Organization != "" {
			orgs[r.Organization] = struct{}{}
		}
	}
	return FilterOptions{Categories: sortedKeys(cats), Orgs: sortedKeys(orgs)}
}

func newCollator() *collate.Collator {
	return collate.New(language.English, collate.IgnoreCase, collate.Numeric)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	newCollator().SortStrings(out)
	return out
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func nonBlank(values []string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
