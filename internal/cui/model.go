// Package cui holds the harvested registry data model: category links found
// on the index page, the authority records extracted from each category's
// detail page, and the Dataset that groups one harvest run.
package cui

import "strings"

// CategoryLink is one category entry discovered on the registry index page.
// It only lives for the duration of a harvest run.
type CategoryLink struct {
	Organization string `json:"organization"`
	Category     string `json:"category"`
	URL          string `json:"url"`
}

// Designation is the Basic/Specified column of an authority row. Values other
// than Basic or Specified are kept as the raw cell text.
type Designation string

const (
	Basic     Designation = "Basic"
	Specified Designation = "Specified"
)

// ParseDesignation normalizes the cell text of the Basic/Specified column.
func ParseDesignation(s string) Designation {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "basic":
		return Basic
	case "specified":
		return Specified
	}
	return Designation(s)
}

// Record is one authority row. Sanctions is variable length and may be empty.
type Record struct {
	Organization string      `json:"organization_category"`
	Category     string      `json:"cui_category"`
	Authority    string      `json:"authority"`
	Designation  Designation `json:"basic_or_specified"`
	Safeguarding string      `json:"safeguarding"`
	Sanctions    []string    `json:"sanctions"`
	SourceURL    string      `json:"source_url"`
}

// HasSanction reports whether at least one sanction entry is non-empty.
func (r Record) HasSanction() bool {
	for _, s := range r.Sanctions {
		if strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}
