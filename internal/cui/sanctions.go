package cui

import (
	"regexp"
	"strings"
)

var reSanctionSep = regexp.MustCompile(`[;\n]`)

// SplitSanctions splits a raw sanctions cell on semicolons and newlines and
// trims every entry. Entries that are empty after trimming are dropped, so an
// empty or whitespace-only cell yields no entries.
//
// Splitting is idempotent: joining the result with "; " and splitting again
// returns the same entries.
func SplitSanctions(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := reSanctionSep.Split(raw, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// JoinSanctions is the inverse of SplitSanctions for display and storage.
func JoinSanctions(entries []string) string {
	return strings.Join(entries, "; ")
}

// PadSanctions returns entries extended with empty strings up to width.
// Entries longer than width are returned unchanged.
func PadSanctions(entries []string, width int) []string {
	if len(entries) >= width {
		return append([]string(nil), entries...)
	}
	out := make([]string, width)
	copy(out, entries)
	return out
}
