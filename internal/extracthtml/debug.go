package extracthtml

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DebugPrintSelector prints either outer HTML or cleaned text of matches for
// a selector, separated by blank lines.
func DebugPrintSelector(w io.Writer, src, selector string, textOnly bool) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if textOnly {
			fmt.Fprintln(w, cellMultiline(s))
			fmt.Fprintln(w)
			return
		}
		out, err := goquery.OuterHtml(s)
		if err != nil {
			in, _ := s.Html()
			out = in
		}
		fmt.Fprintln(w, out)
		fmt.Fprintln(w)
	})
	return nil
}

// DebugPrintTables lists every table on a detail page with its header cells
// and whether the header-checked policy would read it. Useful when a page
// yields no rows.
func DebugPrintTables(w io.Writer, src string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	doc.Find("table").Each(func(i int, table *goquery.Selection) {
		rows := ownRows(table)
		var header []string
		rows.First().ChildrenFiltered("th, td").Each(func(_ int, c *goquery.Selection) {
			header = append(header, cellText(c))
		})
		accepted := rows.Length() > 1 && headerAccepts(rows.First())
		fmt.Fprintf(w, "table %d: rows=%d header_checked=%t header=%q\n", i, rows.Length(), accepted, header)
	})
	return nil
}
