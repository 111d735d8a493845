package extracthtml

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"
)

// cleanText applies NFKC (folds &nbsp; and friends into plain spaces) and
// collapses runs of whitespace.
func cleanText(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

// cellText is the cleaned single-line text of a table cell.
func cellText(sel *goquery.Selection) string {
	return strings.Join(cellLines(sel), " ")
}

// cellMultiline keeps the visual line structure of a cell (<br>, <p>, <li>)
// so that newline-separated sanction lists survive extraction.
func cellMultiline(sel *goquery.Selection) string {
	return strings.Join(cellLines(sel), "\n")
}

func cellLines(sel *goquery.Selection) []string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		writeNodeText(&b, n)
	}
	var out []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = cleanText(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func writeNodeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Br:
			b.WriteByte('\n')
			return
		case atom.Script, atom.Style:
			return
		}
	}
	block := n.Type == html.ElementNode && isBlock(n.DataAtom)
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeNodeText(b, c)
	}
	if block {
		b.WriteByte('\n')
	}
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Li, atom.Ul, atom.Ol, atom.Tr, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return true
	}
	return false
}
