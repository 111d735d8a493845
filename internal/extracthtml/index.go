package extracthtml

import (
	"fmt"
	"net/url"
	"strings"

	"cuiregistry/internal/cui"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// IndexStrategy locates (organization, category, detail URL) triples on the
// registry index page. Each category link is attributed to the nearest
// preceding organization heading.
type IndexStrategy interface {
	Name() string
	Links(doc *goquery.Document, base *url.URL) []cui.CategoryLink
}

// Strategy names accepted by StrategyByName.
const (
	StrategyAuto     = "auto"
	StrategyFlatList = "flat_list"
	StrategyTable    = "table_list"
	StrategyHeading  = "heading"
)

// StrategyByName maps a configured strategy name to its implementation.
// The empty name selects Auto.
func StrategyByName(name string) (IndexStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StrategyAuto:
		return Auto{}, nil
	case StrategyFlatList:
		return FlatList{}, nil
	case StrategyTable:
		return TableList{}, nil
	case StrategyHeading:
		return HeadingAdjacency{}, nil
	}
	return nil, fmt.Errorf("unknown index strategy %q", name)
}

// DiscoverCategories parses an index page and returns its category links.
// Only links on pageURL's host are kept; when pathPrefix is set, links whose
// path does not start with it are dropped too. Zero links is not an error.
func DiscoverCategories(src, pageURL string, strategy IndexStrategy, pathPrefix string) ([]cui.CategoryLink, error) {
	base, ok := ParseBaseURL(pageURL)
	if !ok {
		return nil, fmt.Errorf("invalid page url %q", pageURL)
	}
	if strategy == nil {
		strategy = Auto{}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	links := strategy.Links(doc, base)
	if pathPrefix == "" {
		return links, nil
	}
	out := links[:0]
	for _, l := range links {
		u, err := url.Parse(l.URL)
		if err == nil && strings.HasPrefix(u.Path, pathPrefix) {
			out = append(out, l)
		}
	}
	return out, nil
}

// linkSet resolves, filters and de-duplicates links in discovery order.
type linkSet struct {
	base *url.URL
	seen map[[2]string]struct{}
	out  []cui.CategoryLink
}

func newLinkSet(base *url.URL) *linkSet {
	return &linkSet{base: base, seen: make(map[[2]string]struct{})}
}

func (s *linkSet) add(org, name, href string) {
	abs, ok := ResolveSameHost(s.base, href)
	if !ok {
		return
	}
	name = cleanText(name)
	if name == "" {
		return
	}
	org = cleanText(org)
	key := [2]string{org, abs}
	if _, dup := s.seen[key]; dup {
		return
	}
	s.seen[key] = struct{}{}
	s.out = append(s.out, cui.CategoryLink{Organization: org, Category: name, URL: abs})
}

// FlatList handles a single flat sequence of ".field-content" blocks where a
// block holding a heading opens a new organization and a block holding a
// link is a category.
type FlatList struct{}

func (FlatList) Name() string { return StrategyFlatList }

func (FlatList) Links(doc *goquery.Document, base *url.URL) []cui.CategoryLink {
	set := newLinkSet(base)
	org := ""
	doc.Find(".field-content").Each(func(_ int, block *goquery.Selection) {
		if h := block.Find("h2, h3, h4").First(); h.Length() > 0 {
			org = h.Text()
			return
		}
		block.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			set.add(org, a.Text(), href)
		})
	})
	return set.out
}

// TableList handles a table with one row per organization: the first cell
// (or a heading inside the row) names the organization and a nested list
// holds its category links. A row holding several headings is a layout
// cell around a heading/list block and is walked in document order.
type TableList struct{}

func (TableList) Name() string { return StrategyTable }

func (TableList) Links(doc *goquery.Document, base *url.URL) []cui.CategoryLink {
	set := newLinkSet(base)
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		anchors := row.Find("li a[href]")
		if anchors.Length() == 0 {
			return
		}
		if row.Find("h2, h3, h4").Length() > 1 {
			walkHeadings(set, row.Nodes)
			return
		}
		anchors.Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			set.add(rowOrganization(row), a.Text(), href)
		})
	})
	return set.out
}

func rowOrganization(row *goquery.Selection) string {
	if h := row.Find("h2, h3, h4, th, strong").First(); h.Length() > 0 {
		return h.Text()
	}
	first := row.ChildrenFiltered("td").First().Clone()
	first.Find("ul, ol").Remove()
	return first.Text()
}

// HeadingAdjacency walks the document in order: every h2/h3/h4 sets the
// current organization and every list-item link after it is a category of
// that organization. Links before the first heading are ignored.
type HeadingAdjacency struct{}

func (HeadingAdjacency) Name() string { return StrategyHeading }

func (HeadingAdjacency) Links(doc *goquery.Document, base *url.URL) []cui.CategoryLink {
	set := newLinkSet(base)
	walkHeadings(set, doc.Nodes)
	return set.out
}

// walkHeadings adds every list-item link under nodes to set, attributed to
// the nearest preceding h2/h3/h4.
func walkHeadings(set *linkSet, nodes []*html.Node) {
	org := ""
	var walk func(n *html.Node, inItem bool)
	walk = func(n *html.Node, inItem bool) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.H2, atom.H3, atom.H4:
				org = nodeText(n)
				return
			case atom.Li:
				inItem = true
			case atom.A:
				if href := attr(n, "href"); inItem && href != "" && org != "" {
					set.add(org, nodeText(n), href)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inItem)
		}
	}
	for _, n := range nodes {
		walk(n, false)
	}
}

// Auto tries TableList, FlatList and HeadingAdjacency in that order and
// returns the first non-empty result.
type Auto struct{}

func (Auto) Name() string { return StrategyAuto }

func (Auto) Links(doc *goquery.Document, base *url.URL) []cui.CategoryLink {
	for _, s := range []IndexStrategy{TableList{}, FlatList{}, HeadingAdjacency{}} {
		if links := s.Links(doc, base); len(links) > 0 {
			return links
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	writeNodeText(&b, n)
	return cleanText(b.String())
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}
