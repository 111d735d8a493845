// Command extract-html is the debugging companion of the harvester. It reads
// one registry page (stdin or -url) or a directory of saved detail pages and
// prints what the harvester would see.
//
// Category links found on an index page (JSON):
//
//	extract-html -index -url "https://www.archives.gov/cui/registry/category-list"
//	cat list.html | extract-html -index -base "https://www.archives.gov/cui/registry/category-list"
//
// Authority rows on one detail page (JSON):
//
//	extract-html -detail -url "https://www.archives.gov/cui/categories/ctlt"
//
// Authority rows for a directory of saved detail pages (JSON array):
//
//	extract-html -dir "./pages" -policy positional
//
// Tables on a detail page and whether the header check accepts them:
//
//	cat detail.html | extract-html -tables
//
// Debug (print outer HTML or text for selector matches):
//
//	cat page.html | extract-html -selector ".field-content" -text
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"cuiregistry/internal/extracthtml"
)

func main() {
	os.Exit(run(
		context.Background(),
		os.Args[1:],
		os.Stdin,
		os.Stdout,
		os.Stderr,
		http.DefaultClient,
	))
}

// run returns a Unix-style exit code:
//   - 0 for success
//   - 2 for usage errors
//   - 1 for operational/runtime errors
func run(
	ctx context.Context,
	args []string,
	stdin io.Reader,
	stdout io.Writer,
	stderr io.Writer,
	httpClient *http.Client,
) int {
	fs := flag.NewFlagSet("extract-html", flag.ContinueOnError)
	fs.SetOutput(stderr)

	debugSelector := fs.String("selector", "", "Debug: CSS selector to print matches for (not JSON)")
	onlyText := fs.Bool("text", false, "Debug: print text blocks for -selector matches")
	indexMode := fs.Bool("index", false, "Print category links discovered on an index page")
	detailMode := fs.Bool("detail", false, "Print authority rows extracted from a detail page")
	tablesMode := fs.Bool("tables", false, "Print each table on a detail page with its header check result")
	dirFlag := fs.String("dir", "", "Extract authority rows from every file in this directory")
	strategyName := fs.String("strategy", extracthtml.StrategyAuto, "Index strategy: auto, flat_list, table_list or heading")
	policyName := fs.String("policy", extracthtml.PolicyHeaderChecked, "Detail policy: header_checked or positional")
	prefix := fs.String("prefix", "", "Only keep category links whose path starts with this prefix")
	urlFlag := fs.String("url", "", "Fetch HTML from URL instead of stdin")
	baseFlag := fs.String("base", "", "Base URL for resolving links when reading stdin (defaults to -url)")
	timeout := fs.Duration("timeout", 20*time.Second, "Timeout for -url fetch")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	modes := 0
	for _, on := range []bool{*debugSelector != "", *indexMode, *detailMode, *tablesMode, *dirFlag != ""} {
		if on {
			modes++
		}
	}
	if modes != 1 {
		fmt.Fprintln(stderr, "usage: extract-html (-index | -detail | -tables | -dir DIR | -selector SEL) [-url URL]")
		return 2
	}

	policy, err := extracthtml.PolicyByName(*policyName)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}
	strategy, err := extracthtml.StrategyByName(*strategyName)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	enc := json.NewEncoder(stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	// Directory mode reads files, not stdin or a URL.
	if *dirFlag != "" {
		if err := extracthtml.StreamFromDir(stdout, *dirFlag, policy, enc); err != nil {
			fmt.Fprintf(stderr, "dir extract: %v\n", err)
			return 1
		}
		return 0
	}

	base := strings.TrimSpace(*baseFlag)
	if base == "" {
		base = *urlFlag
	}
	if *indexMode && base == "" {
		fmt.Fprintln(stderr, "-index needs -url or -base to resolve links")
		return 2
	}

	loader := extracthtml.NewLoader(httpClient, *timeout)
	html, err := loader.Load(ctx, extracthtml.Input{
		URL:   *urlFlag,
		Stdin: stdin,
	})
	if err != nil {
		fmt.Fprintf(stderr, "load html: %v\n", err)
		return 1
	}

	switch {
	case *debugSelector != "":
		if err := extracthtml.DebugPrintSelector(stdout, html, *debugSelector, *onlyText); err != nil {
			fmt.Fprintf(stderr, "debug selector: %v\n", err)
			return 1
		}

	case *tablesMode:
		if err := extracthtml.DebugPrintTables(stdout, html); err != nil {
			fmt.Fprintf(stderr, "tables: %v\n", err)
			return 1
		}

	case *indexMode:
		links, err := extracthtml.DiscoverCategories(html, base, strategy, *prefix)
		if err != nil {
			fmt.Fprintf(stderr, "discover categories: %v\n", err)
			return 1
		}
		if err := enc.Encode(links); err != nil {
			fmt.Fprintf(stderr, "encode json: %v\n", err)
			return 1
		}

	case *detailMode:
		rows, err := extracthtml.ExtractAuthorities(html, policy)
		if err != nil {
			fmt.Fprintf(stderr, "extract authorities: %v\n", err)
			return 1
		}
		if rows == nil {
			rows = []extracthtml.RawRow{}
		}
		if err := enc.Encode(rows); err != nil {
			fmt.Fprintf(stderr, "encode json: %v\n", err)
			return 1
		}
	}
	return 0
}
