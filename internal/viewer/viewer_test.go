package viewer

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"cuiregistry/internal/cui"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []cui.Record {
	return []cui.Record{
		{Organization: "Defense", Category: "Controlled Technical Information", Authority: "48 CFR 252.204-7012", Designation: cui.Specified, Sanctions: []string{"Fine"}},
		{Organization: "Defense", Category: "Naval Nuclear Propulsion", Authority: "42 USC 2162", Designation: cui.Basic},
		{Organization: "Privacy", Category: "Health Information", Authority: "45 CFR 164", Designation: cui.Specified, Sanctions: []string{"Civil penalty", "Imprisonment"}},
		{Organization: "Privacy", Category: "Health Information", Authority: "42 USC 1320d-6", Designation: cui.Basic},
		{Organization: "Financial", Category: "bank secrecy", Authority: "31 USC 5311", Designation: cui.Basic, Sanctions: []string{"", " "}},
	}
}

func TestSelectionApply(t *testing.T) {
	t.Parallel()

	recs := sampleRecords()
	tests := []struct {
		name string
		sel  Selection
		want int
	}{
		{name: "empty_selection_keeps_all", sel: Selection{}, want: 5},
		{name: "category_only", sel: Selection{Categories: []string{"Health Information"}}, want: 2},
		{name: "org_only", sel: Selection{Orgs: []string{"Defense", "Financial"}}, want: 3},
		{name: "and_across_dimensions", sel: Selection{Categories: []string{"Health Information", "Naval Nuclear Propulsion"}, Orgs: []string{"Defense"}}, want: 1},
		{name: "disjoint_dimensions", sel: Selection{Categories: []string{"Health Information"}, Orgs: []string{"Defense"}}, want: 0},
		{name: "unknown_value", sel: Selection{Categories: []string{"Nope"}}, want: 0},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := tc.sel.Apply(recs)
			assert.Len(t, got, tc.want)
		})
	}

	// Input order is kept and the input slice is not touched.
	got := Selection{Orgs: []string{"Privacy"}}.Apply(recs)
	require.Len(t, got, 2)
	assert.Equal(t, "45 CFR 164", got[0].Authority)
	assert.Equal(t, "42 USC 1320d-6", got[1].Authority)
	assert.Len(t, recs, 5)
}

func TestSelectionApply_ComposesWithAggregates(t *testing.T) {
	t.Parallel()

	filtered := Selection{Orgs: []string{"Privacy", "Financial"}}.Apply(sampleRecords())
	assert.Equal(t, map[string]int{"Health Information": 2, "bank secrecy": 1}, cui.CountsAsMap(cui.CountByCategory(filtered)))
	// Whitespace-only sanctions do not count.
	assert.Equal(t, map[string]int{"Health Information": 1}, cui.CountsAsMap(cui.SanctionedByCategory(filtered)))
}

func TestParseSelection_RoundTrip(t *testing.T) {
	t.Parallel()

	q, err := url.ParseQuery("category=Health+Information&category=&org=Privacy&org=Defense&other=1")
	require.NoError(t, err)

	sel := ParseSelection(q)
	assert.Equal(t, []string{"Health Information"}, sel.Categories)
	assert.Equal(t, []string{"Privacy", "Defense"}, sel.Orgs)
	assert.Equal(t, sel, ParseSelection(sel.Query()))
}

func TestFilterChoices_CollatedAndDistinct(t *testing.T) {
	t.Parallel()

	opts := FilterChoices(append(sampleRecords(), cui.Record{Organization: "", Category: ""}))
	assert.Equal(t, []string{"bank secrecy", "Controlled Technical Information", "Health Information", "Naval Nuclear Propulsion"}, opts.Categories)
	assert.Equal(t, []string{"Defense", "Financial", "Privacy"}, opts.Orgs)
}

func TestColumns_DisplayNames(t *testing.T) {
	t.Parallel()

	var titles []string
	for _, c := range Columns(2) {
		titles = append(titles, c.Title)
	}
	assert.Equal(t, []string{"Org Category", "CUI Category", "Legal Authority", "Type", "Safeguarding", "Sanction 1", "Sanction 2", "Source URL"}, titles)
}

func manyRecords(n int) []cui.Record {
	out := make([]cui.Record, n)
	for i := range out {
		out[i] = cui.Record{Organization: "Org", Category: "Cat " + strconv.Itoa(i), Authority: "A" + strconv.Itoa(i)}
	}
	return out
}

func TestBuildGrid_Paging(t *testing.T) {
	t.Parallel()

	recs := manyRecords(32)

	p1 := BuildGrid(recs, 0, GridQuery{Page: 1})
	assert.Len(t, p1.Rows, PageSize)
	assert.Equal(t, 3, p1.Pages)
	assert.Equal(t, 32, p1.Matched)

	p3 := BuildGrid(recs, 0, GridQuery{Page: 3})
	assert.Len(t, p3.Rows, 2)

	clamped := BuildGrid(recs, 0, GridQuery{Page: 99})
	assert.Equal(t, 3, clamped.Page)

	empty := BuildGrid(nil, 0, GridQuery{Page: 2})
	assert.Equal(t, 1, empty.Page)
	assert.Equal(t, 1, empty.Pages)
	assert.Empty(t, empty.Rows)
}

func TestBuildGrid_SortAndFilter(t *testing.T) {
	t.Parallel()

	recs := sampleRecords()

	// Numeric collation orders "Cat 2" before "Cat 10".
	g := BuildGrid(manyRecords(11), 0, GridQuery{Sort: ColCategory, Desc: true, Page: 1})
	assert.Equal(t, "Cat 10", g.Rows[0][1])
	assert.Equal(t, "Cat 9", g.Rows[1][1])

	g = BuildGrid(recs, 2, GridQuery{Sort: ColCategory, Page: 1})
	require.Len(t, g.Rows, 5)
	assert.Equal(t, "bank secrecy", g.Rows[0][1])
	// Stable: equal keys keep input order.
	assert.Equal(t, "45 CFR 164", g.Rows[2][2])
	assert.Equal(t, "42 USC 1320d-6", g.Rows[3][2])

	g = BuildGrid(recs, 2, GridQuery{Filters: map[string]string{ColDesignation: "SPEC", "sanction_1": "civil"}, Page: 1})
	require.Len(t, g.Rows, 1)
	assert.Equal(t, "45 CFR 164", g.Rows[0][2])
	assert.Equal(t, "Imprisonment", g.Rows[0][6])

	// Unknown sort and filter keys are ignored.
	g = BuildGrid(recs, 2, GridQuery{Sort: "nope", Filters: map[string]string{"nope": "x"}, Page: 1})
	assert.Equal(t, 5, g.Matched)
	assert.Equal(t, "48 CFR 252.204-7012", g.Rows[0][2])
}

func TestParseGridQuery(t *testing.T) {
	t.Parallel()

	q, err := url.ParseQuery("sort=type&desc=true&page=2&f.cui_category=health&f.type=&page_size=100")
	require.NoError(t, err)
	g := ParseGridQuery(q)
	assert.Equal(t, GridQuery{Sort: "type", Desc: true, Page: 2, Filters: map[string]string{"cui_category": "health"}}, g)

	g = ParseGridQuery(url.Values{"page": {"-3"}})
	assert.Equal(t, 1, g.Page)
}

func TestBuildCharts(t *testing.T) {
	t.Parallel()

	c := BuildCharts(sampleRecords())

	var buf bytes.Buffer
	require.NoError(t, c.Sources.Render(&buf))
	out := buf.String()
	assert.Contains(t, out, SourcesTitle)
	assert.Contains(t, out, SourcesSeries)
	assert.Contains(t, out, "Naval Nuclear Propulsion")

	buf.Reset()
	require.NoError(t, c.Sanctions.Render(&buf))
	out = buf.String()
	assert.Contains(t, out, SanctionsTitle)
	assert.Contains(t, out, SanctionsSeries)
	assert.Contains(t, out, "Health Information")
	assert.NotContains(t, out, "Naval Nuclear Propulsion")
}

func newTestServer(t *testing.T, orgFilter bool) *httptest.Server {
	t.Helper()
	ds := &cui.Dataset{RunID: "run-42", HarvestedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), Records: sampleRecords()}
	srv := httptest.NewServer(NewServer(ds, Options{Title: "CUI Authorities Dashboard", OrgFilter: orgFilter}))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, rawURL string) (int, string) {
	t.Helper()
	resp, err := http.Get(rawURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, buf.String()
}

func TestServer_APIRecords(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, true)

	code, body := get(t, srv.URL+"/api/records?org=Privacy&org=Financial&sort=legal_authority")
	require.Equal(t, http.StatusOK, code)

	var resp RecordsResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, 5, resp.Total)
	assert.Equal(t, 3, resp.Grid.Matched)
	assert.Equal(t, "31 USC 5311", resp.Grid.Rows[0][2])
	assert.Equal(t, []cui.CategoryCount{{Category: "Health Information", Count: 2}, {Category: "bank secrecy", Count: 1}}, resp.Sources)
	assert.Equal(t, []cui.CategoryCount{{Category: "Health Information", Count: 1}}, resp.Sanctions)
}

func TestServer_OrgFilterDisabledIgnoresOrgParam(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, false)

	_, body := get(t, srv.URL+"/api/records?org=Privacy")
	var resp RecordsResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, 5, resp.Grid.Matched)
	assert.Empty(t, resp.Selection.Orgs)

	_, page := get(t, srv.URL+"/")
	assert.NotContains(t, page, `name="org"`)
	assert.Contains(t, page, `name="category"`)
}

func TestServer_Dashboard(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, true)

	code, page := get(t, srv.URL+"/?category=Health+Information")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, page, "<title>CUI Authorities Dashboard</title>")
	assert.Contains(t, page, "run-42")
	assert.Contains(t, page, `<option value="Health Information" selected>`)
	assert.Contains(t, page, `<option value="Defense">`)
	assert.Contains(t, page, "Legal Authority")
	assert.Contains(t, page, "45 CFR 164")
	assert.NotContains(t, page, "42 USC 2162")
	assert.Contains(t, page, `src="/charts/sources?category=Health`)
	assert.Contains(t, page, "page 1 of 1 (2 matching)")

	code, _ = get(t, srv.URL+"/missing")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_ChartsAndHealth(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, true)

	code, body := get(t, srv.URL+"/charts/sanctions?category=Health+Information")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, SanctionsTitle)

	code, body = get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", strings.TrimSpace(body))
}
