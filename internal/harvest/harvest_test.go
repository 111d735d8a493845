package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"cuiregistry/internal/cui"
	"cuiregistry/internal/extracthtml"
)

const detailCategoryA = `<html><body>
<table>
  <tr><th>Authority</th><th>Basic/Specified</th><th>Safeguarding</th><th>Sanctions</th></tr>
  <tr><td>32 CFR 123</td><td>Basic</td><td>Limited</td><td>Fine;Suspension</td></tr>
</table></body></html>`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// registryServer serves /index plus the given detail pages. A page body of
// "500" makes that path fail.
func registryServer(t *testing.T, index string, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/index" {
			_, _ = io.WriteString(w, index)
			return
		}
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if body == "500" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestHarvester(srv *httptest.Server) *Harvester {
	return New(extracthtml.NewLoader(srv.Client(), 2*time.Second), Options{
		Logger:   discardLogger(),
		now:      func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
		newRunID: func() string { return "run-1" },
	})
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	index := `<div class="field-content"><h3>OrgX</h3></div>
<div class="field-content"><a href="/categories/a">CategoryA</a></div>`
	srv := registryServer(t, index, map[string]string{"/categories/a": detailCategoryA})

	ds, rep, err := newTestHarvester(srv).Run(context.Background(), srv.URL+"/index")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ds.RunID != "run-1" || ds.IndexURL != srv.URL+"/index" {
		t.Fatalf("unexpected dataset identity: %+v", ds)
	}
	if len(ds.Records) != 1 {
		t.Fatalf("records=%d, want 1", len(ds.Records))
	}
	got := ds.Records[0]
	want := cui.Record{
		Organization: "OrgX",
		Category:     "CategoryA",
		Authority:    "32 CFR 123",
		Designation:  cui.Basic,
		Safeguarding: "Limited",
		Sanctions:    []string{"Fine", "Suspension"},
		SourceURL:    srv.URL + "/categories/a",
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("record mismatch\nwant=%+v\ngot =%+v", want, got)
	}
	if c := cui.CountsAsMap(ds.CountByCategory()); len(c) != 1 || c["CategoryA"] != 1 {
		t.Fatalf("category counts=%v", c)
	}
	if c := cui.CountsAsMap(ds.SanctionedByCategory()); len(c) != 1 || c["CategoryA"] != 1 {
		t.Fatalf("sanctioned counts=%v", c)
	}
	if rep.Categories != 1 || rep.Pages != 1 || rep.Records != 1 || len(rep.Failed) != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestRun_PageFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	index := `<h2>OrgX</h2><ul>
<li><a href="/categories/bad">Broken</a></li>
<li><a href="/categories/missing">Missing</a></li>
<li><a href="/categories/a">CategoryA</a></li></ul>`
	srv := registryServer(t, index, map[string]string{
		"/categories/bad": "500",
		"/categories/a":   detailCategoryA,
	})

	ds, rep, err := newTestHarvester(srv).Run(context.Background(), srv.URL+"/index")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ds.Records) != 1 || ds.Records[0].Category != "CategoryA" {
		t.Fatalf("unexpected records: %+v", ds.Records)
	}
	if rep.Pages != 3 || len(rep.Failed) != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if rep.Failed[0].Category != "Broken" || !strings.Contains(rep.Failed[0].Error(), "http status 500") {
		t.Fatalf("unexpected failure: %v", rep.Failed[0])
	}
}

func TestRun_NoCategories(t *testing.T) {
	t.Parallel()

	srv := registryServer(t, `<p>Registry under maintenance</p>`, nil)

	ds, rep, err := newTestHarvester(srv).Run(context.Background(), srv.URL+"/index")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ds == nil || !ds.Empty() || rep.Categories != 0 {
		t.Fatalf("want empty dataset, got ds=%+v rep=%+v", ds, rep)
	}
	if ds.HarvestedAt.IsZero() || ds.RunID == "" {
		t.Fatalf("empty dataset lost its run identity: %+v", ds)
	}
}

func TestRun_IndexUnreachable(t *testing.T) {
	t.Parallel()

	srv := registryServer(t, "", nil)

	ds, _, err := newTestHarvester(srv).Run(context.Background(), srv.URL+"/nope")
	if err == nil || !strings.Contains(err.Error(), "fetch index") {
		t.Fatalf("Run err=%v, want fetch index error", err)
	}
	if ds == nil || !ds.Empty() {
		t.Fatalf("want empty dataset, got %+v", ds)
	}
}

// cancellingFetcher serves a fixed index and cancels the run on the first
// detail request.
type cancellingFetcher struct {
	index  string
	cancel context.CancelFunc
	calls  atomic.Int32
}

func (f *cancellingFetcher) Load(ctx context.Context, in extracthtml.Input) (string, error) {
	if strings.HasSuffix(in.URL, "/index") {
		return f.index, nil
	}
	f.calls.Add(1)
	f.cancel()
	return "", fmt.Errorf("fetch %s: %w", in.URL, ctx.Err())
}

func TestRun_CancelStopsBetweenPages(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := &cancellingFetcher{
		index:  `<h2>OrgX</h2><ul><li><a href="/a">A</a></li><li><a href="/b">B</a></li></ul>`,
		cancel: cancel,
	}
	h := New(f, Options{Logger: discardLogger(), Strategy: extracthtml.HeadingAdjacency{}})

	ds, rep, err := h.Run(ctx, "https://registry.example/index")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err=%v, want context.Canceled", err)
	}
	if f.calls.Load() != 1 {
		t.Fatalf("detail calls=%d, want 1", f.calls.Load())
	}
	if !ds.Empty() || len(rep.Failed) != 0 {
		t.Fatalf("cancelled page counted as failure: ds=%+v rep=%+v", ds, rep)
	}
}

func TestSchedule_InvalidSpec(t *testing.T) {
	t.Parallel()

	err := Schedule(context.Background(), "every tuesday", discardLogger(), func(context.Context) {})
	if err == nil || !strings.Contains(err.Error(), "parse schedule") {
		t.Fatalf("Schedule err=%v, want parse error", err)
	}
}

func TestSchedule_RunsUntilCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var runs atomic.Int32
	err := Schedule(ctx, "@every 1s", discardLogger(), func(context.Context) {
		runs.Add(1)
		cancel()
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if runs.Load() < 1 {
		t.Fatalf("scheduled func never ran")
	}
}
