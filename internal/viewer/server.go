package viewer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"cuiregistry/internal/cui"
)

// Options configures the dashboard.
type Options struct {
	Title string
	// OrgFilter enables the organizational-category filter control.
	OrgFilter bool
	Logger    *slog.Logger
}

// Server is the dashboard HTTP handler over a read-only dataset.
type Server struct {
	ds      *cui.Dataset
	opts    Options
	width   int
	choices FilterOptions
	mux     *http.ServeMux
}

// NewServer builds the handler. ds is never modified.
func NewServer(ds *cui.Dataset, opts Options) *Server {
	if ds == nil {
		ds = &cui.Dataset{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Title == "" {
		opts.Title = "CUI Authorities Dashboard"
	}

	s := &Server{
		ds:      ds,
		opts:    opts,
		width:   ds.SanctionWidth(),
		choices: FilterChoices(ds.Records),
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /{$}", s.handleDashboard)
	s.mux.HandleFunc("GET /charts/sources", s.handleChart(func(c Charts) renderer { return c.Sources }))
	s.mux.HandleFunc("GET /charts/sanctions", s.handleChart(func(c Charts) renderer { return c.Sanctions }))
	s.mux.HandleFunc("GET /api/records", s.handleRecords)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.opts.Logger.Debug("request", "method", r.Method, "path", r.URL.Path, "dur", time.Since(start))
}

// selection reads the filter state, dropping the org dimension when that
// control is disabled.
func (s *Server) selection(r *http.Request) Selection {
	sel := ParseSelection(r.URL.Query())
	if !s.opts.OrgFilter {
		sel.Orgs = nil
	}
	return sel
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "ok")
}

// RecordsResponse is the body of GET /api/records.
type RecordsResponse struct {
	Selection Selection           `json:"selection"`
	Total     int                 `json:"total"`
	Grid      GridPage            `json:"grid"`
	Sources   []cui.CategoryCount `json:"sources_per_category"`
	Sanctions []cui.CategoryCount `json:"sanctions_per_category"`
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	sel := s.selection(r)
	filtered := sel.Apply(s.ds.Records)
	resp := RecordsResponse{
		Selection: sel,
		Total:     s.ds.Total(),
		Grid:      BuildGrid(filtered, s.width, ParseGridQuery(r.URL.Query())),
		Sources:   cui.CountByCategory(filtered),
		Sanctions: cui.SanctionedByCategory(filtered),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.opts.Logger.Warn("encode records", "err", err)
	}
}

type renderer interface {
	Render(w io.Writer) error
}

func (s *Server) handleChart(pick func(Charts) renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chart := pick(BuildCharts(s.selection(r).Apply(s.ds.Records)))
		var buf bytes.Buffer
		if err := chart.Render(&buf); err != nil {
			s.opts.Logger.Error("render chart", "path", r.URL.Path, "err", err)
			http.Error(w, "render chart", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}
}

type choice struct {
	Value    string
	Selected bool
}

type headerCell struct {
	Title   string
	Key     string
	SortURL string
	Arrow   string
	Filter  string
}

type dashboardView struct {
	Title        string
	RunID        string
	HarvestedAt  string
	Total        int
	OrgFilter    bool
	Categories   []choice
	Orgs         []choice
	Sort         string
	Desc         bool
	Headers      []headerCell
	Grid         GridPage
	PrevURL      string
	NextURL      string
	SourcesURL   string
	SanctionsURL string
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sel := s.selection(r)
	gq := ParseGridQuery(r.URL.Query())
	grid := BuildGrid(sel.Apply(s.ds.Records), s.width, gq)

	v := dashboardView{
		Title:        s.opts.Title,
		RunID:        s.ds.RunID,
		Total:        s.ds.Total(),
		OrgFilter:    s.opts.OrgFilter,
		Categories:   choices(s.choices.Categories, sel.Categories),
		Orgs:         choices(s.choices.Orgs, sel.Orgs),
		Sort:         gq.Sort,
		Desc:         gq.Desc,
		Grid:         grid,
		SourcesURL:   chartURL("/charts/sources", sel),
		SanctionsURL: chartURL("/charts/sanctions", sel),
	}
	if !s.ds.HarvestedAt.IsZero() {
		v.HarvestedAt = s.ds.HarvestedAt.UTC().Format(time.RFC3339)
	}
	for _, c := range grid.Columns {
		next := gq
		next.Page = 1
		next.Sort = c.Key
		next.Desc = gq.Sort == c.Key && !gq.Desc
		h := headerCell{Title: c.Title, Key: c.Key, SortURL: dashboardURL(sel, next), Filter: gq.Filters[c.Key]}
		if gq.Sort == c.Key {
			h.Arrow = "▲"
			if gq.Desc {
				h.Arrow = "▼"
			}
		}
		v.Headers = append(v.Headers, h)
	}
	if grid.Page > 1 {
		prev := gq
		prev.Page = grid.Page - 1
		v.PrevURL = dashboardURL(sel, prev)
	}
	if grid.Page < grid.Pages {
		next := gq
		next.Page = grid.Page + 1
		v.NextURL = dashboardURL(sel, next)
	}

	var buf bytes.Buffer
	if err := dashboardTmpl.Execute(&buf, v); err != nil {
		s.opts.Logger.Error("render dashboard", "err", err)
		http.Error(w, "render dashboard", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func choices(all, selected []string) []choice {
	set := toSet(selected)
	out := make([]choice, len(all))
	for i, v := range all {
		out[i] = choice{Value: v, Selected: set[v]}
	}
	return out
}

// dashboardURL encodes the full view state as a dashboard link.
func dashboardURL(sel Selection, gq GridQuery) string {
	q := sel.Query()
	if gq.Sort != "" {
		q.Set("sort", gq.Sort)
		if gq.Desc {
			q.Set("desc", "true")
		}
	}
	for k, v := range gq.Filters {
		q.Set("f."+k, v)
	}
	if gq.Page > 1 {
		q.Set("page", strconv.Itoa(gq.Page))
	}
	if len(q) == 0 {
		return "/"
	}
	return (&url.URL{Path: "/", RawQuery: q.Encode()}).String()
}

func chartURL(path string, sel Selection) string {
	return (&url.URL{Path: path, RawQuery: sel.Query().Encode()}).String()
}

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 1.5rem; }
form.filters { display: flex; gap: 1.5rem; align-items: flex-start; margin-bottom: 1rem; }
select[multiple] { min-width: 22rem; height: 9rem; }
table { border-collapse: collapse; width: 100%; font-size: 0.9rem; }
th, td { border: 1px solid #ccc; padding: 0.3rem 0.5rem; vertical-align: top; text-align: left; }
th a { text-decoration: none; color: inherit; }
th input { width: 100%; box-sizing: border-box; }
.charts { display: flex; gap: 1rem; margin-top: 1.5rem; }
.charts iframe { flex: 1; height: 480px; border: 0; }
.meta { color: #666; font-size: 0.85rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">{{.Total}} records{{if .RunID}} · run {{.RunID}}{{end}}{{if .HarvestedAt}} · harvested {{.HarvestedAt}}{{end}}</p>
<form class="filters" method="get" action="/">
<label>CUI Category<br>
<select multiple name="category">{{range .Categories}}
<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Value}}</option>{{end}}
</select></label>
{{if .OrgFilter}}<label>Org Category<br>
<select multiple name="org">{{range .Orgs}}
<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Value}}</option>{{end}}
</select></label>{{end}}
{{if .Sort}}<input type="hidden" name="sort" value="{{.Sort}}">{{if .Desc}}<input type="hidden" name="desc" value="true">{{end}}{{end}}
<div><button type="submit">Apply</button> <a href="/">Reset</a></div>
</form>
<form method="get" action="/">
{{range .Categories}}{{if .Selected}}<input type="hidden" name="category" value="{{.Value}}">{{end}}{{end}}
{{range .Orgs}}{{if .Selected}}<input type="hidden" name="org" value="{{.Value}}">{{end}}{{end}}
{{if .Sort}}<input type="hidden" name="sort" value="{{.Sort}}">{{if .Desc}}<input type="hidden" name="desc" value="true">{{end}}{{end}}
<table>
<thead>
<tr>{{range .Headers}}<th><a href="{{.SortURL}}">{{.Title}} {{.Arrow}}</a></th>{{end}}</tr>
<tr>{{range .Headers}}<th><input type="text" name="f.{{.Key}}" value="{{.Filter}}" placeholder="filter"></th>{{end}}</tr>
</thead>
<tbody>{{range .Grid.Rows}}
<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{else}}
<tr><td colspan="{{len .Headers}}">No matching records</td></tr>{{end}}
</tbody>
</table>
<input type="submit" hidden>
</form>
<p>{{if .PrevURL}}<a href="{{.PrevURL}}">‹ prev</a>{{end}}
page {{.Grid.Page}} of {{.Grid.Pages}} ({{.Grid.Matched}} matching)
{{if .NextURL}}<a href="{{.NextURL}}">next ›</a>{{end}}</p>
<div class="charts">
<iframe title="sources" src="{{.SourcesURL}}"></iframe>
<iframe title="sanctions" src="{{.SanctionsURL}}"></iframe>
</div>
</body>
</html>
`))
