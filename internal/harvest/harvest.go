// Package harvest walks the registry: it reads the category index, visits
// every category's detail page in order and collects the authority rows into
// a cui.Dataset.
//
// A failing detail page is logged and skipped. It never aborts the run.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cuiregistry/internal/cui"
	"cuiregistry/internal/extracthtml"
	"cuiregistry/internal/metrics"

	"github.com/google/uuid"
)

// Fetcher returns the HTML of one page. *extracthtml.Loader satisfies it.
type Fetcher interface {
	Load(ctx context.Context, in extracthtml.Input) (string, error)
}

// Options tune a Harvester. Zero values select the defaults.
type Options struct {
	Strategy   extracthtml.IndexStrategy // default extracthtml.Auto
	Policy     extracthtml.DetailPolicy  // default extracthtml.HeaderChecked
	PathPrefix string
	Logger     *slog.Logger

	now      func() time.Time
	newRunID func() string
}

// Harvester runs sequential harvests against one registry.
type Harvester struct {
	fetch Fetcher
	opts  Options
}

// PageError records one detail page that could not be fetched or parsed.
type PageError struct {
	Category string
	URL      string
	Err      error
}

func (e PageError) Error() string {
	return fmt.Sprintf("category %q (%s): %v", e.Category, e.URL, e.Err)
}

func (e PageError) Unwrap() error { return e.Err }

// Report summarizes a run.
type Report struct {
	Categories int
	Pages      int
	Records    int
	Failed     []PageError
	Duration   time.Duration
}

// New builds a Harvester over fetch.
func New(fetch Fetcher, opts Options) *Harvester {
	if opts.Strategy == nil {
		opts.Strategy = extracthtml.Auto{}
	}
	if opts.Policy == nil {
		opts.Policy = extracthtml.HeaderChecked{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	if opts.newRunID == nil {
		opts.newRunID = uuid.NewString
	}
	return &Harvester{fetch: fetch, opts: opts}
}

// Run harvests the registry rooted at indexURL.
//
// The returned dataset is never nil. An unreachable or unparseable index
// yields an empty dataset together with the error; an index without
// category links yields an empty dataset and a nil error. Cancellation stops
// between pages and returns what was collected so far with ctx.Err().
func (h *Harvester) Run(ctx context.Context, indexURL string) (*cui.Dataset, Report, error) {
	start := h.opts.now()
	log := h.opts.Logger
	ds := &cui.Dataset{
		RunID:       h.opts.newRunID(),
		IndexURL:    indexURL,
		HarvestedAt: start.UTC(),
	}
	var rep Report

	links, err := h.index(ctx, indexURL)
	if err != nil {
		log.Error("index traversal failed", "url", indexURL, "err", err)
		rep.Duration = h.opts.now().Sub(start)
		return ds, rep, err
	}
	rep.Categories = len(links)
	metrics.IncCounter(metrics.CategoriesTotal, float64(len(links)), nil)
	if len(links) == 0 {
		log.Warn("no categories found", "url", indexURL, "strategy", h.opts.Strategy.Name())
		rep.Duration = h.opts.now().Sub(start)
		return ds, rep, nil
	}
	log.Info("categories discovered", "count", len(links), "strategy", h.opts.Strategy.Name())

	for _, link := range links {
		if err := ctx.Err(); err != nil {
			rep.Records = len(ds.Records)
			rep.Duration = h.opts.now().Sub(start)
			return ds, rep, err
		}
		rep.Pages++

		records, err := h.detail(ctx, link)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				rep.Records = len(ds.Records)
				rep.Duration = h.opts.now().Sub(start)
				return ds, rep, ctxErr
			}
			pe := PageError{Category: link.Category, URL: link.URL, Err: err}
			rep.Failed = append(rep.Failed, pe)
			log.Warn("detail page failed", "category", link.Category, "url", link.URL, "err", err)
			metrics.IncCounter(metrics.PagesTotal, 1, metrics.Labels{"status": "error"})
			continue
		}
		metrics.IncCounter(metrics.PagesTotal, 1, metrics.Labels{"status": "ok"})
		metrics.IncCounter(metrics.RecordsTotal, float64(len(records)), metrics.Labels{"kind": "authority"})
		log.Debug("detail page harvested", "category", link.Category, "rows", len(records))
		ds.Records = append(ds.Records, records...)
	}

	rep.Records = len(ds.Records)
	rep.Duration = h.opts.now().Sub(start)
	log.Info("harvest finished",
		"run_id", ds.RunID,
		"categories", rep.Categories,
		"records", rep.Records,
		"failed_pages", len(rep.Failed),
		"sanction_columns", ds.SanctionWidth(),
	)
	return ds, rep, nil
}

func (h *Harvester) index(ctx context.Context, indexURL string) (links []cui.CategoryLink, err error) {
	start := time.Now()
	defer func() { metrics.RecordStep("index", stepStatus(err), start) }()

	src, err := h.fetch.Load(ctx, extracthtml.Input{URL: indexURL})
	if err != nil {
		return nil, fmt.Errorf("fetch index: %w", err)
	}
	links, err = extracthtml.DiscoverCategories(src, indexURL, h.opts.Strategy, h.opts.PathPrefix)
	if err != nil {
		return nil, fmt.Errorf("discover categories: %w", err)
	}
	return links, nil
}

func (h *Harvester) detail(ctx context.Context, link cui.CategoryLink) (records []cui.Record, err error) {
	start := time.Now()
	defer func() { metrics.RecordStep("detail", stepStatus(err), start) }()

	src, err := h.fetch.Load(ctx, extracthtml.Input{URL: link.URL})
	if err != nil {
		return nil, fmt.Errorf("fetch detail: %w", err)
	}
	rows, err := extracthtml.ExtractAuthorities(src, h.opts.Policy)
	if err != nil {
		return nil, fmt.Errorf("extract authorities: %w", err)
	}
	records = make([]cui.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.Record(link))
	}
	return records, nil
}

func stepStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
