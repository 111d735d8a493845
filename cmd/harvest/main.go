// Command harvest walks the CUI registry, extracts the authority table of
// every category and writes the four-sheet workbook the viewer reads.
//
//	harvest -url "https://www.archives.gov/cui/registry/category-list"
//	harvest -config configs/harvest.yaml -storage-kind sqlite -storage-dsn cui.db
//	harvest -config configs/harvest.yaml -schedule "0 6 * * 1"
//
// The workbook is written even when nothing was harvested; its Metadata
// sheet then carries the "No data scraped" marker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cuiregistry/internal/config"
	"cuiregistry/internal/cui"
	"cuiregistry/internal/extracthtml"
	"cuiregistry/internal/harvest"
	"cuiregistry/internal/logging"
	"cuiregistry/internal/metrics"
	"cuiregistry/internal/metrics/datadog"
	"cuiregistry/internal/sheet"
	"cuiregistry/internal/storage"

	// register all backends with the storage factory.
	_ "cuiregistry/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// appDeps are the side-effecting collaborators of runMain.
type appDeps struct {
	newFetcher  func(cfg config.Harvest) harvest.Fetcher
	openRepo    func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
	initMetrics func(ctx context.Context, logger *slog.Logger, job string, cfg config.Metrics) (func(), error)
	writeSheet  func(path string, ds *cui.Dataset) error
}

func defaultDeps() appDeps {
	return appDeps{
		newFetcher: func(cfg config.Harvest) harvest.Fetcher {
			l := extracthtml.NewLoader(&http.Client{}, cfg.Timeout.Duration)
			l.UserAgent = cfg.UserAgent
			return l
		},
		openRepo:    storage.New,
		initMetrics: initMetrics,
		writeSheet:  sheet.WriteFile,
	}
}

// runMain returns a Unix-style exit code:
//   - 0 for success
//   - 2 for usage/config errors
//   - 1 for operational/runtime errors
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("harvest", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfgPath := fs.String("config", "", "harvest config file (.json, .yaml or .yml)")
	indexURL := fs.String("url", "", "registry index page URL (overrides index_url)")
	output := fs.String("out", "", "output workbook path (overrides output)")
	strategy := fs.String("strategy", "", "index strategy: auto, flat_list, table_list or heading")
	policy := fs.String("policy", "", "detail policy: header_checked or positional")
	prefix := fs.String("prefix", "", "only follow category links whose path starts with this prefix")
	timeout := fs.Duration("timeout", 0, "per-page fetch timeout (overrides timeout)")
	userAgent := fs.String("user-agent", "", "HTTP User-Agent header")
	schedule := fs.String("schedule", "", "cron spec; when set, harvest repeatedly until interrupted")
	storageKind := fs.String("storage-kind", "", "mirror each run into SQL: sqlite, postgres or mssql")
	storageDSN := fs.String("storage-dsn", "", "DSN for -storage-kind")
	metricsBackend := fs.String("metrics-backend", "", "metrics backend to use (datadog, none)")
	logFormat := fs.String("log-format", logging.FormatText, "log format: text or json")
	verbose := fs.Bool("v", false, "enable verbose logs")
	validate := fs.Bool("validate", false, "validate the configuration and exit")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "usage: harvest [-config FILE] [-url URL] [flags]; unexpected argument %q\n", fs.Arg(0))
		return 2
	}

	logger, err := logging.New(stderr, *logFormat, *verbose)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	cfg, err := config.LoadHarvest(*cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 2
	}

	if v := strings.TrimSpace(os.Getenv("METRICS_BACKEND")); v != "" {
		cfg.Metrics.Backend = v
	}
	// Flags that were set explicitly win over the file and the environment.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			cfg.IndexURL = *indexURL
		case "out":
			cfg.Output = *output
		case "strategy":
			cfg.IndexStrategy = *strategy
		case "policy":
			cfg.DetailPolicy = *policy
		case "prefix":
			cfg.CategoryPathPrefix = *prefix
		case "timeout":
			cfg.Timeout.Duration = *timeout
		case "user-agent":
			cfg.UserAgent = *userAgent
		case "schedule":
			cfg.Schedule = *schedule
		case "storage-kind":
			cfg.Storage.Kind = *storageKind
		case "storage-dsn":
			cfg.Storage.DSN = os.ExpandEnv(*storageDSN)
		case "metrics-backend":
			cfg.Metrics.Backend = *metricsBackend
		}
	})

	issues := cfg.Validate()
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		logger.Error("configuration is invalid", "config", *cfgPath)
		return 2
	}
	if *validate {
		fmt.Fprintln(stdout, "configuration is valid")
		return 0
	}

	cleanup, err := deps.initMetrics(ctx, logger, cfg.Job, cfg.Metrics)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	var repo storage.Repository
	if cfg.Storage.Kind != "" {
		repo, err = deps.openRepo(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSN})
		if err != nil {
			fmt.Fprintf(stderr, "open storage: %v\n", err)
			return 1
		}
		defer repo.Close()
	}

	// Both were validated above.
	st, _ := extracthtml.StrategyByName(cfg.IndexStrategy)
	pol, _ := extracthtml.PolicyByName(cfg.DetailPolicy)
	h := harvest.New(deps.newFetcher(cfg), harvest.Options{
		Strategy:   st,
		Policy:     pol,
		PathPrefix: cfg.CategoryPathPrefix,
		Logger:     logger,
	})
	j := &job{cfg: cfg, h: h, repo: repo, writeSheet: deps.writeSheet, logger: logger, stdout: stdout}

	if cfg.Schedule != "" {
		logger.Info("scheduled harvest", "schedule", cfg.Schedule, "url", cfg.IndexURL)
		err := harvest.Schedule(ctx, cfg.Schedule, logger, func(ctx context.Context) {
			if err := j.once(ctx); err != nil {
				logger.Error("harvest failed", "err", err)
			}
		})
		if err != nil {
			fmt.Fprintf(stderr, "schedule: %v\n", err)
			return 1
		}
		return 0
	}

	if err := j.once(ctx); err != nil {
		fmt.Fprintf(stderr, "harvest: %v\n", err)
		return 1
	}
	return 0
}

// job is one configured harvest: run, export, optionally mirror.
type job struct {
	cfg        config.Harvest
	h          *harvest.Harvester
	repo       storage.Repository
	writeSheet func(path string, ds *cui.Dataset) error
	logger     *slog.Logger
	stdout     io.Writer
}

// once runs a full harvest. The workbook is written whatever the harvest
// outcome, so an index failure still leaves a marked empty workbook behind.
// A cancelled run writes nothing: its partial records would otherwise
// replace the previous workbook and read back as a complete run.
func (j *job) once(ctx context.Context) error {
	ds, rep, runErr := j.h.Run(ctx, j.cfg.IndexURL)
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(runErr, ctxErr) {
		j.logger.Warn("harvest interrupted; keeping previous workbook",
			"run_id", ds.RunID,
			"collected", ds.Total(),
			"output", j.cfg.Output,
		)
		return runErr
	}

	start := time.Now()
	if err := j.writeSheet(j.cfg.Output, ds); err != nil {
		metrics.RecordStep("export", "error", start)
		return errors.Join(runErr, fmt.Errorf("write %s: %w", j.cfg.Output, err))
	}
	metrics.RecordStep("export", "ok", start)

	var mirrored int64
	if j.repo != nil && !ds.Empty() {
		start := time.Now()
		n, err := storage.SaveDataset(ctx, j.repo, ds)
		if err != nil {
			metrics.RecordStep("mirror", "error", start)
			return errors.Join(runErr, fmt.Errorf("mirror run %s: %w", ds.RunID, err))
		}
		metrics.RecordStep("mirror", "ok", start)
		mirrored = n
	}

	j.logger.Info("harvest finished",
		"run_id", ds.RunID,
		"categories", rep.Categories,
		"records", rep.Records,
		"failed_pages", len(rep.Failed),
		"mirrored", mirrored,
		"output", j.cfg.Output,
		"dur", rep.Duration.Truncate(time.Millisecond),
	)
	if runErr != nil {
		return runErr
	}

	if ds.Empty() {
		fmt.Fprintf(j.stdout, "no records harvested; wrote empty workbook %s\n", j.cfg.Output)
		return nil
	}
	fmt.Fprintf(j.stdout, "wrote %d records from %d categories to %s\n", ds.Total(), rep.Categories, j.cfg.Output)
	return nil
}

// metricsBackend is what initMetrics needs from a concrete backend.
type metricsBackend interface {
	metrics.Backend
	Close() error
}

// Seams for initMetrics tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	setMetricsBackend = metrics.SetBackend
)

// initMetrics wires the configured backend into the metrics package. The
// returned cleanup is never nil and flushes the backend exactly once.
// A backend that fails to start leaves metrics disabled rather than failing
// the run.
func initMetrics(ctx context.Context, logger *slog.Logger, job string, cfg config.Metrics) (func(), error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch name {
	case "datadog", "dd":
		tags := append(append([]string{}, cfg.Tags...), datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))...)
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    job,
			Tags:       tags,
			FlushEvery: cfg.FlushEvery.Duration,
		})
		if err != nil {
			logger.Warn("metrics: failed to init datadog backend; using nop", "err", err)
			return func() {}, nil
		}
		logger.Info("metrics: datadog enabled", "job", job, "tags", tags)
		setMetricsBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logger.Warn("metrics: datadog close error", "err", err)
			}
		}, nil

	case "", "none", "noop":
		logger.Debug("metrics: disabled", "backend", cfg.Backend)
		return func() {}, nil

	default:
		logger.Warn("metrics: unknown backend; metrics disabled", "backend", cfg.Backend)
		return func() {}, nil
	}
}
