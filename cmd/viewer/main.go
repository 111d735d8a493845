// Command viewer serves the CUI authorities dashboard over a workbook written
// by harvest.
//
//	viewer -in CUI_Authorities.xlsx
//	viewer -config configs/viewer.yaml -addr :8050
//
// The dashboard has two multi-select filters (CUI category and, unless
// disabled, organizational category), a sortable and filterable record grid
// and two per-category bar charts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cuiregistry/internal/config"
	"cuiregistry/internal/cui"
	"cuiregistry/internal/logging"
	"cuiregistry/internal/sheet"
	"cuiregistry/internal/viewer"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

type appDeps struct {
	readDataset func(path string) (*cui.Dataset, error)
	listen      func(addr string) (net.Listener, error)
	serve       func(ctx context.Context, ln net.Listener, h http.Handler, logger *slog.Logger) error
}

func defaultDeps() appDeps {
	return appDeps{
		readDataset: sheet.ReadFile,
		listen: func(addr string) (net.Listener, error) {
			return net.Listen("tcp", addr)
		},
		serve: serve,
	}
}

// runMain returns a Unix-style exit code:
//   - 0 for success
//   - 2 for usage/config errors
//   - 1 for operational/runtime errors
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("viewer", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfgPath := fs.String("config", "", "viewer config file (.json, .yaml or .yml)")
	input := fs.String("in", "", "workbook written by harvest (overrides input)")
	addr := fs.String("addr", "", "listen address (overrides addr)")
	title := fs.String("title", "", "page title (overrides title)")
	orgFilter := fs.Bool("org-filter", true, "show the organizational category filter")
	logFormat := fs.String("log-format", logging.FormatText, "log format: text or json")
	verbose := fs.Bool("v", false, "enable verbose logs (logs every request)")
	validate := fs.Bool("validate", false, "validate the configuration and exit")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "usage: viewer [-config FILE] [-in FILE] [-addr ADDR]; unexpected argument %q\n", fs.Arg(0))
		return 2
	}

	logger, err := logging.New(stderr, *logFormat, *verbose)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	cfg, err := config.LoadViewer(*cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 2
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "in":
			cfg.Input = *input
		case "addr":
			cfg.Addr = *addr
		case "title":
			cfg.Title = *title
		case "org-filter":
			cfg.OrgFilter = *orgFilter
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

	ds, err := deps.readDataset(cfg.Input)
	switch {
	case errors.Is(err, sheet.ErrEmptyHarvest):
		fmt.Fprintf(stderr, "%s: %v; run harvest again before starting the dashboard\n", cfg.Input, err)
		return 1
	case err != nil:
		fmt.Fprintf(stderr, "read workbook: %v\n", err)
		return 1
	}
	logger.Info("dataset loaded",
		"input", cfg.Input,
		"run_id", ds.RunID,
		"records", ds.Total(),
		"sanction_columns", ds.SanctionWidth(),
	)

	h := viewer.NewServer(ds, viewer.Options{
		Title:     cfg.Title,
		OrgFilter: cfg.OrgFilter,
		Logger:    logger,
	})

	ln, err := deps.listen(cfg.Addr)
	if err != nil {
		fmt.Fprintf(stderr, "listen %s: %v\n", cfg.Addr, err)
		return 1
	}
	fmt.Fprintf(stdout, "serving %d records on http://%s/\n", ds.Total(), ln.Addr())

	if err := deps.serve(ctx, ln, h, logger); err != nil {
		fmt.Fprintf(stderr, "serve: %v\n", err)
		return 1
	}
	return 0
}

// serve runs h on ln until ctx is done, then shuts down gracefully.
func serve(ctx context.Context, ln net.Listener, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "addr", ln.Addr().String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
