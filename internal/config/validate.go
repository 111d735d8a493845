package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"cuiregistry/internal/extracthtml"

	"github.com/robfig/cron/v3"
)

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single validation finding. Path is the config key it refers to.
type Issue struct {
	Severity Severity
	Path     string
	Message  string

	err error
}

var (
	ErrMissingIndexURL = errors.New("index_url is required")
	ErrInvalidIndexURL = errors.New("index_url must be an absolute http(s) URL")
	ErrMissingOutput   = errors.New("output path is required")
	ErrMissingInput    = errors.New("input path is required")
	ErrMissingAddr     = errors.New("addr is required")
	ErrNegativeTimeout = errors.New("must not be negative")
	ErrMissingDSN      = errors.New("dsn is required when storage.kind is set")
	ErrMissingKind     = errors.New("kind is required when storage.dsn is set")
)

func errorIssue(path string, err error) Issue {
	return Issue{Severity: SeverityError, Path: path, Message: err.Error(), err: err}
}

func warningIssue(path, msg string) Issue {
	return Issue{Severity: SeverityWarning, Path: path, Message: msg}
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Err joins the error-severity issues into one error, or returns nil.
// The sentinel errors above stay reachable through errors.Is.
func Err(issues []Issue) error {
	var errs []error
	for _, iss := range issues {
		if iss.Severity != SeverityError {
			continue
		}
		err := iss.err
		if err == nil {
			err = errors.New(iss.Message)
		}
		errs = append(errs, fmt.Errorf("%s: %w", iss.Path, err))
	}
	return errors.Join(errs...)
}

// Validate checks a harvester configuration.
func (h Harvest) Validate() []Issue {
	var issues []Issue

	switch raw := strings.TrimSpace(h.IndexURL); {
	case raw == "":
		issues = append(issues, errorIssue("index_url", ErrMissingIndexURL))
	default:
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			issues = append(issues, errorIssue("index_url", ErrInvalidIndexURL))
		}
	}

	if strings.TrimSpace(h.Output) == "" {
		issues = append(issues, errorIssue("output", ErrMissingOutput))
	}
	if _, err := extracthtml.StrategyByName(h.IndexStrategy); err != nil {
		issues = append(issues, errorIssue("index_strategy", err))
	}
	if _, err := extracthtml.PolicyByName(h.DetailPolicy); err != nil {
		issues = append(issues, errorIssue("detail_policy", err))
	}
	if h.CategoryPathPrefix != "" && !strings.HasPrefix(h.CategoryPathPrefix, "/") {
		issues = append(issues, warningIssue("category_path_prefix", "prefix is matched against the URL path and should start with /"))
	}
	if h.Timeout.Duration < 0 {
		issues = append(issues, errorIssue("timeout", ErrNegativeTimeout))
	}
	if h.Timeout.Duration == 0 {
		issues = append(issues, warningIssue("timeout", "no timeout: a stalled page blocks the run"))
	}

	if s := strings.TrimSpace(h.Schedule); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			issues = append(issues, errorIssue("schedule", fmt.Errorf("invalid cron spec %q: %w", s, err)))
		}
	}

	kind, dsn := strings.TrimSpace(h.Storage.Kind), strings.TrimSpace(h.Storage.DSN)
	switch {
	case kind != "" && dsn == "":
		issues = append(issues, errorIssue("storage.dsn", ErrMissingDSN))
	case kind == "" && dsn != "":
		issues = append(issues, errorIssue("storage.kind", ErrMissingKind))
	}

	switch strings.ToLower(strings.TrimSpace(h.Metrics.Backend)) {
	case "", "none", "datadog", "dd":
	default:
		issues = append(issues, warningIssue("metrics.backend", fmt.Sprintf("unknown backend %q; metrics disabled", h.Metrics.Backend)))
	}
	if h.Metrics.FlushEvery.Duration < 0 {
		issues = append(issues, errorIssue("metrics.flush_every", ErrNegativeTimeout))
	}

	return issues
}

// Validate checks a viewer configuration.
func (v Viewer) Validate() []Issue {
	var issues []Issue
	if strings.TrimSpace(v.Input) == "" {
		issues = append(issues, errorIssue("input", ErrMissingInput))
	}
	if strings.TrimSpace(v.Addr) == "" {
		issues = append(issues, errorIssue("addr", ErrMissingAddr))
	}
	if strings.TrimSpace(v.Title) == "" {
		issues = append(issues, warningIssue("title", "empty page title"))
	}
	return issues
}
