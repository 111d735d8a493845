// Package metrics is the backend-agnostic metrics facade used by the
// harvester. Core code only calls the package-level helpers; the concrete
// backend (Datadog, or nothing) is chosen once at process start.
package metrics

import (
	"sync"
	"time"
)

// Labels are metric dimensions, e.g. {"status": "200"}.
type Labels map[string]string

// Backend receives metric events.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names emitted by the harvester.
const (
	PagesTotal          = "harvest_pages_total"
	RecordsTotal        = "harvest_records_total"
	CategoriesTotal     = "harvest_categories_total"
	StepDuration        = "harvest_step_duration_seconds"
	HTTPRequestsTotal   = "harvest_http_requests_total"
	HTTPErrorsTotal     = "harvest_http_errors_total"
	HTTPRequestDuration = "harvest_http_request_duration_seconds"
	HTTPDownloadBytes   = "harvest_http_download_bytes"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the nop
// backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a counter on the current backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample on the current backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the current backend.
func Flush() error { return current().Flush() }

// RecordStep counts one pipeline step and its duration since start.
func RecordStep(step, status string, start time.Time) {
	l := Labels{"step": step, "status": status}
	IncCounter("harvest_step_total", 1, l)
	ObserveHistogram(StepDuration, time.Since(start).Seconds(), l)
}
