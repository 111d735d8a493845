// Package datadog implements a Datadog backend for the internal/metrics package.
//
// Metrics are buffered in memory and submitted on Flush. A background loop
// flushes on a ticker (default once per minute) so scheduled harvests produce
// a time series rather than a single spike; Close stops the loop and flushes
// one last time.
//
// Concurrency model:
//   - the harvester calls IncCounter/ObserveHistogram at any time
//   - Flush snapshots and resets buffers under a mutex, then submits out-of-lock
package datadog

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"cuiregistry/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to "cui-harvest".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"team:compliance"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams; production never sets them.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the slice of *datadogV2.MetricsApi the backend uses.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	pageCounts      map[string]float64 // status -> count
	recordCounts    map[string]float64 // kind -> count
	categoryCount   float64
	stepCounts      map[string]float64 // step\x00status -> count
	durationSamples map[string][]float64

	httpReqCounts map[string]float64
	httpErrCounts map[string]float64
	httpReqDur    map[string][]float64
	httpDownloadB map[string][]float64
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client and
// starts its flush loop. Credentials come from DD_API_KEY / DD_SITE as read by
// the client's default context.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "cui-harvest"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		client := dd.NewAPIClient(dd.NewConfiguration())
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
	}
	b.resetLocked()

	go b.loop()
	return b, nil
}

func (b *Backend) resetLocked() {
	b.pageCounts = make(map[string]float64)
	b.recordCounts = make(map[string]float64)
	b.categoryCount = 0
	b.stepCounts = make(map[string]float64)
	b.durationSamples = make(map[string][]float64)
	b.httpReqCounts = make(map[string]float64)
	b.httpErrCounts = make(map[string]float64)
	b.httpReqDur = make(map[string][]float64)
	b.httpDownloadB = make(map[string][]float64)
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and performs one final Flush. Call it once.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

func statusOf(labels metrics.Labels) string {
	if s := labels["status"]; s != "" {
		return s
	}
	return "unknown"
}

// IncCounter implements metrics.Backend. Unknown metric names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.PagesTotal:
		b.pageCounts[statusOf(labels)] += delta
	case metrics.RecordsTotal:
		kind := labels["kind"]
		if kind == "" {
			return
		}
		b.recordCounts[kind] += delta
	case metrics.CategoriesTotal:
		b.categoryCount += delta
	case "harvest_step_total":
		b.stepCounts[stepStatusKey(labels["step"], labels["status"])] += delta
	case metrics.HTTPRequestsTotal:
		b.httpReqCounts[statusOf(labels)] += delta
	case metrics.HTTPErrorsTotal:
		b.httpErrCounts[statusOf(labels)] += delta
	}
}

// ObserveHistogram implements metrics.Backend. Unknown metric names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.StepDuration:
		k := stepStatusKey(labels["step"], labels["status"])
		b.durationSamples[k] = append(b.durationSamples[k], value)
	case metrics.HTTPRequestDuration:
		s := statusOf(labels)
		b.httpReqDur[s] = append(b.httpReqDur[s], value)
	case metrics.HTTPDownloadBytes:
		s := statusOf(labels)
		b.httpDownloadB[s] = append(b.httpDownloadB[s], value)
	}
}

// snapshot is the detached buffer state used to build one flush payload.
type snapshot struct {
	pageCounts      map[string]float64
	recordCounts    map[string]float64
	categoryCount   float64
	stepCounts      map[string]float64
	durationSamples map[string][]float64

	httpReqCounts map[string]float64
	httpErrCounts map[string]float64
	httpReqDur    map[string][]float64
	httpDownloadB map[string][]float64
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		pageCounts:      b.pageCounts,
		recordCounts:    b.recordCounts,
		categoryCount:   b.categoryCount,
		stepCounts:      b.stepCounts,
		durationSamples: b.durationSamples,
		httpReqCounts:   b.httpReqCounts,
		httpErrCounts:   b.httpErrCounts,
		httpReqDur:      b.httpReqDur,
		httpDownloadB:   b.httpDownloadB,
	}
	b.resetLocked()
	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.pageCounts) == 0 &&
		len(s.recordCounts) == 0 &&
		s.categoryCount == 0 &&
		len(s.stepCounts) == 0 &&
		len(s.durationSamples) == 0 &&
		len(s.httpReqCounts) == 0 &&
		len(s.httpErrCounts) == 0 &&
		len(s.httpReqDur) == 0 &&
		len(s.httpDownloadB) == 0
}

// Flush submits buffered metrics and resets local buffers, even when the
// submission fails. It returns nil when there is nothing to submit.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	series := b.buildSeries(snap, b.now().Unix())
	payload := datadogV2.MetricPayload{Series: series}

	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	if err != nil {
		return fmt.Errorf("datadog submit: %w", err)
	}
	return nil
}

// buildSeries is pure: no locks, no network, no clock.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, 32)

	for _, status := range sortedKeys(s.pageCounts) {
		series = append(series, countSeries("cui.harvest.pages.total", s.pageCounts[status], withTags(b.baseTags, "status:"+status), nowUnix))
	}
	for _, kind := range sortedKeys(s.recordCounts) {
		series = append(series, countSeries("cui.harvest.records.total", s.recordCounts[kind], withTags(b.baseTags, "kind:"+kind), nowUnix))
	}
	if s.categoryCount != 0 {
		series = append(series, countSeries("cui.harvest.categories.total", s.categoryCount, b.baseTags, nowUnix))
	}
	for _, k := range sortedKeys(s.stepCounts) {
		step, status := splitStepStatusKey(k)
		series = append(series, countSeries("cui.harvest.step.total", s.stepCounts[k], withTags(b.baseTags, "step:"+step, "status:"+status), nowUnix))
	}
	for k, samples := range s.durationSamples {
		step, status := splitStepStatusKey(k)
		addPercentiles(&series, "cui.harvest.step.duration_seconds", withTags(b.baseTags, "step:"+step, "status:"+status), samples, nowUnix)
	}

	for _, status := range sortedKeys(s.httpReqCounts) {
		series = append(series, countSeries("cui.harvest.http.requests.total", s.httpReqCounts[status], withTags(b.baseTags, "status:"+status), nowUnix))
	}
	for _, status := range sortedKeys(s.httpErrCounts) {
		series = append(series, countSeries("cui.harvest.http.errors.total", s.httpErrCounts[status], withTags(b.baseTags, "status:"+status), nowUnix))
	}
	for status, samples := range s.httpReqDur {
		addPercentiles(&series, "cui.harvest.http.request_duration_seconds", withTags(b.baseTags, "status:"+status), samples, nowUnix)
	}
	for status, samples := range s.httpDownloadB {
		addPercentiles(&series, "cui.harvest.http.download_bytes", withTags(b.baseTags, "status:"+status), samples, nowUnix)
	}

	return series
}

// addPercentiles appends p50/p90/p95/p99/max/samples gauges. It sorts a copy
// of samples.
func addPercentiles(series *[]datadogV2.MetricSeries, metricPrefix string, tags []string, samples []float64, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series,
		gaugeSeries(metricPrefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix),
		gaugeSeries(metricPrefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix),
		gaugeSeries(metricPrefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix),
		gaugeSeries(metricPrefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix),
		gaugeSeries(metricPrefix+".max", cp[len(cp)-1], tags, nowUnix),
		gaugeSeries(metricPrefix+".samples", float64(len(cp)), tags, nowUnix),
	)
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func stepStatusKey(step, status string) string {
	return step + "\x00" + status
}

func splitStepStatusKey(k string) (step, status string) {
	parts := strings.SplitN(k, "\x00", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return k, "unknown"
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v == 0 {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,team:compliance".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
