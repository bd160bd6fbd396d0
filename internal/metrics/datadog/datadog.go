// Package datadog implements a Datadog backend for the internal/metrics package.
//
// Observations are buffered in memory and submitted on Flush. A background
// loop flushes periodically (default once per minute) so that a slow download
// still produces a time series, and Close performs the final flush.
//
// If the process is killed before Close runs, the last window is lost.
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

	"ratesheet/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric.
	// If empty, defaults to "ratesheet".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod", "source:hertz"}).
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
	closeOnce  sync.Once

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu  sync.Mutex
	buf buffers
}

// buffers holds one collection window.
type buffers struct {
	steps     map[string]float64   // step\x00status -> count
	rows      map[string]float64   // schema\x00outcome -> count
	durations map[string][]float64 // step\x00status -> seconds

	httpReqs  map[string]float64 // status -> count
	httpErrs  map[string]float64
	httpDur   map[string][]float64
	httpBytes map[string][]float64
}

func newBuffers() buffers {
	return buffers{
		steps:     make(map[string]float64),
		rows:      make(map[string]float64),
		durations: make(map[string][]float64),
		httpReqs:  make(map[string]float64),
		httpErrs:  make(map[string]float64),
		httpDur:   make(map[string][]float64),
		httpBytes: make(map[string][]float64),
	}
}

func (s buffers) isEmpty() bool {
	return len(s.steps) == 0 &&
		len(s.rows) == 0 &&
		len(s.durations) == 0 &&
		len(s.httpReqs) == 0 &&
		len(s.httpErrs) == 0 &&
		len(s.httpDur) == 0 &&
		len(s.httpBytes) == 0
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

// NewBackend constructs a Datadog backend using the official client. Credentials
// and site come from the usual DD_API_KEY / DD_SITE environment variables.
//
// Errors are only returned for invalid options; network failures surface on Flush.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	if opts.FlushEvery < 0 {
		return nil, wrapInitErr(fmt.Errorf("negative flush interval %s", opts.FlushEvery))
	}

	job := opts.JobName
	if job == "" {
		job = "ratesheet"
	}
	flushEvery := opts.FlushEvery
	if flushEvery == 0 {
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
		buf:        newBuffers(),
	}

	go b.loop()
	return b, nil
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

// Close stops the flush loop and performs one final Flush. Calling Close more
// than once only flushes again.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
	})
	return b.Flush()
}

// IncCounter implements metrics.Backend. Unknown metric names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.StepTotal:
		b.buf.steps[pairKey(labels["step"], labels["status"])] += delta
	case metrics.RowsTotal:
		if labels["schema"] == "" {
			return
		}
		b.buf.rows[pairKey(labels["schema"], labels["outcome"])] += delta
	case metrics.HTTPRequestsTotal:
		b.buf.httpReqs[statusLabel(labels)] += delta
	case metrics.HTTPErrorsTotal:
		b.buf.httpErrs[statusLabel(labels)] += delta
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
	case metrics.StepDurationSeconds:
		k := pairKey(labels["step"], labels["status"])
		b.buf.durations[k] = append(b.buf.durations[k], value)
	case metrics.HTTPRequestDurationSeconds:
		s := statusLabel(labels)
		b.buf.httpDur[s] = append(b.buf.httpDur[s], value)
	case metrics.HTTPDownloadBytes:
		s := statusLabel(labels)
		b.buf.httpBytes[s] = append(b.buf.httpBytes[s], value)
	}
}

func (b *Backend) snapshotAndReset() buffers {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf
	b.buf = newBuffers()
	return s
}

// Flush submits buffered metrics and resets the buffers, even when the
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

// buildSeries turns a snapshot into Datadog series at a fixed timestamp. Output
// is sorted by metric name and tags so payloads are deterministic.
func (b *Backend) buildSeries(s buffers, nowUnix int64) []datadogV2.MetricSeries {
	var series []datadogV2.MetricSeries

	for k, v := range s.steps {
		step, status := splitPairKey(k)
		series = append(series, pointSeries(datadogV2.METRICINTAKETYPE_COUNT, "ratesheet.step.total", v,
			withTags(b.baseTags, "step:"+step, "status:"+status), nowUnix))
	}
	for k, v := range s.rows {
		schema, outcome := splitPairKey(k)
		series = append(series, pointSeries(datadogV2.METRICINTAKETYPE_COUNT, "ratesheet.rows.total", v,
			withTags(b.baseTags, "schema:"+schema, "outcome:"+outcome), nowUnix))
	}
	for k, samples := range s.durations {
		step, status := splitPairKey(k)
		series = appendPercentiles(series, "ratesheet.step.duration_seconds", samples,
			withTags(b.baseTags, "step:"+step, "status:"+status), nowUnix)
	}

	for status, v := range s.httpReqs {
		series = append(series, pointSeries(datadogV2.METRICINTAKETYPE_COUNT, "ratesheet.http.requests.total", v,
			withTags(b.baseTags, "status:"+status), nowUnix))
	}
	for status, v := range s.httpErrs {
		series = append(series, pointSeries(datadogV2.METRICINTAKETYPE_COUNT, "ratesheet.http.errors.total", v,
			withTags(b.baseTags, "status:"+status), nowUnix))
	}
	for status, samples := range s.httpDur {
		series = appendPercentiles(series, "ratesheet.http.request_duration_seconds", samples,
			withTags(b.baseTags, "status:"+status), nowUnix)
	}
	for status, samples := range s.httpBytes {
		series = appendPercentiles(series, "ratesheet.http.download_bytes", samples,
			withTags(b.baseTags, "status:"+status), nowUnix)
	}

	sort.Slice(series, func(i, j int) bool {
		if series[i].Metric != series[j].Metric {
			return series[i].Metric < series[j].Metric
		}
		return strings.Join(series[i].Tags, ",") < strings.Join(series[j].Tags, ",")
	})
	return series
}

// appendPercentiles publishes p50/p90/p95/p99/max/samples gauges for a sample
// set. The input slice is not modified.
func appendPercentiles(series []datadogV2.MetricSeries, prefix string, samples []float64, tags []string, nowUnix int64) []datadogV2.MetricSeries {
	if len(samples) == 0 {
		return series
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	gauge := func(suffix string, v float64) datadogV2.MetricSeries {
		return pointSeries(datadogV2.METRICINTAKETYPE_GAUGE, prefix+suffix, v, tags, nowUnix)
	}
	return append(series,
		gauge(".p50", percentileNearestRank(cp, 0.50)),
		gauge(".p90", percentileNearestRank(cp, 0.90)),
		gauge(".p95", percentileNearestRank(cp, 0.95)),
		gauge(".p99", percentileNearestRank(cp, 0.99)),
		gauge(".max", cp[len(cp)-1]),
		gauge(".samples", float64(len(cp))),
	)
}

func pointSeries(kind datadogV2.MetricIntakeType, metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   kind.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func statusLabel(labels metrics.Labels) string {
	if s := labels["status"]; s != "" {
		return s
	}
	return "unknown"
}

func pairKey(a, b string) string {
	if b == "" {
		b = "unknown"
	}
	return a + "\x00" + b
}

func splitPairKey(k string) (string, string) {
	a, b, ok := strings.Cut(k, "\x00")
	if !ok {
		return k, "unknown"
	}
	return a, b
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	return append(out, extras...)
}

// percentileNearestRank expects s sorted ascending.
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

// ParseTagsCSV parses comma-separated tags like "env:prod,source:hertz".
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

func wrapInitErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("datadog metrics init: %w", err)
}
