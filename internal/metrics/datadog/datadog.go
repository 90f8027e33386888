// Package datadog implements a Datadog backend for the internal/metrics package.
//
// Probe runs are short, but `label` over a large input can run for a long
// time, so observations are buffered per series and submitted on a ticker
// (default once per minute) and once more on Close. If the process dies
// without Close, the last window is lost.
package datadog

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"headerprobe/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric.
	// If empty, defaults to "headerprobe".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod", "team:data"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// test seams
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the part of *datadogV2.MetricsApi the backend uses.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// seriesDef maps a facade metric to its Datadog name and the label keys kept
// as tags, in tag order. Other labels are dropped.
type seriesDef struct {
	name string
	tags []string
}

var knownSeries = map[string]seriesDef{
	metrics.StepTotal:           {"headerprobe.step.total", []string{"step", "status"}},
	metrics.StepDurationSeconds: {"headerprobe.step.duration_seconds", []string{"step", "status"}},
	metrics.RowsSampledTotal:    {"headerprobe.rows_sampled.total", []string{"format"}},
	metrics.RowsLabeledTotal:    {"headerprobe.rows_labeled.total", []string{"format"}},
	metrics.ColumnsTotal:        {"headerprobe.columns.total", []string{"kind"}},
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api      metricsSubmitter
	ctx      context.Context
	baseTags []string
	now      func() time.Time

	stop chan struct{}
	done chan struct{}

	mu      sync.Mutex
	buf     window
	pending int // observations in buf
}

// window holds one flush interval, keyed by seriesKey.
type window struct {
	counts  map[string]float64
	samples map[string][]float64
}

func newWindow() window {
	return window{counts: map[string]float64{}, samples: map[string][]float64{}}
}

// NewBackend starts a Datadog backend and its flush loop. Credentials come
// from DD_API_KEY and DD_SITE, read by the client. The environment tag is
// taken from ENV, then DD_ENV, else "env:unknown".
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	if parent == nil {
		return nil, fmt.Errorf("datadog metrics init: nil context")
	}

	job := cmp.Or(opts.JobName, "headerprobe")
	every := opts.FlushEvery
	if every <= 0 {
		every = time.Minute
	}

	api := opts.submitter
	if api == nil {
		api = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	b := &Backend{
		api:      api,
		ctx:      dd.NewDefaultContext(parent),
		baseTags: append([]string{envTag(), "job:" + job}, opts.Tags...),
		now:      opts.now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		buf:      newWindow(),
	}
	if b.now == nil {
		b.now = time.Now
	}

	t := newTicker(every)
	go func() {
		defer close(b.done)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				_ = b.Flush()
			case <-b.stop:
				return
			}
		}
	}()
	return b, nil
}

func envTag() string {
	for _, k := range []string{"ENV", "DD_ENV"} {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return "env:" + v
		}
	}
	return "env:unknown"
}

// Close stops the flush loop and flushes what is left. Call it once.
func (b *Backend) Close() error {
	close(b.stop)
	<-b.done
	return b.Flush()
}

// IncCounter buffers delta for a known metric. Unknown names and
// non-positive deltas are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	key, ok := seriesKey(name, labels)
	if !ok || delta <= 0 {
		return
	}
	b.mu.Lock()
	b.buf.counts[key] += delta
	b.pending++
	b.mu.Unlock()
}

// ObserveHistogram buffers value for a known metric. Negative values are
// ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	key, ok := seriesKey(name, labels)
	if !ok || value < 0 {
		return
	}
	b.mu.Lock()
	b.buf.samples[key] = append(b.buf.samples[key], value)
	b.pending++
	b.mu.Unlock()
}

// seriesKey joins the Datadog name and its tags with NUL. Missing label
// values are tagged "unknown".
func seriesKey(name string, labels metrics.Labels) (string, bool) {
	def, ok := knownSeries[name]
	if !ok {
		return "", false
	}
	parts := make([]string, 0, 1+len(def.tags))
	parts = append(parts, def.name)
	for _, k := range def.tags {
		parts = append(parts, k+":"+cmp.Or(labels[k], "unknown"))
	}
	return strings.Join(parts, "\x00"), true
}

func splitSeriesKey(key string) (name string, tags []string) {
	parts := strings.Split(key, "\x00")
	return parts[0], parts[1:]
}

// Flush submits the buffered window and starts a new one, even when the
// submission fails. An empty window is not submitted.
func (b *Backend) Flush() error {
	b.mu.Lock()
	w, n := b.buf, b.pending
	b.buf, b.pending = newWindow(), 0
	b.mu.Unlock()

	if n == 0 {
		return nil
	}
	payload := datadogV2.MetricPayload{Series: b.series(w, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// series renders w as Datadog series stamped at ts, sorted by key so
// payloads are stable. Counters become COUNT points; samples become
// p50/p90/p95/p99/max/samples gauges.
func (b *Backend) series(w window, ts int64) []datadogV2.MetricSeries {
	out := make([]datadogV2.MetricSeries, 0, len(w.counts)+6*len(w.samples))

	for _, key := range slices.Sorted(maps.Keys(w.counts)) {
		name, tags := splitSeriesKey(key)
		out = append(out, point(datadogV2.METRICINTAKETYPE_COUNT, name, w.counts[key], b.tags(tags), ts))
	}

	for _, key := range slices.Sorted(maps.Keys(w.samples)) {
		name, tags := splitSeriesKey(key)
		s := slices.Clone(w.samples[key])
		slices.Sort(s)
		all := b.tags(tags)
		for _, q := range []struct {
			suffix string
			p      float64
		}{{"p50", 0.50}, {"p90", 0.90}, {"p95", 0.95}, {"p99", 0.99}} {
			out = append(out, point(datadogV2.METRICINTAKETYPE_GAUGE, name+"."+q.suffix, nearestRank(s, q.p), all, ts))
		}
		out = append(out,
			point(datadogV2.METRICINTAKETYPE_GAUGE, name+".max", s[len(s)-1], all, ts),
			point(datadogV2.METRICINTAKETYPE_GAUGE, name+".samples", float64(len(s)), all, ts),
		)
	}
	return out
}

func (b *Backend) tags(extra []string) []string {
	return append(slices.Clip(b.baseTags), extra...)
}

func point(typ datadogV2.MetricIntakeType, name string, v float64, tags []string, ts int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: name,
		Type:   typ.Ptr(),
		Points: []datadogV2.MetricPoint{{Timestamp: dd.PtrInt64(ts), Value: dd.PtrFloat64(v)}},
		Tags:   tags,
	}
}

// nearestRank returns the p-quantile of sorted s, rounding the rank to the
// nearest index. s must not be empty.
func nearestRank(s []float64, p float64) float64 {
	p = min(max(p, 0), 1)
	return s[int(p*float64(len(s)-1)+0.5)]
}

// ParseTagsCSV parses comma-separated tags like "env:prod,team:data".
func ParseTagsCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var (
	_ metrics.Backend = (*Backend)(nil)
	_ metrics.Flusher = (*Backend)(nil)
)
