package prometheus

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/goliatone/go-ingress/core"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is a core.MetricsRecorder backed by prometheus vectors. The label
// set of a metric is fixed by the tags seen on its first use; later calls
// fill missing labels with "" and drop unknown ones.
type Recorder struct {
	registerer prometheus.Registerer
	buckets    []float64

	mu         sync.Mutex
	counters   map[string]*counterSeries
	histograms map[string]*histogramSeries
}

type counterSeries struct {
	vec    *prometheus.CounterVec
	labels []string
}

type histogramSeries struct {
	vec    *prometheus.HistogramVec
	labels []string
}

// DefaultBuckets are millisecond buckets from 1ms to ~16s.
var DefaultBuckets = prometheus.ExponentialBuckets(1, 2, 15)

func NewRecorder(registerer prometheus.Registerer) *Recorder {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Recorder{
		registerer: registerer,
		buckets:    DefaultBuckets,
		counters:   map[string]*counterSeries{},
		histograms: map[string]*histogramSeries{},
	}
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	series, err := r.counter(name, tags)
	if err != nil {
		return
	}
	series.vec.With(labelValues(series.labels, tags)).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	series, err := r.histogram(name, tags)
	if err != nil {
		return
	}
	series.vec.With(labelValues(series.labels, tags)).Observe(value)
}

func (r *Recorder) counter(name string, tags map[string]string) (*counterSeries, error) {
	metric := SanitizeName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if series, ok := r.counters[metric]; ok {
		return series, nil
	}
	labels := labelNames(tags)
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: metric, Help: "Counter " + name}, labels)
	if err := r.registerer.Register(vec); err != nil {
		var exists prometheus.AlreadyRegisteredError
		if !errors.As(err, &exists) {
			return nil, err
		}
		existing, ok := exists.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		vec = existing
	}
	series := &counterSeries{vec: vec, labels: labels}
	r.counters[metric] = series
	return series, nil
}

func (r *Recorder) histogram(name string, tags map[string]string) (*histogramSeries, error) {
	metric := SanitizeName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if series, ok := r.histograms[metric]; ok {
		return series, nil
	}
	labels := labelNames(tags)
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: metric, Help: "Histogram " + name, Buckets: r.buckets}, labels)
	if err := r.registerer.Register(vec); err != nil {
		var exists prometheus.AlreadyRegisteredError
		if !errors.As(err, &exists) {
			return nil, err
		}
		existing, ok := exists.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, err
		}
		vec = existing
	}
	series := &histogramSeries{vec: vec, labels: labels}
	r.histograms[metric] = series
	return series, nil
}

// SanitizeName maps a dotted metric name onto the prometheus charset, e.g.
// ingress.route.total becomes ingress_route_total.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "ingress_unnamed"
	}
	var b strings.Builder
	for i, r := range name {
		switch {
		case r == '_' || r == ':' || (r < unicode.MaxASCII && unicode.IsLetter(r)):
			b.WriteRune(r)
		case r < unicode.MaxASCII && unicode.IsDigit(r):
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func sanitizeLabel(name string) string {
	return strings.ReplaceAll(SanitizeName(name), ":", "_")
}

func labelNames(tags map[string]string) []string {
	labels := make([]string, 0, len(tags))
	seen := map[string]bool{}
	for key := range tags {
		label := sanitizeLabel(key)
		if strings.HasPrefix(label, "__") || seen[label] {
			continue
		}
		seen[label] = true
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

func labelValues(labels []string, tags map[string]string) prometheus.Labels {
	values := make(prometheus.Labels, len(labels))
	for _, label := range labels {
		values[label] = ""
	}
	for key, value := range tags {
		label := sanitizeLabel(key)
		if _, ok := values[label]; ok {
			values[label] = value
		}
	}
	return values
}

var _ core.MetricsRecorder = (*Recorder)(nil)
