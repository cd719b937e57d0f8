package core

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// MemoryMetricsRecorder accumulates counters in process. It backs tests and
// the replay CLI where no metrics backend is wired.
type MemoryMetricsRecorder struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewMemoryMetricsRecorder() *MemoryMetricsRecorder {
	return &MemoryMetricsRecorder{counters: map[string]int64{}}
}

func (r *MemoryMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counters == nil {
		r.counters = map[string]int64{}
	}
	r.counters[name] += value
	r.counters[seriesKey(name, tags)] += value
}

func (r *MemoryMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {
}

// Count returns the counter total for name, optionally narrowed to a tag set.
func (r *MemoryMetricsRecorder) Count(name string, tags map[string]string) int64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(tags) == 0 {
		return r.counters[name]
	}
	return r.counters[seriesKey(name, tags)]
}

func seriesKey(name string, tags map[string]string) string {
	if len(tags) == 0 {
		return name + "{}"
	}
	pairs := make([]string, 0, len(tags))
	for key, value := range tags {
		pairs = append(pairs, key+"="+value)
	}
	sort.Strings(pairs)
	return name + "{" + strings.Join(pairs, ",") + "}"
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var (
	_ MetricsRecorder = NopMetricsRecorder{}
	_ MetricsRecorder = (*MemoryMetricsRecorder)(nil)
)
