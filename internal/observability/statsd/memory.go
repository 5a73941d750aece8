package statsd

import (
	"sync"
	"time"
)

// Metric is one recorded emission.
type Metric struct {
	Kind  string // "count", "gauge" or "timing"
	Name  string
	Value float64
	Tags  map[string]string
}

// MemorySink keeps emitted metrics in memory. Used by tests and the admin CLI.
type MemorySink struct {
	mu      sync.Mutex
	metrics []Metric
}

var _ Sink = (*MemorySink)(nil)

// Count records a counter.
func (m *MemorySink) Count(name string, value int64, tags map[string]string) {
	m.add(Metric{Kind: "count", Name: name, Value: float64(value), Tags: tags})
}

// Gauge records a gauge.
func (m *MemorySink) Gauge(name string, value float64, tags map[string]string) {
	m.add(Metric{Kind: "gauge", Name: name, Value: value, Tags: tags})
}

// Timing records a timing in milliseconds.
func (m *MemorySink) Timing(name string, value time.Duration, tags map[string]string) {
	m.add(Metric{Kind: "timing", Name: name, Value: float64(value) / float64(time.Millisecond), Tags: tags})
}

func (m *MemorySink) add(metric Metric) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = append(m.metrics, metric)
}

// Metrics returns a copy of everything recorded so far.
func (m *MemorySink) Metrics() []Metric {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Metric(nil), m.metrics...)
}

// Sum adds up the values of every metric named name whose tags include match.
func (m *MemorySink) Sum(name string, match map[string]string) float64 {
	var total float64
	for _, metric := range m.Metrics() {
		if metric.Name != name || !containsTags(metric.Tags, match) {
			continue
		}
		total += metric.Value
	}
	return total
}

func containsTags(tags, match map[string]string) bool {
	for k, v := range match {
		if tags[k] != v {
			return false
		}
	}
	return true
}
