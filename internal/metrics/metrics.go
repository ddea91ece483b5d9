package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Metric names emitted by the gateway
const (
	MessagesSent     = "whatsapp_messages_sent_total"
	MessagesFailed   = "whatsapp_messages_failed_total"
	MessagesQueued   = "whatsapp_messages_queued_total"
	SendDuration     = "whatsapp_send_duration"
	QueueLength      = "whatsapp_queue_length"
	ConnectionState  = "whatsapp_connection_state"
	JobRuns          = "scheduler_job_runs_total"
	JobSkipped       = "scheduler_job_skipped_total"
	LogEntriesPurged = "message_logs_purged_total"
)

// Sample is a labelled counter or gauge value
type Sample struct {
	Name   string            `json:"name"`
	Value  float64           `json:"value"`
	Labels map[string]string `json:"labels,omitempty"`
}

// TimerStats summarises recorded durations in milliseconds
type TimerStats struct {
	Name    string            `json:"name"`
	Labels  map[string]string `json:"labels,omitempty"`
	Count   int64             `json:"count"`
	Sum     float64           `json:"sum_ms"`
	Min     float64           `json:"min_ms"`
	Max     float64           `json:"max_ms"`
	Average float64           `json:"avg_ms"`
	P95     float64           `json:"p95_ms,omitempty"`
	samples []float64
}

// Snapshot is a point-in-time copy of every metric
type Snapshot struct {
	Counters []Sample     `json:"counters"`
	Gauges   []Sample     `json:"gauges"`
	Timers   []TimerStats `json:"timers"`
	UptimeMs int64        `json:"uptime_ms"`
}

const maxTimerSamples = 500

// Registry keeps metrics in memory
type Registry struct {
	mu        sync.RWMutex
	counters  map[string]*Sample
	gauges    map[string]*Sample
	timers    map[string]*TimerStats
	startTime time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		counters:  make(map[string]*Sample),
		gauges:    make(map[string]*Sample),
		timers:    make(map[string]*TimerStats),
		startTime: time.Now(),
	}
}

var global = NewRegistry()

// Default returns the process-wide registry
func Default() *Registry {
	return global
}

func (r *Registry) Inc(name string, labels map[string]string) {
	r.Add(name, 1, labels)
}

func (r *Registry) Add(name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := seriesKey(name, labels)
	if c, ok := r.counters[key]; ok {
		c.Value += value
		return
	}
	r.counters[key] = &Sample{Name: name, Value: value, Labels: copyLabels(labels)}
}

func (r *Registry) Set(name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gauges[seriesKey(name, labels)] = &Sample{Name: name, Value: value, Labels: copyLabels(labels)}
}

func (r *Registry) Observe(name string, d time.Duration, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ms := float64(d.Nanoseconds()) / 1e6
	key := seriesKey(name, labels)
	t, ok := r.timers[key]
	if !ok {
		r.timers[key] = &TimerStats{
			Name: name, Labels: copyLabels(labels),
			Count: 1, Sum: ms, Min: ms, Max: ms, Average: ms,
			samples: []float64{ms},
		}
		return
	}

	t.Count++
	t.Sum += ms
	t.Min = min(t.Min, ms)
	t.Max = max(t.Max, ms)
	t.Average = t.Sum / float64(t.Count)
	t.samples = append(t.samples, ms)
	if len(t.samples) > maxTimerSamples {
		t.samples = t.samples[len(t.samples)-maxTimerSamples:]
	}
	if len(t.samples) >= 10 {
		t.P95 = percentile(t.samples, 0.95)
	}
}

// Counter returns the current value of one counter series
func (r *Registry) Counter(name string, labels map[string]string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.counters[seriesKey(name, labels)]; ok {
		return c.Value
	}
	return 0
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{UptimeMs: time.Since(r.startTime).Milliseconds()}
	for _, key := range sortedKeys(r.counters) {
		snap.Counters = append(snap.Counters, *r.counters[key])
	}
	for _, key := range sortedKeys(r.gauges) {
		snap.Gauges = append(snap.Gauges, *r.gauges[key])
	}
	for _, key := range sortedKeys(r.timers) {
		t := *r.timers[key]
		t.samples = nil
		snap.Timers = append(snap.Timers, t)
	}
	return snap
}

func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	return name + formatLabels(labels)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, labels[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func percentile(samples []float64, p float64) float64 {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// Package-level helpers on the default registry

func Inc(name string, labels map[string]string) {
	global.Inc(name, labels)
}

func Set(name string, value float64, labels map[string]string) {
	global.Set(name, value, labels)
}

func Observe(name string, d time.Duration, labels map[string]string) {
	global.Observe(name, d, labels)
}
