package metrics

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

const uptimeMetric = "swimnotify_uptime_seconds"

var help = map[string]string{
	MessagesSent:     "WhatsApp messages accepted by the transport",
	MessagesFailed:   "WhatsApp messages that failed to send",
	MessagesQueued:   "WhatsApp messages queued while the session was offline",
	SendDuration:     "Time spent in one transport send, in milliseconds",
	QueueLength:      "Messages waiting for the session to reconnect",
	ConnectionState:  "Gateway connection state: 1 connected, 0.5 pairing, 0 disconnected, -1 error",
	JobRuns:          "Scheduled job runs by result",
	JobSkipped:       "Scheduled job runs skipped because one was already running",
	LogEntriesPurged: "Message log entries removed by retention",
}

// Collector exposes a Registry to a Prometheus registerer. Series come and
// go with the registry, so Describe sends nothing and the collector is
// unchecked.
type Collector struct {
	registry *Registry
}

func NewCollector(r *Registry) *Collector {
	return &Collector{registry: r}
}

func (c *Collector) Describe(chan<- *prometheus.Desc) {}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.registry.Snapshot()

	for _, s := range snap.Counters {
		constMetric(ch, s.Name, prometheus.CounterValue, s.Value, s.Labels)
	}
	for _, s := range snap.Gauges {
		constMetric(ch, s.Name, prometheus.GaugeValue, s.Value, s.Labels)
	}
	for _, t := range snap.Timers {
		names, values := splitLabels(t.Labels)
		desc := prometheus.NewDesc(t.Name+"_milliseconds", helpFor(t.Name), names, nil)
		quantiles := map[float64]float64{}
		if t.P95 > 0 {
			quantiles[0.95] = t.P95
		}
		m, err := prometheus.NewConstSummary(desc, uint64(t.Count), t.Sum, quantiles, values...)
		if err != nil {
			ch <- prometheus.NewInvalidMetric(desc, err)
			continue
		}
		ch <- m
	}

	constMetric(ch, uptimeMetric, prometheus.GaugeValue, float64(snap.UptimeMs)/1000, nil)
}

func constMetric(ch chan<- prometheus.Metric, name string, kind prometheus.ValueType, value float64, labels map[string]string) {
	names, values := splitLabels(labels)
	desc := prometheus.NewDesc(name, helpFor(name), names, nil)
	m, err := prometheus.NewConstMetric(desc, kind, value, values...)
	if err != nil {
		m = prometheus.NewInvalidMetric(desc, err)
	}
	ch <- m
}

func helpFor(name string) string {
	if h, ok := help[name]; ok {
		return h
	}
	if name == uptimeMetric {
		return "Seconds since the metrics registry was created"
	}
	return name
}

func splitLabels(labels map[string]string) ([]string, []string) {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	values := make([]string, len(names))
	for i, k := range names {
		values[i] = labels[k]
	}
	return names, values
}
