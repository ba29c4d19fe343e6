package stats

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wfp"

// Collector exposes a Stats instance as Prometheus metrics
type Collector struct {
	stats *Stats

	notifications *prometheus.Desc
	panelMessages *prometheus.Desc
	parsedPOIs    *prometheus.Desc
	hostRequests  *prometheus.Desc
	hostFailures  *prometheus.Desc
	acks          *prometheus.Desc
	tours         *prometheus.Desc
	timedResets   *prometheus.Desc
}

// NewCollector creates a collector reading from s
func NewCollector(s *Stats) *Collector {
	return &Collector{
		stats: s,
		notifications: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "dispatch", "notifications_total"),
			"Host notifications dispatched, by kind",
			[]string{"kind"}, nil,
		),
		panelMessages: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "panel", "messages_total"),
			"Messages received from the UI panel",
			nil, nil,
		),
		parsedPOIs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "panel", "parsed_pois_total"),
			"Coordinates extracted from panel messages",
			nil, nil,
		),
		hostRequests: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "host", "requests_total"),
			"Requests submitted to the host, by operation",
			[]string{"op"}, nil,
		),
		hostFailures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "host", "failures_total"),
			"Host calls that returned a failure status",
			nil, nil,
		),
		acks: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "objects", "acks_total"),
			"Object assignment acknowledgements, by outcome",
			[]string{"outcome"}, nil,
		),
		tours: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "tour", "transitions_total"),
			"Tour transitions, by event",
			[]string{"event"}, nil,
		),
		timedResets: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "tour", "audio_resets_total"),
			"Audio cue resets fired",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.notifications
	ch <- c.panelMessages
	ch <- c.parsedPOIs
	ch <- c.hostRequests
	ch <- c.hostFailures
	ch <- c.acks
	ch <- c.tours
	ch <- c.timedResets
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats
	counter := func(desc *prometheus.Desc, v *uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(atomic.LoadUint64(v)), labels...)
	}

	for i, kind := range NotificationKinds {
		counter(c.notifications, &s.NotificationCounts[i], kind)
	}
	counter(c.panelMessages, &s.PanelMessages)
	counter(c.parsedPOIs, &s.ParsedPOIs)
	counter(c.hostRequests, &s.SpawnRequests, "create")
	counter(c.hostRequests, &s.RemoveRequests, "remove")
	counter(c.hostRequests, &s.DataRequests, "read")
	counter(c.hostFailures, &s.HostFailures)
	counter(c.acks, &s.AcksTracked, "tracked")
	counter(c.acks, &s.AcksIgnored, "ignored")
	counter(c.tours, &s.ToursStarted, "started")
	counter(c.tours, &s.ToursCompleted, "completed")
	counter(c.tours, &s.POIAdvances, "advanced")
	counter(c.timedResets, &s.TimedResets)
}
