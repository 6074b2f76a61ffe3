package metrics

import (
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "turnstream"

var dimensionLabels = []string{"endpoint", "transport"}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(Snapshot) int64
}

// PrometheusCollector exposes a Collector's counters as Prometheus metrics.
// Values are read from a fresh Snapshot on every scrape.
type PrometheusCollector struct {
	source   *Collector
	counters []counterDesc
	failures *prometheus.Desc
}

var _ prometheus.Collector = (*PrometheusCollector)(nil)

func newCounterDesc(name, help string, value func(Snapshot) int64) counterDesc {
	return counterDesc{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, dimensionLabels, nil),
		value: value,
	}
}

// NewPrometheusCollector wraps c for registration with a prometheus.Registerer.
func NewPrometheusCollector(c *Collector) *PrometheusCollector {
	return &PrometheusCollector{
		source: c,
		counters: []counterDesc{
			newCounterDesc("turns_started_total", "Conversation turns started.",
				func(s Snapshot) int64 { return s.TurnsStarted }),
			newCounterDesc("turns_completed_total", "Conversation turns that reached end-of-stream cleanly.",
				func(s Snapshot) int64 { return s.TurnsCompleted }),
			newCounterDesc("turns_failed_total", "Conversation turns aborted by an error.",
				func(s Snapshot) int64 { return s.TurnsFailed }),
			newCounterDesc("turns_canceled_total", "Conversation turns abandoned by the caller.",
				func(s Snapshot) int64 { return s.TurnsCanceled }),
			newCounterDesc("fragments_read_total", "Raw fragments read from the channel.",
				func(s Snapshot) int64 { return s.FragmentsRead }),
			newCounterDesc("fragments_discarded_total", "Empty fragments discarded before parsing.",
				func(s Snapshot) int64 { return s.FragmentsDiscarded }),
			newCounterDesc("frames_parsed_total", "Fragments repaired and parsed into frames.",
				func(s Snapshot) int64 { return s.FramesParsed }),
			newCounterDesc("items_applied_total", "Result items applied to the accumulator.",
				func(s Snapshot) int64 { return s.ItemsApplied }),
			newCounterDesc("responses_yielded_total", "Assembled response snapshots yielded to the caller.",
				func(s Snapshot) int64 { return s.ResponsesYielded }),
			newCounterDesc("parse_errors_total", "Fragments or objects that failed to decode.",
				func(s Snapshot) int64 { return s.ParseErrors }),
			newCounterDesc("storage_write_success_total", "Successful turn metrics writes.",
				func(s Snapshot) int64 { return s.StorageWriteSuccess }),
			newCounterDesc("storage_write_failure_total", "Failed turn metrics writes.",
				func(s Snapshot) int64 { return s.StorageWriteFailure }),
			newCounterDesc("notify_success_total", "Delivered turn_completed notifications.",
				func(s Snapshot) int64 { return s.NotifySuccess }),
			newCounterDesc("notify_failure_total", "turn_completed notifications that failed to publish.",
				func(s Snapshot) int64 { return s.NotifyFailure }),
		},
		failures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "turn_failures_total"),
			"Failed conversation turns by error kind.",
			append([]string{"kind"}, dimensionLabels...), nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (p *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range p.counters {
		ch <- c.desc
	}
	ch <- p.failures
}

// Collect implements prometheus.Collector.
func (p *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	s := p.source.Snapshot()
	for _, c := range p.counters {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(c.value(s)), s.Endpoint, s.Transport)
	}

	kinds := make([]string, 0, len(s.FailuresByKind))
	for k := range s.FailuresByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		ch <- prometheus.MustNewConstMetric(p.failures, prometheus.CounterValue, float64(s.FailuresByKind[k]), k, s.Endpoint, s.Transport)
	}
}

// WriteTextfile writes c in the Prometheus text format to path, for pickup by
// a node_exporter textfile collector.
func WriteTextfile(path string, c *Collector) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewPrometheusCollector(c)); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
