// Package metrics exports per-run impairment metrics in the Prometheus text
// format, for pickup by a node-exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors for one pipeline run.
type Metrics struct {
	registry *prometheus.Registry

	RecordsIn      prometheus.Counter
	RecordsOut     prometheus.Counter
	RecordsDropped prometheus.Counter
	Offsets        prometheus.Histogram
	RunDuration    prometheus.Gauge
	LastRun        prometheus.Gauge
	DispatchExit   prometheus.Gauge
}

// New creates collectors labelled with the impairment mode.
func New(mode string) *Metrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"mode": mode}

	m := &Metrics{
		registry: reg,
		RecordsIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "impairsim_records_in_total",
			Help:        "Records loaded from the input recording",
			ConstLabels: labels,
		}),
		RecordsOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "impairsim_records_out_total",
			Help:        "Records written to the impaired replay",
			ConstLabels: labels,
		}),
		RecordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "impairsim_records_dropped_total",
			Help:        "Records discarded by dropout",
			ConstLabels: labels,
		}),
		Offsets: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "impairsim_timestamp_offset_ms",
			Help:        "Applied timestamp offsets in milliseconds",
			ConstLabels: labels,
			Buckets:     []float64{-200, -100, -50, -20, -10, -5, 0, 5, 10, 20, 50, 100, 200},
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "impairsim_run_duration_seconds",
			Help:        "Wall time of the last pipeline run",
			ConstLabels: labels,
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "impairsim_last_run_timestamp_seconds",
			Help:        "Unix time the last pipeline run finished",
			ConstLabels: labels,
		}),
		DispatchExit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "impairsim_dispatch_exit_code",
			Help:        "Exit code of the downstream consumer, 0 when none ran",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(m.RecordsIn, m.RecordsOut, m.RecordsDropped, m.Offsets,
		m.RunDuration, m.LastRun, m.DispatchExit)
	return m
}

// ObserveOffsets records each applied offset.
func (m *Metrics) ObserveOffsets(offsets []int64) {
	for _, o := range offsets {
		m.Offsets.Observe(float64(o))
	}
}

// Finish stamps the run duration and completion time.
func (m *Metrics) Finish(started, finished time.Time) {
	m.RunDuration.Set(finished.Sub(started).Seconds())
	m.LastRun.Set(float64(finished.Unix()))
}

// Gatherer exposes the registry.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// WriteTextfile writes all metrics to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
