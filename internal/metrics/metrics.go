// Package metrics exposes engine activity as Prometheus metrics.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/roach88/blocksync/internal/engine"
)

// namespace prefixes every metric name.
const namespace = "blocksync"

// Metrics holds all Prometheus metrics for blocksync.
type Metrics struct {
	EventsTotal    *prometheus.CounterVec
	ResyncsTotal   *prometheus.CounterVec
	ReloadsTotal   *prometheus.CounterVec
	ResyncDuration prometheus.Histogram
	Paused         prometheus.Gauge
	ArtifactRules  prometheus.Gauge
}

// type check
var _ engine.Metrics = (*Metrics)(nil)

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) (m *Metrics, err error) {
	m = &Metrics{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Total number of processed events by type",
			},
			[]string{"event"},
		),
		ResyncsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resyncs_total",
				Help:      "Total number of resyncs by result (ok or error kind)",
			},
			[]string{"result"},
		),
		ReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reloads_total",
				Help:      "Total number of runtime reloads by result",
			},
			[]string{"result"},
		),
		ResyncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resync_duration_seconds",
				Help:      "Time taken to assemble the artifact and reload the runtime",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
		),
		Paused: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "paused",
				Help:      "Filtering activity (1=paused, 0=active)",
			},
		),
		ArtifactRules: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "artifact_rules",
				Help:      "Number of rules in the current artifact",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.EventsTotal,
		m.ResyncsTotal,
		m.ReloadsTotal,
		m.ResyncDuration,
		m.Paused,
		m.ArtifactRules,
	}
	for _, c := range collectors {
		if err = reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}

	return m, nil
}

// IncEvent implements the [engine.Metrics] interface for *Metrics.
func (m *Metrics) IncEvent(event string) {
	m.EventsTotal.WithLabelValues(event).Inc()
}

// ObserveResync implements the [engine.Metrics] interface for *Metrics.
func (m *Metrics) ObserveResync(result string, dur time.Duration) {
	m.ResyncsTotal.WithLabelValues(result).Inc()
	m.ResyncDuration.Observe(dur.Seconds())
}

// IncReload implements the [engine.Metrics] interface for *Metrics.
func (m *Metrics) IncReload(result string) {
	m.ReloadsTotal.WithLabelValues(result).Inc()
}

// SetPaused implements the [engine.Metrics] interface for *Metrics.
func (m *Metrics) SetPaused(paused bool) {
	if paused {
		m.Paused.Set(1)
	} else {
		m.Paused.Set(0)
	}
}

// SetArtifactRules implements the [engine.Metrics] interface for *Metrics.
func (m *Metrics) SetArtifactRules(n int) {
	m.ArtifactRules.Set(float64(n))
}
