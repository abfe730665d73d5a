// Package metrics records sweep, dispatch and queue activity in Prometheus.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/warp/violation-sync/violations"
)

// Sweep outcome label values.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Metrics implements violations.Recorder.
type Metrics struct {
	// Sweep runs by outcome: completed, failed, skipped
	Sweeps *prometheus.CounterVec

	// Per-record sweep results by kind: matched, created, updated, errors
	Records *prometheus.CounterVec

	// Enrichment dispatches by outcome: ok, error
	Dispatches *prometheus.CounterVec

	// Size of the last built queue, and how much of it is repair work
	QueueDepth   prometheus.Gauge
	QueueRepairs prometheus.Gauge
	QueueOrphans prometheus.Gauge
}

// New registers all metrics on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Sweeps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vsync_sweeps_total",
			Help: "Total sweep runs by outcome",
		}, []string{"outcome"}),

		Records: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vsync_sweep_records_total",
			Help: "Records processed by sweeps, by result kind",
		}, []string{"kind"}),

		Dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vsync_enrichment_dispatches_total",
			Help: "Enrichment dispatches by outcome",
		}, []string{"outcome"}),

		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vsync_enrichment_queue_depth",
			Help: "Records in the enrichment queue at the last build",
		}),

		QueueRepairs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vsync_enrichment_queue_repairs",
			Help: "Queued records selected for repair at the last build",
		}),

		QueueOrphans: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vsync_enrichment_queue_orphans",
			Help: "Queued records with a narrative but no status at the last build",
		}),
	}
}

// SweepFinished records one sweep.
func (m *Metrics) SweepFinished(result violations.SweepResult, err error) {
	if m == nil {
		return
	}
	switch {
	case errors.Is(err, violations.ErrSweepInProgress):
		m.Sweeps.WithLabelValues(OutcomeSkipped).Inc()
		return
	case err != nil:
		m.Sweeps.WithLabelValues(OutcomeFailed).Inc()
		return
	}
	m.Sweeps.WithLabelValues(OutcomeCompleted).Inc()
	m.Records.WithLabelValues("matched").Add(float64(result.Matched))
	m.Records.WithLabelValues("created").Add(float64(result.Created))
	m.Records.WithLabelValues("updated").Add(float64(result.Updated))
	m.Records.WithLabelValues("errors").Add(float64(result.Errors))
}

// Dispatched records one enrichment dispatch.
func (m *Metrics) Dispatched(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Dispatches.WithLabelValues("error").Inc()
		return
	}
	m.Dispatches.WithLabelValues("ok").Inc()
}

// QueueBuilt records the shape of a freshly built queue.
func (m *Metrics) QueueBuilt(items []violations.QueueItem) {
	if m == nil {
		return
	}
	var repairs, orphans int
	for _, item := range items {
		switch item.Reason {
		case violations.ReasonRepair:
			repairs++
		case violations.ReasonOrphaned:
			orphans++
		}
	}
	m.QueueDepth.Set(float64(len(items)))
	m.QueueRepairs.Set(float64(repairs))
	m.QueueOrphans.Set(float64(orphans))
}
