// Package metrics exposes Prometheus counters for imports and orchestrated
// analyses.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the sightline collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	// RowsImported counts import rows by outcome (imported/skipped).
	RowsImported *prometheus.CounterVec
	// Imports counts import calls by status (success/failure).
	Imports *prometheus.CounterVec
	// Analyses counts orchestrated calls by final state and map access.
	Analyses *prometheus.CounterVec
	// AnalysisDuration observes the wall time of orchestrated calls.
	AnalysisDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which tests use to read counters directly.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		RowsImported: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sightline_import_rows_total",
				Help: "Import rows processed, by outcome",
			},
			[]string{"outcome"},
		),
		Imports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sightline_imports_total",
				Help: "Import calls, by status",
			},
			[]string{"status"},
		),
		Analyses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sightline_analyses_total",
				Help: "Orchestrated analysis calls, by final state and map access",
			},
			[]string{"state", "access"},
		),
		AnalysisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sightline_analysis_duration_seconds",
				Help:    "Wall time of orchestrated analysis calls",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"state"},
		),
	}
	if reg != nil {
		reg.MustRegister(r.RowsImported, r.Imports, r.Analyses, r.AnalysisDuration)
	}
	return r
}

// ObserveImport records the outcome of one import call.
func (r *Recorder) ObserveImport(imported, skipped int, err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.Imports.WithLabelValues("failure").Inc()
		return
	}
	r.Imports.WithLabelValues("success").Inc()
	r.RowsImported.WithLabelValues("imported").Add(float64(imported))
	r.RowsImported.WithLabelValues("skipped").Add(float64(skipped))
}

// ObserveAnalysis records the final state of one orchestrated call.
func (r *Recorder) ObserveAnalysis(state, access string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.Analyses.WithLabelValues(state, access).Inc()
	r.AnalysisDuration.WithLabelValues(state).Observe(elapsed.Seconds())
}
