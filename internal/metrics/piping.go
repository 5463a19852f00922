// Package metrics exposes Prometheus collectors for mailbox piping runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gotrs-io/gotrs-mailpipe/internal/email/inbound/postmaster"
)

const namespace = "mailpipe"

// PipingMetrics records run reports as Prometheus series.
type PipingMetrics struct {
	runs     *prometheus.CounterVec
	seen     prometheus.Counter
	routed   prometheus.Counter
	ingested prometheus.Counter
	skipped  *prometheus.CounterVec
	errored  prometheus.Counter
	deferred prometheus.Counter
	duration prometheus.Histogram
	lastRun  prometheus.Gauge
}

// NewPipingMetrics registers the piping collectors with reg.
func NewPipingMetrics(reg prometheus.Registerer) *PipingMetrics {
	factory := promauto.With(reg)
	return &PipingMetrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of piping runs by final state",
		}, []string{"state"}),
		seen: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_seen_total",
			Help:      "Total number of unseen messages listed",
		}),
		routed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_routed_total",
			Help:      "Total number of messages matched to an existing ticket",
		}),
		ingested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_ingested_total",
			Help:      "Total number of messages appended to tickets",
		}),
		skipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_skipped_total",
			Help:      "Total number of skipped messages by reason",
		}, []string{"reason"}),
		errored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_errored_total",
			Help:      "Total number of messages skipped because a fetch, lookup or write failed",
		}),
		deferred: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_deferred_total",
			Help:      "Total number of unseen messages left for a later run",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Piping run duration",
			Buckets:   prometheus.DefBuckets,
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last piping run finished",
		}),
	}
}

// ObserveRun implements postmaster.RunObserver.
func (m *PipingMetrics) ObserveRun(report postmaster.RunReport) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(report.State)).Inc()
	if report.State == postmaster.StateDisabled {
		return
	}
	m.seen.Add(float64(report.Seen))
	m.routed.Add(float64(report.Routed))
	m.ingested.Add(float64(report.Ingested))
	m.errored.Add(float64(report.Errored))
	m.deferred.Add(float64(report.Deferred))
	for reason, n := range report.SkipCounts() {
		m.skipped.WithLabelValues(string(reason)).Add(float64(n))
	}
	m.duration.Observe(report.Duration().Seconds())
	if !report.FinishedAt.IsZero() {
		m.lastRun.Set(float64(report.FinishedAt.Unix()))
	}
}
