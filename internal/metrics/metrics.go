// Package metrics exposes Prometheus instruments for the background jobs.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "deadline_planner"

// Dispatch outcomes.
const (
	OutcomeSent    = "sent"
	OutcomeSkipped = "skipped"
	OutcomeGone    = "gone"
	OutcomeFailed  = "failed"
)

type Metrics struct {
	Registry *prometheus.Registry

	sweepRuns        *prometheus.CounterVec
	sweepDuration    *prometheus.HistogramVec
	dispatches       *prometheus.CounterVec
	sendAttempts     prometheus.Counter
	retentionDeleted prometheus.Counter
}

// New builds the instruments on a private registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		sweepRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_runs_total",
				Help:      "Number of sweep runs by sweep and result",
			},
			[]string{"sweep", "result"},
		),
		sweepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_duration_seconds",
				Help:      "Sweep run duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"sweep"},
		),
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Deadline reminder dispatches by outcome",
			},
			[]string{"outcome"},
		),
		sendAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_send_attempts_total",
			Help:      "Calls made to the messaging endpoint",
		}),
		retentionDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_tasks_total",
			Help:      "Completed tasks purged by the retention sweep",
		}),
	}

	registry.MustRegister(
		m.sweepRuns,
		m.sweepDuration,
		m.dispatches,
		m.sendAttempts,
		m.retentionDeleted,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// WatchDB exports connection pool statistics of db.
func (m *Metrics) WatchDB(db *sql.DB, name string) error {
	if m == nil {
		return nil
	}
	return m.Registry.Register(collectors.NewDBStatsCollector(db, name))
}

func (m *Metrics) ObserveSweep(sweep string, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sweepRuns.WithLabelValues(sweep, result).Inc()
	m.sweepDuration.WithLabelValues(sweep).Observe(took.Seconds())
}

func (m *Metrics) Dispatched(outcome string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SendAttempt() {
	if m == nil {
		return
	}
	m.sendAttempts.Inc()
}

func (m *Metrics) Purged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.retentionDeleted.Add(float64(n))
}
