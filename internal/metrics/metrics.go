// Package metrics holds the Prometheus collectors shared across the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueryTotal counts data source queries by source kind, operation and result.
	QueryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "projects_datasource_query_total",
		Help: "Total data source queries by kind, operation and result",
	}, []string{"kind", "operation", "result"})

	// QueryDuration tracks data source query latency.
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "projects_datasource_query_duration_seconds",
		Help:    "Data source query duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"kind", "operation"})

	// SkippedNotes counts notes left out of a frame because they failed to load.
	SkippedNotes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "projects_datasource_skipped_notes_total",
		Help: "Notes skipped while building a frame, by kind",
	}, []string{"kind"})

	// ViewHooks counts view hook invocations by hook.
	ViewHooks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "projects_view_hook_total",
		Help: "View hook invocations by hook and result",
	}, []string{"hook", "result"})

	// RecordWrites counts write-back operations by operation and result.
	RecordWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "projects_record_write_total",
		Help: "Record write-back operations by operation and result",
	}, []string{"operation", "result"})
)

// Result returns the result label for err.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveQuery records one data source query that started at start.
func ObserveQuery(kind, operation string, start time.Time, err error) {
	QueryTotal.WithLabelValues(kind, operation, Result(err)).Inc()
	QueryDuration.WithLabelValues(kind, operation).Observe(time.Since(start).Seconds())
}
