// Package metrics holds the Prometheus instruments of simple-cms. All
// collectors are registered with the global registry, so serving
// promhttp.Handler() is enough to expose them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EntriesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "simplecms_entries_created_total",
			Help: "Cumulative number of content entries created.",
		})

	EntriesUpdatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "simplecms_entries_updated_total",
			Help: "Cumulative number of content entries updated.",
		})

	EntriesDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "simplecms_entries_deleted_total",
			Help: "Cumulative number of content entries deleted one by one.",
		})

	EntriesBulkDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "simplecms_entries_bulk_deleted_total",
			Help: "Cumulative number of content entries removed by destroy_all.",
		})

	ValidationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "simplecms_validation_failures_total",
			Help: "Cumulative number of entry writes rejected by validation.",
		})

	// GuardOutcomesTotal counts guarded membership changes by operation and
	// outcome ("committed" or "rejected").
	GuardOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simplecms_guard_outcomes_total",
			Help: "Guarded membership changes by operation and outcome.",
		}, []string{"op", "outcome"})

	GuardConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "simplecms_guard_conflicts_total",
			Help: "Concurrency conflicts met by guarded membership changes, retried or not.",
		})

	// HTTPRequestsTotal counts API requests by method, chi route pattern and
	// status code.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simplecms_http_requests_total",
			Help: "API requests by method, route and status.",
		}, []string{"method", "route", "status"})
)

func init() {
	prometheus.MustRegister(
		EntriesCreatedTotal,
		EntriesUpdatedTotal,
		EntriesDeletedTotal,
		EntriesBulkDeletedTotal,
		ValidationFailuresTotal,
		GuardOutcomesTotal,
		GuardConflictsTotal,
		HTTPRequestsTotal,
	)
}
