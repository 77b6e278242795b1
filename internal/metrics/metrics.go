// Package metrics holds the Prometheus collectors for the invoice desk.
// Collectors register with the default registry and are served by promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "invoicedesk"

var (
	// Mutations counts mutation requests by action and result
	// (applied, no_change, failed).
	Mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "table",
			Name:      "mutations_total",
			Help:      "Total number of table mutations by action and result",
		},
		[]string{"action", "result"},
	)

	// Undos counts undo operations by the action they reverted.
	Undos = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "undo_total",
			Help:      "Total number of undo operations by reverted action",
		},
		[]string{"action"},
	)

	// HistoryEvictions counts entries dropped because the stack was full.
	HistoryEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "evictions_total",
			Help:      "Total number of history entries evicted at capacity",
		},
	)

	// BlobWrites counts overflow payload writes by outcome (stored, fallback).
	BlobWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blob",
			Name:      "writes_total",
			Help:      "Total number of overflow blob writes by outcome",
		},
		[]string{"outcome"},
	)

	// BlobDeleteFailures counts best-effort blob deletes that failed.
	BlobDeleteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blob",
			Name:      "delete_failures_total",
			Help:      "Total number of failed blob deletes",
		},
	)

	// SweepDeleted counts artifacts removed by the retention sweep, by kind.
	SweepDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "deleted_total",
			Help:      "Total number of stale artifacts deleted by the sweep",
		},
		[]string{"kind"},
	)

	// Rehydrations counts recovery attempts by result.
	Rehydrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "rehydrations_total",
			Help:      "Total number of session rehydrations by result",
		},
		[]string{"result"},
	)

	// LiveSessions tracks sessions with a working table in memory.
	LiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "live",
			Help:      "Number of sessions holding a live working table",
		},
	)

	// RecomputeDuration observes full rule recomputes.
	RecomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "recompute_duration_seconds",
			Help:      "Duration of full-table priority recomputes",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
	)

	// RulesSkipped counts rules skipped during recompute because they were invalid.
	RulesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "skipped_total",
			Help:      "Total number of invalid rules skipped during recompute",
		},
	)
)

// HTTP collectors, recorded by the web request logger.
var (
	// HTTPRequests counts requests by method, route pattern and status class.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPDuration observes request latency by route pattern.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)
