// Package metrics provides Prometheus metrics for reconciliation runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsProcessedTotal tracks raw records by final outcome
	RecordsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pugna",
			Subsystem: "reconcile",
			Name:      "records_total",
			Help:      "Total number of raw records processed by outcome",
		},
		[]string{"outcome"},
	)

	// RecordDuration tracks per-record processing time including retries
	RecordDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pugna",
			Subsystem: "reconcile",
			Name:      "record_duration_seconds",
			Help:      "Duration of raw record reconciliation in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"outcome"},
	)

	// RetriesTotal tracks concurrent-write retries
	RetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pugna",
			Subsystem: "reconcile",
			Name:      "retries_total",
			Help:      "Total number of retries after a concurrent write",
		},
	)

	// BatchDuration tracks the duration of whole batches
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pugna",
			Subsystem: "reconcile",
			Name:      "batch_duration_seconds",
			Help:      "Duration of reconciliation batches in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	// CandidateScore tracks the top candidate score per matching strategy
	CandidateScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pugna",
			Subsystem: "matching",
			Name:      "top_score",
			Help:      "Top candidate score by the strategy that produced it",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 85, 90, 95, 100},
		},
		[]string{"strategy"},
	)

	// PendingReviewTotal tracks records queued for review by subject
	PendingReviewTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pugna",
			Subsystem: "review",
			Name:      "queued_total",
			Help:      "Total number of records queued for manual review",
		},
		[]string{"subject", "band"},
	)

	// ViewConflictsTotal tracks history views flagged with conflicts
	ViewConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pugna",
			Subsystem: "perspective",
			Name:      "conflicts_total",
			Help:      "Total number of history views flagged with snapshot conflicts",
		},
	)

	// EventsEmittedTotal tracks domain events handed to sinks
	EventsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pugna",
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Total number of domain events emitted by status",
		},
		[]string{"status"},
	)
)
