// Package metrics exposes prometheus counters for the run pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rsstoot_runs_total",
		Help: "Completed pipeline runs by trigger source",
	}, []string{"trigger"})

	ItemsPosted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rsstoot_items_posted_total",
		Help: "Items successfully published",
	})

	ItemsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rsstoot_items_skipped_total",
		Help: "Unseen items beyond the per-pair cap",
	})

	RunErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rsstoot_run_errors_total",
		Help: "Fetch and publish failures across runs",
	})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rsstoot_run_duration_seconds",
		Help:    "Wall-clock duration of one pipeline run",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)
