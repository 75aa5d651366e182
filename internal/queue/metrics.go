package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// passesTotal tracks processing passes by how they ended.
	passesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_queue_passes_total",
		Help: "Total number of queue processing passes by result",
	}, []string{"result"}) // result: ok, claim_error

	// itemsTotal tracks per-item outcomes within passes.
	itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_queue_items_total",
		Help: "Total number of processed queue items by outcome",
	}, []string{"operation", "outcome"}) // outcome: succeeded, retried, failed

	// passDuration tracks wall time of a full pass.
	passDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_queue_pass_duration_seconds",
		Help:    "Time taken for one queue processing pass",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
	})

	// dispatchDuration tracks per-item dispatch time by operation.
	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_queue_dispatch_duration_seconds",
		Help:    "Time taken to dispatch one queue item by operation",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
	}, []string{"operation"})

	// claimedBatchSize tracks the distribution of claimed batch sizes.
	claimedBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_queue_claimed_batch_size",
		Help:    "Number of items claimed per processing pass",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	})
)
