package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors for the transfer engine.
type Metrics struct {
	TransfersTotal           *prometheus.CounterVec
	TransferDuration         prometheus.Histogram
	BatchesCommittedTotal    *prometheus.CounterVec
	BatchRetriesTotal        prometheus.Counter
	EntitiesTransferredTotal *prometheus.CounterVec
	RevertsTotal             prometheus.Counter
	EntitiesDeletedTotal     *prometheus.CounterVec
	PurgesTotal              prometheus.Counter
}

// New creates and registers all metrics on the given registerer. Pass a
// fresh prometheus.NewRegistry() in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TransfersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graph_transfers_total",
				Help: "Total transfers by final status",
			},
			[]string{"status"},
		),
		TransferDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "graph_transfer_duration_seconds",
				Help:    "Wall-clock duration of whole transfers",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		BatchesCommittedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graph_transfer_batches_committed_total",
				Help: "Committed batches by phase",
			},
			[]string{"phase"},
		),
		BatchRetriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "graph_transfer_batch_retries_total",
				Help: "Batch write attempts beyond the first",
			},
		),
		EntitiesTransferredTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graph_transfer_entities_total",
				Help: "Entities committed to the target by kind",
			},
			[]string{"kind"},
		),
		RevertsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "graph_transfer_reverts_total",
				Help: "Completed revert operations",
			},
		),
		EntitiesDeletedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graph_transfer_entities_deleted_total",
				Help: "Entities removed from the target by revert, by kind",
			},
			[]string{"kind"},
		),
		PurgesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "graph_transfer_purges_total",
				Help: "Completed purge operations",
			},
		),
	}
}
