package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine counters and histograms, partitioned by item kind + coin where
// the cardinality stays bounded (both label sets are closed registries).

var (
	SyncItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletsync",
		Subsystem: "engine",
		Name:      "items_total",
		Help:      "Total sync items executed, by kind, coin and outcome",
	}, []string{"kind", "coin", "outcome"})

	SyncBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "walletsync",
		Subsystem: "engine",
		Name:      "batch_duration_seconds",
		Help:      "ExecuteBatch wall time",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	SpawnedItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletsync",
		Subsystem: "engine",
		Name:      "spawned_items_total",
		Help:      "Follow-up items emitted by normalizers via the side-effect sink",
	}, []string{"kind"})

	CursorContinuationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletsync",
		Subsystem: "engine",
		Name:      "cursor_continuations_total",
		Help:      "History items that returned a continuation cursor",
	}, []string{"coin"})

	ProviderRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletsync",
		Subsystem: "provider",
		Name:      "requests_total",
		Help:      "Request descriptors executed against the provider",
	}, []string{"coin", "status"})

	ProviderRateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "walletsync",
		Subsystem: "provider",
		Name:      "rate_limit_waits_total",
		Help:      "Provider calls delayed by the local rate limiter",
	})

	StoreWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletsync",
		Subsystem: "store",
		Name:      "write_failures_total",
		Help:      "Store writes that failed and were swallowed (item not failed)",
	}, []string{"repo"})
)
