package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace defines the global prefix for all metrics (e.g., decider_...).
const namespace = "decider"

// lowLatencyBuckets covers document store round trips, from 1ms to 500ms.
var lowLatencyBuckets = []float64{.001, .002, .005, .010, .015, .020, .025, .030, .050, .100, .500}

var (
	// -------------------------------------------------------------------------
	// CLIENT (Decider operations)
	// -------------------------------------------------------------------------

	// ClientOperationsTotal counts every public Decider operation.
	// Metric: decider_client_operations_total
	ClientOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "client",
		Name:      "operations_total",
		Help:      "Total decider operations by outcome",
	}, []string{"operation", "success", "error_type", "pkg_version"})

	// -------------------------------------------------------------------------
	// CONFIG (feature document loading)
	// -------------------------------------------------------------------------

	// ConfigFeaturesLoaded is the number of features served by the current Decider.
	// Metric: decider_config_features_loaded
	ConfigFeaturesLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "config",
		Name:      "features_loaded",
		Help:      "Features loaded in the active decider",
	})

	// ConfigLoadFailures is the number of features excluded from the current Decider.
	ConfigLoadFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "config",
		Name:      "load_failures",
		Help:      "Features that failed to load in the active decider",
	})

	ConfigReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "config",
		Name:      "reloads_total",
		Help:      "Feature document reload attempts",
	}, []string{"status"}) // success, partial, fail

	// ConfigStoreDuration measures document store round trips.
	// Metric: decider_config_store_duration_seconds
	ConfigStoreDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "config",
		Name:      "store_duration_seconds",
		Help:      "Time taken by feature document store queries",
		Buckets:   lowLatencyBuckets,
	}, []string{"operation"})

	// -------------------------------------------------------------------------
	// OVERRIDES (Redis -> memory)
	// -------------------------------------------------------------------------

	OverridesSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "overrides",
		Name:      "sync_total",
		Help:      "Override sync cycles",
	}, []string{"status"}) // success, fail

	// OverridesItemsCount reflects the S3-FIFO store size; otter tracks item count, not bytes.
	OverridesItemsCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "overrides",
		Name:      "items_count",
		Help:      "Current number of overrides held in memory",
	})

	OverridesLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "overrides",
		Name:      "lookups_total",
		Help:      "Override lookups on the decision path",
	}, []string{"result"}) // hit, miss

	// OverridesRejectedTotal counts records the store refused or evicted, a signal to raise capacity.
	OverridesRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "overrides",
		Name:      "rejected_total",
		Help:      "Override records rejected or evicted by the in-memory store",
	})

	OverridesInvalidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "overrides",
		Name:      "invalid_records_total",
		Help:      "Override records skipped because they could not be decoded",
	})

	// -------------------------------------------------------------------------
	// DATABASE (pgx pool)
	// -------------------------------------------------------------------------

	DatabasePoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_connections",
		Help:      "Connections in the pgx pool by state",
	}, []string{"state"}) // total, idle, in_use, max

	DatabasePoolAcquireTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_acquire_count_total",
		Help:      "Successful connection acquisitions from the pool",
	})

	// DatabasePoolWaitTotal counts acquisitions that had to wait for a free connection.
	// A steadily growing value means MaxConns is too low.
	DatabasePoolWaitTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_wait_count_total",
		Help:      "Acquisitions that waited for a free connection",
	})
)
