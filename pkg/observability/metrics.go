// Package observability exposes the Prometheus counters/gauges spec.md
// calls out explicitly: replica-fallback warnings (§4.1), cache
// degraded-mode hits (§4.3), validator policy-violation counts by level
// (§4.8), and connection-pool exhaustion (§4.1/§9). Grounded on the
// teacher's pkg/monitoring/prometheus.go shape (a package of
// promauto-registered vectors plus small wiring functions); the teacher's
// resharding/catalog-specific metrics have no home in this spec and were
// dropped (see DESIGN.md).
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueryDuration tracks per-endpoint query latency, the one teacher
	// metric that survives unchanged in shape (still labeled by the
	// resolved endpoint, not the logical shard, since that's what a
	// connection-pool exhaustion or slow-replica investigation needs).
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "router_query_duration_seconds",
			Help:    "Duration of queries routed through the pool set, by endpoint.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		},
		[]string{"endpoint_id", "status"},
	)

	// ReplicaFallbackTotal counts every time ConnectionRouter had to send
	// a read-only request to a shard's master because none of its
	// replicas probed healthy (spec.md §4.1).
	ReplicaFallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "router_replica_fallback_total",
			Help: "Read-only requests routed to a shard master because no replica was healthy.",
		},
	)

	// CacheDegradedTotal counts LookupCache operations that fell back to
	// Absent because the distributed backend was unreachable (spec.md
	// §4.3/§4.4's "locally recovered, not propagated" policy).
	CacheDegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_cache_degraded_total",
			Help: "LookupCache operations that degraded to a miss because the distributed backend was unreachable.",
		},
		[]string{"operation"},
	)

	// CacheHitTotal/CacheMissTotal are gauges for LookupCache hit/miss
	// totals. Nothing in this module sets them, so they stay at 0.
	CacheHitTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "router_cache_hits_total",
			Help: "Cumulative LookupCache hits.",
		},
	)
	CacheMissTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "router_cache_misses_total",
			Help: "Cumulative LookupCache misses.",
		},
	)

	// ValidationViolationTotal counts QueryValidator statements that hit
	// a sharded table without a tenant predicate, by the enforcement
	// level that was applied (spec.md §4.8).
	ValidationViolationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_validation_violation_total",
			Help: "Statements against a sharded table with no tenant predicate, by enforcement level.",
		},
		[]string{"table", "level"},
	)

	// PoolExhaustionTotal counts ConnectionPoolSet.Acquire calls that
	// failed because every slot was in use and none freed up within the
	// configured acquire timeout (spec.md §4.1/§9).
	PoolExhaustionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_pool_exhaustion_total",
			Help: "Connection pool acquisitions that timed out waiting for a free slot, by endpoint.",
		},
		[]string{"endpoint_id"},
	)

	// ShardHealthUp reports the last probe outcome for each endpoint, 1
	// for reachable and 0 for not, as recorded through RecordShardHealth.
	ShardHealthUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "router_endpoint_healthy",
			Help: "Whether the last health probe of an endpoint succeeded (1) or failed (0).",
		},
		[]string{"shard_id", "endpoint_id", "role"},
	)
)

// ValidationLevel records a validator policy violation, labeling it by the
// enforcement level the validator is configured with (STRICT/WARN/LOG)
// since a single Validator instance enforces one policy for its lifetime.
func ValidationLevel(level string) func(table string) {
	return func(table string) {
		ValidationViolationTotal.WithLabelValues(table, level).Inc()
	}
}

// CacheDegraded is an OnDegraded callback for
// pkg/lookupcache.DistributedConfig, labeling each increment with the
// operation that failed.
func CacheDegraded(operation string) {
	CacheDegradedTotal.WithLabelValues(operation).Inc()
}

// RecordShardHealth sets ShardHealthUp for one endpoint from a probe
// outcome. pkg/health.Controller does not call it.
func RecordShardHealth(shardID, endpointID, role string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	ShardHealthUp.WithLabelValues(shardID, endpointID, role).Set(v)
}
