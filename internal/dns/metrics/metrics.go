// Package metrics instruments the session glue and backend chain with
// Prometheus counters/histograms. Ambient collaborator, not part of the
// C1-C15 core — adapted from the teacher's infrastructure/metrics package,
// trimmed to the metrics this module's backends actually exercise (DB and
// BGP gauges dropped along with the Postgres/BGP adapters they measured).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal tracks total DNS queries processed by the session glue.
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "godns_queries_total",
		Help: "Total number of DNS queries processed",
	}, []string{"qtype", "rcode"})

	// QueryDuration tracks end-to-end query processing time.
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "godns_query_duration_seconds",
		Help:    "Histogram of query processing duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	// CacheOperations tracks L1 (in-process LRU) and L2 (redis) cache hits
	// and misses.
	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "godns_cache_operations_total",
		Help: "Total number of cache hits and misses",
	}, []string{"level", "result"})

	// BlacklistDecisions tracks blocked vs allowed verdicts, and whether the
	// verdict came from the in-memory sets or the persistent store.
	BlacklistDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "godns_blacklist_decisions_total",
		Help: "Total number of blacklist allow/block decisions by source",
	}, []string{"verdict", "source"})

	// ForwarderUpstreamFailures tracks per-upstream timeout/parse failures
	// in the forwarder's fallback loop.
	ForwarderUpstreamFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "godns_forwarder_upstream_failures_total",
		Help: "Total number of forwarder upstream failures by address",
	}, []string{"upstream"})
)
