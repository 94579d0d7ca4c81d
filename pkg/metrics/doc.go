/*
Package metrics defines and registers the Prometheus metrics exposed by the
storage substrate: blobstore request counts/latency, cache hit/miss ratios,
indexed log append/flush/repair counters, bonsai/hg mapping insert and
lookup stats, segment and idmap sizes, segmented changelog version
replication, and derivation duration/lease-contention.

Metrics are registered at package init against the default Prometheus
registry and exposed via Handler() for scraping:

	http.Handle("/metrics", metrics.Handler())

Use Timer to record a histogram observation around an operation:

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.BlobstoreRequestDuration, "bolt", "get")

The health helpers in this package (health.go) track coarse-grained
component health (not Prometheus metrics) for the /health, /ready and
/live HTTP endpoints, used by
orchestration layers outside this module to decide whether to route
traffic to a given repo server.
*/
package metrics
