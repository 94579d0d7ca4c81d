package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Blobstore metrics
	BlobstoreRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "substrate_blobstore_requests_total",
			Help: "Total number of blobstore requests by backend, op and status",
		},
		[]string{"backend", "op", "status"},
	)

	BlobstoreRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "substrate_blobstore_request_duration_seconds",
			Help:    "Blobstore request duration in seconds by backend and op",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	BlobstoreBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "substrate_blobstore_bytes_total",
			Help: "Total bytes read or written through a blobstore backend",
		},
		[]string{"backend", "op"},
	)

	// Cache metrics
	CacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "substrate_cache_requests_total",
			Help: "Total cache lookups by tier and result (hit, miss, error)",
		},
		[]string{"tier", "result"},
	)

	CacheFillDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "substrate_cache_fill_duration_seconds",
			Help:    "Time spent filling the cache from the backing store on a miss",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tier"},
	)

	CacheDeserializeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "substrate_cache_deserialize_errors_total",
			Help: "Total number of cache entries that failed to decode and were treated as a miss",
		},
		[]string{"tier"},
	)

	// IndexedLog metrics
	IndexedLogAppendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "substrate_indexedlog_appends_total",
			Help: "Total number of entries appended to an indexed log by log name",
		},
		[]string{"log"},
	)

	IndexedLogFlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "substrate_indexedlog_flush_duration_seconds",
			Help:    "Time taken to flush and fsync an indexed log",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"log"},
	)

	IndexedLogRepairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "substrate_indexedlog_repairs_total",
			Help: "Total number of times an indexed log was auto-repaired after detecting corruption",
		},
		[]string{"log"},
	)

	// Bonsai/Hg mapping metrics
	MappingInsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "substrate_mapping_inserts_total",
			Help: "Total number of bonsai/hg mapping inserts by status (ok, idempotent_duplicate, conflict)",
		},
		[]string{"status"},
	)

	MappingLookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "substrate_mapping_lookup_duration_seconds",
			Help:    "Bonsai/hg mapping lookup duration in seconds by direction",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"direction"},
	)

	// Segmented changelog metrics
	SegmentBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "substrate_segment_build_duration_seconds",
			Help:    "Time taken to rebuild segments for a batch of newly assigned ids",
			Buckets: prometheus.DefBuckets,
		},
	)

	SegmentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "substrate_segments_total",
			Help: "Number of segments currently held in the dag, by group",
		},
		[]string{"group"},
	)

	IdMapEntriesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "substrate_idmap_entries_total",
			Help: "Number of vertex<->id entries in the idmap, by group",
		},
		[]string{"group"},
	)

	SegmentedChangelogVersionApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "substrate_segmented_changelog_version_applied_total",
			Help: "Total number of segmented changelog version pointer updates applied via replication",
		},
		[]string{"result"},
	)

	// Raft replication metrics (segmented changelog version pointer)
	RaftIsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "substrate_raft_is_leader",
			Help: "Whether this replica is the Raft leader for the segmented changelog version pointer (1 = leader, 0 = follower)",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "substrate_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry to the version pointer FSM",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Derived data metrics
	DerivationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "substrate_derivation_duration_seconds",
			Help:    "Time taken to derive one changeset for a given derived data type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"derived_type"},
	)

	DerivationBatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "substrate_derivation_batch_size",
			Help:    "Number of changesets derived per topologically-sorted batch",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200},
		},
		[]string{"derived_type"},
	)

	DerivationLeaseContentionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "substrate_derivation_lease_contention_total",
			Help: "Total number of times derivation had to wait for a lease already held elsewhere",
		},
		[]string{"derived_type"},
	)

	// Repair metrics
	RepairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "substrate_repairs_total",
			Help: "Total number of auto-repair attempts by component and result",
		},
		[]string{"component", "result"},
	)
)

func init() {
	prometheus.MustRegister(BlobstoreRequestsTotal)
	prometheus.MustRegister(BlobstoreRequestDuration)
	prometheus.MustRegister(BlobstoreBytesTotal)

	prometheus.MustRegister(CacheRequestsTotal)
	prometheus.MustRegister(CacheFillDuration)
	prometheus.MustRegister(CacheDeserializeErrorsTotal)

	prometheus.MustRegister(IndexedLogAppendsTotal)
	prometheus.MustRegister(IndexedLogFlushDuration)
	prometheus.MustRegister(IndexedLogRepairsTotal)

	prometheus.MustRegister(MappingInsertsTotal)
	prometheus.MustRegister(MappingLookupDuration)

	prometheus.MustRegister(SegmentBuildDuration)
	prometheus.MustRegister(SegmentsTotal)
	prometheus.MustRegister(IdMapEntriesTotal)
	prometheus.MustRegister(SegmentedChangelogVersionApplied)

	prometheus.MustRegister(RaftIsLeader)
	prometheus.MustRegister(RaftApplyDuration)

	prometheus.MustRegister(DerivationDuration)
	prometheus.MustRegister(DerivationBatchSize)
	prometheus.MustRegister(DerivationLeaseContentionTotal)

	prometheus.MustRegister(RepairsTotal)
}

// Handler returns the Prometheus HTTP handler for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations and reporting them to a
// histogram once the operation completes.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer started at the current time.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
