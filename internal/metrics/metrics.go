// Package metrics exposes Prometheus instrumentation for queries and the
// storage engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuerySubmits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novatile_query_submits_total",
			Help: "Query submit rounds by query type and resulting status",
		},
		[]string{"type", "status"},
	)

	QuerySubmitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "novatile_query_submit_duration_seconds",
			Help:    "Latency of one query submit round",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	QueryBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novatile_query_bytes_total",
			Help: "Bytes moved between caller buffers and the engine",
		},
		[]string{"type"},
	)

	QueryStalls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "novatile_query_stalls_total",
			Help: "Read loops aborted after too many zero-progress rounds",
		},
	)

	FragmentsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "novatile_fragments_written_total",
			Help: "Fragments persisted by write queries",
		},
	)

	PageCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novatile_page_cache_lookups_total",
			Help: "Page cache lookups by result (hit or miss)",
		},
		[]string{"result"},
	)

	FragmentCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novatile_fragment_cache_lookups_total",
			Help: "Decoded fragment cache lookups by result (hit or miss)",
		},
		[]string{"result"},
	)

	PageCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "novatile_page_cache_evictions_total",
			Help: "Frames evicted from the shared page cache",
		},
	)

	MetadataSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "novatile_metadata_json_skipped_total",
			Help: "Metadata JSON items skipped by the lenient path",
		},
	)
)

// ObserveSubmit records one submit round.
func ObserveSubmit(queryType, status string, took time.Duration, bytes uint64) {
	QuerySubmits.WithLabelValues(queryType, status).Inc()
	QuerySubmitDuration.WithLabelValues(queryType).Observe(took.Seconds())
	QueryBytes.WithLabelValues(queryType).Add(float64(bytes))
}
