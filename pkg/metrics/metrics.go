// Package metrics defines the Prometheus metric collectors used by the
// indexer and searcher and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the narrow view of metrics the engine packages depend on.
// Engine options default to Nop so that libraries never require a registry.
type Recorder interface {
	DocumentIndexed()
	DocumentSkipped(reason string)
	SegmentFlushed(docs int, d time.Duration)
	CommitCompleted(generation uint64, totalDocs int)
	SearchCompleted(cacheStatus string, hits int, d time.Duration)
	SearchFailed(reason string)
	CacheHit()
	CacheMiss()
}

type nop struct{}

func (nop) DocumentIndexed()                           {}
func (nop) DocumentSkipped(string)                     {}
func (nop) SegmentFlushed(int, time.Duration)          {}
func (nop) CommitCompleted(uint64, int)                {}
func (nop) SearchCompleted(string, int, time.Duration) {}
func (nop) SearchFailed(string)                        {}
func (nop) CacheHit()                                  {}
func (nop) CacheMiss()                                 {}

// Nop is a Recorder that discards everything.
var Nop Recorder = nop{}

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DocsIndexedTotal     prometheus.Counter
	DocsSkippedTotal     *prometheus.CounterVec
	SegmentFlushDuration prometheus.Histogram
	SegmentFlushedDocs   prometheus.Counter
	IndexGeneration      prometheus.Gauge
	IndexDocCount        prometheus.Gauge
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, parse_error, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of query cache misses.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents added to the index.",
			},
		),
		DocsSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docs_skipped_total",
				Help: "Documents skipped during a rebuild, by reason.",
			},
			[]string{"reason"},
		),
		SegmentFlushDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "segment_flush_duration_seconds",
				Help:    "Time spent writing one segment.",
				Buckets: prometheus.DefBuckets,
			},
		),
		SegmentFlushedDocs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "segment_flushed_docs_total",
				Help: "Documents written into segments.",
			},
		),
		IndexGeneration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_generation",
				Help: "Generation of the most recently committed manifest.",
			},
		),
		IndexDocCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_document_count",
				Help: "Live documents in the most recently committed generation.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsIndexedTotal,
		m.DocsSkippedTotal,
		m.SegmentFlushDuration,
		m.SegmentFlushedDocs,
		m.IndexGeneration,
		m.IndexDocCount,
	)

	return m
}

func (m *Metrics) DocumentIndexed() { m.DocsIndexedTotal.Inc() }

func (m *Metrics) DocumentSkipped(reason string) {
	m.DocsSkippedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) SegmentFlushed(docs int, d time.Duration) {
	m.SegmentFlushedDocs.Add(float64(docs))
	m.SegmentFlushDuration.Observe(d.Seconds())
}

func (m *Metrics) CommitCompleted(generation uint64, totalDocs int) {
	m.IndexGeneration.Set(float64(generation))
	m.IndexDocCount.Set(float64(totalDocs))
}

func (m *Metrics) SearchCompleted(cacheStatus string, hits int, d time.Duration) {
	resultType := "hit"
	if hits == 0 {
		resultType = "zero_result"
	}
	m.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	m.SearchLatency.WithLabelValues(cacheStatus).Observe(d.Seconds())
	m.SearchResultsCount.Observe(float64(hits))
}

func (m *Metrics) SearchFailed(reason string) {
	m.SearchQueriesTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) CacheHit()  { m.CacheHitsTotal.Inc() }
func (m *Metrics) CacheMiss() { m.CacheMissesTotal.Inc() }

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
