// Package metrics provides Prometheus metrics for sectionquery
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache labels
const (
	CacheSection = "section"
	CacheResult  = "result"
)

// Metrics holds all Prometheus metrics for the engine and its server
type Metrics struct {
	// gRPC request metrics
	GrpcRequestsTotal    *prometheus.CounterVec
	GrpcRequestDuration  *prometheus.HistogramVec
	GrpcRequestsInFlight prometheus.Gauge

	// Query metrics
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	NodesReturned prometheus.Counter

	// Section locator metrics
	SectionScansTotal *prometheus.CounterVec
	ScanDuration      prometheus.Histogram
	BytesReadTotal    prometheus.Counter

	// Cache metrics
	CacheLookupsTotal   *prometheus.CounterVec
	CacheEvictionsTotal *prometheus.CounterVec
	CacheEntries        *prometheus.GaugeVec

	// Comparison metrics
	ComparisonsTotal   *prometheus.CounterVec
	ImprovementPercent prometheus.Histogram

	// Server metrics
	ServerUptimeSeconds prometheus.GaugeFunc
	ServerStartTime     time.Time
}

// NewMetrics creates all metrics and registers them on reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		ServerStartTime: time.Now(),
	}

	// gRPC request metrics
	m.GrpcRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sectionquery_grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "status"},
	)

	m.GrpcRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sectionquery_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	m.GrpcRequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "sectionquery_grpc_requests_in_flight",
			Help: "Number of gRPC requests currently being processed",
		},
	)

	// Query metrics
	m.QueriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sectionquery_queries_total",
			Help: "Total number of resolved expressions",
		},
		[]string{"route", "status"},
	)

	m.QueryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sectionquery_query_duration_seconds",
			Help:    "Duration of expression resolution in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"route"},
	)

	m.NodesReturned = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "sectionquery_nodes_returned_total",
			Help: "Total number of nodes returned by queries",
		},
	)

	// Section locator metrics
	m.SectionScansTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sectionquery_section_scans_total",
			Help: "Total number of section scans and probes",
		},
		[]string{"section", "found"},
	)

	m.ScanDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sectionquery_section_scan_duration_seconds",
			Help:    "Duration of section scans in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	m.BytesReadTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "sectionquery_bytes_read_total",
			Help: "Total bytes read from backing documents",
		},
	)

	// Cache metrics
	m.CacheLookupsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sectionquery_cache_lookups_total",
			Help: "Cache lookups by cache and outcome",
		},
		[]string{"cache", "result"},
	)

	m.CacheEvictionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sectionquery_cache_evictions_total",
			Help: "Entries evicted by the cache size bound",
		},
		[]string{"cache"},
	)

	m.CacheEntries = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sectionquery_cache_entries",
			Help: "Current number of cached entries",
		},
		[]string{"cache"},
	)

	// Comparison metrics
	m.ComparisonsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sectionquery_comparisons_total",
			Help: "Total number of lazy versus full-document comparisons",
		},
		[]string{"match"},
	)

	m.ImprovementPercent = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sectionquery_comparison_improvement_percent",
			Help:    "Time saved by section loading, in percent of the full-document time",
			Buckets: []float64{-100, -50, -10, 0, 10, 25, 50, 75, 90, 99},
		},
	)

	// Server metrics
	start := m.ServerStartTime
	m.ServerUptimeSeconds = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "sectionquery_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(start).Seconds() },
	)

	return m
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// RecordGrpcRequest records a gRPC request with its status
func (m *Metrics) RecordGrpcRequest(method string, status string, duration time.Duration) {
	m.GrpcRequestsTotal.WithLabelValues(method, status).Inc()
	m.GrpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordQuery records one resolved expression
func (m *Metrics) RecordQuery(route string, nodes int, duration time.Duration, err error) {
	m.QueriesTotal.WithLabelValues(route, status(err)).Inc()
	m.QueryDuration.WithLabelValues(route).Observe(duration.Seconds())
	m.NodesReturned.Add(float64(nodes))
}

// RecordScan records a section scan or probe
func (m *Metrics) RecordScan(section string, found bool, bytesRead int64, duration time.Duration) {
	m.SectionScansTotal.WithLabelValues(section, boolLabel(found)).Inc()
	m.ScanDuration.Observe(duration.Seconds())
	m.BytesReadTotal.Add(float64(bytesRead))
}

// RecordCacheLookup records a hit or miss on the named cache
func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// RecordCacheEviction records an LRU eviction on the named cache
func (m *Metrics) RecordCacheEviction(cache string) {
	m.CacheEvictionsTotal.WithLabelValues(cache).Inc()
}

// SetCacheEntries updates the entry gauge of the named cache
func (m *Metrics) SetCacheEntries(cache string, n int) {
	m.CacheEntries.WithLabelValues(cache).Set(float64(n))
}

// RecordComparison records a comparison outcome
func (m *Metrics) RecordComparison(improvementPercent float64, match bool) {
	m.ComparisonsTotal.WithLabelValues(boolLabel(match)).Inc()
	m.ImprovementPercent.Observe(improvementPercent)
}
