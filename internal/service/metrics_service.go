package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-timetable/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, caching and the scheduler.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	cacheLatency     prometheus.Observer
	cacheWrite       prometheus.Observer
	cacheHitRatio    prometheus.Gauge
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	cacheInvalidated prometheus.Counter
	dbQueryDuration  *prometheus.HistogramVec

	placedTotal    prometheus.Counter
	unplacedTotal  *prometheus.CounterVec
	conflictsTotal *prometheus.CounterVec
	confirmations  *prometheus.CounterVec
	discardedTotal prometheus.Counter
	rebuildsTotal  *prometheus.CounterVec
	indexEntries   prometheus.Gauge
	indexDegraded  prometheus.Gauge

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	cacheInvalidated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_keys_invalidated_total",
		Help: "Cached entry listings dropped after timetable mutations",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	placedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_entries_placed_total",
		Help: "Draft entries placed by the generator",
	})

	unplacedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_courses_unplaced_total",
		Help: "Courses the generator could not place",
	}, []string{"reason"})

	conflictsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_conflicts_total",
		Help: "Rejected bookings by operation and violated dimension",
	}, []string{"operation", "dimension"})

	confirmations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_confirmations_total",
		Help: "Confirmation attempts by outcome",
	}, []string{"outcome"})

	discardedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_drafts_discarded_total",
		Help: "Draft entries removed by cancellation",
	})

	rebuildsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_index_rebuilds_total",
		Help: "Conflict index rebuilds by trigger",
	}, []string{"trigger"})

	indexEntries := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_index_entries",
		Help: "Entries registered in the conflict index",
	})

	indexDegraded := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_index_degraded",
		Help: "1 while mutations are refused pending an index rebuild",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, cacheInvalidated, dbQueryDuration,
		placedTotal, unplacedTotal, conflictsTotal, confirmations, discardedTotal, rebuildsTotal, indexEntries, indexDegraded,
		goroutines,
	)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		cacheLatency:     cacheLatency,
		cacheWrite:       cacheWrite,
		cacheHitRatio:    cacheHitRatio,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
		cacheInvalidated: cacheInvalidated,
		dbQueryDuration:  dbQueryDuration,
		placedTotal:      placedTotal,
		unplacedTotal:    unplacedTotal,
		conflictsTotal:   conflictsTotal,
		confirmations:    confirmations,
		discardedTotal:   discardedTotal,
		rebuildsTotal:    rebuildsTotal,
		indexEntries:     indexEntries,
		indexDegraded:    indexDegraded,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordCacheInvalidation counts cache keys removed by an invalidation.
func (m *MetricsService) RecordCacheInvalidation(removed int) {
	if m == nil || removed <= 0 {
		return
	}
	m.cacheInvalidated.Add(float64(removed))
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordGeneration counts placed drafts and unplaced courses per reason.
func (m *MetricsService) RecordGeneration(placed int, unplaced []models.UnplacedCourse) {
	if m == nil {
		return
	}
	m.placedTotal.Add(float64(placed))
	for _, u := range unplaced {
		m.unplacedTotal.WithLabelValues(string(u.Reason)).Inc()
	}
}

// RecordConflict counts a rejected booking once per violated dimension.
func (m *MetricsService) RecordConflict(operation string, dims []models.ConflictDimension) {
	if m == nil {
		return
	}
	for _, dim := range dims {
		m.conflictsTotal.WithLabelValues(operation, string(dim)).Inc()
	}
}

// RecordConfirmation counts a confirmation attempt.
func (m *MetricsService) RecordConfirmation(outcome string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(outcome).Inc()
}

// RecordCancellation counts discarded drafts.
func (m *MetricsService) RecordCancellation(discarded int) {
	if m == nil {
		return
	}
	m.discardedTotal.Add(float64(discarded))
}

// RecordIndexState updates the index gauges.
func (m *MetricsService) RecordIndexState(entries int, degraded bool) {
	if m == nil {
		return
	}
	m.indexEntries.Set(float64(entries))
	if degraded {
		m.indexDegraded.Set(1)
	} else {
		m.indexDegraded.Set(0)
	}
}

// RecordRebuild counts an index rebuild.
func (m *MetricsService) RecordRebuild(trigger string) {
	if m == nil {
		return
	}
	m.rebuildsTotal.WithLabelValues(trigger).Inc()
}
