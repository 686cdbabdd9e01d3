package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campuskit/academics-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides
// lightweight snapshots for API consumption.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	cacheLatency     prometheus.Observer
	cacheHitRatio    prometheus.Gauge
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	importClasses    *prometheus.CounterVec
	importRows       *prometheus.CounterVec
	importErrors     *prometheus.CounterVec
	creditRecomputes prometheus.Counter
	queueDepth       prometheus.Gauge

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	importRecordCount    uint64
	importErrorCount     uint64
	creditRecomputeCount uint64
	queueDepthValue      int64
}

// NewMetricsService registers core Prometheus collectors.
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

	importClasses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "import_classes_total",
		Help: "Classes handled by bulk imports, by outcome",
	}, []string{"outcome"})

	importRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "import_enrollments_total",
		Help: "Enrollment rows written by bulk imports, by outcome",
	}, []string{"outcome"})

	importErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "import_errors_total",
		Help: "Per-record errors raised by bulk imports, by type",
	}, []string{"type"})

	creditRecomputes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "credit_recomputes_total",
		Help: "Total program credit recomputations",
	})

	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "job_queue_depth",
		Help: "Pending tasks in the deferred job queue",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHitRatio, cacheHits, cacheMisses,
		importClasses, importRows, importErrors, creditRecomputes, queueDepth, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		cacheLatency:     cacheLatency,
		cacheHitRatio:    cacheHitRatio,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
		importClasses:    importClasses,
		importRows:       importRows,
		importErrors:     importErrors,
		creditRecomputes: creditRecomputes,
		queueDepth:       queueDepth,
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

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// RecordImportReport folds one finished batch into the import counters.
func (m *MetricsService) RecordImportReport(report *models.ImportReport) {
	if m == nil || report == nil {
		return
	}
	m.importClasses.WithLabelValues("created").Add(float64(report.ClassesCreated))
	m.importClasses.WithLabelValues("reused").Add(float64(report.ClassesAlreadyExisted))
	m.importRows.WithLabelValues("created").Add(float64(report.EnrollmentsCreated))
	m.importRows.WithLabelValues("updated").Add(float64(report.EnrollmentsUpdated))
	for _, impErr := range report.Errors {
		m.importErrors.WithLabelValues(string(impErr.Type)).Inc()
	}
	atomic.AddUint64(&m.importRecordCount, uint64(report.ClassesProcessed))
	atomic.AddUint64(&m.importErrorCount, uint64(len(report.Errors)))
}

// RecordCreditRecompute counts a finished program credit recomputation.
func (m *MetricsService) RecordCreditRecompute() {
	if m == nil {
		return
	}
	m.creditRecomputes.Inc()
	atomic.AddUint64(&m.creditRecomputeCount, 1)
}

// SetQueueDepth mirrors the job queue's pending-task count.
func (m *MetricsService) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
	atomic.StoreInt64(&m.queueDepthValue, int64(depth))
}

// Snapshot returns aggregated metrics suitable for dashboard endpoints.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		ImportRecordsTotal:       atomic.LoadUint64(&m.importRecordCount),
		ImportErrorsTotal:        atomic.LoadUint64(&m.importErrorCount),
		CreditRecomputesTotal:    atomic.LoadUint64(&m.creditRecomputeCount),
		QueueDepth:               int(atomic.LoadInt64(&m.queueDepthValue)),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
