package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Timetable validation outcomes.
const (
	ValidationOutcomeValid     = "valid"
	ValidationOutcomeConflict  = "conflict"
	ValidationOutcomeMalformed = "malformed"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP, cache, database and domain events.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	quizzesCreated       prometheus.Counter
	resultsGraded        prometheus.Counter
	fanoutRows           prometheus.Counter
	fanoutFailures       prometheus.Counter
	fanoutAbandoned      prometheus.Counter
	timetableValidations *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
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
		Help:    "Latency for cache lookups",
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

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	quizzesCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quizzes_created_total",
		Help: "Quizzes stored through the API",
	})

	resultsGraded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quiz_results_graded_total",
		Help: "Quiz results marked as checked or absent",
	})

	fanoutRows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quiz_fanout_rows_total",
		Help: "Result rows created by the quiz result fan-out",
	})

	fanoutFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quiz_fanout_failures_total",
		Help: "Quiz result fan-outs that failed and were queued for retry",
	})

	fanoutAbandoned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quiz_fanout_abandoned_total",
		Help: "Queued quiz result fan-outs that exhausted their retries",
	})

	timetableValidations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_validations_total",
		Help: "Timetable candidate validations by outcome",
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, dbQueryDuration,
		quizzesCreated, resultsGraded, fanoutRows, fanoutFailures, fanoutAbandoned, timetableValidations, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:             registry,
		handler:              handler,
		requestDuration:      requestDuration,
		requestTotal:         requestTotal,
		cacheLatency:         cacheLatency,
		cacheWrite:           cacheWrite,
		cacheHitRatio:        cacheHitRatio,
		cacheHits:            cacheHits,
		cacheMisses:          cacheMisses,
		dbQueryDuration:      dbQueryDuration,
		quizzesCreated:       quizzesCreated,
		resultsGraded:        resultsGraded,
		fanoutRows:           fanoutRows,
		fanoutFailures:       fanoutFailures,
		fanoutAbandoned:      fanoutAbandoned,
		timetableValidations: timetableValidations,
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

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
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

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// IncQuizCreated counts a stored quiz.
func (m *MetricsService) IncQuizCreated() {
	if m == nil {
		return
	}
	m.quizzesCreated.Inc()
}

// IncResultGraded counts a graded result.
func (m *MetricsService) IncResultGraded() {
	if m == nil {
		return
	}
	m.resultsGraded.Inc()
}

// AddFanoutRows counts result rows created by a fan-out run.
func (m *MetricsService) AddFanoutRows(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.fanoutRows.Add(float64(n))
}

// IncFanoutFailure counts a failed fan-out.
func (m *MetricsService) IncFanoutFailure() {
	if m == nil {
		return
	}
	m.fanoutFailures.Inc()
}

// IncFanoutAbandoned counts a queued fan-out that ran out of retries.
func (m *MetricsService) IncFanoutAbandoned() {
	if m == nil {
		return
	}
	m.fanoutAbandoned.Inc()
}

// ObserveTimetableValidation counts a validation verdict.
func (m *MetricsService) ObserveTimetableValidation(outcome string) {
	if m == nil {
		return
	}
	m.timetableValidations.WithLabelValues(outcome).Inc()
}
