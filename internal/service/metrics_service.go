package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/chore-dispute-api/internal/models"
)

// MetricsService owns the process Prometheus registry: HTTP, cache and store
// timings plus dispute lifecycle counters.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	storeDuration   *prometheus.HistogramVec

	disputesCreated prometheus.Counter
	votesCast       *prometheus.CounterVec
	resolutions     *prometheus.CounterVec
	effectsFailures prometheus.Counter
}

// NewMetricsService registers collectors on a private registry.
func NewMetricsService() *MetricsService {
	m := &MetricsService{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "membership_cache_lookups_total",
			Help: "Membership cache lookups by result",
		}, []string{"result"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "membership_cache_latency_seconds",
			Help:    "Latency of membership cache operations",
			Buckets: prometheus.DefBuckets,
		}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dispute_store_duration_seconds",
			Help:    "Duration of dispute store operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		disputesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "disputes_created_total",
			Help: "Disputes opened",
		}),
		votesCast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispute_votes_total",
			Help: "Votes cast by choice",
		}, []string{"choice"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispute_resolutions_total",
			Help: "Disputes resolved by outcome and source",
		}, []string{"outcome", "source"}),
		effectsFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispute_effects_failures_total",
			Help: "Resolution side effects that exhausted their retries",
		}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	m.registry.MustRegister(
		m.requestDuration, m.requestTotal, m.cacheLookups, m.cacheLatency, m.storeDuration,
		m.disputesCreated, m.votesCast, m.resolutions, m.effectsFailures, goroutines,
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
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

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a membership cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// ObserveStore records dispute store timing.
func (m *MetricsService) ObserveStore(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.storeDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// DisputeCreated counts a newly opened dispute.
func (m *MetricsService) DisputeCreated() {
	if m == nil {
		return
	}
	m.disputesCreated.Inc()
}

// VoteCast counts an accepted vote.
func (m *MetricsService) VoteCast(choice models.VoteChoice) {
	if m == nil {
		return
	}
	m.votesCast.WithLabelValues(string(choice)).Inc()
}

// DisputeResolved counts a pending to terminal transition.
func (m *MetricsService) DisputeResolved(outcome models.DisputeStatus, source models.ResolutionSource) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(string(outcome), string(source)).Inc()
}

// EffectsFailed counts side-effect jobs that gave up.
func (m *MetricsService) EffectsFailed() {
	if m == nil {
		return
	}
	m.effectsFailures.Inc()
}
