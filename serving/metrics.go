package serving

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Failure kinds recorded by Metrics.
const (
	failureValidation  = "validation"
	failurePrediction  = "prediction"
	failureRateLimited = "rate_limited"
)

// Metrics holds the Prometheus collectors of one handler. Each handler
// owns its registry so several can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inFlight    prometheus.Gauge
	predictions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	cacheHits   prometheus.Counter
}

// NewMetrics registers the serving collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "penguinml",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "penguinml",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		}, []string{"method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "penguinml",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "penguinml",
			Subsystem: "predict",
			Name:      "predictions_total",
			Help:      "Successful predictions by species.",
		}, []string{"species"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "penguinml",
			Subsystem: "predict",
			Name:      "failures_total",
			Help:      "Rejected or failed prediction requests by kind.",
		}, []string{"kind"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "penguinml",
			Subsystem: "predict",
			Name:      "cache_hits_total",
			Help:      "Predictions answered from the prediction cache.",
		}),
	}
	m.registry.MustRegister(
		m.requests, m.duration, m.inFlight, m.predictions, m.failures, m.cacheHits,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) recordPrediction(species string) {
	m.predictions.WithLabelValues(species).Inc()
}

func (m *Metrics) recordCacheHit() {
	m.cacheHits.Inc()
}

func (m *Metrics) recordFailure(kind string) {
	m.failures.WithLabelValues(kind).Inc()
}

// Instrument records count and latency per chi route pattern.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.status = code
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wrote {
		r.wrote = true
	}
	return r.ResponseWriter.Write(b)
}
