package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/forecast-dashboard/internal/health"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Forecast pages include the upstream round trip on a cache miss.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream API call rate by endpoint (location, forecast). Watch for: error vs success ratio.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency per call. Watch for: p95 > 2s (upstream degradation).
	UpstreamDuration *prometheus.HistogramVec

	// Upstream failures by endpoint and stable error category.
	UpstreamErrorsTotal *prometheus.CounterVec

	// Cache hits per cache type (location, forecast).
	CacheHitsTotal *prometheus.CounterVec

	// Cache misses per cache type.
	CacheMissesTotal *prometheus.CounterVec

	// Cache backend errors by operation (get, set, delete) and category.
	CacheErrorsTotal *prometheus.CounterVec

	// Latency of cache operations. Watch for: memcached slowness.
	CacheOperationDurationSeconds *prometheus.HistogramVec

	// Concurrent misses on the same key. Watch for: many visitors landing on a cold key together.
	CacheStampedeDetectedTotal *prometheus.CounterVec

	// Requests served by joining another caller's in-flight upstream fetch.
	RequestCoalescingHitsTotal *prometheus.CounterVec

	// Circuit breaker state (0 closed, 1 open, 2 half_open).
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions. Watch for: flapping.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Location resolutions by outcome (resolved, unresolved).
	LocationResolutionsTotal *prometheus.CounterVec

	// Forecast panels rendered by period and terminal state (error, empty, populated).
	PanelRendersTotal *prometheus.CounterVec

	// Background prefetch runs and failures.
	PrefetchTotal       prometheus.Counter
	PrefetchErrorsTotal prometheus.Counter

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	rateLimitGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of weather API calls",
		},
		[]string{"endpoint", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Weather API latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	UpstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamErrorsTotal",
			Help: "Weather API failures by endpoint and category",
		},
		[]string{"endpoint", "category"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits",
		},
		[]string{"cacheType"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of cache misses",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation and category",
		},
		[]string{"operation", "category"},
	)
	CacheOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Cache operation latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"operation", "result"},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Cache misses that found another miss for the same key in progress",
		},
		[]string{"cacheType"},
	)
	RequestCoalescingHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requestCoalescingHitsTotal",
			Help: "Requests that waited on an in-flight upstream fetch instead of issuing their own",
		},
		[]string{"cacheType"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state: 0 closed, 1 open, 2 half_open",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	LocationResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locationResolutionsTotal",
			Help: "Visitor location resolutions by outcome",
		},
		[]string{"outcome"},
	)
	PanelRendersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panelRendersTotal",
			Help: "Forecast panels rendered by period and state",
		},
		[]string{"period", "state"},
	)
	PrefetchTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prefetchTotal",
			Help: "Background prefetch runs for sibling periods",
		},
	)
	PrefetchErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prefetchErrorsTotal",
			Help: "Background prefetch runs with at least one failed period",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration, UpstreamErrorsTotal,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal, CacheOperationDurationSeconds,
		CacheStampedeDetectedTotal, RequestCoalescingHitsTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		LocationResolutionsTotal, PanelRendersTotal,
		PrefetchTotal, PrefetchErrorsTotal,
		RateLimitDeniedTotal,
	)
}

// RegisterRateLimitGauges registers load and rejects gauges for the rate-limited path.
// Call from main after config load with cfg.OverloadWindow. Uses same window as the health monitor.
func RegisterRateLimitGauges(window time.Duration, tracker *health.Tracker) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(tracker.Requests(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(tracker.Denials(window)) },
			),
		)
	})
}

// SetCircuitBreakerStateGauge records the numeric breaker state for component.
func SetCircuitBreakerStateGauge(component string, state int) {
	CircuitBreakerState.WithLabelValues(component).Set(float64(state))
}

// RecordCircuitBreakerTransition counts a breaker transition.
func RecordCircuitBreakerTransition(component, from, to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
