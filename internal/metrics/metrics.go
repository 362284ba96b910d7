// Package metrics exposes Prometheus collectors for the manifest service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Resolution outcomes.
const (
	OutcomeManifest    = "manifest"
	OutcomeLinked      = "linked"
	OutcomeWellKnown   = "well_known"
	OutcomeSynthesized = "synthesized"
	OutcomeUnparsed    = "unparsed"
	OutcomeError       = "error"
)

var (
	resolutionsTotal           *prometheus.CounterVec
	fetchesTotal               *prometheus.CounterVec
	fetchBytesTotal            prometheus.Counter
	fetchDurationSeconds       *prometheus.HistogramVec
	protocolFallbacksTotal     prometheus.Counter
	wellKnownProbesTotal       *prometheus.CounterVec
	headlessActiveSessions     prometheus.Gauge
	headlessPromotionsTotal    *prometheus.CounterVec
	rateLimitDelaySeconds      prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		resolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "manifest_resolutions_total",
				Help: "Total number of manifest resolutions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "manifest_fetches_total",
				Help: "Total number of upstream fetches, labeled by status.",
			},
			[]string{"status"},
		)

		fetchBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "manifest_fetch_bytes_total",
				Help: "Total number of bytes fetched.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "manifest_fetch_duration_seconds",
				Help:    "Histogram of upstream fetch latencies, labeled by backend.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"backend"},
		)

		protocolFallbacksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "manifest_protocol_fallbacks_total",
				Help: "Total https to http retries after a 404.",
			},
		)

		wellKnownProbesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "manifest_well_known_probes_total",
				Help: "Total well-known manifest path probes, labeled by result.",
			},
			[]string{"result"},
		)

		headlessActiveSessions = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "manifest_headless_active_sessions",
				Help: "Number of headless browser navigations in flight.",
			},
		)

		headlessPromotionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "manifest_headless_promotions_total",
				Help: "Total documents re-fetched in a headless browser, labeled by result.",
			},
			[]string{"result"},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "manifest_rate_limit_delay_seconds",
				Help:    "Histogram of per-host rate limit waits before upstream fetches.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveResolution counts a finished resolution.
func ObserveResolution(outcome string) {
	Init()
	resolutionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch records one upstream fetch. A status of 0 means a transport
// failure. Upstream hosts are caller-supplied, so they are not labels.
func ObserveFetch(status int, bytesFetched int) {
	Init()
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	fetchesTotal.WithLabelValues(label).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.Add(float64(bytesFetched))
	}
}

// ObserveFetchDuration records the latency of a fetch by backend.
func ObserveFetchDuration(backend string, duration time.Duration) {
	Init()
	fetchDurationSeconds.WithLabelValues(backend).Observe(duration.Seconds())
}

// ObserveProtocolFallback counts an https to http retry.
func ObserveProtocolFallback() {
	Init()
	protocolFallbacksTotal.Inc()
}

// ObserveWellKnownProbe counts a well-known path probe ("hit" or "miss").
func ObserveWellKnownProbe(result string) {
	Init()
	wellKnownProbesTotal.WithLabelValues(result).Inc()
}

// IncHeadlessSessions increments the active headless sessions gauge.
func IncHeadlessSessions() {
	Init()
	headlessActiveSessions.Inc()
}

// DecHeadlessSessions decrements the active headless sessions gauge.
func DecHeadlessSessions() {
	Init()
	headlessActiveSessions.Dec()
}

// ObserveHeadlessPromotion counts a headless re-fetch ("rendered" or
// "failed").
func ObserveHeadlessPromotion(result string) {
	Init()
	headlessPromotionsTotal.WithLabelValues(result).Inc()
}

// ObserveRateLimitDelay records how long a fetch waited for its host's
// rate limiter.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	rateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
