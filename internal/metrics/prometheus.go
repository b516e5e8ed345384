// Package metrics provides the Prometheus registry for the AI gateway.
//
// Metrics live in a private registry so the gateway can be embedded in the
// CMS process without touching its default registry. Handler serves
// /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var durationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120}

// Registry holds all exported metrics.
type Registry struct {
	reg *prometheus.Registry

	// ai_http_inflight_requests
	inFlight prometheus.Gauge

	// ai_http_requests_total{route,status}
	httpRequestsTotal *prometheus.CounterVec

	// ai_http_request_duration_seconds{route}
	httpDuration *prometheus.HistogramVec

	// ai_generations_total{provider,operation,outcome}
	generations *prometheus.CounterVec

	// ai_generation_duration_seconds{provider,cache}
	generationDuration *prometheus.HistogramVec

	// ai_upstream_attempts_total{provider,outcome}
	upstreamAttempts *prometheus.CounterVec

	// ai_upstream_attempt_duration_seconds{provider,outcome}
	upstreamDuration *prometheus.HistogramVec

	// ai_retries_total{provider,code}
	retries *prometheus.CounterVec

	// ai_cache_operations_total{op,result}
	cacheOps *prometheus.CounterVec

	// ai_tokens_total{provider,direction}
	tokensTotal *prometheus.CounterVec

	// ai_history_records_total{result}
	historyRecords *prometheus.CounterVec

	// ai_history_dropped_total
	historyDropped prometheus.Counter

	// ai_ratelimit_total{result}
	rateLimitTotal *prometheus.CounterVec

	// ai_build_info{version,provider}
	buildInfo *prometheus.GaugeVec

	metricsHandler fasthttp.RequestHandler
}

func New() *Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	r := &Registry{
		reg: reg,

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ai_http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_http_requests_total",
				Help: "Total number of HTTP requests handled",
			},
			[]string{"route", "status"},
		),

		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ai_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: durationBuckets,
			},
			[]string{"route"},
		),

		generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_generations_total",
				Help: "Generation calls by provider, operation and outcome",
			},
			[]string{"provider", "operation", "outcome"},
		),

		generationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ai_generation_duration_seconds",
				Help:    "End-to-end generation duration including retries",
				Buckets: durationBuckets,
			},
			[]string{"provider", "cache"},
		),

		upstreamAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_upstream_attempts_total",
				Help: "Upstream vendor attempts",
			},
			[]string{"provider", "outcome"},
		),

		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ai_upstream_attempt_duration_seconds",
				Help:    "Upstream vendor attempt duration in seconds",
				Buckets: durationBuckets,
			},
			[]string{"provider", "outcome"},
		),

		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_retries_total",
				Help: "Retries scheduled after a retryable transport failure",
			},
			[]string{"provider", "code"},
		),

		cacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_cache_operations_total",
				Help: "Response cache operations by type and result",
			},
			[]string{"op", "result"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_tokens_total",
				Help: "Token usage reported by upstream vendors",
			},
			[]string{"provider", "direction"},
		),

		historyRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_history_records_total",
				Help: "Generation history writes by result",
			},
			[]string{"result"},
		),

		historyDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ai_history_dropped_total",
			Help: "History entries dropped because the dispatch buffer was full",
		}),

		rateLimitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_ratelimit_total",
				Help: "Per-user rate limit decisions",
			},
			[]string{"result"},
		),

		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ai_build_info",
				Help: "Build information and active provider",
			},
			[]string{"version", "provider"},
		),
	}

	reg.MustRegister(
		r.inFlight,
		r.httpRequestsTotal,
		r.httpDuration,
		r.generations,
		r.generationDuration,
		r.upstreamAttempts,
		r.upstreamDuration,
		r.retries,
		r.cacheOps,
		r.tokensTotal,
		r.historyRecords,
		r.historyDropped,
		r.rateLimitTotal,
		r.buildInfo,
	)

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	r.metricsHandler = fasthttpadaptor.NewFastHTTPHandler(h)

	return r
}

func (r *Registry) IncInFlight() { r.inFlight.Inc() }
func (r *Registry) DecInFlight() { r.inFlight.Dec() }

// ObserveHTTP records end-to-end HTTP metrics.
func (r *Registry) ObserveHTTP(route string, statusCode int, dur time.Duration) {
	r.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
	r.httpDuration.WithLabelValues(route).Observe(dur.Seconds())
}

// ObserveGeneration records one gateway call. outcome is "ok" or an error kind.
func (r *Registry) ObserveGeneration(provider, operation, outcome string, cached bool, dur time.Duration) {
	cache := "miss"
	if cached {
		cache = "hit"
	}
	r.generations.WithLabelValues(provider, operation, outcome).Inc()
	r.generationDuration.WithLabelValues(provider, cache).Observe(dur.Seconds())
}

// ObserveUpstreamAttempt records one upstream vendor attempt.
func (r *Registry) ObserveUpstreamAttempt(provider, outcome string, dur time.Duration) {
	r.upstreamAttempts.WithLabelValues(provider, outcome).Inc()
	r.upstreamDuration.WithLabelValues(provider, outcome).Observe(dur.Seconds())
}

func (r *Registry) RecordRetry(provider, code string) {
	r.retries.WithLabelValues(provider, code).Inc()
}

func (r *Registry) CacheGetHit()    { r.cacheOps.WithLabelValues("get", "hit").Inc() }
func (r *Registry) CacheGetMiss()   { r.cacheOps.WithLabelValues("get", "miss").Inc() }
func (r *Registry) CacheGetBypass() { r.cacheOps.WithLabelValues("get", "bypass").Inc() }
func (r *Registry) CacheSetOK()     { r.cacheOps.WithLabelValues("set", "ok").Inc() }
func (r *Registry) CacheSetError()  { r.cacheOps.WithLabelValues("set", "error").Inc() }

func (r *Registry) AddTokens(provider string, inputTokens, outputTokens, totalTokens int) {
	if inputTokens > 0 {
		r.tokensTotal.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		r.tokensTotal.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
	if totalTokens > 0 {
		r.tokensTotal.WithLabelValues(provider, "total").Add(float64(totalTokens))
	}
}

func (r *Registry) RecordHistory(result string) {
	r.historyRecords.WithLabelValues(result).Inc()
}

func (r *Registry) HistoryDropped() { r.historyDropped.Inc() }

func (r *Registry) RecordRateLimit(result string) {
	r.rateLimitTotal.WithLabelValues(result).Inc()
}

func (r *Registry) SetBuildInfo(version, provider string) {
	r.buildInfo.WithLabelValues(version, provider).Set(1)
}

func (r *Registry) Handler() fasthttp.RequestHandler {
	return r.metricsHandler
}

func (r *Registry) PromRegistry() *prometheus.Registry { return r.reg }
