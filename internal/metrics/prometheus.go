package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Recorder holds the service's Prometheus collectors.
type Recorder struct {
	searchDuration    *prometheus.HistogramVec
	cacheLookups      *prometheus.CounterVec
	searchQueries     *prometheus.CounterVec
	providerFailures  *prometheus.CounterVec
	llmTokens         *prometheus.CounterVec
	synthesisFailures prometheus.Counter
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

func NewRecorder() *Recorder {
	return &Recorder{
		searchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gemfinder",
			Name:      "search_duration_seconds",
			Help:      "End-to-end research pipeline duration.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120, 180},
		}, []string{"from_cache"}),
		cacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gemfinder",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by outcome.",
		}, []string{"outcome"}),
		searchQueries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gemfinder",
			Name:      "web_search_queries_total",
			Help:      "Web search queries executed by provider.",
		}, []string{"provider"}),
		providerFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gemfinder",
			Name:      "search_provider_failures_total",
			Help:      "Failed web search calls by provider.",
		}, []string{"provider"}),
		llmTokens: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gemfinder",
			Name:      "llm_tokens_total",
			Help:      "LLM tokens consumed by direction.",
		}, []string{"direction"}),
		synthesisFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "gemfinder",
			Name:      "synthesis_failures_total",
			Help:      "Research runs that produced no usable recommendations.",
		}),
		httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gemfinder",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "path", "status"}),
		httpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gemfinder",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

func (r *Recorder) ObserveSearch(duration time.Duration, fromCache bool) {
	label := "false"
	if fromCache {
		label = "true"
	}
	r.searchDuration.WithLabelValues(label).Observe(duration.Seconds())
}

func (r *Recorder) RecordCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.cacheLookups.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordSearchQuery(provider string) {
	r.searchQueries.WithLabelValues(provider).Inc()
}

func (r *Recorder) RecordProviderFailure(provider string) {
	r.providerFailures.WithLabelValues(provider).Inc()
}

func (r *Recorder) RecordLLMTokens(promptTokens, completionTokens int) {
	r.llmTokens.WithLabelValues("prompt").Add(float64(promptTokens))
	r.llmTokens.WithLabelValues("completion").Add(float64(completionTokens))
}

func (r *Recorder) RecordSynthesisFailure() {
	r.synthesisFailures.Inc()
}

// HTTPMiddleware records request counts and latency per route.
func (r *Recorder) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := c.Route().Path
		r.httpRequests.WithLabelValues(c.Method(), path, statusLabel(c, err)).Inc()
		r.httpDuration.WithLabelValues(c.Method(), path).Observe(time.Since(start).Seconds())
		return err
	}
}

func statusLabel(c *fiber.Ctx, err error) string {
	status := c.Response().StatusCode()
	if err != nil {
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
	}
	return strconv.Itoa(status)
}

// Handler serves the Prometheus scrape endpoint.
func Handler() fiber.Handler {
	h := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c *fiber.Ctx) error {
		h(c.Context())
		return nil
	}
}
