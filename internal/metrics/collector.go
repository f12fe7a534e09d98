// Package metrics exposes Prometheus counters for the reception flow:
// HTTP traffic, classification outcomes, crew runs, tool calls, and
// report delivery.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector registers and records all service metrics.
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	classificationsTotal *prometheus.CounterVec

	crewRunsTotal   *prometheus.CounterVec
	crewRunDuration *prometheus.HistogramVec
	crewTokensUsed  *prometheus.CounterVec

	toolCallsTotal   *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec

	reportsRendered *prometheus.CounterVec
	reportsEmailed  *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
}

// NewCollector registers all metrics under namespace on reg. A nil reg
// uses the default registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, path, and status class.",
		}, []string{"method", "path", "status"}),

		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		classificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Classification outcomes by crew and decision source.",
		}, []string{"crew", "source"}), // source: llm, fallback, cache

		crewRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crew_runs_total",
			Help:      "Crew kickoffs by crew and outcome.",
		}, []string{"crew", "status"}),

		crewRunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crew_run_duration_seconds",
			Help:      "Crew kickoff duration in seconds.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"crew"}),

		crewTokensUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crew_tokens_used_total",
			Help:      "LLM tokens consumed by crew runs.",
		}, []string{"crew", "type"}), // type: prompt, completion

		toolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool and outcome.",
		}, []string{"tool", "status"}),

		toolCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool call duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"tool"}),

		reportsRendered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_rendered_total",
			Help:      "Reports rendered by renderer key.",
		}, []string{"renderer"}),

		reportsEmailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_emailed_total",
			Help:      "Report delivery attempts by outcome.",
		}, []string{"status"}),

		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Cache hits by cache type.",
		}, []string{"cache_type"}),

		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Cache misses by cache type.",
		}, []string{"cache_type"}),
	}

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordClassification records a routing decision. source is llm,
// fallback, or cache.
func (c *Collector) RecordClassification(crew, source string) {
	c.classificationsTotal.WithLabelValues(crew, source).Inc()
}

// RecordCrewRun records one kickoff with its token usage.
func (c *Collector) RecordCrewRun(crew, status string, duration time.Duration, promptTokens, completionTokens int) {
	c.crewRunsTotal.WithLabelValues(crew, status).Inc()
	c.crewRunDuration.WithLabelValues(crew).Observe(duration.Seconds())
	c.crewTokensUsed.WithLabelValues(crew, "prompt").Add(float64(promptTokens))
	c.crewTokensUsed.WithLabelValues(crew, "completion").Add(float64(completionTokens))
}

// RecordToolCall records one tool invocation.
func (c *Collector) RecordToolCall(tool string, failed bool, duration time.Duration) {
	status := "ok"
	if failed {
		status = "error"
	}
	c.toolCallsTotal.WithLabelValues(tool, status).Inc()
	c.toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordReportRendered records a rendered report.
func (c *Collector) RecordReportRendered(renderer string) {
	c.reportsRendered.WithLabelValues(renderer).Inc()
}

// RecordReportEmailed records a delivery attempt.
func (c *Collector) RecordReportEmailed(ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	c.reportsEmailed.WithLabelValues(status).Inc()
}

// RecordCacheHit records a cache hit.
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
