// Package metrics registers the prometheus collectors for memeflow:
// feed fetch counters, enrichment outcome counters, pipeline run
// counters and duration, and API request counts, plus the standard Go
// and process collectors. Exposed through Handler(), mounted at
// /metrics on the API server.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"memeflow/logger"
)

// Enrichment outcome labels.
const (
	OutcomeEnriched    = "enriched"
	OutcomeFailed      = "failed"
	OutcomeSkipped     = "skipped"
	OutcomePassthrough = "passthrough"
)

var (
	once             sync.Once
	feedSuccess      *prometheus.CounterVec
	feedErrors       *prometheus.CounterVec
	enrichOutcomes   *prometheus.CounterVec
	pipelineRuns     prometheus.Counter
	pipelineDuration prometheus.Histogram
	httpRequests     *prometheus.CounterVec
	loggedMetrics    *prometheus.CounterVec
)

func Init() {
	once.Do(func() {
		feedSuccess = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memeflow_feed_success_total",
				Help: "Number of successful upstream feed fetches",
			},
			[]string{"feed"},
		)

		feedErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memeflow_feed_errors_total",
				Help: "Number of failed upstream feed fetches",
			},
			[]string{"feed"},
		)

		enrichOutcomes = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memeflow_enrich_outcomes_total",
				Help: "Enrichment results by outcome kind",
			},
			[]string{"outcome"},
		)

		pipelineRuns = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "memeflow_pipeline_runs_total",
				Help: "Number of completed pipeline runs",
			},
		)

		pipelineDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "memeflow_pipeline_duration_seconds",
				Help:    "Wall-clock duration of pipeline runs",
				Buckets: prometheus.DefBuckets,
			},
		)

		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memeflow_http_requests_total",
				Help: "API requests by route and status code",
			},
			[]string{"route", "status"},
		)

		loggedMetrics = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memeflow_logged_metrics_total",
				Help: "Counter-type metrics emitted through the logger",
			},
			[]string{"component", "metric"},
		)

		_ = prometheus.Register(feedSuccess)
		_ = prometheus.Register(feedErrors)
		_ = prometheus.Register(enrichOutcomes)
		_ = prometheus.Register(pipelineRuns)
		_ = prometheus.Register(pipelineDuration)
		_ = prometheus.Register(httpRequests)
		_ = prometheus.Register(loggedMetrics)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		logger.SetMetricSink(forwardLoggedMetric)
	})
}

// Handler exposes the default prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func forwardLoggedMetric(component, metric string, value interface{}, metricType string, fields logger.Fields) {
	if loggedMetrics == nil || metricType != "counter" {
		return
	}
	loggedMetrics.WithLabelValues(component, metric).Inc()
}

// IncrementFeedSuccess increases the success counter for a given feed.
func IncrementFeedSuccess(feed string) {
	if feedSuccess != nil {
		feedSuccess.WithLabelValues(feed).Inc()
	}
}

// IncrementFeedError increases the error counter for a given feed.
func IncrementFeedError(feed string) {
	if feedErrors != nil {
		feedErrors.WithLabelValues(feed).Inc()
	}
}

// IncrementEnrichOutcome records one enrichment result of the given kind.
func IncrementEnrichOutcome(outcome string) {
	if enrichOutcomes != nil {
		enrichOutcomes.WithLabelValues(outcome).Inc()
	}
}

// ObservePipelineRun records a completed run and its duration in seconds.
func ObservePipelineRun(seconds float64) {
	if pipelineRuns != nil {
		pipelineRuns.Inc()
	}
	if pipelineDuration != nil {
		pipelineDuration.Observe(seconds)
	}
}

// IncrementHTTPRequest counts one served API request.
func IncrementHTTPRequest(route, status string) {
	if httpRequests != nil {
		httpRequests.WithLabelValues(route, status).Inc()
	}
}
