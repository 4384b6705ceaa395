// Package metrics holds the Prometheus collectors for the forecasting
// pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all StockPulse metrics on a private registry.
type Registry struct {
	reg *prometheus.Registry

	PipelineRuns       *prometheus.CounterVec
	SourceFetches      *prometheus.CounterVec
	CacheInvalidations *prometheus.CounterVec
	InferenceDuration  prometheus.Histogram
	PipelineDuration   prometheus.Histogram
}

// New creates the collectors and registers them.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		PipelineRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpulse_pipeline_runs_total",
				Help: "Pipeline runs by ticker and outcome",
			},
			[]string{"ticker", "outcome"},
		),

		SourceFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpulse_source_fetch_total",
				Help: "Market data fetches by source and result",
			},
			[]string{"source", "result"},
		),

		CacheInvalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpulse_cache_invalidations_total",
				Help: "Recent-data cache deletions by reason",
			},
			[]string{"reason"},
		),

		InferenceDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stockpulse_inference_duration_seconds",
				Help:    "Duration of a full forecast rollout",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),

		PipelineDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stockpulse_pipeline_duration_seconds",
				Help:    "Duration of a pipeline run end to end",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
	}

	r.reg.MustRegister(
		r.PipelineRuns,
		r.SourceFetches,
		r.CacheInvalidations,
		r.InferenceDuration,
		r.PipelineDuration,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveRun counts a finished pipeline run.
func (r *Registry) ObserveRun(ticker, outcome string, elapsed time.Duration) {
	r.PipelineRuns.WithLabelValues(ticker, outcome).Inc()
	r.PipelineDuration.Observe(elapsed.Seconds())
}

// ObserveFetch counts a data source call.
func (r *Registry) ObserveFetch(source string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.SourceFetches.WithLabelValues(source, result).Inc()
}

// ObserveInvalidation counts a cache deletion.
func (r *Registry) ObserveInvalidation(reason string) {
	r.CacheInvalidations.WithLabelValues(reason).Inc()
}

// ObserveInference records a rollout duration.
func (r *Registry) ObserveInference(elapsed time.Duration) {
	r.InferenceDuration.Observe(elapsed.Seconds())
}
