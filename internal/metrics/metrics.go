// Package metrics registers the Prometheus collectors for the pipeline, the
// lifecycle sweeper and the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageDuration times each pipeline stage.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billscope_pipeline_stage_duration_seconds",
		Help:    "Duration of each bill analysis pipeline stage",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms … ~100s
	}, []string{"stage"})

	// PipelineResults counts finished analyses by terminal state.
	PipelineResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billscope_pipeline_results_total",
		Help: "Bill analyses that reached a terminal state",
	}, []string{"state"})

	// StageFailures counts unrecoverable failures by stage.
	StageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billscope_pipeline_stage_failures_total",
		Help: "Unrecoverable pipeline failures by stage",
	}, []string{"stage"})

	// NarrativeFallbacks counts analyses that used the template narrative.
	NarrativeFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billscope_narrative_fallback_total",
		Help: "Analyses whose narrative came from the template narrator",
	})

	// LifecycleRemoved counts artifacts removed by the sweeper.
	LifecycleRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billscope_lifecycle_removed_total",
		Help: "Artifacts removed by the retention sweeper",
	}, []string{"artifact"}) // artifact: image, text

	// LifecycleErrors counts sweep errors.
	LifecycleErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billscope_lifecycle_errors_total",
		Help: "Errors encountered by the retention sweeper",
	}, []string{"artifact"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billscope_http_requests_total",
		Help: "HTTP requests handled by the API",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billscope_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Artifact labels.
const (
	ArtifactImage = "image"
	ArtifactText  = "text"
)

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, d time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveHTTP records one HTTP request. path must be the route template,
// not the raw URL.
func ObserveHTTP(method, path, status string, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
