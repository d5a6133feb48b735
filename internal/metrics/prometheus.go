/*-------------------------------------------------------------------------
 *
 * prometheus.go
 *    Prometheus metrics for NeuronFlow
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/metrics/prometheus.go
 *
 *-------------------------------------------------------------------------
 */

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	/* Request metrics */
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuronflow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neuronflow_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	/* Workflow metrics */
	workflowExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuronflow_workflow_executions_total",
			Help: "Total number of workflow executions",
		},
		[]string{"workflow_id", "status"},
	)

	workflowExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neuronflow_workflow_execution_duration_seconds",
			Help:    "Workflow execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"workflow_id"},
	)

	/* Stage metrics */
	stageExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuronflow_stage_executions_total",
			Help: "Total number of stage executions",
		},
		[]string{"stage_type", "status"},
	)

	stageExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neuronflow_stage_execution_duration_seconds",
			Help:    "Stage execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		},
		[]string{"stage_type"},
	)

	stageRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuronflow_stage_retries_total",
			Help: "Total number of stage retry attempts",
		},
		[]string{"stage_type"},
	)

	/* Quality gate metrics */
	qualityGateScores = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neuronflow_quality_gate_score",
			Help:    "Quality gate overall scores",
			Buckets: []float64{50, 60, 70, 75, 80, 85, 90, 95, 100},
		},
		[]string{"gate_id"},
	)

	qualityGateResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuronflow_quality_gate_results_total",
			Help: "Total number of quality gate evaluations",
		},
		[]string{"gate_id", "result"},
	)

	/* Human review metrics */
	humanReviewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuronflow_human_reviews_total",
			Help: "Total number of human review resolutions",
		},
		[]string{"outcome"},
	)

	humanReviewLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "neuronflow_human_review_latency_seconds",
			Help:    "Time between review request and resolution",
			Buckets: []float64{1, 10, 60, 300, 1800, 3600, 14400, 86400},
		},
	)

	/* Notification metrics */
	notificationDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuronflow_notification_deliveries_total",
			Help: "Total number of notification delivery attempts",
		},
		[]string{"channel", "status"},
	)
)

/* RecordHTTPRequest records an HTTP request */
func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

/* RecordWorkflowExecution records a terminal workflow execution */
func RecordWorkflowExecution(workflowID, status string, duration time.Duration) {
	workflowExecutionsTotal.WithLabelValues(workflowID, status).Inc()
	workflowExecutionDuration.WithLabelValues(workflowID).Observe(duration.Seconds())
}

/* RecordStageExecution records a terminal stage execution */
func RecordStageExecution(stageType, status string, duration time.Duration) {
	stageExecutionsTotal.WithLabelValues(stageType, status).Inc()
	stageExecutionDuration.WithLabelValues(stageType).Observe(duration.Seconds())
}

/* RecordStageRetry records a stage retry attempt */
func RecordStageRetry(stageType string) {
	stageRetriesTotal.WithLabelValues(stageType).Inc()
}

/* RecordQualityGate records a quality gate evaluation */
func RecordQualityGate(gateID string, score float64, passed bool) {
	qualityGateScores.WithLabelValues(gateID).Observe(score)
	result := "failed"
	if passed {
		result = "passed"
	}
	qualityGateResults.WithLabelValues(gateID, result).Inc()
}

/* RecordHumanReview records a human review resolution */
func RecordHumanReview(outcome string, latency time.Duration) {
	humanReviewsTotal.WithLabelValues(outcome).Inc()
	humanReviewLatency.Observe(latency.Seconds())
}

/* RecordNotificationDelivery records a notification delivery attempt */
func RecordNotificationDelivery(channel, status string) {
	notificationDeliveriesTotal.WithLabelValues(channel, status).Inc()
}

/* Handler returns the Prometheus metrics HTTP handler */
func Handler() http.Handler {
	return promhttp.Handler()
}
