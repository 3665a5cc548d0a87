// Package metrics provides Prometheus metrics collection for the loan
// decision service: prediction throughput and latency, decision label
// distribution, validation failures, and fairness audit outcomes, all
// exposed via the Prometheus metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the decision service.
type Metrics struct {
	// Scoring metrics
	Predictions        prometheus.Counter   // Total number of predictions made
	PredictionFailures prometheus.Counter   // Total number of failed predictions
	PredictionLatency  prometheus.Histogram // End-to-end prediction latency in seconds
	PredictionScores   prometheus.Histogram // Distribution of predicted approval probabilities
	ModelAge           prometheus.Gauge     // Age of the loaded model in seconds

	// Decision metrics
	Decisions *prometheus.CounterVec // Decisions by label (APPROVE, DECLINE, MANUAL_REVIEW)

	// Request metrics
	ValidationErrors prometheus.Counter // Rejected applications (malformed or out-of-domain fields)
	BatchRejections  prometheus.Counter // Whole batches rejected on a bad record

	// Explanation metrics
	Explanations       prometheus.Counter   // Explanations generated
	ExplanationLatency prometheus.Histogram // Explanation latency in seconds

	// Fairness audit metrics
	Audits               prometheus.Counter // Fairness audits run
	AuditFailures        prometheus.Counter // Audits that could not be computed
	DisparateImpactRatio prometheus.Gauge   // Most recent disparate impact ratio
	EightyPctRuleFailed  prometheus.Counter // Audits failing the 80% rule

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for
// tests, which need isolation from the global registry).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of predictions made",
		}),
		PredictionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_failures_total",
			Help: "Total number of failed predictions",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "End-to-end prediction latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),
		PredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_scores",
			Help:    "Distribution of predicted approval probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_age_seconds",
			Help: "Age of the loaded model in seconds",
		}),
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "decisions_total",
			Help: "Decisions by label",
		}, []string{"label"}),
		ValidationErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "validation_errors_total",
			Help: "Applications rejected for malformed or out-of-domain fields",
		}),
		BatchRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "batch_rejections_total",
			Help: "Whole batches rejected because of a bad record",
		}),
		Explanations: factory.NewCounter(prometheus.CounterOpts{
			Name: "explanations_total",
			Help: "Explanations generated",
		}),
		ExplanationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "explanation_latency_seconds",
			Help:    "Explanation latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		Audits: factory.NewCounter(prometheus.CounterOpts{
			Name: "audits_total",
			Help: "Fairness audits run",
		}),
		AuditFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "audit_failures_total",
			Help: "Fairness audits that could not be computed",
		}),
		DisparateImpactRatio: factory.NewGauge(prometheus.GaugeOpts{
			Name: "disparate_impact_ratio",
			Help: "Most recent disparate impact ratio",
		}),
		EightyPctRuleFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "eighty_pct_rule_failed_total",
			Help: "Audits failing the 80% rule",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}
