// Package metrics provides Prometheus metrics collection for the prediction service.
// It defines the inference, HTTP and audit metrics exposed on the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the prediction service.
type Metrics struct {
	// Inference metrics
	MLPredictions          *prometheus.CounterVec // Predictions made, by diagnosis
	MLFailures             *prometheus.CounterVec // Failed predictions, by kind (caller or internal)
	MLValidationFailures   prometheus.Counter     // Inputs rejected by validation
	MLTypicalRangeWarnings *prometheus.CounterVec // Values outside the typical range, by feature
	MLLatency              prometheus.Histogram   // End-to-end prediction latency in seconds
	MLPredictionScores     prometheus.Histogram   // Distribution of prediction confidence
	MLModelAge             prometheus.Gauge       // Age of the loaded model in seconds
	MLReady                prometheus.Gauge       // 1 once artifacts are loaded
	MLArtifactLoadFailures prometheus.Counter     // Failed artifact loads
	MLFeatureDrift         *prometheus.GaugeVec   // Input drift score, by feature

	// HTTP metrics
	HTTPRequests  *prometheus.CounterVec   // Requests by route, method and status code
	HTTPDuration  *prometheus.HistogramVec // Request duration by route
	WSConnections prometheus.Gauge         // Open websocket prediction sessions
	WSMessages    prometheus.Counter       // Prediction messages received over websocket

	// Audit metrics
	AuditWrites   prometheus.Counter // Prediction audit records written
	AuditFailures prometheus.Counter // Prediction audit records that failed to persist

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		MLPredictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of predictions made",
		}, []string{"diagnosis"}),
		MLFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ml_failures_total",
			Help: "Total number of failed predictions",
		}, []string{"kind"}),
		MLValidationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_validation_failures_total",
			Help: "Total number of inputs rejected by validation",
		}),
		MLTypicalRangeWarnings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ml_typical_range_warnings_total",
			Help: "Total number of feature values outside their typical range",
		}, []string{"feature"}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "Prediction latency in seconds (validation to result)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		MLPredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_prediction_scores",
			Help:    "Distribution of prediction confidence",
			Buckets: prometheus.LinearBuckets(0.5, 0.05, 11),
		}),
		MLModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_model_age_seconds",
			Help: "Age of the loaded model in seconds",
		}),
		MLReady: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_ready",
			Help: "Whether model artifacts are loaded (1) or not (0)",
		}),
		MLArtifactLoadFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_artifact_load_failures_total",
			Help: "Total number of failed model artifact loads",
		}),
		MLFeatureDrift: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ml_feature_drift_score",
			Help: "Shift of the recent input mean from the training mean, in training standard deviations",
		}, []string{"feature"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "method", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Number of open websocket prediction sessions",
		}),
		WSMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "ws_messages_total",
			Help: "Total number of prediction messages received over websocket",
		}),
		AuditWrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "audit_writes_total",
			Help: "Total number of prediction audit records written",
		}),
		AuditFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "audit_failures_total",
			Help: "Total number of prediction audit records that failed to persist",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}

// GetErrorRate returns internal prediction failures over all prediction attempts,
// or 0 if nothing has been recorded. Caller errors are not counted as failures.
func (m *Metrics) GetErrorRate() float64 {
	var succeeded float64
	for _, d := range []string{"Malignant", "Benign"} {
		succeeded += counterValue(m.MLPredictions.WithLabelValues(d))
	}
	internal := counterValue(m.MLFailures.WithLabelValues("internal"))

	total := succeeded + internal
	if total == 0 {
		return 0
	}
	return internal / total
}

func counterValue(c prometheus.Counter) float64 {
	var pb dto.Metric
	if err := c.Write(&pb); err != nil || pb.Counter == nil {
		return 0
	}
	return pb.Counter.GetValue()
}
