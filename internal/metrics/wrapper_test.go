package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestWrapper() (*Metrics, *MetricsWrapper, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	return metrics, NewWrapper(metrics), registry
}

func TestNewWrapper(t *testing.T) {
	metrics, wrapper, _ := newTestWrapper()

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.Metrics() != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestMetricsWrapper_MLMethods(t *testing.T) {
	metrics, wrapper, _ := newTestWrapper()

	wrapper.MLPredictionsInc("Benign")
	wrapper.MLPredictionsInc("Benign")
	wrapper.MLPredictionsInc("Malignant")
	if v := testutil.ToFloat64(metrics.MLPredictions.WithLabelValues("Benign")); v != 2 {
		t.Errorf("Expected 2 benign predictions, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.MLPredictions.WithLabelValues("Malignant")); v != 1 {
		t.Errorf("Expected 1 malignant prediction, got %f", v)
	}

	wrapper.MLFailuresInc("caller")
	wrapper.MLFailuresInc("internal")
	if v := testutil.ToFloat64(metrics.MLFailures.WithLabelValues("caller")); v != 1 {
		t.Errorf("Expected 1 caller failure, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.ErrorsTotal); v != 1 {
		t.Errorf("Only internal failures should count as errors, got %f", v)
	}

	wrapper.MLValidationFailuresInc()
	if v := testutil.ToFloat64(metrics.MLValidationFailures); v != 1 {
		t.Errorf("Expected 1 validation failure, got %f", v)
	}

	wrapper.MLTypicalRangeWarningsInc("mean radius")
	if v := testutil.ToFloat64(metrics.MLTypicalRangeWarnings.WithLabelValues("mean radius")); v != 1 {
		t.Errorf("Expected 1 typical range warning, got %f", v)
	}

	wrapper.MLModelAgeSet(3600.0)
	if v := testutil.ToFloat64(metrics.MLModelAge); v != 3600.0 {
		t.Errorf("Expected model age 3600.0, got %f", v)
	}

	wrapper.MLReadySet(true)
	if v := testutil.ToFloat64(metrics.MLReady); v != 1 {
		t.Errorf("Expected ready gauge 1, got %f", v)
	}
	wrapper.MLReadySet(false)
	if v := testutil.ToFloat64(metrics.MLReady); v != 0 {
		t.Errorf("Expected ready gauge 0, got %f", v)
	}

	wrapper.MLArtifactLoadFailuresInc()
	if v := testutil.ToFloat64(metrics.MLArtifactLoadFailures); v != 1 {
		t.Errorf("Expected 1 artifact load failure, got %f", v)
	}

	wrapper.MLLatencyObserve(0.002)
	wrapper.MLPredictionScoresObserve(0.75)
}

func TestMetricsWrapper_HistogramCounts(t *testing.T) {
	_, wrapper, registry := newTestWrapper()

	for _, v := range []float64{0.125, 0.25, 0.5} {
		wrapper.MLLatencyObserve(v)
	}

	expected := `
# HELP ml_latency_seconds Prediction latency in seconds (validation to result)
# TYPE ml_latency_seconds histogram
ml_latency_seconds_bucket{le="0.0001"} 0
ml_latency_seconds_bucket{le="0.0005"} 0
ml_latency_seconds_bucket{le="0.001"} 0
ml_latency_seconds_bucket{le="0.005"} 0
ml_latency_seconds_bucket{le="0.01"} 0
ml_latency_seconds_bucket{le="0.025"} 0
ml_latency_seconds_bucket{le="0.05"} 0
ml_latency_seconds_bucket{le="0.1"} 0
ml_latency_seconds_bucket{le="0.25"} 2
ml_latency_seconds_bucket{le="0.5"} 3
ml_latency_seconds_bucket{le="1"} 3
ml_latency_seconds_bucket{le="+Inf"} 3
ml_latency_seconds_sum 0.875
ml_latency_seconds_count 3
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "ml_latency_seconds"); err != nil {
		t.Errorf("Unexpected latency histogram: %v", err)
	}
}

func TestMetricsWrapper_HTTPAndAudit(t *testing.T) {
	metrics, wrapper, _ := newTestWrapper()

	wrapper.HTTPRequestObserve("/predict", "POST", 200, 0.01)
	wrapper.HTTPRequestObserve("/predict", "POST", 400, 0.002)
	wrapper.HTTPRequestObserve("/predict", "POST", 200, 0.01)

	if v := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/predict", "POST", "200")); v != 2 {
		t.Errorf("Expected 2 successful requests, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/predict", "POST", "400")); v != 1 {
		t.Errorf("Expected 1 bad request, got %f", v)
	}

	ws := wrapper.WSConnections()
	ws.Add(1)
	ws.Add(1)
	ws.Add(-1)
	if v := testutil.ToFloat64(metrics.WSConnections); v != 1 {
		t.Errorf("Expected 1 open websocket, got %f", v)
	}
	wrapper.WSMessagesInc()
	if v := testutil.ToFloat64(metrics.WSMessages); v != 1 {
		t.Errorf("Expected 1 websocket message, got %f", v)
	}

	wrapper.AuditWritesInc()
	wrapper.AuditFailuresInc()
	if v := testutil.ToFloat64(metrics.AuditWrites); v != 1 {
		t.Errorf("Expected 1 audit write, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.ErrorsTotal); v != 1 {
		t.Errorf("Expected audit failure to count as an error, got %f", v)
	}
}

func TestMetricsWrapper_FeatureDrift(t *testing.T) {
	metrics, wrapper, _ := newTestWrapper()

	wrapper.MLFeatureDriftSet("mean radius", 0.4)
	wrapper.MLFeatureDriftSet("mean radius", 1.25)
	wrapper.MLFeatureDriftSet("mean texture", 0.1)

	if v := testutil.ToFloat64(metrics.MLFeatureDrift.WithLabelValues("mean radius")); v != 1.25 {
		t.Errorf("Expected latest drift score 1.25, got %f", v)
	}
	if n := testutil.CollectAndCount(metrics.MLFeatureDrift); n != 2 {
		t.Errorf("Expected 2 drift series, got %d", n)
	}
}

func TestMetrics_GetErrorRate(t *testing.T) {
	_, wrapper, _ := newTestWrapper()

	if rate := wrapper.ErrorRate(); rate != 0 {
		t.Errorf("Expected 0 error rate with no traffic, got %f", rate)
	}

	for i := 0; i < 3; i++ {
		wrapper.MLPredictionsInc("Benign")
	}
	wrapper.MLFailuresInc("internal")
	wrapper.MLFailuresInc("caller")

	if rate := wrapper.ErrorRate(); rate != 0.25 {
		t.Errorf("Expected error rate 0.25, got %f", rate)
	}
}

func TestGaugeWrapper_DirectUsage(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "Test gauge for unit tests",
	})

	wrapper := &GaugeWrapper{g: gauge}

	wrapper.Set(42.0)
	if v := testutil.ToFloat64(gauge); v != 42.0 {
		t.Errorf("Expected gauge value 42.0, got %f", v)
	}

	wrapper.Add(8.0)
	if v := testutil.ToFloat64(gauge); v != 50.0 {
		t.Errorf("Expected gauge value 50.0 after add, got %f", v)
	}
}

func TestMetricsWrapper_ConcurrentAccess(t *testing.T) {
	metrics, wrapper, _ := newTestWrapper()

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				wrapper.MLPredictionsInc("Malignant")
				wrapper.MLLatencyObserve(0.01)
				wrapper.MLTypicalRangeWarningsInc("mean texture")
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	expected := 1000.0
	if v := testutil.ToFloat64(metrics.MLPredictions.WithLabelValues("Malignant")); v != expected {
		t.Errorf("Expected %f predictions after concurrent access, got %f", expected, v)
	}
	if v := testutil.ToFloat64(metrics.MLTypicalRangeWarnings.WithLabelValues("mean texture")); v != expected {
		t.Errorf("Expected %f warnings after concurrent access, got %f", expected, v)
	}
}

func TestMetricsWrapper_NilGuard(t *testing.T) {
	wrapper := &MetricsWrapper{m: nil}

	// NewWrapper never builds a wrapper like this; dereferencing it must panic.
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic when accessing nil metrics")
		}
	}()

	wrapper.MLPredictionsInc("Benign")
}

func BenchmarkMetricsWrapper_MLPredictionsInc(b *testing.B) {
	_, wrapper, _ := newTestWrapper()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wrapper.MLPredictionsInc("Benign")
	}
}

func BenchmarkMetricsWrapper_MLLatencyObserve(b *testing.B) {
	_, wrapper, _ := newTestWrapper()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wrapper.MLLatencyObserve(0.01)
	}
}
