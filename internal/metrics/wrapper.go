package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsWrapper adapts Metrics to the narrow interfaces used by the inference
// pipeline, the HTTP server and the audit store.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

// Metrics returns the underlying collectors.
func (w *MetricsWrapper) Metrics() *Metrics {
	return w.m
}

func (w *MetricsWrapper) MLPredictionsInc(diagnosis string) {
	w.m.MLPredictions.WithLabelValues(diagnosis).Inc()
}

func (w *MetricsWrapper) MLFailuresInc(kind string) {
	w.m.MLFailures.WithLabelValues(kind).Inc()
	if kind == "internal" {
		w.m.ErrorsTotal.Inc()
	}
}

func (w *MetricsWrapper) MLValidationFailuresInc() {
	w.m.MLValidationFailures.Inc()
}

func (w *MetricsWrapper) MLTypicalRangeWarningsInc(feature string) {
	w.m.MLTypicalRangeWarnings.WithLabelValues(feature).Inc()
}

func (w *MetricsWrapper) MLLatencyObserve(v float64) {
	w.m.MLLatency.Observe(v)
}

func (w *MetricsWrapper) MLPredictionScoresObserve(v float64) {
	w.m.MLPredictionScores.Observe(v)
}

func (w *MetricsWrapper) MLModelAgeSet(v float64) {
	w.m.MLModelAge.Set(v)
}

func (w *MetricsWrapper) MLReadySet(ready bool) {
	if ready {
		w.m.MLReady.Set(1)
		return
	}
	w.m.MLReady.Set(0)
}

func (w *MetricsWrapper) MLArtifactLoadFailuresInc() {
	w.m.MLArtifactLoadFailures.Inc()
	w.m.ErrorsTotal.Inc()
}

func (w *MetricsWrapper) MLFeatureDriftSet(feature string, score float64) {
	w.m.MLFeatureDrift.WithLabelValues(feature).Set(score)
}

// HTTPRequestObserve records one finished HTTP request.
func (w *MetricsWrapper) HTTPRequestObserve(route, method string, code int, seconds float64) {
	w.m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	w.m.HTTPDuration.WithLabelValues(route).Observe(seconds)
}

func (w *MetricsWrapper) WSConnections() Gauge {
	return &GaugeWrapper{w.m.WSConnections}
}

func (w *MetricsWrapper) WSMessagesInc() {
	w.m.WSMessages.Inc()
}

func (w *MetricsWrapper) AuditWritesInc() {
	w.m.AuditWrites.Inc()
}

func (w *MetricsWrapper) AuditFailuresInc() {
	w.m.AuditFailures.Inc()
	w.m.ErrorsTotal.Inc()
}

func (w *MetricsWrapper) ErrorRate() float64 {
	return w.m.GetErrorRate()
}

// Gauge is the subset of prometheus.Gauge handed to callers that should not see
// the full collector.
type Gauge interface {
	Set(float64)
	Add(float64)
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *GaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}
