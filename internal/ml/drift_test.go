package ml

import (
	"math"
	"sync"
	"testing"

	"cancer-predictor/internal/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDriftMetrics struct {
	mu     sync.Mutex
	scores map[string]float64
}

func (m *recordingDriftMetrics) MLFeatureDriftSet(feature string, score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scores == nil {
		m.scores = make(map[string]float64)
	}
	m.scores[feature] = score
}

func observeN(d *DriftMonitor, name string, v float64, n int) {
	for i := 0; i < n; i++ {
		d.Observe(map[string]float64{name: v})
	}
}

func TestDriftMonitor_Window(t *testing.T) {
	m := &recordingDriftMetrics{}
	d := NewDriftMonitor([]string{"x"}, map[string]Baseline{"x": {Mean: 10, StdDev: 2}},
		DriftConfig{Window: 10, MinSamples: 5, Threshold: 1, Metrics: m})

	observeN(d, "x", 10, 4)
	st := d.Status()
	require.Len(t, st.Features, 1)
	assert.Equal(t, "insufficient_data", st.Features[0].Severity)
	assert.Empty(t, m.scores)

	observeN(d, "x", 10, 1)
	st = d.Status()
	assert.Equal(t, 0.0, st.Features[0].Score)
	assert.Equal(t, "none", st.Features[0].Severity)
	assert.Empty(t, st.Drifting)

	// Half the window shifted by three standard deviations.
	observeN(d, "x", 16, 5)
	st = d.Status()
	assert.Equal(t, 10, st.Features[0].Samples)
	assert.Equal(t, 13.0, st.Features[0].RecentMean)
	assert.Equal(t, 1.5, st.Features[0].Score)
	assert.Equal(t, "medium", st.Features[0].Severity)
	assert.Equal(t, []string{"x"}, st.Drifting)

	// The oldest samples are overwritten first.
	observeN(d, "x", 16, 5)
	st = d.Status()
	assert.Equal(t, 10, st.Features[0].Samples)
	assert.Equal(t, 3.0, st.Features[0].Score)
	assert.Equal(t, "high", st.Features[0].Severity)
	assert.Equal(t, 3.0, m.scores["x"])

	d.Reset()
	st = d.Status()
	assert.Zero(t, st.Features[0].Samples)
	assert.Empty(t, st.Drifting)
}

func TestDriftMonitor_IgnoresUnknownNames(t *testing.T) {
	d := NewDriftMonitor([]string{"x"}, map[string]Baseline{"x": {Mean: 0, StdDev: 1}}, DriftConfig{})
	d.Observe(map[string]float64{"y": 5})

	st := d.Status()
	assert.Equal(t, DefaultDriftWindow, st.Window)
	assert.Equal(t, DefaultDriftThreshold, st.Threshold)
	assert.Zero(t, st.Features[0].Samples)
}

func TestBaselineFromScaler(t *testing.T) {
	std, err := NewStandardScaler([]float64{1, 2}, []float64{0.5, 4})
	require.NoError(t, err)
	b, ok := BaselineFromScaler([]string{"a", "b"}, std)
	require.True(t, ok)
	assert.Equal(t, Baseline{Mean: 2, StdDev: 4}, b["b"])

	mm, err := NewMinMaxScaler([]float64{0, 10}, []float64{12, 20})
	require.NoError(t, err)
	b, ok = BaselineFromScaler([]string{"a", "b"}, mm)
	require.True(t, ok)
	assert.Equal(t, 6.0, b["a"].Mean)
	assert.InDelta(t, 12/math.Sqrt(12), b["a"].StdDev, 1e-12)

	_, ok = BaselineFromScaler([]string{"a"}, failingScaler{})
	assert.False(t, ok)
}

func TestEngine_FeedsDriftMonitor(t *testing.T) {
	artifacts, err := LoadArtifacts(PathsInDir(testModelDir))
	require.NoError(t, err)

	baseline, ok := artifacts.Baseline()
	require.True(t, ok)
	monitor := NewDriftMonitor(artifacts.FeatureOrder(), baseline, DriftConfig{Window: 5, MinSamples: 1})

	engine, err := NewEngine(artifacts, features.Default(), EngineOptions{Drift: monitor})
	require.NoError(t, err)

	_, err = engine.Predict(sampleInput())
	require.NoError(t, err)
	_, err = engine.Predict(NewInput(map[string]any{}))
	require.Error(t, err)

	st := monitor.Status()
	require.Len(t, st.Features, len(artifacts.FeatureOrder()))
	for _, fd := range st.Features {
		assert.Equal(t, 1, fd.Samples, fd.Feature)
	}
	assert.Equal(t, 14.5, st.Features[0].RecentMean)
}
