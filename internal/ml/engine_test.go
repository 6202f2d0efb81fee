package ml

import (
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"cancer-predictor/internal/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModelDir = "testdata/model"

var fixedNow = time.Date(2024, 3, 1, 9, 30, 15, 0, time.Local)

func sampleInput() Input {
	var in Input
	in.Set("mean radius", 14.5)
	in.Set("mean texture", 18.2)
	in.Set("mean perimeter", 95.3)
	in.Set("mean compactness", 0.15)
	in.Set("mean concavity", 0.08)
	return in
}

func newTestEngine(t *testing.T, metrics MetricsInterface, auditor Auditor) *Engine {
	t.Helper()
	artifacts, err := LoadArtifacts(PathsInDir(testModelDir))
	require.NoError(t, err)
	engine, err := NewEngine(artifacts, features.Default(), EngineOptions{
		Metrics: metrics,
		Auditor: auditor,
		Now:     func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return engine
}

func TestEngine_GoldenPredictions(t *testing.T) {
	engine := newTestEngine(t, &MockMetrics{}, nil)

	tests := []struct {
		name       string
		values     []float64
		diagnosis  Diagnosis
		code       int
		confidence float64
		malignant  float64
		benign     float64
	}{
		{"borderline benign", []float64{14.5, 18.2, 95.3, 0.15, 0.08}, Benign, 1, 56.44, 43.56, 56.44},
		{"small smooth tumor", []float64{10.0, 14.0, 65.0, 0.05, 0.02}, Benign, 1, 99.75, 0.25, 99.75},
		{"large irregular tumor", []float64{20.0, 25.0, 130.0, 0.2, 0.2}, Malignant, 0, 99.91, 99.91, 0.09},
		{"training mean", []float64{14.13, 19.29, 91.97, 0.104, 0.0888}, Benign, 1, 64.57, 35.43, 64.57},
	}

	order := engine.Artifacts().FeatureOrder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in Input
			for i, name := range order {
				in.Set(name, tt.values[i])
			}

			res, err := engine.Predict(in)
			require.NoError(t, err)
			assert.Equal(t, tt.diagnosis, res.Diagnosis)
			assert.Equal(t, tt.code, res.PredictionCode)
			assert.Equal(t, tt.confidence, res.Confidence)
			assert.Equal(t, tt.malignant, res.Probabilities.Malignant)
			assert.Equal(t, tt.benign, res.Probabilities.Benign)
			assert.InDelta(t, 100, res.Probabilities.Malignant+res.Probabilities.Benign, 0.1)
			assert.Equal(t, fixedNow, res.Timestamp.Time())
		})
	}
}

func TestEngine_DiagnosisMatchesCode(t *testing.T) {
	engine := newTestEngine(t, nil, nil)

	for radius := 1.0; radius < 50; radius += 3.5 {
		in := sampleInput()
		in.Set("mean radius", radius)
		res, err := engine.Predict(in)
		require.NoError(t, err)
		if res.PredictionCode == ClassBenign {
			assert.Equal(t, Benign, res.Diagnosis)
		} else {
			assert.Equal(t, Malignant, res.Diagnosis)
		}
		assert.InDelta(t, 100, res.Probabilities.Malignant+res.Probabilities.Benign, 0.1)
		assert.GreaterOrEqual(t, res.Confidence, 50.0)
	}
}

func TestEngine_Idempotent(t *testing.T) {
	engine := newTestEngine(t, nil, nil)

	first, err := engine.Predict(sampleInput())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := engine.Predict(sampleInput())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEngine_InputOrderDoesNotMatter(t *testing.T) {
	engine := newTestEngine(t, nil, nil)

	var reversed Input
	in := sampleInput()
	names := in.Names()
	for i := len(names) - 1; i >= 0; i-- {
		v, _ := in.Get(names[i])
		reversed.Set(names[i], v)
	}

	a, err := engine.Predict(in)
	require.NoError(t, err)
	b, err := engine.Predict(reversed)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEngine_OutOfRangeIsCallerError(t *testing.T) {
	metrics := &MockMetrics{}
	engine := newTestEngine(t, metrics, nil)

	in := sampleInput()
	in.Set("mean radius", 999)

	_, err := engine.Predict(in)
	require.Error(t, err)

	var perr *PredictionError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, CallerError, perr.Kind)
	assert.Equal(t, "Mean Radius must be between 0 and 50", perr.Reason)
	assert.True(t, IsCallerError(err))
	assert.Equal(t, 1, metrics.failures["caller"])
	assert.Equal(t, 1, metrics.validationFailures)
	assert.Equal(t, 0, metrics.totalPredictions())
}

func TestEngine_StringValuesAreConverted(t *testing.T) {
	engine := newTestEngine(t, nil, nil)

	in := sampleInput()
	in.Set("mean radius", " 14.5 ")
	in.Set("mean texture", json.Number("18.2"))

	res, err := engine.Predict(in)
	require.NoError(t, err)
	assert.Equal(t, 56.44, res.Confidence)
}

func TestEngine_AdvisoriesDoNotBlock(t *testing.T) {
	metrics := &MockMetrics{}
	engine := newTestEngine(t, metrics, nil)

	in := sampleInput()
	in.Set("mean radius", 5.0)

	res, err := engine.Predict(in)
	require.NoError(t, err)
	require.Len(t, res.Advisories, 1)
	assert.Equal(t, "mean radius", res.Advisories[0].Feature)
	assert.Equal(t, 6.0, res.Advisories[0].Low)
	assert.Equal(t, 28.0, res.Advisories[0].High)
	assert.Equal(t, 1, metrics.typicalWarnings["mean radius"])
}

type failingScaler struct {
	dim int
	err error
}

func (s failingScaler) Transform([]float64) ([]float64, error) { return nil, s.err }
func (s failingScaler) Dim() int                                { return s.dim }

type panickingScaler struct{ dim int }

func (s panickingScaler) Transform([]float64) ([]float64, error) { panic("corrupt scaler state") }
func (s panickingScaler) Dim() int                                { return s.dim }

type fixedClassifier struct {
	dim   int
	class int
	proba []float64
}

func (c fixedClassifier) Predict([]float64) (int, error)              { return c.class, nil }
func (c fixedClassifier) PredictProba([]float64) ([]float64, error) { return c.proba, nil }
func (c fixedClassifier) Dim() int                                    { return c.dim }

func engineWith(t *testing.T, classifier Classifier, scaler Scaler, metrics MetricsInterface) *Engine {
	t.Helper()
	order := features.Default().Names()
	artifacts, err := NewArtifacts(classifier, scaler, order, ModelMetadata{})
	require.NoError(t, err)
	engine, err := NewEngine(artifacts, features.Default(), EngineOptions{Metrics: metrics})
	require.NoError(t, err)
	return engine
}

func TestEngine_InternalErrors(t *testing.T) {
	scalerErr := errors.New("scaler exploded")
	okClassifier := fixedClassifier{dim: 5, class: 1, proba: []float64{0.2, 0.8}}
	okScaler, err := NewStandardScaler([]float64{0, 0, 0, 0, 0}, []float64{1, 1, 1, 1, 1})
	require.NoError(t, err)

	tests := []struct {
		name       string
		classifier Classifier
		scaler     Scaler
		cause      error
	}{
		{"scaler error", okClassifier, failingScaler{dim: 5, err: scalerErr}, scalerErr},
		{"scaler panic", okClassifier, panickingScaler{dim: 5}, nil},
		{"class index out of range", fixedClassifier{dim: 5, class: 2, proba: []float64{0.2, 0.8}}, okScaler, nil},
		{"wrong probability count", fixedClassifier{dim: 5, class: 0, proba: []float64{1}}, okScaler, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := &MockMetrics{}
			engine := engineWith(t, tt.classifier, tt.scaler, metrics)

			_, err := engine.Predict(sampleInput())
			require.Error(t, err)

			var perr *PredictionError
			require.True(t, errors.As(err, &perr))
			assert.True(t, perr.Internal())
			assert.Equal(t, "Failed to make prediction", perr.Error())
			assert.False(t, IsCallerError(err))
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
			}
			assert.Equal(t, 1, metrics.failures["internal"])
		})
	}
}

func TestEngine_FixedClassifierLabels(t *testing.T) {
	okScaler, err := NewStandardScaler([]float64{0, 0, 0, 0, 0}, []float64{1, 1, 1, 1, 1})
	require.NoError(t, err)

	engine := engineWith(t, fixedClassifier{dim: 5, class: 0, proba: []float64{0.876543, 0.123457}}, okScaler, nil)
	res, err := engine.Predict(sampleInput())
	require.NoError(t, err)
	assert.Equal(t, Malignant, res.Diagnosis)
	assert.Equal(t, 87.65, res.Confidence)
	assert.Equal(t, 87.65, res.Probabilities.Malignant)
	assert.Equal(t, 12.35, res.Probabilities.Benign)
}

type recordingAuditor struct {
	mu      sync.Mutex
	results []Result
	err     error
}

func (a *recordingAuditor) Audit(result Result, _ ModelMetadata) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = append(a.results, result)
	return a.err
}

func TestEngine_Auditor(t *testing.T) {
	auditor := &recordingAuditor{}
	engine := newTestEngine(t, nil, auditor)

	_, err := engine.Predict(sampleInput())
	require.NoError(t, err)

	bad := sampleInput()
	bad.Set("mean radius", -1)
	_, err = engine.Predict(bad)
	require.Error(t, err)

	require.Len(t, auditor.results, 1)
	assert.Equal(t, Benign, auditor.results[0].Diagnosis)

	auditor.err = errors.New("disk full")
	_, err = engine.Predict(sampleInput())
	assert.NoError(t, err)
}

func TestEngine_Concurrency(t *testing.T) {
	metrics := &MockMetrics{}
	engine := newTestEngine(t, metrics, nil)

	const goroutines = 10
	const calls = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				res, err := engine.Predict(sampleInput())
				if err != nil || res.Confidence != 56.44 {
					t.Errorf("unexpected result %+v, %v", res, err)
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines*calls, metrics.totalPredictions())
}

func TestNewEngine_RegistryMismatch(t *testing.T) {
	artifacts, err := LoadArtifacts(PathsInDir(testModelDir))
	require.NoError(t, err)

	reg, err := features.NewRegistry(features.Spec{Name: "mean radius", Max: 50})
	require.NoError(t, err)

	_, err = NewEngine(artifacts, reg, EngineOptions{})
	assert.Error(t, err)

	_, err = NewEngine(nil, features.Default(), EngineOptions{})
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestResult_JSON(t *testing.T) {
	res := newResult(ClassBenign, []float64{0.25, 0.75}, fixedNow)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"diagnosis": "Benign",
		"prediction_code": 1,
		"confidence": 75,
		"probabilities": {"malignant": 25, "benign": 75},
		"timestamp": "2024-03-01 09:30:15"
	}`, string(data))

	var decoded Result
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, fixedNow.Equal(decoded.Timestamp.Time()))
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{56.4437, 56.44},
		{99.999, 100},
		{0.004, 0},
		{12.3456, 12.35},
		{2.675, 2.67}, // 2.675 is stored just below the tie
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, round2(tt.in))
	}
	assert.True(t, math.IsNaN(round2(math.NaN())))
}
