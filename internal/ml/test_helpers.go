package ml

import "sync"

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu                 sync.Mutex
	predictions        map[string]int
	failures           map[string]int
	validationFailures int
	typicalWarnings    map[string]int
	latencyCount       int
	modelAge           float64
	ready              bool
	loadFailures       int
	predictionScores   []float64
}

func (m *MockMetrics) MLPredictionsInc(diagnosis string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.predictions == nil {
		m.predictions = make(map[string]int)
	}
	m.predictions[diagnosis]++
}

func (m *MockMetrics) MLFailuresInc(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures == nil {
		m.failures = make(map[string]int)
	}
	m.failures[kind]++
}

func (m *MockMetrics) MLValidationFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validationFailures++
}

func (m *MockMetrics) MLTypicalRangeWarningsInc(feature string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.typicalWarnings == nil {
		m.typicalWarnings = make(map[string]int)
	}
	m.typicalWarnings[feature]++
}

func (m *MockMetrics) MLLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencyCount++
}

func (m *MockMetrics) MLPredictionScoresObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictionScores = append(m.predictionScores, v)
}

func (m *MockMetrics) MLModelAgeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAge = v
}

func (m *MockMetrics) MLReadySet(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = v
}

func (m *MockMetrics) MLArtifactLoadFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadFailures++
}

func (m *MockMetrics) totalPredictions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.predictions {
		total += n
	}
	return total
}
