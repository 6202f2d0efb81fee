package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize_Empty(t *testing.T) {
	s, err := Summarize(nil)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, s)
}

func TestSummarize(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var records []PredictionRecord
	for i := 0; i < 10; i++ {
		d := "Benign"
		if i%4 == 0 {
			d = "Malignant"
		}
		records = append(records, PredictionRecord{
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			Diagnosis:  d,
			Confidence: float64(50 + 5*i),
			Advisories: i % 3,
		})
	}

	s, err := Summarize(records)
	require.NoError(t, err)

	assert.Equal(t, 10, s.Count)
	assert.Equal(t, 3, s.Malignant)
	assert.Equal(t, 7, s.Benign)
	assert.Equal(t, 6, s.WithAdvisories)
	assert.Equal(t, 72.5, s.MeanConfidence)
	assert.Equal(t, 72.5, s.MedianConfidence)
	assert.Equal(t, 90.0, s.P90Confidence)
	assert.InDelta(t, 14.36, s.StdDevConfidence, 0.01)
	require.NotNil(t, s.First)
	require.NotNil(t, s.Last)
	assert.True(t, s.First.Equal(base))
	assert.True(t, s.Last.Equal(base.Add(9*time.Minute)))
}

func TestSummarize_SingleRecord(t *testing.T) {
	s, err := Summarize([]PredictionRecord{{Diagnosis: "Malignant", Confidence: 99.1}})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Count)
	assert.Equal(t, 99.1, s.MeanConfidence)
	assert.Equal(t, 99.1, s.P90Confidence)
	assert.Equal(t, 0.0, s.StdDevConfidence)
}
