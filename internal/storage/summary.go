package storage

import (
	"time"

	"github.com/montanaflynn/stats"
)

// Summary aggregates a window of audit records.
type Summary struct {
	Count            int        `json:"count"`
	Benign           int        `json:"benign"`
	Malignant        int        `json:"malignant"`
	WithAdvisories   int        `json:"with_advisories"`
	MeanConfidence   float64    `json:"mean_confidence"`
	MedianConfidence float64    `json:"median_confidence"`
	P90Confidence    float64    `json:"p90_confidence"`
	StdDevConfidence float64    `json:"stddev_confidence"`
	First            *time.Time `json:"first,omitempty"`
	Last             *time.Time `json:"last,omitempty"`
}

// Summarize computes counts and confidence statistics. An empty slice yields a
// zero Summary.
func Summarize(records []PredictionRecord) (Summary, error) {
	var s Summary
	if len(records) == 0 {
		return s, nil
	}

	data := make(stats.Float64Data, 0, len(records))
	first, last := records[0].Timestamp, records[0].Timestamp
	for _, r := range records {
		switch r.Diagnosis {
		case "Benign":
			s.Benign++
		case "Malignant":
			s.Malignant++
		}
		if r.Advisories > 0 {
			s.WithAdvisories++
		}
		if r.Timestamp.Before(first) {
			first = r.Timestamp
		}
		if r.Timestamp.After(last) {
			last = r.Timestamp
		}
		data = append(data, r.Confidence)
	}
	s.Count = len(records)
	s.First, s.Last = &first, &last

	var err error
	if s.MeanConfidence, err = stats.Mean(data); err != nil {
		return s, err
	}
	if s.MedianConfidence, err = stats.Median(data); err != nil {
		return s, err
	}
	if s.P90Confidence, err = stats.Percentile(data, 90); err != nil {
		// Percentile needs enough samples for the rank; fall back to the max.
		if s.P90Confidence, err = stats.Max(data); err != nil {
			return s, err
		}
	}
	if s.StdDevConfidence, err = stats.StandardDeviation(data); err != nil {
		return s, err
	}

	s.MeanConfidence, _ = stats.Round(s.MeanConfidence, 2)
	s.MedianConfidence, _ = stats.Round(s.MedianConfidence, 2)
	s.P90Confidence, _ = stats.Round(s.P90Confidence, 2)
	s.StdDevConfidence, _ = stats.Round(s.StdDevConfidence, 2)
	return s, nil
}
