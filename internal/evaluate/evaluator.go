package evaluate

import (
	"fmt"
	"math"
	"time"

	"cancer-predictor/internal/ml"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog/log"
)

// Predictor is the part of ml.Engine the evaluator needs.
type Predictor interface {
	Predict(in ml.Input) (ml.Result, error)
}

// Outcome is the prediction made for one sample. Rejected samples carry the
// validation reason and no prediction.
type Outcome struct {
	Row        int     `json:"row"`
	Label      int     `json:"label"`
	Predicted  int     `json:"predicted"`
	Diagnosis  string  `json:"diagnosis,omitempty"`
	Confidence float64 `json:"confidence"`
	Malignant  float64 `json:"malignant"`
	Rejected   string  `json:"rejected,omitempty"`
}

// Correct reports whether the sample was predicted and matches its label.
func (o Outcome) Correct() bool {
	return o.Rejected == "" && o.Predicted == o.Label
}

// Confusion counts predictions with Malignant as the positive class.
type Confusion struct {
	TruePositive  int `json:"true_positive"`
	FalsePositive int `json:"false_positive"`
	TrueNegative  int `json:"true_negative"`
	FalseNegative int `json:"false_negative"`
}

func (c *Confusion) add(label, predicted int) {
	switch {
	case label == ml.ClassMalignant && predicted == ml.ClassMalignant:
		c.TruePositive++
	case label == ml.ClassBenign && predicted == ml.ClassMalignant:
		c.FalsePositive++
	case label == ml.ClassBenign && predicted == ml.ClassBenign:
		c.TrueNegative++
	default:
		c.FalseNegative++
	}
}

// Results holds the evaluation of one model against one dataset. Ratios are in
// [0, 1] and zero when undefined.
type Results struct {
	Source           string    `json:"source"`
	ModelVersion     string    `json:"model_version"`
	Samples          int       `json:"samples"`
	Evaluated        int       `json:"evaluated"`
	Rejected         int       `json:"rejected"`
	Confusion        Confusion `json:"confusion"`
	Accuracy         float64   `json:"accuracy"`
	Precision        float64   `json:"precision"`
	Recall           float64   `json:"recall"`
	Specificity      float64   `json:"specificity"`
	F1               float64   `json:"f1"`
	MeanConfidence   float64   `json:"mean_confidence"`
	MedianConfidence float64   `json:"median_confidence"`
	Duration         float64   `json:"duration_seconds"`
	GeneratedAt      time.Time `json:"generated_at"`
	Outcomes         []Outcome `json:"outcomes"`
}

// Evaluator runs every sample of a dataset through a predictor.
type Evaluator struct {
	predictor    Predictor
	modelVersion string
	now          func() time.Time
}

// NewEvaluator wraps p. modelVersion is only used for reporting.
func NewEvaluator(p Predictor, modelVersion string) *Evaluator {
	return &Evaluator{predictor: p, modelVersion: modelVersion, now: time.Now}
}

// Run evaluates ds. Samples the model rejects are counted and skipped; any other
// prediction failure aborts the run.
func (e *Evaluator) Run(ds *Dataset) (*Results, error) {
	log.Info().
		Str("source", ds.Source).
		Int("samples", len(ds.Samples)).
		Str("model_version", e.modelVersion).
		Msg("starting evaluation")

	start := time.Now()
	res := &Results{
		Source:       ds.Source,
		ModelVersion: e.modelVersion,
		Samples:      len(ds.Samples),
		Outcomes:     make([]Outcome, 0, len(ds.Samples)),
	}

	confidences := make([]float64, 0, len(ds.Samples))
	for _, sample := range ds.Samples {
		out := Outcome{Row: sample.Row, Label: sample.Label, Predicted: -1}

		result, err := e.predictor.Predict(sample.Input)
		if err != nil {
			if !ml.IsCallerError(err) {
				return nil, fmt.Errorf("row %d: %w", sample.Row, err)
			}
			out.Rejected = err.Error()
			res.Rejected++
			res.Outcomes = append(res.Outcomes, out)
			continue
		}

		out.Predicted = result.PredictionCode
		out.Diagnosis = string(result.Diagnosis)
		out.Confidence = result.Confidence
		out.Malignant = result.Probabilities.Malignant
		res.Outcomes = append(res.Outcomes, out)

		res.Evaluated++
		res.Confusion.add(sample.Label, result.PredictionCode)
		confidences = append(confidences, result.Confidence)
	}

	calculateMetrics(res, confidences)
	res.Duration = time.Since(start).Seconds()
	res.GeneratedAt = e.now()

	log.Info().
		Int("evaluated", res.Evaluated).
		Int("rejected", res.Rejected).
		Float64("accuracy", res.Accuracy).
		Float64("recall", res.Recall).
		Msg("evaluation complete")
	return res, nil
}

func calculateMetrics(res *Results, confidences []float64) {
	c := res.Confusion
	res.Accuracy = ratio(c.TruePositive+c.TrueNegative, res.Evaluated)
	res.Precision = ratio(c.TruePositive, c.TruePositive+c.FalsePositive)
	res.Recall = ratio(c.TruePositive, c.TruePositive+c.FalseNegative)
	res.Specificity = ratio(c.TrueNegative, c.TrueNegative+c.FalsePositive)
	res.F1 = ratio(2*c.TruePositive, 2*c.TruePositive+c.FalsePositive+c.FalseNegative)

	if len(confidences) == 0 {
		return
	}
	if mean, err := stats.Mean(confidences); err == nil {
		res.MeanConfidence = round2(mean)
	}
	if median, err := stats.Median(confidences); err == nil {
		res.MedianConfidence = round2(median)
	}
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return round4(float64(num) / float64(den))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
