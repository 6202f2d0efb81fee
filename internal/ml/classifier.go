package ml

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Class indices emitted by the classifier.
const (
	ClassMalignant = 0
	ClassBenign    = 1
)

// Classifier maps a scaled feature vector to a class index and per-class probabilities
// index-aligned with {malignant, benign}.
type Classifier interface {
	Predict(x []float64) (int, error)
	PredictProba(x []float64) ([]float64, error)
	Dim() int
}

// LogisticRegression is a binary logistic model over scaled features.
type LogisticRegression struct {
	Coef      []float64
	Intercept float64
}

// NewLogisticRegression returns a model with the given weights.
func NewLogisticRegression(coef []float64, intercept float64) (*LogisticRegression, error) {
	if len(coef) == 0 {
		return nil, fmt.Errorf("logistic regression has no coefficients")
	}
	for i, c := range coef {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("coefficient %d is not finite", i)
		}
	}
	if math.IsNaN(intercept) || math.IsInf(intercept, 0) {
		return nil, fmt.Errorf("intercept is not finite")
	}
	return &LogisticRegression{Coef: coef, Intercept: intercept}, nil
}

func (m *LogisticRegression) Dim() int { return len(m.Coef) }

// DecisionFunction returns coef·x + intercept.
func (m *LogisticRegression) DecisionFunction(x []float64) (float64, error) {
	if len(x) != len(m.Coef) {
		return 0, fmt.Errorf("classifier expects %d features, got %d", len(m.Coef), len(x))
	}
	return floats.Dot(m.Coef, x) + m.Intercept, nil
}

// Predict returns ClassBenign when the decision value is positive.
func (m *LogisticRegression) Predict(x []float64) (int, error) {
	z, err := m.DecisionFunction(x)
	if err != nil {
		return 0, err
	}
	if z > 0 {
		return ClassBenign, nil
	}
	return ClassMalignant, nil
}

// PredictProba returns [P(malignant), P(benign)].
func (m *LogisticRegression) PredictProba(x []float64) ([]float64, error) {
	z, err := m.DecisionFunction(x)
	if err != nil {
		return nil, err
	}
	p := sigmoid(z)
	return []float64{1 - p, p}, nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

type classifierFile struct {
	Type      string    `json:"type"`
	Classes   []int     `json:"classes"`
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

// classifierDecoders maps the artifact "type" field to a constructor.
var classifierDecoders = map[string]func(classifierFile) (Classifier, error){
	"logistic_regression": func(f classifierFile) (Classifier, error) {
		return NewLogisticRegression(f.Coef, f.Intercept)
	},
}

// DecodeClassifier parses a classifier artifact. Only the binary class layout
// [0, 1] is accepted.
func DecodeClassifier(data []byte) (Classifier, error) {
	var f classifierFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse classifier: %w", err)
	}
	if len(f.Classes) != 0 && (len(f.Classes) != 2 || f.Classes[0] != ClassMalignant || f.Classes[1] != ClassBenign) {
		return nil, fmt.Errorf("unsupported class layout %v, want [0 1]", f.Classes)
	}
	decode, ok := classifierDecoders[f.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported classifier type %q", f.Type)
	}
	return decode(f)
}
