package ml

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Scaler normalises a raw feature vector with parameters fixed at training time.
type Scaler interface {
	Transform(x []float64) ([]float64, error)
	Dim() int
}

// StandardScaler applies (x - mean) / scale per column.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// NewStandardScaler checks the parameters and returns a scaler.
func NewStandardScaler(mean, scale []float64) (*StandardScaler, error) {
	if len(mean) == 0 {
		return nil, fmt.Errorf("standard scaler has no columns")
	}
	if len(mean) != len(scale) {
		return nil, fmt.Errorf("standard scaler mean has %d columns, scale has %d", len(mean), len(scale))
	}
	for i, s := range scale {
		if s == 0 {
			return nil, fmt.Errorf("standard scaler column %d has zero scale", i)
		}
	}
	return &StandardScaler{Mean: mean, Scale: scale}, nil
}

func (s *StandardScaler) Dim() int { return len(s.Mean) }

func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("scaler expects %d features, got %d", len(s.Mean), len(x))
	}
	out := make([]float64, len(x))
	floats.SubTo(out, x, s.Mean)
	floats.Div(out, s.Scale)
	return out, nil
}

// MinMaxScaler maps each column onto [0, 1] using the training min and max.
type MinMaxScaler struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`

	span []float64
}

// NewMinMaxScaler checks the parameters and returns a scaler.
func NewMinMaxScaler(min, max []float64) (*MinMaxScaler, error) {
	if len(min) == 0 {
		return nil, fmt.Errorf("minmax scaler has no columns")
	}
	if len(min) != len(max) {
		return nil, fmt.Errorf("minmax scaler min has %d columns, max has %d", len(min), len(max))
	}
	span := make([]float64, len(min))
	floats.SubTo(span, max, min)
	for i, w := range span {
		if w <= 0 {
			return nil, fmt.Errorf("minmax scaler column %d has non-positive range", i)
		}
	}
	return &MinMaxScaler{Min: min, Max: max, span: span}, nil
}

func (s *MinMaxScaler) Dim() int { return len(s.Min) }

func (s *MinMaxScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Min) {
		return nil, fmt.Errorf("scaler expects %d features, got %d", len(s.Min), len(x))
	}
	out := make([]float64, len(x))
	floats.SubTo(out, x, s.Min)
	floats.Div(out, s.span)
	return out, nil
}

type scalerFile struct {
	Type  string    `json:"type"`
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
	Min   []float64 `json:"min"`
	Max   []float64 `json:"max"`
}

// scalerDecoders maps the artifact "type" field to a constructor.
var scalerDecoders = map[string]func(scalerFile) (Scaler, error){
	"standard": func(f scalerFile) (Scaler, error) {
		return NewStandardScaler(f.Mean, f.Scale)
	},
	"minmax": func(f scalerFile) (Scaler, error) {
		return NewMinMaxScaler(f.Min, f.Max)
	},
}

// DecodeScaler parses a scaler artifact.
func DecodeScaler(data []byte) (Scaler, error) {
	var f scalerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse scaler: %w", err)
	}
	if f.Type == "" {
		f.Type = "standard"
	}
	decode, ok := scalerDecoders[f.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported scaler type %q", f.Type)
	}
	return decode(f)
}
