package ml

import (
	"strconv"
	"time"
)

// Diagnosis is the human-readable class label.
type Diagnosis string

const (
	Malignant Diagnosis = "Malignant"
	Benign    Diagnosis = "Benign"
)

// DiagnosisFor maps a class index to its label. Only ClassBenign is benign.
func DiagnosisFor(class int) Diagnosis {
	if class == ClassBenign {
		return Benign
	}
	return Malignant
}

// ClassLabels lists the classes in index order for display.
func ClassLabels() []string {
	return []string{"Malignant (0)", "Benign (1)"}
}

// Probabilities holds per-class percentages, each rounded to 2 decimals on its own.
// Their sum may differ from 100 by a rounding epsilon.
type Probabilities struct {
	Malignant float64 `json:"malignant"`
	Benign    float64 `json:"benign"`
}

// TimestampLayout is the wire format of Result.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// Timestamp marshals as TimestampLayout.
type Timestamp time.Time

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(time.Time(t).Format(TimestampLayout))), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return err
	}
	parsed, err := time.ParseInLocation(TimestampLayout, s, time.Local)
	if err != nil {
		return err
	}
	*t = Timestamp(parsed)
	return nil
}

// Time returns the underlying time.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// Result is the outcome of one prediction.
type Result struct {
	Diagnosis      Diagnosis     `json:"diagnosis"`
	PredictionCode int           `json:"prediction_code"`
	Confidence     float64       `json:"confidence"`
	Probabilities  Probabilities `json:"probabilities"`
	Timestamp      Timestamp     `json:"timestamp"`
	Advisories     []Advisory    `json:"advisories,omitempty"`
}

func newResult(class int, proba []float64, now time.Time) Result {
	return Result{
		Diagnosis:      DiagnosisFor(class),
		PredictionCode: class,
		Confidence:     round2(proba[class] * 100),
		Probabilities: Probabilities{
			Malignant: round2(proba[ClassMalignant] * 100),
			Benign:    round2(proba[ClassBenign] * 100),
		},
		Timestamp: Timestamp(now),
	}
}

// round2 rounds to 2 decimals using correctly rounded decimal conversion, so ties
// are decided on the exact binary value rather than on x*100.
func round2(x float64) float64 {
	f, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', 2, 64), 64)
	if err != nil {
		return x
	}
	return f
}
