package evaluate

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Report file names written under the output directory.
const (
	SummaryFile     = "evaluation_summary.txt"
	PredictionsFile = "predictions.csv"
	ResultsFile     = "evaluation_results.json"
)

// Reporter writes evaluation results to disk.
type Reporter struct {
	results    *Results
	outputPath string
}

// NewReporter creates a reporter writing under outputPath.
func NewReporter(results *Results, outputPath string) *Reporter {
	return &Reporter{
		results:    results,
		outputPath: outputPath,
	}
}

// GenerateReport writes the summary, per-sample predictions and full JSON results.
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateSummary(); err != nil {
		return err
	}
	if err := r.generatePredictionLog(); err != nil {
		return err
	}
	return r.generateJSONReport()
}

func (r *Reporter) generateSummary() error {
	path := filepath.Join(r.outputPath, SummaryFile)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	PrintSummary(file, r.results)

	log.Info().Str("file", path).Msg("summary report generated")
	return nil
}

func (r *Reporter) generatePredictionLog() error {
	path := filepath.Join(r.outputPath, PredictionsFile)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create prediction log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{"row", "label", "predicted", "diagnosis", "confidence", "malignant", "correct", "rejected"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, o := range r.results.Outcomes {
		record := []string{
			strconv.Itoa(o.Row),
			strconv.Itoa(o.Label),
			strconv.Itoa(o.Predicted),
			o.Diagnosis,
			strconv.FormatFloat(o.Confidence, 'f', 2, 64),
			strconv.FormatFloat(o.Malignant, 'f', 2, 64),
			strconv.FormatBool(o.Correct()),
			o.Rejected,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write prediction log: %w", err)
	}

	log.Info().Str("file", path).Msg("prediction log generated")
	return nil
}

func (r *Reporter) generateJSONReport() error {
	path := filepath.Join(r.outputPath, ResultsFile)

	data, err := json.MarshalIndent(r.results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", path).Msg("JSON report generated")
	return nil
}

// PrintSummary writes a human-readable summary of res.
func PrintSummary(w io.Writer, res *Results) {
	c := res.Confusion

	fmt.Fprintf(w, "MODEL EVALUATION SUMMARY\n")
	fmt.Fprintf(w, "========================\n\n")
	fmt.Fprintf(w, "Dataset: %s\n", res.Source)
	fmt.Fprintf(w, "Model Version: %s\n", res.ModelVersion)
	fmt.Fprintf(w, "Samples: %d (%d evaluated, %d rejected)\n\n", res.Samples, res.Evaluated, res.Rejected)

	fmt.Fprintf(w, "CONFUSION MATRIX (positive = Malignant)\n")
	fmt.Fprintf(w, "---------------------------------------\n")
	fmt.Fprintf(w, "%-22s %10s %10s\n", "", "pred M", "pred B")
	fmt.Fprintf(w, "%-22s %10d %10d\n", "actual Malignant", c.TruePositive, c.FalseNegative)
	fmt.Fprintf(w, "%-22s %10d %10d\n\n", "actual Benign", c.FalsePositive, c.TrueNegative)

	fmt.Fprintf(w, "CLASSIFICATION METRICS\n")
	fmt.Fprintf(w, "----------------------\n")
	fmt.Fprintf(w, "Accuracy: %.2f%%\n", res.Accuracy*100)
	fmt.Fprintf(w, "Precision: %.2f%%\n", res.Precision*100)
	fmt.Fprintf(w, "Recall (Sensitivity): %.2f%%\n", res.Recall*100)
	fmt.Fprintf(w, "Specificity: %.2f%%\n", res.Specificity*100)
	fmt.Fprintf(w, "F1 Score: %.4f\n\n", res.F1)

	fmt.Fprintf(w, "CONFIDENCE\n")
	fmt.Fprintf(w, "----------\n")
	fmt.Fprintf(w, "Mean: %.2f%%\n", res.MeanConfidence)
	fmt.Fprintf(w, "Median: %.2f%%\n", res.MedianConfidence)
}
