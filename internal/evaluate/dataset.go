// Package evaluate scores a trained model against a labeled dataset offline.
package evaluate

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cancer-predictor/internal/ml"

	"github.com/rs/zerolog/log"
)

// DefaultLabelColumn matches the target column of the scikit-learn export.
const DefaultLabelColumn = "target"

// Sample is one labeled row.
type Sample struct {
	Row   int
	Input ml.Input
	Label int
}

// Dataset holds labeled samples in file order.
type Dataset struct {
	Source  string
	Samples []Sample
}

// Load reads a .csv file, or a .json/.jsonl file holding one object per sample.
func Load(path, labelColumn string) (*Dataset, error) {
	if labelColumn == "" {
		labelColumn = DefaultLabelColumn
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	var ds *Dataset
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		ds, err = ReadCSV(f, labelColumn)
	case ".json", ".jsonl", ".ndjson":
		ds, err = ReadJSON(f, labelColumn)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	ds.Source = path

	log.Info().
		Str("file", path).
		Int("samples", len(ds.Samples)).
		Msg("dataset loaded")
	return ds, nil
}

// ReadCSV reads a header row followed by samples. Empty cells are left out of the
// sample so validation reports them as missing. Cells that are not numbers are
// passed through as strings.
func ReadCSV(r io.Reader, labelColumn string) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	labelIdx := -1
	for i, col := range header {
		header[i] = strings.TrimSpace(col)
		if header[i] == labelColumn {
			labelIdx = i
		}
	}
	if labelIdx < 0 {
		return nil, fmt.Errorf("label column %q not found", labelColumn)
	}

	ds := &Dataset{}
	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}

		label, err := parseLabel(record[labelIdx])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}

		var in ml.Input
		for i, cell := range record {
			cell = strings.TrimSpace(cell)
			if i == labelIdx || cell == "" {
				continue
			}
			if v, err := strconv.ParseFloat(cell, 64); err == nil {
				in.Set(header[i], v)
			} else {
				in.Set(header[i], cell)
			}
		}
		ds.Samples = append(ds.Samples, Sample{Row: row, Input: in, Label: label})
	}
	return ds, nil
}

// ReadJSON reads either a JSON array of objects or a stream of objects.
func ReadJSON(r io.Reader, labelColumn string) (*Dataset, error) {
	dec := json.NewDecoder(r)

	var raws []json.RawMessage
	first := true
	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode JSON: %w", err)
		}
		trimmed := strings.TrimSpace(string(raw))
		if first && strings.HasPrefix(trimmed, "[") {
			if err := json.Unmarshal(raw, &raws); err != nil {
				return nil, fmt.Errorf("failed to decode JSON array: %w", err)
			}
			if dec.More() {
				return nil, errors.New("unexpected data after JSON array")
			}
			break
		}
		first = false
		raws = append(raws, raw)
	}

	ds := &Dataset{Samples: make([]Sample, 0, len(raws))}
	for i, raw := range raws {
		row := i + 1
		var obj ml.Input
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		rawLabel, ok := obj.Get(labelColumn)
		if !ok {
			return nil, fmt.Errorf("row %d: label %q missing", row, labelColumn)
		}
		label, err := parseLabel(fmt.Sprint(rawLabel))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}

		var in ml.Input
		for _, name := range obj.Names() {
			if name == labelColumn {
				continue
			}
			v, _ := obj.Get(name)
			in.Set(name, v)
		}
		ds.Samples = append(ds.Samples, Sample{Row: row, Input: in, Label: label})
	}
	return ds, nil
}

// parseLabel accepts the class index or the diagnosis name, including the M/B
// shorthand of the Wisconsin dataset.
func parseLabel(raw string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "0", "0.0", "m", "malignant":
		return ml.ClassMalignant, nil
	case "1", "1.0", "b", "benign":
		return ml.ClassBenign, nil
	}
	return 0, fmt.Errorf("invalid label %q", raw)
}
