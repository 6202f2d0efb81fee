package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"cancer-predictor/internal/client"
	"cancer-predictor/internal/common"
	"cancer-predictor/internal/evaluate"
	"cancer-predictor/internal/features"
	"cancer-predictor/internal/ml"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	url     string
	timeout time.Duration
	asJSON  bool
}

func (o *rootOptions) client() *client.Client {
	return client.New(o.url, o.timeout)
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}

	defaultURL := os.Getenv(common.EnvPredictdURL)
	if defaultURL == "" {
		defaultURL = common.DefaultPredictdURL
	}

	root := &cobra.Command{
		Use:          "predictctl",
		Short:        "Query a running predictd instance or evaluate a local model",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.url, "url", defaultURL, "predictd base URL (env "+common.EnvPredictdURL+")")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "request timeout")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print raw JSON responses")

	root.AddCommand(
		newPredictCmd(opts),
		newHealthCmd(opts),
		newInfoCmd(opts),
		newHistoryCmd(opts),
		newDriftCmd(opts),
		newEvaluateCmd(),
	)
	return root
}

func newPredictCmd(opts *rootOptions) *cobra.Command {
	var (
		pairs []string
		file  string
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Submit tumor measurements and print the diagnosis",
		Example: `  predictctl predict -f "mean radius=14.5" -f "mean texture=18.2" \
    -f "mean perimeter=95.3" -f "mean compactness=0.15" -f "mean concavity=0.08"
  predictctl predict --file sample.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := buildInput(file, pairs)
			if err != nil {
				return err
			}
			result, err := opts.client().Predict(cmd.Context(), in)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), result)
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&pairs, "feature", "f", nil, `feature as "name=value"; repeatable`)
	cmd.Flags().StringVar(&file, "file", "", "JSON file holding a feature object")
	return cmd
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check service readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			health, err := opts.client().Health(cmd.Context())
			if health.Status == "" {
				return err
			}
			if opts.asJSON {
				if perr := printJSON(cmd.OutOrStdout(), health); perr != nil {
					return perr
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status: %s\n", health.Status)
			if health.ModelVersion != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "model version: %s\n", health.ModelVersion)
			}
			if len(health.Features) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "features: %s\n", strings.Join(health.Features, ", "))
			}
			if health.Message != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "message: %s\n", health.Message)
			}
			if health.Detail != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "detail: %s\n", health.Detail)
			}
			return err
		},
	}
}

func newInfoCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Describe the loaded model",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := opts.client().Info(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		limit int
		since time.Duration
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent predictions from the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := client.HistoryQuery{Limit: limit}
			if since > 0 {
				q.Since = time.Now().Add(-since)
			}
			history, err := opts.client().History(cmd.Context(), q)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), history)
			}
			w := cmd.OutOrStdout()
			for _, rec := range history.Records {
				fmt.Fprintf(w, "%s  %-9s  %6.2f%%  %s\n",
					rec.Timestamp.Format(ml.TimestampLayout), rec.Diagnosis, rec.Confidence, rec.ModelVersion)
			}
			s := history.Summary
			fmt.Fprintf(w, "%d predictions (%d benign, %d malignant), mean confidence %.2f%%\n",
				s.Count, s.Benign, s.Malignant, s.MeanConfidence)
			fmt.Fprintf(w, "%d predictions stored\n", history.Total)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "number of records (server default when 0)")
	cmd.Flags().DurationVar(&since, "since", 0, "only records from this far back, e.g. 1h")
	return cmd
}

func newDriftCmd(opts *rootOptions) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Compare recent inputs with the training distribution",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			fetch := c.Drift
			if reset {
				fetch = c.ResetDrift
			}
			report, err := fetch(cmd.Context())
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), report)
			}
			w := cmd.OutOrStdout()
			for _, fd := range report.Features {
				fmt.Fprintf(w, "%-20s  %5d samples  score %5.2f  %s\n", fd.Feature, fd.Samples, fd.Score, fd.Severity)
			}
			if len(report.Drifting) > 0 {
				fmt.Fprintf(w, "drifting: %s\n", strings.Join(report.Drifting, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "clear the recent window before reporting")
	return cmd
}

func newEvaluateCmd() *cobra.Command {
	var (
		modelDir     string
		featuresFile string
		dataPath     string
		labelColumn  string
		outputPath   string
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score local model artifacts against a labeled dataset",
		Long: `Runs every row of a labeled CSV or JSON dataset through the model in
--model-dir without contacting a server, then prints accuracy, precision,
recall, specificity and F1 with Malignant as the positive class.`,
		Example: `  predictctl evaluate --model-dir model --data holdout.csv --output reports/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := features.Default()
			if featuresFile != "" {
				var err error
				if registry, err = features.LoadFile(featuresFile); err != nil {
					return err
				}
			}

			artifacts, err := ml.LoadArtifacts(ml.PathsInDir(modelDir))
			if err != nil {
				return err
			}
			engine, err := ml.NewEngine(artifacts, registry, ml.EngineOptions{})
			if err != nil {
				return err
			}

			ds, err := evaluate.Load(dataPath, labelColumn)
			if err != nil {
				return err
			}
			results, err := evaluate.NewEvaluator(engine, artifacts.Metadata().Version).Run(ds)
			if err != nil {
				return err
			}

			if outputPath != "" {
				if err := evaluate.NewReporter(results, outputPath).GenerateReport(); err != nil {
					return err
				}
			}
			evaluate.PrintSummary(cmd.OutOrStdout(), results)
			return nil
		},
	}
	cmd.Flags().StringVar(&modelDir, "model-dir", common.DefaultModelDir, "directory holding the trained artifacts")
	cmd.Flags().StringVar(&featuresFile, "features", "", "YAML feature catalogue (built-in catalogue when empty)")
	cmd.Flags().StringVar(&dataPath, "data", "", "labeled dataset (.csv, .json or .jsonl)")
	cmd.Flags().StringVar(&labelColumn, "label", evaluate.DefaultLabelColumn, "name of the label column")
	cmd.Flags().StringVar(&outputPath, "output", "", "directory for report files")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

// buildInput merges a JSON file with name=value pairs; pairs win on conflict.
func buildInput(file string, pairs []string) (ml.Input, error) {
	var in ml.Input
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return in, fmt.Errorf("read %s: %w", file, err)
		}
		if err := json.Unmarshal(data, &in); err != nil {
			return in, fmt.Errorf("parse %s: %w", file, err)
		}
	}
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return in, fmt.Errorf("invalid feature %q, want name=value", pair)
		}
		raw = strings.TrimSpace(raw)
		// Non-numeric values are sent as strings so the service reports the reason.
		// JSON has no NaN or Inf, so those go as strings too.
		if v, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			in.Set(name, v)
		} else {
			in.Set(name, raw)
		}
	}
	if in.Len() == 0 {
		return in, fmt.Errorf("no features given; use --feature or --file")
	}
	return in, nil
}

func printResult(w io.Writer, r ml.Result) {
	fmt.Fprintf(w, "diagnosis:   %s (code %d)\n", r.Diagnosis, r.PredictionCode)
	fmt.Fprintf(w, "confidence:  %.2f%%\n", r.Confidence)
	fmt.Fprintf(w, "malignant:   %.2f%%\n", r.Probabilities.Malignant)
	fmt.Fprintf(w, "benign:      %.2f%%\n", r.Probabilities.Benign)
	fmt.Fprintf(w, "timestamp:   %s\n", r.Timestamp.Time().Format(ml.TimestampLayout))
	for _, a := range r.Advisories {
		fmt.Fprintf(w, "warning:     %s\n", a)
	}
	fmt.Fprintln(w, common.MsgDisclaimer)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
