package ml

import (
	"errors"
	"fmt"
	"time"

	"cancer-predictor/internal/features"

	"github.com/rs/zerolog/log"
)

// MetricsInterface defines metrics methods needed by the inference pipeline.
type MetricsInterface interface {
	MLPredictionsInc(diagnosis string)
	MLFailuresInc(kind string)
	MLValidationFailuresInc()
	MLTypicalRangeWarningsInc(feature string)
	MLLatencyObserve(float64)
	MLPredictionScoresObserve(float64)
	MLModelAgeSet(float64)
	MLReadySet(bool)
	MLArtifactLoadFailuresInc()
}

// Auditor records successful predictions. Failures are logged and never fail the request.
type Auditor interface {
	Audit(result Result, metadata ModelMetadata) error
}

// DriftObserver is fed every accepted input vector.
type DriftObserver interface {
	Observe(values map[string]float64)
}

// EngineOptions carries the optional collaborators of an Engine.
type EngineOptions struct {
	Metrics MetricsInterface
	Auditor Auditor
	Drift   DriftObserver

	// Now overrides the clock used for result timestamps.
	Now func() time.Time
}

// Engine turns validated input into a diagnosis. It holds no mutable state.
type Engine struct {
	artifacts *Artifacts
	registry  *features.Registry
	validator *Validator
	metrics   MetricsInterface
	auditor   Auditor
	drift     DriftObserver
	now       func() time.Time
}

// NewEngine binds the pipeline to a loaded artifact bundle. It fails if any feature
// the model needs is missing from the registry.
func NewEngine(artifacts *Artifacts, registry *features.Registry, opts EngineOptions) (*Engine, error) {
	if artifacts == nil {
		return nil, ErrNotReady
	}
	if registry == nil {
		return nil, errors.New("feature registry is nil")
	}
	if err := artifacts.CheckRegistry(registry); err != nil {
		return nil, err
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		artifacts: artifacts,
		registry:  registry,
		validator: NewValidator(registry, artifacts.featureOrder, opts.Metrics),
		metrics:   opts.Metrics,
		auditor:   opts.Auditor,
		drift:     opts.Drift,
		now:       now,
	}, nil
}

// Validator returns the validator bound to this engine's required features.
func (e *Engine) Validator() *Validator {
	return e.validator
}

// Artifacts returns the model bundle in use.
func (e *Engine) Artifacts() *Artifacts {
	return e.artifacts
}

// Predict validates in, then scales and classifies it. Validation failures come back
// as a CallerError carrying the original reason; anything else that goes wrong is an
// InternalError with a generic reason.
func (e *Engine) Predict(in Input) (Result, error) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.MLLatencyObserve(time.Since(start).Seconds())
		}
	}()

	values, advisories, verr := e.validator.validate(in)
	if verr != nil {
		log.Warn().Str("reason", verr.Reason).Msg("prediction validation error")
		if e.metrics != nil {
			e.metrics.MLFailuresInc(CallerError.String())
		}
		return Result{}, callerError(verr)
	}

	result, err := e.infer(values)
	if err != nil {
		log.Error().Err(err).Msg("prediction error")
		if e.metrics != nil {
			e.metrics.MLFailuresInc(InternalError.String())
		}
		return Result{}, internalError(err)
	}
	result.Advisories = advisories

	if e.metrics != nil {
		e.metrics.MLPredictionsInc(string(result.Diagnosis))
		e.metrics.MLPredictionScoresObserve(result.Confidence / 100)
	}
	log.Info().
		Str("diagnosis", string(result.Diagnosis)).
		Float64("confidence", result.Confidence).
		Msg("prediction made")

	if e.drift != nil {
		e.drift.Observe(values)
	}
	if e.auditor != nil {
		if err := e.auditor.Audit(result, e.artifacts.metadata); err != nil {
			log.Warn().Err(err).Msg("failed to record prediction audit entry")
		}
	}

	return result, nil
}

func (e *Engine) infer(values map[string]float64) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during inference: %v", r)
		}
	}()

	x, err := e.assemble(values)
	if err != nil {
		return Result{}, err
	}

	scaled, err := e.artifacts.scaler.Transform(x)
	if err != nil {
		return Result{}, fmt.Errorf("scale features: %w", err)
	}

	class, err := e.artifacts.classifier.Predict(scaled)
	if err != nil {
		return Result{}, fmt.Errorf("classify: %w", err)
	}
	proba, err := e.artifacts.classifier.PredictProba(scaled)
	if err != nil {
		return Result{}, fmt.Errorf("class probabilities: %w", err)
	}
	if len(proba) != 2 {
		return Result{}, fmt.Errorf("expected 2 probabilities, got %d", len(proba))
	}
	if class < 0 || class >= len(proba) {
		return Result{}, fmt.Errorf("class index %d out of range", class)
	}

	return newResult(class, proba, e.now()), nil
}

// assemble builds the feature vector in the exact column order the scaler and
// classifier were fit on. Any other order silently corrupts predictions.
func (e *Engine) assemble(values map[string]float64) ([]float64, error) {
	x := make([]float64, len(e.artifacts.featureOrder))
	for i, name := range e.artifacts.featureOrder {
		v, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("feature %q missing after validation", name)
		}
		x[i] = v
	}
	return x, nil
}
