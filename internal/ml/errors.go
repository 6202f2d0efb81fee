package ml

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when artifacts are requested before a successful Initialize.
	ErrNotReady = errors.New("model artifacts not loaded")
	// ErrAlreadyInitialized is returned by a second Initialize after a successful one.
	ErrAlreadyInitialized = errors.New("model artifacts already initialized")
)

// Artifact names used in ArtifactLoadError.
const (
	ArtifactClassifier   = "classifier"
	ArtifactScaler       = "scaler"
	ArtifactFeatureNames = "feature_names"
	ArtifactMetadata     = "metadata"
)

// ArtifactLoadError reports a missing or corrupt trained artifact. It is fatal at startup.
type ArtifactLoadError struct {
	Artifact string
	Path     string
	Err      error
}

func (e *ArtifactLoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to load %s artifact from %s: %v", e.Artifact, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to load %s artifact: %v", e.Artifact, e.Err)
}

func (e *ArtifactLoadError) Unwrap() error {
	return e.Err
}

// ValidationError is a defect in caller input. Reason is safe to return to the caller.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ErrorKind separates caller-induced failures from internal ones.
type ErrorKind int

const (
	// CallerError means the request itself was defective; the reason is returned verbatim.
	CallerError ErrorKind = iota
	// InternalError means assembly, scaling or classification failed unexpectedly.
	InternalError
)

func (k ErrorKind) String() string {
	switch k {
	case CallerError:
		return "caller"
	case InternalError:
		return "internal"
	default:
		return "unknown"
	}
}

// genericPredictionReason is what callers see for internal failures.
const genericPredictionReason = "Failed to make prediction"

// PredictionError is returned by Engine.Predict.
type PredictionError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *PredictionError) Error() string {
	return e.Reason
}

func (e *PredictionError) Unwrap() error {
	return e.Err
}

// Internal reports whether the error came from the model rather than the input.
func (e *PredictionError) Internal() bool {
	return e.Kind == InternalError
}

func callerError(verr *ValidationError) *PredictionError {
	return &PredictionError{Kind: CallerError, Reason: verr.Reason, Err: verr}
}

func internalError(cause error) *PredictionError {
	return &PredictionError{Kind: InternalError, Reason: genericPredictionReason, Err: cause}
}

// IsCallerError reports whether err is a validation failure the caller can correct.
func IsCallerError(err error) bool {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return true
	}
	var perr *PredictionError
	return errors.As(err, &perr) && perr.Kind == CallerError
}
