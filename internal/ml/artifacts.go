package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"cancer-predictor/internal/features"

	"github.com/rs/zerolog/log"
)

// Default artifact file names inside the model directory.
const (
	DefaultClassifierFile   = "classifier.json"
	DefaultScalerFile       = "scaler.json"
	DefaultFeatureNamesFile = "feature_names.json"
	DefaultMetadataFile     = "model_metadata.json"
)

// ModelMetadata describes the trained model. It is optional on disk.
type ModelMetadata struct {
	Version      string    `json:"version"`
	Algorithm    string    `json:"algorithm"`
	TrainedAt    time.Time `json:"trained_at"`
	Accuracy     float64   `json:"accuracy"`
	TrainingRows int       `json:"training_rows"`
}

func defaultMetadata() ModelMetadata {
	return ModelMetadata{
		Version:   "unknown",
		Algorithm: "Logistic Regression",
	}
}

// ArtifactPaths locates the trained artifacts.
type ArtifactPaths struct {
	Classifier   string
	Scaler       string
	FeatureNames string
	Metadata     string
}

// PathsInDir returns the default artifact layout under dir.
func PathsInDir(dir string) ArtifactPaths {
	return ArtifactPaths{
		Classifier:   filepath.Join(dir, DefaultClassifierFile),
		Scaler:       filepath.Join(dir, DefaultScalerFile),
		FeatureNames: filepath.Join(dir, DefaultFeatureNamesFile),
		Metadata:     filepath.Join(dir, DefaultMetadataFile),
	}
}

// Artifacts is the loaded, immutable model bundle shared by all requests.
type Artifacts struct {
	classifier   Classifier
	scaler       Scaler
	featureOrder []string
	metadata     ModelMetadata
	loadedAt     time.Time
}

// NewArtifacts assembles a bundle from already decoded parts and checks that the
// scaler and classifier dimensions agree with the feature order.
func NewArtifacts(classifier Classifier, scaler Scaler, featureOrder []string, metadata ModelMetadata) (*Artifacts, error) {
	if classifier == nil {
		return nil, &ArtifactLoadError{Artifact: ArtifactClassifier, Err: errors.New("classifier is nil")}
	}
	if scaler == nil {
		return nil, &ArtifactLoadError{Artifact: ArtifactScaler, Err: errors.New("scaler is nil")}
	}
	if err := checkFeatureOrder(featureOrder); err != nil {
		return nil, &ArtifactLoadError{Artifact: ArtifactFeatureNames, Err: err}
	}
	if scaler.Dim() != len(featureOrder) {
		return nil, &ArtifactLoadError{
			Artifact: ArtifactScaler,
			Err:      fmt.Errorf("scaler has %d columns but feature list has %d", scaler.Dim(), len(featureOrder)),
		}
	}
	if classifier.Dim() != len(featureOrder) {
		return nil, &ArtifactLoadError{
			Artifact: ArtifactClassifier,
			Err:      fmt.Errorf("classifier has %d inputs but feature list has %d", classifier.Dim(), len(featureOrder)),
		}
	}

	order := make([]string, len(featureOrder))
	copy(order, featureOrder)
	if metadata.Algorithm == "" {
		metadata.Algorithm = defaultMetadata().Algorithm
	}
	if metadata.Version == "" {
		metadata.Version = defaultMetadata().Version
	}

	return &Artifacts{
		classifier:   classifier,
		scaler:       scaler,
		featureOrder: order,
		metadata:     metadata,
		loadedAt:     time.Now(),
	}, nil
}

func checkFeatureOrder(order []string) error {
	if len(order) == 0 {
		return errors.New("feature list is empty")
	}
	seen := make(map[string]struct{}, len(order))
	for i, name := range order {
		if name == "" {
			return fmt.Errorf("feature %d has an empty name", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("feature %q listed twice", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// LoadArtifacts reads and decodes all artifacts from disk.
func LoadArtifacts(paths ArtifactPaths) (*Artifacts, error) {
	classifier, err := loadArtifact(ArtifactClassifier, paths.Classifier, DecodeClassifier)
	if err != nil {
		return nil, err
	}
	scaler, err := loadArtifact(ArtifactScaler, paths.Scaler, DecodeScaler)
	if err != nil {
		return nil, err
	}
	order, err := loadArtifact(ArtifactFeatureNames, paths.FeatureNames, decodeFeatureNames)
	if err != nil {
		return nil, err
	}

	metadata := defaultMetadata()
	if paths.Metadata != "" {
		md, err := decodeMetadata(paths.Metadata)
		switch {
		case err == nil:
			metadata = *md
		case errors.Is(err, os.ErrNotExist):
			log.Debug().Str("path", paths.Metadata).Msg("no model metadata file, using defaults")
		default:
			log.Warn().Err(err).Str("path", paths.Metadata).Msg("failed to load model metadata, using defaults")
		}
	}

	a, err := NewArtifacts(classifier, scaler, order, metadata)
	if err != nil {
		var lerr *ArtifactLoadError
		if errors.As(err, &lerr) && lerr.Path == "" {
			switch lerr.Artifact {
			case ArtifactClassifier:
				lerr.Path = paths.Classifier
			case ArtifactScaler:
				lerr.Path = paths.Scaler
			case ArtifactFeatureNames:
				lerr.Path = paths.FeatureNames
			}
		}
		return nil, err
	}
	return a, nil
}

func loadArtifact[T any](name, path string, decode func([]byte) (T, error)) (T, error) {
	var zero T
	if path == "" {
		return zero, &ArtifactLoadError{Artifact: name, Err: errors.New("path not configured")}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return zero, &ArtifactLoadError{Artifact: name, Path: path, Err: fmt.Errorf("file not found: %w", err)}
		}
		return zero, &ArtifactLoadError{Artifact: name, Path: path, Err: err}
	}
	v, err := decode(data)
	if err != nil {
		return zero, &ArtifactLoadError{Artifact: name, Path: path, Err: err}
	}
	return v, nil
}

func decodeFeatureNames(data []byte) ([]string, error) {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("parse feature names: %w", err)
	}
	return names, nil
}

func decodeMetadata(path string) (*ModelMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	md := defaultMetadata()
	if err := json.NewDecoder(file).Decode(&md); err != nil {
		return nil, err
	}
	return &md, nil
}

// FeatureOrder returns the column order the scaler and classifier were fit on.
func (a *Artifacts) FeatureOrder() []string {
	out := make([]string, len(a.featureOrder))
	copy(out, a.featureOrder)
	return out
}

// Metadata returns the model description.
func (a *Artifacts) Metadata() ModelMetadata {
	return a.metadata
}

// LoadedAt returns when the bundle was assembled.
func (a *Artifacts) LoadedAt() time.Time {
	return a.loadedAt
}

// Baseline returns the training distribution implied by the scaler, if it carries one.
func (a *Artifacts) Baseline() (map[string]Baseline, bool) {
	return BaselineFromScaler(a.featureOrder, a.scaler)
}

// CheckRegistry verifies every feature in the order resolves in the registry.
// The reverse is not required: the registry may describe features the model ignores.
func (a *Artifacts) CheckRegistry(reg *features.Registry) error {
	var missing []string
	for _, name := range a.featureOrder {
		if _, ok := reg.Lookup(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("features %q have no registry entry", missing)
	}
	return nil
}

// Store owns the process-wide artifacts and their readiness.
type Store struct {
	paths    ArtifactPaths
	registry *features.Registry
	metrics  MetricsInterface

	mu        sync.Mutex
	artifacts atomic.Pointer[Artifacts]
	lastErr   atomic.Value // stores loadFailure
}

type loadFailure struct{ err error }

// NewStore prepares a store; nothing is read until Initialize.
func NewStore(paths ArtifactPaths, registry *features.Registry, metrics MetricsInterface) *Store {
	return &Store{paths: paths, registry: registry, metrics: metrics}
}

// Initialize loads the artifacts and checks them against the registry. It must be
// called once before serving; the store never retries on its own.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.artifacts.Load() != nil {
		return ErrAlreadyInitialized
	}

	log.Info().
		Str("classifier", s.paths.Classifier).
		Str("scaler", s.paths.Scaler).
		Str("feature_names", s.paths.FeatureNames).
		Msg("loading model artifacts")

	a, err := LoadArtifacts(s.paths)
	if err == nil && s.registry != nil {
		if rerr := a.CheckRegistry(s.registry); rerr != nil {
			err = &ArtifactLoadError{Artifact: ArtifactFeatureNames, Path: s.paths.FeatureNames, Err: rerr}
		}
	}
	if err != nil {
		s.lastErr.Store(loadFailure{err: err})
		if s.metrics != nil {
			s.metrics.MLArtifactLoadFailuresInc()
		}
		log.Error().Err(err).Msg("error loading model artifacts")
		return err
	}

	s.artifacts.Store(a)
	s.lastErr.Store(loadFailure{})
	if s.metrics != nil {
		s.metrics.MLReadySet(true)
		if !a.metadata.TrainedAt.IsZero() {
			s.metrics.MLModelAgeSet(time.Since(a.metadata.TrainedAt).Seconds())
		}
	}

	log.Info().
		Strs("features", a.featureOrder).
		Str("model_version", a.metadata.Version).
		Str("algorithm", a.metadata.Algorithm).
		Msg("model artifacts loaded")
	return nil
}

// Ready reports whether Initialize has succeeded.
func (s *Store) Ready() bool {
	return s.artifacts.Load() != nil
}

// Artifacts returns the loaded bundle or ErrNotReady.
func (s *Store) Artifacts() (*Artifacts, error) {
	a := s.artifacts.Load()
	if a == nil {
		return nil, ErrNotReady
	}
	return a, nil
}

// RequiredFeatures returns the feature order, or nil before initialization.
func (s *Store) RequiredFeatures() []string {
	a := s.artifacts.Load()
	if a == nil {
		return nil
	}
	return a.FeatureOrder()
}

// LastError returns the most recent initialization failure, or nil. Load failures
// are *ArtifactLoadError and name the artifact that failed.
func (s *Store) LastError() error {
	f, _ := s.lastErr.Load().(loadFailure)
	return f.err
}

// Registry returns the feature catalogue the store checks against.
func (s *Store) Registry() *features.Registry {
	return s.registry
}
