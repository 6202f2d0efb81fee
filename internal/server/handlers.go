package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"cancer-predictor/internal/common"
	"cancer-predictor/internal/features"
	"cancer-predictor/internal/ml"
	"cancer-predictor/internal/storage"

	"github.com/rs/zerolog/log"
)

var (
	errNoData      = errors.New(common.MsgNoData)
	errInvalidJSON = errors.New(common.MsgInvalidJSON)
)

// PredictResponse is the envelope for /predict and every WebSocket reply.
type PredictResponse struct {
	Success bool       `json:"success"`
	Result  *ml.Result `json:"result,omitempty"`
	Error   string     `json:"error,omitempty"`
	// Status mirrors the HTTP status code; only set on WebSocket replies.
	Status int `json:"status,omitempty"`
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status       string   `json:"status"`
	ModelLoaded  bool     `json:"model_loaded"`
	Features     []string `json:"features,omitempty"`
	ModelVersion string   `json:"model_version,omitempty"`
	Message      string   `json:"message,omitempty"`
	Detail       string   `json:"detail,omitempty"`
	Timestamp    string   `json:"timestamp"`
}

// InfoResponse is returned by /info.
type InfoResponse struct {
	Project           string          `json:"project"`
	Algorithm         string          `json:"algorithm"`
	ModelVersion      string          `json:"model_version,omitempty"`
	TrainedAt         *time.Time      `json:"trained_at,omitempty"`
	PersistenceMethod string          `json:"persistence_method"`
	ModelLoaded       bool            `json:"model_loaded"`
	Features          []string        `json:"features"`
	FeatureCount      int             `json:"feature_count"`
	Classes           []string        `json:"classes"`
	Catalogue         []features.Spec `json:"feature_catalogue"`
	Disclaimer        string          `json:"disclaimer"`
}

// DriftResponse is the body of GET /drift.
type DriftResponse struct {
	Success bool           `json:"success"`
	Drift   ml.DriftStatus `json:"drift"`
}

// AuditResponse is returned by /audit.
type AuditResponse struct {
	Success bool                       `json:"success"`
	Records []storage.PredictionRecord `json:"records"`
	Summary storage.Summary            `json:"summary"`
	// Total counts every stored record, not just the returned page.
	Total int `json:"total"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, common.MsgBodyTooLarge)
			return
		}
		log.Warn().Err(err).Msg("failed to read request body")
		writeError(w, http.StatusBadRequest, common.MsgInvalidJSON)
		return
	}

	status, resp := s.predict(body)
	writeJSON(w, status, resp)
}

// predict runs one payload through the engine and maps the outcome to a status code.
func (s *Server) predict(body []byte) (int, PredictResponse) {
	engine, err := s.currentEngine()
	if err != nil {
		if !errors.Is(err, ml.ErrNotReady) {
			log.Error().Err(err).Msg("failed to bind prediction engine")
		}
		return http.StatusServiceUnavailable, PredictResponse{Error: common.MsgModelNotLoaded}
	}

	in, err := decodeInput(body)
	if err != nil {
		return http.StatusBadRequest, PredictResponse{Error: err.Error()}
	}

	result, err := engine.Predict(in)
	if err != nil {
		if ml.IsCallerError(err) {
			return http.StatusBadRequest, PredictResponse{Error: err.Error()}
		}
		return http.StatusInternalServerError, PredictResponse{Error: common.MsgInternal}
	}
	return http.StatusOK, PredictResponse{Success: true, Result: &result}
}

// decodeInput accepts a single JSON object. An empty body, null or {} carries no data.
func decodeInput(body []byte) (ml.Input, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ml.Input{}, errNoData
	}

	var in ml.Input
	if err := json.Unmarshal(trimmed, &in); err != nil {
		log.Debug().Err(err).Msg("rejecting malformed payload")
		return ml.Input{}, errInvalidJSON
	}
	if in.Len() == 0 {
		return ml.Input{}, errNoData
	}
	return in, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.opts.Now().Format(time.RFC3339)

	artifacts, err := s.opts.Store.Artifacts()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    common.HealthStatusUnhealthy,
			Message:   common.MsgModelNotLoaded,
			Detail:    loadFailureDetail(s.opts.Store.LastError()),
			Timestamp: now,
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:       common.HealthStatusHealthy,
		ModelLoaded:  true,
		Features:     artifacts.FeatureOrder(),
		ModelVersion: artifacts.Metadata().Version,
		Timestamp:    now,
	})
}

// loadFailureDetail names the artifact that failed to load. Paths and causes stay
// in the logs.
func loadFailureDetail(err error) string {
	var lerr *ml.ArtifactLoadError
	if !errors.As(err, &lerr) {
		return ""
	}
	return fmt.Sprintf(common.MsgArtifactFailed, lerr.Artifact)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := InfoResponse{
		Project:           common.ProjectName,
		Algorithm:         "Logistic Regression",
		PersistenceMethod: common.PersistenceMethod,
		Features:          []string{},
		Classes:           ml.ClassLabels(),
		Disclaimer:        common.MsgDisclaimer,
	}

	registry := s.opts.Store.Registry()
	if artifacts, err := s.opts.Store.Artifacts(); err == nil {
		meta := artifacts.Metadata()
		info.ModelLoaded = true
		info.Algorithm = meta.Algorithm
		info.ModelVersion = meta.Version
		if !meta.TrainedAt.IsZero() {
			trainedAt := meta.TrainedAt
			info.TrainedAt = &trainedAt
		}
		info.Features = artifacts.FeatureOrder()
		for _, name := range info.Features {
			if registry == nil {
				break
			}
			if spec, ok := registry.Lookup(name); ok {
				info.Catalogue = append(info.Catalogue, spec)
			}
		}
	} else if registry != nil {
		info.Catalogue = registry.Specs()
	}
	info.FeatureCount = len(info.Features)

	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.opts.Audit == nil {
		writeError(w, http.StatusNotFound, common.MsgAuditDisabled)
		return
	}

	limit := s.opts.AuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, common.MsgInvalidLimit)
			return
		}
		limit = min(n, common.MaxAuditLimit)
	}

	since, until, ranged, err := s.auditRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, common.MsgInvalidRange)
		return
	}

	var records []storage.PredictionRecord
	if ranged {
		records, err = s.opts.Audit.GetPredictionsInRange(since, until)
		slices.Reverse(records)
		if len(records) > limit {
			records = records[:limit]
		}
	} else {
		records, err = s.opts.Audit.Recent(limit)
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to read prediction audit log")
		writeError(w, http.StatusInternalServerError, common.MsgInternal)
		return
	}
	total, err := s.opts.Audit.Count()
	if err != nil {
		log.Error().Err(err).Msg("failed to count prediction audit log")
		writeError(w, http.StatusInternalServerError, common.MsgInternal)
		return
	}
	summary, err := storage.Summarize(records)
	if err != nil {
		log.Error().Err(err).Msg("failed to summarize prediction audit log")
		writeError(w, http.StatusInternalServerError, common.MsgInternal)
		return
	}
	if records == nil {
		records = []storage.PredictionRecord{}
	}

	writeJSON(w, http.StatusOK, AuditResponse{Success: true, Records: records, Summary: summary, Total: total})
}

// auditRange parses the optional since/until RFC3339 bounds. ranged is false when
// neither is given.
func (s *Server) auditRange(r *http.Request) (since, until time.Time, ranged bool, err error) {
	q := r.URL.Query()
	rawSince, rawUntil := q.Get("since"), q.Get("until")
	if rawSince == "" && rawUntil == "" {
		return since, until, false, nil
	}

	since, until = time.Unix(0, 0), s.opts.Now()
	if rawSince != "" {
		if since, err = time.Parse(time.RFC3339, rawSince); err != nil {
			return since, until, true, err
		}
	}
	if rawUntil != "" {
		if until, err = time.Parse(time.RFC3339, rawUntil); err != nil {
			return since, until, true, err
		}
	}
	if until.Before(since) {
		return since, until, true, errors.New("until before since")
	}
	// Keys are nanosecond prefixes; nothing is stored before the epoch.
	if since.Before(time.Unix(0, 0)) {
		since = time.Unix(0, 0)
	}
	return since, until, true, nil
}

func (s *Server) handleDrift(w http.ResponseWriter, r *http.Request) {
	monitor, ok := s.driftMonitor(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, DriftResponse{Success: true, Drift: monitor.Status()})
}

func (s *Server) handleDriftReset(w http.ResponseWriter, r *http.Request) {
	monitor, ok := s.driftMonitor(w)
	if !ok {
		return
	}
	monitor.Reset()
	log.Info().Msg("input drift window reset")
	writeJSON(w, http.StatusOK, DriftResponse{Success: true, Drift: monitor.Status()})
}

// driftMonitor writes the error response itself when no monitor is available.
func (s *Server) driftMonitor(w http.ResponseWriter) (*ml.DriftMonitor, bool) {
	if !s.opts.driftEnabled() {
		writeError(w, http.StatusNotFound, common.MsgDriftDisabled)
		return nil, false
	}
	if _, err := s.currentEngine(); err != nil {
		writeError(w, http.StatusServiceUnavailable, common.MsgModelNotLoaded)
		return nil, false
	}
	monitor := s.drift.Load()
	if monitor == nil {
		writeError(w, http.StatusNotFound, common.MsgDriftDisabled)
		return nil, false
	}
	return monitor, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", common.ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, PredictResponse{Error: msg})
}
