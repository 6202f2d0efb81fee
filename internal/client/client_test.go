package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"cancer-predictor/internal/common"
	"cancer-predictor/internal/features"
	"cancer-predictor/internal/ml"
	"cancer-predictor/internal/server"
	"cancer-predictor/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func goldenInput() ml.Input {
	var in ml.Input
	in.Set("mean radius", 14.5)
	in.Set("mean texture", 18.2)
	in.Set("mean perimeter", 95.3)
	in.Set("mean compactness", 0.15)
	in.Set("mean concavity", 0.08)
	return in
}

func newService(t *testing.T, modelDir string, withAudit bool) *httptest.Server {
	t.Helper()

	store := ml.NewStore(ml.PathsInDir(modelDir), features.Default(), nil)
	_ = store.Initialize()

	opts := server.Options{Store: store}
	if withAudit {
		audit, err := storage.New(t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { audit.Close() })
		opts.Audit = audit
	}

	srv, err := server.New(opts)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func readyService(t *testing.T, withAudit bool) *httptest.Server {
	return newService(t, filepath.Join("..", "ml", "testdata", "model"), withAudit)
}

func TestClient_Predict(t *testing.T) {
	ts := readyService(t, false)
	c := New(ts.URL+"/", time.Second)

	result, err := c.Predict(context.Background(), goldenInput())
	require.NoError(t, err)
	assert.Equal(t, ml.Benign, result.Diagnosis)
	assert.Equal(t, 1, result.PredictionCode)
	assert.Equal(t, 56.44, result.Confidence)
	assert.Equal(t, 43.56, result.Probabilities.Malignant)
	assert.False(t, result.Timestamp.Time().IsZero())
}

func TestClient_PredictRejected(t *testing.T) {
	ts := readyService(t, false)
	c := New(ts.URL, time.Second)

	var in ml.Input
	in.Set("mean radius", 14.5)

	_, err := c.Predict(context.Background(), in)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Missing features: mean compactness, mean concavity, mean perimeter, mean texture", apiErr.Message)
}

func TestClient_HealthAndInfo(t *testing.T) {
	ts := readyService(t, false)
	c := New(ts.URL, time.Second)

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.HealthStatusHealthy, health.Status)
	assert.Len(t, health.Features, 5)

	info, err := c.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.ProjectName, info.Project)
	assert.Equal(t, 5, info.FeatureCount)
}

func TestClient_Unhealthy(t *testing.T) {
	ts := newService(t, t.TempDir(), false)
	c := New(ts.URL, time.Second)

	health, err := c.Health(context.Background())
	require.Error(t, err)
	assert.Equal(t, common.HealthStatusUnhealthy, health.Status)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, common.MsgModelNotLoaded, apiErr.Message)

	_, err = c.Predict(context.Background(), goldenInput())
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
}

func TestClient_History(t *testing.T) {
	ts := readyService(t, true)
	c := New(ts.URL, time.Second)

	for i := 0; i < 2; i++ {
		_, err := c.Predict(context.Background(), goldenInput())
		require.NoError(t, err)
	}

	history, err := c.History(context.Background(), HistoryQuery{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, history.Records, 1)
	assert.Equal(t, 1, history.Summary.Count)
	assert.Equal(t, 2, history.Total)

	history, err = c.History(context.Background(), HistoryQuery{})
	require.NoError(t, err)
	assert.Len(t, history.Records, 2)

	history, err = c.History(context.Background(), HistoryQuery{Since: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.Len(t, history.Records, 2)

	history, err = c.History(context.Background(), HistoryQuery{Since: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, history.Records)
	assert.Equal(t, 2, history.Total)
}

func TestClient_HistoryQueryParams(t *testing.T) {
	var got map[string][]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		w.Header().Set("Content-Type", common.ContentTypeJSON)
		_, _ = w.Write([]byte(`{"success":true,"records":[],"total":0}`))
	}))
	defer ts.Close()

	since := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	_, err := New(ts.URL, time.Second).History(context.Background(), HistoryQuery{Limit: 7, Since: since})
	require.NoError(t, err)
	assert.Equal(t, []string{"7"}, got["limit"])
	assert.Equal(t, []string{"2024-03-01T11:00:00Z"}, got["since"])
	assert.NotContains(t, got, "until")
}

func TestClient_HistoryDisabled(t *testing.T) {
	ts := readyService(t, false)
	c := New(ts.URL, time.Second)

	_, err := c.History(context.Background(), HistoryQuery{Limit: 5})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, common.MsgAuditDisabled, apiErr.Message)
}

func TestClient_Drift(t *testing.T) {
	store := ml.NewStore(ml.PathsInDir(filepath.Join("..", "ml", "testdata", "model")), features.Default(), nil)
	require.NoError(t, store.Initialize())
	srv, err := server.New(server.Options{Store: store, DriftWindow: 5})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	c := New(ts.URL, time.Second)
	_, err = c.Predict(context.Background(), goldenInput())
	require.NoError(t, err)

	report, err := c.Drift(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, report.Window)
	require.Len(t, report.Features, 5)
	assert.Equal(t, 1, report.Features[0].Samples)
	assert.Equal(t, "insufficient_data", report.Features[0].Severity)

	_, err = New(readyService(t, false).URL, time.Second).Drift(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, common.MsgDriftDisabled, apiErr.Message)
}

func TestClient_ResetDrift(t *testing.T) {
	store := ml.NewStore(ml.PathsInDir(filepath.Join("..", "ml", "testdata", "model")), features.Default(), nil)
	require.NoError(t, store.Initialize())
	srv, err := server.New(server.Options{Store: store, DriftWindow: 5})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	c := New(ts.URL, time.Second)
	_, err = c.Predict(context.Background(), goldenInput())
	require.NoError(t, err)

	report, err := c.ResetDrift(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Features, 5)
	assert.Equal(t, 0, report.Features[0].Samples)

	_, err = New(readyService(t, false).URL, time.Second).ResetDrift(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestClient_PlainTextError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := New(ts.URL, time.Second).Info(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "bad gateway", apiErr.Message)
}

func TestClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := New(url, 200*time.Millisecond).Health(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}
