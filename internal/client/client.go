// Package client talks to a running predictd over HTTP.
package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cancer-predictor/internal/common"
	"cancer-predictor/internal/ml"
	"cancer-predictor/internal/server"

	"github.com/go-resty/resty/v2"
)

// APIError is a non-2xx answer from the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("predictd: %d %s", e.Status, e.Message)
}

type Client struct {
	base string
	rest *resty.Client
}

func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second)
	}
	r.SetHeader("Accept", common.ContentTypeJSON)
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

// Predict submits one feature object. Rejected input comes back as an *APIError
// carrying the service's reason.
func (c *Client) Predict(ctx context.Context, in ml.Input) (ml.Result, error) {
	var ok, failed server.PredictResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", common.ContentTypeJSON).
		SetBody(in).
		SetResult(&ok).
		SetError(&failed).
		Post(c.base + "/predict")
	if err != nil {
		return ml.Result{}, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return ml.Result{}, apiError(resp, failed.Error)
	}
	if !ok.Success || ok.Result == nil {
		return ml.Result{}, &APIError{Status: resp.StatusCode(), Message: "response carried no result"}
	}
	return *ok.Result, nil
}

// Health returns the health report. An unhealthy service yields both the report
// and an *APIError.
func (c *Client) Health(ctx context.Context) (server.HealthResponse, error) {
	var health server.HealthResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&health).
		SetError(&health).
		Get(c.base + "/health")
	if err != nil {
		return health, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return health, apiError(resp, health.Message)
	}
	return health, nil
}

func (c *Client) Info(ctx context.Context) (server.InfoResponse, error) {
	var info server.InfoResponse
	var failed server.PredictResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&info).
		SetError(&failed).
		Get(c.base + "/info")
	if err != nil {
		return info, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return info, apiError(resp, failed.Error)
	}
	return info, nil
}

// HistoryQuery selects audit records. Zero values leave the choice to the server:
// its default limit, and the newest records regardless of time.
type HistoryQuery struct {
	Limit int
	Since time.Time
	Until time.Time
}

// History fetches audit records, newest first.
func (c *Client) History(ctx context.Context, q HistoryQuery) (server.AuditResponse, error) {
	var history server.AuditResponse
	var failed server.PredictResponse
	req := c.rest.R().
		SetContext(ctx).
		SetResult(&history).
		SetError(&failed)
	if q.Limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(q.Limit))
	}
	if !q.Since.IsZero() {
		req.SetQueryParam("since", q.Since.UTC().Format(time.RFC3339))
	}
	if !q.Until.IsZero() {
		req.SetQueryParam("until", q.Until.UTC().Format(time.RFC3339))
	}
	resp, err := req.Get(c.base + "/audit")
	if err != nil {
		return history, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return history, apiError(resp, failed.Error)
	}
	return history, nil
}

func apiError(resp *resty.Response, msg string) error {
	if msg == "" {
		msg = strings.TrimSpace(resp.String())
	}
	return &APIError{Status: resp.StatusCode(), Message: msg}
}

// Drift fetches the input drift report.
func (c *Client) Drift(ctx context.Context) (ml.DriftStatus, error) {
	var report server.DriftResponse
	var failed server.PredictResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&report).
		SetError(&failed).
		Get(c.base + "/drift")
	if err != nil {
		return report.Drift, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return report.Drift, apiError(resp, failed.Error)
	}
	return report.Drift, nil
}

// ResetDrift clears the recent window and returns the emptied report.
func (c *Client) ResetDrift(ctx context.Context) (ml.DriftStatus, error) {
	var report server.DriftResponse
	var failed server.PredictResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&report).
		SetError(&failed).
		Post(c.base + "/drift/reset")
	if err != nil {
		return report.Drift, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return report.Drift, apiError(resp, failed.Error)
	}
	return report.Drift, nil
}
