// Package predictor calls the remote delay-prediction functions over the
// Firebase callable HTTPS protocol.
package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/owcee/sitepulse/internal/domain"
)

// Default function names deployed for the mobile client.
const (
	DefaultSubmitFunction  = "submitDailySurvey"
	DefaultPredictFunction = "predictAllDelays"
	DefaultTimeout         = 30 * time.Second
)

const maxResponseBytes = 4 << 20

// ErrEmptyResponse reports a callable response with neither result nor error.
var ErrEmptyResponse = errors.New("callable response has no result")

// Config configures the callable client.
type Config struct {
	BaseURL         string
	SubmitFunction  string
	PredictFunction string
	Token           string
	Timeout         time.Duration
	HTTPClient      *http.Client
}

// Client implements app.Predictor.
type Client struct {
	baseURL         string
	submitFunction  string
	predictFunction string
	token           string
	http            *http.Client
}

// New validates cfg and constructs a client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("predictor base url is required")
	}
	if cfg.SubmitFunction = strings.TrimSpace(cfg.SubmitFunction); cfg.SubmitFunction == "" {
		cfg.SubmitFunction = DefaultSubmitFunction
	}
	if cfg.PredictFunction = strings.TrimSpace(cfg.PredictFunction); cfg.PredictFunction == "" {
		cfg.PredictFunction = DefaultPredictFunction
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:         baseURL,
		submitFunction:  cfg.SubmitFunction,
		predictFunction: cfg.PredictFunction,
		token:           strings.TrimSpace(cfg.Token),
		http:            httpClient,
	}, nil
}

// SubmitDailySurvey sends a validated survey to the prediction function.
func (c *Client) SubmitDailySurvey(ctx context.Context, data domain.SurveyData) (domain.SubmissionResult, error) {
	var out domain.SubmissionResult
	if err := c.call(ctx, c.submitFunction, data, &out); err != nil {
		return domain.SubmissionResult{}, err
	}
	return out, nil
}

// PredictAllDelays asks for fresh risk levels for every task in a project.
func (c *Client) PredictAllDelays(ctx context.Context, projectID string) (domain.PredictionBatch, error) {
	var out domain.PredictionBatch
	payload := struct {
		ProjectID string `json:"projectId"`
	}{ProjectID: projectID}
	if err := c.call(ctx, c.predictFunction, payload, &out); err != nil {
		return domain.PredictionBatch{}, err
	}
	return out, nil
}

type callableRequest struct {
	Data any `json:"data"`
}

type callableResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *CallError      `json:"error"`
}

// CallError is the error body of a failed callable invocation.
type CallError struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Function   string `json:"-"`
}

// Error implements error.
func (e *CallError) Error() string {
	status := e.Status
	if status == "" {
		status = http.StatusText(e.HTTPStatus)
	}
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Function, status)
	}
	return fmt.Sprintf("%s: %s: %s", e.Function, status, e.Message)
}

func (c *Client) call(ctx context.Context, function string, payload any, out any) error {
	body, err := json.Marshal(callableRequest{Data: payload})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", function, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+function, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", function, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", function, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", function, err)
	}
	var decoded callableResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &CallError{HTTPStatus: resp.StatusCode, Function: function, Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("decode %s response: %w", function, err)
	}
	if decoded.Error != nil {
		decoded.Error.HTTPStatus = resp.StatusCode
		decoded.Error.Function = function
		return decoded.Error
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &CallError{HTTPStatus: resp.StatusCode, Function: function}
	}
	if len(decoded.Result) == 0 || string(decoded.Result) == "null" {
		return fmt.Errorf("%s: %w", function, ErrEmptyResponse)
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", function, err)
	}
	return nil
}
