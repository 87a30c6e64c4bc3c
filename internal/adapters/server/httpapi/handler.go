// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/owcee/sitepulse/internal/adapters/server/common"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	surveys common.SurveyService
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter over the survey service.
func NewHandler(surveys common.SurveyService) *Handler {
	return &Handler{surveys: surveys}
}

// route binds one path to its method and handler.
type route struct {
	method string
	handle func(*Handler, http.ResponseWriter, *http.Request)
}

var routes = map[string]route{
	"survey/eligibility": {http.MethodGet, (*Handler).handleEligibility},
	"survey/submit":      {http.MethodPost, (*Handler).handleSubmit},
	"survey/skip":        {http.MethodPost, (*Handler).handleSkip},
	"survey/history":     {http.MethodGet, (*Handler).handleHistory},
	"risk/summary":       {http.MethodGet, (*Handler).handleRiskSummary},
	"tasks/active":       {http.MethodGet, (*Handler).handleActiveTasks},
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := normalizePath(r.URL.Path)
	rt, ok := routes[path]
	if !ok {
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
			Context: map[string]any{"path": "/" + path},
		})
		return
	}
	if r.Method != rt.method {
		writeMethodNotAllowed(w, rt.method)
		return
	}
	if h.surveys == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "survey service is not configured",
		})
		return
	}
	rt.handle(h, w, r)
}

// handleEligibility serves GET `/survey/eligibility`.
func (h *Handler) handleEligibility(w http.ResponseWriter, r *http.Request) {
	out, err := h.surveys.Eligibility(r.Context(), common.EligibilityRequest{
		UserID:    r.URL.Query().Get("user_id"),
		ProjectID: r.URL.Query().Get("project_id"),
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSubmit serves POST `/survey/submit`.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req common.SubmitSurveyRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	out, err := h.surveys.SubmitSurvey(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// handleSkip serves POST `/survey/skip`.
func (h *Handler) handleSkip(w http.ResponseWriter, r *http.Request) {
	var req common.SkipSurveyRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	out, err := h.surveys.SkipSurvey(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleHistory serves GET `/survey/history`.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := optionalInt(r.URL.Query().Get("limit"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	history, err := h.surveys.SurveyHistory(r.Context(), common.HistoryRequest{
		ProjectID: r.URL.Query().Get("project_id"),
		Limit:     limit,
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"surveys": history,
	})
}

// handleRiskSummary serves GET `/risk/summary`.
func (h *Handler) handleRiskSummary(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	out, err := h.surveys.RiskSummary(r.Context(), common.RiskSummaryRequest{
		ProjectID: r.URL.Query().Get("project_id"),
		Refresh:   refresh,
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleActiveTasks serves GET `/tasks/active`.
func (h *Handler) handleActiveTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.surveys.ActiveTasks(r.Context(), common.ActiveTasksRequest{
		ProjectID: r.URL.Query().Get("project_id"),
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks": tasks,
	})
}

func optionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("limit must be an integer: %w", common.ErrInvalidRequest)
	}
	return n, nil
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, common.ErrConflict):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "already_submitted",
			Message: err.Error(),
			Hint:    "Today's survey for this project is already recorded.",
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrUpstreamUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "predictor_unavailable",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusBadGateway, APIError{
			Code:    "upstream_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
		Context: map[string]any{"allowed": methods},
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
