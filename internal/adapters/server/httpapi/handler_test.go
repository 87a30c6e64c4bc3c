package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/owcee/sitepulse/internal/adapters/server/common"
	"github.com/owcee/sitepulse/internal/app"
	"github.com/owcee/sitepulse/internal/domain"
)

// stubSurveyService records requests and returns configured responses.
type stubSurveyService struct {
	err error

	lastEligibility common.EligibilityRequest
	lastSubmit      common.SubmitSurveyRequest
	lastSkip        common.SkipSurveyRequest
	lastHistory     common.HistoryRequest
	lastRisk        common.RiskSummaryRequest
	lastTasks       common.ActiveTasksRequest
}

func (s *stubSurveyService) Eligibility(_ context.Context, req common.EligibilityRequest) (common.Eligibility, error) {
	s.lastEligibility = req
	if s.err != nil {
		return common.Eligibility{}, s.err
	}
	return common.Eligibility{UserID: req.UserID, ProjectID: req.ProjectID, ShowSurvey: true}, nil
}

func (s *stubSurveyService) SubmitSurvey(_ context.Context, req common.SubmitSurveyRequest) (common.SubmitSurveyResult, error) {
	s.lastSubmit = req
	if s.err != nil {
		return common.SubmitSurveyResult{}, s.err
	}
	return common.SubmitSurveyResult{
		ProjectID:  req.ProjectID,
		SiteStatus: domain.SiteStatus(req.SiteStatus),
		Result:     domain.SubmissionResult{Success: true, UpdatesProcessed: 2},
	}, nil
}

func (s *stubSurveyService) SkipSurvey(_ context.Context, req common.SkipSurveyRequest) (common.Eligibility, error) {
	s.lastSkip = req
	if s.err != nil {
		return common.Eligibility{}, s.err
	}
	return common.Eligibility{UserID: req.UserID, ProjectID: req.ProjectID, Skipped: true}, nil
}

func (s *stubSurveyService) SurveyHistory(_ context.Context, req common.HistoryRequest) ([]domain.SurveySubmission, error) {
	s.lastHistory = req
	if s.err != nil {
		return nil, s.err
	}
	return []domain.SurveySubmission{{ID: "s1", SubmittedAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}}, nil
}

func (s *stubSurveyService) RiskSummary(_ context.Context, req common.RiskSummaryRequest) (common.RiskSummary, error) {
	s.lastRisk = req
	if s.err != nil {
		return common.RiskSummary{}, s.err
	}
	return common.RiskSummary{ProjectID: req.ProjectID, Refreshed: req.Refresh, Summary: domain.RiskSummary{HighRisk: 1, Total: 3}}, nil
}

func (s *stubSurveyService) ActiveTasks(_ context.Context, req common.ActiveTasksRequest) ([]domain.Task, error) {
	s.lastTasks = req
	if s.err != nil {
		return nil, s.err
	}
	return []domain.Task{{ID: "t1", ProjectID: req.ProjectID, Title: "Excavation", Status: domain.TaskStatusInProgress}}, nil
}

func serve(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) ErrorEnvelope {
	t.Helper()
	var env ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return env
}

// TestHandlerEligibility verifies query mapping for the gate endpoint.
func TestHandlerEligibility(t *testing.T) {
	svc := &stubSurveyService{}
	rec := serve(t, NewHandler(svc), http.MethodGet, "/survey/eligibility?user_id=u1&project_id=p1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got common.Eligibility
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !got.ShowSurvey || svc.lastEligibility.UserID != "u1" || svc.lastEligibility.ProjectID != "p1" {
		t.Fatalf("unexpected eligibility %#v request %#v", got, svc.lastEligibility)
	}
}

// TestHandlerSubmit verifies body decoding and the created status.
func TestHandlerSubmit(t *testing.T) {
	svc := &stubSurveyService{}
	body := `{"user_id":"u1","project_id":"p1","site_status":"delayed","tasks":{"t1":{"status":"non_productive","delay_reason":"Other","delay_reason_other":"crane"}}}`
	rec := serve(t, NewHandler(svc), http.MethodPost, "/survey/submit", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d body=%s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	toggle := svc.lastSubmit.Tasks["t1"]
	if toggle.DelayReason != "Other" || toggle.DelayReasonOther != "crane" {
		t.Fatalf("unexpected decoded toggle %#v", toggle)
	}
}

// TestHandlerRejectsMalformedBodies verifies strict JSON decoding.
func TestHandlerRejectsMalformedBodies(t *testing.T) {
	for _, body := range []string{
		`{"user_id":"u1","unknown":true}`,
		`{"user_id":"u1"}{"user_id":"u2"}`,
		`not json`,
	} {
		rec := serve(t, NewHandler(&stubSurveyService{}), http.MethodPost, "/survey/skip", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want %d", body, rec.Code, http.StatusBadRequest)
		}
		if env := decodeEnvelope(t, rec); env.Error.Code != "invalid_request" {
			t.Fatalf("unexpected error code %q", env.Error.Code)
		}
	}
}

// TestHandlerErrorMapping verifies transport error to status mapping.
func TestHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("submit: %w", errors.Join(common.ErrConflict, app.ErrAlreadySubmittedToday)), http.StatusConflict, "already_submitted"},
		{common.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
		{common.ErrNotFound, http.StatusNotFound, "not_found"},
		{common.ErrUpstreamUnavailable, http.StatusServiceUnavailable, "predictor_unavailable"},
		{errors.New("predictor 500"), http.StatusBadGateway, "upstream_error"},
	}
	for _, tc := range cases {
		svc := &stubSurveyService{err: tc.err}
		rec := serve(t, NewHandler(svc), http.MethodPost, "/survey/submit", `{"user_id":"u1","project_id":"p1","site_status":"normal"}`)
		if rec.Code != tc.status {
			t.Fatalf("%v: status = %d, want %d", tc.err, rec.Code, tc.status)
		}
		if env := decodeEnvelope(t, rec); env.Error.Code != tc.code {
			t.Fatalf("%v: code = %q, want %q", tc.err, env.Error.Code, tc.code)
		}
	}
}

// TestHandlerReadEndpoints verifies history, risk, and task query mapping.
func TestHandlerReadEndpoints(t *testing.T) {
	svc := &stubSurveyService{}
	h := NewHandler(svc)

	if rec := serve(t, h, http.MethodGet, "/survey/history?project_id=p1&limit=5", ""); rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	if svc.lastHistory.Limit != 5 {
		t.Fatalf("limit = %d, want 5", svc.lastHistory.Limit)
	}
	if rec := serve(t, h, http.MethodGet, "/survey/history?project_id=p1&limit=five", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", rec.Code)
	}

	rec := serve(t, h, http.MethodGet, "/risk/summary?project_id=p1&refresh=true", "")
	if rec.Code != http.StatusOK || !svc.lastRisk.Refresh {
		t.Fatalf("risk status = %d request %#v", rec.Code, svc.lastRisk)
	}

	rec = serve(t, h, http.MethodGet, "/tasks/active?project_id=p1", "")
	var tasks struct {
		Tasks []domain.Task `json:"tasks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&tasks); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(tasks.Tasks) != 1 || tasks.Tasks[0].ID != "t1" {
		t.Fatalf("unexpected tasks %#v", tasks)
	}
}

// TestHandlerRoutingErrors verifies 404, 405, and missing-service responses.
func TestHandlerRoutingErrors(t *testing.T) {
	h := NewHandler(&stubSurveyService{})
	rec := serve(t, h, http.MethodGet, "/nope/", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Error.Context["path"] != "/nope" {
		t.Fatalf("unexpected not-found context %#v", env.Error.Context)
	}
	rec = serve(t, h, http.MethodGet, "/survey/submit", "")
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("status = %d allow=%q", rec.Code, rec.Header().Get("Allow"))
	}
	if env := decodeEnvelope(t, rec); env.Error.Context["allowed"] == nil {
		t.Fatalf("expected allowed methods in context, got %#v", env.Error.Context)
	}
	if rec := serve(t, NewHandler(nil), http.MethodGet, "/tasks/active?project_id=p1", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

// failingPredictor rejects every call.
type failingPredictor struct{}

func (failingPredictor) SubmitDailySurvey(context.Context, domain.SurveyData) (domain.SubmissionResult, error) {
	return domain.SubmissionResult{}, errors.New("predictor down")
}

func (failingPredictor) PredictAllDelays(context.Context, string) (domain.PredictionBatch, error) {
	return domain.PredictionBatch{}, errors.New("predictor down")
}

// TestHandlerRiskSummaryDegradesOnRefreshFailure verifies a failed refresh answers 200 with zero counts.
func TestHandlerRiskSummaryDegradesOnRefreshFailure(t *testing.T) {
	svc := app.NewService(nil, failingPredictor{}, nil, nil, app.ServiceConfig{})
	adapter := common.NewAppServiceAdapter(svc, app.NewRiskMonitor(failingPredictor{}, nil))

	rec := serve(t, NewHandler(adapter), http.MethodGet, "/risk/summary?project_id=p1&refresh=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 body=%s", rec.Code, rec.Body.String())
	}
	var got common.RiskSummary
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.ProjectID != "p1" || got.Refreshed || got.Summary != (domain.RiskSummary{}) || !strings.Contains(got.Error, "predictor down") {
		t.Fatalf("unexpected degraded summary %#v", got)
	}
}
