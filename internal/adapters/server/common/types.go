// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"

	"github.com/owcee/sitepulse/internal/domain"
)

// ErrInvalidRequest reports malformed or incomplete transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrConflict reports a request that conflicts with today's survey state.
var ErrConflict = errors.New("conflict")

// ErrUpstreamUnavailable reports a missing or failing delay predictor.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// EligibilityRequest asks whether today's survey should be shown.
type EligibilityRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	ProjectID string `json:"project_id" validate:"required"`
}

// Eligibility is the gate decision plus the stored tracking state.
type Eligibility struct {
	UserID         string     `json:"user_id"`
	ProjectID      string     `json:"project_id"`
	ShowSurvey     bool       `json:"show_survey"`
	LastSurveyDate *time.Time `json:"last_survey_date,omitempty"`
	Skipped        bool       `json:"skipped"`
}

// TaskTogglePayload is one task's answer in a delayed-site survey.
type TaskTogglePayload struct {
	Status           string `json:"status" validate:"required,oneof=productive non_productive"`
	DelayReason      string `json:"delay_reason,omitempty"`
	DelayReasonOther string `json:"delay_reason_other,omitempty"`
}

// SubmitSurveyRequest carries one engineer's daily answers. Task updates for
// normal and closed sites are derived from the active task list; Tasks only
// matters for delayed sites.
type SubmitSurveyRequest struct {
	UserID                string                       `json:"user_id" validate:"required"`
	ProjectID             string                       `json:"project_id" validate:"required"`
	EngineerName          string                       `json:"engineer_name,omitempty"`
	SiteStatus            string                       `json:"site_status" validate:"required,oneof=normal delayed closed"`
	SiteClosedReason      string                       `json:"site_closed_reason,omitempty" validate:"required_if=SiteStatus closed"`
	SiteClosedReasonOther string                       `json:"site_closed_reason_other,omitempty"`
	Tasks                 map[string]TaskTogglePayload `json:"tasks,omitempty" validate:"dive"`
}

// SubmitSurveyResult is the derived task updates plus the predictor's answer.
type SubmitSurveyResult struct {
	ProjectID   string                       `json:"project_id"`
	SiteStatus  domain.SiteStatus            `json:"site_status"`
	TaskUpdates map[string]domain.TaskUpdate `json:"task_updates"`
	Result      domain.SubmissionResult      `json:"result"`
}

// SkipSurveyRequest dismisses today's survey.
type SkipSurveyRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	ProjectID string `json:"project_id" validate:"required"`
}

// HistoryRequest lists delivered surveys.
type HistoryRequest struct {
	ProjectID string `json:"project_id" validate:"required"`
	Limit     int    `json:"limit" validate:"gte=0,lte=200"`
}

// RiskSummaryRequest asks for a project's task risk counts.
type RiskSummaryRequest struct {
	ProjectID string `json:"project_id" validate:"required"`
	Refresh   bool   `json:"refresh"`
}

// RiskSummary is a project's risk counts and whether they were just refreshed.
// A failed refresh reports zero counts and carries the failure in Error.
type RiskSummary struct {
	ProjectID string             `json:"project_id"`
	Refreshed bool               `json:"refreshed"`
	Summary   domain.RiskSummary `json:"summary"`
	Error     string             `json:"error,omitempty"`
}

// ActiveTasksRequest lists survey-eligible tasks.
type ActiveTasksRequest struct {
	ProjectID string `json:"project_id" validate:"required"`
}

// SurveyService is the surface HTTP and MCP adapters call.
type SurveyService interface {
	Eligibility(context.Context, EligibilityRequest) (Eligibility, error)
	SubmitSurvey(context.Context, SubmitSurveyRequest) (SubmitSurveyResult, error)
	SkipSurvey(context.Context, SkipSurveyRequest) (Eligibility, error)
	SurveyHistory(context.Context, HistoryRequest) ([]domain.SurveySubmission, error)
	RiskSummary(context.Context, RiskSummaryRequest) (RiskSummary, error)
	ActiveTasks(context.Context, ActiveTasksRequest) ([]domain.Task, error)
}
