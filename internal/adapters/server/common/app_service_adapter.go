package common

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/owcee/sitepulse/internal/app"
	"github.com/owcee/sitepulse/internal/domain"
)

// AppServiceAdapter maps transport contracts onto app.Service and the risk monitor.
type AppServiceAdapter struct {
	service  *app.Service
	risk     *app.RiskMonitor
	validate *validator.Validate
}

// NewAppServiceAdapter builds one common adapter. A nil risk monitor disables
// risk summaries.
func NewAppServiceAdapter(service *app.Service, risk *app.RiskMonitor) *AppServiceAdapter {
	return &AppServiceAdapter{
		service:  service,
		risk:     risk,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Eligibility runs the survey gate for one (user, project) pair.
func (a *AppServiceAdapter) Eligibility(ctx context.Context, in EligibilityRequest) (Eligibility, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	if err := a.check(in); err != nil {
		return Eligibility{}, err
	}
	return a.eligibility(ctx, in.UserID, in.ProjectID), nil
}

// SubmitSurvey derives per-task updates from the active task list and runs
// the submission pipeline.
func (a *AppServiceAdapter) SubmitSurvey(ctx context.Context, in SubmitSurveyRequest) (SubmitSurveyResult, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.SiteStatus = strings.ToLower(strings.TrimSpace(in.SiteStatus))
	if err := a.check(in); err != nil {
		return SubmitSurveyResult{}, err
	}
	status, err := domain.ParseSiteStatus(in.SiteStatus)
	if err != nil {
		return SubmitSurveyResult{}, mapAppError("submit survey", err)
	}

	active, err := a.service.ListTasks(ctx, in.ProjectID, true)
	if err != nil {
		return SubmitSurveyResult{}, mapAppError("load active tasks", err)
	}
	toggles := make(map[string]domain.TaskUpdate, len(in.Tasks))
	for id, payload := range in.Tasks {
		id = strings.TrimSpace(id)
		if !slices.ContainsFunc(active, func(t domain.Task) bool { return t.ID == id }) {
			return SubmitSurveyResult{}, fmt.Errorf("submit survey: task %q: %w", id, errors.Join(ErrInvalidRequest, domain.ErrUnknownTask))
		}
		toggles[id] = domain.TaskUpdate{
			Status:           domain.TaskProductivity(payload.Status),
			DelayReason:      strings.TrimSpace(payload.DelayReason),
			DelayReasonOther: strings.TrimSpace(payload.DelayReasonOther),
		}
	}
	data := domain.SurveyData{
		ProjectID:             in.ProjectID,
		EngineerName:          strings.TrimSpace(in.EngineerName),
		SiteStatus:            status,
		SiteClosedReason:      in.SiteClosedReason,
		SiteClosedReasonOther: in.SiteClosedReasonOther,
		TaskUpdates:           domain.MapTaskUpdates(status, toggles, active),
	}

	ctx = app.WithEngineer(ctx, app.Engineer{UserID: in.UserID, DisplayName: data.EngineerName})
	result, err := a.service.SubmitDailySurvey(ctx, in.UserID, data)
	if err != nil {
		return SubmitSurveyResult{}, mapAppError("submit survey", err)
	}
	return SubmitSurveyResult{
		ProjectID:   in.ProjectID,
		SiteStatus:  status,
		TaskUpdates: data.Normalized().TaskUpdates,
		Result:      result,
	}, nil
}

// SkipSurvey records today's skip and returns the updated gate state.
func (a *AppServiceAdapter) SkipSurvey(ctx context.Context, in SkipSurveyRequest) (Eligibility, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	if err := a.check(in); err != nil {
		return Eligibility{}, err
	}
	a.service.SkipSurveyForToday(ctx, in.UserID, in.ProjectID)
	return a.eligibility(ctx, in.UserID, in.ProjectID), nil
}

// SurveyHistory lists delivered surveys, newest first.
func (a *AppServiceAdapter) SurveyHistory(ctx context.Context, in HistoryRequest) ([]domain.SurveySubmission, error) {
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	if err := a.check(in); err != nil {
		return nil, err
	}
	history, err := a.service.ListSurveyHistory(ctx, in.ProjectID, in.Limit)
	if err != nil {
		return nil, mapAppError("list survey history", err)
	}
	return history, nil
}

// RiskSummary returns the stored summary, refreshing it first when asked to
// or when none has been computed yet. A failed refresh degrades to zero
// counts with the failure in Error.
func (a *AppServiceAdapter) RiskSummary(ctx context.Context, in RiskSummaryRequest) (RiskSummary, error) {
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	if err := a.check(in); err != nil {
		return RiskSummary{}, err
	}
	out := RiskSummary{ProjectID: in.ProjectID}
	if a.risk == nil {
		out.Error = "risk summaries are disabled"
		return out, nil
	}
	out.Summary = a.risk.Summary(in.ProjectID)
	if !in.Refresh && out.Summary.Total > 0 {
		return out, nil
	}
	summary, err := a.risk.Refresh(ctx, in.ProjectID)
	if err != nil {
		out.Summary = domain.RiskSummary{}
		out.Error = err.Error()
		return out, nil
	}
	out.Summary = summary
	out.Refreshed = true
	return out, nil
}

// ActiveTasks lists survey-eligible tasks for a project.
func (a *AppServiceAdapter) ActiveTasks(ctx context.Context, in ActiveTasksRequest) ([]domain.Task, error) {
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	if err := a.check(in); err != nil {
		return nil, err
	}
	tasks, err := a.service.ListTasks(ctx, in.ProjectID, true)
	if err != nil {
		return nil, mapAppError("list active tasks", err)
	}
	return tasks, nil
}

func (a *AppServiceAdapter) eligibility(ctx context.Context, userID, projectID string) Eligibility {
	out := Eligibility{
		UserID:     userID,
		ProjectID:  projectID,
		ShowSurvey: a.service.ShouldShowSurvey(ctx, userID, projectID),
	}
	if rec, err := a.service.TrackingRecord(ctx, userID, projectID); err == nil {
		out.LastSurveyDate = rec.LastSurveyDate
		out.Skipped = rec.Skipped
	}
	return out
}

// check runs struct validation and folds failures into ErrInvalidRequest.
func (a *AppServiceAdapter) check(in any) error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured: %w", ErrUpstreamUnavailable)
	}
	err := a.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(fields, "; "))
	}
	return errors.Join(ErrInvalidRequest, err)
}

// mapAppError maps app and domain errors onto transport errors.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, app.ErrAlreadySubmittedToday):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrConflict, err))
	case errors.Is(err, app.ErrPredictorUnavailable):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrUpstreamUnavailable, err))
	case errors.As(err, &verr),
		errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidSiteStatus),
		errors.Is(err, domain.ErrInvalidTaskStatus),
		errors.Is(err, domain.ErrInvalidProductivity),
		errors.Is(err, domain.ErrSurveyIncomplete):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
