package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/owcee/sitepulse/internal/domain"
)

// SurveyPrompt is the outcome of a workspace's one-time survey check.
type SurveyPrompt struct {
	AlreadyChecked bool
	Show           bool
	NoActiveTasks  bool
	Session        *domain.SurveySession
}

// Workspace is one engineer's session on one project.
type Workspace struct {
	svc      *Service
	engineer Engineer
	project  string

	mu            sync.Mutex
	surveyChecked bool
}

// OpenWorkspace starts a workspace for the engineer on a project.
func (s *Service) OpenWorkspace(engineer Engineer, projectID string) (*Workspace, error) {
	engineer = normalizeEngineer(engineer)
	projectID = strings.TrimSpace(projectID)
	if engineer.UserID == "" || projectID == "" {
		return nil, domain.ErrInvalidID
	}
	return &Workspace{svc: s, engineer: engineer, project: projectID}, nil
}

func (w *Workspace) ProjectID() string  { return w.project }
func (w *Workspace) Engineer() Engineer { return w.engineer }

// CheckSurvey runs the eligibility gate once for the workspace lifetime.
// When the survey is due and active tasks exist it returns a fresh session.
func (w *Workspace) CheckSurvey(ctx context.Context) (SurveyPrompt, error) {
	w.mu.Lock()
	if w.surveyChecked {
		w.mu.Unlock()
		return SurveyPrompt{AlreadyChecked: true}, nil
	}
	w.surveyChecked = true
	w.mu.Unlock()

	if !w.svc.ShouldShowSurvey(ctx, w.engineer.UserID, w.project) {
		return SurveyPrompt{}, nil
	}
	tasks, err := w.svc.ListTasks(ctx, w.project, true)
	if err != nil {
		return SurveyPrompt{}, fmt.Errorf("load survey tasks: %w", err)
	}
	if len(tasks) == 0 {
		return SurveyPrompt{NoActiveTasks: true}, nil
	}
	session, err := domain.NewSurveySession(w.project, w.engineer.DisplayName, tasks)
	if err != nil {
		return SurveyPrompt{}, err
	}
	return SurveyPrompt{Show: true, Session: session}, nil
}

// Submit delivers a submitted session. On failure the session is reopened
// on its last step so the engineer can correct and retry.
func (w *Workspace) Submit(ctx context.Context, session *domain.SurveySession) (domain.SubmissionResult, error) {
	data, ok := session.Result()
	if !ok {
		return domain.SubmissionResult{}, ErrSurveyNotReady
	}
	ctx = WithEngineer(ctx, w.engineer)
	result, err := w.svc.SubmitDailySurvey(ctx, w.engineer.UserID, data)
	if err != nil {
		_ = session.Reopen()
		return domain.SubmissionResult{}, err
	}
	return result, nil
}

// Skip ends the session and records today as skipped.
func (w *Workspace) Skip(ctx context.Context, session *domain.SurveySession) {
	if session != nil {
		_ = session.Skip()
	}
	w.svc.SkipSurveyForToday(ctx, w.engineer.UserID, w.project)
}
