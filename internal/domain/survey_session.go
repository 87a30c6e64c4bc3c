package domain

import (
	"slices"
	"strings"
	"time"
)

// SurveyStep is a state of the daily survey flow.
type SurveyStep string

const (
	StepOverview         SurveyStep = "overview"
	StepSiteClosedDetail SurveyStep = "site_closed_detail"
	StepTaskDelayDetail  SurveyStep = "task_delay_detail"
	StepSubmitted        SurveyStep = "submitted"
	StepSkipped          SurveyStep = "skipped"
)

// Terminal reports whether no further transitions are accepted.
func (s SurveyStep) Terminal() bool {
	return s == StepSubmitted || s == StepSkipped
}

// SurveySession drives one engineer through one day's survey for a project.
type SurveySession struct {
	projectID    string
	engineerName string
	tasks        []Task

	step         SurveyStep
	siteStatus   SiteStatus
	closedReason string
	closedOther  string
	// toggles holds the per-task answers edited in the delay detail step.
	toggles map[string]TaskUpdate
	result  *SurveyData
}

// NewSurveySession starts a session over the active subset of tasks.
func NewSurveySession(projectID, engineerName string, tasks []Task) (*SurveySession, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, ErrInvalidID
	}
	s := &SurveySession{
		projectID:    projectID,
		engineerName: strings.TrimSpace(engineerName),
		tasks:        ActiveTasks(tasks),
	}
	s.Reset()
	return s, nil
}

// Reset returns the session to a blank overview.
func (s *SurveySession) Reset() {
	s.step = StepOverview
	s.siteStatus = ""
	s.closedReason = ""
	s.closedOther = ""
	s.toggles = make(map[string]TaskUpdate, len(s.tasks))
	s.result = nil
}

func (s *SurveySession) ProjectID() string      { return s.projectID }
func (s *SurveySession) EngineerName() string   { return s.engineerName }
func (s *SurveySession) Step() SurveyStep       { return s.step }
func (s *SurveySession) SiteStatus() SiteStatus { return s.siteStatus }

// Tasks returns the active tasks the session covers.
func (s *SurveySession) Tasks() []Task {
	return slices.Clone(s.tasks)
}

// SiteClosedReason returns the chosen closed-site reason and free text.
func (s *SurveySession) SiteClosedReason() (string, string) {
	return s.closedReason, s.closedOther
}

// TaskUpdate returns the current answer for taskID in the delay detail step.
func (s *SurveySession) TaskUpdate(taskID string) TaskUpdate {
	if update, ok := s.toggles[taskID]; ok {
		return update
	}
	return TaskUpdate{Status: Productive}
}

// SelectSiteStatus records the overview answer and advances the flow.
// Normal needs no further input and finishes the survey immediately.
func (s *SurveySession) SelectSiteStatus(status SiteStatus, now time.Time) error {
	if s.step != StepOverview {
		return ErrInvalidStep
	}
	if !slices.Contains(validSiteStatuses, status) {
		return ErrInvalidSiteStatus
	}
	s.siteStatus = status
	switch status {
	case SiteStatusNormal:
		_, err := s.finish(now)
		return err
	case SiteStatusClosed:
		// A closed site stops every task; delayed keeps that answer on the way back.
		for _, task := range s.tasks {
			if s.toggles[task.ID].Status != NonProductive {
				s.toggles[task.ID] = TaskUpdate{Status: NonProductive}
			}
		}
		s.step = StepSiteClosedDetail
	case SiteStatusDelayed:
		s.step = StepTaskDelayDetail
	}
	return nil
}

// SetSiteClosedReason records why the site was closed.
func (s *SurveySession) SetSiteClosedReason(reason, other string) error {
	if s.step != StepSiteClosedDetail {
		return ErrInvalidStep
	}
	reason = strings.TrimSpace(reason)
	if !IsSiteClosedReason(reason) {
		return ErrInvalidSiteClosedReason
	}
	s.closedReason = reason
	s.closedOther = ""
	if reason == ReasonOther {
		s.closedOther = strings.TrimSpace(other)
	}
	return nil
}

// ToggleTask marks one task productive or non-productive.
// Switching back to productive clears any chosen reason.
func (s *SurveySession) ToggleTask(taskID string, productive bool) error {
	if s.step != StepTaskDelayDetail {
		return ErrInvalidStep
	}
	if !s.hasTask(taskID) {
		return ErrUnknownTask
	}
	if productive {
		s.toggles[taskID] = TaskUpdate{Status: Productive}
		return nil
	}
	current := s.toggles[taskID]
	if current.Status == NonProductive {
		return nil
	}
	s.toggles[taskID] = TaskUpdate{Status: NonProductive}
	return nil
}

// SetDelayReason records why a non-productive task did not advance.
func (s *SurveySession) SetDelayReason(taskID, reason, other string) error {
	if s.step != StepTaskDelayDetail {
		return ErrInvalidStep
	}
	if !s.hasTask(taskID) {
		return ErrUnknownTask
	}
	reason = strings.TrimSpace(reason)
	if !IsDelayReason(reason) {
		return ErrInvalidDelayReason
	}
	update := TaskUpdate{Status: NonProductive, DelayReason: reason}
	if reason == ReasonOther {
		update.DelayReasonOther = strings.TrimSpace(other)
	}
	s.toggles[taskID] = update
	return nil
}

// Draft builds the survey as currently answered without checking it.
func (s *SurveySession) Draft(now time.Time) SurveyData {
	return SurveyData{
		ProjectID:             s.projectID,
		Date:                  now.UTC(),
		EngineerName:          s.engineerName,
		SiteStatus:            s.siteStatus,
		SiteClosedReason:      s.closedReason,
		SiteClosedReasonOther: s.closedOther,
		TaskUpdates:           MapTaskUpdates(s.siteStatus, s.toggles, s.tasks),
	}
}

// Validate applies the submit guard to the current answers.
func (s *SurveySession) Validate() error {
	if s.siteStatus == "" {
		verr := &ValidationError{Cause: ErrSurveyIncomplete}
		verr.add("siteStatus", "choose how the site is doing today")
		return verr
	}
	return s.Draft(time.Time{}).Validate()
}

// Submit runs the guard and moves the session to its submitted state.
// On a guard failure the session stays on the current step.
func (s *SurveySession) Submit(now time.Time) (SurveyData, error) {
	switch s.step {
	case StepSiteClosedDetail, StepTaskDelayDetail:
	case StepSubmitted, StepSkipped:
		return SurveyData{}, ErrSessionFinished
	default:
		return SurveyData{}, ErrInvalidStep
	}
	return s.finish(now)
}

func (s *SurveySession) finish(now time.Time) (SurveyData, error) {
	if err := s.Validate(); err != nil {
		return SurveyData{}, err
	}
	data := s.Draft(now)
	s.result = &data
	s.step = StepSubmitted
	return data, nil
}

// Result returns the submitted survey, if any.
func (s *SurveySession) Result() (SurveyData, bool) {
	if s.result == nil {
		return SurveyData{}, false
	}
	return *s.result, true
}

// Reopen returns a submitted session to its last editable step so a failed
// delivery can be corrected and retried.
func (s *SurveySession) Reopen() error {
	if s.step != StepSubmitted {
		return ErrInvalidStep
	}
	s.result = nil
	switch s.siteStatus {
	case SiteStatusClosed:
		// A closed site stops every task; delayed keeps that answer on the way back.
		for _, task := range s.tasks {
			if s.toggles[task.ID].Status != NonProductive {
				s.toggles[task.ID] = TaskUpdate{Status: NonProductive}
			}
		}
		s.step = StepSiteClosedDetail
	case SiteStatusDelayed:
		s.step = StepTaskDelayDetail
	default:
		s.step = StepOverview
		s.siteStatus = ""
	}
	return nil
}

// Back leaves a detail step for the overview and keeps the answers.
func (s *SurveySession) Back() error {
	if s.step != StepSiteClosedDetail && s.step != StepTaskDelayDetail {
		return ErrInvalidStep
	}
	s.step = StepOverview
	return nil
}

// Skip ends the session without validation.
func (s *SurveySession) Skip() error {
	if s.step.Terminal() {
		return ErrSessionFinished
	}
	s.step = StepSkipped
	s.result = nil
	return nil
}

func (s *SurveySession) hasTask(taskID string) bool {
	return slices.ContainsFunc(s.tasks, func(t Task) bool { return t.ID == taskID })
}
