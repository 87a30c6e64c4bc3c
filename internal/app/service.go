package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/owcee/sitepulse/internal/domain"
)

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	// Location decides which calendar day "today" is. Nil means time.Local.
	Location                   *time.Location
	RejectDuplicateSubmissions bool
	Logger                     Logger
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service runs the daily survey workflow against a storage backend and the
// delay predictor.
type Service struct {
	repo             Repository
	predictor        Predictor
	idGen            IDGenerator
	clock            Clock
	loc              *time.Location
	rejectDuplicates bool
	logger           Logger
	locks            keyedLocker
}

// NewService constructs a new value for this package.
func NewService(repo Repository, predictor Predictor, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Logger == nil {
		cfg.Logger = discardLogger{}
	}
	return &Service{
		repo:             repo,
		predictor:        predictor,
		idGen:            idGen,
		clock:            clock,
		loc:              cfg.Location,
		rejectDuplicates: cfg.RejectDuplicateSubmissions,
		logger:           cfg.Logger,
	}
}

// Location returns the zone used for calendar-day comparisons.
func (s *Service) Location() *time.Location {
	return s.loc
}

// ShouldShowSurvey reports whether today's survey is still unaddressed.
// Any failure answers true so the engineer is never silently skipped.
func (s *Service) ShouldShowSurvey(ctx context.Context, userID, projectID string) bool {
	userID = strings.TrimSpace(userID)
	projectID = strings.TrimSpace(projectID)
	if userID == "" || projectID == "" {
		s.logger.Warn("survey gate called without identity", "user_id", userID, "project_id", projectID)
		return true
	}
	rec, err := s.repo.GetTrackingRecord(ctx, userID, projectID)
	if errors.Is(err, ErrNotFound) {
		return true
	}
	if err != nil {
		s.logger.Warn("survey gate read failed; showing survey", "user_id", userID, "project_id", projectID, "err", err)
		return true
	}
	return !rec.AddressedOn(s.clock(), s.loc)
}

// SubmitSurvey validates a survey and hands it to the delay predictor.
// Predictor errors are returned wrapped but otherwise unchanged.
func (s *Service) SubmitSurvey(ctx context.Context, data domain.SurveyData) (domain.SubmissionResult, error) {
	data = s.prepareSurvey(ctx, data)
	if err := data.Validate(); err != nil {
		return domain.SubmissionResult{}, err
	}
	if s.predictor == nil {
		return domain.SubmissionResult{}, ErrPredictorUnavailable
	}
	result, err := s.predictor.SubmitDailySurvey(ctx, data)
	if err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("submit daily survey: %w", err)
	}
	return result, nil
}

// RecordSurveySubmission marks today as addressed by a submission.
func (s *Service) RecordSurveySubmission(ctx context.Context, userID, projectID string) error {
	return s.recordAddressed(ctx, userID, projectID, false)
}

// SkipSurveyForToday marks today as addressed by a skip.
// Failures are logged and never returned.
func (s *Service) SkipSurveyForToday(ctx context.Context, userID, projectID string) {
	if err := s.recordAddressed(ctx, userID, projectID, true); err != nil {
		s.logger.Warn("skip survey record failed", "user_id", userID, "project_id", projectID, "err", err)
		return
	}
	s.logger.Info("survey skipped for today", "user_id", userID, "project_id", projectID)
}

func (s *Service) recordAddressed(ctx context.Context, userID, projectID string, skipped bool) error {
	rec, err := domain.NewTrackingRecord(userID, projectID, skipped, s.clock())
	if err != nil {
		return err
	}
	if _, err := s.repo.MergeTrackingRecord(ctx, rec); err != nil {
		return fmt.Errorf("merge tracking record %s: %w", rec.Key(), err)
	}
	return nil
}

// SubmitDailySurvey runs the full submission pipeline for one engineer:
// validate, reject a second same-day submission, call the predictor, then
// record the day and keep the survey in history. Nothing is recorded when the
// predictor call fails.
func (s *Service) SubmitDailySurvey(ctx context.Context, userID string, data domain.SurveyData) (domain.SubmissionResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		if engineer, ok := EngineerFromContext(ctx); ok {
			userID = engineer.UserID
		}
	}
	if userID == "" {
		return domain.SubmissionResult{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	data = s.prepareSurvey(ctx, data)
	if err := data.Validate(); err != nil {
		return domain.SubmissionResult{}, err
	}

	unlock := s.locks.lock(domain.TrackingKey(userID, data.ProjectID))
	defer unlock()

	if s.rejectDuplicates {
		if err := s.ensureNotSubmittedToday(ctx, userID, data.ProjectID); err != nil {
			return domain.SubmissionResult{}, err
		}
	}

	result, err := s.SubmitSurvey(ctx, data)
	if err != nil {
		s.logger.Error("daily survey submission failed", "user_id", userID, "project_id", data.ProjectID, "err", err)
		return domain.SubmissionResult{}, err
	}

	if err := s.RecordSurveySubmission(ctx, userID, data.ProjectID); err != nil {
		// The predictor already has the survey; the next gate check will ask again.
		s.logger.Error("record survey submission failed", "user_id", userID, "project_id", data.ProjectID, "err", err)
	}
	submission := domain.SurveySubmission{
		ID:          data.ID,
		UserID:      userID,
		Survey:      data,
		Result:      result,
		SubmittedAt: s.clock().UTC(),
	}
	if err := s.repo.AppendSurvey(ctx, submission); err != nil {
		s.logger.Warn("append survey history failed", "survey_id", data.ID, "project_id", data.ProjectID, "err", err)
	}
	s.logger.Info("daily survey submitted",
		"user_id", userID,
		"project_id", data.ProjectID,
		"site_status", data.SiteStatus,
		"updates_processed", result.UpdatesProcessed,
	)
	return result, nil
}

func (s *Service) ensureNotSubmittedToday(ctx context.Context, userID, projectID string) error {
	rec, err := s.repo.GetTrackingRecord(ctx, userID, projectID)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		s.logger.Warn("duplicate check read failed; continuing", "user_id", userID, "project_id", projectID, "err", err)
		return nil
	}
	if !rec.Skipped && rec.AddressedOn(s.clock(), s.loc) {
		return ErrAlreadySubmittedToday
	}
	return nil
}

// prepareSurvey fills identity, id, and date defaults before validation.
func (s *Service) prepareSurvey(ctx context.Context, data domain.SurveyData) domain.SurveyData {
	data = data.Normalized()
	if data.EngineerName == "" {
		if engineer, ok := EngineerFromContext(ctx); ok {
			data.EngineerName = engineer.DisplayName
		}
	}
	if data.ID == "" {
		data.ID = s.idGen()
	}
	if data.Date.IsZero() {
		data.Date = s.clock().UTC()
	}
	return data
}

// TrackingRecord returns the stored tracking record for a (user, project) pair.
func (s *Service) TrackingRecord(ctx context.Context, userID, projectID string) (domain.SurveyTrackingRecord, error) {
	return s.repo.GetTrackingRecord(ctx, strings.TrimSpace(userID), strings.TrimSpace(projectID))
}

// CreateTaskInput holds input values for create task operations.
type CreateTaskInput struct {
	ProjectID string
	Title     string
	SubTask   string
	Status    domain.TaskStatus
}

// CreateTask adds a task to the local catalogue.
func (s *Service) CreateTask(ctx context.Context, in CreateTaskInput) (domain.Task, error) {
	task, err := domain.NewTask(domain.TaskInput{
		ID:        s.idGen(),
		ProjectID: in.ProjectID,
		Title:     in.Title,
		SubTask:   in.SubTask,
		Status:    in.Status,
	})
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// SetTaskStatus moves a task through its lifecycle.
func (s *Service) SetTaskStatus(ctx context.Context, taskID string, raw string) (domain.TaskStatus, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return "", domain.ErrInvalidID
	}
	status, err := domain.ParseTaskStatus(raw)
	if err != nil {
		return "", err
	}
	if err := s.repo.UpdateTaskStatus(ctx, taskID, status); err != nil {
		return "", err
	}
	return status, nil
}

// ListTasks lists a project's tasks; activeOnly keeps survey-eligible ones.
func (s *Service) ListTasks(ctx context.Context, projectID string, activeOnly bool) ([]domain.Task, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, domain.ErrInvalidID
	}
	tasks, err := s.repo.ListTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if activeOnly {
		return domain.ActiveTasks(tasks), nil
	}
	return tasks, nil
}

// ListSurveyHistory lists delivered surveys for a project, newest first.
func (s *Service) ListSurveyHistory(ctx context.Context, projectID string, limit int) ([]domain.SurveySubmission, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, domain.ErrInvalidID
	}
	if limit <= 0 {
		limit = 30
	}
	return s.repo.ListSurveys(ctx, projectID, limit)
}

// keyedLocker serializes work per key within this process. Entries are
// dropped once no caller holds or waits on them.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func (k *keyedLocker) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*keyedLock{}
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// size reports how many keys currently hold an entry.
func (k *keyedLocker) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
