package app

import (
	"context"

	"github.com/owcee/sitepulse/internal/domain"
)

// TrackingStore reads and merges per-(user, project) survey tracking records.
// GetTrackingRecord returns ErrNotFound when no record exists.
type TrackingStore interface {
	GetTrackingRecord(context.Context, string, string) (domain.SurveyTrackingRecord, error)
	MergeTrackingRecord(context.Context, domain.SurveyTrackingRecord) (domain.SurveyTrackingRecord, error)
}

// SurveyHistory keeps delivered surveys, newest first on read.
type SurveyHistory interface {
	AppendSurvey(context.Context, domain.SurveySubmission) error
	ListSurveys(context.Context, string, int) ([]domain.SurveySubmission, error)
}

// TaskRepository supplies the project task list.
type TaskRepository interface {
	CreateTask(context.Context, domain.Task) error
	UpdateTaskStatus(context.Context, string, domain.TaskStatus) error
	ListTasks(context.Context, string) ([]domain.Task, error)
}

// Repository groups the storage ports a backend provides.
type Repository interface {
	TrackingStore
	SurveyHistory
	TaskRepository
}

// Predictor is the remote delay-prediction boundary.
type Predictor interface {
	SubmitDailySurvey(context.Context, domain.SurveyData) (domain.SubmissionResult, error)
	PredictAllDelays(context.Context, string) (domain.PredictionBatch, error)
}

// Notifier delivers push notifications.
type Notifier interface {
	Notify(context.Context, domain.Notification) error
}

// Logger is the structured logger used by the service layer.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
	Error(msg any, keyvals ...any)
}

type discardLogger struct{}

func (discardLogger) Debug(any, ...any) {}
func (discardLogger) Info(any, ...any)  {}
func (discardLogger) Warn(any, ...any)  {}
func (discardLogger) Error(any, ...any) {}
