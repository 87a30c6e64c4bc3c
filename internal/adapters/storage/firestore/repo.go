// Package firestore stores survey tracking, survey history, and tasks in
// Cloud Firestore using the collections the mobile client reads.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/owcee/sitepulse/internal/app"
	"github.com/owcee/sitepulse/internal/domain"
)

// Collection names shared with the mobile client.
const (
	TrackingCollection = "surveyTracking"
	SurveysCollection  = "dailySurveys"
	TasksCollection    = "tasks"
)

// Repository implements app.Repository over a Firestore client.
type Repository struct {
	client *firestore.Client
}

// New wraps an existing client.
func New(client *firestore.Client) *Repository {
	return &Repository{client: client}
}

// Close closes the underlying client.
func (r *Repository) Close() error {
	return r.client.Close()
}

// Ping reads at most one tracking document to prove the backend answers.
func (r *Repository) Ping(ctx context.Context) error {
	if _, err := r.client.Collection(TrackingCollection).Limit(1).Documents(ctx).GetAll(); err != nil {
		return translateErr(err)
	}
	return nil
}

// GetTrackingRecord reads the tracking document for a (user, project) pair.
func (r *Repository) GetTrackingRecord(ctx context.Context, userID, projectID string) (domain.SurveyTrackingRecord, error) {
	snap, err := r.client.Collection(TrackingCollection).Doc(domain.TrackingKey(userID, projectID)).Get(ctx)
	if err != nil {
		return domain.SurveyTrackingRecord{}, translateErr(err)
	}
	return trackingFromData(snap.Data()), nil
}

// MergeTrackingRecord merges fields into the tracking document inside a
// transaction so lastSurveyDate never moves backwards.
func (r *Repository) MergeTrackingRecord(ctx context.Context, rec domain.SurveyTrackingRecord) (domain.SurveyTrackingRecord, error) {
	if strings.TrimSpace(rec.UserID) == "" || strings.TrimSpace(rec.ProjectID) == "" {
		return domain.SurveyTrackingRecord{}, domain.ErrInvalidID
	}
	ref := r.client.Collection(TrackingCollection).Doc(rec.Key())
	var merged domain.SurveyTrackingRecord
	err := r.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		existing := domain.SurveyTrackingRecord{}
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			existing = trackingFromData(snap.Data())
		}
		merged = existing.Merge(rec)
		return tx.Set(ref, trackingToData(merged), firestore.MergeAll)
	})
	if err != nil {
		return domain.SurveyTrackingRecord{}, translateErr(err)
	}
	return merged, nil
}

// AppendSurvey creates a survey history document.
func (r *Repository) AppendSurvey(ctx context.Context, s domain.SurveySubmission) error {
	if strings.TrimSpace(s.ID) == "" {
		return domain.ErrInvalidID
	}
	_, err := r.client.Collection(SurveysCollection).Doc(s.ID).Create(ctx, surveyDoc{
		UserID:                s.UserID,
		ProjectID:             s.Survey.ProjectID,
		Date:                  s.Survey.Date,
		EngineerName:          s.Survey.EngineerName,
		SiteStatus:            string(s.Survey.SiteStatus),
		SiteClosedReason:      s.Survey.SiteClosedReason,
		SiteClosedReasonOther: s.Survey.SiteClosedReasonOther,
		TaskUpdates:           taskUpdatesToDoc(s.Survey.TaskUpdates),
		Success:               s.Result.Success,
		UpdatesProcessed:      s.Result.UpdatesProcessed,
		SubmittedAt:           s.SubmittedAt,
	})
	return translateErr(err)
}

// ListSurveys lists a project's surveys, newest first.
func (r *Repository) ListSurveys(ctx context.Context, projectID string, limit int) ([]domain.SurveySubmission, error) {
	if limit <= 0 {
		limit = 30
	}
	docs, err := r.client.Collection(SurveysCollection).
		Where("projectId", "==", projectID).
		OrderBy("submittedAt", firestore.Desc).
		Limit(limit).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, translateErr(err)
	}
	out := make([]domain.SurveySubmission, 0, len(docs))
	for _, snap := range docs {
		var doc surveyDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode survey %s: %w", snap.Ref.ID, err)
		}
		out = append(out, doc.submission(snap.Ref.ID))
	}
	return out, nil
}

// CreateTask creates a task document.
func (r *Repository) CreateTask(ctx context.Context, t domain.Task) error {
	_, err := r.client.Collection(TasksCollection).Doc(t.ID).Create(ctx, taskDoc{
		ProjectID: t.ProjectID,
		Title:     t.Title,
		SubTask:   t.SubTask,
		Status:    string(t.Status),
		CreatedAt: time.Now().UTC(),
	})
	return translateErr(err)
}

// UpdateTaskStatus sets a task document's status.
func (r *Repository) UpdateTaskStatus(ctx context.Context, id string, s domain.TaskStatus) error {
	_, err := r.client.Collection(TasksCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "status", Value: string(s)},
	})
	return translateErr(err)
}

// ListTasks lists a project's tasks.
func (r *Repository) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	docs, err := r.client.Collection(TasksCollection).
		Where("projectId", "==", projectID).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, translateErr(err)
	}
	out := make([]domain.Task, 0, len(docs))
	for _, snap := range docs {
		var doc taskDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode task %s: %w", snap.Ref.ID, err)
		}
		out = append(out, doc.task(snap.Ref.ID))
	}
	return out, nil
}

// translateErr maps Firestore status codes onto app errors.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.NotFound {
		return app.ErrNotFound
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) || errors.Is(err, domain.ErrInvalidID) {
		return err
	}
	return fmt.Errorf("firestore: %w", err)
}
