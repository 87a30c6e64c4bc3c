package firestore

import (
	"strings"
	"time"

	"github.com/owcee/sitepulse/internal/domain"
)

// trackingFromData decodes a tracking document. lastSurveyDate may have been
// written as a server timestamp, a native date, or an ISO string.
func trackingFromData(data map[string]any) domain.SurveyTrackingRecord {
	rec := domain.SurveyTrackingRecord{
		UserID:    stringField(data, "userId"),
		ProjectID: stringField(data, "projectId"),
	}
	rec.SetStoredSurveyDate(data["lastSurveyDate"])
	if skipped, ok := data["skipped"].(bool); ok {
		rec.Skipped = skipped
	}
	if updated, ok := domain.NormalizeSurveyDate(data["updatedAt"]); ok {
		rec.UpdatedAt = updated.UTC()
	}
	return rec
}

// trackingToData encodes the merge payload for a tracking document.
func trackingToData(rec domain.SurveyTrackingRecord) map[string]any {
	data := map[string]any{
		"userId":    rec.UserID,
		"projectId": rec.ProjectID,
		"skipped":   rec.Skipped,
		"updatedAt": rec.UpdatedAt.UTC(),
	}
	if last := rec.StoredSurveyDate(); last != nil {
		data["lastSurveyDate"] = last
	}
	return data
}

func stringField(data map[string]any, key string) string {
	v, _ := data[key].(string)
	return strings.TrimSpace(v)
}

type taskUpdateDoc struct {
	Status           string `firestore:"status"`
	DelayReason      string `firestore:"delayReason,omitempty"`
	DelayReasonOther string `firestore:"delayReasonOther,omitempty"`
}

type surveyDoc struct {
	UserID                string                   `firestore:"userId"`
	ProjectID             string                   `firestore:"projectId"`
	Date                  time.Time                `firestore:"date"`
	EngineerName          string                   `firestore:"engineerName"`
	SiteStatus            string                   `firestore:"siteStatus"`
	SiteClosedReason      string                   `firestore:"siteClosedReason,omitempty"`
	SiteClosedReasonOther string                   `firestore:"siteClosedReasonOther,omitempty"`
	TaskUpdates           map[string]taskUpdateDoc `firestore:"taskUpdates"`
	Success               bool                     `firestore:"success"`
	UpdatesProcessed      int                      `firestore:"updatesProcessed"`
	SubmittedAt           time.Time                `firestore:"submittedAt"`
}

func taskUpdatesToDoc(in map[string]domain.TaskUpdate) map[string]taskUpdateDoc {
	out := make(map[string]taskUpdateDoc, len(in))
	for id, u := range in {
		out[id] = taskUpdateDoc{
			Status:           string(u.Status),
			DelayReason:      u.DelayReason,
			DelayReasonOther: u.DelayReasonOther,
		}
	}
	return out
}

func (d surveyDoc) submission(id string) domain.SurveySubmission {
	updates := make(map[string]domain.TaskUpdate, len(d.TaskUpdates))
	for taskID, u := range d.TaskUpdates {
		updates[taskID] = domain.TaskUpdate{
			Status:           domain.TaskProductivity(u.Status),
			DelayReason:      u.DelayReason,
			DelayReasonOther: u.DelayReasonOther,
		}
	}
	return domain.SurveySubmission{
		ID:     id,
		UserID: d.UserID,
		Survey: domain.SurveyData{
			ID:                    id,
			ProjectID:             d.ProjectID,
			Date:                  d.Date.UTC(),
			EngineerName:          d.EngineerName,
			SiteStatus:            domain.SiteStatus(d.SiteStatus),
			SiteClosedReason:      d.SiteClosedReason,
			SiteClosedReasonOther: d.SiteClosedReasonOther,
			TaskUpdates:           updates,
		},
		Result: domain.SubmissionResult{
			Success:          d.Success,
			UpdatesProcessed: d.UpdatesProcessed,
		},
		SubmittedAt: d.SubmittedAt.UTC(),
	}
}

type taskDoc struct {
	ProjectID string    `firestore:"projectId"`
	Title     string    `firestore:"title"`
	SubTask   string    `firestore:"subTask,omitempty"`
	Status    string    `firestore:"status"`
	CreatedAt time.Time `firestore:"createdAt,omitempty"`
}

// task decodes a task document; unknown statuses are treated as inactive.
func (d taskDoc) task(id string) domain.Task {
	s, err := domain.ParseTaskStatus(d.Status)
	if err != nil {
		s = domain.TaskStatus(strings.TrimSpace(d.Status))
	}
	return domain.Task{
		ID:        id,
		ProjectID: d.ProjectID,
		Title:     d.Title,
		SubTask:   d.SubTask,
		Status:    s,
	}
}
