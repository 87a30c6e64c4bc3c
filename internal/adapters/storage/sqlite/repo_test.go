package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/owcee/sitepulse/internal/app"
	"github.com/owcee/sitepulse/internal/domain"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "sitepulse.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	return repo
}

func TestRepository_TrackingMergeLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	if _, err := repo.GetTrackingRecord(ctx, "u1", "p1"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	day1 := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	rec, err := domain.NewTrackingRecord("u1", "p1", true, day1)
	if err != nil {
		t.Fatalf("NewTrackingRecord() error = %v", err)
	}
	if _, err := repo.MergeTrackingRecord(ctx, rec); err != nil {
		t.Fatalf("MergeTrackingRecord() error = %v", err)
	}
	loaded, err := repo.GetTrackingRecord(ctx, "u1", "p1")
	if err != nil {
		t.Fatalf("GetTrackingRecord() error = %v", err)
	}
	if !loaded.Skipped || loaded.LastSurveyDate == nil || !loaded.LastSurveyDate.Equal(day1) {
		t.Fatalf("unexpected tracking record %#v", loaded)
	}

	day2 := day1.Add(24 * time.Hour)
	rec, _ = domain.NewTrackingRecord("u1", "p1", false, day2)
	if _, err := repo.MergeTrackingRecord(ctx, rec); err != nil {
		t.Fatalf("MergeTrackingRecord() error = %v", err)
	}

	stale, _ := domain.NewTrackingRecord("u1", "p1", false, day1)
	merged, err := repo.MergeTrackingRecord(ctx, stale)
	if err != nil {
		t.Fatalf("MergeTrackingRecord() error = %v", err)
	}
	if !merged.LastSurveyDate.Equal(day2) {
		t.Fatalf("expected last survey date to stay at %v, got %v", day2, merged.LastSurveyDate)
	}
	loaded, _ = repo.GetTrackingRecord(ctx, "u1", "p1")
	if loaded.Skipped || !loaded.LastSurveyDate.Equal(day2) || !loaded.UpdatedAt.Equal(day2) {
		t.Fatalf("unexpected merged record %#v", loaded)
	}

	if _, err := repo.MergeTrackingRecord(ctx, domain.SurveyTrackingRecord{ProjectID: "p1"}); err != domain.ErrInvalidID {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestRepository_TrackingAcceptsBareDateRows(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO survey_tracking(key, user_id, project_id, last_survey_date, skipped, updated_at)
		VALUES('u1_p1', 'u1', 'p1', '2026-03-02', 0, '2026-03-02T08:00:00Z')
	`)
	if err != nil {
		t.Fatalf("insert legacy row error = %v", err)
	}
	rec, err := repo.GetTrackingRecord(ctx, "u1", "p1")
	if err != nil {
		t.Fatalf("GetTrackingRecord() error = %v", err)
	}
	site := time.FixedZone("site", -5*60*60)
	if rec.LastSurveyDate == nil || !rec.WallClock || !rec.AddressedOn(time.Date(2026, 3, 2, 10, 0, 0, 0, site), site) {
		t.Fatalf("expected bare date to address 2026-03-02 in the site zone, got %#v", rec)
	}

	stale, _ := domain.NewTrackingRecord("u1", "p1", true, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	if _, err := repo.MergeTrackingRecord(ctx, stale); err != nil {
		t.Fatalf("MergeTrackingRecord() error = %v", err)
	}
	var raw string
	if err := repo.db.QueryRowContext(ctx, `SELECT last_survey_date FROM survey_tracking WHERE key = 'u1_p1'`).Scan(&raw); err != nil {
		t.Fatalf("read raw date error = %v", err)
	}
	if raw != "2026-03-02T00:00:00" {
		t.Fatalf("expected zone-less date kept on rewrite, got %q", raw)
	}
	if rec, _ = repo.GetTrackingRecord(ctx, "u1", "p1"); rec.Skipped {
		t.Fatalf("expected older skip to leave the record unskipped, got %#v", rec)
	}

	_, _ = repo.db.ExecContext(ctx, `UPDATE survey_tracking SET last_survey_date = 'not a date' WHERE key = 'u1_p1'`)
	rec, err = repo.GetTrackingRecord(ctx, "u1", "p1")
	if err != nil {
		t.Fatalf("GetTrackingRecord() error = %v", err)
	}
	if rec.LastSurveyDate != nil {
		t.Fatalf("expected unreadable date to be dropped, got %v", rec.LastSurveyDate)
	}
}

func TestRepository_SurveyHistory(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	for i, id := range []string{"s1", "s2", "s3"} {
		submittedAt := base.Add(time.Duration(i) * 24 * time.Hour)
		err := repo.AppendSurvey(ctx, domain.SurveySubmission{
			ID:     id,
			UserID: "u1",
			Survey: domain.SurveyData{
				ID:               id,
				ProjectID:        "p1",
				Date:             submittedAt,
				EngineerName:     "Ana",
				SiteStatus:       domain.SiteStatusClosed,
				SiteClosedReason: "Holiday",
				TaskUpdates:      map[string]domain.TaskUpdate{"t1": {Status: domain.NonProductive}},
			},
			Result: domain.SubmissionResult{
				Success:          true,
				UpdatesProcessed: 1,
				Updates: []domain.TaskDelayUpdate{{
					TaskID:           "t1",
					DelayDays:        1.5,
					RiskLevel:        domain.RiskMedium,
					LastSurveyUpdate: json.RawMessage(`{"seconds":1}`),
				}},
			},
			SubmittedAt: submittedAt,
		})
		if err != nil {
			t.Fatalf("AppendSurvey() error = %v", err)
		}
	}
	if err := repo.AppendSurvey(ctx, domain.SurveySubmission{}); err != domain.ErrInvalidID {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}

	history, err := repo.ListSurveys(ctx, "p1", 2)
	if err != nil {
		t.Fatalf("ListSurveys() error = %v", err)
	}
	if len(history) != 2 || history[0].ID != "s3" || history[1].ID != "s2" {
		t.Fatalf("unexpected history order %#v", history)
	}
	got := history[0]
	if got.Survey.SiteClosedReason != "Holiday" || got.Survey.TaskUpdates["t1"].Status != domain.NonProductive {
		t.Fatalf("unexpected survey round trip %#v", got.Survey)
	}
	if len(got.Result.Updates) != 1 || got.Result.Updates[0].RiskLevel != domain.RiskMedium {
		t.Fatalf("unexpected result round trip %#v", got.Result)
	}
	if string(got.Result.Updates[0].LastSurveyUpdate) != `{"seconds":1}` {
		t.Fatalf("expected raw survey update preserved, got %s", got.Result.Updates[0].LastSurveyUpdate)
	}

	empty, err := repo.ListSurveys(ctx, "p2", 10)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty history, got %#v err=%v", empty, err)
	}
}

func TestRepository_Tasks(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	for _, in := range []domain.TaskInput{
		{ID: "t1", ProjectID: "p1", Title: "Excavation", Status: domain.TaskStatusInProgress},
		{ID: "t2", ProjectID: "p1", Title: "Rebar", SubTask: "Level 1"},
		{ID: "t3", ProjectID: "p2", Title: "Fence"},
	} {
		task, err := domain.NewTask(in)
		if err != nil {
			t.Fatalf("NewTask() error = %v", err)
		}
		if err := repo.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask() error = %v", err)
		}
	}

	tasks, err := repo.ListTasks(ctx, "p1")
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %#v", tasks)
	}
	if tasks[1].SubTask != "Level 1" || tasks[1].Status != domain.TaskStatusNotStarted {
		t.Fatalf("unexpected task %#v", tasks[1])
	}

	if err := repo.UpdateTaskStatus(ctx, "t1", domain.TaskStatusCompleted); err != nil {
		t.Fatalf("UpdateTaskStatus() error = %v", err)
	}
	tasks, _ = repo.ListTasks(ctx, "p1")
	if active := domain.ActiveTasks(tasks); len(active) != 1 || active[0].ID != "t2" {
		t.Fatalf("unexpected active tasks %#v", active)
	}
	if err := repo.UpdateTaskStatus(ctx, "missing", domain.TaskStatusCompleted); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepository_ServiceGateRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	svc := app.NewService(repo, nil, nil, func() time.Time { return now }, app.ServiceConfig{Location: time.UTC})

	if !svc.ShouldShowSurvey(ctx, "u1", "p1") {
		t.Fatal("expected survey to show without a record")
	}
	if err := svc.RecordSurveySubmission(ctx, "u1", "p1"); err != nil {
		t.Fatalf("RecordSurveySubmission() error = %v", err)
	}
	if svc.ShouldShowSurvey(ctx, "u1", "p1") {
		t.Fatal("expected survey hidden after submission")
	}
	now = now.Add(12 * time.Hour)
	if !svc.ShouldShowSurvey(ctx, "u1", "p1") {
		t.Fatal("expected survey to show on the next day")
	}
}

func TestOpenInMemory(t *testing.T) {
	repo, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	defer repo.Close()
	if err := repo.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}
