package app

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/owcee/sitepulse/internal/domain"
)

func seedTasks(repo *fakeRepo, tasks ...domain.Task) {
	for _, task := range tasks {
		repo.tasks[task.ID] = task
	}
}

func TestWorkspaceCheckSurveyRunsOnce(t *testing.T) {
	f := newServiceFixture(t)
	seedTasks(f.repo,
		domain.Task{ID: "t1", ProjectID: "p1", Title: "Piling", Status: domain.TaskStatusInProgress},
		domain.Task{ID: "t2", ProjectID: "p1", Title: "Handover", Status: domain.TaskStatusCompleted},
	)
	ws, err := f.svc.OpenWorkspace(Engineer{UserID: "u1", DisplayName: "Ana"}, "p1")
	if err != nil {
		t.Fatalf("OpenWorkspace() error = %v", err)
	}

	prompt, err := ws.CheckSurvey(context.Background())
	if err != nil {
		t.Fatalf("CheckSurvey() error = %v", err)
	}
	if !prompt.Show || prompt.Session == nil {
		t.Fatalf("expected a survey session, got %#v", prompt)
	}
	if got := prompt.Session.Tasks(); len(got) != 1 || got[0].ID != "t1" {
		t.Fatalf("expected only active tasks, got %#v", got)
	}
	if prompt.Session.EngineerName() != "Ana" {
		t.Fatalf("unexpected engineer %q", prompt.Session.EngineerName())
	}
	if want := []string{"get_tracking", "list_tasks"}; !slices.Equal(f.repo.calls, want) {
		t.Fatalf("expected gate before task load %v, got %v", want, f.repo.calls)
	}

	again, err := ws.CheckSurvey(context.Background())
	if err != nil {
		t.Fatalf("CheckSurvey() error = %v", err)
	}
	if !again.AlreadyChecked || again.Session != nil {
		t.Fatalf("expected second check to be a no-op, got %#v", again)
	}
	if len(f.repo.calls) != 2 {
		t.Fatalf("expected no further store calls, got %v", f.repo.calls)
	}
}

func TestWorkspaceCheckSurveyNotDue(t *testing.T) {
	f := newServiceFixture(t)
	seedTasks(f.repo, domain.Task{ID: "t1", ProjectID: "p1", Title: "Piling", Status: domain.TaskStatusNotStarted})
	f.svc.SkipSurveyForToday(context.Background(), "u1", "p1")
	f.repo.calls = nil

	ws, _ := f.svc.OpenWorkspace(Engineer{UserID: "u1"}, "p1")
	prompt, err := ws.CheckSurvey(context.Background())
	if err != nil {
		t.Fatalf("CheckSurvey() error = %v", err)
	}
	if prompt.Show {
		t.Fatal("expected no survey after today's skip")
	}
	if slices.Contains(f.repo.calls, "list_tasks") {
		t.Fatal("expected tasks not loaded when survey is not due")
	}
}

func TestWorkspaceCheckSurveyNoActiveTasks(t *testing.T) {
	f := newServiceFixture(t)
	seedTasks(f.repo, domain.Task{ID: "t1", ProjectID: "p1", Title: "Handover", Status: domain.TaskStatusCompleted})
	ws, _ := f.svc.OpenWorkspace(Engineer{UserID: "u1"}, "p1")
	prompt, err := ws.CheckSurvey(context.Background())
	if err != nil {
		t.Fatalf("CheckSurvey() error = %v", err)
	}
	if prompt.Show || !prompt.NoActiveTasks {
		t.Fatalf("unexpected prompt %#v", prompt)
	}
}

func TestWorkspaceCheckSurveyTaskLoadFailureKeepsGuard(t *testing.T) {
	f := newServiceFixture(t)
	f.repo.listErr = errors.New("offline")
	ws, _ := f.svc.OpenWorkspace(Engineer{UserID: "u1"}, "p1")
	if _, err := ws.CheckSurvey(context.Background()); err == nil {
		t.Fatal("expected task load failure")
	}
	prompt, err := ws.CheckSurvey(context.Background())
	if err != nil || !prompt.AlreadyChecked {
		t.Fatalf("expected guard to stay set, got %#v err=%v", prompt, err)
	}
}

func TestWorkspaceSubmitReopensOnFailure(t *testing.T) {
	f := newServiceFixture(t)
	seedTasks(f.repo, domain.Task{ID: "t1", ProjectID: "p1", Title: "Piling", Status: domain.TaskStatusNotStarted})
	ws, _ := f.svc.OpenWorkspace(Engineer{UserID: "u1", DisplayName: "Ana"}, "p1")
	prompt, _ := ws.CheckSurvey(context.Background())
	session := prompt.Session

	if _, err := ws.Submit(context.Background(), session); !errors.Is(err, ErrSurveyNotReady) {
		t.Fatalf("expected ErrSurveyNotReady, got %v", err)
	}

	_ = session.SelectSiteStatus(domain.SiteStatusDelayed, *f.now)
	_ = session.SetDelayReason("t1", "Equipment Breakdown", "")
	if _, err := session.Submit(*f.now); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	f.predictor.submitErr = errors.New("unavailable")
	if _, err := ws.Submit(context.Background(), session); err == nil {
		t.Fatal("expected delivery failure")
	}
	if session.Step() != domain.StepTaskDelayDetail {
		t.Fatalf("expected session reopened on task delay detail, got %q", session.Step())
	}
	if got := session.TaskUpdate("t1"); got.DelayReason != "Equipment Breakdown" {
		t.Fatalf("expected answers kept, got %#v", got)
	}

	f.predictor.submitErr = nil
	if _, err := session.Submit(*f.now); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := ws.Submit(context.Background(), session); err != nil {
		t.Fatalf("Workspace.Submit() error = %v", err)
	}
	if f.svc.ShouldShowSurvey(context.Background(), "u1", "p1") {
		t.Fatal("expected survey addressed after retry")
	}
}

func TestWorkspaceSkip(t *testing.T) {
	f := newServiceFixture(t)
	seedTasks(f.repo, domain.Task{ID: "t1", ProjectID: "p1", Title: "Piling", Status: domain.TaskStatusNotStarted})
	ws, _ := f.svc.OpenWorkspace(Engineer{UserID: "u1"}, "p1")
	prompt, _ := ws.CheckSurvey(context.Background())
	ws.Skip(context.Background(), prompt.Session)
	if prompt.Session.Step() != domain.StepSkipped {
		t.Fatalf("expected skipped session, got %q", prompt.Session.Step())
	}
	if !f.repo.tracking["u1_p1"].Skipped {
		t.Fatal("expected skip recorded")
	}
}

func TestOpenWorkspaceValidation(t *testing.T) {
	f := newServiceFixture(t)
	if _, err := f.svc.OpenWorkspace(Engineer{}, "p1"); err != domain.ErrInvalidID {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}
