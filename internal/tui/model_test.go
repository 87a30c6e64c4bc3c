package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/owcee/sitepulse/internal/app"
	"github.com/owcee/sitepulse/internal/domain"
)

type fakeWorkspace struct {
	prompt    app.SurveyPrompt
	promptErr error
	submitErr error
	result    domain.SubmissionResult
	submitted []domain.SurveyData
	skipped   int
}

func (f *fakeWorkspace) ProjectID() string { return "p1" }

func (f *fakeWorkspace) CheckSurvey(context.Context) (app.SurveyPrompt, error) {
	return f.prompt, f.promptErr
}

func (f *fakeWorkspace) Submit(_ context.Context, session *domain.SurveySession) (domain.SubmissionResult, error) {
	data, ok := session.Result()
	if !ok {
		return domain.SubmissionResult{}, app.ErrSurveyNotReady
	}
	if f.submitErr != nil {
		_ = session.Reopen()
		return domain.SubmissionResult{}, f.submitErr
	}
	f.submitted = append(f.submitted, data)
	return f.result, nil
}

func (f *fakeWorkspace) Skip(_ context.Context, session *domain.SurveySession) {
	if session != nil {
		_ = session.Skip()
	}
	f.skipped++
}

var testNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func dueWorkspace(t *testing.T) *fakeWorkspace {
	t.Helper()
	session, err := domain.NewSurveySession("p1", "Ana", []domain.Task{
		{ID: "t1", ProjectID: "p1", Title: "Excavation", Status: domain.TaskStatusInProgress},
		{ID: "t2", ProjectID: "p1", Title: "Formwork", SubTask: "Level 2", Status: domain.TaskStatusNotStarted},
		{ID: "t3", ProjectID: "p1", Title: "Survey stakes", Status: domain.TaskStatusCompleted},
	})
	if err != nil {
		t.Fatalf("NewSurveySession() error = %v", err)
	}
	return &fakeWorkspace{
		prompt: app.SurveyPrompt{Show: true, Session: session},
		result: domain.SubmissionResult{
			Success:          true,
			UpdatesProcessed: 2,
			Updates: []domain.TaskDelayUpdate{
				{TaskID: "t2", RiskLevel: domain.RiskHigh, DelayDays: 3},
				{TaskID: "t1", RiskLevel: domain.RiskLow},
			},
		},
	}
}

// TestModelNormalSubmitsImmediately verifies the one-step normal path.
func TestModelNormalSubmitsImmediately(t *testing.T) {
	ws := dueWorkspace(t)
	m := loadReadyModel(t, NewModel(ws, WithClock(func() time.Time { return testNow })))
	if !strings.Contains(viewText(m), "How is the site today?") {
		t.Fatalf("expected overview, got %q", viewText(m))
	}

	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if len(ws.submitted) != 1 {
		t.Fatalf("expected one submission, got %d", len(ws.submitted))
	}
	data := ws.submitted[0]
	if data.SiteStatus != domain.SiteStatusNormal || len(data.TaskUpdates) != 2 {
		t.Fatalf("unexpected survey %#v", data)
	}
	for id, update := range data.TaskUpdates {
		if update.Status != domain.Productive {
			t.Fatalf("task %s = %q, want productive", id, update.Status)
		}
	}
	if m.result == nil || m.status != "survey submitted" {
		t.Fatalf("expected submitted state, status %q", m.status)
	}
}

// TestModelClosedRequiresReason verifies the guard keeps the wizard on the closed step.
func TestModelClosedRequiresReason(t *testing.T) {
	ws := dueWorkspace(t)
	m := loadReadyModel(t, NewModel(ws, WithClock(func() time.Time { return testNow })))

	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyUp})
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if m.session.Step() != domain.StepSiteClosedDetail {
		t.Fatalf("step = %q, want closed detail", m.session.Step())
	}

	m = applyMsg(t, m, keyRune('S'))
	if len(ws.submitted) != 0 || !strings.Contains(m.status, "reason is required") {
		t.Fatalf("expected guard failure, status %q", m.status)
	}

	m = applyMsg(t, m, keyRune('j'))
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	m = applyMsg(t, m, keyRune('S'))
	if len(ws.submitted) != 1 {
		t.Fatalf("expected submission after choosing a reason, status %q", m.status)
	}
	data := ws.submitted[0]
	if data.SiteClosedReason != domain.SiteClosedReasons[1] {
		t.Fatalf("reason = %q, want %q", data.SiteClosedReason, domain.SiteClosedReasons[1])
	}
	for id, update := range data.TaskUpdates {
		if update.Status != domain.NonProductive || update.DelayReason != "" {
			t.Fatalf("task %s = %#v, want non-productive without reason", id, update)
		}
	}
}

// TestModelDelayedTaskAnswers verifies toggles, reason cycling, and the free-text editor.
func TestModelDelayedTaskAnswers(t *testing.T) {
	ws := dueWorkspace(t)
	m := loadReadyModel(t, NewModel(ws, WithClock(func() time.Time { return testNow })))

	m = applyMsg(t, m, keyRune('j'))
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if m.session.Step() != domain.StepTaskDelayDetail {
		t.Fatalf("step = %q, want delay detail", m.session.Step())
	}
	if strings.Contains(viewText(m), "Survey stakes") {
		t.Fatal("completed task should not be listed")
	}

	m = applyMsg(t, m, tea.KeyPressMsg{Code: ' ', Text: " "})
	if got := m.session.TaskUpdate("t1").Status; got != domain.NonProductive {
		t.Fatalf("t1 status = %q, want non-productive", got)
	}
	m = applyMsg(t, m, keyRune('S'))
	if len(ws.submitted) != 0 || !strings.Contains(m.status, "delay reason is required") {
		t.Fatalf("expected missing reason failure, status %q", m.status)
	}

	m = applyMsg(t, m, keyRune('h'))
	if got := m.session.TaskUpdate("t1").DelayReason; got != domain.ReasonOther {
		t.Fatalf("reason = %q, want Other", got)
	}
	updated, _ := m.Update(keyRune('o'))
	m = updated.(Model)
	if !m.editingOther {
		t.Fatal("expected free-text editor")
	}
	for _, r := range "crane" {
		m = applyMsg(t, m, keyRune(r))
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if m.editingOther {
		t.Fatal("expected editor closed")
	}

	m = applyMsg(t, m, keyRune('S'))
	if len(ws.submitted) != 1 {
		t.Fatalf("expected submission, status %q", m.status)
	}
	got := ws.submitted[0].TaskUpdates
	if got["t1"].DelayReasonOther != "crane" || got["t2"].Status != domain.Productive {
		t.Fatalf("unexpected task updates %#v", got)
	}
}

// TestModelBackKeepsAnswers verifies leaving a detail step preserves the closed reason.
func TestModelBackKeepsAnswers(t *testing.T) {
	ws := dueWorkspace(t)
	m := loadReadyModel(t, NewModel(ws))
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyUp})
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEscape})
	if m.session.Step() != domain.StepOverview || m.cursor != 2 {
		t.Fatalf("step = %q cursor = %d", m.session.Step(), m.cursor)
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if reason, _ := m.session.SiteClosedReason(); reason != domain.SiteClosedReasons[0] {
		t.Fatalf("reason = %q, want kept answer", reason)
	}
}

// TestModelSkip verifies skipping records the day and ends the wizard.
func TestModelSkip(t *testing.T) {
	ws := dueWorkspace(t)
	m := loadReadyModel(t, NewModel(ws))
	m = applyMsg(t, m, keyRune('x'))
	if ws.skipped != 1 || !m.skipped {
		t.Fatalf("skipped = %d model=%t", ws.skipped, m.skipped)
	}
	if m.session.Step() != domain.StepSkipped {
		t.Fatalf("step = %q, want skipped", m.session.Step())
	}
	if !strings.Contains(viewText(m), "skipped for today") {
		t.Fatalf("unexpected view %q", viewText(m))
	}
	m = applyMsg(t, m, keyRune('x'))
	if ws.skipped != 1 {
		t.Fatalf("skip after finish should be ignored, got %d", ws.skipped)
	}
}

// TestModelSubmitFailureReopens verifies a failed delivery returns to the editable step.
func TestModelSubmitFailureReopens(t *testing.T) {
	ws := dueWorkspace(t)
	ws.submitErr = errors.New("predictor down")
	m := loadReadyModel(t, NewModel(ws))
	m = applyMsg(t, m, keyRune('j'))
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	m = applyMsg(t, m, keyRune('S'))
	if !strings.Contains(m.status, "submit failed") {
		t.Fatalf("status = %q", m.status)
	}
	if m.session.Step() != domain.StepTaskDelayDetail || m.submitting {
		t.Fatalf("step = %q submitting = %t", m.session.Step(), m.submitting)
	}
}

// TestModelAlreadySubmitted verifies the duplicate rejection ends the wizard.
func TestModelAlreadySubmitted(t *testing.T) {
	ws := dueWorkspace(t)
	ws.submitErr = app.ErrAlreadySubmittedToday
	m := loadReadyModel(t, NewModel(ws))
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if m.session != nil || !strings.Contains(m.status, "already submitted") {
		t.Fatalf("status = %q", m.status)
	}
}

// TestModelNotDue verifies the gate outcomes that show no survey.
func TestModelNotDue(t *testing.T) {
	m := loadReadyModel(t, NewModel(&fakeWorkspace{}))
	if !strings.Contains(viewText(m), "already addressed") {
		t.Fatalf("unexpected view %q", viewText(m))
	}
	m = loadReadyModel(t, NewModel(&fakeWorkspace{prompt: app.SurveyPrompt{NoActiveTasks: true}}))
	if !strings.Contains(viewText(m), "No active tasks") {
		t.Fatalf("unexpected view %q", viewText(m))
	}
	m = loadReadyModel(t, NewModel(&fakeWorkspace{promptErr: errors.New("boom")}))
	if m.err == nil || !strings.Contains(viewText(m), "boom") {
		t.Fatalf("expected error view, got %q", viewText(m))
	}
}

// TestModelRiskSource verifies the summary loads after the check and after a submission.
func TestModelRiskSource(t *testing.T) {
	ws := dueWorkspace(t)
	calls := 0
	source := func(context.Context) (domain.RiskSummary, error) {
		calls++
		return domain.RiskSummary{HighRisk: calls, Total: 4}, nil
	}
	m := loadReadyModel(t, NewModel(ws, WithRiskSource(source)))
	if m.risk == nil || m.risk.HighRisk != 1 {
		t.Fatalf("risk = %#v, want first summary", m.risk)
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if calls != 2 || m.risk.HighRisk != 2 {
		t.Fatalf("calls = %d risk = %#v", calls, m.risk)
	}

	m = applyMsg(t, m, riskLoadedMsg{err: errors.New("offline")})
	if m.risk == nil || *m.risk != (domain.RiskSummary{}) {
		t.Fatalf("expected zeroed summary after failed refresh, got %#v", m.risk)
	}
	view := viewText(m)
	if !strings.Contains(view, "Delay") || !strings.Contains(view, "risk refresh failed: offline") {
		t.Fatalf("expected zeroed dashboard with muted failure, got %q", view)
	}

	m = applyMsg(t, m, riskLoadedMsg{summary: domain.RiskSummary{LowRisk: 1, Total: 1}})
	if m.riskErr != nil || strings.Contains(viewText(m), "risk refresh failed") {
		t.Fatalf("expected failure note cleared after a good refresh, got %q", viewText(m))
	}
}

// TestModelQuit verifies the quit binding.
func TestModelQuit(t *testing.T) {
	m := loadReadyModel(t, NewModel(dueWorkspace(t)))
	_, cmd := m.Update(keyRune('q'))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
}

func TestWrapIndex(t *testing.T) {
	cases := []struct{ current, delta, total, want int }{
		{0, -1, 3, 2},
		{2, 1, 3, 0},
		{1, 1, 3, 2},
		{0, 1, 0, 0},
	}
	for _, tc := range cases {
		if got := wrapIndex(tc.current, tc.delta, tc.total); got != tc.want {
			t.Fatalf("wrapIndex(%d, %d, %d) = %d, want %d", tc.current, tc.delta, tc.total, got, tc.want)
		}
	}
}

func loadReadyModel(t *testing.T, m Model) Model {
	t.Helper()
	return applyMsg(t, applyCmd(t, m, m.Init()), tea.WindowSizeMsg{Width: 120, Height: 40})
}

func applyMsg(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	updated, cmd := m.Update(msg)
	out, ok := updated.(Model)
	if !ok {
		t.Fatalf("expected Model, got %T", updated)
	}
	return applyCmd(t, out, cmd)
}

func applyCmd(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	out := m
	currentCmd := cmd
	for i := 0; i < 6 && currentCmd != nil; i++ {
		msg := currentCmd()
		updated, nextCmd := out.Update(msg)
		casted, ok := updated.(Model)
		if !ok {
			t.Fatalf("expected Model, got %T", updated)
		}
		out = casted
		currentCmd = nextCmd
	}
	return out
}

func keyRune(r rune) tea.KeyPressMsg {
	return tea.KeyPressMsg{Code: r, Text: string(r)}
}

func viewText(m Model) string {
	return fmt.Sprint(m.View().Content)
}
