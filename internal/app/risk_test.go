package app

import (
	"context"
	"errors"
	"testing"

	"github.com/owcee/sitepulse/internal/domain"
)

type fakeNotifier struct {
	sent []domain.Notification
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, n domain.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func TestRiskMonitorRefresh(t *testing.T) {
	predictor := &fakePredictor{batch: domain.PredictionBatch{Predictions: []domain.DelayPrediction{
		{TaskID: "a", RiskLevel: "High"},
		{TaskID: "b", RiskLevel: "Medium"},
		{TaskID: "c", RiskLevel: "Medium"},
		{TaskID: "d", RiskLevel: "Low"},
	}}}
	m := NewRiskMonitor(predictor, nil)

	got, err := m.Refresh(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	want := domain.RiskSummary{HighRisk: 1, MediumRisk: 2, LowRisk: 1, Total: 4}
	if got != want || m.Summary("p1") != want {
		t.Fatalf("expected %#v, got %#v / %#v", want, got, m.Summary("p1"))
	}
	if m.Summary("p2") != (domain.RiskSummary{}) {
		t.Fatal("expected zero summary for unknown project")
	}
}

func TestRiskMonitorFailureResetsSummary(t *testing.T) {
	predictor := &fakePredictor{batch: domain.PredictionBatch{Predictions: []domain.DelayPrediction{{RiskLevel: "High"}}}}
	m := NewRiskMonitor(predictor, nil)
	if _, err := m.Refresh(context.Background(), "p1"); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	boom := errors.New("quota exceeded")
	predictor.predictErr = boom
	got, err := m.Refresh(context.Background(), "p1")
	if !errors.Is(err, boom) {
		t.Fatalf("expected predictor error, got %v", err)
	}
	if got != (domain.RiskSummary{}) || m.Summary("p1") != (domain.RiskSummary{}) {
		t.Fatalf("expected zero summary after failure, got %#v / %#v", got, m.Summary("p1"))
	}
	if _, err := NewRiskMonitor(nil, nil).Refresh(context.Background(), "p1"); !errors.Is(err, ErrPredictorUnavailable) {
		t.Fatalf("expected ErrPredictorUnavailable, got %v", err)
	}
}

func TestDispatcherSendsRemindersOnlyWhenDue(t *testing.T) {
	f := newServiceFixture(t)
	notifier := &fakeNotifier{}
	f.svc.SkipSurveyForToday(context.Background(), "u2", "p1")
	d := NewDispatcher(f.svc, NewRiskMonitor(f.predictor, nil), notifier, []Subscription{
		{UserID: "u1", ProjectID: "p1", ProjectName: "Harbor Tower", DeviceToken: "tok-1"},
		{UserID: "u2", ProjectID: "p1", DeviceToken: "tok-2"},
		{UserID: "u3", ProjectID: "p2", DeviceToken: " "},
	})

	sent, err := d.SendSurveyReminders(context.Background())
	if err != nil {
		t.Fatalf("SendSurveyReminders() error = %v", err)
	}
	if sent != 1 || len(notifier.sent) != 1 {
		t.Fatalf("expected one reminder, got %d", sent)
	}
	n := notifier.sent[0]
	if n.DeviceToken != "tok-1" || n.Kind != domain.NotificationSurveyReminder {
		t.Fatalf("unexpected notification %#v", n)
	}
	if target, _ := n.Kind.Target(); target != domain.TargetDailySurvey {
		t.Fatalf("unexpected target %q", target)
	}
}

func TestDispatcherRiskAlerts(t *testing.T) {
	f := newServiceFixture(t)
	notifier := &fakeNotifier{}
	f.predictor.batch = domain.PredictionBatch{Predictions: []domain.DelayPrediction{{RiskLevel: "High"}, {RiskLevel: "Low"}}}
	risk := NewRiskMonitor(f.predictor, nil)
	d := NewDispatcher(f.svc, risk, notifier, []Subscription{
		{UserID: "u1", ProjectID: "p1", DeviceToken: "tok-1"},
		{UserID: "u2", ProjectID: "p1", DeviceToken: "tok-2"},
	})
	if got := d.Projects(); len(got) != 1 || got[0] != "p1" {
		t.Fatalf("unexpected projects %#v", got)
	}
	if err := d.RefreshRisk(context.Background()); err != nil {
		t.Fatalf("RefreshRisk() error = %v", err)
	}
	if len(notifier.sent) != 2 || notifier.sent[0].Kind != domain.NotificationRiskAlert {
		t.Fatalf("expected two risk alerts, got %#v", notifier.sent)
	}
	if risk.Summary("p1").HighRisk != 1 {
		t.Fatalf("expected stored summary, got %#v", risk.Summary("p1"))
	}

	notifier.sent = nil
	f.predictor.batch = domain.PredictionBatch{Predictions: []domain.DelayPrediction{{RiskLevel: "Low"}}}
	if err := d.RefreshRisk(context.Background()); err != nil {
		t.Fatalf("RefreshRisk() error = %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("expected no alerts without high risk, got %#v", notifier.sent)
	}

	f.predictor.predictErr = errors.New("offline")
	if err := d.RefreshRisk(context.Background()); err == nil {
		t.Fatal("expected refresh failure to be reported")
	}
}
