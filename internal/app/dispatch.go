package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/owcee/sitepulse/internal/domain"
)

// Subscription routes a project's notifications to one engineer device.
type Subscription struct {
	UserID      string
	ProjectID   string
	ProjectName string
	DeviceToken string
}

// Dispatcher sends survey reminders and high-risk alerts.
type Dispatcher struct {
	svc      *Service
	risk     *RiskMonitor
	notifier Notifier
	logger   Logger
	subs     []Subscription
}

// NewDispatcher constructs a dispatcher over normalized subscriptions.
func NewDispatcher(svc *Service, risk *RiskMonitor, notifier Notifier, subs []Subscription) *Dispatcher {
	clean := make([]Subscription, 0, len(subs))
	for _, sub := range subs {
		sub.UserID = strings.TrimSpace(sub.UserID)
		sub.ProjectID = strings.TrimSpace(sub.ProjectID)
		sub.ProjectName = strings.TrimSpace(sub.ProjectName)
		sub.DeviceToken = strings.TrimSpace(sub.DeviceToken)
		if sub.ProjectID == "" || sub.DeviceToken == "" {
			continue
		}
		clean = append(clean, sub)
	}
	return &Dispatcher{svc: svc, risk: risk, notifier: notifier, logger: svc.logger, subs: clean}
}

// Projects returns the distinct subscribed project ids in first-seen order.
func (d *Dispatcher) Projects() []string {
	out := []string{}
	for _, sub := range d.subs {
		if !slices.Contains(out, sub.ProjectID) {
			out = append(out, sub.ProjectID)
		}
	}
	return out
}

// SendSurveyReminders notifies every subscriber whose survey is still due.
func (d *Dispatcher) SendSurveyReminders(ctx context.Context) (int, error) {
	sent := 0
	var errs []error
	for _, sub := range d.subs {
		if sub.UserID == "" {
			continue
		}
		if !d.svc.ShouldShowSurvey(ctx, sub.UserID, sub.ProjectID) {
			continue
		}
		n, err := domain.NewSurveyReminder(sub.DeviceToken, sub.ProjectID, sub.ProjectName)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := d.notify(ctx, n); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// RefreshRisk refreshes every subscribed project and alerts on high risk.
func (d *Dispatcher) RefreshRisk(ctx context.Context) error {
	var errs []error
	for _, projectID := range d.Projects() {
		summary, err := d.risk.Refresh(ctx, projectID)
		if err != nil {
			errs = append(errs, fmt.Errorf("project %s: %w", projectID, err))
			continue
		}
		if summary.HighRisk == 0 {
			continue
		}
		for _, sub := range d.subs {
			if sub.ProjectID != projectID {
				continue
			}
			n, err := domain.NewRiskAlert(sub.DeviceToken, sub.ProjectID, sub.ProjectName, summary)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if err := d.notify(ctx, n); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) notify(ctx context.Context, n domain.Notification) error {
	if d.notifier == nil {
		d.logger.Debug("notification dropped; no notifier configured", "kind", n.Kind, "project_id", n.ProjectID)
		return nil
	}
	if err := d.notifier.Notify(ctx, n); err != nil {
		return fmt.Errorf("notify %s: %w", n.Kind, err)
	}
	return nil
}
