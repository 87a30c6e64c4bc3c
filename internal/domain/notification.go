package domain

import (
	"fmt"
	"strings"
)

// NotificationKind tags a push notification raised by the survey workflow.
type NotificationKind string

const (
	NotificationSurveyReminder NotificationKind = "survey_reminder"
	NotificationRiskAlert      NotificationKind = "risk_alert"
	NotificationSubmission     NotificationKind = "survey_submitted"
)

// NavigationTarget is where the client lands when a notification is opened.
type NavigationTarget string

const (
	TargetDailySurvey   NavigationTarget = "project_workspace/daily_survey"
	TargetRiskOverview  NavigationTarget = "project_workspace/risk_overview"
	TargetSurveyHistory NavigationTarget = "project_workspace/survey_history"
)

var notificationTargets = map[NotificationKind]NavigationTarget{
	NotificationSurveyReminder: TargetDailySurvey,
	NotificationRiskAlert:      TargetRiskOverview,
	NotificationSubmission:     TargetSurveyHistory,
}

// Target resolves the fixed navigation target for a notification kind.
func (k NotificationKind) Target() (NavigationTarget, bool) {
	target, ok := notificationTargets[k]
	return target, ok
}

// Notification is a push message addressed to one device.
type Notification struct {
	Kind        NotificationKind
	DeviceToken string
	ProjectID   string
	Title       string
	Body        string
}

// Data returns the payload the client routes on.
func (n Notification) Data() map[string]string {
	target, _ := n.Kind.Target()
	return map[string]string{
		"kind":      string(n.Kind),
		"target":    string(target),
		"projectId": n.ProjectID,
	}
}

// NewSurveyReminder builds the daily reminder for a project.
func NewSurveyReminder(deviceToken, projectID, projectName string) (Notification, error) {
	return newNotification(NotificationSurveyReminder, deviceToken, projectID,
		"Daily site survey",
		fmt.Sprintf("Today's survey for %s is still open.", labelOr(projectName, projectID)))
}

// NewRiskAlert builds the alert raised when high-risk tasks appear.
func NewRiskAlert(deviceToken, projectID, projectName string, summary RiskSummary) (Notification, error) {
	return newNotification(NotificationRiskAlert, deviceToken, projectID,
		"Delay risk",
		fmt.Sprintf("%s has %d high-risk of %d tasks.", labelOr(projectName, projectID), summary.HighRisk, summary.Total))
}

func newNotification(kind NotificationKind, deviceToken, projectID, title, body string) (Notification, error) {
	deviceToken = strings.TrimSpace(deviceToken)
	projectID = strings.TrimSpace(projectID)
	if deviceToken == "" || projectID == "" {
		return Notification{}, ErrInvalidID
	}
	return Notification{
		Kind:        kind,
		DeviceToken: deviceToken,
		ProjectID:   projectID,
		Title:       title,
		Body:        body,
	}, nil
}

func labelOr(name, fallback string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return fallback
}
