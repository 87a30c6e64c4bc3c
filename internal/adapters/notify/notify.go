// Package notify delivers survey reminders and risk alerts.
package notify

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"

	"github.com/owcee/sitepulse/internal/domain"
)

// Sender is the part of the Cloud Messaging client the notifier uses.
type Sender interface {
	Send(context.Context, *messaging.Message) (string, error)
}

// Logger is the structured logger the notifiers write to.
type Logger interface {
	Info(msg any, keyvals ...any)
	Debug(msg any, keyvals ...any)
}

// FCM sends notifications through Firebase Cloud Messaging.
type FCM struct {
	sender Sender
	logger Logger
}

// NewFCM wraps a messaging client. A nil logger disables delivery logs.
func NewFCM(sender Sender, logger Logger) *FCM {
	return &FCM{sender: sender, logger: logger}
}

// Notify sends one notification to its device token.
func (f *FCM) Notify(ctx context.Context, n domain.Notification) error {
	if n.DeviceToken == "" {
		return domain.ErrInvalidID
	}
	id, err := f.sender.Send(ctx, Message(n))
	if err != nil {
		return fmt.Errorf("send %s notification: %w", n.Kind, err)
	}
	if f.logger != nil {
		f.logger.Debug("notification sent", "kind", n.Kind, "project_id", n.ProjectID, "message_id", id)
	}
	return nil
}

// Message builds the FCM message for a notification.
func Message(n domain.Notification) *messaging.Message {
	return &messaging.Message{
		Token: n.DeviceToken,
		Data:  n.Data(),
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound: "default",
			},
		},
	}
}

// Log writes notifications to the log instead of a device.
type Log struct {
	logger Logger
}

// NewLog constructs a log-only notifier.
func NewLog(logger Logger) *Log {
	return &Log{logger: logger}
}

// Notify logs the notification.
func (l *Log) Notify(_ context.Context, n domain.Notification) error {
	target, _ := n.Kind.Target()
	l.logger.Info(n.Title,
		"kind", n.Kind,
		"project_id", n.ProjectID,
		"target", target,
		"body", n.Body,
	)
	return nil
}
