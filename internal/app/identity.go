package app

import (
	"context"
	"strings"
)

// Engineer carries the authenticated caller's identity.
type Engineer struct {
	UserID      string
	DisplayName string
}

// WithEngineer attaches normalized engineer identity to context.
func WithEngineer(ctx context.Context, engineer Engineer) context.Context {
	engineer = normalizeEngineer(engineer)
	return context.WithValue(ctx, engineerContextKey{}, engineer)
}

// EngineerFromContext returns normalized engineer identity when present.
func EngineerFromContext(ctx context.Context) (Engineer, bool) {
	raw := ctx.Value(engineerContextKey{})
	engineer, ok := raw.(Engineer)
	if !ok {
		return Engineer{}, false
	}
	engineer = normalizeEngineer(engineer)
	if engineer.UserID == "" {
		return Engineer{}, false
	}
	return engineer, true
}

// engineerContextKey stores context keys for engineer identity.
type engineerContextKey struct{}

// normalizeEngineer trims identity fields and falls back to the user id for display.
func normalizeEngineer(engineer Engineer) Engineer {
	engineer.UserID = strings.TrimSpace(engineer.UserID)
	engineer.DisplayName = strings.TrimSpace(engineer.DisplayName)
	if engineer.DisplayName == "" {
		engineer.DisplayName = engineer.UserID
	}
	return engineer
}
