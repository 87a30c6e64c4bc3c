package tui

import (
	"context"
	"strings"
	"time"

	"github.com/owcee/sitepulse/internal/domain"
)

// RiskSource returns the current delay-risk counts for the open project.
type RiskSource func(context.Context) (domain.RiskSummary, error)

type Option func(*Model)

// WithRiskSource shows the project's risk summary and refreshes it after a submission.
func WithRiskSource(source RiskSource) Option {
	return func(m *Model) {
		m.riskSource = source
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}

func WithContext(ctx context.Context) Option {
	return func(m *Model) {
		if ctx != nil {
			m.ctx = ctx
		}
	}
}

// WithMarkdownStyle selects the glamour standard style for reports.
func WithMarkdownStyle(style string) Option {
	return func(m *Model) {
		if style = strings.TrimSpace(style); style != "" {
			m.markdown.style = style
		}
	}
}
