package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/owcee/sitepulse/internal/domain"
)

// RiskMonitor keeps the last risk summary per project.
type RiskMonitor struct {
	predictor Predictor
	logger    Logger

	mu        sync.RWMutex
	summaries map[string]domain.RiskSummary
}

// NewRiskMonitor constructs a risk monitor over the delay predictor.
func NewRiskMonitor(predictor Predictor, logger Logger) *RiskMonitor {
	if logger == nil {
		logger = discardLogger{}
	}
	return &RiskMonitor{
		predictor: predictor,
		logger:    logger,
		summaries: map[string]domain.RiskSummary{},
	}
}

// Refresh asks the predictor for every task's risk and stores the counts.
// On failure the stored summary drops to zero and the error is returned.
func (m *RiskMonitor) Refresh(ctx context.Context, projectID string) (domain.RiskSummary, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return domain.RiskSummary{}, domain.ErrInvalidID
	}
	if m.predictor == nil {
		m.store(projectID, domain.RiskSummary{})
		m.logger.Warn("risk refresh skipped; predictor not configured", "project_id", projectID)
		return domain.RiskSummary{}, ErrPredictorUnavailable
	}
	batch, err := m.predictor.PredictAllDelays(ctx, projectID)
	if err != nil {
		m.store(projectID, domain.RiskSummary{})
		m.logger.Warn("risk refresh failed", "project_id", projectID, "err", err)
		return domain.RiskSummary{}, fmt.Errorf("predict all delays: %w", err)
	}
	summary := domain.SummarizeRisk(batch)
	m.store(projectID, summary)
	m.logger.Debug("risk refreshed",
		"project_id", projectID,
		"high", summary.HighRisk,
		"medium", summary.MediumRisk,
		"low", summary.LowRisk,
		"total", summary.Total,
	)
	return summary, nil
}

// Summary returns the last stored summary, zero when never refreshed.
func (m *RiskMonitor) Summary(projectID string) domain.RiskSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.summaries[strings.TrimSpace(projectID)]
}

func (m *RiskMonitor) store(projectID string, summary domain.RiskSummary) {
	m.mu.Lock()
	m.summaries[projectID] = summary
	m.mu.Unlock()
}
