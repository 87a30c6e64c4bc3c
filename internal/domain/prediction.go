package domain

import "encoding/json"

// RiskLevel is the externally computed schedule risk of a task.
// Values are kept as received; only exact "High" and "Medium" are special.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// DelayPrediction is one task's risk as produced by the prediction function.
type DelayPrediction struct {
	TaskID    string    `json:"taskId"`
	RiskLevel RiskLevel `json:"riskLevel"`
}

// PredictionBatch is the response of a whole-project prediction run.
type PredictionBatch struct {
	Predictions []DelayPrediction `json:"predictions"`
	TotalTasks  *int              `json:"totalTasks,omitempty"`
}

// TaskDelayUpdate is a per-task estimate returned after a survey submission.
type TaskDelayUpdate struct {
	TaskID            string          `json:"taskId"`
	DelayDays         float64         `json:"delayDays"`
	RiskLevel         RiskLevel       `json:"riskLevel"`
	PredictedDuration float64         `json:"predictedDuration"`
	LastSurveyUpdate  json.RawMessage `json:"lastSurveyUpdate,omitempty"`
}

// SubmissionResult is the prediction function's answer to a survey.
type SubmissionResult struct {
	Success          bool              `json:"success"`
	UpdatesProcessed int               `json:"updatesProcessed"`
	Updates          []TaskDelayUpdate `json:"updates"`
}

// RiskSummary counts tasks per risk level for display.
type RiskSummary struct {
	HighRisk   int `json:"highRisk"`
	MediumRisk int `json:"mediumRisk"`
	LowRisk    int `json:"lowRisk"`
	Total      int `json:"total"`
}

// SummarizeRisk reduces a prediction batch into counts.
// Anything other than exact "High" or "Medium" counts as low.
func SummarizeRisk(batch PredictionBatch) RiskSummary {
	var out RiskSummary
	for _, prediction := range batch.Predictions {
		switch prediction.RiskLevel {
		case RiskHigh:
			out.HighRisk++
		case RiskMedium:
			out.MediumRisk++
		default:
			out.LowRisk++
		}
	}
	out.Total = len(batch.Predictions)
	if batch.TotalTasks != nil {
		out.Total = *batch.TotalTasks
	}
	return out
}
