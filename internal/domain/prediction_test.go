package domain

import (
	"encoding/json"
	"testing"
)

func TestSummarizeRiskCountsLevels(t *testing.T) {
	batch := PredictionBatch{Predictions: []DelayPrediction{
		{TaskID: "a", RiskLevel: "High"},
		{TaskID: "b", RiskLevel: "Medium"},
		{TaskID: "c", RiskLevel: "Medium"},
		{TaskID: "d", RiskLevel: "Low"},
	}}
	got := SummarizeRisk(batch)
	want := RiskSummary{HighRisk: 1, MediumRisk: 2, LowRisk: 1, Total: 4}
	if got != want {
		t.Fatalf("expected %#v, got %#v", want, got)
	}
}

func TestSummarizeRiskMatchesCaseSensitively(t *testing.T) {
	batch := PredictionBatch{Predictions: []DelayPrediction{
		{RiskLevel: "high"},
		{RiskLevel: "MEDIUM"},
		{RiskLevel: ""},
		{RiskLevel: "Critical"},
		{RiskLevel: "High"},
	}}
	got := SummarizeRisk(batch)
	if got.HighRisk != 1 || got.MediumRisk != 0 || got.LowRisk != 4 {
		t.Fatalf("unexpected counts %#v", got)
	}
	if got.HighRisk+got.MediumRisk+got.LowRisk != len(batch.Predictions) {
		t.Fatalf("expected counts to sum to %d, got %#v", len(batch.Predictions), got)
	}
}

func TestSummarizeRiskPrefersSuppliedTotal(t *testing.T) {
	total := 12
	got := SummarizeRisk(PredictionBatch{Predictions: []DelayPrediction{{RiskLevel: "High"}}, TotalTasks: &total})
	if got.Total != 12 {
		t.Fatalf("expected total 12, got %d", got.Total)
	}
	if empty := SummarizeRisk(PredictionBatch{}); empty != (RiskSummary{}) {
		t.Fatalf("expected zero summary, got %#v", empty)
	}
}

func TestPredictionBatchDecodesWithoutTotal(t *testing.T) {
	var batch PredictionBatch
	if err := json.Unmarshal([]byte(`{"predictions":[{"taskId":"t1","riskLevel":"Medium","delayDays":3}]}`), &batch); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if batch.TotalTasks != nil {
		t.Fatalf("expected nil total, got %d", *batch.TotalTasks)
	}
	if got := SummarizeRisk(batch); got.MediumRisk != 1 || got.Total != 1 {
		t.Fatalf("unexpected summary %#v", got)
	}
}
