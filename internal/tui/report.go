package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/owcee/sitepulse/internal/domain"
)

// riskMarkdown formats one risk summary as a markdown table.
func riskMarkdown(summary domain.RiskSummary) string {
	var b strings.Builder
	b.WriteString("## Delay risk\n\n")
	if summary.Total == 0 {
		b.WriteString("_No predictions yet._\n")
		return b.String()
	}
	b.WriteString("| Level | Tasks |\n|---|---:|\n")
	fmt.Fprintf(&b, "| High | %d |\n", summary.HighRisk)
	fmt.Fprintf(&b, "| Medium | %d |\n", summary.MediumRisk)
	fmt.Fprintf(&b, "| Low | %d |\n", summary.LowRisk)
	fmt.Fprintf(&b, "| **Total** | **%d** |\n", summary.Total)
	return b.String()
}

// submissionMarkdown formats the predictor's per-task estimates after a submission.
func submissionMarkdown(result domain.SubmissionResult, tasks []domain.Task) string {
	titles := make(map[string]string, len(tasks))
	for _, task := range tasks {
		titles[task.ID] = task.DisplayTitle()
	}

	var b strings.Builder
	b.WriteString("## Survey submitted\n\n")
	fmt.Fprintf(&b, "%d task update(s) processed.\n", result.UpdatesProcessed)
	if len(result.Updates) == 0 {
		return b.String()
	}

	updates := slices.Clone(result.Updates)
	slices.SortStableFunc(updates, func(a, b domain.TaskDelayUpdate) int {
		return strings.Compare(a.TaskID, b.TaskID)
	})
	b.WriteString("\n| Task | Risk | Delay (days) | Predicted duration |\n|---|---|---:|---:|\n")
	for _, update := range updates {
		title := titles[update.TaskID]
		if title == "" {
			title = update.TaskID
		}
		fmt.Fprintf(&b, "| %s | %s | %.1f | %.1f |\n",
			escapeCell(title),
			escapeCell(string(update.RiskLevel)),
			update.DelayDays,
			update.PredictedDuration,
		)
	}
	return b.String()
}

func escapeCell(value string) string {
	return strings.ReplaceAll(value, "|", `\|`)
}

// RenderRiskReport renders a risk summary for plain terminal output.
func RenderRiskReport(projectID string, summary domain.RiskSummary, style string, width int) string {
	r := markdownRenderer{style: style}
	md := fmt.Sprintf("# %s\n\n%s", escapeCell(projectID), riskMarkdown(summary))
	return r.render(md, width)
}
