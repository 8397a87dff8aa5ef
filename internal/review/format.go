package review

import (
	"fmt"
	"strings"
	"time"

	"github.com/reviewloop/internal/pipeline"
	"github.com/reviewloop/pkg/models"
)

const timeRound = 100 * time.Millisecond

// FormatComment renders a report as the markdown body posted back to the
// pull request.
func FormatComment(report *models.ReviewReport) string {
	var b strings.Builder
	b.WriteString("## Automated Code Review\n\n")

	if !report.Success {
		fmt.Fprintf(&b, "Review could not be completed: the %s stage failed.\n", report.FailedStage)
		if partial := stageOutput(report, pipeline.StageAnalyze); partial != "" {
			b.WriteString("\nPartial analysis before the failure:\n\n")
			b.WriteString(partial)
			b.WriteString("\n")
		}
		return b.String()
	}

	fmt.Fprintf(&b, "**Changes:** +%d/-%d across %d files\n\n",
		report.Summary.TotalAdded, report.Summary.TotalRemoved, report.Summary.FilesChanged)

	if findings := pipeline.ParseFindings(stageOutput(report, pipeline.StageCritique)); len(findings) > 0 {
		b.WriteString("### Findings\n\n")
		b.WriteString("| Severity | Issue | Confidence |\n")
		b.WriteString("|---|---|---|\n")
		for _, f := range findings {
			fmt.Fprintf(&b, "| %s | %s | %.2f |\n", f.Severity, sanitizeCell(f.Issue), f.Score)
		}
		b.WriteString("\n")
	}

	b.WriteString("### Review\n\n")
	b.WriteString(report.Synthesis)
	b.WriteString("\n\n---\n")
	fmt.Fprintf(&b, "_Review %s completed in %s._\n", report.ReviewID, report.Duration.Round(timeRound))

	return b.String()
}

// FormatText renders a report for terminal output.
func FormatText(report *models.ReviewReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Review %s (%s)\n", report.ReviewID, report.Platform)
	fmt.Fprintf(&b, "PR: %s\n", report.Title)
	fmt.Fprintf(&b, "Changes: +%d/-%d across %d files (net %+d)\n",
		report.Summary.TotalAdded, report.Summary.TotalRemoved,
		report.Summary.FilesChanged, report.Summary.NetChange)
	fmt.Fprintf(&b, "Duration: %s\n", report.Duration.Round(timeRound))

	if !report.Success {
		fmt.Fprintf(&b, "\nFAILED at stage %s\n", report.FailedStage)
		for _, stage := range report.Stages {
			fmt.Fprintf(&b, "\n--- %s (completed before failure) ---\n%s\n", stage.Stage, stage.Output)
		}
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString(report.Synthesis)
	b.WriteString("\n")
	return b.String()
}

func stageOutput(report *models.ReviewReport, stage string) string {
	for _, s := range report.Stages {
		if s.Stage == stage {
			return s.Output
		}
	}
	return ""
}

// sanitizeCell keeps finding text from breaking the markdown table.
func sanitizeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
