// Package report renders run results for terminals and CI summaries.
package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/forkguard/forkguard/internal/format"
	"github.com/forkguard/forkguard/internal/workflow"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("9"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

// Terminal renders a styled, human-readable summary of a run.
func Terminal(report workflow.RunReport) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("forkguard sync"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("  action:   %s\n", actionStyle(report.Action).Render(string(report.Action))))
	b.WriteString(fmt.Sprintf("  behind:   %s\n", format.Commits(report.Divergence.Behind)))
	b.WriteString(fmt.Sprintf("  ahead:    %s\n", format.Commits(report.Divergence.Ahead)))
	b.WriteString(fmt.Sprintf("  risk:     %s\n", string(report.Divergence.Risk)))

	if report.Simulation != nil {
		b.WriteString(fmt.Sprintf("  decision: %s\n", string(report.Simulation.Disposition)))
		if len(report.Simulation.ConflictedPaths) > 0 {
			b.WriteString(fmt.Sprintf("  conflicts: %s\n", strings.Join(report.Simulation.ConflictedPaths, ", ")))
		} else {
			b.WriteString(fmt.Sprintf("  affected: %s\n", format.Paths(len(report.Simulation.AffectedPaths))))
		}
	}

	if report.Merge != nil {
		b.WriteString(renderMerge(report))
	}

	if report.Action == workflow.ActionFailed {
		b.WriteString(errorStyle.Render(fmt.Sprintf("  failed at %s: %s", report.FailedAt, report.Cause)))
		b.WriteString("\n")
	}

	b.WriteString(dimStyle.Render(fmt.Sprintf("  elapsed: %s", format.DurationShort(report.Elapsed))))
	b.WriteString("\n")
	return b.String()
}

// renderMerge formats the merge outcome and validation checks.
func renderMerge(report workflow.RunReport) string {
	var b strings.Builder
	if report.Merge.Succeeded {
		b.WriteString(fmt.Sprintf("  merged:   %s (%s)\n",
			shortCommit(report.Merge.CommitID), format.Paths(len(report.Merge.TouchedPaths))))
	}
	for _, check := range report.Merge.PostValidation {
		marker := okStyle.Render("pass")
		if !check.Passed {
			marker = warnStyle.Render("FAIL")
		}
		b.WriteString(fmt.Sprintf("  check %s  %s: %s\n", marker, check.Name, check.Detail))
	}
	return b.String()
}

// actionStyle picks a style for the outward action.
func actionStyle(action workflow.Action) lipgloss.Style {
	switch action {
	case workflow.ActionFailed:
		return errorStyle
	case workflow.ActionManualInterventionRequired:
		return warnStyle
	default:
		return okStyle
	}
}

// shortCommit abbreviates a commit SHA for display.
func shortCommit(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	if sha == "" {
		return "(none)"
	}
	return sha
}

// Markdown renders a deterministic CI summary for the run.
func Markdown(report workflow.RunReport) string {
	var b strings.Builder

	b.WriteString("## Fork Sync Result\n\n")
	b.WriteString("| Field | Value |\n|---|---|\n")
	b.WriteString(fmt.Sprintf("| Action | `%s` |\n", report.Action))
	b.WriteString(fmt.Sprintf("| Commits behind | %d |\n", report.Divergence.Behind))
	b.WriteString(fmt.Sprintf("| Commits ahead | %d |\n", report.Divergence.Ahead))
	b.WriteString(fmt.Sprintf("| Divergence risk | %s |\n", report.Divergence.Risk))

	if report.Simulation != nil {
		b.WriteString(fmt.Sprintf("| Disposition | `%s` |\n", report.Simulation.Disposition))
		b.WriteString(fmt.Sprintf("| Affected paths | %d |\n", len(report.Simulation.AffectedPaths)))
		b.WriteString(fmt.Sprintf("| Conflicted paths | %d |\n", len(report.Simulation.ConflictedPaths)))
	}

	if report.Merge != nil && report.Merge.Succeeded {
		b.WriteString(fmt.Sprintf("| Merge commit | `%s` |\n", report.Merge.CommitID))
	}

	if report.Action == workflow.ActionFailed {
		b.WriteString(fmt.Sprintf("\n**Failed at %s**: %s\n", report.FailedAt, report.Cause))
	}

	if report.Merge != nil && len(report.Merge.PostValidation) > 0 {
		b.WriteString("\n### Post-merge validation\n\n")
		b.WriteString("| Check | Result | Detail |\n|---|---|---|\n")
		for _, check := range report.Merge.PostValidation {
			result := "pass"
			if !check.Passed {
				result = "**FAIL**"
			}
			b.WriteString(fmt.Sprintf("| %s | %s | %s |\n", check.Name, result, check.Detail))
		}
	}

	return b.String()
}
