package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/forkguard/forkguard/internal/workflow"
)

// CIEnv exposes the CI-provided identifiers and sink paths the reporter
// consumes. Lookup is injectable so tests do not touch the process environment.
type CIEnv struct {
	Lookup func(string) string
}

// DefaultCIEnv reads from the process environment.
func DefaultCIEnv() CIEnv {
	return CIEnv{Lookup: os.Getenv}
}

// RunID returns the CI run identifier, if any.
func (e CIEnv) RunID() string {
	return e.Lookup("GITHUB_RUN_ID")
}

// PublishCI writes action outputs and the markdown summary to the CI-provided
// sink files when they are configured. Outside CI both paths are empty and
// this is a no-op.
func PublishCI(report workflow.RunReport, env CIEnv) error {
	if outputPath := env.Lookup("GITHUB_OUTPUT"); outputPath != "" {
		if err := appendFile(outputPath, Outputs(report)); err != nil {
			return fmt.Errorf("write action outputs: %w", err)
		}
	}
	if summaryPath := env.Lookup("GITHUB_STEP_SUMMARY"); summaryPath != "" {
		if err := appendFile(summaryPath, Markdown(report)); err != nil {
			return fmt.Errorf("write step summary: %w", err)
		}
	}
	return nil
}

// Outputs renders the key=value action output lines for a run.
func Outputs(report workflow.RunReport) string {
	lines := []string{
		"action=" + string(report.Action),
		fmt.Sprintf("behind_count=%d", report.Divergence.Behind),
		fmt.Sprintf("ahead_count=%d", report.Divergence.Ahead),
		"risk_level=" + string(report.Divergence.Risk),
	}
	if report.Simulation != nil {
		lines = append(lines, "disposition="+string(report.Simulation.Disposition))
	}
	if report.Merge != nil && report.Merge.Succeeded {
		lines = append(lines, "merge_commit="+report.Merge.CommitID)
	}
	return strings.Join(lines, "\n") + "\n"
}

// appendFile appends content to the sink file, creating it when missing.
func appendFile(path string, content string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.WriteString(content); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
