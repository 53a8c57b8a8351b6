// Package merger performs the real upstream merge with rollback guarantees and
// post-merge validation.
package merger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/forkguard/forkguard/internal/audit"
	"github.com/forkguard/forkguard/internal/config"
	"github.com/forkguard/forkguard/internal/gitcmd"
	"github.com/forkguard/forkguard/internal/policy"
	"github.com/forkguard/forkguard/internal/sandbox"
)

// upstreamRemote is the remote name the fork tracks its upstream under.
const upstreamRemote = "upstream"

// MergeOutcome captures the result of a real merge attempt. Succeeded reflects
// only the merge step; validation failures are reported alongside and never
// retroactively undo a completed merge.
type MergeOutcome struct {
	Succeeded      bool
	CommitID       string
	Message        string
	TouchedPaths   []string
	PostValidation []ValidationCheck
}

// Merger applies auto-merge dispositions on the integration branch.
type Merger struct {
	git               *gitcmd.Runner
	cfg               config.ProtectionConfig
	auditor           *audit.Logger
	integrationBranch string
	now               func() time.Time
}

// New creates a merger bound to the integration branch. The auditor may be nil.
func New(git *gitcmd.Runner, cfg config.ProtectionConfig, auditor *audit.Logger, integrationBranch string) (*Merger, error) {
	if strings.TrimSpace(integrationBranch) == "" {
		return nil, errors.New("integration branch is required")
	}
	return &Merger{
		git:               git,
		cfg:               cfg,
		auditor:           auditor,
		integrationBranch: integrationBranch,
		now:               time.Now,
	}, nil
}

// ApplySafeMerge performs the real merge of upstreamRef. It returns an error
// only for precondition violations; merge failures are expected, recoverable
// outcomes represented as MergeOutcome.Succeeded == false with the branch tip
// left exactly where it was.
func (m *Merger) ApplySafeMerge(ctx context.Context, sim sandbox.SimulationResult, upstreamRef string) (MergeOutcome, error) {
	if sim.Disposition != policy.AutoMerge {
		return MergeOutcome{}, fmt.Errorf("refusing merge: disposition is %s, not %s", sim.Disposition, policy.AutoMerge)
	}
	if len(sim.ConflictedPaths) > 0 {
		return MergeOutcome{}, fmt.Errorf("refusing merge: simulation reported %d conflicted paths", len(sim.ConflictedPaths))
	}
	if strings.TrimSpace(upstreamRef) == "" {
		return MergeOutcome{}, errors.New("upstream ref is required")
	}

	if outcome, failed := m.ensureIntegrationBranch(ctx); failed {
		return outcome, nil
	}

	if _, err := m.git.RunChecked(ctx, "fetch", upstreamRemote); err != nil {
		return m.failedOutcome(fmt.Sprintf("fetch %s: %v", upstreamRemote, err)), nil
	}

	merge, err := m.git.Run(ctx, "merge", "--no-ff", "--no-edit", upstreamRef)
	if err != nil {
		m.abortMerge(ctx)
		return m.failedOutcome(fmt.Sprintf("run merge of %s: %v", upstreamRef, err)), nil
	}
	if merge.ExitCode != 0 {
		m.abortMerge(ctx)
		return m.failedOutcome(fmt.Sprintf("merge of %s exited %d: %s",
			upstreamRef, merge.ExitCode, lastLine(merge.Stderr))), nil
	}

	touched, err := m.git.Lines(ctx, "diff", "--name-only", "ORIG_HEAD", "HEAD")
	if err != nil {
		touched = sim.AffectedPaths
	}

	message, err := m.annotateMergeCommit(ctx, upstreamRef, len(touched))
	if err != nil {
		// The merge commit exists but could not be annotated; roll the branch
		// back to its pre-merge tip so a failed outcome means an unchanged tip.
		_, _ = m.git.RunChecked(ctx, "reset", "--hard", "ORIG_HEAD")
		return m.failedOutcome(fmt.Sprintf("annotate merge commit: %v", err)), nil
	}

	commitID, err := m.git.Output(ctx, "rev-parse", "HEAD")
	if err != nil {
		commitID = ""
	}

	outcome := MergeOutcome{
		Succeeded:      true,
		CommitID:       commitID,
		Message:        message,
		TouchedPaths:   touched,
		PostValidation: m.RunValidationSuite(ctx, touched),
	}
	if m.auditor != nil {
		_ = m.auditor.LogMergeResult(true, commitID, len(touched))
	}
	return outcome, nil
}

// ensureIntegrationBranch switches to the integration branch when needed.
// The bool reports a recoverable step failure.
func (m *Merger) ensureIntegrationBranch(ctx context.Context) (MergeOutcome, bool) {
	branch, err := m.git.Output(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return m.failedOutcome(fmt.Sprintf("resolve current branch: %v", err)), true
	}
	if branch == m.integrationBranch {
		return MergeOutcome{}, false
	}
	if _, err := m.git.RunChecked(ctx, "checkout", m.integrationBranch); err != nil {
		return m.failedOutcome(fmt.Sprintf("switch to integration branch %s: %v", m.integrationBranch, err)), true
	}
	return MergeOutcome{}, false
}

// annotateMergeCommit amends the merge commit message with a structured audit
// annotation and returns the final message.
func (m *Merger) annotateMergeCommit(ctx context.Context, upstreamRef string, touchedCount int) (string, error) {
	original, err := m.git.Output(ctx, "log", "-1", "--pretty=%B")
	if err != nil {
		return "", fmt.Errorf("read merge commit message: %w", err)
	}

	now := m.now
	if now == nil {
		now = time.Now
	}
	annotation := strings.Join([]string{
		"Forkguard-Upstream-Ref: " + upstreamRef,
		"Forkguard-Disposition: " + string(policy.AutoMerge),
		fmt.Sprintf("Forkguard-Affected-Files: %d", touchedCount),
		"Forkguard-Timestamp: " + now().UTC().Format(time.RFC3339),
	}, "\n")

	message := strings.TrimSpace(original) + "\n\n" + annotation + "\n"
	if _, err := m.git.RunChecked(ctx, "commit", "--amend", "-m", message); err != nil {
		return "", fmt.Errorf("amend merge commit: %w", err)
	}
	return message, nil
}

// abortMerge discards an in-progress merge. Best-effort: a repository with no
// merge in progress makes `merge --abort` fail, which the reset covers.
func (m *Merger) abortMerge(ctx context.Context) {
	if _, err := m.git.RunChecked(ctx, "merge", "--abort"); err == nil {
		return
	}
	_, _ = m.git.RunChecked(ctx, "reset", "--hard", "HEAD")
}

// failedOutcome builds a non-exceptional failed merge outcome.
func (m *Merger) failedOutcome(message string) MergeOutcome {
	if m.auditor != nil {
		_ = m.auditor.LogMergeResult(false, "", 0)
	}
	return MergeOutcome{Succeeded: false, Message: message}
}

// lastLine extracts the final non-empty line from subprocess output.
func lastLine(output string) string {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return "(no output)"
	}
	lines := strings.Split(trimmed, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
