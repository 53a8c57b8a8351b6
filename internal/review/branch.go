package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/forkguard/forkguard/internal/gitcmd"
)

// branchPrefix namespaces review branches away from user branches.
const branchPrefix = "forkguard/review"

// PrepareBranch creates a review branch off the integration branch, merges
// the upstream ref into it, and pushes it to origin so a pull request can be
// opened against the integration branch. The repository is returned to the
// integration branch before PrepareBranch returns, whether or not it succeeds.
//
// The merge is expected to apply cleanly; callers route conflicting deltas to
// manual intervention before reaching here.
func PrepareBranch(ctx context.Context, git *gitcmd.Runner, integrationBranch string, upstreamRef string, now time.Time) (string, error) {
	if strings.TrimSpace(integrationBranch) == "" {
		return "", errors.New("integration branch is required")
	}
	if strings.TrimSpace(upstreamRef) == "" {
		return "", errors.New("upstream ref is required")
	}

	name := fmt.Sprintf("%s-%s", branchPrefix, now.UTC().Format("20060102-150405"))
	if _, err := git.RunChecked(ctx, "checkout", "-b", name, integrationBranch); err != nil {
		return "", fmt.Errorf("create review branch %s: %w", name, err)
	}

	if _, err := git.RunChecked(ctx, "merge", "--no-ff", "--no-edit", upstreamRef); err != nil {
		_, _ = git.Run(context.Background(), "merge", "--abort")
		discardBranch(git, integrationBranch, name)
		return "", fmt.Errorf("merge %s into review branch: %w", upstreamRef, err)
	}

	if _, err := git.RunChecked(ctx, "push", "-u", "origin", name); err != nil {
		discardBranch(git, integrationBranch, name)
		return "", fmt.Errorf("push review branch %s: %w", name, err)
	}

	if _, err := git.RunChecked(context.Background(), "checkout", integrationBranch); err != nil {
		return "", fmt.Errorf("return to %s after preparing %s: %w", integrationBranch, name, err)
	}
	return name, nil
}

// discardBranch returns to the integration branch and deletes the local
// review branch. Runs on a fresh context so cleanup survives expiry.
func discardBranch(git *gitcmd.Runner, integrationBranch string, name string) {
	ctx := context.Background()
	_, _ = git.Run(ctx, "checkout", integrationBranch)
	_, _ = git.Run(ctx, "branch", "-D", name)
}
