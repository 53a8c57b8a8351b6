// Package sandbox runs isolated, side-effect-free merge simulations on a
// disposable branch.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/forkguard/forkguard/internal/audit"
	"github.com/forkguard/forkguard/internal/gitcmd"
	"github.com/forkguard/forkguard/internal/policy"
)

// ErrRestore marks a simulation that could not restore the repository to its
// original branch. It is fatal; the invocation must not proceed to any write
// operation.
var ErrRestore = errors.New("sandbox could not restore original branch")

// branchPrefix namespaces disposable simulation branches.
const branchPrefix = "forkguard/sim"

// SimulationResult captures the outcome of a merge simulation. Disposition and
// Risk are filled by the decision policy; the sandbox itself only pre-assigns
// ManualIntervention for failed or conflicted simulations so the invariant
// holds even before classification.
type SimulationResult struct {
	Succeeded       bool
	ConflictedPaths []string
	AffectedPaths   []string
	Risk            policy.Risk
	Disposition     policy.Disposition
}

// Sandbox attempts merges on a disposable branch and always restores the
// repository to its pre-simulation state.
type Sandbox struct {
	git     *gitcmd.Runner
	auditor *audit.Logger
	now     func() time.Time
}

// New creates a sandbox for the given repository runner. The auditor may be
// nil; cleanup warnings are then dropped.
func New(git *gitcmd.Runner, auditor *audit.Logger) *Sandbox {
	return &Sandbox{git: git, auditor: auditor, now: time.Now}
}

// Simulate attempts a non-committing merge of upstreamRef on a disposable
// branch and reports conflicted or affected paths. The original branch tip is
// never mutated. The returned error wraps ErrRestore only when the repository
// could not be brought back to its original branch.
func (s *Sandbox) Simulate(ctx context.Context, upstreamRef string) (result SimulationResult, err error) {
	if strings.TrimSpace(upstreamRef) == "" {
		return SimulationResult{}, errors.New("upstream ref is required")
	}

	originalBranch, err := s.git.Output(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return SimulationResult{}, fmt.Errorf("resolve original branch: %w", err)
	}
	if originalBranch == "HEAD" {
		return SimulationResult{}, errors.New("cannot simulate from detached HEAD")
	}

	simBranch := s.branchName()
	if _, err := s.git.RunChecked(ctx, "checkout", "-b", simBranch); err != nil {
		return SimulationResult{}, fmt.Errorf("create disposable branch %s: %w", simBranch, err)
	}
	if s.auditor != nil {
		_ = s.auditor.LogSandboxCreate(simBranch, originalBranch)
	}

	// Cleanup is registered immediately after branch creation so it runs on
	// every exit path, including panics and context cancellation. Secondary
	// failures (branch already gone) are logged, never propagated; a failed
	// checkout of the original branch is the one fatal case.
	defer func() {
		if restoreErr := s.cleanup(originalBranch, simBranch); restoreErr != nil {
			err = restoreErr
		}
	}()

	merge, err := s.git.Run(ctx, "merge", "--no-commit", "--no-ff", upstreamRef)
	if err != nil {
		return SimulationResult{}, fmt.Errorf("run merge simulation: %w", err)
	}

	if merge.ExitCode == 0 {
		affected, listErr := s.git.Lines(ctx, "diff", "--cached", "--name-only")
		s.discardMergeState(ctx)
		if listErr != nil {
			return SimulationResult{}, fmt.Errorf("list staged merge paths: %w", listErr)
		}
		result = SimulationResult{
			Succeeded:     true,
			AffectedPaths: sortedUnique(affected),
		}
	} else {
		conflicted, listErr := s.conflictedPaths(ctx)
		s.discardMergeState(ctx)
		if listErr != nil {
			return SimulationResult{}, fmt.Errorf("list conflicted paths: %w", listErr)
		}
		result = SimulationResult{
			Succeeded:       false,
			ConflictedPaths: conflicted,
			Risk:            policy.RiskManual,
			Disposition:     policy.ManualIntervention,
		}
	}

	if s.auditor != nil {
		_ = s.auditor.LogSandboxResult(result.Succeeded, len(result.ConflictedPaths), len(result.AffectedPaths))
	}
	return result, nil
}

// branchName builds a uniquely named disposable branch.
func (s *Sandbox) branchName() string {
	now := s.now
	if now == nil {
		now = time.Now
	}
	return fmt.Sprintf("%s-%s-%d", branchPrefix, now().UTC().Format("20060102-150405"), os.Getpid())
}

// conflictedPaths collects unmerged paths from the structured diff filter and
// supplements them with porcelain status conflict codes. Merge stderr text is
// deliberately not parsed; it varies by locale and git version.
func (s *Sandbox) conflictedPaths(ctx context.Context) ([]string, error) {
	unmerged, err := s.git.Lines(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}

	status, err := s.git.Lines(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	for _, line := range status {
		if len(line) < 4 {
			continue
		}
		if isConflictCode(line[0], line[1]) {
			unmerged = append(unmerged, strings.TrimSpace(line[3:]))
		}
	}
	return sortedUnique(unmerged), nil
}

// isConflictCode reports whether a porcelain XY code marks an unmerged entry.
func isConflictCode(x byte, y byte) bool {
	if x == 'U' || y == 'U' {
		return true
	}
	return (x == 'A' && y == 'A') || (x == 'D' && y == 'D')
}

// discardMergeState unconditionally drops any staged or failed merge. Both
// commands are best-effort; a repository with no merge in progress makes
// `merge --abort` fail, which the hard reset then covers.
func (s *Sandbox) discardMergeState(ctx context.Context) {
	if _, err := s.git.RunChecked(ctx, "merge", "--abort"); err == nil {
		return
	}
	_, _ = s.git.RunChecked(ctx, "reset", "--hard", "HEAD")
}

// cleanup checks out the original branch and deletes the disposable branch.
// It uses a fresh context so it still runs after cancellation mid-simulation.
func (s *Sandbox) cleanup(originalBranch string, simBranch string) error {
	ctx := context.Background()

	if _, err := s.git.RunChecked(ctx, "checkout", originalBranch); err != nil {
		if s.auditor != nil {
			_ = s.auditor.LogSandboxCleanup(simBranch, err)
		}
		return fmt.Errorf("%w: checkout %s: %v", ErrRestore, originalBranch, err)
	}

	var deleteErr error
	if _, err := s.git.RunChecked(ctx, "branch", "-D", simBranch); err != nil {
		deleteErr = err
	}
	if s.auditor != nil {
		_ = s.auditor.LogSandboxCleanup(simBranch, deleteErr)
	}
	return nil
}

// sortedUnique returns a sorted copy of paths with duplicates and blanks removed.
func sortedUnique(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	result := make([]string, 0, len(paths))
	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	sort.Strings(result)
	return result
}
