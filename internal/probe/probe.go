// Package probe issues read-only git queries to measure fork divergence.
package probe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/forkguard/forkguard/internal/config"
	"github.com/forkguard/forkguard/internal/gitcmd"
	"github.com/forkguard/forkguard/internal/policy"
)

// ErrQuery marks a failed read-only version-control query. It is fatal and
// aborts the run.
var ErrQuery = errors.New("vcs query failed")

// RiskLevel grades divergence before any simulation runs.
type RiskLevel string

const (
	// RiskLow marks small divergence away from protected paths.
	RiskLow RiskLevel = "LOW"
	// RiskMedium marks divergence beyond the behind-count threshold.
	RiskMedium RiskLevel = "MEDIUM"
	// RiskHigh marks divergence that touched protected paths upstream.
	RiskHigh RiskLevel = "HIGH"
)

// mediumBehindThreshold is the behind count above which divergence is graded MEDIUM.
const mediumBehindThreshold = 10

// DivergenceStatus is an immutable snapshot of fork/upstream divergence.
// It is computed fresh on every invocation and never persisted.
type DivergenceStatus struct {
	Ahead                 int
	Behind                int
	UpstreamHead          string
	ProtectedPathsTouched bool
	Risk                  RiskLevel
}

// Probe performs read-only divergence queries against a repository checkout.
// It has no side effects and is safe to call repeatedly.
type Probe struct {
	git *gitcmd.Runner
	cfg config.ProtectionConfig
}

// New creates a probe for the given repository runner and protection config.
func New(git *gitcmd.Runner, cfg config.ProtectionConfig) *Probe {
	return &Probe{git: git, cfg: cfg}
}

// MeasureDivergence computes ahead/behind counts against the configured
// upstream ref and whether any behind-range commit touched a protected path.
func (p *Probe) MeasureDivergence(ctx context.Context) (DivergenceStatus, error) {
	upstreamRef := p.cfg.UpstreamRef()

	head, err := p.git.Output(ctx, "rev-parse", upstreamRef)
	if err != nil {
		return DivergenceStatus{}, fmt.Errorf("%w: resolve %s: %v", ErrQuery, upstreamRef, err)
	}

	ahead, behind, err := p.countDivergence(ctx, upstreamRef)
	if err != nil {
		return DivergenceStatus{}, err
	}

	protectedTouched := false
	if behind > 0 {
		protectedTouched, err = p.behindRangeTouchesProtected(ctx, upstreamRef)
		if err != nil {
			return DivergenceStatus{}, err
		}
	}

	status := DivergenceStatus{
		Ahead:                 ahead,
		Behind:                behind,
		UpstreamHead:          head,
		ProtectedPathsTouched: protectedTouched,
	}
	status.Risk = gradeRisk(status)
	return status, nil
}

// CurrentBranch returns the branch HEAD currently points at.
func (p *Probe) CurrentBranch(ctx context.Context) (string, error) {
	branch, err := p.git.Output(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("%w: resolve current branch: %v", ErrQuery, err)
	}
	if branch == "HEAD" {
		return "", fmt.Errorf("%w: repository is in detached HEAD state", ErrQuery)
	}
	return branch, nil
}

// BranchTip returns the commit SHA the named branch points at.
func (p *Probe) BranchTip(ctx context.Context, branch string) (string, error) {
	if strings.TrimSpace(branch) == "" {
		return "", fmt.Errorf("%w: branch name is required", ErrQuery)
	}
	tip, err := p.git.Output(ctx, "rev-parse", branch)
	if err != nil {
		return "", fmt.Errorf("%w: resolve tip of %s: %v", ErrQuery, branch, err)
	}
	return tip, nil
}

// countDivergence parses `rev-list --left-right --count HEAD...<ref>` output.
func (p *Probe) countDivergence(ctx context.Context, upstreamRef string) (int, int, error) {
	out, err := p.git.Output(ctx, "rev-list", "--left-right", "--count", "HEAD..."+upstreamRef)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: count divergence against %s: %v", ErrQuery, upstreamRef, err)
	}

	parts := strings.Fields(out)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: unexpected rev-list output %q", ErrQuery, out)
	}
	ahead, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: parse ahead count %q: %v", ErrQuery, parts[0], err)
	}
	behind, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: parse behind count %q: %v", ErrQuery, parts[1], err)
	}
	return ahead, behind, nil
}

// behindRangeTouchesProtected reports whether any commit in HEAD..<ref> touched
// a path under a protected entry.
func (p *Probe) behindRangeTouchesProtected(ctx context.Context, upstreamRef string) (bool, error) {
	lines, err := p.git.Lines(ctx, "log", "--name-only", "--format=", "HEAD.."+upstreamRef)
	if err != nil {
		return false, fmt.Errorf("%w: list behind-range paths for %s: %v", ErrQuery, upstreamRef, err)
	}

	for _, path := range lines {
		for _, entry := range p.cfg.ProtectedPaths {
			if policy.PathUnder(path, entry) {
				return true, nil
			}
		}
	}
	return false, nil
}

// gradeRisk applies the divergence risk tiering.
func gradeRisk(status DivergenceStatus) RiskLevel {
	if status.ProtectedPathsTouched {
		return RiskHigh
	}
	if status.Behind > mediumBehindThreshold {
		return RiskMedium
	}
	return RiskLow
}
