// Package workflow sequences a single fork synchronization run end to end.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/forkguard/forkguard/internal/audit"
	"github.com/forkguard/forkguard/internal/config"
	"github.com/forkguard/forkguard/internal/gitcmd"
	"github.com/forkguard/forkguard/internal/merger"
	"github.com/forkguard/forkguard/internal/policy"
	"github.com/forkguard/forkguard/internal/probe"
	"github.com/forkguard/forkguard/internal/sandbox"
)

// Action is the outward result of a run. Every run terminates with exactly one.
type Action string

const (
	// ActionUpToDate means the fork is not behind upstream.
	ActionUpToDate Action = "UP_TO_DATE"
	// ActionCheckOnly means automated action was forbidden by the caller.
	ActionCheckOnly Action = "CHECK_ONLY"
	// ActionAutoMerged means the upstream delta was merged automatically.
	ActionAutoMerged Action = "AUTO_MERGED"
	// ActionReviewRequestCreated means the delta was routed to review.
	ActionReviewRequestCreated Action = "REVIEW_REQUEST_CREATED"
	// ActionManualInterventionRequired means a human must resolve the delta.
	ActionManualInterventionRequired Action = "MANUAL_INTERVENTION_REQUIRED"
	// ActionForceReviewRequest means the caller bypassed the policy choice.
	ActionForceReviewRequest Action = "FORCE_REVIEW_REQUEST"
	// ActionFailed means an unrecoverable error terminated the run.
	ActionFailed Action = "FAILED"
)

// Stage names the pipeline stage a run was in, used for failure reporting.
type Stage string

const (
	// StageStart covers startup invariants before any query runs.
	StageStart Stage = "start"
	// StageProbe covers divergence measurement.
	StageProbe Stage = "probe"
	// StageSimulate covers the sandboxed merge simulation.
	StageSimulate Stage = "simulate"
	// StageDecide covers disposition classification.
	StageDecide Stage = "decide"
	// StageMerge covers the real merge.
	StageMerge Stage = "merge"
)

// Options carries caller-supplied modes for a single run.
type Options struct {
	// CheckOnly forbids any automated repository mutation.
	CheckOnly bool
	// ForceReview bypasses the policy disposition and requests a review.
	ForceReview bool
	// Timeout overrides the configured wall-clock budget when positive.
	Timeout time.Duration
}

// RunReport is the structured result of one run, consumed by the reporting
// and review collaborators.
type RunReport struct {
	Action     Action
	FailedAt   Stage
	Cause      string
	Divergence probe.DivergenceStatus
	Simulation *sandbox.SimulationResult
	Merge      *merger.MergeOutcome
	Elapsed    time.Duration
}

// Coordinator owns the five-stage pipeline. It is the only component whose
// side effects are visible outside the process.
type Coordinator struct {
	git     *gitcmd.Runner
	cfg     config.ProtectionConfig
	auditor *audit.Logger
	probe   *probe.Probe
	sandbox *sandbox.Sandbox
	merger  *merger.Merger
	now     func() time.Time
}

// New wires a coordinator for the given repository runner and protection
// config. The fork's integration branch mirrors the upstream main branch name.
// The auditor may be nil.
func New(git *gitcmd.Runner, cfg config.ProtectionConfig, auditor *audit.Logger) (*Coordinator, error) {
	m, err := merger.New(git, cfg, auditor, cfg.Upstream.MainBranch)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		git:     git,
		cfg:     cfg,
		auditor: auditor,
		probe:   probe.New(git, cfg),
		sandbox: sandbox.New(git, auditor),
		merger:  m,
		now:     time.Now,
	}, nil
}

// Run executes the pipeline: START -> PROBE -> (UP_TO_DATE | SIMULATE) ->
// DECIDE -> action -> REPORT. Fatal stage errors map to ActionFailed with the
// failing stage and cause recorded; the returned error is nil in every case so
// callers branch on the report, not on error identity.
func (c *Coordinator) Run(ctx context.Context, opts Options) RunReport {
	started := c.now()
	budget := opts.Timeout
	if budget <= 0 {
		budget = time.Duration(c.cfg.Monitoring.MaxExecutionSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	report := c.run(ctx, opts)
	report.Elapsed = c.now().Sub(started)

	if c.auditor != nil {
		_ = c.auditor.LogAction(string(report.Action), string(report.FailedAt), report.Cause)
	}
	return report
}

func (c *Coordinator) run(ctx context.Context, opts Options) RunReport {
	// The engine assumes exclusive access to the checkout; an earlier killed
	// process may have left the repository on a disposable branch, so never
	// proceed from an unexpected branch.
	branch, err := c.probe.CurrentBranch(ctx)
	if err != nil {
		return c.failed(StageStart, err)
	}
	if branch != c.cfg.Upstream.MainBranch {
		return c.failed(StageStart, fmt.Errorf("expected integration branch %s, found %s", c.cfg.Upstream.MainBranch, branch))
	}

	divergence, err := c.probe.MeasureDivergence(ctx)
	if err != nil {
		return c.failed(StageProbe, err)
	}
	if c.auditor != nil {
		_ = c.auditor.LogProbe(divergence.Ahead, divergence.Behind, divergence.UpstreamHead,
			divergence.ProtectedPathsTouched, string(divergence.Risk))
	}

	if divergence.Behind == 0 {
		return RunReport{Action: ActionUpToDate, Divergence: divergence}
	}

	sim, err := c.sandbox.Simulate(ctx, c.cfg.UpstreamRef())
	if err != nil {
		return c.failedWithDivergence(StageSimulate, err, divergence)
	}

	sim.Disposition = policy.Classify(policy.Input{
		ConflictedPaths:  sim.ConflictedPaths,
		AffectedPaths:    sim.AffectedPaths,
		SimulationFailed: !sim.Succeeded,
		Config:           c.cfg,
	})
	sim.Risk = policy.RiskFor(sim.Disposition)
	if c.auditor != nil {
		_ = c.auditor.LogDecision(string(sim.Disposition), string(sim.Risk))
	}

	report := RunReport{Divergence: divergence, Simulation: &sim}

	switch {
	case opts.CheckOnly:
		report.Action = ActionCheckOnly
	case opts.ForceReview:
		report.Action = ActionForceReviewRequest
	case sim.Disposition == policy.ManualIntervention:
		report.Action = ActionManualInterventionRequired
	case sim.Disposition == policy.ReviewRequest:
		report.Action = ActionReviewRequestCreated
	default:
		outcome, mergeErr := c.merger.ApplySafeMerge(ctx, sim, c.cfg.UpstreamRef())
		if mergeErr != nil {
			return c.failedWithDivergence(StageMerge, mergeErr, divergence)
		}
		report.Merge = &outcome
		if !outcome.Succeeded {
			report.Action = ActionFailed
			report.FailedAt = StageMerge
			report.Cause = outcome.Message
			return report
		}
		report.Action = ActionAutoMerged
	}
	return report
}

// failed builds a FAILED report for a fatal stage error.
func (c *Coordinator) failed(stage Stage, err error) RunReport {
	return RunReport{
		Action:   ActionFailed,
		FailedAt: stage,
		Cause:    err.Error(),
	}
}

// failedWithDivergence preserves the measured divergence in a FAILED report.
func (c *Coordinator) failedWithDivergence(stage Stage, err error, divergence probe.DivergenceStatus) RunReport {
	report := c.failed(stage, err)
	report.Divergence = divergence
	return report
}
