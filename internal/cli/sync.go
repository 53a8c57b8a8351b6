package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/forkguard/forkguard/internal/audit"
	"github.com/forkguard/forkguard/internal/report"
	"github.com/forkguard/forkguard/internal/review"
	"github.com/forkguard/forkguard/internal/runlock"
	"github.com/forkguard/forkguard/internal/workflow"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	CheckOnly   bool
	ForceReview bool
	NoFetch     bool
	CreatePR    bool
	CI          bool
	Timeout     time.Duration
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Probe, simulate, and reconcile against upstream",
		Long: `Run the full synchronization pipeline once.

The pipeline fetches the upstream remote, measures divergence, rehearses the
merge on a disposable branch, and applies the resulting disposition: clean
deltas away from protected paths merge automatically, protected-path deltas
are routed to review, and conflicts stop for manual intervention.

Example:
  forkguard sync
  forkguard sync --check-only
  forkguard sync --create-pr --ci`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.CheckOnly, "check-only", false, "report the disposition without mutating the repository")
	cmd.Flags().BoolVar(&opts.ForceReview, "force-review", false, "route the delta to review regardless of classification")
	cmd.Flags().BoolVar(&opts.NoFetch, "no-fetch", false, "skip fetching the upstream remote before probing")
	cmd.Flags().BoolVar(&opts.CreatePR, "create-pr", false, "open a pull request when the run routes to review")
	cmd.Flags().BoolVar(&opts.CI, "ci", false, "publish outputs and a step summary to GitHub Actions")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "wall-clock budget for the run (default from config)")

	return cmd
}

func runSync(cmd *cobra.Command, opts *SyncOptions) error {
	env, err := loadEnv(opts.RootOptions)
	if err != nil {
		return err
	}

	lock, err := runlock.Acquire(env.root)
	if err != nil {
		return WrapExitError(ExitCommandError, "acquire sync lock", err)
	}
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "release sync lock: %v\n", releaseErr)
		}
	}()

	auditor, err := audit.NewLogger(env.root, cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "open audit log", err)
	}

	ctx := cmd.Context()
	if !opts.NoFetch {
		verbosef(cmd, opts.RootOptions, "fetching upstream remote")
		if _, err := env.git.RunChecked(ctx, "fetch", "upstream"); err != nil {
			return WrapExitError(ExitCommandError, "fetch upstream", err)
		}
	}

	coordinator, err := workflow.New(env.git, env.cfg, auditor)
	if err != nil {
		return WrapExitError(ExitCommandError, "wire pipeline", err)
	}

	result := coordinator.Run(ctx, workflow.Options{
		CheckOnly:   opts.CheckOnly,
		ForceReview: opts.ForceReview,
		Timeout:     opts.Timeout,
	})

	fmt.Fprint(cmd.OutOrStdout(), report.Terminal(result))

	if opts.CI {
		if err := report.PublishCI(result, report.DefaultCIEnv()); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "publish CI outputs: %v\n", err)
		}
	}

	if opts.CreatePR && wantsReview(result.Action) {
		url, err := openReviewRequest(ctx, env, result)
		if err != nil {
			return WrapExitError(ExitCommandError, "open review request", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "review request: %s\n", url)
	}

	return exitFor(result)
}

// wantsReview reports whether the run's action calls for a review request.
func wantsReview(action workflow.Action) bool {
	return action == workflow.ActionReviewRequestCreated || action == workflow.ActionForceReviewRequest
}

// openReviewRequest pushes a review branch carrying the upstream merge and
// opens a pull request against the integration branch.
func openReviewRequest(ctx context.Context, env runtimeEnv, result workflow.RunReport) (string, error) {
	now := time.Now()
	head, err := review.PrepareBranch(ctx, env.git, env.cfg.Upstream.MainBranch, env.cfg.UpstreamRef(), now)
	if err != nil {
		return "", err
	}

	client, err := review.NewClient(env.root, env.cfg.Upstream.MainBranch, head)
	if err != nil {
		return "", err
	}
	reviewCtx := review.BuildContext(result, env.cfg, report.DefaultCIEnv().RunID(), now)
	return client.Create(ctx, reviewCtx)
}

// exitFor maps a run's terminal action to the process exit code.
func exitFor(result workflow.RunReport) error {
	switch result.Action {
	case workflow.ActionFailed:
		return NewExitError(ExitCommandError, fmt.Sprintf("run failed at %s: %s", result.FailedAt, result.Cause))
	case workflow.ActionManualInterventionRequired:
		return NewExitError(ExitFailure, "manual intervention required")
	default:
		return nil
	}
}
