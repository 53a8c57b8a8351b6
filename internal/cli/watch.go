package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/forkguard/forkguard/internal/tui"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Interval time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch divergence from upstream interactively",
		Long: `Open an interactive view that re-measures divergence on an interval.

Each check fetches the upstream remote and records ahead/behind counts, the
graded risk, and whether protected paths are touched. The repository is
never mutated.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(opts.RootOptions)
			if err != nil {
				return err
			}
			if err := tui.Run(env.git, env.cfg, opts.Interval); err != nil {
				return WrapExitError(ExitCommandError, "run watch view", err)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", 30*time.Second, "time between divergence checks")

	return cmd
}
