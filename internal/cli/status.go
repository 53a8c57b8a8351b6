package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forkguard/forkguard/internal/format"
	"github.com/forkguard/forkguard/internal/probe"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	NoFetch bool
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show current divergence from upstream",
		Long: `Measure divergence from upstream without simulating or merging.

Prints the ahead/behind commit counts, whether the behind range touches
protected paths, and the graded risk level. The repository is never mutated.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.NoFetch, "no-fetch", false, "skip fetching the upstream remote before probing")

	return cmd
}

func runStatus(cmd *cobra.Command, opts *StatusOptions) error {
	env, err := loadEnv(opts.RootOptions)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if !opts.NoFetch {
		verbosef(cmd, opts.RootOptions, "fetching upstream remote")
		if _, err := env.git.RunChecked(ctx, "fetch", "upstream"); err != nil {
			return WrapExitError(ExitCommandError, "fetch upstream", err)
		}
	}

	divergence, err := probe.New(env.git, env.cfg).MeasureDivergence(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "measure divergence", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "upstream:  %s\n", env.cfg.UpstreamRef())
	fmt.Fprintf(out, "behind:    %s\n", format.Commits(divergence.Behind))
	fmt.Fprintf(out, "ahead:     %s\n", format.Commits(divergence.Ahead))
	fmt.Fprintf(out, "protected: %t\n", divergence.ProtectedPathsTouched)
	fmt.Fprintf(out, "risk:      %s\n", divergence.Risk)
	return nil
}
