// Package cli wires the forkguard commands together.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forkguard/forkguard/internal/config"
	"github.com/forkguard/forkguard/internal/gitcmd"
	"github.com/forkguard/forkguard/internal/repo"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	ConfigPath string
}

// NewRootCommand creates the root command for the forkguard CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "forkguard",
		Short: "Fork synchronization decision engine",
		Long: `Forkguard keeps a long-lived fork synchronized with its upstream.

Each run measures divergence, rehearses the upstream merge on a disposable
branch, classifies the risk, and either merges automatically, routes the
delta to review, or asks for manual intervention. Fork-specific files never
change without a human in the loop.`,
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to protection config (default <repo>/.forkguard.yaml)")

	// Add subcommands
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// runtimeEnv bundles the resolved repository, config, and git runner shared
// by every command that touches the checkout.
type runtimeEnv struct {
	root string
	cfg  config.ProtectionConfig
	git  *gitcmd.Runner
}

// loadEnv discovers the repository root, ensures the state directory exists,
// and loads the protection config.
func loadEnv(opts *RootOptions) (runtimeEnv, error) {
	root, err := repo.DiscoverRootFromCWD()
	if err != nil {
		return runtimeEnv{}, WrapExitError(ExitCommandError, "locate repository", err)
	}
	if _, err := repo.EnsureStateDir(root); err != nil {
		return runtimeEnv{}, WrapExitError(ExitCommandError, "prepare state directory", err)
	}

	var cfg config.ProtectionConfig
	if opts.ConfigPath != "" {
		cfg, err = config.Load(opts.ConfigPath)
	} else {
		cfg, err = config.LoadFromRepo(root)
	}
	if err != nil {
		return runtimeEnv{}, WrapExitError(ExitCommandError, "load protection config", err)
	}

	git, err := gitcmd.NewRunner(root)
	if err != nil {
		return runtimeEnv{}, WrapExitError(ExitCommandError, "initialize git runner", err)
	}
	return runtimeEnv{root: root, cfg: cfg, git: git}, nil
}

// verbosef prints diagnostic output when the verbose flag is set.
func verbosef(cmd *cobra.Command, opts *RootOptions, format string, args ...any) {
	if opts.Verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
	}
}
