// Command forkguard provides the CLI entrypoint for the sync engine.
package main

import (
	"fmt"
	"os"

	"github.com/forkguard/forkguard/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(cli.GetExitCode(err))
	}
}
