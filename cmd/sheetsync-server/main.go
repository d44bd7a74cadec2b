// sheetsync-server is the standalone trigger API: the serve subcommand with
// its configuration taken from the environment (SHEETSYNC_CONFIG,
// SHEETSYNC_ADDR), suitable for running under a process supervisor.
package main

import (
	"os"

	"github.com/orderdesk/sheetsync/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	root.SetArgs(append([]string{"serve"}, os.Args[1:]...))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
