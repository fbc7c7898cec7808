// Command shuttle-router is the entrypoint for the shuttle-router CLI.
package main

import (
	"fmt"
	"os"

	"github.com/fleetshuttle/router/internal/adapters/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
