package main

import (
	"os"

	"github.com/jkolo/go-scp03/cmd/scp03/cmd"
)

// main dispatches to the CLI commands.
func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
