// Command shiden34 runs the PSP34 token ledger CLI.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/shiden34/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
