// Command headfix runs and inspects an unsupervised head-fixation cage.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/headfix/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "headfix:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
