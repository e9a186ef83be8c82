// Command coedit is a collaborative text editing client and development
// relay.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/coedit/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
