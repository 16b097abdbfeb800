// Command blocksync keeps a content blocker rule artifact in sync with the
// user's filtering configuration.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/blocksync/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}

	os.Exit(cli.GetExitCode(err))
}
