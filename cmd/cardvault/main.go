// Command cardvault runs the card collection server and its maintenance
// commands.
package main

import (
	"fmt"
	"os"

	"github.com/ramonehamilton/cardvault/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
