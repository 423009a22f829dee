// Command idx2 is a thin CLI over the idx2 library: encode a raw binary
// volume into a store tree, or decode one back out.
//
// Grounded on distr1-distri/cmd/distri's RunAtExit teardown discipline
// for the overall program shape, generalized to cobra-based subcommands
// the way direktiv-vorteil/cmd/vorteil wires its own CLI (one file per
// subcommand, flags attached in init()).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	idx2 "github.com/hoang-dt/idx2"
)

var rootCmd = &cobra.Command{
	Use:   "idx2",
	Short: "encode and decode IDX2 multidimensional scalar fields",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := idx2.RunAtExit(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
