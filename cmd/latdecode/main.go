package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "latdecode",
	Short: "Incremental lattice decoding over WFST graphs",
	Long: `latdecode runs lattice-generating beam search over a decoding
graph in AT&T text format, fed with per-frame log-likelihood matrices.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
