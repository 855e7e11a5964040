// Package main provides the pagepulse CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "pagepulse",
		Short: "Page-quality scorecards for web products",
		Long: `Pagepulse grades collector measurements page by page, rolls them up
into a product score, and tracks how the score moves between runs.`,
		Version: version,
	}

	rootCmd.AddCommand(
		newScoreCmd(),
		newDiffCmd(),
		newHistoryCmd(),
		newValidateCmd(),
		newServeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
