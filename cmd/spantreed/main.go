// spantreed runs trace infrastructure standalone: the span API server for
// multi-process traces, and the live view for watching a trace database.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "spantreed",
	Short: "Span tree trace server and viewer",
	Long: `spantreed hosts the pieces of a trace that outlive a single process:
the HTTP span API over a trace database, and a live browser view of it.`,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to TOML config (default spantree.toml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(viewCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
