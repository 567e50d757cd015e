// Package main is the entry point for the cellstore CLI.
//
// A store can be built in Go with the cellstore package or described in
// YAML and run with this binary.
//
// Usage:
//
//	cellstore serve -c store.yaml    # Serve the store over HTTP
//	cellstore validate -c store.yaml # Validate configuration
//	cellstore replay -c store.yaml   # Run the config's script and print JSON lines
//	cellstore version                # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd only displays help; functionality lives in subcommands.
var rootCmd = &cobra.Command{
	Use:   "cellstore",
	Short: "A reactive state store served over HTTP",
	Long: `cellstore holds one JSON document, changes it only through named events,
and pushes derived values to subscribers when they change.

Quick start:
  1. Create a config file (store.yaml)
  2. Run: cellstore serve -c store.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  initial_state:
    count: 0
  events:
    - name: inc
      op: inc
      path: count
  subscriptions:
    - name: count
      path: count`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this cellstore binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "cellstore %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
