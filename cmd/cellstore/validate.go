package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/cellstore/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a store configuration without serving it.

This command parses the YAML, expands environment variables, validates all
fields, builds the store and checks the initial state against every
validator. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  cellstore validate -c store.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := config.BuildStore(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := config.BuildFeeds(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:          %d\n", cfg.Port)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Fprintf(out, "  Events:        %d\n", len(cfg.Events))
	fmt.Fprintf(out, "  Subscriptions: %d\n", len(cfg.Subscriptions))
	fmt.Fprintf(out, "  Validators:    %d\n", len(cfg.Validators))
	fmt.Fprintf(out, "  Feeds:         %d\n", len(cfg.Feeds))
	fmt.Fprintf(out, "  Script steps:  %d\n", len(cfg.Script))

	return nil
}
