// Package main provides the CLI entry point for the stateflow dialog
// engine.
//
// # Basic Usage
//
// Start the server:
//
//	stateflow serve --config stateflow.yaml
//
// # Environment Variables
//
//   - SCENARIO_DIR: filesystem root for scenario JSON files
//   - CONTEXT_TTL_MS: session snapshot TTL in milliseconds (default 4200000)
//   - REDIS_URL: external KV context store; in-memory when unset
//   - HTTP_PORT: HTTP listen port
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stateflow",
		Short: "Scenario-driven dialog state engine",
		Long: `stateflow executes chatbot scenarios as state machines: plans of
dialog states with intent, event, condition, slot-filling, webhook, and
API-call handlers, backed by a durable per-session context store.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(buildServeCmd(), buildVersionCmd())
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("stateflow %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
