// Package cli provides the Cobra-based command-line interface for the
// freight AI gateway.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "freight-ai",
	Short: "Resilient AI-request gateway for freight logistics",
	Long: `freight-ai mediates every call to the remote generative-AI API:
rate limiting over rolling windows, response caching, retry with backoff,
deterministic fallback synthesis, and cost accounting.`,
	Run: func(cmd *cobra.Command, args []string) {
		// Bare invocation serves, matching operator expectations.
		serveCmd.Run(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ./config.yaml)")
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
