// Package cmd is the tinyclaw CLI: a single queue-processor command plus
// a read-only sandbox-check preflight helper.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X github.com/nextlevelbuilder/tinyclaw/cmd.Version=v1.0.0".
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "tinyclaw",
	Short: "tinyclaw — file-queue message broker and agent orchestrator",
	Long: "tinyclaw routes messages from external chat channels to AI agent CLIs,\n" +
		"runs them in a configurable sandbox, and writes replies back to a\n" +
		"response queue. This binary runs the queue processor; channel clients\n" +
		"and the operator CLI are separate collaborators.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProcessor(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (default: settings.json or $TINYCLAW_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(sandboxCheckCmd())
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("TINYCLAW_CONFIG"); v != "" {
		return v
	}
	return "settings.json"
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
