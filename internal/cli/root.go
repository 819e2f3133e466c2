// Package cli wires configuration and collaborators into the scancheck
// commands.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "scancheck",
	Short: "Submit brain scans to a classification service",
	Long: `scancheck uploads one brain-scan image at a time to a remote
classification service and reports whether a tumor was detected.

Configuration comes from an optional YAML file (--config) overlaid by
environment variables such as SCANCHECK_ENDPOINT, REDIS_ADDR and
DATABASE_DSN.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
