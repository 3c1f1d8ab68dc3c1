// Package commands provides the CLI commands for CodeSquad.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codesquad-ai/codesquad/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel  string
	logPretty bool
)

var rootCmd = &cobra.Command{
	Use:   "codesquad",
	Short: "CodeSquad - browser-delivered AI coding workspace",
	Long: `CodeSquad runs a server that browser clients connect to for AI-assisted
coding: chat with model providers, sandboxed project workspaces, shell
commands, and orchestration of coding-agent squads.

Run 'codesquad serve' to start the server.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand, show help
		cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logging.Config{
			Level:  logging.ParseLevel(logLevel),
			Pretty: logPretty,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "log-pretty", false, "Human-readable console log output")

	rootCmd.SetVersionTemplate(fmt.Sprintf("codesquad %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}
