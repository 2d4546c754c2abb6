// Package commands provides the CLI commands for the Scribe agent client.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/scribe-ide/scribe/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "scribe-agent",
	Short: "Scribe agent client - stream agent turns from the backend",
	Long: `scribe-agent is the command line client for the Scribe writing
assistant backend. It submits a prompt, reconciles the event stream into a
transcript, and handles tool approvals.

Run 'scribe-agent run' to execute a single prompt.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// .env keeps API keys out of shell history; absence is fine.
		_ = godotenv.Load()

		var output io.Writer = io.Discard
		if printLogs {
			output = os.Stderr
		}
		logging.Init(logging.Config{
			Level:  logging.ParseLevel(logLevel),
			Output: output,
			Pretty: printLogs,
		})
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("scribe-agent %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(runCmd)
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
