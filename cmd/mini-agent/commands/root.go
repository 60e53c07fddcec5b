// Package commands implements the mini-agent CLI commands using cobra.
package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mini-agent",
		Short: "mini-agent - a small conversational agent runtime",
		Long: `mini-agent is a local conversational agent with tool calling,
steering, a heartbeat for self-initiated work, and markdown skills.

Examples:
  mini-agent chat                               # interactive shell
  mini-agent chat standup --agent work          # named session
  mini-agent chat -m "summarize today's notes"  # one-shot message
  mini-agent config set-key                     # store the API key in the OS keyring`,
		Version: version,
	}

	rootCmd.AddCommand(
		newChatCmd(),
		newConfigCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}

// setupLogging installs the process-wide slog handler. Logs go to stderr so
// they never interleave with chat output on stdout.
func setupLogging(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
