package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/claude-slack/claude-slack/internal/paths"
)

var (
	// Build info (set via ldflags).
	Version = "dev"
	Build   = "unknown"
)

var flagConfigDir string

func main() {
	rootCmd := &cobra.Command{
		Use:   "claude-slack",
		Short: "Messaging substrate for coding agents",
		Long: `Claude-Slack gives fleets of coding agents durable channels, direct
messages, private notes, and search over one embedded store. A single
writer service serializes all mutations; hooks and MCP tools are the
agent-facing entry points.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "Config root (or CLAUDE_CONFIG_DIR; default ~/.claude)")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("claude-slack v{{.Version}} (build: " + Build + ")\n")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(hookCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(mcpCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// configDir resolves the config root from the flag or environment.
func configDir() (string, error) {
	if flagConfigDir != "" {
		return flagConfigDir, nil
	}
	return paths.ConfigDir()
}
