package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/claude-slack/claude-slack/internal/hooks"
	"github.com/claude-slack/claude-slack/internal/logging"
	"github.com/claude-slack/claude-slack/internal/paths"
)

func hookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Host lifecycle hooks (read payload from stdin)",
	}
	cmd.AddCommand(sessionStartCmd(), preToolUseCmd())
	return cmd
}

// Hooks always exit 0: a broken messaging substrate must never break
// the host session. Errors go to the hook log.
func sessionStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session-start",
		Short: "Bind the session, drain the spool, and reconcile",
		Run: func(cmd *cobra.Command, args []string) {
			dir, err := configDir()
			if err != nil {
				return
			}
			closeLog, err := logging.Setup(paths.LogsDir(dir), "hooks", false)
			if err != nil {
				return
			}
			defer closeLog()
			hooks.SessionStart(cmd.Context(), os.Stdin, dir)
		},
	}
}

func preToolUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pre-tool-use",
		Short: "Record a tool call against its session",
		Run: func(cmd *cobra.Command, args []string) {
			dir, err := configDir()
			if err != nil {
				return
			}
			closeLog, err := logging.Setup(paths.LogsDir(dir), "hooks", false)
			if err != nil {
				return
			}
			defer closeLog()
			hooks.PreToolUse(cmd.Context(), os.Stdin, dir)
		},
	}
}
