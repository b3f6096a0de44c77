package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/claude-slack/claude-slack/internal/client"
	"github.com/claude-slack/claude-slack/internal/paths"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show store and service health",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := configDir()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			tty := term.IsTerminal(int(os.Stdout.Fd()))

			dbPath := paths.DBPath(dir)
			if info, err := os.Stat(dbPath); err == nil {
				fmt.Fprintf(out, "%s store    %s (%s)\n", mark(tty, true), dbPath, humanSize(info.Size()))
			} else {
				fmt.Fprintf(out, "%s store    %s (not created yet)\n", mark(tty, false), dbPath)
			}

			spool := paths.SessionsDir(dir)
			if entries, err := os.ReadDir(spool); err == nil && len(entries) > 0 {
				fmt.Fprintf(out, "%s spool    %d pending entries in %s\n", mark(tty, false), len(entries), spool)
			} else {
				fmt.Fprintf(out, "%s spool    empty\n", mark(tty, true))
			}

			url := paths.APIURL()
			if err := client.New(url).Health(cmd.Context()); err != nil {
				fmt.Fprintf(out, "%s service  %s unreachable: %v\n", mark(tty, false), url, err)
				fmt.Fprintln(out, "\nStart it with: claude-slack serve")
				return nil
			}
			fmt.Fprintf(out, "%s service  %s\n", mark(tty, true), url)
			return nil
		},
	}
}

// mark renders a status indicator, falling back to plain ASCII when
// stdout is not a terminal.
func mark(tty, ok bool) string {
	if !tty {
		if ok {
			return "[ok]"
		}
		return "[--]"
	}
	if ok {
		return "✓"
	}
	return "✗"
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
