package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/claude-slack/claude-slack/internal/api"
	"github.com/claude-slack/claude-slack/internal/config"
	"github.com/claude-slack/claude-slack/internal/logging"
	"github.com/claude-slack/claude-slack/internal/paths"
	"github.com/claude-slack/claude-slack/internal/store"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the writer service",
		Long: `Runs the HTTP writer service. All writes to the store flow through
this single process; run exactly one per host.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := configDir()
			if err != nil {
				return err
			}
			closeLog, err := logging.Setup(paths.LogsDir(dir), "serve", true)
			if err != nil {
				return err
			}
			defer closeLog()

			cfg, err := config.Load(paths.ConfigFile(dir))
			if err != nil {
				return err
			}
			st, err := store.Open(paths.DBPath(dir))
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return api.NewServer(addr, st, cfg).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8765", "Listen address")
	return cmd
}
