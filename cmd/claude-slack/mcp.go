package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/claude-slack/claude-slack/internal/identity"
	"github.com/claude-slack/claude-slack/internal/mcp"
	"github.com/claude-slack/claude-slack/internal/paths"
	"github.com/claude-slack/claude-slack/internal/types"
)

func mcpCmd() *cobra.Command {
	var agentName string
	var projectDir string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve agent tools over stdio",
		Long: `Runs the tool server for one agent. The host process speaks the
Model Context Protocol on stdin/stdout; every tool call is forwarded
to the writer service as that agent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if agentName == "" {
				return fmt.Errorf("--agent is required")
			}
			ref := types.AgentRef{Name: agentName}
			if projectDir != "" {
				abs, err := filepath.Abs(projectDir)
				if err != nil {
					return fmt.Errorf("resolve project dir: %w", err)
				}
				ref.ProjectID = identity.ProjectID(abs)
			}
			srv, err := mcp.NewServer(ref, paths.APIURL(), Version)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&agentName, "agent", "", "Agent name to act as")
	cmd.Flags().StringVar(&projectDir, "project-dir", "", "Project root scoping the agent (omit for global)")
	return cmd
}
