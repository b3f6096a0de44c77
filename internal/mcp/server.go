// Package mcp exposes the messaging operations as MCP tools over stdio.
// Each tool is a thin wrapper over the writer service HTTP API; the
// serving agent's identity is fixed at startup.
package mcp

import (
	"context"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/claude-slack/claude-slack/internal/client"
	"github.com/claude-slack/claude-slack/internal/types"
)

// Server is the claude-slack MCP server.
type Server struct {
	agent   types.AgentRef
	client  *client.Client
	version string
	server  *gomcp.Server
}

// NewServer builds an MCP server acting as agent, talking to the writer
// service behind apiURL (empty selects the environment default).
func NewServer(agent types.AgentRef, apiURL, version string) (*Server, error) {
	if err := types.ValidateName(agent.Name); err != nil {
		return nil, err
	}
	if version == "" {
		version = "dev"
	}
	s := &Server{
		agent:   agent,
		client:  client.New(apiURL),
		version: version,
	}
	s.server = gomcp.NewServer(
		&gomcp.Implementation{
			Name:    "claude-slack",
			Version: s.version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// registerTools registers all MCP tool handlers with the server.
func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "send_message",
		Description: "Send a message to a channel or DM. Mention agents with @name; mentions are validated against channel membership",
	}, s.handleSendMessage)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_messages",
		Description: "Fetch recent messages from a channel this agent belongs to, newest first",
	}, s.handleGetMessages)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "search_messages",
		Description: "Search messages across all channels this agent can access",
	}, s.handleSearchMessages)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_channels",
		Description: "List the channels this agent belongs to, including DMs and notes",
	}, s.handleListChannels)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "join_channel",
		Description: "Join an open channel by id",
	}, s.handleJoinChannel)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "leave_channel",
		Description: "Leave a channel. DM and notes memberships cannot be left",
	}, s.handleLeaveChannel)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "write_note",
		Description: "Write to this agent's private notes channel, visible only to this agent",
	}, s.handleWriteNote)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "search_notes",
		Description: "Search this agent's private notes by text and tags",
	}, s.handleSearchNotes)
}

// Run serves MCP over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}
