package mcp

import (
	"context"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/claude-slack/claude-slack/internal/api"
	"github.com/claude-slack/claude-slack/internal/types"
)

func (s *Server) handleSendMessage(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input SendMessageInput,
) (*gomcp.CallToolResult, SendMessageOutput, error) {
	var metadata map[string]any
	if len(input.Metadata) > 0 {
		metadata = make(map[string]any, len(input.Metadata))
		for k, v := range input.Metadata {
			metadata[k] = v
		}
	}
	id, err := s.client.PostMessage(ctx, api.PostMessageRequest{
		ChannelID:       input.ChannelID,
		Content:         input.Content,
		SenderID:        s.agent.Name,
		SenderProjectID: s.agent.ProjectID,
		Metadata:        metadata,
		ThreadID:        input.ThreadID,
	})
	if err != nil {
		return nil, SendMessageOutput{}, err
	}
	return nil, SendMessageOutput{MessageID: id}, nil
}

func (s *Server) handleGetMessages(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input GetMessagesInput,
) (*gomcp.CallToolResult, GetMessagesOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}
	msgs, err := s.client.GetMessages(ctx, input.ChannelID, s.agent, limit, input.Offset)
	if err != nil {
		return nil, GetMessagesOutput{}, err
	}
	out := GetMessagesOutput{Messages: make([]MessageInfo, 0, len(msgs))}
	for _, m := range msgs {
		out.Messages = append(out.Messages, messageInfo(m, 0))
	}
	return nil, out, nil
}

func (s *Server) handleSearchMessages(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input SearchMessagesInput,
) (*gomcp.CallToolResult, SearchMessagesOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	results, err := s.client.Search(ctx, api.SearchRequest{
		AgentName:      s.agent.Name,
		AgentProjectID: s.agent.ProjectID,
		Query:          input.Query,
		ChannelIDs:     input.ChannelIDs,
		Limit:          limit,
	})
	if err != nil {
		return nil, SearchMessagesOutput{}, err
	}
	out := SearchMessagesOutput{Results: make([]MessageInfo, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, messageInfo(r.Message, r.FinalScore))
	}
	return nil, out, nil
}

func (s *Server) handleListChannels(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input ListChannelsInput,
) (*gomcp.CallToolResult, ListChannelsOutput, error) {
	channels, err := s.client.ListChannels(ctx, &s.agent, "", input.IncludeArchived)
	if err != nil {
		return nil, ListChannelsOutput{}, err
	}
	out := ListChannelsOutput{Channels: make([]ChannelInfo, 0, len(channels))}
	for _, ch := range channels {
		out.Channels = append(out.Channels, ChannelInfo{
			ID:          ch.ID,
			Name:        ch.Name,
			Scope:       string(ch.Scope),
			AccessType:  string(ch.AccessType),
			Description: ch.Description,
			IsDefault:   ch.IsDefault,
			Archived:    ch.Archived,
		})
	}
	return nil, out, nil
}

func (s *Server) handleJoinChannel(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input JoinChannelInput,
) (*gomcp.CallToolResult, SuccessOutput, error) {
	if err := s.client.JoinChannel(ctx, input.ChannelID, s.agent); err != nil {
		return nil, SuccessOutput{}, err
	}
	return nil, SuccessOutput{Success: true}, nil
}

func (s *Server) handleLeaveChannel(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input LeaveChannelInput,
) (*gomcp.CallToolResult, SuccessOutput, error) {
	if err := s.client.LeaveChannel(ctx, input.ChannelID, s.agent); err != nil {
		return nil, SuccessOutput{}, err
	}
	return nil, SuccessOutput{Success: true}, nil
}

func (s *Server) handleWriteNote(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input WriteNoteInput,
) (*gomcp.CallToolResult, WriteNoteOutput, error) {
	id, err := s.client.WriteNote(ctx, api.WriteNoteRequest{
		Content:        input.Content,
		AgentName:      s.agent.Name,
		AgentProjectID: s.agent.ProjectID,
		SessionContext: input.SessionContext,
		Tags:           input.Tags,
	})
	if err != nil {
		return nil, WriteNoteOutput{}, err
	}
	return nil, WriteNoteOutput{NoteID: id}, nil
}

func (s *Server) handleSearchNotes(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input SearchNotesInput,
) (*gomcp.CallToolResult, SearchNotesOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	notes, err := s.client.SearchNotes(ctx, s.agent, input.Query, input.Tags, limit)
	if err != nil {
		return nil, SearchNotesOutput{}, err
	}
	out := SearchNotesOutput{Notes: make([]MessageInfo, 0, len(notes))}
	for _, n := range notes {
		out.Notes = append(out.Notes, messageInfo(n.Message, n.FinalScore))
	}
	return nil, out, nil
}

// messageInfo flattens a stored message for tool output.
func messageInfo(m types.Message, score float64) MessageInfo {
	from := types.AgentRef{Name: m.SenderName, ProjectID: m.SenderProjectID}
	return MessageInfo{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		From:      from.Key(),
		Content:   m.Content,
		ThreadID:  m.ThreadID,
		Timestamp: m.Timestamp,
		Score:     score,
	}
}
