package messaging

import (
	"context"

	"github.com/claude-slack/claude-slack/internal/channelid"
	"github.com/claude-slack/claude-slack/internal/membership"
	"github.com/claude-slack/claude-slack/internal/types"
)

// WriteNote posts to the agent's private notes channel, provisioning it
// on first use. Tags and session context travel in metadata.
func (s *Service) WriteNote(ctx context.Context, mem *membership.Service, agent types.AgentRef, content string, tags []string, sessionContext string) (int64, error) {
	if _, err := mem.EnsureNotesChannel(ctx, agent); err != nil {
		return 0, err
	}
	metadata := map[string]any{}
	if len(tags) > 0 {
		metadata["tags"] = tags
	}
	if sessionContext != "" {
		metadata["session_context"] = sessionContext
	}
	return s.Post(ctx, PostParams{
		ChannelID: channelid.Notes(agent),
		Sender:    agent,
		Content:   content,
		Metadata:  metadata,
	})
}

// SearchNotes searches only the agent's own notes channel.
func (s *Service) SearchNotes(ctx context.Context, agent types.AgentRef, query string, limit int) ([]types.ScoredMessage, error) {
	return s.Search(ctx, SearchParams{
		Caller:     agent,
		Query:      query,
		ChannelIDs: []string{channelid.Notes(agent)},
		Limit:      limit,
	})
}
