package mcp

// SendMessageInput is the input for the send_message MCP tool.
type SendMessageInput struct {
	ChannelID string            `json:"channel_id" jsonschema:"Target channel id, e.g. global:general or proj:<id>:dev"`
	Content   string            `json:"content" jsonschema:"Message text; @name mentions are validated"`
	ThreadID  *int64            `json:"thread_id,omitempty" jsonschema:"Message id or thread id to reply to"`
	Metadata  map[string]string `json:"metadata,omitempty" jsonschema:"Optional key-value metadata"`
}

// SendMessageOutput is the output for the send_message MCP tool.
type SendMessageOutput struct {
	MessageID int64 `json:"message_id" jsonschema:"ID of the stored message"`
}

// GetMessagesInput is the input for the get_messages MCP tool. The agent
// identity is resolved at server startup, not passed per call.
type GetMessagesInput struct {
	ChannelID string `json:"channel_id" jsonschema:"Channel to read"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Max messages to return. Default 50"`
	Offset    int    `json:"offset,omitempty" jsonschema:"Messages to skip"`
}

// MessageInfo is one message returned to the agent.
type MessageInfo struct {
	ID        int64   `json:"id"`
	ChannelID string  `json:"channel_id"`
	From      string  `json:"from"`
	Content   string  `json:"content"`
	ThreadID  *int64  `json:"thread_id,omitempty"`
	Timestamp int64   `json:"timestamp"`
	Score     float64 `json:"score,omitempty"`
}

// GetMessagesOutput is the output for the get_messages MCP tool.
type GetMessagesOutput struct {
	Messages []MessageInfo `json:"messages" jsonschema:"Messages, newest first"`
}

// SearchMessagesInput is the input for the search_messages MCP tool.
type SearchMessagesInput struct {
	Query      string   `json:"query,omitempty" jsonschema:"Search terms"`
	ChannelIDs []string `json:"channel_ids,omitempty" jsonschema:"Restrict to these channels"`
	Limit      int      `json:"limit,omitempty" jsonschema:"Max results. Default 20"`
}

// SearchMessagesOutput is the output for the search_messages MCP tool.
type SearchMessagesOutput struct {
	Results []MessageInfo `json:"results" jsonschema:"Scored results, best first"`
}

// ListChannelsInput is the input for the list_channels MCP tool.
type ListChannelsInput struct {
	IncludeArchived bool `json:"include_archived,omitempty" jsonschema:"Include archived channels"`
}

// ChannelInfo is one channel returned to the agent.
type ChannelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Scope       string `json:"scope"`
	AccessType  string `json:"access_type"`
	Description string `json:"description,omitempty"`
	IsDefault   bool   `json:"is_default"`
	Archived    bool   `json:"archived"`
}

// ListChannelsOutput is the output for the list_channels MCP tool.
type ListChannelsOutput struct {
	Channels []ChannelInfo `json:"channels"`
}

// JoinChannelInput is the input for the join_channel MCP tool.
type JoinChannelInput struct {
	ChannelID string `json:"channel_id" jsonschema:"Channel to join"`
}

// LeaveChannelInput is the input for the leave_channel MCP tool.
type LeaveChannelInput struct {
	ChannelID string `json:"channel_id" jsonschema:"Channel to leave"`
}

// SuccessOutput reports a bare success.
type SuccessOutput struct {
	Success bool `json:"success"`
}

// WriteNoteInput is the input for the write_note MCP tool.
type WriteNoteInput struct {
	Content        string   `json:"content" jsonschema:"Note text"`
	Tags           []string `json:"tags,omitempty" jsonschema:"Tags for later retrieval"`
	SessionContext string   `json:"session_context,omitempty" jsonschema:"What the agent was doing"`
}

// WriteNoteOutput is the output for the write_note MCP tool.
type WriteNoteOutput struct {
	NoteID int64 `json:"note_id"`
}

// SearchNotesInput is the input for the search_notes MCP tool.
type SearchNotesInput struct {
	Query string   `json:"query,omitempty" jsonschema:"Search terms"`
	Tags  []string `json:"tags,omitempty" jsonschema:"Require all of these tags"`
	Limit int      `json:"limit,omitempty" jsonschema:"Max results. Default 20"`
}

// SearchNotesOutput is the output for the search_notes MCP tool.
type SearchNotesOutput struct {
	Notes []MessageInfo `json:"notes"`
}
