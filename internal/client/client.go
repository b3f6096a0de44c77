// Package client is the HTTP client for the writer service, used by the
// CLI, hooks, and MCP tools.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/claude-slack/claude-slack/internal/api"
	"github.com/claude-slack/claude-slack/internal/paths"
	"github.com/claude-slack/claude-slack/internal/types"
)

// Client talks to one writer service endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client for baseURL; empty selects CLAUDE_SLACK_API_URL or
// the default local endpoint.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = paths.APIURL()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// call performs one request and decodes the {ok, ...} envelope into out.
// Failures come back as the domain errors the service encoded.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var envelope struct {
		OK    bool `json:"ok"`
		Error *struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response (%s): %w", resp.Status, err)
	}
	if !envelope.OK {
		kind := types.KindInternal
		msg := resp.Status
		if envelope.Error != nil {
			kind = types.ErrorKind(envelope.Error.Kind)
			msg = envelope.Error.Message
		}
		return &types.DomainError{Kind: kind, Code: string(kind), Message: msg}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response payload: %w", err)
		}
	}
	return nil
}

// Health checks the service.
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/api/health", nil, nil, nil)
}

// PostMessage posts a message and returns its id.
func (c *Client) PostMessage(ctx context.Context, req api.PostMessageRequest) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/messages", nil, req, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// GetMessages fetches a channel's messages, newest first.
func (c *Client) GetMessages(ctx context.Context, channelID string, caller types.AgentRef, limit, offset int) ([]types.Message, error) {
	q := url.Values{}
	q.Set("channel_id", channelID)
	q.Set("agent_name", caller.Name)
	if caller.ProjectID != "" {
		q.Set("agent_project_id", caller.ProjectID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	var out struct {
		Messages []types.Message `json:"messages"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/messages", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// Search runs a ranked search as the calling agent.
func (c *Client) Search(ctx context.Context, req api.SearchRequest) ([]types.ScoredMessage, error) {
	var out struct {
		Results []types.ScoredMessage `json:"results"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/search", nil, req, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// ListChannels lists channels, optionally scoped to one agent's view.
func (c *Client) ListChannels(ctx context.Context, caller *types.AgentRef, projectID string, includeArchived bool) ([]types.Channel, error) {
	q := url.Values{}
	if caller != nil {
		q.Set("agent_name", caller.Name)
		if caller.ProjectID != "" {
			q.Set("agent_project_id", caller.ProjectID)
		}
	}
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	if includeArchived {
		q.Set("include_archived", "true")
	}
	var out struct {
		Channels []types.Channel `json:"channels"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/channels", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Channels, nil
}

// CreateChannel creates a named channel.
func (c *Client) CreateChannel(ctx context.Context, req api.CreateChannelRequest) (string, error) {
	var out struct {
		ChannelID string `json:"channel_id"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/channels", nil, req, &out); err != nil {
		return "", err
	}
	return out.ChannelID, nil
}

// JoinChannel joins the agent to an open channel.
func (c *Client) JoinChannel(ctx context.Context, channelID string, agent types.AgentRef) error {
	return c.call(ctx, http.MethodPost, "/api/channels/"+url.PathEscape(channelID)+"/join", nil,
		api.MemberRequest{AgentName: agent.Name, AgentProjectID: agent.ProjectID}, nil)
}

// LeaveChannel removes the agent from a channel.
func (c *Client) LeaveChannel(ctx context.Context, channelID string, agent types.AgentRef) error {
	return c.call(ctx, http.MethodPost, "/api/channels/"+url.PathEscape(channelID)+"/leave", nil,
		api.MemberRequest{AgentName: agent.Name, AgentProjectID: agent.ProjectID}, nil)
}

// Invite invites an agent to a channel on behalf of a member.
func (c *Client) Invite(ctx context.Context, channelID string, req api.InviteRequest) error {
	return c.call(ctx, http.MethodPost, "/api/channels/"+url.PathEscape(channelID)+"/invite", nil, req, nil)
}

// ListAgents lists agents visible to the caller.
func (c *Client) ListAgents(ctx context.Context, caller *types.AgentRef, projectID string, includeDescriptions bool) ([]types.Agent, error) {
	q := url.Values{}
	if caller != nil {
		q.Set("agent_name", caller.Name)
		if caller.ProjectID != "" {
			q.Set("agent_project_id", caller.ProjectID)
		}
	}
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	if includeDescriptions {
		q.Set("include_descriptions", "true")
	}
	var out struct {
		Agents []types.Agent `json:"agents"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/agents", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Agents, nil
}

// RegisterAgent registers or updates an agent.
func (c *Client) RegisterAgent(ctx context.Context, req api.RegisterAgentRequest) error {
	return c.call(ctx, http.MethodPost, "/api/agents", nil, req, nil)
}

// WriteNote appends to the agent's private notes.
func (c *Client) WriteNote(ctx context.Context, req api.WriteNoteRequest) (int64, error) {
	var out struct {
		NoteID int64 `json:"note_id"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/notes", nil, req, &out); err != nil {
		return 0, err
	}
	return out.NoteID, nil
}

// SearchNotes searches the agent's private notes.
func (c *Client) SearchNotes(ctx context.Context, agent types.AgentRef, query string, tags []string, limit int) ([]types.ScoredMessage, error) {
	q := url.Values{}
	q.Set("agent_name", agent.Name)
	if agent.ProjectID != "" {
		q.Set("agent_project_id", agent.ProjectID)
	}
	if query != "" {
		q.Set("query", query)
	}
	for _, t := range tags {
		q.Add("tags", t)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Notes []types.ScoredMessage `json:"notes"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/notes", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Notes, nil
}
