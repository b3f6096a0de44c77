package api

import (
	"net/http"
	"strconv"

	"github.com/claude-slack/claude-slack/internal/membership"
	"github.com/claude-slack/claude-slack/internal/messaging"
	"github.com/claude-slack/claude-slack/internal/types"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeErr(w, types.ErrInternal.Msgf("store unavailable: %v", err))
		return
	}
	writeOK(w, map[string]any{"status": "healthy"})
}

// PostMessageRequest is the body of POST /api/messages.
type PostMessageRequest struct {
	ChannelID       string         `json:"channel_id"`
	Content         string         `json:"content"`
	SenderID        string         `json:"sender_id"`
	SenderProjectID string         `json:"sender_project_id,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Confidence      *float64       `json:"confidence,omitempty"`
	ThreadID        *int64         `json:"thread_id,omitempty"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	id, err := s.messaging.Post(r.Context(), messaging.PostParams{
		ChannelID:  req.ChannelID,
		Sender:     types.AgentRef{Name: req.SenderID, ProjectID: req.SenderProjectID},
		Content:    req.Content,
		Metadata:   req.Metadata,
		Confidence: req.Confidence,
		ThreadID:   req.ThreadID,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"id": id})
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := messaging.FetchParams{
		ChannelID: q.Get("channel_id"),
		Caller: types.AgentRef{
			Name:      q.Get("agent_name"),
			ProjectID: q.Get("agent_project_id"),
		},
		Limit:  intParam(q.Get("limit"), 50),
		Offset: intParam(q.Get("offset"), 0),
		Since:  int64(intParam(q.Get("since"), 0)),
		Before: int64(intParam(q.Get("before"), 0)),
	}
	if p.ChannelID == "" || p.Caller.Name == "" {
		writeErr(w, types.ErrInvalidArgument.Msgf("channel_id and agent_name are required"))
		return
	}
	msgs, err := s.messaging.Fetch(r.Context(), p)
	if err != nil {
		writeErr(w, err)
		return
	}
	if msgs == nil {
		msgs = []types.Message{}
	}
	writeOK(w, map[string]any{"messages": msgs})
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	AgentName       string            `json:"agent_name"`
	AgentProjectID  string            `json:"agent_project_id,omitempty"`
	Query           string            `json:"query,omitempty"`
	ChannelIDs      []string          `json:"channel_ids,omitempty"`
	ProjectIDs      []string          `json:"project_ids,omitempty"`
	MetadataFilters map[string]string `json:"metadata_filters,omitempty"`
	RankingProfile  string            `json:"ranking_profile,omitempty"`
	Limit           int               `json:"limit,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.AgentName == "" {
		writeErr(w, types.ErrInvalidArgument.Msgf("agent_name is required"))
		return
	}
	results, err := s.messaging.Search(r.Context(), messaging.SearchParams{
		Caller:          types.AgentRef{Name: req.AgentName, ProjectID: req.AgentProjectID},
		Query:           req.Query,
		ChannelIDs:      req.ChannelIDs,
		ProjectIDs:      req.ProjectIDs,
		MetadataFilters: req.MetadataFilters,
		RankingProfile:  req.RankingProfile,
		Limit:           req.Limit,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"results": results})
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := membershipFilter(q.Get("agent_name"), q.Get("agent_project_id"))
	filter.ProjectID = q.Get("project_id")
	filter.IncludeArchived = q.Get("include_archived") == "true"
	if v := q.Get("is_default"); v != "" {
		b := v == "true"
		filter.IsDefault = &b
	}
	channels, err := s.membership.ListChannels(r.Context(), filter)
	if err != nil {
		writeErr(w, err)
		return
	}
	if channels == nil {
		channels = []types.Channel{}
	}
	writeOK(w, map[string]any{"channels": channels})
}

// CreateChannelRequest is the body of POST /api/channels.
type CreateChannelRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Scope       string `json:"scope"`
	ProjectID   string `json:"project_id,omitempty"`
	AccessType  string `json:"access_type,omitempty"`
	CreatedBy   string `json:"created_by"`
	IsDefault   bool   `json:"is_default"`
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req CreateChannelRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	access := types.AccessType(req.AccessType)
	if req.AccessType == "" {
		access = types.AccessOpen
	}
	id, err := s.membership.CreateChannel(r.Context(), membership.CreateChannelParams{
		Scope:       types.Scope(req.Scope),
		Name:        req.Name,
		AccessType:  access,
		ProjectID:   req.ProjectID,
		Description: req.Description,
		CreatedBy:   req.CreatedBy,
		IsDefault:   req.IsDefault,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"channel_id": id})
}

// MemberRequest is the body of join and leave.
type MemberRequest struct {
	AgentName      string `json:"agent_name"`
	AgentProjectID string `json:"agent_project_id,omitempty"`
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req MemberRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	ref := types.AgentRef{Name: req.AgentName, ProjectID: req.AgentProjectID}
	if err := s.membership.JoinChannel(r.Context(), ref, r.PathValue("id")); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"success": true})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	var req MemberRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	ref := types.AgentRef{Name: req.AgentName, ProjectID: req.AgentProjectID}
	if err := s.membership.LeaveChannel(r.Context(), ref, r.PathValue("id")); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"success": true})
}

// InviteRequest is the body of POST /api/channels/{id}/invite.
type InviteRequest struct {
	InviteeName      string `json:"invitee_name"`
	InviteeProjectID string `json:"invitee_project_id,omitempty"`
	InviterName      string `json:"inviter_name"`
	InviterProjectID string `json:"inviter_project_id,omitempty"`
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req InviteRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	err := s.membership.InviteToChannel(r.Context(), r.PathValue("id"),
		types.AgentRef{Name: req.InviteeName, ProjectID: req.InviteeProjectID},
		types.AgentRef{Name: req.InviterName, ProjectID: req.InviterProjectID})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"success": true})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var caller *types.AgentRef
	if name := q.Get("agent_name"); name != "" {
		caller = &types.AgentRef{Name: name, ProjectID: q.Get("agent_project_id")}
	}
	agents, err := s.identity.ListAgents(r.Context(), caller, q.Get("project_id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if q.Get("include_descriptions") != "true" {
		for i := range agents {
			agents[i].Description = ""
		}
	}
	if agents == nil {
		agents = []types.Agent{}
	}
	writeOK(w, map[string]any{"agents": agents})
}

// RegisterAgentRequest is the body of POST /api/agents.
type RegisterAgentRequest struct {
	Name         string `json:"name"`
	ProjectID    string `json:"project_id,omitempty"`
	Description  string `json:"description,omitempty"`
	Status       string `json:"status,omitempty"`
	DMPolicy     string `json:"dm_policy,omitempty"`
	Discoverable string `json:"discoverable,omitempty"`
}

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req RegisterAgentRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	err := s.identity.RegisterAgent(r.Context(), types.Agent{
		Name:         req.Name,
		ProjectID:    req.ProjectID,
		Description:  req.Description,
		Status:       types.AgentStatus(req.Status),
		DMPolicy:     types.DMPolicy(req.DMPolicy),
		Discoverable: types.Discoverability(req.Discoverable),
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"success": true})
}

// WriteNoteRequest is the body of POST /api/notes.
type WriteNoteRequest struct {
	Content        string   `json:"content"`
	AgentName      string   `json:"agent_name"`
	AgentProjectID string   `json:"agent_project_id,omitempty"`
	SessionContext string   `json:"session_context,omitempty"`
	Tags           []string `json:"tags,omitempty"`
}

func (s *Server) handleWriteNote(w http.ResponseWriter, r *http.Request) {
	var req WriteNoteRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	ref := types.AgentRef{Name: req.AgentName, ProjectID: req.AgentProjectID}
	id, err := s.messaging.WriteNote(r.Context(), s.membership, ref, req.Content, req.Tags, req.SessionContext)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"note_id": id})
}

func (s *Server) handleSearchNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref := types.AgentRef{Name: q.Get("agent_name"), ProjectID: q.Get("agent_project_id")}
	if ref.Name == "" {
		writeErr(w, types.ErrInvalidArgument.Msgf("agent_name is required"))
		return
	}
	notes, err := s.messaging.SearchNotes(r.Context(), ref, q.Get("query"), intParam(q.Get("limit"), 50))
	if err != nil {
		writeErr(w, err)
		return
	}
	if tags := q["tags"]; len(tags) > 0 {
		notes = filterByTags(notes, tags)
	}
	if notes == nil {
		notes = []types.ScoredMessage{}
	}
	writeOK(w, map[string]any{"notes": notes})
}

// filterByTags keeps notes whose metadata tags contain every wanted tag.
func filterByTags(notes []types.ScoredMessage, want []string) []types.ScoredMessage {
	var out []types.ScoredMessage
	for _, n := range notes {
		raw, _ := n.Metadata["tags"].([]any)
		have := make(map[string]bool, len(raw))
		for _, t := range raw {
			if s, ok := t.(string); ok {
				have[s] = true
			}
		}
		ok := true
		for _, t := range want {
			if !have[t] {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, n)
		}
	}
	return out
}

// membershipFilter builds the base channel filter from caller params.
func membershipFilter(name, projectID string) membership.ListChannelsFilter {
	f := membership.ListChannelsFilter{}
	if name != "" {
		f.Agent = &types.AgentRef{Name: name, ProjectID: projectID}
	}
	return f
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
