package membership

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/claude-slack/claude-slack/internal/store"
	"github.com/claude-slack/claude-slack/internal/types"
)

// GetChannel looks up a channel by id.
func GetChannel(ctx context.Context, q store.Querier, id string) (*types.Channel, error) {
	var ch types.Channel
	var isDefault, archived int
	var createdAt string
	err := q.QueryRowContext(ctx, `
		SELECT id, channel_type, access_type, scope, project_id, name, description, created_by, is_default, archived, created_at
		FROM channels WHERE id = ?
	`, id).Scan(&ch.ID, &ch.ChannelType, &ch.AccessType, &ch.Scope, &ch.ProjectID,
		&ch.Name, &ch.Description, &ch.CreatedBy, &isDefault, &archived, &createdAt)
	if err == sql.ErrNoRows {
		return nil, types.ErrChannelNotFound.Msgf("channel %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query channel: %w", err)
	}
	ch.IsDefault = isDefault != 0
	ch.Archived = archived != 0
	ch.CreatedAt = parseTime(createdAt)
	return &ch, nil
}

// GetMember returns the member row for (channel, agent), or nil when the
// agent is not a member.
func GetMember(ctx context.Context, q store.Querier, channelID string, ref types.AgentRef) (*types.ChannelMember, error) {
	var m types.ChannelMember
	var canLeave, canSend, canInvite, canManage, fromDefault, muted int
	var joinedAt string
	err := q.QueryRowContext(ctx, `
		SELECT channel_id, agent_name, agent_project_id, invited_by, source,
		       can_leave, can_send, can_invite, can_manage, is_from_default, is_muted, joined_at
		FROM channel_members
		WHERE channel_id = ? AND agent_name = ? AND agent_project_id = ?
	`, channelID, ref.Name, ref.ProjectID).Scan(
		&m.ChannelID, &m.AgentName, &m.AgentProjectID, &m.InvitedBy, &m.Source,
		&canLeave, &canSend, &canInvite, &canManage, &fromDefault, &muted, &joinedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query member: %w", err)
	}
	m.CanLeave = canLeave != 0
	m.CanSend = canSend != 0
	m.CanInvite = canInvite != 0
	m.CanManage = canManage != 0
	m.IsFromDefault = fromDefault != 0
	m.IsMuted = muted != 0
	m.JoinedAt = parseTime(joinedAt)
	return &m, nil
}

// InsertMember inserts a member row if absent. Returns true when a new row
// was created. Capabilities of an existing row are left untouched, so DM
// and notes rows keep their fixed flags.
func InsertMember(ctx context.Context, q store.Querier, m types.ChannelMember) (bool, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO channel_members
			(channel_id, agent_name, agent_project_id, invited_by, source,
			 can_leave, can_send, can_invite, can_manage, is_from_default, is_muted, joined_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(channel_id, agent_name, agent_project_id) DO NOTHING
	`, m.ChannelID, m.AgentName, m.AgentProjectID, m.InvitedBy, string(m.Source),
		boolInt(m.CanLeave), boolInt(m.CanSend), boolInt(m.CanInvite), boolInt(m.CanManage),
		boolInt(m.IsFromDefault), now())
	if err != nil {
		return false, fmt.Errorf("insert member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// CheckAccess reports whether agent may read channel: a member row exists
// and the channel is not archived. Used uniformly by mention validation,
// post, fetch, search, and peek.
func CheckAccess(ctx context.Context, q store.Querier, agent types.AgentRef, channelID string) (bool, error) {
	var archived int
	err := q.QueryRowContext(ctx, `
		SELECT c.archived FROM channels c
		JOIN channel_members m ON m.channel_id = c.id
		WHERE c.id = ? AND m.agent_name = ? AND m.agent_project_id = ?
	`, channelID, agent.Name, agent.ProjectID).Scan(&archived)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query access: %w", err)
	}
	return archived == 0, nil
}

// CheckAccess on the service's reader pool.
func (s *Service) CheckAccess(ctx context.Context, agent types.AgentRef, channelID string) (bool, error) {
	return CheckAccess(ctx, s.store.Reader(), agent, channelID)
}

// AccessibleChannels returns the ids of non-archived channels the agent
// belongs to.
func AccessibleChannels(ctx context.Context, q store.Querier, agent types.AgentRef) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT c.id FROM channels c
		JOIN channel_members m ON m.channel_id = c.id
		WHERE m.agent_name = ? AND m.agent_project_id = ? AND c.archived = 0
		ORDER BY c.id
	`, agent.Name, agent.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("query accessible channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan channel id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListChannelsFilter narrows ListChannels output.
type ListChannelsFilter struct {
	Agent           *types.AgentRef // only channels this agent belongs to
	ProjectID       string          // only this project's channels (plus global when empty)
	IncludeArchived bool
	IsDefault       *bool
}

// ListChannels returns named channels matching the filter. DM and notes
// channels only appear for their own members (Agent filter set).
func (s *Service) ListChannels(ctx context.Context, f ListChannelsFilter) ([]types.Channel, error) {
	query := `
		SELECT DISTINCT c.id, c.channel_type, c.access_type, c.scope, c.project_id, c.name,
		       c.description, c.created_by, c.is_default, c.archived, c.created_at
		FROM channels c
	`
	var where []string
	var args []any

	if f.Agent != nil {
		query += " JOIN channel_members m ON m.channel_id = c.id"
		where = append(where, "m.agent_name = ? AND m.agent_project_id = ?")
		args = append(args, f.Agent.Name, f.Agent.ProjectID)
	} else {
		// Without a member filter, private conversations stay hidden.
		where = append(where, "c.channel_type = 'channel'")
	}
	if f.ProjectID != "" {
		where = append(where, "(c.project_id = ? OR c.project_id = '')")
		args = append(args, f.ProjectID)
	}
	if !f.IncludeArchived {
		where = append(where, "c.archived = 0")
	}
	if f.IsDefault != nil {
		where = append(where, "c.is_default = ?")
		args = append(args, boolInt(*f.IsDefault))
	}

	for i, w := range where {
		if i == 0 {
			query += " WHERE " + w
		} else {
			query += " AND " + w
		}
	}
	query += " ORDER BY c.id"

	rows, err := s.store.Reader().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var channels []types.Channel
	for rows.Next() {
		var ch types.Channel
		var isDefault, archived int
		var createdAt string
		if err := rows.Scan(&ch.ID, &ch.ChannelType, &ch.AccessType, &ch.Scope, &ch.ProjectID,
			&ch.Name, &ch.Description, &ch.CreatedBy, &isDefault, &archived, &createdAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		ch.IsDefault = isDefault != 0
		ch.Archived = archived != 0
		ch.CreatedAt = parseTime(createdAt)
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// ListMembers returns all member rows of a channel.
func ListMembers(ctx context.Context, q store.Querier, channelID string) ([]types.ChannelMember, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT channel_id, agent_name, agent_project_id, invited_by, source,
		       can_leave, can_send, can_invite, can_manage, is_from_default, is_muted, joined_at
		FROM channel_members WHERE channel_id = ?
		ORDER BY agent_project_id, agent_name
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var members []types.ChannelMember
	for rows.Next() {
		var m types.ChannelMember
		var canLeave, canSend, canInvite, canManage, fromDefault, muted int
		var joinedAt string
		if err := rows.Scan(&m.ChannelID, &m.AgentName, &m.AgentProjectID, &m.InvitedBy, &m.Source,
			&canLeave, &canSend, &canInvite, &canManage, &fromDefault, &muted, &joinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.CanLeave = canLeave != 0
		m.CanSend = canSend != 0
		m.CanInvite = canInvite != 0
		m.CanManage = canManage != 0
		m.IsFromDefault = fromDefault != 0
		m.IsMuted = muted != 0
		m.JoinedAt = parseTime(joinedAt)
		members = append(members, m)
	}
	return members, rows.Err()
}

// parseTime parses stored RFC3339 timestamps, tolerating both precisions.
func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
