// Package membership owns channels and their member rows: creation, join
// and leave, invitations, DM and notes provisioning, default-channel
// application, access checks, and @mention validation.
//
// Query helpers take a store.Querier so the same logic runs against the
// reader pool or inside a caller's write transaction; the Service methods
// wrap them in transactions.
package membership

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/claude-slack/claude-slack/internal/channelid"
	"github.com/claude-slack/claude-slack/internal/store"
	"github.com/claude-slack/claude-slack/internal/types"
)

// Service provides membership operations over the store.
type Service struct {
	store *store.Store
}

// NewService creates a membership service.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Store exposes the underlying store to collaborating services.
func (s *Service) Store() *store.Store { return s.store }

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// CreateChannelParams describes a channel to create.
type CreateChannelParams struct {
	Scope       types.Scope
	Name        string
	AccessType  types.AccessType
	ProjectID   string
	Description string
	CreatedBy   string
	IsDefault   bool
}

// CreateChannel creates a named channel and returns its id. The creator of
// a members or private channel becomes its first member; open channels
// start empty. A (scope, project, name) collision is a Duplicate.
func (s *Service) CreateChannel(ctx context.Context, p CreateChannelParams) (string, error) {
	switch p.AccessType {
	case types.AccessOpen, types.AccessMembers, types.AccessPrivate:
	default:
		return "", types.ErrInvalidArgument.Msgf("bad access type %q", p.AccessType)
	}
	if p.IsDefault && p.AccessType != types.AccessOpen {
		return "", types.ErrInvalidArgument.Msgf("default channel %q must be open", p.Name)
	}

	id, err := channelid.Scoped(p.Scope, p.ProjectID, p.Name)
	if err != nil {
		return "", err
	}

	err = s.store.WriterTxn(ctx, func(tx *sql.Tx) error {
		return CreateChannelTx(ctx, tx, id, p)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// CreateChannelTx creates a channel inside an existing write transaction.
func CreateChannelTx(ctx context.Context, tx *sql.Tx, id string, p CreateChannelParams) error {
	existing, err := GetChannel(ctx, tx, id)
	if err == nil && existing != nil {
		return types.ErrDuplicate.Msgf("channel %s already exists", id)
	}
	if err != nil && types.KindOf(err) != types.KindNotFound {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO channels (id, channel_type, access_type, scope, project_id, name, description, created_by, is_default, created_at)
		VALUES (?, 'channel', ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, string(p.AccessType), string(p.Scope), p.ProjectID, p.Name, p.Description, p.CreatedBy, boolInt(p.IsDefault), now())
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}

	// Members and private channels seed the creator so someone can invite
	// (or, for private, so exactly one non-leaving member exists).
	if p.AccessType == types.AccessOpen || p.CreatedBy == "" {
		return nil
	}
	creator, err := types.ParseAgentRef(p.CreatedBy)
	if err != nil {
		return nil // created_by is informational when not an agent key
	}
	member := types.ChannelMember{
		ChannelID:      id,
		AgentName:      creator.Name,
		AgentProjectID: creator.ProjectID,
		InvitedBy:      types.InvitedBySelf,
		Source:         types.SourceExplicit,
		CanLeave:       p.AccessType != types.AccessPrivate,
		CanSend:        true,
		CanInvite:      p.AccessType == types.AccessMembers,
		CanManage:      true,
	}
	_, err = InsertMember(ctx, tx, member)
	return err
}

// JoinChannel adds agent to an open channel. Joining a channel the agent
// already belongs to succeeds without change. Members-only and private
// channels require an invitation.
func (s *Service) JoinChannel(ctx context.Context, agent types.AgentRef, channelID string) error {
	return s.store.WriterTxn(ctx, func(tx *sql.Tx) error {
		ch, err := GetChannel(ctx, tx, channelID)
		if err != nil {
			return err
		}
		if ch.Archived {
			return types.ErrArchived.Msgf("channel %s is archived", channelID)
		}

		existing, err := GetMember(ctx, tx, channelID, agent)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil // already a member (possibly via invitation)
		}
		if ch.AccessType != types.AccessOpen {
			return types.ErrAccessDenied.Msgf("channel %s requires an invitation", channelID)
		}
		if err := requireAgent(ctx, tx, agent); err != nil {
			return err
		}

		_, err = InsertMember(ctx, tx, types.ChannelMember{
			ChannelID:      channelID,
			AgentName:      agent.Name,
			AgentProjectID: agent.ProjectID,
			InvitedBy:      types.InvitedBySelf,
			Source:         types.SourceExplicit,
			CanLeave:       true,
			CanSend:        true,
			CanInvite:      true,
		})
		return err
	})
}

// LeaveChannel removes agent's member row. Rows with can_leave=false (DM,
// notes, private owners) cannot be removed this way.
func (s *Service) LeaveChannel(ctx context.Context, agent types.AgentRef, channelID string) error {
	return s.store.WriterTxn(ctx, func(tx *sql.Tx) error {
		if _, err := GetChannel(ctx, tx, channelID); err != nil {
			return err
		}
		m, err := GetMember(ctx, tx, channelID, agent)
		if err != nil {
			return err
		}
		if m == nil {
			return types.ErrNotAMember.Msgf("%s is not a member of %s", agent.Key(), channelID)
		}
		if !m.CanLeave {
			return types.ErrNotAllowedToLeave.Msgf("%s cannot leave %s", agent.Key(), channelID)
		}
		_, err = tx.ExecContext(ctx, `
			DELETE FROM channel_members
			WHERE channel_id = ? AND agent_name = ? AND agent_project_id = ?
		`, channelID, agent.Name, agent.ProjectID)
		if err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		return nil
	})
}

// InviteToChannel lets a member with can_invite bring invitee in. On an
// open channel this is a join on the invitee's behalf; either way the
// inviter is recorded in invited_by.
func (s *Service) InviteToChannel(ctx context.Context, channelID string, invitee, inviter types.AgentRef) error {
	return s.store.WriterTxn(ctx, func(tx *sql.Tx) error {
		ch, err := GetChannel(ctx, tx, channelID)
		if err != nil {
			return err
		}
		if ch.Archived {
			return types.ErrArchived.Msgf("channel %s is archived", channelID)
		}
		if ch.ChannelType != types.ChannelTypeChannel {
			return types.ErrNotAllowedToInvite.Msgf("cannot invite into a %s channel", ch.ChannelType)
		}

		inviterRow, err := GetMember(ctx, tx, channelID, inviter)
		if err != nil {
			return err
		}
		if inviterRow == nil {
			return types.ErrNotAMember.Msgf("%s is not a member of %s", inviter.Key(), channelID)
		}
		if !inviterRow.CanInvite {
			return types.ErrNotAllowedToInvite.Msgf("%s cannot invite into %s", inviter.Key(), channelID)
		}
		if err := requireAgent(ctx, tx, invitee); err != nil {
			return err
		}

		source := types.SourceInvitation
		if ch.AccessType == types.AccessOpen {
			source = types.SourceExplicit
		}
		_, err = InsertMember(ctx, tx, types.ChannelMember{
			ChannelID:      channelID,
			AgentName:      invitee.Name,
			AgentProjectID: invitee.ProjectID,
			InvitedBy:      inviter.Key(),
			Source:         source,
			CanLeave:       true,
			CanSend:        true,
			CanInvite:      ch.AccessType == types.AccessMembers || ch.AccessType == types.AccessOpen,
		})
		return err
	})
}

// SetMuted toggles the is_muted flag on an existing membership.
func (s *Service) SetMuted(ctx context.Context, agent types.AgentRef, channelID string, muted bool) error {
	return s.store.WriterTxn(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE channel_members SET is_muted = ?
			WHERE channel_id = ? AND agent_name = ? AND agent_project_id = ?
		`, boolInt(muted), channelID, agent.Name, agent.ProjectID)
		if err != nil {
			return fmt.Errorf("update mute: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return types.ErrNotAMember.Msgf("%s is not a member of %s", agent.Key(), channelID)
		}
		return nil
	})
}

// SetArchived toggles the archived flag on a channel.
func (s *Service) SetArchived(ctx context.Context, channelID string, archived bool) error {
	return s.store.WriterTxn(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE channels SET archived = ? WHERE id = ?", boolInt(archived), channelID)
		if err != nil {
			return fmt.Errorf("update archived: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return types.ErrChannelNotFound.Msgf("channel %s not found", channelID)
		}
		return nil
	})
}

// requireAgent fails with AgentNotFound if the ref is not registered.
func requireAgent(ctx context.Context, q store.Querier, ref types.AgentRef) error {
	var one int
	err := q.QueryRowContext(ctx,
		"SELECT 1 FROM agents WHERE name = ? AND project_id = ?", ref.Name, ref.ProjectID).Scan(&one)
	if err == sql.ErrNoRows {
		return types.ErrAgentNotFound.Msgf("agent %s not found", ref.Key())
	}
	if err != nil {
		return fmt.Errorf("query agent: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
