package membership

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/claude-slack/claude-slack/internal/channelid"
	"github.com/claude-slack/claude-slack/internal/identity"
	"github.com/claude-slack/claude-slack/internal/types"
)

// CreateOrGetDM returns the canonical direct-message channel between two
// agents, creating it on first use. The id is a pure function of the
// sorted agent keys, so CreateOrGetDM(a, b) == CreateOrGetDM(b, a).
//
// DM policy is enforced on every call, creation or not: a closed side
// always refuses; a restricted side refuses unless its allow list admits
// the other agent.
func (s *Service) CreateOrGetDM(ctx context.Context, a, b types.AgentRef) (string, error) {
	if a == b {
		return "", types.ErrInvalidArgument.Msgf("cannot open a DM with yourself")
	}

	id := channelid.DM(a, b)

	err := s.store.WriterTxn(ctx, func(tx *sql.Tx) error {
		agentA, err := identity.GetAgent(ctx, tx, a)
		if err != nil {
			return err
		}
		agentB, err := identity.GetAgent(ctx, tx, b)
		if err != nil {
			return err
		}
		if err := checkDMPolicy(ctx, tx, *agentA, b); err != nil {
			return err
		}
		if err := checkDMPolicy(ctx, tx, *agentB, a); err != nil {
			return err
		}

		existing, err := GetChannel(ctx, tx, id)
		if err == nil && existing != nil {
			return nil
		}
		if err != nil && types.KindOf(err) != types.KindNotFound {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO channels (id, channel_type, access_type, scope, created_at)
			VALUES (?, 'direct', 'private', 'global', ?)
		`, id, now())
		if err != nil {
			return fmt.Errorf("insert dm channel: %w", err)
		}

		// Exactly two fixed members, neither of which can leave or invite.
		for _, ref := range []types.AgentRef{a, b} {
			_, err := InsertMember(ctx, tx, types.ChannelMember{
				ChannelID:      id,
				AgentName:      ref.Name,
				AgentProjectID: ref.ProjectID,
				InvitedBy:      types.InvitedBySystem,
				Source:         types.SourceDM,
				CanLeave:       false,
				CanSend:        true,
				CanInvite:      false,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// checkDMPolicy applies owner's dm_policy against the other party.
func checkDMPolicy(ctx context.Context, tx *sql.Tx, owner types.Agent, other types.AgentRef) error {
	switch owner.DMPolicy {
	case types.DMOpen:
		return nil
	case types.DMClosed:
		return types.ErrDMForbidden.Msgf("%s does not accept direct messages", owner.Ref().Key())
	case types.DMRestricted:
		allowed, err := identity.DMAllowed(ctx, tx, owner.Ref(), other)
		if err != nil {
			return err
		}
		if !allowed {
			return types.ErrDMForbidden.Msgf("%s restricts direct messages and has not allowed %s",
				owner.Ref().Key(), other.Key())
		}
		return nil
	default:
		return types.ErrInvalidArgument.Msgf("agent %s has unknown dm_policy %q", owner.Ref().Key(), owner.DMPolicy)
	}
}

// EnsureNotesChannel creates, if absent, the agent's private notes channel:
// a single fixed member that can send and manage but never leave or
// invite. Calling it any number of times yields one channel and one row.
func (s *Service) EnsureNotesChannel(ctx context.Context, agent types.AgentRef) (string, error) {
	id := channelid.Notes(agent)

	err := s.store.WriterTxn(ctx, func(tx *sql.Tx) error {
		return EnsureNotesChannelTx(ctx, tx, agent)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// EnsureNotesChannelTx provisions a notes channel inside an existing write
// transaction.
func EnsureNotesChannelTx(ctx context.Context, tx *sql.Tx, agent types.AgentRef) error {
	if err := requireAgent(ctx, tx, agent); err != nil {
		return err
	}

	id := channelid.Notes(agent)
	scope := types.ScopeGlobal
	if agent.ProjectID != "" {
		scope = types.ScopeProject
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO channels (id, channel_type, access_type, scope, project_id, name, created_at)
		VALUES (?, 'notes', 'private', ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, string(scope), agent.ProjectID, agent.Name, now())
	if err != nil {
		return fmt.Errorf("insert notes channel: %w", err)
	}

	_, err = InsertMember(ctx, tx, types.ChannelMember{
		ChannelID:      id,
		AgentName:      agent.Name,
		AgentProjectID: agent.ProjectID,
		InvitedBy:      types.InvitedBySystem,
		Source:         types.SourceNotes,
		CanLeave:       false,
		CanSend:        true,
		CanInvite:      false,
		CanManage:      true,
	})
	return err
}
