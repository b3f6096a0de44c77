package membership

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/claude-slack/claude-slack/internal/types"
)

// ApplyDefaultChannels subscribes agent to every non-archived default
// channel in its scopes: global channels for all agents, project channels
// for that project's agents. Channels named in exclusions are skipped;
// neverDefault skips everything. Rows are marked is_from_default so the
// reconciler can later retract them if the channel stops being a default.
// Idempotent: existing rows are left untouched.
func (s *Service) ApplyDefaultChannels(ctx context.Context, agent types.AgentRef, exclusions []string, neverDefault bool) (int, error) {
	var added int
	err := s.store.WriterTxn(ctx, func(tx *sql.Tx) error {
		var err error
		added, err = ApplyDefaultChannelsTx(ctx, tx, agent, exclusions, neverDefault)
		return err
	})
	return added, err
}

// ApplyDefaultChannelsTx applies defaults inside an existing transaction
// and returns how many member rows were created.
func ApplyDefaultChannelsTx(ctx context.Context, tx *sql.Tx, agent types.AgentRef, exclusions []string, neverDefault bool) (int, error) {
	if neverDefault {
		return 0, nil
	}
	if err := requireAgent(ctx, tx, agent); err != nil {
		return 0, err
	}

	excluded := make(map[string]bool, len(exclusions))
	for _, name := range exclusions {
		excluded[name] = true
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, name FROM channels
		WHERE is_default = 1 AND archived = 0 AND channel_type = 'channel'
		  AND (scope = 'global' OR (scope = 'project' AND project_id = ?))
		ORDER BY id
	`, agent.ProjectID)
	if err != nil {
		return 0, fmt.Errorf("query default channels: %w", err)
	}
	type target struct{ id, name string }
	var targets []target
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.id, &t.name); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan default channel: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("iterate default channels: %w", err)
	}
	_ = rows.Close()

	added := 0
	for _, t := range targets {
		if excluded[t.name] {
			continue
		}
		created, err := InsertMember(ctx, tx, types.ChannelMember{
			ChannelID:      t.id,
			AgentName:      agent.Name,
			AgentProjectID: agent.ProjectID,
			InvitedBy:      types.InvitedBySystem,
			Source:         types.SourceDefault,
			CanLeave:       true,
			CanSend:        true,
			CanInvite:      true,
			IsFromDefault:  true,
		})
		if err != nil {
			return added, err
		}
		if created {
			added++
		}
	}
	return added, nil
}
