// Package identity owns projects, agents, and sessions: registration,
// lookup, project links, and the discoverability rule used by agent
// listings.
package identity

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"

	"github.com/claude-slack/claude-slack/internal/store"
	"github.com/claude-slack/claude-slack/internal/types"
)

// ProjectID computes the stable project id for a workspace path: the first
// 32 hex characters of SHA-256 of the absolute path.
func ProjectID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])[:32]
}

// Service provides identity operations over the store.
type Service struct {
	store *store.Store
}

// NewService creates an identity service.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// RegisterProject registers a workspace, returning its project id.
// Idempotent: an already-registered path returns the existing id.
func (s *Service) RegisterProject(ctx context.Context, path, name string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve project path: %w", err)
	}
	id := ProjectID(abs)
	err = s.store.WriterTxn(ctx, func(tx *sql.Tx) error {
		return RegisterProjectTx(ctx, tx, abs, name)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// RegisterProjectTx registers a project inside an existing write
// transaction. path must already be absolute.
func RegisterProjectTx(ctx context.Context, tx *sql.Tx, path, name string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projects (id, path, name, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, ProjectID(path), path, name, now())
	if err != nil {
		return fmt.Errorf("register project: %w", err)
	}
	return nil
}

// GetProject looks up a project by id.
func (s *Service) GetProject(ctx context.Context, id string) (*types.Project, error) {
	return GetProject(ctx, s.store.Reader(), id)
}

// GetProject looks up a project on any querier.
func GetProject(ctx context.Context, q store.Querier, id string) (*types.Project, error) {
	var p types.Project
	var createdAt string
	err := q.QueryRowContext(ctx,
		"SELECT id, path, name, created_at FROM projects WHERE id = ?", id).
		Scan(&p.ID, &p.Path, &p.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, types.ErrProjectNotFound.Msgf("project %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query project: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// RegisterAgent registers or re-registers an agent. Re-registration updates
// the description and policies but never downgrades status from active.
func (s *Service) RegisterAgent(ctx context.Context, agent types.Agent) error {
	if err := types.ValidateName(agent.Name); err != nil {
		return err
	}
	if agent.ProjectID != "" && !types.IsHex32(agent.ProjectID) {
		return types.ErrInvalidArgument.Msgf("bad project id %q", agent.ProjectID)
	}
	if agent.Status == "" {
		agent.Status = types.AgentActive
	}
	if agent.DMPolicy == "" {
		agent.DMPolicy = types.DMOpen
	}
	if agent.Discoverable == "" {
		agent.Discoverable = types.DiscoverablePublic
	}
	if !types.ValidDMPolicy(agent.DMPolicy) {
		return types.ErrInvalidArgument.Msgf("bad dm_policy %q", agent.DMPolicy)
	}
	if !types.ValidDiscoverability(agent.Discoverable) {
		return types.ErrInvalidArgument.Msgf("bad discoverable %q", agent.Discoverable)
	}

	return s.store.WriterTxn(ctx, func(tx *sql.Tx) error {
		return RegisterAgentTx(ctx, tx, agent)
	})
}

// RegisterAgentTx upserts an agent inside an existing write transaction.
// Status only moves inactive→active here, never the reverse.
func RegisterAgentTx(ctx context.Context, tx *sql.Tx, agent types.Agent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO agents (name, project_id, description, status, dm_policy, discoverable, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, project_id) DO UPDATE SET
			description  = excluded.description,
			dm_policy    = excluded.dm_policy,
			discoverable = excluded.discoverable,
			status       = CASE WHEN agents.status = 'active' THEN 'active' ELSE excluded.status END
	`, agent.Name, agent.ProjectID, agent.Description, string(agent.Status),
		string(agent.DMPolicy), string(agent.Discoverable), now())
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

// GetAgent looks up an agent by composite key.
func (s *Service) GetAgent(ctx context.Context, ref types.AgentRef) (*types.Agent, error) {
	return GetAgent(ctx, s.store.Reader(), ref)
}

// GetAgent looks up an agent on any querier.
func GetAgent(ctx context.Context, q store.Querier, ref types.AgentRef) (*types.Agent, error) {
	var a types.Agent
	var createdAt string
	err := q.QueryRowContext(ctx, `
		SELECT name, project_id, description, status, dm_policy, discoverable, created_at
		FROM agents WHERE name = ? AND project_id = ?
	`, ref.Name, ref.ProjectID).
		Scan(&a.Name, &a.ProjectID, &a.Description, &a.Status, &a.DMPolicy, &a.Discoverable, &createdAt)
	if err == sql.ErrNoRows {
		return nil, types.ErrAgentNotFound.Msgf("agent %s not found", ref.Key())
	}
	if err != nil {
		return nil, fmt.Errorf("query agent: %w", err)
	}
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

// ListAgents returns the agents visible to caller. Visibility:
// public agents always; project agents when the caller shares the project
// or a project link grants the agent's project → caller's project
// direction; an agent always sees itself. A nil caller (system context)
// sees everything.
func (s *Service) ListAgents(ctx context.Context, caller *types.AgentRef, projectID string) ([]types.Agent, error) {
	q := s.store.Reader()

	query := `
		SELECT name, project_id, description, status, dm_policy, discoverable, created_at
		FROM agents
	`
	var args []any
	if projectID != "" {
		query += " WHERE project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY project_id, name"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var all []types.Agent
	for rows.Next() {
		var a types.Agent
		var createdAt string
		if err := rows.Scan(&a.Name, &a.ProjectID, &a.Description, &a.Status, &a.DMPolicy, &a.Discoverable, &createdAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		a.CreatedAt = parseTime(createdAt)
		all = append(all, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}

	if caller == nil {
		return all, nil
	}

	links, err := ListLinks(ctx, s.store.Reader())
	if err != nil {
		return nil, err
	}

	visible := make([]types.Agent, 0, len(all))
	for _, a := range all {
		if visibleTo(a, *caller, links) {
			visible = append(visible, a)
		}
	}
	return visible, nil
}

// visibleTo applies the discoverability rule for one agent.
func visibleTo(a types.Agent, caller types.AgentRef, links []types.ProjectLink) bool {
	if a.Name == caller.Name && a.ProjectID == caller.ProjectID {
		return true
	}
	switch a.Discoverable {
	case types.DiscoverablePublic:
		return true
	case types.DiscoverableProject:
		if a.ProjectID == caller.ProjectID {
			return true
		}
		if a.ProjectID == "" || caller.ProjectID == "" {
			return false
		}
		for _, l := range links {
			if l.Covers(a.ProjectID, caller.ProjectID) {
				return true
			}
		}
		return false
	default: // private
		return false
	}
}

// LinkProjects records a project link. Links are stored once per unordered
// pair; re-linking updates the direction.
func (s *Service) LinkProjects(ctx context.Context, a, b string, direction types.LinkDirection) error {
	return s.store.WriterTxn(ctx, func(tx *sql.Tx) error {
		return LinkProjectsTx(ctx, tx, a, b, direction)
	})
}

// LinkProjectsTx records a project link inside an existing write
// transaction.
func LinkProjectsTx(ctx context.Context, tx *sql.Tx, a, b string, direction types.LinkDirection) error {
	if !types.ValidLinkDirection(direction) {
		return types.ErrInvalidArgument.Msgf("bad link direction %q", direction)
	}
	if a == b {
		return types.ErrInvalidArgument.Msgf("cannot link project %s to itself", a)
	}
	// Canonical order: swap the pair and flip the direction when needed.
	if a > b {
		a, b = b, a
		switch direction {
		case types.LinkAToB:
			direction = types.LinkBToA
		case types.LinkBToA:
			direction = types.LinkAToB
		}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO project_links (project_a, project_b, direction, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_a, project_b) DO UPDATE SET direction = excluded.direction
	`, a, b, string(direction), now())
	return err
}

// ListLinks loads all project links.
func ListLinks(ctx context.Context, q store.Querier) ([]types.ProjectLink, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT project_a, project_b, direction, created_at FROM project_links")
	if err != nil {
		return nil, fmt.Errorf("query project links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var links []types.ProjectLink
	for rows.Next() {
		var l types.ProjectLink
		var createdAt string
		if err := rows.Scan(&l.ProjectA, &l.ProjectB, &l.Direction, &createdAt); err != nil {
			return nil, fmt.Errorf("scan project link: %w", err)
		}
		l.CreatedAt = parseTime(createdAt)
		links = append(links, l)
	}
	return links, rows.Err()
}

// SetDMPermission records an allow/block entry consulted when the agent's
// dm_policy is restricted.
func (s *Service) SetDMPermission(ctx context.Context, agent, other types.AgentRef, permission string) error {
	if permission != "allow" && permission != "block" {
		return types.ErrInvalidArgument.Msgf("bad permission %q", permission)
	}
	return s.store.WriterTxn(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO dm_permissions (agent_name, agent_project_id, other_name, other_project_id, permission, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(agent_name, agent_project_id, other_name, other_project_id)
			DO UPDATE SET permission = excluded.permission
		`, agent.Name, agent.ProjectID, other.Name, other.ProjectID, permission, now())
		return err
	})
}

// DMAllowed reports whether agent's allow list admits other. Used only for
// dm_policy=restricted.
func DMAllowed(ctx context.Context, q store.Querier, agent, other types.AgentRef) (bool, error) {
	var permission string
	err := q.QueryRowContext(ctx, `
		SELECT permission FROM dm_permissions
		WHERE agent_name = ? AND agent_project_id = ? AND other_name = ? AND other_project_id = ?
	`, agent.Name, agent.ProjectID, other.Name, other.ProjectID).Scan(&permission)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query dm permission: %w", err)
	}
	return permission == "allow", nil
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
