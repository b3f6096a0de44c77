package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/claude-slack/claude-slack/internal/channelid"
	"github.com/claude-slack/claude-slack/internal/config"
	"github.com/claude-slack/claude-slack/internal/frontmatter"
	"github.com/claude-slack/claude-slack/internal/identity"
	"github.com/claude-slack/claude-slack/internal/membership"
	"github.com/claude-slack/claude-slack/internal/paths"
	"github.com/claude-slack/claude-slack/internal/store"
	"github.com/claude-slack/claude-slack/internal/types"
)

// Reconciler plans and executes convergence toward a desired state.
type Reconciler struct {
	store *store.Store
}

// New builds a reconciler over the store.
func New(st *store.Store) *Reconciler {
	return &Reconciler{store: st}
}

// BuildDesired assembles the desired state from the config plus agent
// frontmatter discovered under configDir (global agents) and, when
// projectPath is non-empty, the project's agents dir. Unparseable agent
// files are reported but do not block the rest.
func BuildDesired(cfg *config.Config, configDir, projectPath string) (*DesiredState, []error) {
	desired := &DesiredState{
		GlobalChannels:  cfg.DefaultChannels.Global,
		ProjectChannels: map[string][]config.ChannelSpec{},
	}
	var errs []error

	defs, derrs := frontmatter.DiscoverDir(paths.GlobalAgentsDir(configDir), "")
	errs = append(errs, derrs...)
	desired.Agents = append(desired.Agents, defs...)

	if projectPath != "" {
		abs, err := filepath.Abs(projectPath)
		if err != nil {
			errs = append(errs, fmt.Errorf("resolve project path: %w", err))
		} else {
			pid := identity.ProjectID(abs)
			desired.ProjectChannels[pid] = cfg.DefaultChannels.Project
			defs, derrs := frontmatter.DiscoverDir(paths.ProjectAgentsDir(abs), pid)
			errs = append(errs, derrs...)
			desired.Agents = append(desired.Agents, defs...)
		}
	}

	for _, l := range cfg.ProjectLinks {
		src, err := filepath.Abs(l.Source)
		if err != nil {
			errs = append(errs, fmt.Errorf("resolve link source %s: %w", l.Source, err))
			continue
		}
		dst, err := filepath.Abs(l.Target)
		if err != nil {
			errs = append(errs, fmt.Errorf("resolve link target %s: %w", l.Target, err))
			continue
		}
		direction := types.LinkDirection(l.Type)
		if l.Type == "" {
			direction = types.LinkBoth
		}
		if !types.ValidLinkDirection(direction) {
			errs = append(errs, fmt.Errorf("bad link type %q for %s -> %s", l.Type, l.Source, l.Target))
			continue
		}
		desired.Links = append(desired.Links, LinkSpec{
			ProjectA:  identity.ProjectID(src),
			ProjectB:  identity.ProjectID(dst),
			PathA:     src,
			PathB:     dst,
			Direction: direction,
		})
	}
	return desired, errs
}

// BuildPlan diffs the desired state against the store. The plan holds
// only the actions needed to converge; with no drift it is empty.
func (r *Reconciler) BuildPlan(ctx context.Context, desired *DesiredState) (*Plan, error) {
	q := r.store.Reader()
	plan := &Plan{}

	// Phase 1: channels and links.
	defaultIDs := map[string]bool{}
	addChannel := func(scope types.Scope, projectID string, spec config.ChannelSpec) error {
		id, err := channelid.Scoped(scope, projectID, spec.Name)
		if err != nil {
			return err
		}
		defaultIDs[id] = true
		_, err = membership.GetChannel(ctx, q, id)
		if err == nil {
			return nil
		}
		if types.KindOf(err) != types.KindNotFound {
			return err
		}
		plan.Infrastructure = append(plan.Infrastructure, CreateChannelAction{
			Scope:       scope,
			ProjectID:   projectID,
			Name:        spec.Name,
			Description: spec.Description,
			IsDefault:   true,
		})
		return nil
	}
	for _, spec := range desired.GlobalChannels {
		if err := addChannel(types.ScopeGlobal, "", spec); err != nil {
			return nil, err
		}
	}
	for pid, specs := range desired.ProjectChannels {
		for _, spec := range specs {
			if err := addChannel(types.ScopeProject, pid, spec); err != nil {
				return nil, err
			}
		}
	}

	links, err := identity.ListLinks(ctx, q)
	if err != nil {
		return nil, err
	}
	for _, want := range desired.Links {
		if !linkSatisfied(links, want) {
			plan.Infrastructure = append(plan.Infrastructure, CreateProjectLinkAction{Link: want})
		}
	}

	// Phase 2: agents.
	for _, def := range desired.Agents {
		ref := types.AgentRef{Name: def.Name, ProjectID: def.ProjectID}
		current, err := identity.GetAgent(ctx, q, ref)
		if err != nil && types.KindOf(err) != types.KindNotFound {
			return nil, err
		}
		agent := types.Agent{
			Name:         def.Name,
			ProjectID:    def.ProjectID,
			Description:  def.Description,
			Status:       types.AgentActive,
			DMPolicy:     def.DMPolicyOrDefault(),
			Discoverable: def.DiscoverabilityOrDefault(),
		}
		if current == nil {
			plan.Agents = append(plan.Agents, RegisterAgentAction{Agent: agent, CreateNotesChannel: true})
		} else if current.Description != agent.Description ||
			current.DMPolicy != agent.DMPolicy ||
			current.Discoverable != agent.Discoverable {
			plan.Agents = append(plan.Agents, RegisterAgentAction{Agent: agent})
		}
	}

	// Phase 3: memberships.
	for _, def := range desired.Agents {
		ref := types.AgentRef{Name: def.Name, ProjectID: def.ProjectID}
		wanted := desiredMemberships(desired, def)
		for _, w := range wanted {
			member, err := membership.GetMember(ctx, q, w.channelID, ref)
			if err != nil {
				return nil, err
			}
			if member == nil {
				plan.Access = append(plan.Access, AddMembershipAction{
					Agent:     ref,
					ChannelID: w.channelID,
					Source:    w.source,
				})
			}
		}

		removals, err := staleDefaults(ctx, q, ref, wanted, defaultIDs)
		if err != nil {
			return nil, err
		}
		plan.Access = append(plan.Access, removals...)
	}
	return plan, nil
}

// desiredMembership is one channel an agent should belong to.
type desiredMembership struct {
	channelID string
	source    types.MemberSource
}

// desiredMemberships lists an agent's target channels: scope defaults
// minus exclusions, plus explicit frontmatter subscriptions. Explicit
// wins when a channel appears in both.
func desiredMemberships(desired *DesiredState, def frontmatter.AgentDef) []desiredMembership {
	excluded := map[string]bool{}
	for _, name := range def.Channels.Exclude {
		excluded[name] = true
	}

	byID := map[string]types.MemberSource{}
	if !def.NeverDefault {
		for _, spec := range desired.GlobalChannels {
			if excluded[spec.Name] {
				continue
			}
			byID[channelid.Global(spec.Name)] = types.SourceDefault
		}
		if def.ProjectID != "" {
			for _, spec := range desired.ProjectChannels[def.ProjectID] {
				if excluded[spec.Name] {
					continue
				}
				byID[channelid.Project(def.ProjectID, spec.Name)] = types.SourceDefault
			}
		}
	}
	for _, name := range def.Channels.Global {
		byID[channelid.Global(name)] = types.SourceExplicit
	}
	if def.ProjectID != "" {
		for _, name := range def.Channels.Project {
			byID[channelid.Project(def.ProjectID, name)] = types.SourceExplicit
		}
	}

	out := make([]desiredMembership, 0, len(byID))
	for id, source := range byID {
		out = append(out, desiredMembership{channelID: id, source: source})
	}
	return out
}

// staleDefaults finds this agent's rows that were auto-subscribed, kept
// the is_from_default mark, and whose channel is no longer one of the
// agent's desired defaults. Rows promoted to explicit are ignored.
func staleDefaults(ctx context.Context, q store.Querier, ref types.AgentRef, wanted []desiredMembership, defaultIDs map[string]bool) ([]Action, error) {
	stillWanted := map[string]bool{}
	for _, w := range wanted {
		stillWanted[w.channelID] = true
	}

	rows, err := q.QueryContext(ctx, `
		SELECT channel_id FROM channel_members
		WHERE agent_name = ? AND agent_project_id = ?
		  AND source = 'default' AND is_from_default = 1
	`, ref.Name, ref.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("query default memberships: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Action
	for rows.Next() {
		var channelID string
		if err := rows.Scan(&channelID); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		if stillWanted[channelID] || defaultIDs[channelID] {
			continue
		}
		out = append(out, RemoveMembershipAction{Agent: ref, ChannelID: channelID})
	}
	return out, rows.Err()
}

// linkSatisfied reports whether an existing link already grants every
// direction the desired link asks for.
func linkSatisfied(links []types.ProjectLink, want LinkSpec) bool {
	for _, l := range links {
		switch want.Direction {
		case types.LinkAToB:
			if l.Covers(want.ProjectA, want.ProjectB) {
				return true
			}
		case types.LinkBToA:
			if l.Covers(want.ProjectB, want.ProjectA) {
				return true
			}
		default:
			if l.Covers(want.ProjectA, want.ProjectB) && l.Covers(want.ProjectB, want.ProjectA) {
				return true
			}
		}
	}
	return false
}

// Execute runs the plan phase by phase, each phase in one write
// transaction. A failing action is recorded and the rest of the phase
// continues; Success is true only when every action succeeded.
func (r *Reconciler) Execute(ctx context.Context, plan *Plan) (*Result, error) {
	result := &Result{Success: true}
	for _, phase := range [][]Action{plan.Infrastructure, plan.Agents, plan.Access} {
		if len(phase) == 0 {
			continue
		}
		var phaseResults []ActionResult
		err := r.store.WriterTxn(ctx, func(tx *sql.Tx) error {
			phaseResults = phaseResults[:0]
			for _, a := range phase {
				phaseResults = append(phaseResults, ActionResult{Action: a, Err: applyAction(ctx, tx, a)})
			}
			return nil
		})
		if err != nil {
			// The whole phase rolled back.
			for _, a := range phase {
				result.Actions = append(result.Actions, ActionResult{Action: a, Err: err})
			}
			result.Success = false
			continue
		}
		for _, ar := range phaseResults {
			result.Actions = append(result.Actions, ar)
			if ar.Err != nil {
				result.Success = false
			}
		}
	}
	return result, nil
}

// Reconcile builds and executes the plan for the desired state in one
// call. The returned plan reflects what was attempted.
func (r *Reconciler) Reconcile(ctx context.Context, desired *DesiredState) (*Plan, *Result, error) {
	plan, err := r.BuildPlan(ctx, desired)
	if err != nil {
		return nil, nil, err
	}
	result, err := r.Execute(ctx, plan)
	if err != nil {
		return plan, nil, err
	}
	return plan, result, nil
}

// applyAction executes one action inside the phase transaction.
func applyAction(ctx context.Context, tx *sql.Tx, action Action) error {
	switch a := action.(type) {
	case CreateChannelAction:
		id, err := channelid.Scoped(a.Scope, a.ProjectID, a.Name)
		if err != nil {
			return err
		}
		err = membership.CreateChannelTx(ctx, tx, id, membership.CreateChannelParams{
			Scope:       a.Scope,
			Name:        a.Name,
			AccessType:  types.AccessOpen,
			ProjectID:   a.ProjectID,
			Description: a.Description,
			CreatedBy:   types.InvitedBySystem,
			IsDefault:   a.IsDefault,
		})
		if types.KindOf(err) == types.KindConflict {
			return nil // someone else created it since planning
		}
		return err

	case CreateProjectLinkAction:
		for _, p := range []string{a.Link.PathA, a.Link.PathB} {
			if err := identity.RegisterProjectTx(ctx, tx, p, filepath.Base(p)); err != nil {
				return err
			}
		}
		return identity.LinkProjectsTx(ctx, tx, a.Link.ProjectA, a.Link.ProjectB, a.Link.Direction)

	case RegisterAgentAction:
		if err := identity.RegisterAgentTx(ctx, tx, a.Agent); err != nil {
			return err
		}
		if a.CreateNotesChannel {
			return membership.EnsureNotesChannelTx(ctx, tx, a.Agent.Ref())
		}
		return nil

	case AddMembershipAction:
		_, err := membership.InsertMember(ctx, tx, types.ChannelMember{
			ChannelID:      a.ChannelID,
			AgentName:      a.Agent.Name,
			AgentProjectID: a.Agent.ProjectID,
			InvitedBy:      types.InvitedBySystem,
			Source:         a.Source,
			CanLeave:       true,
			CanSend:        true,
			CanInvite:      true,
			IsFromDefault:  a.Source == types.SourceDefault,
		})
		return err

	case RemoveMembershipAction:
		_, err := tx.ExecContext(ctx, `
			DELETE FROM channel_members
			WHERE channel_id = ? AND agent_name = ? AND agent_project_id = ?
			  AND source = 'default' AND is_from_default = 1
		`, a.ChannelID, a.Agent.Name, a.Agent.ProjectID)
		if err != nil {
			return fmt.Errorf("remove membership: %w", err)
		}
		return nil

	default:
		return types.ErrInternal.Msgf("unknown action %T", action)
	}
}
