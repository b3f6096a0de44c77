// Package reconcile converges the store toward the state declared by the
// configuration file and the discovered agent frontmatter. A plan is the
// minimal diff from current to desired: running it twice in a row yields
// an empty second plan.
package reconcile

import (
	"fmt"

	"github.com/claude-slack/claude-slack/internal/config"
	"github.com/claude-slack/claude-slack/internal/frontmatter"
	"github.com/claude-slack/claude-slack/internal/types"
)

// DesiredState is the reconciliation input: channels and links from the
// config, agents from frontmatter discovery.
type DesiredState struct {
	GlobalChannels  []config.ChannelSpec
	ProjectChannels map[string][]config.ChannelSpec // project id -> specs
	Links           []LinkSpec
	Agents          []frontmatter.AgentDef
}

// LinkSpec is a desired project link with paths already resolved to ids.
type LinkSpec struct {
	ProjectA  string
	ProjectB  string
	PathA     string
	PathB     string
	Direction types.LinkDirection
}

// Action is one reconciliation step. Execution is phase-ordered:
// infrastructure, then agents, then access.
type Action interface {
	Describe() string
}

// CreateChannelAction creates a missing default channel.
type CreateChannelAction struct {
	Scope       types.Scope
	ProjectID   string
	Name        string
	Description string
	IsDefault   bool
}

func (a CreateChannelAction) Describe() string {
	if a.ProjectID == "" {
		return fmt.Sprintf("create channel global:%s", a.Name)
	}
	return fmt.Sprintf("create channel proj:%s:%s", a.ProjectID, a.Name)
}

// CreateProjectLinkAction records a missing project link.
type CreateProjectLinkAction struct {
	Link LinkSpec
}

func (a CreateProjectLinkAction) Describe() string {
	return fmt.Sprintf("link projects %s %s (%s)", a.Link.ProjectA, a.Link.ProjectB, a.Link.Direction)
}

// RegisterAgentAction registers or updates an agent from frontmatter.
type RegisterAgentAction struct {
	Agent              types.Agent
	CreateNotesChannel bool
}

func (a RegisterAgentAction) Describe() string {
	return fmt.Sprintf("register agent %s", a.Agent.Ref().Key())
}

// AddMembershipAction subscribes an agent to a channel.
type AddMembershipAction struct {
	Agent     types.AgentRef
	ChannelID string
	Source    types.MemberSource // default or explicit
}

func (a AddMembershipAction) Describe() string {
	return fmt.Sprintf("add %s to %s (%s)", a.Agent.Key(), a.ChannelID, a.Source)
}

// RemoveMembershipAction retracts a default subscription whose channel is
// no longer a default. Only rows still marked is_from_default qualify;
// a row the agent re-joined explicitly is never touched.
type RemoveMembershipAction struct {
	Agent     types.AgentRef
	ChannelID string
}

func (a RemoveMembershipAction) Describe() string {
	return fmt.Sprintf("remove %s from %s (stale default)", a.Agent.Key(), a.ChannelID)
}

// ActionResult pairs an executed action with its outcome.
type ActionResult struct {
	Action Action
	Err    error
}

// Plan is the phase-partitioned action set.
type Plan struct {
	Infrastructure []Action
	Agents         []Action
	Access         []Action
}

// Empty reports whether the plan contains no actions.
func (p *Plan) Empty() bool {
	return len(p.Infrastructure) == 0 && len(p.Agents) == 0 && len(p.Access) == 0
}

// Total returns the action count across phases.
func (p *Plan) Total() int {
	return len(p.Infrastructure) + len(p.Agents) + len(p.Access)
}

// Result is the outcome of executing a plan. Success is the conjunction
// of all action successes.
type Result struct {
	Actions []ActionResult
	Success bool
}

// Errs returns the failed actions' errors.
func (r *Result) Errs() []error {
	var errs []error
	for _, a := range r.Actions {
		if a.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.Action.Describe(), a.Err))
		}
	}
	return errs
}
