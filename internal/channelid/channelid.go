// Package channelid implements the channel id grammar. Channel ids are
// structured strings that double as primary keys:
//
//	global:<name>
//	proj:<project_id>:<name>
//	dm:<agent-key-a>:<agent-key-b>    (keys sorted lexicographically)
//	notes:<agent_name>:<project_id|global>
//
// The same logical key always maps to the same string, so ids can be
// recomputed anywhere without a store lookup.
package channelid

import (
	"strings"

	"github.com/claude-slack/claude-slack/internal/types"
)

// Prefixes for each id shape.
const (
	prefixGlobal  = "global:"
	prefixProject = "proj:"
	prefixDM      = "dm:"
	prefixNotes   = "notes:"
)

// Global returns the id of a global channel.
func Global(name string) string {
	return prefixGlobal + name
}

// Project returns the id of a project-scoped channel.
func Project(projectID, name string) string {
	return prefixProject + projectID + ":" + name
}

// Scoped returns the channel id for the given scope. A project scope
// requires a non-empty projectID.
func Scoped(scope types.Scope, projectID, name string) (string, error) {
	if err := types.ValidateName(name); err != nil {
		return "", err
	}
	switch scope {
	case types.ScopeGlobal:
		return Global(name), nil
	case types.ScopeProject:
		if !types.IsHex32(projectID) {
			return "", types.ErrInvalidScope.Msgf("project channel %q requires a project id", name)
		}
		return Project(projectID, name), nil
	default:
		return "", types.ErrInvalidScope.Msgf("unknown scope %q", scope)
	}
}

// DM returns the canonical direct-message channel id for two agents.
// The two agent keys are sorted so DM(a, b) == DM(b, a).
func DM(a, b types.AgentRef) string {
	lo, hi := types.SortAgentRefs(a, b)
	return prefixDM + lo.Key() + ":" + hi.Key()
}

// Notes returns the private notes channel id for an agent. Global agents
// get the literal "global" scope key; project agents get their project id.
func Notes(agent types.AgentRef) string {
	scopeKey := "global"
	if agent.ProjectID != "" {
		scopeKey = agent.ProjectID
	}
	return prefixNotes + agent.Name + ":" + scopeKey
}

// Parsed is the decomposed form of a channel id.
type Parsed struct {
	Type      types.ChannelType
	Scope     types.Scope
	ProjectID string // project channels and project-scoped notes
	Name      string // channel name, or agent name for notes
	DMA, DMB  types.AgentRef
}

// Parse decomposes a channel id, validating every component against the
// grammar. It is the inverse of the constructors above.
func Parse(id string) (Parsed, error) {
	switch {
	case strings.HasPrefix(id, prefixGlobal):
		name := id[len(prefixGlobal):]
		if err := types.ValidateName(name); err != nil {
			return Parsed{}, types.ErrInvalidChannelID.Msgf("bad global channel id %q", id)
		}
		return Parsed{Type: types.ChannelTypeChannel, Scope: types.ScopeGlobal, Name: name}, nil

	case strings.HasPrefix(id, prefixProject):
		rest := id[len(prefixProject):]
		i := strings.IndexByte(rest, ':')
		if i < 0 {
			return Parsed{}, types.ErrInvalidChannelID.Msgf("bad project channel id %q", id)
		}
		projectID, name := rest[:i], rest[i+1:]
		if !types.IsHex32(projectID) {
			return Parsed{}, types.ErrInvalidChannelID.Msgf("bad project id in %q", id)
		}
		if err := types.ValidateName(name); err != nil {
			return Parsed{}, types.ErrInvalidChannelID.Msgf("bad channel name in %q", id)
		}
		return Parsed{Type: types.ChannelTypeChannel, Scope: types.ScopeProject, ProjectID: projectID, Name: name}, nil

	case strings.HasPrefix(id, prefixDM):
		rest := id[len(prefixDM):]
		keys := splitDMKeys(rest)
		if keys == nil {
			return Parsed{}, types.ErrInvalidChannelID.Msgf("bad dm channel id %q", id)
		}
		a, err := types.ParseAgentRef(keys[0])
		if err != nil {
			return Parsed{}, types.ErrInvalidChannelID.Msgf("bad agent key in %q", id)
		}
		b, err := types.ParseAgentRef(keys[1])
		if err != nil {
			return Parsed{}, types.ErrInvalidChannelID.Msgf("bad agent key in %q", id)
		}
		if a.Key() > b.Key() {
			return Parsed{}, types.ErrInvalidChannelID.Msgf("dm keys out of order in %q", id)
		}
		scope := types.ScopeGlobal
		return Parsed{Type: types.ChannelTypeDirect, Scope: scope, DMA: a, DMB: b}, nil

	case strings.HasPrefix(id, prefixNotes):
		rest := id[len(prefixNotes):]
		i := strings.IndexByte(rest, ':')
		if i < 0 {
			return Parsed{}, types.ErrInvalidChannelID.Msgf("bad notes channel id %q", id)
		}
		name, scopeKey := rest[:i], rest[i+1:]
		if err := types.ValidateName(name); err != nil {
			return Parsed{}, types.ErrInvalidChannelID.Msgf("bad agent name in %q", id)
		}
		if scopeKey == "global" {
			return Parsed{Type: types.ChannelTypeNotes, Scope: types.ScopeGlobal, Name: name}, nil
		}
		if !types.IsHex32(scopeKey) {
			return Parsed{}, types.ErrInvalidChannelID.Msgf("bad notes scope in %q", id)
		}
		return Parsed{Type: types.ChannelTypeNotes, Scope: types.ScopeProject, ProjectID: scopeKey, Name: name}, nil

	default:
		return Parsed{}, types.ErrInvalidChannelID.Msgf("unrecognized channel id %q", id)
	}
}

// NotesOwner returns the owning agent of a notes channel id.
func NotesOwner(p Parsed) types.AgentRef {
	return types.AgentRef{Name: p.Name, ProjectID: p.ProjectID}
}

// splitDMKeys splits "keyA:keyB" into its two agent keys. Agent keys never
// contain colons, so the single separator is unambiguous.
func splitDMKeys(s string) []string {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil
	}
	return parts
}
