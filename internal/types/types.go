// Package types defines the domain records shared by every claude-slack
// component: projects, agents, sessions, channels, member rows, and messages.
package types

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ChannelType classifies what kind of conversation a channel holds.
type ChannelType string

const (
	ChannelTypeChannel ChannelType = "channel"
	ChannelTypeDirect  ChannelType = "direct"
	ChannelTypeNotes   ChannelType = "notes"
)

// AccessType controls who may join a channel.
type AccessType string

const (
	AccessOpen    AccessType = "open"
	AccessMembers AccessType = "members"
	AccessPrivate AccessType = "private"
)

// Scope is the namespace a channel lives in.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeProject Scope = "project"
)

// DMPolicy controls whether an agent accepts direct messages.
type DMPolicy string

const (
	DMOpen       DMPolicy = "open"
	DMRestricted DMPolicy = "restricted"
	DMClosed     DMPolicy = "closed"
)

// Discoverability controls who can see an agent in listings.
type Discoverability string

const (
	DiscoverablePublic  Discoverability = "public"
	DiscoverableProject Discoverability = "project"
	DiscoverablePrivate Discoverability = "private"
)

// AgentStatus is the lifecycle state of a registered agent.
type AgentStatus string

const (
	AgentActive   AgentStatus = "active"
	AgentInactive AgentStatus = "inactive"
)

// MemberSource records what caused a membership row to exist.
type MemberSource string

const (
	SourceDefault    MemberSource = "default"
	SourceExplicit   MemberSource = "explicit"
	SourceDM         MemberSource = "dm"
	SourceNotes      MemberSource = "notes"
	SourceInvitation MemberSource = "invitation"
)

// InvitedBySelf and InvitedBySystem are the reserved invited_by values.
// Any other value is the agent key of the inviter.
const (
	InvitedBySelf   = "self"
	InvitedBySystem = "system"
)

// LinkDirection is the direction of a project link.
type LinkDirection string

const (
	LinkAToB LinkDirection = "a_to_b"
	LinkBToA LinkDirection = "b_to_a"
	LinkBoth LinkDirection = "bidirectional"
)

// agentNameRegex matches valid agent and channel names:
// lowercase alphanumeric start, then lowercase alphanumerics, underscores,
// and hyphens, at most 64 characters total.
var agentNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// hex32Regex matches a 32-character lowercase hex project id.
var hex32Regex = regexp.MustCompile(`^[0-9a-f]{32}$`)

// ValidateName reports whether s is a valid NAME per the id grammar.
func ValidateName(s string) error {
	if !agentNameRegex.MatchString(s) {
		return ErrInvalidName.Msgf("invalid name %q: must match [a-z0-9][a-z0-9_-]{0,63}", s)
	}
	return nil
}

// IsHex32 reports whether s is a 32-character lowercase hex string.
func IsHex32(s string) bool {
	return hex32Regex.MatchString(s)
}

// AgentRef identifies an agent by composite key. An empty ProjectID denotes
// a global agent.
type AgentRef struct {
	Name      string
	ProjectID string
}

// Key renders the ref in AGENT_KEY form: "name" or "name@hex32".
func (r AgentRef) Key() string {
	if r.ProjectID == "" {
		return r.Name
	}
	return r.Name + "@" + r.ProjectID
}

// IsGlobal reports whether the ref denotes a global agent.
func (r AgentRef) IsGlobal() bool { return r.ProjectID == "" }

func (r AgentRef) String() string { return r.Key() }

// ParseAgentRef parses an AGENT_KEY: NAME or NAME@HEX32.
func ParseAgentRef(s string) (AgentRef, error) {
	name := s
	projectID := ""
	if i := strings.IndexByte(s, '@'); i >= 0 {
		name = s[:i]
		projectID = s[i+1:]
		if !IsHex32(projectID) {
			return AgentRef{}, ErrInvalidName.Msgf("invalid agent key %q: project id must be 32 hex chars", s)
		}
	}
	if err := ValidateName(name); err != nil {
		return AgentRef{}, err
	}
	return AgentRef{Name: name, ProjectID: projectID}, nil
}

// Project is a registered workspace.
type Project struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Agent is a registered agent identity.
type Agent struct {
	Name         string          `json:"name"`
	ProjectID    string          `json:"project_id,omitempty"`
	Description  string          `json:"description,omitempty"`
	Status       AgentStatus     `json:"status"`
	DMPolicy     DMPolicy        `json:"dm_policy"`
	Discoverable Discoverability `json:"discoverable"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Ref returns the agent's composite key.
func (a Agent) Ref() AgentRef { return AgentRef{Name: a.Name, ProjectID: a.ProjectID} }

// Session tracks the active context of a host session.
type Session struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id,omitempty"`
	TranscriptPath string    `json:"transcript_path,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Channel is a conversation container.
type Channel struct {
	ID          string      `json:"id"`
	ChannelType ChannelType `json:"channel_type"`
	AccessType  AccessType  `json:"access_type"`
	Scope       Scope       `json:"scope"`
	ProjectID   string      `json:"project_id,omitempty"`
	Name        string      `json:"name,omitempty"`
	Description string      `json:"description,omitempty"`
	CreatedBy   string      `json:"created_by,omitempty"`
	IsDefault   bool        `json:"is_default"`
	Archived    bool        `json:"archived"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ChannelMember is the (channel, agent) join row with capability flags.
type ChannelMember struct {
	ChannelID      string       `json:"channel_id"`
	AgentName      string       `json:"agent_name"`
	AgentProjectID string       `json:"agent_project_id,omitempty"`
	InvitedBy      string       `json:"invited_by"`
	Source         MemberSource `json:"source"`
	CanLeave       bool         `json:"can_leave"`
	CanSend        bool         `json:"can_send"`
	CanInvite      bool         `json:"can_invite"`
	CanManage      bool         `json:"can_manage"`
	IsFromDefault  bool         `json:"is_from_default"`
	IsMuted        bool         `json:"is_muted"`
	JoinedAt       time.Time    `json:"joined_at"`
}

// Ref returns the member's agent key.
func (m ChannelMember) Ref() AgentRef {
	return AgentRef{Name: m.AgentName, ProjectID: m.AgentProjectID}
}

// Message is an immutable posted message.
type Message struct {
	ID              int64          `json:"id"`
	ChannelID       string         `json:"channel_id"`
	SenderName      string         `json:"sender_name"`
	SenderProjectID string         `json:"sender_project_id,omitempty"`
	Content         string         `json:"content"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Confidence      *float64       `json:"confidence,omitempty"`
	ThreadID        *int64         `json:"thread_id,omitempty"`
	Timestamp       int64          `json:"timestamp"` // epoch seconds, UTC
}

// ScoredMessage is a search result with ranking detail.
type ScoredMessage struct {
	Message
	FinalScore float64            `json:"final_score"`
	SubScores  map[string]float64 `json:"sub_scores,omitempty"`
}

// MentionSummary partitions the @mentions of a post.
type MentionSummary struct {
	Valid   []string `json:"valid"`
	Invalid []string `json:"invalid"`
	Unknown []string `json:"unknown"`
}

// ProjectLink governs cross-project agent discoverability.
type ProjectLink struct {
	ProjectA  string        `json:"project_a"`
	ProjectB  string        `json:"project_b"`
	Direction LinkDirection `json:"direction"`
	CreatedAt time.Time     `json:"created_at"`
}

// Covers reports whether the link grants visibility of an agent in project
// `from` to a caller in project `to`.
func (l ProjectLink) Covers(from, to string) bool {
	switch {
	case l.ProjectA == from && l.ProjectB == to:
		return l.Direction == LinkAToB || l.Direction == LinkBoth
	case l.ProjectB == from && l.ProjectA == to:
		return l.Direction == LinkBToA || l.Direction == LinkBoth
	default:
		return false
	}
}

// ToolCall is one recorded tool invocation within a session.
type ToolCall struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	ToolName       string    `json:"tool_name"`
	ToolInputsHash string    `json:"tool_inputs_hash"`
	ToolInputs     string    `json:"tool_inputs"`
	CreatedAt      time.Time `json:"created_at"`
}

// ValidDMPolicy reports whether p is a known DM policy.
func ValidDMPolicy(p DMPolicy) bool {
	return p == DMOpen || p == DMRestricted || p == DMClosed
}

// ValidDiscoverability reports whether d is a known discoverability level.
func ValidDiscoverability(d Discoverability) bool {
	return d == DiscoverablePublic || d == DiscoverableProject || d == DiscoverablePrivate
}

// ValidLinkDirection reports whether d is a known link direction.
func ValidLinkDirection(d LinkDirection) bool {
	return d == LinkAToB || d == LinkBToA || d == LinkBoth
}

// SortAgentRefs orders two refs by their key form, for canonical DM ids.
func SortAgentRefs(a, b AgentRef) (AgentRef, AgentRef) {
	if a.Key() <= b.Key() {
		return a, b
	}
	return b, a
}

// FormatEpoch renders an epoch-seconds timestamp as RFC3339 UTC.
func FormatEpoch(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}

// Stringer helpers used in log lines.
func (m MentionSummary) String() string {
	return fmt.Sprintf("valid=%d invalid=%d unknown=%d", len(m.Valid), len(m.Invalid), len(m.Unknown))
}
