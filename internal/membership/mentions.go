package membership

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/claude-slack/claude-slack/internal/store"
	"github.com/claude-slack/claude-slack/internal/types"
)

// mentionRegex extracts @name and @name@hex32 tokens from message content.
var mentionRegex = regexp.MustCompile(`@([a-z0-9][a-z0-9_-]{0,63}(?:@[0-9a-f]{32})?)`)

// ExtractMentions returns the distinct @mention tokens in content, in
// first-appearance order, without the leading @.
func ExtractMentions(content string) []string {
	matches := mentionRegex.FindAllStringSubmatch(content, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// ValidateMentions partitions mention tokens against a channel into three
// disjoint sets whose union is the input:
//
//	valid:   the agent exists and is a member of the channel
//	invalid: the agent exists but is not a member
//	unknown: no such agent
//
// A bare name resolves against the channel's project first (when the
// channel is project-scoped), then against global agents. An explicit
// name@hex32 key resolves exactly. One query loads agents and membership
// for the whole batch.
func ValidateMentions(ctx context.Context, q store.Querier, channelID string, mentions []string) (types.MentionSummary, error) {
	summary := types.MentionSummary{
		Valid:   []string{},
		Invalid: []string{},
		Unknown: []string{},
	}
	if len(mentions) == 0 {
		return summary, nil
	}

	ch, err := GetChannel(ctx, q, channelID)
	if err != nil {
		return summary, err
	}

	// Collect candidate names for the batch lookup.
	names := make(map[string]bool)
	parsed := make([]types.AgentRef, 0, len(mentions))
	for _, token := range mentions {
		ref, err := types.ParseAgentRef(token)
		if err != nil {
			// Not a well-formed agent key at all.
			summary.Unknown = append(summary.Unknown, token)
			parsed = append(parsed, types.AgentRef{})
			continue
		}
		parsed = append(parsed, ref)
		names[ref.Name] = true
	}

	nameList := make([]string, 0, len(names))
	for n := range names {
		nameList = append(nameList, n)
	}
	if len(nameList) == 0 {
		return summary, nil
	}

	// found maps each matching agent to whether it is a channel member.
	found := make(map[types.AgentRef]bool)

	placeholders := strings.Repeat("?,", len(nameList))
	placeholders = placeholders[:len(placeholders)-1]
	args := []any{channelID}
	for _, n := range nameList {
		args = append(args, n)
	}
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`
		SELECT a.name, a.project_id, m.channel_id IS NOT NULL
		FROM agents a
		LEFT JOIN channel_members m
			ON m.channel_id = ? AND m.agent_name = a.name AND m.agent_project_id = a.project_id
		WHERE a.name IN (%s)
	`, placeholders), args...)
	if err != nil {
		return summary, fmt.Errorf("query mentions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var ref types.AgentRef
		var isMember bool
		if err := rows.Scan(&ref.Name, &ref.ProjectID, &isMember); err != nil {
			return summary, fmt.Errorf("scan mention row: %w", err)
		}
		found[ref] = isMember
	}
	if err := rows.Err(); err != nil {
		return summary, fmt.Errorf("iterate mention rows: %w", err)
	}

	for i, token := range mentions {
		ref := parsed[i]
		if ref.Name == "" {
			continue // already recorded as unknown above
		}

		resolved, ok := resolveMention(ref, ch, found)
		switch {
		case !ok:
			summary.Unknown = append(summary.Unknown, token)
		case found[resolved]:
			summary.Valid = append(summary.Valid, token)
		default:
			summary.Invalid = append(summary.Invalid, token)
		}
	}
	return summary, nil
}

// resolveMention picks the concrete agent a token refers to.
func resolveMention(ref types.AgentRef, ch *types.Channel, found map[types.AgentRef]bool) (types.AgentRef, bool) {
	if ref.ProjectID != "" {
		_, ok := found[ref]
		return ref, ok
	}
	// Bare name: the channel's project wins over a global agent of the
	// same name.
	if ch.ProjectID != "" {
		scoped := types.AgentRef{Name: ref.Name, ProjectID: ch.ProjectID}
		if _, ok := found[scoped]; ok {
			return scoped, true
		}
	}
	global := types.AgentRef{Name: ref.Name}
	_, ok := found[global]
	return global, ok
}
