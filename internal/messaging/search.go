package messaging

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/claude-slack/claude-slack/internal/membership"
	"github.com/claude-slack/claude-slack/internal/types"
)

// Ranker scores a candidate message set. The core guarantees access
// filtering and result ordering; the ranker only assigns scores.
// Implementations may drop candidates (e.g. no term overlap).
type Ranker interface {
	Rank(ctx context.Context, query string, profile string, candidates []types.Message) ([]types.ScoredMessage, error)
}

// SearchParams selects and ranks messages. Empty ChannelIDs and
// ProjectIDs mean all channels the caller can access.
type SearchParams struct {
	Caller          types.AgentRef
	Query           string
	ChannelIDs      []string
	ProjectIDs      []string
	MetadataFilters map[string]string
	RankingProfile  string
	Limit           int
}

// Search loads candidates from the intersection of the requested channels
// and the channels the caller belongs to, hands them to the ranker, and
// returns results ordered by final_score descending then id descending.
// A message in an inaccessible channel is never returned, whatever the
// ranker does.
func (s *Service) Search(ctx context.Context, p SearchParams) ([]types.ScoredMessage, error) {
	r := s.store.Reader()
	accessible, err := membership.AccessibleChannels(ctx, r, p.Caller)
	if err != nil {
		return nil, err
	}
	channels := intersectChannels(accessible, p.ChannelIDs, p.ProjectIDs)
	if len(channels) == 0 {
		return []types.ScoredMessage{}, nil
	}

	placeholders := strings.Repeat("?,", len(channels))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(channels))
	for _, id := range channels {
		args = append(args, id)
	}
	rows, err := r.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, channel_id, sender_name, sender_project_id, content, metadata, confidence, thread_id, timestamp
		FROM messages WHERE channel_id IN (%s)
		ORDER BY id DESC
	`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("query search candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []types.Message
	for rows.Next() {
		m, err := scanMessageFrom(rows)
		if err != nil {
			return nil, err
		}
		if matchesMetadata(m, p.MetadataFilters) {
			candidates = append(candidates, m)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	scored, err := s.ranker.Rank(ctx, p.Query, p.RankingProfile, candidates)
	if err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}

	// The ordering guarantee is the core's, not the ranker's.
	allowed := make(map[string]bool, len(channels))
	for _, id := range channels {
		allowed[id] = true
	}
	out := make([]types.ScoredMessage, 0, len(scored))
	for _, sm := range scored {
		if allowed[sm.ChannelID] {
			out = append(out, sm)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FinalScore != out[j].FinalScore {
			return out[i].FinalScore > out[j].FinalScore
		}
		return out[i].ID > out[j].ID
	})
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, nil
}

// intersectChannels narrows the accessible set by explicit channel ids
// and by project ids (a project filter admits that project's channels
// plus global ones).
func intersectChannels(accessible, channelIDs, projectIDs []string) []string {
	byID := map[string]bool{}
	for _, id := range channelIDs {
		byID[id] = true
	}
	byProject := map[string]bool{}
	for _, pid := range projectIDs {
		byProject[pid] = true
	}

	var out []string
	for _, id := range accessible {
		if len(byID) > 0 && !byID[id] {
			continue
		}
		if len(byProject) > 0 && !channelInProjects(id, byProject) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func channelInProjects(channelID string, projects map[string]bool) bool {
	// proj:<hex32>:<name> carries its project; everything else counts as
	// global and passes any project filter.
	if !strings.HasPrefix(channelID, "proj:") {
		return true
	}
	rest := strings.TrimPrefix(channelID, "proj:")
	i := strings.IndexByte(rest, ':')
	if i < 0 {
		return false
	}
	return projects[rest[:i]]
}

// matchesMetadata requires every filter key to be present in the message
// metadata with the given string form.
func matchesMetadata(m types.Message, filters map[string]string) bool {
	for k, want := range filters {
		v, ok := m.Metadata[k]
		if !ok || fmt.Sprintf("%v", v) != want {
			return false
		}
	}
	return true
}

// LexicalRanker is the built-in scorer: fraction of query terms found in
// the message content, case-insensitive. An empty query scores every
// candidate 1.0 so pure metadata/channel searches return everything.
type LexicalRanker struct{}

func (LexicalRanker) Rank(_ context.Context, query, _ string, candidates []types.Message) ([]types.ScoredMessage, error) {
	terms := strings.Fields(strings.ToLower(query))
	out := make([]types.ScoredMessage, 0, len(candidates))
	for _, m := range candidates {
		score := 1.0
		var sub map[string]float64
		if len(terms) > 0 {
			content := strings.ToLower(m.Content)
			hits := 0
			for _, t := range terms {
				if strings.Contains(content, t) {
					hits++
				}
			}
			if hits == 0 {
				continue
			}
			score = float64(hits) / float64(len(terms))
			sub = map[string]float64{"lexical": score}
		}
		out = append(out, types.ScoredMessage{Message: m, FinalScore: score, SubScores: sub})
	}
	return out, nil
}
