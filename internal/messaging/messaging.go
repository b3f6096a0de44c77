// Package messaging posts, fetches, and searches messages. All writes run
// through the store's single writer; membership checks and the insert share
// one transaction so a concurrent leave cannot race a post.
package messaging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/claude-slack/claude-slack/internal/membership"
	"github.com/claude-slack/claude-slack/internal/store"
	"github.com/claude-slack/claude-slack/internal/types"
)

// DefaultMaxMessageLength applies when the config does not set one.
const DefaultMaxMessageLength = 10000

// Service carries the store and the configured message length cap.
type Service struct {
	store  *store.Store
	maxLen int
	ranker Ranker
}

// NewService builds a messaging service. maxLen <= 0 selects the default
// cap; ranker nil selects the built-in lexical ranker.
func NewService(st *store.Store, maxLen int, ranker Ranker) *Service {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	if ranker == nil {
		ranker = LexicalRanker{}
	}
	return &Service{store: st, maxLen: maxLen, ranker: ranker}
}

// PostParams describes one message to insert.
type PostParams struct {
	ChannelID  string
	Sender     types.AgentRef
	Content    string
	Metadata   map[string]any
	Confidence *float64
	ThreadID   *int64
}

// Post inserts a message after checking, in the same write transaction,
// that the sender is a member with can_send, the channel is not archived,
// the content fits the length cap, and any thread_id references an
// existing message or thread. @mentions are parsed from the content and
// their validation summary is stored in metadata under "mentions";
// invalid and unknown mentions never fail the post.
func (s *Service) Post(ctx context.Context, p PostParams) (int64, error) {
	if p.Content == "" {
		return 0, types.ErrInvalidArgument.Msgf("message content is empty")
	}
	if len(p.Content) > s.maxLen {
		return 0, types.ErrMessageTooLong.Msgf("message is %d bytes, limit %d", len(p.Content), s.maxLen)
	}
	if p.Confidence != nil && (*p.Confidence < 0 || *p.Confidence > 1) {
		return 0, types.ErrInvalidArgument.Msgf("confidence %v outside [0,1]", *p.Confidence)
	}

	var id int64
	err := s.store.WriterTxn(ctx, func(tx *sql.Tx) error {
		ch, err := membership.GetChannel(ctx, tx, p.ChannelID)
		if err != nil {
			return err
		}
		if ch.Archived {
			return types.ErrArchived.Msgf("channel %s is archived", p.ChannelID)
		}
		member, err := membership.GetMember(ctx, tx, p.ChannelID, p.Sender)
		if err != nil {
			return err
		}
		if member == nil {
			return types.ErrNotAMember.Msgf("%s is not a member of %s", p.Sender.Key(), p.ChannelID)
		}
		if !member.CanSend {
			return types.ErrAccessDenied.Msgf("%s cannot send to %s", p.Sender.Key(), p.ChannelID)
		}
		if p.ThreadID != nil {
			if err := validateThread(ctx, tx, p.ChannelID, *p.ThreadID); err != nil {
				return err
			}
		}

		metadata := make(map[string]any, len(p.Metadata)+1)
		for k, v := range p.Metadata {
			metadata[k] = v
		}
		if tokens := membership.ExtractMentions(p.Content); len(tokens) > 0 {
			summary, err := membership.ValidateMentions(ctx, tx, p.ChannelID, tokens)
			if err != nil {
				return err
			}
			metadata["mentions"] = summary
		}
		var metaJSON any
		if len(metadata) > 0 {
			raw, err := json.Marshal(metadata)
			if err != nil {
				return fmt.Errorf("marshal metadata: %w", err)
			}
			metaJSON = string(raw)
		}

		ts, err := nextTimestamp(ctx, tx, p.ChannelID)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO messages (channel_id, sender_name, sender_project_id, content, metadata, confidence, thread_id, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, p.ChannelID, p.Sender.Name, p.Sender.ProjectID, p.Content, metaJSON, p.Confidence, p.ThreadID, ts)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// validateThread accepts a thread id that matches an existing message's id
// or thread_id in the channel. An ancestor deleted by retention leaves an
// orphan thread id behind, which existing replies keep pointing at; only a
// brand-new reference to a never-seen id is rejected.
func validateThread(ctx context.Context, tx *sql.Tx, channelID string, threadID int64) error {
	var one int
	err := tx.QueryRowContext(ctx, `
		SELECT 1 FROM messages
		WHERE channel_id = ? AND (id = ? OR thread_id = ?)
		LIMIT 1
	`, channelID, threadID, threadID).Scan(&one)
	if err == sql.ErrNoRows {
		return types.ErrInvalidThread.Msgf("thread %d does not exist in %s", threadID, channelID)
	}
	if err != nil {
		return fmt.Errorf("query thread: %w", err)
	}
	return nil
}

// nextTimestamp returns now in epoch seconds, clamped so timestamps within
// a channel never go backwards even if the wall clock does.
func nextTimestamp(ctx context.Context, tx *sql.Tx, channelID string) (int64, error) {
	var last int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(timestamp), 0) FROM messages WHERE channel_id = ?`,
		channelID).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("query last timestamp: %w", err)
	}
	ts := time.Now().UTC().Unix()
	if ts < last {
		ts = last
	}
	return ts, nil
}

// FetchParams narrows a fetch. Since and Before are epoch seconds;
// zero means unbounded.
type FetchParams struct {
	ChannelID string
	Caller    types.AgentRef
	Limit     int
	Offset    int
	Since     int64
	Before    int64
}

// Fetch returns the channel's messages newest-first. Only members may
// fetch.
func (s *Service) Fetch(ctx context.Context, p FetchParams) ([]types.Message, error) {
	r := s.store.Reader()
	if _, err := membership.GetChannel(ctx, r, p.ChannelID); err != nil {
		return nil, err
	}
	member, err := membership.GetMember(ctx, r, p.ChannelID, p.Caller)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, types.ErrNotAMember.Msgf("%s is not a member of %s", p.Caller.Key(), p.ChannelID)
	}

	query := `
		SELECT id, channel_id, sender_name, sender_project_id, content, metadata, confidence, thread_id, timestamp
		FROM messages WHERE channel_id = ?
	`
	args := []any{p.ChannelID}
	if p.Since > 0 {
		query += " AND timestamp >= ?"
		args = append(args, p.Since)
	}
	if p.Before > 0 {
		query += " AND timestamp < ?"
		args = append(args, p.Before)
	}
	query += " ORDER BY id DESC"
	if p.Limit <= 0 {
		p.Limit = 50
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, p.Limit, p.Offset)

	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.Message
	for rows.Next() {
		m, err := scanMessageFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMessage returns one message by id, subject to the caller's access.
func (s *Service) GetMessage(ctx context.Context, caller types.AgentRef, id int64) (*types.Message, error) {
	r := s.store.Reader()
	row := r.QueryRowContext(ctx, `
		SELECT id, channel_id, sender_name, sender_project_id, content, metadata, confidence, thread_id, timestamp
		FROM messages WHERE id = ?
	`, id)
	m, err := scanMessageFrom(row)
	if err == sql.ErrNoRows {
		return nil, types.ErrMessageNotFound.Msgf("message %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	ok, err := membership.CheckAccess(ctx, r, caller, m.ChannelID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, types.ErrMessageNotFound.Msgf("message %d not found", id)
	}
	return &m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessageFrom(sc rowScanner) (types.Message, error) {
	var m types.Message
	var metadata sql.NullString
	var confidence sql.NullFloat64
	var threadID sql.NullInt64
	err := sc.Scan(&m.ID, &m.ChannelID, &m.SenderName, &m.SenderProjectID,
		&m.Content, &metadata, &confidence, &threadID, &m.Timestamp)
	if err == sql.ErrNoRows {
		return m, err
	}
	if err != nil {
		return m, fmt.Errorf("scan message: %w", err)
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &m.Metadata); err != nil {
			return m, fmt.Errorf("decode metadata of message %d: %w", m.ID, err)
		}
	}
	if confidence.Valid {
		m.Confidence = &confidence.Float64
	}
	if threadID.Valid {
		m.ThreadID = &threadID.Int64
	}
	return m, nil
}
