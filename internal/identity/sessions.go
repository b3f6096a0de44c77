package identity

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/claude-slack/claude-slack/internal/store"
	"github.com/claude-slack/claude-slack/internal/types"
)

// RegisterSession upserts a session row. Re-registration refreshes the
// project binding and transcript path and bumps updated_at.
func (s *Service) RegisterSession(ctx context.Context, id, projectID, transcriptPath string) error {
	if id == "" {
		return types.ErrInvalidArgument.Msgf("session id is required")
	}
	return s.store.WriterTxn(ctx, func(tx *sql.Tx) error {
		return RegisterSessionTx(ctx, tx, id, projectID, transcriptPath)
	})
}

// RegisterSessionTx upserts a session inside an existing write transaction.
func RegisterSessionTx(ctx context.Context, tx *sql.Tx, id, projectID, transcriptPath string) error {
	ts := now()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, project_id, transcript_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id      = excluded.project_id,
			transcript_path = excluded.transcript_path,
			updated_at      = excluded.updated_at
	`, id, projectID, transcriptPath, ts, ts)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// TouchSession bumps updated_at on an existing session.
func (s *Service) TouchSession(ctx context.Context, id string) error {
	return s.store.WriterTxn(ctx, func(tx *sql.Tx) error {
		return TouchSessionTx(ctx, tx, id)
	})
}

// TouchSessionTx bumps updated_at inside an existing write transaction.
func TouchSessionTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, "UPDATE sessions SET updated_at = ? WHERE id = ?", now(), id)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return types.ErrSessionNotFound.Msgf("session %s not found", id)
	}
	return nil
}

// GetSession looks up a session by id.
func (s *Service) GetSession(ctx context.Context, id string) (*types.Session, error) {
	return GetSession(ctx, s.store.Reader(), id)
}

// GetSession looks up a session on any querier.
func GetSession(ctx context.Context, q store.Querier, id string) (*types.Session, error) {
	var sess types.Session
	var createdAt, updatedAt string
	err := q.QueryRowContext(ctx, `
		SELECT id, project_id, transcript_path, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id).Scan(&sess.ID, &sess.ProjectID, &sess.TranscriptPath, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, types.ErrSessionNotFound.Msgf("session %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return &sess, nil
}

// RecordToolCall appends a tool_calls row and touches the session, in one
// transaction. The id makes re-ingestion from the fallback spool
// idempotent: an id that already landed is ignored.
func (s *Service) RecordToolCall(ctx context.Context, call types.ToolCall) error {
	return s.store.WriterTxn(ctx, func(tx *sql.Tx) error {
		return RecordToolCallTx(ctx, tx, call)
	})
}

// RecordToolCallTx appends a tool call inside an existing transaction.
func RecordToolCallTx(ctx context.Context, tx *sql.Tx, call types.ToolCall) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO tool_calls (id, session_id, tool_name, tool_inputs_hash, tool_inputs, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, call.ID, call.SessionID, call.ToolName, call.ToolInputsHash, call.ToolInputs, now())
	if err != nil {
		return fmt.Errorf("insert tool call: %w", err)
	}
	// The session may not exist yet when the hook fires before the first
	// session-start; create a minimal row in that case.
	if err := TouchSessionTx(ctx, tx, call.SessionID); err != nil {
		if kindIsNotFound(err) {
			return RegisterSessionTx(ctx, tx, call.SessionID, "", "")
		}
		return err
	}
	return nil
}

func kindIsNotFound(err error) bool {
	return types.KindOf(err) == types.KindNotFound
}
