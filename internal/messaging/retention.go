package messaging

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Retention deletes messages older than retentionDays. Notes channels are
// exempt: private notes are the agent's long-term memory. Returns how
// many rows were deleted.
func (s *Service) Retention(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Unix()

	var deleted int64
	err := s.store.WriterTxn(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM messages
			WHERE timestamp < ?
			  AND channel_id NOT LIKE 'notes:%'
		`, cutoff)
		if err != nil {
			return fmt.Errorf("delete expired messages: %w", err)
		}
		deleted, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		return nil
	})
	return deleted, err
}
