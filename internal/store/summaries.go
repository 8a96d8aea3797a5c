package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SaveSummary inserts a summary and, in the same transaction, evicts the
// owner's oldest rows beyond the retention cap.
func (s *SQLiteStore) SaveSummary(ctx context.Context, in NewSummary) (int64, error) {
	metadata := in.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx,
		"INSERT INTO summaries (user_id, filename, original_text, summary_text, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		in.UserID, in.Filename, in.OriginalText, in.SummaryText, string(metadata), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert summary: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read summary id: %w", err)
	}

	evicted, err := s.enforceRetention(ctx, tx, in.UserID)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit summary: %w", err)
	}
	if evicted > 0 {
		s.log.Info("Evicted old summaries", "user_id", in.UserID, "count", evicted, "cap", s.retentionCap)
	}
	return id, nil
}

func (s *SQLiteStore) enforceRetention(ctx context.Context, tx *sql.Tx, userID string) (int64, error) {
	if s.retentionCap <= 0 {
		return 0, nil
	}

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM summaries WHERE user_id = ?", userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count summaries: %w", err)
	}
	if count <= s.retentionCap {
		return 0, nil
	}

	res, err := tx.ExecContext(ctx, `
        DELETE FROM summaries WHERE id IN (
            SELECT id FROM summaries
            WHERE user_id = ?
            ORDER BY created_at ASC, id ASC
            LIMIT ?
        )`, userID, count-s.retentionCap)
	if err != nil {
		return 0, fmt.Errorf("failed to evict old summaries: %w", err)
	}
	return res.RowsAffected()
}

// ListSummaries returns the user's summaries newest first.
func (s *SQLiteStore) ListSummaries(ctx context.Context, userID string) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, user_id, filename, original_text, summary_text, metadata, created_at
        FROM summaries
        WHERE user_id = ?
        ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var sum Summary
		var metadata string
		if err := rows.Scan(&sum.ID, &sum.UserID, &sum.Filename, &sum.OriginalText, &sum.SummaryText, &metadata, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		if json.Valid([]byte(metadata)) {
			sum.Metadata = json.RawMessage(metadata)
		} else {
			s.log.Warn("Stored metadata is not valid JSON", "summary_id", sum.ID)
			sum.Metadata = json.RawMessage("{}")
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate summaries: %w", err)
	}
	return summaries, nil
}

// DeleteSummary returns ErrNotFound when no row has the id.
func (s *SQLiteStore) DeleteSummary(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM summaries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete summary: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// EnforceRetentionAll trims every user down to limit summaries and returns
// the number of evicted rows.
func (s *SQLiteStore) EnforceRetentionAll(ctx context.Context, limit int) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
        DELETE FROM summaries WHERE id IN (
            SELECT id FROM (
                SELECT id, ROW_NUMBER() OVER (
                    PARTITION BY user_id ORDER BY created_at DESC, id DESC
                ) AS rn
                FROM summaries
            ) WHERE rn > ?
        )`, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to enforce retention: %w", err)
	}
	return res.RowsAffected()
}
