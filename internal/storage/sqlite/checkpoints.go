package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/carvelab/ingest/internal/storage"
)

// SaveCheckpoint upserts a job's resume checkpoint. items_completed never
// decreases: a late write from a slow worker cannot roll progress back.
func (s *SQLiteStorage) SaveCheckpoint(ctx context.Context, jobID string, itemsCompleted int, data any) error {
	encoded := "{}"
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to encode checkpoint data: %w", err)
		}
		encoded = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_checkpoints (job_id, items_completed, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			items_completed = MAX(items_completed, excluded.items_completed),
			data = excluded.data,
			updated_at = excluded.updated_at
	`, jobID, itemsCompleted, encoded, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint returns a job's latest checkpoint
func (s *SQLiteStorage) GetCheckpoint(ctx context.Context, jobID string) (int, string, error) {
	var itemsCompleted int
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT items_completed, data FROM job_checkpoints WHERE job_id = ?
	`, jobID).Scan(&itemsCompleted, &data)
	if err == sql.ErrNoRows {
		return 0, "", storage.ErrNotFound
	}
	if err != nil {
		return 0, "", fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return itemsCompleted, data, nil
}
