package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/carvelab/ingest/internal/storage"
	"github.com/carvelab/ingest/internal/types"
)

const itemColumns = `id, job_id, source_path, filename, file_type, size_bytes,
       content_hash, phash, project_id, role, status, design_id, file_id,
       duplicate_of, similarity, error_message, retry_count,
       started_at, completed_at, created_at`

// CreateItems bulk-inserts the items for a job in one transaction
func (s *SQLiteStorage) CreateItems(ctx context.Context, items []*types.ImportItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO import_items (
			id, job_id, source_path, filename, file_type, size_bytes,
			content_hash, phash, project_id, role, status, design_id, file_id,
			duplicate_of, similarity, error_message, retry_count,
			started_at, completed_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, item := range items {
		if item.Status == "" {
			item.Status = types.ItemPending
		}
		item.CreatedAt = now
		_, err := stmt.ExecContext(ctx,
			item.ID, item.JobID, item.SourcePath, item.Filename, item.FileType, item.SizeBytes,
			item.ContentHash, item.Phash, item.ProjectID, item.Role, item.Status,
			item.DesignID, item.FileID, item.DuplicateOf, item.Similarity,
			item.ErrorMessage, item.RetryCount,
			nullableTime(item.StartedAt), nullableTime(item.CompletedAt), item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert item %s: %w", item.SourcePath, err)
		}
	}
	return tx.Commit()
}

// GetItem retrieves an item by ID
func (s *SQLiteStorage) GetItem(ctx context.Context, id string) (*types.ImportItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM import_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// ListItems returns a job's items in scan order
func (s *SQLiteStorage) ListItems(ctx context.Context, jobID string, filter storage.ItemFilter) ([]*types.ImportItem, error) {
	query := `SELECT ` + itemColumns + ` FROM import_items WHERE job_id = ?`
	args := []interface{}{jobID}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY source_path ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*types.ImportItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ClaimItem transitions pending -> processing. Returns ErrConflict when the
// item was already claimed or finalized, so two workers never process one item.
func (s *SQLiteStorage) ClaimItem(ctx context.Context, id string, startedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE import_items SET status = ?, started_at = ?
		WHERE id = ? AND status = ?
	`, types.ItemProcessing, startedAt.UTC(), id, types.ItemPending)
	if err != nil {
		return fmt.Errorf("failed to claim item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check claim result: %w", err)
	}
	if n == 0 {
		return storage.ErrConflict
	}
	return nil
}

// FinalizeItem writes an item's terminal state and result fields
func (s *SQLiteStorage) FinalizeItem(ctx context.Context, item *types.ImportItem) error {
	if !item.Status.IsTerminal() {
		return fmt.Errorf("cannot finalize item in non-terminal status %s", item.Status)
	}
	now := time.Now().UTC()
	if item.CompletedAt == nil {
		item.CompletedAt = &now
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE import_items
		SET status = ?, content_hash = ?, phash = ?, design_id = ?, file_id = ?,
		    duplicate_of = ?, similarity = ?, error_message = ?, retry_count = ?,
		    completed_at = ?
		WHERE id = ? AND status = ?
	`,
		item.Status, item.ContentHash, item.Phash, item.DesignID, item.FileID,
		item.DuplicateOf, item.Similarity, item.ErrorMessage, item.RetryCount,
		nullableTime(item.CompletedAt), item.ID, types.ItemProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check finalize result: %w", err)
	}
	if n == 0 {
		return storage.ErrConflict
	}
	return nil
}

// ReclaimStaleItems returns processing items started before the cutoff to
// pending. Used on resume to recover items orphaned by a crash.
func (s *SQLiteStorage) ReclaimStaleItems(ctx context.Context, jobID string, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE import_items
		SET status = ?, started_at = NULL
		WHERE job_id = ? AND status = ? AND (started_at IS NULL OR started_at < ?)
	`, types.ItemPending, jobID, types.ItemProcessing, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reclaimed items: %w", err)
	}
	return int(n), nil
}

func scanItem(r rowScanner) (*types.ImportItem, error) {
	var item types.ImportItem
	var startedAt, completedAt sql.NullTime

	err := r.Scan(
		&item.ID, &item.JobID, &item.SourcePath, &item.Filename, &item.FileType, &item.SizeBytes,
		&item.ContentHash, &item.Phash, &item.ProjectID, &item.Role, &item.Status,
		&item.DesignID, &item.FileID, &item.DuplicateOf, &item.Similarity,
		&item.ErrorMessage, &item.RetryCount,
		&startedAt, &completedAt, &item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if startedAt.Valid {
		item.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		item.CompletedAt = &completedAt.Time
	}
	return &item, nil
}
