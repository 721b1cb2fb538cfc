package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/carvelab/ingest/internal/storage"
	"github.com/carvelab/ingest/internal/types"
)

const logColumns = `id, job_id, item_id, filename, source_path, size_bytes,
       status, reason, detail, steps, design_id, file_id,
       started_at, completed_at, duration_ms, created_at`

// CreateLogs bulk-inserts pending audit rows, one per item, in one transaction
func (s *SQLiteStorage) CreateLogs(ctx context.Context, logs []*types.ImportLog) error {
	if len(logs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO import_logs (
			id, job_id, item_id, filename, source_path, size_bytes,
			status, reason, detail, steps, design_id, file_id,
			started_at, completed_at, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, entry := range logs {
		if entry.Status == "" {
			entry.Status = types.LogPending
		}
		entry.CreatedAt = now
		detail, steps, err := encodeLogFields(entry)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx,
			entry.ID, entry.JobID, entry.ItemID, entry.Filename, entry.SourcePath, entry.SizeBytes,
			entry.Status, entry.Reason, detail, steps, entry.DesignID, entry.FileID,
			nullableTime(entry.StartedAt), nullableTime(entry.CompletedAt),
			entry.DurationMS, entry.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert log for item %s: %w", entry.ItemID, err)
		}
	}
	return tx.Commit()
}

// MarkLogProcessing moves an item's audit row from pending to processing
func (s *SQLiteStorage) MarkLogProcessing(ctx context.Context, itemID string, startedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE import_logs SET status = ?, started_at = ?
		WHERE item_id = ? AND status = ?
	`, types.LogProcessing, startedAt.UTC(), itemID, types.LogPending)
	if err != nil {
		return fmt.Errorf("failed to mark log processing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check log update: %w", err)
	}
	if n == 0 {
		return storage.ErrConflict
	}
	return nil
}

// FinalizeLog writes the terminal outcome of one audit row. The status guard
// makes a second finalize attempt return ErrConflict, keeping the log
// append-only after this single permitted mutation.
func (s *SQLiteStorage) FinalizeLog(ctx context.Context, entry *types.ImportLog) error {
	if !entry.Status.IsFinal() {
		return fmt.Errorf("cannot finalize log in non-final status %s", entry.Status)
	}
	now := time.Now().UTC()
	if entry.CompletedAt == nil {
		entry.CompletedAt = &now
	}
	if entry.DurationMS == 0 && entry.StartedAt != nil {
		entry.DurationMS = entry.CompletedAt.Sub(*entry.StartedAt).Milliseconds()
	}
	detail, steps, err := encodeLogFields(entry)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE import_logs
		SET status = ?, reason = ?, detail = ?, steps = ?, design_id = ?, file_id = ?,
		    completed_at = ?, duration_ms = ?
		WHERE item_id = ? AND status IN (?, ?)
	`,
		entry.Status, entry.Reason, detail, steps, entry.DesignID, entry.FileID,
		nullableTime(entry.CompletedAt), entry.DurationMS,
		entry.ItemID, types.LogPending, types.LogProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check log finalize: %w", err)
	}
	if n == 0 {
		return storage.ErrConflict
	}
	return nil
}

// ListLogs returns a job's audit rows in scan order
func (s *SQLiteStorage) ListLogs(ctx context.Context, jobID string, filter storage.LogFilter) ([]*types.ImportLog, error) {
	query := `SELECT ` + logColumns + ` FROM import_logs WHERE job_id = ?`
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
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	defer rows.Close()

	var logs []*types.ImportLog
	for rows.Next() {
		entry, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// LogSummary aggregates the audit rows for one job. Computed from row-level
// truth on every call rather than stored.
func (s *SQLiteStorage) LogSummary(ctx context.Context, jobID string) (*types.LogSummary, error) {
	summary := &types.LogSummary{ByStatus: make(map[types.LogStatus]int)}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(size_bytes), 0), COALESCE(AVG(duration_ms), 0)
		FROM import_logs WHERE job_id = ?
		GROUP BY status
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize logs: %w", err)
	}
	defer rows.Close()

	var durationWeighted float64
	for rows.Next() {
		var status types.LogStatus
		var count int
		var bytes int64
		var avgMS float64
		if err := rows.Scan(&status, &count, &bytes, &avgMS); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		summary.ByStatus[status] = count
		summary.Total += count
		summary.TotalBytes += bytes
		durationWeighted += avgMS * float64(count)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if summary.Total > 0 {
		summary.AvgDurationMS = int64(durationWeighted / float64(summary.Total))
	}
	return summary, nil
}

func encodeLogFields(entry *types.ImportLog) (detail, steps string, err error) {
	detail = "{}"
	if entry.Detail != nil {
		b, err := json.Marshal(entry.Detail)
		if err != nil {
			return "", "", fmt.Errorf("failed to encode log detail: %w", err)
		}
		detail = string(b)
	}
	steps = "[]"
	if entry.Steps != nil {
		b, err := json.Marshal(entry.Steps)
		if err != nil {
			return "", "", fmt.Errorf("failed to encode log steps: %w", err)
		}
		steps = string(b)
	}
	return detail, steps, nil
}

func scanLog(r rowScanner) (*types.ImportLog, error) {
	var entry types.ImportLog
	var detail, steps string
	var startedAt, completedAt sql.NullTime

	err := r.Scan(
		&entry.ID, &entry.JobID, &entry.ItemID, &entry.Filename, &entry.SourcePath, &entry.SizeBytes,
		&entry.Status, &entry.Reason, &detail, &steps, &entry.DesignID, &entry.FileID,
		&startedAt, &completedAt, &entry.DurationMS, &entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if detail != "" && detail != "{}" {
		if err := json.Unmarshal([]byte(detail), &entry.Detail); err != nil {
			return nil, fmt.Errorf("failed to decode log detail: %w", err)
		}
	}
	if steps != "" && steps != "[]" {
		if err := json.Unmarshal([]byte(steps), &entry.Steps); err != nil {
			return nil, fmt.Errorf("failed to decode log steps: %w", err)
		}
	}
	if startedAt.Valid {
		entry.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		entry.CompletedAt = &completedAt.Time
	}
	return &entry, nil
}
