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

const jobColumns = `id, source_type, source_path, total_files, options, status,
       files_scanned, files_processed, files_succeeded, files_failed, files_skipped,
       error_message, scheduled_at, started_at, completed_at, estimated_done,
       created_at, updated_at`

// CreateJob inserts a new import job
func (s *SQLiteStorage) CreateJob(ctx context.Context, job *types.ImportJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = types.JobPending
	}

	options, err := json.Marshal(job.Options)
	if err != nil {
		return fmt.Errorf("failed to encode options: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO import_jobs (
			id, source_type, source_path, total_files, options, status,
			files_scanned, files_processed, files_succeeded, files_failed, files_skipped,
			error_message, scheduled_at, started_at, completed_at, estimated_done,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID, job.SourceType, job.SourcePath, job.TotalFiles, string(options), job.Status,
		job.FilesScanned, job.FilesProcessed, job.FilesSucceeded, job.FilesFailed, job.FilesSkipped,
		job.ErrorMessage, nullableTime(job.ScheduledAt), nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt), nullableTime(job.EstimatedDone),
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID
func (s *SQLiteStorage) GetJob(ctx context.Context, id string) (*types.ImportJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM import_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs matching the filter, most recent first
func (s *SQLiteStorage) ListJobs(ctx context.Context, filter storage.JobFilter) ([]*types.ImportJob, error) {
	query := `SELECT ` + jobColumns + ` FROM import_jobs`
	var args []interface{}
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*types.ImportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// TransitionJob moves a job between statuses atomically. The WHERE clause on
// the current status is the compare half of the compare-and-set.
func (s *SQLiteStorage) TransitionJob(ctx context.Context, id string, from, to types.JobStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("invalid job transition %s -> %s", from, to)
	}

	now := time.Now().UTC()
	set := `status = ?, updated_at = ?`
	args := []interface{}{to, now}
	if to == types.JobProcessing && from != types.JobPaused {
		set += `, started_at = COALESCE(started_at, ?)`
		args = append(args, now)
	}
	if to.IsTerminal() {
		set += `, completed_at = ?`
		args = append(args, now)
	}
	args = append(args, id, from)

	res, err := s.db.ExecContext(ctx, `UPDATE import_jobs SET `+set+` WHERE id = ? AND status = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to transition job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check transition result: %w", err)
	}
	if n == 0 {
		return storage.ErrConflict
	}
	return nil
}

// UpdateJobCounters persists the running progress counters
func (s *SQLiteStorage) UpdateJobCounters(ctx context.Context, job *types.ImportJob) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE import_jobs
		SET total_files = ?, files_scanned = ?, files_processed = ?,
		    files_succeeded = ?, files_failed = ?, files_skipped = ?,
		    estimated_done = ?, updated_at = ?
		WHERE id = ?
	`,
		job.TotalFiles, job.FilesScanned, job.FilesProcessed,
		job.FilesSucceeded, job.FilesFailed, job.FilesSkipped,
		nullableTime(job.EstimatedDone), time.Now().UTC(), job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job counters: %w", err)
	}
	return nil
}

// SetJobError records the failure message on a job
func (s *SQLiteStorage) SetJobError(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE import_jobs SET error_message = ?, updated_at = ? WHERE id = ?
	`, message, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set job error: %w", err)
	}
	return nil
}

// DueScheduledJobs returns pending jobs whose scheduled time has passed
func (s *SQLiteStorage) DueScheduledJobs(ctx context.Context, now time.Time) ([]*types.ImportJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM import_jobs
		WHERE status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?
		ORDER BY scheduled_at ASC
	`, types.JobPending, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*types.ImportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(r rowScanner) (*types.ImportJob, error) {
	var job types.ImportJob
	var options string
	var scheduledAt, startedAt, completedAt, estimatedDone sql.NullTime

	err := r.Scan(
		&job.ID, &job.SourceType, &job.SourcePath, &job.TotalFiles, &options, &job.Status,
		&job.FilesScanned, &job.FilesProcessed, &job.FilesSucceeded, &job.FilesFailed, &job.FilesSkipped,
		&job.ErrorMessage, &scheduledAt, &startedAt, &completedAt, &estimatedDone,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(options), &job.Options); err != nil {
		return nil, fmt.Errorf("failed to decode options: %w", err)
	}
	if scheduledAt.Valid {
		job.ScheduledAt = &scheduledAt.Time
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	if estimatedDone.Valid {
		job.EstimatedDone = &estimatedDone.Time
	}
	return &job, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
