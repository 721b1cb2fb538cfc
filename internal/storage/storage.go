// Package storage defines the persistence contract for import jobs, items,
// audit logs, detected projects, and the design catalog the duplicate
// detector indexes.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/carvelab/ingest/internal/types"
)

// ErrNotFound is returned by Get* methods when the record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateHash is returned by CreateDesignFile when another file with
// the same content hash already exists. The unique constraint behind it is
// the authoritative de-duplication gate; callers treat this as a duplicate
// classification, not a failure.
var ErrDuplicateHash = errors.New("content hash already exists")

// ErrConflict is returned by compare-and-set updates when the record was not
// in the expected state, e.g. two dispatchers racing to start one job.
var ErrConflict = errors.New("record not in expected state")

// JobFilter narrows ListJobs
type JobFilter struct {
	Status types.JobStatus // empty matches all
	Limit  int
}

// ItemFilter narrows ListItems
type ItemFilter struct {
	Status types.ItemStatus // empty matches all
	Limit  int
}

// LogFilter narrows ListLogs
type LogFilter struct {
	Status types.LogStatus // empty matches all
	Limit  int
}

// Storage is the persistence interface for the import pipeline
type Storage interface {
	// Jobs
	CreateJob(ctx context.Context, job *types.ImportJob) error
	GetJob(ctx context.Context, id string) (*types.ImportJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*types.ImportJob, error)
	// TransitionJob moves a job from one status to another atomically,
	// returning ErrConflict when the job is no longer in the from status.
	TransitionJob(ctx context.Context, id string, from, to types.JobStatus) error
	// UpdateJobCounters persists the running counters. Called only from the
	// orchestrator's single collector loop, so counter writes never race.
	UpdateJobCounters(ctx context.Context, job *types.ImportJob) error
	SetJobError(ctx context.Context, id, message string) error
	// DueScheduledJobs returns pending jobs whose scheduled time has passed.
	DueScheduledJobs(ctx context.Context, now time.Time) ([]*types.ImportJob, error)

	// Items
	CreateItems(ctx context.Context, items []*types.ImportItem) error
	GetItem(ctx context.Context, id string) (*types.ImportItem, error)
	ListItems(ctx context.Context, jobID string, filter ItemFilter) ([]*types.ImportItem, error)
	// ClaimItem transitions pending -> processing, recording the start time.
	// Returns ErrConflict if the item is not pending.
	ClaimItem(ctx context.Context, id string, startedAt time.Time) error
	// FinalizeItem writes an item's terminal state and result fields.
	FinalizeItem(ctx context.Context, item *types.ImportItem) error
	// ReclaimStaleItems returns items stuck in processing since before the
	// cutoff to pending so a resumed job can retry them. Returns the count.
	ReclaimStaleItems(ctx context.Context, jobID string, cutoff time.Time) (int, error)

	// Checkpoints
	SaveCheckpoint(ctx context.Context, jobID string, itemsCompleted int, data any) error
	GetCheckpoint(ctx context.Context, jobID string) (itemsCompleted int, data string, err error)

	// Audit log
	CreateLogs(ctx context.Context, logs []*types.ImportLog) error
	MarkLogProcessing(ctx context.Context, itemID string, startedAt time.Time) error
	// FinalizeLog performs the one permitted mutation after the processing
	// transition. A second finalize attempt returns ErrConflict.
	FinalizeLog(ctx context.Context, entry *types.ImportLog) error
	ListLogs(ctx context.Context, jobID string, filter LogFilter) ([]*types.ImportLog, error)
	// LogSummary aggregates counts, bytes and durations from the log rows.
	LogSummary(ctx context.Context, jobID string) (*types.LogSummary, error)

	// Detected projects
	SaveProjects(ctx context.Context, jobID string, projects []types.DetectedProject) error
	GetProjects(ctx context.Context, jobID string) ([]types.DetectedProject, error)
	UpdateProject(ctx context.Context, jobID string, project *types.DetectedProject) error

	// Design catalog (known-hash index)
	FindFileByContentHash(ctx context.Context, hash string) (*types.DesignFile, error)
	ListPhashedFiles(ctx context.Context) ([]*types.DesignFile, error)
	// FindActiveFileBySourcePath supports version tracking: re-importing a
	// changed file at a known source path creates a new version.
	FindActiveFileBySourcePath(ctx context.Context, sourcePath string) (*types.DesignFile, error)
	CreateDesign(ctx context.Context, design *types.Design) error
	GetDesign(ctx context.Context, id string) (*types.Design, error)
	GetDesignBySlug(ctx context.Context, slug string) (*types.Design, error)
	CreateDesignFile(ctx context.Context, file *types.DesignFile) error
	// SetCurrentVersion points the design at fileID and deactivates other
	// versions.
	SetCurrentVersion(ctx context.Context, designID, fileID string) error

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path. The special value ":memory:"
	// creates an in-memory database (useful for tests).
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: ".ingest/ingest.db",
	}
}
