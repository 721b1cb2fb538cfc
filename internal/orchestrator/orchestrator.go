// Package orchestrator drives import jobs end to end: scan, cluster, item
// fan-out across a bounded worker pool, duplicate resolution, upload, and
// the per-file audit trail. Jobs are durable; a crashed or paused run resumes
// from persisted item state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carvelab/ingest/internal/blobstore"
	"github.com/carvelab/ingest/internal/preview"
	"github.com/carvelab/ingest/internal/storage"
	"github.com/carvelab/ingest/internal/types"
)

// Config holds orchestrator dependencies
type Config struct {
	Store    storage.Storage
	Blobs    blobstore.Store
	Metadata preview.Generator // nil falls back to filename-derived metadata
}

// Orchestrator processes import jobs
type Orchestrator struct {
	store    storage.Storage
	blobs    blobstore.Store
	metadata preview.Generator
}

// New creates an orchestrator
func New(cfg *Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	metadata := cfg.Metadata
	if metadata == nil {
		metadata = preview.FilenameGenerator{}
	}
	return &Orchestrator{
		store:    cfg.Store,
		blobs:    cfg.Blobs,
		metadata: metadata,
	}, nil
}

// CreateJob registers a new import job in pending state. Processing options
// are snapshotted onto the job; later default changes never affect it.
func (o *Orchestrator) CreateJob(ctx context.Context, sourceType types.SourceType, sourcePath string, opts types.ProcessingOptions, scheduledAt *time.Time) (*types.ImportJob, error) {
	job := &types.ImportJob{
		ID:          uuid.NewString(),
		SourceType:  sourceType,
		SourcePath:  sourcePath,
		Options:     opts,
		Status:      types.JobPending,
		ScheduledAt: scheduledAt,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// Pause asks a processing job to stop dispatching new items. In-flight items
// finish and are counted; the rest stay pending for resume.
func (o *Orchestrator) Pause(ctx context.Context, jobID string) error {
	if err := o.store.TransitionJob(ctx, jobID, types.JobProcessing, types.JobPaused); err != nil {
		return fmt.Errorf("failed to pause job: %w", err)
	}
	return nil
}

// Cancel terminally stops a job from any non-terminal state. Like pause,
// in-flight items are allowed to finish.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("job is already %s", job.Status)
	}
	if err := o.store.TransitionJob(ctx, jobID, job.Status, types.JobCancelled); err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	return nil
}

// Resume continues a paused job, or one left in processing by a crashed run.
func (o *Orchestrator) Resume(ctx context.Context, jobID string) error {
	err := o.store.TransitionJob(ctx, jobID, types.JobPaused, types.JobProcessing)
	if err != nil {
		if !errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("failed to resume job: %w", err)
		}
		job, gerr := o.store.GetJob(ctx, jobID)
		if gerr != nil {
			return gerr
		}
		// A killed run leaves the job processing; Run picks it up from its
		// persisted items.
		if job.Status != types.JobProcessing {
			return fmt.Errorf("job %s is %s and cannot be resumed: %w", jobID, job.Status, storage.ErrConflict)
		}
	}
	return o.Run(ctx, jobID)
}
