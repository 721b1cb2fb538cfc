package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/carvelab/ingest/internal/cluster"
	"github.com/carvelab/ingest/internal/deduplication"
	"github.com/carvelab/ingest/internal/scanner"
	"github.com/carvelab/ingest/internal/storage"
	"github.com/carvelab/ingest/internal/types"
)

// Run processes a job to completion, pause, or cancellation. Accepts jobs in
// pending (fresh), paused (resume), or processing (crash recovery) state.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	src, err := scanner.ForJob(job.SourceType, job.SourcePath)
	if err != nil {
		return err
	}
	return o.RunWithSource(ctx, jobID, src)
}

// RunWithSource is Run with an explicit source, for upload jobs whose files
// are staged outside the job's source path.
func (o *Orchestrator) RunWithSource(ctx context.Context, jobID string, src scanner.Source) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	switch job.Status {
	case types.JobPending:
		if err := o.scanPhase(ctx, job, src); err != nil {
			return err
		}
	case types.JobPaused:
		if err := o.store.TransitionJob(ctx, jobID, types.JobPaused, types.JobProcessing); err != nil {
			return fmt.Errorf("failed to resume job: %w", err)
		}
	case types.JobProcessing:
		// Crash recovery: fall through to processing.
	default:
		return fmt.Errorf("job %s is %s and cannot be run", jobID, job.Status)
	}

	// Re-read so counters and status reflect the scan phase or prior run.
	job, err = o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	return o.processPhase(ctx, job, src)
}

// scanPhase enumerates the source, detects projects, and pre-populates items
// and pending audit rows. A scan failure fails the whole job.
func (o *Orchestrator) scanPhase(ctx context.Context, job *types.ImportJob, src scanner.Source) error {
	if err := o.store.TransitionJob(ctx, job.ID, types.JobPending, types.JobScanning); err != nil {
		return fmt.Errorf("failed to start scan: %w", err)
	}

	files, err := src.Scan(ctx)
	if err != nil {
		return o.failJob(ctx, job.ID, types.JobScanning, fmt.Errorf("scan failed: %w", err))
	}

	var projects []types.DetectedProject
	if job.Options.DetectProjects {
		cfg := cluster.DefaultConfig()
		cfg.CrossFolder = job.Options.CrossFolder
		if job.Options.ConfidenceThreshold > 0 {
			cfg.ConfidenceThreshold = job.Options.ConfidenceThreshold
		}
		projects = cluster.New(cfg).Detect(files)
		if err := o.store.SaveProjects(ctx, job.ID, projects); err != nil {
			return o.failJob(ctx, job.ID, types.JobScanning, err)
		}
	}

	// Project linkage by file path
	type membership struct {
		projectID string
		name      string
		role      types.FileRole
	}
	byPath := make(map[string]membership, len(files))
	for _, p := range projects {
		for _, f := range p.Files {
			byPath[f.Path] = membership{
				projectID: p.ID,
				name:      p.DisplayName(),
				role:      cluster.DetermineFileRole(f, p.PrimaryFile, p.Files),
			}
		}
	}

	var items []*types.ImportItem
	var logs []*types.ImportLog
	for _, f := range files {
		if !scanner.SupportedExtensions[f.Extension] {
			continue // manifests ride along for detection only
		}
		item := &types.ImportItem{
			ID:         uuid.NewString(),
			JobID:      job.ID,
			SourcePath: f.Path,
			Filename:   f.Name,
			FileType:   trimDot(f.Extension),
			SizeBytes:  f.SizeBytes,
			Status:     types.ItemPending,
		}
		if m, ok := byPath[f.Path]; ok {
			item.ProjectID = m.projectID
			item.Role = m.role
		}
		items = append(items, item)
		logs = append(logs, &types.ImportLog{
			ID:         uuid.NewString(),
			JobID:      job.ID,
			ItemID:     item.ID,
			Filename:   f.Name,
			SourcePath: f.Path,
			SizeBytes:  f.SizeBytes,
			Status:     types.LogPending,
		})
	}

	if err := o.store.CreateItems(ctx, items); err != nil {
		return o.failJob(ctx, job.ID, types.JobScanning, err)
	}
	if err := o.store.CreateLogs(ctx, logs); err != nil {
		return o.failJob(ctx, job.ID, types.JobScanning, err)
	}

	job.FilesScanned = len(files)
	job.TotalFiles = len(items)
	if err := o.store.UpdateJobCounters(ctx, job); err != nil {
		return o.failJob(ctx, job.ID, types.JobScanning, err)
	}

	fmt.Printf("Scan complete: %d files, %d importable, %d projects\n",
		len(files), len(items), len(projects))

	if err := o.store.TransitionJob(ctx, job.ID, types.JobScanning, types.JobProcessing); err != nil {
		return fmt.Errorf("failed to start processing: %w", err)
	}
	return nil
}

// staleItemAfter is how long an item may sit in processing before a new run
// treats it as stranded by a crash rather than in flight on another worker.
const staleItemAfter = 15 * time.Minute

// processPhase works the job's pending items through the bounded worker pool.
func (o *Orchestrator) processPhase(ctx context.Context, job *types.ImportJob, src scanner.Source) error {
	// Items claimed before the cutoff were stranded by a crash. Anything
	// claimed more recently may still be in flight on a concurrent run and
	// stays claimed; its owner finalizes and counts it.
	reclaimed, err := o.store.ReclaimStaleItems(ctx, job.ID, time.Now().Add(-staleItemAfter))
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		fmt.Printf("Reclaimed %d stranded items\n", reclaimed)
	}

	items, err := o.store.ListItems(ctx, job.ID, storage.ItemFilter{Status: types.ItemPending})
	if err != nil {
		return err
	}

	resolver, memIndex, err := o.newResolver(ctx, job.Options)
	if err != nil {
		return err
	}

	opts := job.Options
	if err := opts.Validate(); err != nil {
		return err
	}

	results := make(chan types.ItemStatus, opts.Concurrency)
	collectorDone := make(chan struct{})
	go o.collect(ctx, job, opts.CheckpointInterval, results, collectorDone)

	sem := semaphore.NewWeighted(int64(opts.Concurrency))
	var g errgroup.Group
	interrupted := false

	for _, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			interrupted = true
			break
		}
		// Pause and cancel take effect here: stop dispatching, let the
		// in-flight items finish.
		status, serr := o.jobStatus(ctx, job.ID)
		if serr != nil || status != types.JobProcessing {
			sem.Release(1)
			interrupted = true
			break
		}

		item := item
		g.Go(func() error {
			defer sem.Release(1)
			outcome, counted := o.processItem(ctx, job, src, item, resolver, memIndex)
			if counted {
				results <- outcome
			}
			return nil
		})
	}

	_ = g.Wait()
	close(results)
	<-collectorDone

	if interrupted {
		status, serr := o.jobStatus(ctx, job.ID)
		if serr == nil {
			fmt.Printf("Job %s stopped while %s\n", job.ID, status)
		}
		return ctx.Err()
	}

	if err := job.ReconcileCounters(); err != nil {
		return o.failJob(ctx, job.ID, types.JobProcessing, err)
	}
	if err := o.store.TransitionJob(ctx, job.ID, types.JobProcessing, types.JobCompleted); err != nil {
		// Paused or cancelled between the last dispatch and here.
		if errors.Is(err, storage.ErrConflict) {
			return nil
		}
		return err
	}

	fmt.Printf("Job %s complete: %d succeeded, %d failed, %d skipped\n",
		job.ID, job.FilesSucceeded, job.FilesFailed, job.FilesSkipped)
	return nil
}

// collect is the single writer of job counters and checkpoints. Serializing
// updates here keeps counters monotonic without row locking.
func (o *Orchestrator) collect(ctx context.Context, job *types.ImportJob, checkpointInterval int, results <-chan types.ItemStatus, done chan<- struct{}) {
	defer close(done)

	sessionStart := time.Now()
	sessionProcessed := 0
	sinceCheckpoint := 0

	for outcome := range results {
		job.FilesProcessed++
		switch outcome {
		case types.ItemCompleted:
			job.FilesSucceeded++
		case types.ItemFailed:
			job.FilesFailed++
		case types.ItemSkipped, types.ItemDuplicate:
			// Duplicates land in the skipped bucket.
			job.FilesSkipped++
		}

		sessionProcessed++
		if remaining := job.TotalFiles - job.FilesProcessed; remaining > 0 && sessionProcessed > 0 {
			perItem := time.Since(sessionStart) / time.Duration(sessionProcessed)
			eta := time.Now().Add(perItem * time.Duration(remaining))
			job.EstimatedDone = &eta
		} else {
			job.EstimatedDone = nil
		}

		if err := o.store.UpdateJobCounters(ctx, job); err != nil {
			fmt.Printf("Warning: failed to update counters for %s: %v\n", job.ID, err)
		}

		sinceCheckpoint++
		if sinceCheckpoint >= checkpointInterval {
			o.checkpoint(ctx, job)
			sinceCheckpoint = 0
		}
	}
	if sinceCheckpoint > 0 {
		o.checkpoint(ctx, job)
	}
}

func (o *Orchestrator) checkpoint(ctx context.Context, job *types.ImportJob) {
	data := map[string]int{
		"succeeded": job.FilesSucceeded,
		"failed":    job.FilesFailed,
		"skipped":   job.FilesSkipped,
	}
	if err := o.store.SaveCheckpoint(ctx, job.ID, job.FilesProcessed, data); err != nil {
		fmt.Printf("Warning: failed to checkpoint %s: %v\n", job.ID, err)
	}
}

// newResolver builds the duplicate resolver: exact lookups consult memory
// then storage, perceptual candidates come from the memory index seeded with
// every stored phash.
func (o *Orchestrator) newResolver(ctx context.Context, opts types.ProcessingOptions) (*deduplication.Resolver, *deduplication.MemoryIndex, error) {
	stored, err := o.store.ListPhashedFiles(ctx)
	if err != nil {
		return nil, nil, err
	}
	seed := make([]deduplication.KnownFile, 0, len(stored))
	for _, f := range stored {
		seed = append(seed, deduplication.KnownFile{
			FileID:      f.ID,
			DesignID:    f.DesignID,
			ContentHash: f.ContentHash,
			Phash:       f.PreviewPhash,
		})
	}
	memIndex := deduplication.NewMemoryIndex(seed)

	cfg := deduplication.DefaultConfig()
	cfg.Enabled = opts.DetectDuplicates
	cfg.ExactOnly = opts.ExactOnly
	if opts.SimilarityThreshold > 0 {
		cfg.SimilarityThreshold = opts.SimilarityThreshold
	}

	resolver, err := deduplication.NewResolver(&combinedIndex{mem: memIndex, store: o.store}, cfg)
	if err != nil {
		return nil, nil, err
	}
	return resolver, memIndex, nil
}

// combinedIndex answers exact lookups from memory first, then the design
// catalog, so files ingested by earlier jobs are matched without preloading
// every content hash.
type combinedIndex struct {
	mem   *deduplication.MemoryIndex
	store storage.Storage
}

func (i *combinedIndex) FindByContentHash(ctx context.Context, hash string) (*deduplication.KnownFile, error) {
	if k, err := i.mem.FindByContentHash(ctx, hash); err != nil || k != nil {
		return k, err
	}
	f, err := i.store.FindFileByContentHash(ctx, hash)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &deduplication.KnownFile{
		FileID:      f.ID,
		DesignID:    f.DesignID,
		ContentHash: f.ContentHash,
		Phash:       f.PreviewPhash,
	}, nil
}

func (i *combinedIndex) PhashCandidates(ctx context.Context) ([]deduplication.KnownFile, error) {
	return i.mem.PhashCandidates(ctx)
}

func (o *Orchestrator) jobStatus(ctx context.Context, jobID string) (types.JobStatus, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

// failJob records the error, moves the job to failed, and returns the error.
func (o *Orchestrator) failJob(ctx context.Context, jobID string, from types.JobStatus, cause error) error {
	if err := o.store.SetJobError(ctx, jobID, cause.Error()); err != nil {
		fmt.Printf("Warning: failed to record error for %s: %v\n", jobID, err)
	}
	if err := o.store.TransitionJob(ctx, jobID, from, types.JobFailed); err != nil {
		fmt.Printf("Warning: failed to fail job %s: %v\n", jobID, err)
	}
	return cause
}

func trimDot(ext string) string {
	if len(ext) > 0 && ext[0] == '.' {
		return ext[1:]
	}
	return ext
}
