package orchestrator

import (
	"archive/zip"
	"compress/flate"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carvelab/ingest/internal/blobstore"
	"github.com/carvelab/ingest/internal/deduplication"
	"github.com/carvelab/ingest/internal/fingerprint"
	"github.com/carvelab/ingest/internal/preview"
	"github.com/carvelab/ingest/internal/scanner"
	"github.com/carvelab/ingest/internal/storage"
	"github.com/carvelab/ingest/internal/types"
)

// itemResult is one attempt's outcome before finalization.
type itemResult struct {
	status      types.ItemStatus
	contentHash string
	phash       string
	designID    string
	fileID      string
	duplicateOf string
	similarity  int
	steps       []string
	detail      map[string]any
}

// permanentError marks a failure another attempt cannot fix: corrupt or
// missing input, or an upload that already exhausted its own backoff.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// isContentError reports whether err means the bytes themselves are bad.
func isContentError(err error) bool {
	var corrupt flate.CorruptInputError
	return errors.Is(err, zip.ErrChecksum) ||
		errors.Is(err, zip.ErrFormat) ||
		errors.Is(err, zip.ErrAlgorithm) ||
		errors.Is(err, fs.ErrNotExist) ||
		errors.As(err, &corrupt)
}

func readError(err error) error {
	wrapped := fmt.Errorf("read failed: %w", err)
	if isContentError(err) {
		return &permanentError{wrapped}
	}
	return wrapped
}

// processItem runs one file through the pipeline and finalizes its item and
// audit row. Returns the terminal status and whether the caller should count
// it (false when another run claimed or finalized the item first).
func (o *Orchestrator) processItem(ctx context.Context, job *types.ImportJob, src scanner.Source, item *types.ImportItem, resolver *deduplication.Resolver, memIndex *deduplication.MemoryIndex) (types.ItemStatus, bool) {
	startedAt := time.Now()
	if err := o.store.ClaimItem(ctx, item.ID, startedAt); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return "", false
		}
		fmt.Printf("Warning: failed to claim item %s: %v\n", item.ID, err)
		return "", false
	}
	if err := o.store.MarkLogProcessing(ctx, item.ID, startedAt); err != nil {
		fmt.Printf("Warning: audit row for item %s not marked: %v\n", item.ID, err)
	}

	opts := job.Options
	var result *itemResult
	var lastErr error
	attempts := 0
	for attempts <= opts.MaxRetries {
		attempts++
		result, lastErr = o.attemptItem(ctx, job, src, item, resolver, memIndex)
		if lastErr == nil {
			break
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) || ctx.Err() != nil {
			break
		}
	}

	if lastErr != nil {
		status := types.ItemFailed
		if opts.SkipFailedFiles {
			status = types.ItemSkipped
		}
		result = &itemResult{
			status: status,
			detail: map[string]any{"error": lastErr.Error(), "attempts": attempts},
		}
		item.ErrorMessage = lastErr.Error()
		item.RetryCount = attempts - 1
	}

	if err := o.finalize(ctx, item, result, startedAt); err != nil {
		// Another run finalized this item; its outcome counts there.
		return "", false
	}
	return result.status, true
}

// finalize writes the item's terminal state and the single permitted audit
// log mutation. A conflict means the item was taken over by another run;
// other persistence warnings must not undo the work already done.
func (o *Orchestrator) finalize(ctx context.Context, item *types.ImportItem, result *itemResult, startedAt time.Time) error {
	item.Status = result.status
	item.ContentHash = result.contentHash
	item.Phash = result.phash
	item.DesignID = result.designID
	item.FileID = result.fileID
	item.DuplicateOf = result.duplicateOf
	item.Similarity = result.similarity
	if err := o.store.FinalizeItem(ctx, item); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return err
		}
		fmt.Printf("Warning: failed to finalize item %s: %v\n", item.ID, err)
	}

	entry := &types.ImportLog{
		ItemID:      item.ID,
		Status:      logStatusFor(result.status),
		Reason:      logReason(item),
		Detail:      result.detail,
		Steps:       result.steps,
		DesignID:    result.designID,
		FileID:      result.fileID,
		StartedAt:   &startedAt,
		DurationMS:  time.Since(startedAt).Milliseconds(),
	}
	if err := o.store.FinalizeLog(ctx, entry); err != nil {
		fmt.Printf("Warning: failed to finalize audit row for %s: %v\n", item.ID, err)
	}
	return nil
}

// attemptItem is one try at the full per-file flow:
// read, fingerprint, dedupe, design record, upload, catalog.
func (o *Orchestrator) attemptItem(ctx context.Context, job *types.ImportJob, src scanner.Source, item *types.ImportItem, resolver *deduplication.Resolver, memIndex *deduplication.MemoryIndex) (*itemResult, error) {
	result := &itemResult{detail: map[string]any{}}
	opts := job.Options

	// Read
	rc, err := src.Open(item.SourcePath)
	if err != nil {
		return nil, readError(err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return nil, readError(err)
	}
	result.steps = append(result.steps, "read")

	// Fingerprint. Sidecar discovery and phash are best effort.
	sidecar, err := preview.FindSidecar(src, item.SourcePath)
	if err != nil {
		sidecar = nil
	}
	var previewData []byte
	if sidecar != nil {
		previewData = sidecar.Data
	}
	fp := fingerprint.Compute(data, previewData)
	result.contentHash = fp.ContentHash
	result.phash = fp.Phash
	result.steps = append(result.steps, "fingerprint")

	// Duplicate resolution (fast path)
	match, err := resolver.Resolve(ctx, fp.ContentHash, fp.Phash)
	if err != nil {
		return nil, fmt.Errorf("duplicate check failed: %w", err)
	}
	result.steps = append(result.steps, "dedupe")
	if match != nil {
		return duplicateResult(result, match), nil
	}

	// Version tracking: a known source path updates its design instead of
	// creating a new one.
	existing, err := o.store.FindActiveFileBySourcePath(ctx, item.SourcePath)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("version lookup failed: %w", err)
	}

	var design *types.Design
	version := 1
	if existing != nil {
		design, err = o.store.GetDesign(ctx, existing.DesignID)
		if err != nil {
			return nil, fmt.Errorf("design lookup failed: %w", err)
		}
		version = existing.VersionNumber + 1
		result.detail["new_version_of"] = existing.ID
	} else {
		design, err = o.createDesign(ctx, job, item, sidecar)
		if err != nil {
			return nil, err
		}
		result.steps = append(result.steps, "metadata")
	}

	// Upload design bytes, then the preview sidecar if one exists.
	// Uploads carry their own bounded backoff; the outer attempt loop must
	// not multiply it.
	key := blobstore.FileKey(design.ID, version, "."+item.FileType)
	if err := blobstore.PutRetry(ctx, o.blobs, key, data, contentTypeFor(item.FileType), opts.MaxRetries+1); err != nil {
		return nil, &permanentError{err}
	}
	if sidecar != nil && opts.GeneratePreviews && version == 1 {
		previewKey := blobstore.PreviewKey(design.ID, sidecar.Extension)
		if err := blobstore.PutRetry(ctx, o.blobs, previewKey, sidecar.Data, sidecar.ContentType(), opts.MaxRetries+1); err != nil {
			return nil, &permanentError{err}
		}
	}
	result.steps = append(result.steps, "upload")

	// Catalog. The unique hash constraint is the authoritative duplicate
	// gate; losing to it here is a duplicate outcome, not an error.
	file := &types.DesignFile{
		ID:            uuid.NewString(),
		DesignID:      design.ID,
		StoragePath:   key,
		FileType:      item.FileType,
		SizeBytes:     item.SizeBytes,
		ContentHash:   fp.ContentHash,
		PreviewPhash:  fp.Phash,
		SourcePath:    item.SourcePath,
		VersionNumber: version,
		IsActive:      true,
	}
	err = o.store.CreateDesignFile(ctx, file)
	if errors.Is(err, storage.ErrDuplicateHash) {
		winner, lookupErr := o.store.FindFileByContentHash(ctx, fp.ContentHash)
		if lookupErr != nil {
			return nil, fmt.Errorf("duplicate winner lookup failed: %w", lookupErr)
		}
		return duplicateResult(result, &deduplication.Match{
			Type:       deduplication.MatchExact,
			FileID:     winner.ID,
			DesignID:   winner.DesignID,
			Hash:       fp.ContentHash,
			Similarity: 100,
		}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog insert failed: %w", err)
	}
	if err := o.store.SetCurrentVersion(ctx, design.ID, file.ID); err != nil {
		return nil, fmt.Errorf("version pointer update failed: %w", err)
	}

	// Make this file visible to later duplicate checks in the same job.
	memIndex.Add(deduplication.KnownFile{
		FileID:      file.ID,
		DesignID:    design.ID,
		ContentHash: fp.ContentHash,
		Phash:       fp.Phash,
	})
	result.steps = append(result.steps, "record")

	result.status = types.ItemCompleted
	result.designID = design.ID
	result.fileID = file.ID
	result.detail["version"] = version
	return result, nil
}

// createDesign builds the design record for new content: metadata (vision
// when enabled and a preview exists, filename fallback otherwise), slug, and
// the catalog row. Metadata failures degrade to the fallback, never fail the
// item.
func (o *Orchestrator) createDesign(ctx context.Context, job *types.ImportJob, item *types.ImportItem, sidecar *preview.Sidecar) (*types.Design, error) {
	projects, err := o.store.GetProjects(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	projectName := ""
	for _, p := range projects {
		if p.ID == item.ProjectID {
			projectName = p.DisplayName()
			break
		}
	}

	req := preview.MetadataRequest{
		ProjectName: projectName,
		Filename:    item.Filename,
		FileType:    item.FileType,
	}
	if job.Options.GenerateAIMetadata {
		req.Preview = sidecar
	}

	meta, err := o.metadata.Generate(ctx, req)
	if err != nil {
		meta, err = preview.FilenameGenerator{}.Generate(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("metadata generation failed: %w", err)
		}
	}

	design := &types.Design{
		ID:          uuid.NewString(),
		Title:       meta.Title,
		Description: meta.Description,
		Metadata:    *meta,
		IsPublic:    job.Options.AutoPublish,
	}
	if sidecar != nil && job.Options.GeneratePreviews {
		design.PreviewPath = blobstore.PreviewKey(design.ID, sidecar.Extension)
	}

	// Slug collisions get a numeric suffix, then a random one.
	base := preview.Slugify(meta.Title)
	if base == "" {
		base = "design"
	}
	for i := 0; ; i++ {
		switch i {
		case 0:
			design.Slug = base
		case 5:
			design.Slug = base + "-" + design.ID[:8]
		default:
			design.Slug = fmt.Sprintf("%s-%d", base, i+1)
		}
		err = o.store.CreateDesign(ctx, design)
		if err == nil {
			return design, nil
		}
		if !errors.Is(err, storage.ErrConflict) || i >= 5 {
			return nil, fmt.Errorf("design insert failed: %w", err)
		}
	}
}

func duplicateResult(result *itemResult, match *deduplication.Match) *itemResult {
	result.status = types.ItemDuplicate
	result.duplicateOf = match.FileID
	result.similarity = match.Similarity
	result.designID = match.DesignID
	result.detail["duplicate_type"] = string(match.Type)
	result.detail["matched_hash"] = match.Hash
	if match.Type == deduplication.MatchNear {
		result.detail["distance"] = match.Distance
	}
	return result
}

func logStatusFor(status types.ItemStatus) types.LogStatus {
	switch status {
	case types.ItemCompleted:
		return types.LogSucceeded
	case types.ItemFailed:
		return types.LogFailed
	case types.ItemSkipped:
		return types.LogSkipped
	case types.ItemDuplicate:
		return types.LogDuplicate
	}
	return types.LogFailed
}

func logReason(item *types.ImportItem) string {
	switch item.Status {
	case types.ItemDuplicate:
		return fmt.Sprintf("duplicate of file %s (similarity %d%%)", item.DuplicateOf, item.Similarity)
	case types.ItemFailed, types.ItemSkipped:
		return item.ErrorMessage
	}
	return ""
}

func contentTypeFor(fileType string) string {
	switch strings.ToLower(fileType) {
	case "svg":
		return "image/svg+xml"
	case "pdf":
		return "application/pdf"
	case "ai", "eps":
		return "application/postscript"
	case "dxf":
		return "image/vnd.dxf"
	}
	return "application/octet-stream"
}
