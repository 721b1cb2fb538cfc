package orchestrator

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carvelab/ingest/internal/blobstore"
	"github.com/carvelab/ingest/internal/scanner"
	"github.com/carvelab/ingest/internal/storage"
	"github.com/carvelab/ingest/internal/storage/sqlite"
	"github.com/carvelab/ingest/internal/types"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, storage.Storage, *blobstore.LocalStore) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	blobs, err := blobstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	o, err := New(&Config{Store: store, Blobs: blobs})
	require.NoError(t, err)
	return o, store, blobs
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func serialOptions() types.ProcessingOptions {
	opts := types.DefaultProcessingOptions()
	opts.Concurrency = 1 // deterministic item order in tests
	opts.CheckpointInterval = 2
	return opts
}

func TestRunCompletesJob(t *testing.T) {
	o, store, blobs := newTestOrchestrator(t)
	ctx := context.Background()

	root := t.TempDir()
	writeFile(t, root, "coasters/celtic.svg", "<svg>celtic</svg>")
	writeFile(t, root, "signs/farmhouse.svg", "<svg>farmhouse</svg>")
	// Byte-identical to the first file, different path: exact duplicate.
	writeFile(t, root, "copies/celtic.svg", "<svg>celtic</svg>")

	job, err := o.CreateJob(ctx, types.SourceFolder, root, serialOptions(), nil)
	require.NoError(t, err)

	require.NoError(t, o.Run(ctx, job.ID))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, got.Status)
	assert.Equal(t, 3, got.TotalFiles)
	assert.Equal(t, 3, got.FilesProcessed)
	assert.Equal(t, 2, got.FilesSucceeded)
	assert.Equal(t, 0, got.FilesFailed)
	assert.Equal(t, 1, got.FilesSkipped) // the duplicate
	assert.NoError(t, got.ReconcileCounters())
	require.NotNil(t, got.CompletedAt)

	// Items: first celtic wins, the copy is a duplicate pointing at it
	items, err := store.ListItems(ctx, job.ID, storage.ItemFilter{})
	require.NoError(t, err)
	require.Len(t, items, 3)
	byPath := map[string]*types.ImportItem{}
	for _, it := range items {
		byPath[it.SourcePath] = it
	}
	winner := byPath["coasters/celtic.svg"]
	dup := byPath["copies/celtic.svg"]
	require.NotNil(t, winner)
	require.NotNil(t, dup)
	assert.Equal(t, types.ItemCompleted, winner.Status)
	assert.Equal(t, types.ItemDuplicate, dup.Status)
	assert.Equal(t, winner.FileID, dup.DuplicateOf)
	assert.Equal(t, 100, dup.Similarity)
	assert.Equal(t, winner.ContentHash, dup.ContentHash)

	// Audit rows finalized with steps and reasons
	logs, err := store.ListLogs(ctx, job.ID, storage.LogFilter{})
	require.NoError(t, err)
	require.Len(t, logs, 3)
	for _, entry := range logs {
		assert.True(t, entry.Status.IsFinal(), "log %s is %s", entry.SourcePath, entry.Status)
		assert.NotEmpty(t, entry.Steps)
		require.NotNil(t, entry.CompletedAt)
	}
	summary, err := store.LogSummary(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.ByStatus[types.LogSucceeded])
	assert.Equal(t, 1, summary.ByStatus[types.LogDuplicate])

	// Blobs landed at files/<design>/v1.svg
	rc, err := blobs.Get(ctx, blobstore.FileKey(winner.DesignID, 1, ".svg"))
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "<svg>celtic</svg>", string(data))

	// Final checkpoint reflects all processed items
	n, _, err := store.GetCheckpoint(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Projects were detected and persisted
	projects, err := store.GetProjects(ctx, job.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, projects)
}

// failingSource wraps a Source and fails Open for matching paths.
type failingSource struct {
	scanner.Source
	failPath string
	failErr  error // nil means a generic transient error
}

func (f *failingSource) Open(path string) (io.ReadCloser, error) {
	if path == f.failPath {
		if f.failErr != nil {
			return nil, f.failErr
		}
		return nil, fmt.Errorf("simulated I/O error")
	}
	return f.Source.Open(path)
}

func TestRunFailedItemPolicy(t *testing.T) {
	tests := []struct {
		name       string
		skipFailed bool
		wantStatus types.ItemStatus
	}{
		{"fail bucket", false, types.ItemFailed},
		{"skip bucket", true, types.ItemSkipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, store, _ := newTestOrchestrator(t)
			ctx := context.Background()

			root := t.TempDir()
			writeFile(t, root, "good.svg", "<svg>good</svg>")
			writeFile(t, root, "bad.svg", "<svg>bad</svg>")

			opts := serialOptions()
			opts.MaxRetries = 1
			opts.SkipFailedFiles = tt.skipFailed
			job, err := o.CreateJob(ctx, types.SourceFolder, root, opts, nil)
			require.NoError(t, err)

			src := &failingSource{Source: scanner.NewDirSource(root), failPath: "bad.svg"}
			require.NoError(t, o.RunWithSource(ctx, job.ID, src))

			got, err := store.GetJob(ctx, job.ID)
			require.NoError(t, err)
			// One bad file never fails the job
			assert.Equal(t, types.JobCompleted, got.Status)
			assert.Equal(t, 1, got.FilesSucceeded)
			assert.NoError(t, got.ReconcileCounters())

			items, err := store.ListItems(ctx, job.ID, storage.ItemFilter{Status: tt.wantStatus})
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, "bad.svg", items[0].SourcePath)
			assert.Contains(t, items[0].ErrorMessage, "simulated I/O error")
			assert.Equal(t, 1, items[0].RetryCount)
		})
	}
}

func TestReimportCreatesNewVersion(t *testing.T) {
	o, store, blobs := newTestOrchestrator(t)
	ctx := context.Background()

	root := t.TempDir()
	writeFile(t, root, "signs/farmhouse.svg", "<svg>v1</svg>")

	job1, err := o.CreateJob(ctx, types.SourceFolder, root, serialOptions(), nil)
	require.NoError(t, err)
	require.NoError(t, o.Run(ctx, job1.ID))

	v1, err := store.FindActiveFileBySourcePath(ctx, "signs/farmhouse.svg")
	require.NoError(t, err)
	assert.Equal(t, 1, v1.VersionNumber)

	// Changed bytes at the same source path: new version, same design
	writeFile(t, root, "signs/farmhouse.svg", "<svg>v2</svg>")
	job2, err := o.CreateJob(ctx, types.SourceFolder, root, serialOptions(), nil)
	require.NoError(t, err)
	require.NoError(t, o.Run(ctx, job2.ID))

	v2, err := store.FindActiveFileBySourcePath(ctx, "signs/farmhouse.svg")
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)
	assert.Equal(t, v1.DesignID, v2.DesignID)
	assert.NotEqual(t, v1.ID, v2.ID)

	design, err := store.GetDesign(ctx, v2.DesignID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, design.CurrentVersionID)

	rc, err := blobs.Get(ctx, blobstore.FileKey(design.ID, 2, ".svg"))
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "<svg>v2</svg>", string(data))

	// Unchanged bytes at the same path are an exact duplicate, not a version
	job3, err := o.CreateJob(ctx, types.SourceFolder, root, serialOptions(), nil)
	require.NoError(t, err)
	require.NoError(t, o.Run(ctx, job3.ID))
	got, err := store.GetJob(ctx, job3.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FilesSkipped)
	assert.Equal(t, 0, got.FilesSucceeded)
}

func TestCrashRecoveryReclaimsStrandedItems(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	ctx := context.Background()

	root := t.TempDir()
	writeFile(t, root, "a.svg", "<svg>a</svg>")
	writeFile(t, root, "b.svg", "<svg>b</svg>")

	job, err := o.CreateJob(ctx, types.SourceFolder, root, serialOptions(), nil)
	require.NoError(t, err)

	// Simulate a crashed prior run: job mid-processing, one item stranded.
	require.NoError(t, store.TransitionJob(ctx, job.ID, types.JobPending, types.JobProcessing))
	started := time.Now().Add(-time.Hour)
	items := []*types.ImportItem{
		{ID: uuid.NewString(), JobID: job.ID, SourcePath: "a.svg", Filename: "a.svg",
			FileType: "svg", SizeBytes: 10, Status: types.ItemProcessing, StartedAt: &started},
		{ID: uuid.NewString(), JobID: job.ID, SourcePath: "b.svg", Filename: "b.svg",
			FileType: "svg", SizeBytes: 10, Status: types.ItemPending},
	}
	require.NoError(t, store.CreateItems(ctx, items))
	var logs []*types.ImportLog
	for _, it := range items {
		logs = append(logs, &types.ImportLog{
			ID: uuid.NewString(), JobID: job.ID, ItemID: it.ID,
			Filename: it.Filename, SourcePath: it.SourcePath, SizeBytes: it.SizeBytes,
		})
	}
	require.NoError(t, store.CreateLogs(ctx, logs))
	job.TotalFiles = 2
	job.FilesScanned = 2
	require.NoError(t, store.UpdateJobCounters(ctx, job))

	require.NoError(t, o.Run(ctx, job.ID))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, got.Status)
	assert.Equal(t, 2, got.FilesProcessed)
	assert.Equal(t, 2, got.FilesSucceeded)

	final, err := store.ListItems(ctx, job.ID, storage.ItemFilter{})
	require.NoError(t, err)
	for _, it := range final {
		assert.Equal(t, types.ItemCompleted, it.Status, "item %s", it.SourcePath)
	}
}

func TestResumeRecoversCrashedRun(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	ctx := context.Background()

	root := t.TempDir()
	writeFile(t, root, "a.svg", "<svg>a</svg>")
	writeFile(t, root, "b.svg", "<svg>b</svg>")

	job, err := o.CreateJob(ctx, types.SourceFolder, root, serialOptions(), nil)
	require.NoError(t, err)

	// A killed run leaves the job processing with one item still claimed.
	require.NoError(t, store.TransitionJob(ctx, job.ID, types.JobPending, types.JobProcessing))
	started := time.Now().Add(-time.Hour)
	items := []*types.ImportItem{
		{ID: uuid.NewString(), JobID: job.ID, SourcePath: "a.svg", Filename: "a.svg",
			FileType: "svg", SizeBytes: 10, Status: types.ItemProcessing, StartedAt: &started},
		{ID: uuid.NewString(), JobID: job.ID, SourcePath: "b.svg", Filename: "b.svg",
			FileType: "svg", SizeBytes: 10, Status: types.ItemPending},
	}
	require.NoError(t, store.CreateItems(ctx, items))
	var logs []*types.ImportLog
	for _, it := range items {
		logs = append(logs, &types.ImportLog{
			ID: uuid.NewString(), JobID: job.ID, ItemID: it.ID,
			Filename: it.Filename, SourcePath: it.SourcePath, SizeBytes: it.SizeBytes,
		})
	}
	require.NoError(t, store.CreateLogs(ctx, logs))
	job.TotalFiles = 2
	job.FilesScanned = 2
	require.NoError(t, store.UpdateJobCounters(ctx, job))

	// The user-facing recovery path is Resume, not Run.
	require.NoError(t, o.Resume(ctx, job.ID))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, got.Status)
	assert.Equal(t, 2, got.FilesSucceeded)

	// A pending job is still not resumable
	fresh, err := o.CreateJob(ctx, types.SourceFolder, root, serialOptions(), nil)
	require.NoError(t, err)
	assert.ErrorIs(t, o.Resume(ctx, fresh.ID), storage.ErrConflict)
}

func TestFreshInFlightItemsStayClaimed(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	ctx := context.Background()

	root := t.TempDir()
	writeFile(t, root, "a.svg", "<svg>a</svg>")
	writeFile(t, root, "b.svg", "<svg>b</svg>")

	job, err := o.CreateJob(ctx, types.SourceFolder, root, serialOptions(), nil)
	require.NoError(t, err)

	// One item claimed moments ago by another worker: in flight, not stranded.
	require.NoError(t, store.TransitionJob(ctx, job.ID, types.JobPending, types.JobProcessing))
	started := time.Now().Add(-time.Minute)
	inFlight := &types.ImportItem{ID: uuid.NewString(), JobID: job.ID, SourcePath: "a.svg",
		Filename: "a.svg", FileType: "svg", SizeBytes: 10, Status: types.ItemProcessing, StartedAt: &started}
	pending := &types.ImportItem{ID: uuid.NewString(), JobID: job.ID, SourcePath: "b.svg",
		Filename: "b.svg", FileType: "svg", SizeBytes: 10, Status: types.ItemPending}
	require.NoError(t, store.CreateItems(ctx, []*types.ImportItem{inFlight, pending}))
	require.NoError(t, store.CreateLogs(ctx, []*types.ImportLog{
		{ID: uuid.NewString(), JobID: job.ID, ItemID: inFlight.ID, Filename: "a.svg", SourcePath: "a.svg", SizeBytes: 10},
		{ID: uuid.NewString(), JobID: job.ID, ItemID: pending.ID, Filename: "b.svg", SourcePath: "b.svg", SizeBytes: 10},
	}))
	job.TotalFiles = 2
	job.FilesScanned = 2
	require.NoError(t, store.UpdateJobCounters(ctx, job))

	require.NoError(t, o.Run(ctx, job.ID))

	// Only the pending item was processed; the in-flight one still belongs
	// to its original worker.
	gotInFlight, err := store.GetItem(ctx, inFlight.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ItemProcessing, gotInFlight.Status)

	gotPending, err := store.GetItem(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ItemCompleted, gotPending.Status)

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FilesProcessed)
	assert.Equal(t, 1, got.FilesSucceeded)
}

func TestTakenOverItemNotCounted(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	ctx := context.Background()

	job, err := o.CreateJob(ctx, types.SourceFolder, t.TempDir(), serialOptions(), nil)
	require.NoError(t, err)

	item := &types.ImportItem{ID: uuid.NewString(), JobID: job.ID, SourcePath: "a.svg",
		Filename: "a.svg", FileType: "svg", SizeBytes: 10}
	require.NoError(t, store.CreateItems(ctx, []*types.ImportItem{item}))
	require.NoError(t, store.CreateLogs(ctx, []*types.ImportLog{
		{ID: uuid.NewString(), JobID: job.ID, ItemID: item.ID, Filename: "a.svg", SourcePath: "a.svg", SizeBytes: 10},
	}))

	// Another run reclaims the item and finishes it first.
	require.NoError(t, store.ClaimItem(ctx, item.ID, time.Now()))
	winner := *item
	winner.Status = types.ItemCompleted
	require.NoError(t, store.FinalizeItem(ctx, &winner))

	// The slower worker's finalize must lose, so its outcome is not counted.
	err = o.finalize(ctx, item, &itemResult{status: types.ItemFailed}, time.Now())
	assert.ErrorIs(t, err, storage.ErrConflict)

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ItemCompleted, got.Status)
}

func TestCorruptFileNotRetried(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	ctx := context.Background()

	root := t.TempDir()
	writeFile(t, root, "good.svg", "<svg>good</svg>")
	writeFile(t, root, "broken.svg", "<svg>broken</svg>")

	opts := serialOptions()
	opts.MaxRetries = 3
	job, err := o.CreateJob(ctx, types.SourceFolder, root, opts, nil)
	require.NoError(t, err)

	src := &failingSource{Source: scanner.NewDirSource(root), failPath: "broken.svg", failErr: zip.ErrChecksum}
	require.NoError(t, o.RunWithSource(ctx, job.ID, src))

	items, err := store.ListItems(ctx, job.ID, storage.ItemFilter{Status: types.ItemFailed})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "broken.svg", items[0].SourcePath)
	// Corrupt bytes fail on the first attempt; retrying cannot fix them.
	assert.Equal(t, 0, items[0].RetryCount)
}

// outageBlobStore counts Puts and fails them all.
type outageBlobStore struct {
	blobstore.Store
	puts int
}

func (s *outageBlobStore) Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) error {
	s.puts++
	return fmt.Errorf("simulated upload outage")
}

func TestUploadRetriesNotNested(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	local, err := blobstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	blobs := &outageBlobStore{Store: local}
	o, err := New(&Config{Store: store, Blobs: blobs})
	require.NoError(t, err)
	ctx := context.Background()

	root := t.TempDir()
	writeFile(t, root, "a.svg", "<svg>a</svg>")

	opts := serialOptions()
	opts.MaxRetries = 1
	job, err := o.CreateJob(ctx, types.SourceFolder, root, opts, nil)
	require.NoError(t, err)
	require.NoError(t, o.Run(ctx, job.ID))

	items, err := store.ListItems(ctx, job.ID, storage.ItemFilter{Status: types.ItemFailed})
	require.NoError(t, err)
	require.Len(t, items, 1)
	// The upload's own backoff is the only retry layer: MaxRetries+1 Puts
	// total, not (MaxRetries+1) squared.
	assert.Equal(t, 2, blobs.puts)
	assert.Equal(t, 0, items[0].RetryCount)
}

func TestCancelNonTerminalJob(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	ctx := context.Background()

	job, err := o.CreateJob(ctx, types.SourceFolder, t.TempDir(), serialOptions(), nil)
	require.NoError(t, err)

	require.NoError(t, o.Cancel(ctx, job.ID))
	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCancelled, got.Status)

	// Terminal jobs cannot be cancelled again
	assert.Error(t, o.Cancel(ctx, job.ID))
	// Or run
	assert.Error(t, o.Run(ctx, job.ID))
}

func TestPauseRequiresProcessing(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	job, err := o.CreateJob(ctx, types.SourceFolder, t.TempDir(), serialOptions(), nil)
	require.NoError(t, err)

	err = o.Pause(ctx, job.ID)
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestScanFailureFailsJob(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	ctx := context.Background()

	job, err := o.CreateJob(ctx, types.SourceFolder, "/nonexistent/designs", serialOptions(), nil)
	require.NoError(t, err)

	require.Error(t, o.Run(ctx, job.ID))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, got.Status)
	assert.NotEmpty(t, got.ErrorMessage)
}

func TestSidecarPreviewUploaded(t *testing.T) {
	o, store, blobs := newTestOrchestrator(t)
	ctx := context.Background()

	root := t.TempDir()
	writeFile(t, root, "art/wolf.svg", "<svg>wolf</svg>")
	writeFile(t, root, "art/wolf.png", "not-a-real-png")

	opts := serialOptions()
	opts.GenerateAIMetadata = false
	job, err := o.CreateJob(ctx, types.SourceFolder, root, opts, nil)
	require.NoError(t, err)
	require.NoError(t, o.Run(ctx, job.ID))

	items, err := store.ListItems(ctx, job.ID, storage.ItemFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, types.ItemCompleted, items[0].Status)

	design, err := store.GetDesign(ctx, items[0].DesignID)
	require.NoError(t, err)
	assert.Equal(t, blobstore.PreviewKey(design.ID, ".png"), design.PreviewPath)

	ok, err := blobs.Exists(ctx, design.PreviewPath)
	require.NoError(t, err)
	assert.True(t, ok)

	// Garbage image bytes: content hash set, phash absent, item still fine
	assert.NotEmpty(t, items[0].ContentHash)
	assert.Empty(t, items[0].Phash)
}
