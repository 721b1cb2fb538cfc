package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/carvelab/ingest/internal/storage"
	"github.com/carvelab/ingest/internal/storage/sqlite"
	"github.com/carvelab/ingest/internal/types"
	"github.com/google/uuid"
)

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()
	s, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createScheduledJob(t *testing.T, s storage.Storage, at time.Time) *types.ImportJob {
	t.Helper()
	job := &types.ImportJob{
		ID:          uuid.NewString(),
		SourceType:  types.SourceFolder,
		SourcePath:  "/designs",
		Options:     types.DefaultProcessingOptions(),
		Status:      types.JobPending,
		ScheduledAt: &at,
	}
	if err := s.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

type recordingDispatcher struct {
	ids []string
	err error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, jobID string) error {
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, jobID)
	return nil
}

func TestPollOnceDispatchesDueJobs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	due := createScheduledJob(t, s, time.Now().Add(-time.Minute))
	createScheduledJob(t, s, time.Now().Add(time.Hour)) // not due yet

	rec := &recordingDispatcher{}
	p, err := NewPollingDispatcher(s, rec, time.Second)
	if err != nil {
		t.Fatalf("NewPollingDispatcher: %v", err)
	}

	n, err := p.PollOnce(ctx)
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if n != 1 {
		t.Fatalf("dispatched %d jobs, want 1", n)
	}
	if len(rec.ids) != 1 || rec.ids[0] != due.ID {
		t.Errorf("dispatched %v, want [%s]", rec.ids, due.ID)
	}
}

func TestPollOnceSkipsNonPendingJobs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	job := createScheduledJob(t, s, time.Now().Add(-time.Minute))
	// Another worker already started it
	if err := s.TransitionJob(ctx, job.ID, types.JobPending, types.JobProcessing); err != nil {
		t.Fatalf("TransitionJob: %v", err)
	}

	rec := &recordingDispatcher{}
	p, _ := NewPollingDispatcher(s, rec, time.Second)

	n, err := p.PollOnce(ctx)
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if n != 0 || len(rec.ids) != 0 {
		t.Errorf("dispatched %v, want none", rec.ids)
	}
}

func TestPollOnceContinuesPastDispatchErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	createScheduledJob(t, s, time.Now().Add(-time.Minute))

	rec := &recordingDispatcher{err: errors.New("broker down")}
	p, _ := NewPollingDispatcher(s, rec, time.Second)

	n, err := p.PollOnce(ctx)
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if n != 0 {
		t.Errorf("dispatched %d, want 0", n)
	}
}

type recordingQueue struct {
	ids []string
}

func (q *recordingQueue) Enqueue(_ context.Context, jobID string) error {
	q.ids = append(q.ids, jobID)
	return nil
}

func TestQueueDispatcher(t *testing.T) {
	q := &recordingQueue{}
	d, err := NewQueueDispatcher(q)
	if err != nil {
		t.Fatalf("NewQueueDispatcher: %v", err)
	}
	if err := d.Dispatch(context.Background(), "job-1"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(q.ids) != 1 || q.ids[0] != "job-1" {
		t.Errorf("enqueued %v", q.ids)
	}

	if _, err := NewQueueDispatcher(nil); err == nil {
		t.Error("expected error for nil queue")
	}
}
