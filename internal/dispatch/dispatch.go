// Package dispatch hands due import jobs to whatever executes them: an
// in-process runner or an external queue.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/carvelab/ingest/internal/storage"
	"github.com/carvelab/ingest/internal/types"
)

// Dispatcher hands one job off for processing.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, jobID string) error

// Dispatch implements Dispatcher
func (f DispatcherFunc) Dispatch(ctx context.Context, jobID string) error {
	return f(ctx, jobID)
}

// Enqueuer pushes a job ID onto an external queue or broker.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string) error
}

// QueueDispatcher forwards jobs to an injected broker. The consumer on the
// other side runs them.
type QueueDispatcher struct {
	queue Enqueuer
}

// NewQueueDispatcher creates a dispatcher over the given queue
func NewQueueDispatcher(queue Enqueuer) (*QueueDispatcher, error) {
	if queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	return &QueueDispatcher{queue: queue}, nil
}

// Dispatch implements Dispatcher
func (d *QueueDispatcher) Dispatch(ctx context.Context, jobID string) error {
	if err := d.queue.Enqueue(ctx, jobID); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}
	return nil
}

// DefaultPollInterval is how often the polling dispatcher checks for due jobs.
const DefaultPollInterval = 30 * time.Second

// PollingDispatcher periodically scans for scheduled jobs whose start time
// has passed and hands them to the target dispatcher.
type PollingDispatcher struct {
	store    storage.Storage
	target   Dispatcher
	interval time.Duration
}

// NewPollingDispatcher creates a poller over the store
func NewPollingDispatcher(store storage.Storage, target Dispatcher, interval time.Duration) (*PollingDispatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if target == nil {
		return nil, fmt.Errorf("target dispatcher is required")
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollingDispatcher{store: store, target: target, interval: interval}, nil
}

// Run polls until the context is cancelled.
func (p *PollingDispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.PollOnce(ctx); err != nil {
			fmt.Printf("Warning: dispatch poll failed: %v\n", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PollOnce dispatches every due job once and returns how many were handed
// off. A job that left pending between the scan and the hand-off is skipped;
// the run itself re-checks with a compare-and-set, so a double dispatch is
// harmless.
func (p *PollingDispatcher) PollOnce(ctx context.Context) (int, error) {
	due, err := p.store.DueScheduledJobs(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to list due jobs: %w", err)
	}

	dispatched := 0
	for _, job := range due {
		current, err := p.store.GetJob(ctx, job.ID)
		if err != nil {
			return dispatched, err
		}
		if current.Status != types.JobPending {
			continue
		}
		if err := p.target.Dispatch(ctx, job.ID); err != nil {
			fmt.Printf("Warning: failed to dispatch job %s: %v\n", job.ID, err)
			continue
		}
		dispatched++
	}
	return dispatched, nil
}
