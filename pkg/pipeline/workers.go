package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/candor-labs/candor/pkg/core"
)

// Job is one unit of background work.
type Job func(ctx context.Context)

// Workers is a bounded pool for background analysis jobs. Submissions beyond
// the queue bound fail fast instead of blocking the caller.
type Workers struct {
	jobs   chan Job
	count  int
	logger *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewWorkers creates a pool with the given worker count and queue depth.
// Values below one are raised to one.
func NewWorkers(workers, queue int, logger *slog.Logger) *Workers {
	if workers < 1 {
		workers = 1
	}
	if queue < 1 {
		queue = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Workers{
		jobs:   make(chan Job, queue),
		count:  workers,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start launches the workers. Jobs run with ctx; cancelling it stops the pool
// after in-flight jobs finish.
func (w *Workers) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		for i := 0; i < w.count; i++ {
			w.wg.Add(1)
			go w.run(ctx)
		}
	})
}

func (w *Workers) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			w.invoke(ctx, job)
		}
	}
}

func (w *Workers) invoke(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("background job panicked", "panic", r)
		}
	}()
	job(ctx)
}

// Submit enqueues a job. It fails when the queue is full or the pool is
// shutting down.
func (w *Workers) Submit(job Job) error {
	select {
	case <-w.done:
		return core.NewInvalidRequestError("worker pool is shut down")
	default:
	}
	select {
	case w.jobs <- job:
		return nil
	default:
		return core.NewInvalidRequestError("analysis queue is full")
	}
}

// Shutdown stops accepting jobs and waits for in-flight ones to finish.
func (w *Workers) Shutdown() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	w.wg.Wait()
}
