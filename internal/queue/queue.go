// Package queue runs chat work items one at a time.
//
// Provider calls are serialized through a single worker with a fixed delay
// between items, which keeps bursty clients from stampeding the upstream
// API. Tasks are run strictly in enqueue order.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/lashiv/lashivgpt/internal/logging"
)

// DefaultSpacing is the pause between consecutive tasks.
const DefaultSpacing = 2 * time.Second

// Task is one unit of queued work. The context is the queue's run context;
// tasks should abandon their work when it is cancelled.
type Task func(ctx context.Context)

// Queue is a single-worker FIFO task queue.
// Safe for concurrent Enqueue from any goroutine.
type Queue struct {
	mu    sync.Mutex
	tasks []Task

	// wake is buffered so Enqueue never blocks; one pending signal is
	// enough because the worker drains the whole backlog when woken.
	wake chan struct{}

	spacing time.Duration
	logger  *logging.Logger
}

// New creates a queue with the given spacing between tasks.
func New(spacing time.Duration, logger *logging.Logger) *Queue {
	return &Queue{
		wake:    make(chan struct{}, 1),
		spacing: spacing,
		logger:  logger.WithComponent("queue"),
	}
}

// Enqueue appends a task to the backlog and wakes the worker.
func (q *Queue) Enqueue(task Task) {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	depth := len(q.tasks)
	q.mu.Unlock()

	q.logger.Debug("task enqueued, backlog depth %d", depth)

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Start launches the worker goroutine. It exits when ctx is cancelled;
// tasks still in the backlog at that point are dropped.
func (q *Queue) Start(ctx context.Context) {
	go q.run(ctx)
}

// run is the worker loop.
func (q *Queue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}

		for {
			task, ok := q.pop()
			if !ok {
				break
			}

			task(ctx)

			// Space out provider calls regardless of task outcome.
			if !sleep(ctx, q.spacing) {
				return
			}
		}
	}
}

// pop removes and returns the oldest task.
func (q *Queue) pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return task, true
}

// sleep waits for d or until ctx is cancelled.
// Returns false when the context ended the wait.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
