package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/odiumxp/ai-brain/pkg/metrics"
)

// Task is one unit of background work triggered by a conversation turn.
type Task struct {
	// Name identifies the work in logs, e.g. "chains.build".
	Name   string
	UserID string
	Run    func(ctx context.Context) error
}

// QueueStats counts what happened to submitted tasks.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// TaskQueue runs tasks on a fixed set of workers without ever blocking the
// submitter. When the buffer is full the task is dropped; the next
// maintenance pass covers the skipped work.
type TaskQueue struct {
	tasks   chan Task
	timeout time.Duration
	logger  zerolog.Logger
	metrics *metrics.Manager

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	completed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewTaskQueue starts cfg.Workers workers. A zero cfg.TaskTimeout leaves
// tasks unbounded.
func NewTaskQueue(cfg QueueConfig, logger zerolog.Logger, m *metrics.Manager) *TaskQueue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if m == nil {
		m = metrics.NoOpManager()
	}

	q := &TaskQueue{
		tasks:   make(chan Task, cfg.Capacity),
		timeout: cfg.TaskTimeout,
		logger:  logger,
		metrics: m,
	}
	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Submit enqueues t and reports whether it was accepted. It returns false
// when the queue is full or closed.
func (q *TaskQueue) Submit(t Task) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}

	select {
	case q.tasks <- t:
		q.metrics.SetQueueDepth(len(q.tasks))
		return true
	default:
		q.dropped.Add(1)
		q.metrics.RecordQueueDrop()
		q.logger.Warn().
			Str("task", t.Name).
			Str("user_id", t.UserID).
			Msg("task queue full, task dropped")
		return false
	}
}

// Stats returns the current counters.
func (q *TaskQueue) Stats() QueueStats {
	return QueueStats{
		Pending:   len(q.tasks),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
	}
}

// Close stops accepting tasks and waits until the pending ones have run,
// or until ctx is done.
func (q *TaskQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *TaskQueue) worker() {
	defer q.wg.Done()
	for t := range q.tasks {
		q.metrics.SetQueueDepth(len(q.tasks))
		q.execute(t)
	}
}

func (q *TaskQueue) execute(t Task) {
	ctx := context.Background()
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return t.Run(ctx)
	}()

	if err != nil {
		q.failed.Add(1)
		q.logger.Error().
			Err(err).
			Str("task", t.Name).
			Str("user_id", t.UserID).
			Msg("background task failed")
		return
	}
	q.completed.Add(1)
}
