package async

import (
	"context"
	"sync"
	"time"

	"log/slog"
)

type job struct {
	task     Task
	deadline time.Time
	done     chan error
}

// ProcessorQueue is the in-process Transport: a bounded channel drained by a fixed worker pool.
type ProcessorQueue struct {
	exec    Executor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewProcessorQueue(exec Executor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		exec:    exec,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		ch:      make(chan job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("worker started", "worker_id", workerID)

				for j := range q.ch {
					j.done <- q.run(workerID, j)
				}

				q.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(workerID int, j job) error {
	if !j.deadline.IsZero() && time.Now().After(j.deadline) {
		q.logger.Warn("task expired in queue", "worker_id", workerID, "task_id", j.task.ID)
		return context.DeadlineExceeded
	}

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if !j.deadline.IsZero() {
		var cancelDeadline context.CancelFunc
		ctx, cancelDeadline = context.WithDeadline(ctx, j.deadline)
		defer cancelDeadline()
	}

	start := time.Now()
	err := q.exec.Execute(ctx, j.task)
	if err != nil {
		q.logger.Error("task execution failed", "worker_id", workerID, "task_id", j.task.ID, "document_id", j.task.DocumentID, "error", err)
	} else {
		q.logger.Info("task executed", "worker_id", workerID, "task_id", j.task.ID, "document_id", j.task.DocumentID, "elapsed", time.Since(start))
	}
	return err
}

// Deliver queues the task and waits for a worker to finish it or for ctx to end.
// The worker inherits ctx's deadline.
func (q *ProcessorQueue) Deliver(ctx context.Context, task Task) error {
	j := job{task: task, done: make(chan error, 1)}
	if dl, ok := ctx.Deadline(); ok {
		j.deadline = dl
	}
	if err := q.enqueue(ctx, j); err != nil {
		return err
	}
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *ProcessorQueue) enqueue(ctx context.Context, j job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "task_id", j.task.ID)
		return ErrQueueClosed
	}
	select {
	case q.ch <- j:
		q.logger.Debug("queued task", "task_id", j.task.ID, "document_id", j.task.DocumentID)
		return nil
	default:
	}

	q.logger.Warn("queue full, applying backpressure", "task_id", j.task.ID)
	select {
	case q.ch <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting tasks and waits for queued ones to drain or ctx to end.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
