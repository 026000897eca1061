package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/docs-analyzer/internal/common"
)

// Mode selects whether Submit waits for the task.
type Mode string

const (
	ModeSync  Mode = "sync"
	ModeAsync Mode = "async"
)

// FailureRecorder marks a task FAILED unless it already reached a terminal state.
type FailureRecorder interface {
	Fail(ctx context.Context, taskID string, kind common.Kind, message string) (bool, error)
}

// Dispatcher submits tasks through a Transport under a timeout and records
// dispatch-level failures (timeouts, shutdown, transport errors) on the task.
type Dispatcher struct {
	transport Transport
	failures  FailureRecorder
	mode      Mode
	timeout   time.Duration
	logger    *slog.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewDispatcher(transport Transport, failures FailureRecorder, mode Mode, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if mode != ModeAsync {
		mode = ModeSync
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Dispatcher{
		transport: transport,
		failures:  failures,
		mode:      mode,
		timeout:   timeout,
		logger:    logger,
	}
}

func (d *Dispatcher) Mode() Mode { return d.mode }

// Timeout is how long a submitted task may take before it is failed.
func (d *Dispatcher) Timeout() time.Duration { return d.timeout }

// Submit hands task to the transport. In sync mode it returns once the task
// ran or the timeout hit; in async mode it returns at once and delivery
// continues in the background.
func (d *Dispatcher) Submit(ctx context.Context, task Task) error {
	if d.mode == ModeSync {
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		return d.deliver(ctx, task)
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.recordFailure(ctx, task, ErrQueueClosed)
		return ErrQueueClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		if err := d.deliver(bctx, task); err != nil {
			d.logger.Warn("background analysis failed", "task_id", task.ID, "document_id", task.DocumentID, "error", err)
		}
	}()
	d.logger.Info("analysis submitted in background", "task_id", task.ID, "document_id", task.DocumentID)
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, task Task) error {
	err := d.transport.Deliver(ctx, task)
	if err != nil {
		d.recordFailure(ctx, task, err)
	}
	return err
}

func (d *Dispatcher) recordFailure(ctx context.Context, task Task, cause error) {
	kind, msg := common.KindInternal, "analysis failed"
	switch {
	case errors.Is(cause, context.DeadlineExceeded):
		kind, msg = common.KindExtractionFailed, "analysis timed out"
	case errors.Is(cause, context.Canceled):
		kind, msg = common.KindExtractionFailed, "analysis cancelled"
	case errors.Is(cause, ErrQueueClosed):
		kind, msg = common.KindUnavailable, "analysis workers are shutting down"
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	changed, err := d.failures.Fail(fctx, task.ID, kind, msg)
	if err != nil {
		d.logger.Error("could not record dispatch failure", "task_id", task.ID, "cause", cause, "error", err)
		return
	}
	if changed {
		d.logger.Warn("analysis marked failed by dispatcher", "task_id", task.ID, "kind", kind, "cause", cause)
	}
}

// Shutdown stops accepting background submissions, waits for them, then shuts the transport down.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); d.wg.Wait() }()
	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn("dispatcher shutdown interrupted by context")
	}
	d.transport.Shutdown(ctx)
}
