// Package async hands analysis tasks to workers, in-process or remote.
package async

import (
	"context"
	"errors"
	"time"
)

// ErrQueueClosed is returned when a task is submitted after shutdown started.
var ErrQueueClosed = errors.New("task queue is shut down")

// Task is the unit of work sent to a worker.
type Task struct {
	ID          string    `json:"task_id"`
	DocumentID  int       `json:"document_id"`
	Path        string    `json:"path"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Executor runs one task to completion and records its outcome.
// A nil error means the outcome is recorded, whether or not text was found.
type Executor interface {
	Execute(ctx context.Context, task Task) error
}

// Transport delivers a task to a worker and returns once the worker is done with it.
type Transport interface {
	Deliver(ctx context.Context, task Task) error
	Shutdown(ctx context.Context)
}
