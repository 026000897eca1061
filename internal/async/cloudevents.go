package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"
)

const (
	// EventTypeAnalysisRequested is the CloudEvent type carrying a Task.
	EventTypeAnalysisRequested = "io.docsanalyzer.analysis.requested"
	eventSource                = "docs-analyzer/api"
)

// ErrRejected is returned when the worker answered but did not accept the task.
var ErrRejected = errors.New("worker rejected task")

// CloudEventsTransport posts tasks as CloudEvents to a remote worker over HTTP.
// The worker acknowledges only after executing the task, so Deliver blocks like the local queue.
type CloudEventsTransport struct {
	client  cloudevents.Client
	target  string
	retries int
	backoff time.Duration
	logger  *slog.Logger
}

type CloudEventsOption func(*CloudEventsTransport)

// WithRetries sets how many times a transiently failed send is retried.
func WithRetries(n int, backoff time.Duration) CloudEventsOption {
	return func(t *CloudEventsTransport) {
		if n >= 0 {
			t.retries = n
		}
		if backoff > 0 {
			t.backoff = backoff
		}
	}
}

func NewCloudEventsTransport(target string, logger *slog.Logger, opts ...CloudEventsOption) (*CloudEventsTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := cloudevents.NewClientHTTP(cehttp.WithIsRetriableFunc(isTransientStatus))
	if err != nil {
		return nil, fmt.Errorf("create cloudevents client: %w", err)
	}
	t := &CloudEventsTransport{
		client:  client,
		target:  target,
		retries: 3,
		backoff: 500 * time.Millisecond,
		logger:  logger,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// isTransientStatus reports whether a worker response is worth resending.
// Connection failures are always retried by the client.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// NewTaskEvent wraps task in a CloudEvent; the event id is the task id.
func NewTaskEvent(task Task) (cloudevents.Event, error) {
	e := cloudevents.NewEvent()
	e.SetID(task.ID)
	e.SetSource(eventSource)
	e.SetType(EventTypeAnalysisRequested)
	e.SetSubject(strconv.Itoa(task.DocumentID))
	e.SetTime(task.SubmittedAt)
	if err := e.SetData(cloudevents.ApplicationJSON, task); err != nil {
		return e, fmt.Errorf("encode task: %w", err)
	}
	return e, nil
}

func (t *CloudEventsTransport) Deliver(ctx context.Context, task Task) error {
	e, err := NewTaskEvent(task)
	if err != nil {
		return err
	}

	ctx = cloudevents.ContextWithTarget(ctx, t.target)
	if t.retries > 0 {
		ctx = cloudevents.ContextWithRetriesExponentialBackoff(ctx, t.backoff, t.retries)
	}

	start := time.Now()
	res := t.client.Send(ctx, e)
	switch {
	case cloudevents.IsUndelivered(res):
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		t.logger.Error("task not delivered", "task_id", task.ID, "target", t.target, "error", res)
		return fmt.Errorf("deliver task %s: %w", task.ID, res)
	case !cloudevents.IsACK(res):
		var httpResult *cehttp.Result
		if cloudevents.ResultAs(res, &httpResult) {
			t.logger.Warn("worker nacked task", "task_id", task.ID, "status", httpResult.StatusCode)
			return fmt.Errorf("task %s: status %d: %w", task.ID, httpResult.StatusCode, ErrRejected)
		}
		t.logger.Warn("worker nacked task", "task_id", task.ID, "error", res)
		return fmt.Errorf("task %s: %v: %w", task.ID, res, ErrRejected)
	}

	t.logger.Info("task acknowledged by worker", "task_id", task.ID, "document_id", task.DocumentID, "elapsed", time.Since(start))
	return nil
}

// Shutdown is a no-op; in-flight sends finish with their request contexts.
func (t *CloudEventsTransport) Shutdown(context.Context) {}
