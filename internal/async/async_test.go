package async

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/docs-analyzer/internal/common"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type execFunc func(ctx context.Context, task Task) error

func (f execFunc) Execute(ctx context.Context, task Task) error { return f(ctx, task) }

type failure struct {
	id   string
	kind common.Kind
	msg  string
}

type recorder struct {
	mu    sync.Mutex
	fails []failure
}

func (r *recorder) Fail(_ context.Context, id string, kind common.Kind, msg string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fails = append(r.fails, failure{id, kind, msg})
	return true, nil
}

func (r *recorder) all() []failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]failure(nil), r.fails...)
}

func newTask(docID int) Task {
	return Task{ID: uuid.NewString(), DocumentID: docID, Path: "documents/a.png", SubmittedAt: time.Now().UTC()}
}

func TestProcessorQueue_DeliverWaitsForExecution(t *testing.T) {
	var got Task
	q := NewProcessorQueue(execFunc(func(_ context.Context, task Task) error {
		got = task
		return nil
	}), discard, WithWorkers(2))
	defer q.Shutdown(context.Background())

	task := newTask(7)
	if err := q.Deliver(context.Background(), task); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if got.ID != task.ID {
		t.Fatalf("executor saw %+v, want %+v", got, task)
	}
}

func TestProcessorQueue_PropagatesExecutorError(t *testing.T) {
	boom := errors.New("db down")
	q := NewProcessorQueue(execFunc(func(context.Context, Task) error { return boom }), discard)
	defer q.Shutdown(context.Background())

	if err := q.Deliver(context.Background(), newTask(1)); !errors.Is(err, boom) {
		t.Fatalf("expected executor error, got %v", err)
	}
}

func TestProcessorQueue_WorkerInheritsDeadline(t *testing.T) {
	q := NewProcessorQueue(execFunc(func(ctx context.Context, _ Task) error {
		<-ctx.Done()
		return ctx.Err()
	}), discard, WithWorkers(1))
	defer q.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := q.Deliver(ctx, newTask(1)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestProcessorQueue_ClosedRejects(t *testing.T) {
	q := NewProcessorQueue(execFunc(func(context.Context, Task) error { return nil }), discard)
	q.Shutdown(context.Background())

	if err := q.Deliver(context.Background(), newTask(1)); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	// second shutdown is a no-op
	q.Shutdown(context.Background())
}

func TestProcessorQueue_ShutdownDrainsQueued(t *testing.T) {
	release := make(chan struct{})
	var (
		mu   sync.Mutex
		done int
	)
	q := NewProcessorQueue(execFunc(func(context.Context, Task) error {
		<-release
		mu.Lock()
		done++
		mu.Unlock()
		return nil
	}), discard, WithWorkers(1), WithQueueSize(4))

	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_ = q.Deliver(context.Background(), newTask(id))
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	q.Shutdown(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if done != 3 {
		t.Fatalf("expected 3 executed tasks, got %d", done)
	}
}

type transportFunc func(ctx context.Context, task Task) error

func (f transportFunc) Deliver(ctx context.Context, task Task) error { return f(ctx, task) }
func (transportFunc) Shutdown(context.Context)                       {}

func TestDispatcher_SyncTimeoutMarksFailed(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(transportFunc(func(ctx context.Context, _ Task) error {
		<-ctx.Done()
		return ctx.Err()
	}), rec, ModeSync, 30*time.Millisecond, discard)

	task := newTask(3)
	err := d.Submit(context.Background(), task)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	fails := rec.all()
	if len(fails) != 1 {
		t.Fatalf("expected one failure, got %+v", fails)
	}
	if fails[0].id != task.ID || fails[0].kind != common.KindExtractionFailed || fails[0].msg != "analysis timed out" {
		t.Fatalf("unexpected failure %+v", fails[0])
	}
}

func TestDispatcher_SyncSuccessRecordsNothing(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(transportFunc(func(context.Context, Task) error { return nil }), rec, ModeSync, time.Second, discard)

	if err := d.Submit(context.Background(), newTask(1)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if fails := rec.all(); len(fails) != 0 {
		t.Fatalf("expected no failures, got %+v", fails)
	}
}

func TestDispatcher_AsyncReturnsBeforeExecution(t *testing.T) {
	rec := &recorder{}
	release := make(chan struct{})
	ran := make(chan string, 1)
	d := NewDispatcher(transportFunc(func(_ context.Context, task Task) error {
		<-release
		ran <- task.ID
		return nil
	}), rec, ModeAsync, time.Second, discard)

	ctx, cancel := context.WithCancel(context.Background())
	task := newTask(5)
	if err := d.Submit(ctx, task); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// the request finishing must not cancel background work
	cancel()
	close(release)

	select {
	case id := <-ran:
		if id != task.ID {
			t.Fatalf("ran %s, want %s", id, task.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("background task did not run")
	}
	d.Shutdown(context.Background())
	if fails := rec.all(); len(fails) != 0 {
		t.Fatalf("expected no failures, got %+v", fails)
	}
}

func TestDispatcher_AsyncAfterShutdown(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(transportFunc(func(context.Context, Task) error { return nil }), rec, ModeAsync, time.Second, discard)
	d.Shutdown(context.Background())

	task := newTask(1)
	if err := d.Submit(context.Background(), task); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	fails := rec.all()
	if len(fails) != 1 || fails[0].kind != common.KindUnavailable {
		t.Fatalf("unexpected failures %+v", fails)
	}
}

func TestCloudEventsTransport_RoundTrip(t *testing.T) {
	received := make(chan Task, 1)
	protocol, err := cloudevents.NewHTTP()
	if err != nil {
		t.Fatalf("new protocol: %v", err)
	}
	handler, err := cloudevents.NewHTTPReceiveHandler(context.Background(), protocol, func(e cloudevents.Event) cloudevents.Result {
		if e.Type() != EventTypeAnalysisRequested {
			return cloudevents.NewHTTPResult(400, "unexpected type %s", e.Type())
		}
		task, err := DecodeTask(e.Data())
		if err != nil {
			return cloudevents.NewHTTPResult(400, "%v", err)
		}
		received <- task
		return cloudevents.ResultACK
	})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	tr, err := NewCloudEventsTransport(srv.URL, discard, WithRetries(0, 0))
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	task := newTask(11)
	if err := tr.Deliver(context.Background(), task); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	got := <-received
	if got.ID != task.ID || got.DocumentID != 11 || got.Path != task.Path {
		t.Fatalf("worker got %+v, want %+v", got, task)
	}
}

func TestCloudEventsTransport_WorkerRejects(t *testing.T) {
	protocol, err := cloudevents.NewHTTP()
	if err != nil {
		t.Fatalf("new protocol: %v", err)
	}
	handler, err := cloudevents.NewHTTPReceiveHandler(context.Background(), protocol, func(cloudevents.Event) cloudevents.Result {
		return cloudevents.NewHTTPResult(500, "database unavailable")
	})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	tr, err := NewCloudEventsTransport(srv.URL, discard, WithRetries(0, 0))
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	if err := tr.Deliver(context.Background(), newTask(1)); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestCloudEventsTransport_RetriesOnlyTransientStatuses(t *testing.T) {
	cases := []struct {
		name      string
		statuses  []int
		wantCalls int32
		wantErr   bool
	}{
		{"unavailable then ok", []int{503, 200}, 2, false},
		{"rate limited then ok", []int{429, 200}, 2, false},
		{"not found is final", []int{404, 200}, 1, true},
		{"too large is final", []int{413, 200}, 1, true},
		{"too early is final", []int{425, 200}, 1, true},
		{"internal error is final", []int{500, 200}, 1, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := calls.Add(1)
				_, _ = io.Copy(io.Discard, r.Body)
				code := tc.statuses[len(tc.statuses)-1]
				if int(n) <= len(tc.statuses) {
					code = tc.statuses[n-1]
				}
				w.WriteHeader(code)
			}))
			defer srv.Close()

			tr, err := NewCloudEventsTransport(srv.URL, discard, WithRetries(3, time.Millisecond))
			if err != nil {
				t.Fatalf("new transport: %v", err)
			}
			err = tr.Deliver(context.Background(), newTask(5))
			if tc.wantErr != (err != nil) {
				t.Fatalf("deliver error = %v, wantErr %v", err, tc.wantErr)
			}
			if got := calls.Load(); got != tc.wantCalls {
				t.Fatalf("worker called %d times, want %d", got, tc.wantCalls)
			}
		})
	}
}

func TestNewTaskEvent(t *testing.T) {
	task := newTask(42)
	e, err := NewTaskEvent(task)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if e.ID() != task.ID || e.Subject() != "42" || e.Type() != EventTypeAnalysisRequested {
		t.Fatalf("unexpected event %s", e)
	}
	if err := e.Validate(); err != nil {
		t.Fatalf("invalid event: %v", err)
	}
}

func TestDecodeTask(t *testing.T) {
	id := uuid.NewString()
	cases := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"task_id":"` + id + `","document_id":3,"path":"documents/x.png","submitted_at":"2026-01-02T03:04:05Z"}`, false},
		{"missing path", `{"task_id":"` + id + `","document_id":3}`, true},
		{"bad id", `{"task_id":"nope","document_id":3,"path":"p"}`, true},
		{"zero document", `{"task_id":"` + id + `","document_id":0,"path":"p"}`, true},
		{"extra field", `{"task_id":"` + id + `","document_id":3,"path":"p","force":true}`, true},
		{"not json", `task`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task, err := DecodeTask([]byte(tc.payload))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", task)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if task.ID != id || task.DocumentID != 3 {
				t.Fatalf("unexpected task %+v", task)
			}
		})
	}
}
