package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joseph-ayodele/docs-analyzer/constants"
	"github.com/joseph-ayodele/docs-analyzer/internal/common"
	"github.com/joseph-ayodele/docs-analyzer/internal/entity"
	"github.com/joseph-ayodele/docs-analyzer/internal/repository"
	"github.com/joseph-ayodele/docs-analyzer/internal/repository/repotest"
)

type repos struct {
	docs  repository.DocumentRepository
	texts repository.TextRepository
	tasks repository.TaskRepository
}

func newRepos(t *testing.T) repos {
	t.Helper()
	db := repotest.Open(t)
	log := repotest.Logger()
	return repos{
		docs:  repository.NewDocumentRepository(db, log),
		texts: repository.NewTextRepository(db, log),
		tasks: repository.NewTaskRepository(db, log),
	}
}

// analyze runs a task through its whole lifecycle and returns the stored text.
func (r repos) analyze(t *testing.T, docID int, force bool, text string) *entity.ExtractedText {
	t.Helper()
	ctx := context.Background()
	task, _, err := r.tasks.Admit(ctx, docID, force)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if ok, err := r.tasks.MarkRunning(ctx, task.ID); err != nil || !ok {
		t.Fatalf("mark running = %v, %v", ok, err)
	}
	stored, err := r.tasks.Complete(ctx, task.ID, text)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	return stored
}

func TestDocumentCreateAndGet(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

	doc, err := r.docs.Create(ctx, "documents/a.png", now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if doc.ID == 0 {
		t.Fatal("expected non-zero id")
	}

	got, err := r.docs.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Path != "documents/a.png" {
		t.Fatalf("expected path documents/a.png, got %s", got.Path)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("expected date %s, got %s", now, got.CreatedAt)
	}

	if _, err := r.docs.GetByID(ctx, doc.ID+100); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDocumentDeleteCascades(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	doc, _ := r.docs.Create(ctx, "documents/a.png", time.Now())
	other, _ := r.docs.Create(ctx, "documents/b.png", time.Now())
	r.analyze(t, doc.ID, false, "first")
	r.analyze(t, other.ID, false, "other")

	var released *entity.Document
	if _, err := r.docs.Delete(ctx, doc.ID, func(d *entity.Document) error {
		released = d
		return nil
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if released == nil || released.Path != "documents/a.png" {
		t.Fatalf("release hook got %+v", released)
	}

	texts, err := r.texts.ListByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(texts) != 0 {
		t.Fatalf("expected texts removed with document, got %d", len(texts))
	}
	if n, _ := r.texts.Count(ctx); n != 1 {
		t.Fatalf("expected the other document's text to survive, count=%d", n)
	}
	if _, err := r.docs.Delete(ctx, doc.ID, nil); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestDocumentDeleteReleaseErrorRollsBack(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	doc, _ := r.docs.Create(ctx, "documents/a.png", time.Now())
	r.analyze(t, doc.ID, false, "kept")

	boom := errors.New("disk busy")
	_, err := r.docs.Delete(ctx, doc.ID, func(*entity.Document) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected release error, got %v", err)
	}

	if _, err := r.docs.GetByID(ctx, doc.ID); err != nil {
		t.Fatalf("document should still exist: %v", err)
	}
	if n, _ := r.texts.CountByDocument(ctx, doc.ID); n != 1 {
		t.Fatalf("texts should still exist, got %d", n)
	}
}

func TestTaskAdmitRules(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	if _, _, err := r.tasks.Admit(ctx, 999999, false); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	doc, _ := r.docs.Create(ctx, "documents/a.png", time.Now())
	task, gotDoc, err := r.tasks.Admit(ctx, doc.ID, false)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if task.Status != constants.TaskStatusQueued || gotDoc.Path != doc.Path {
		t.Fatalf("unexpected admit result %+v %+v", task, gotDoc)
	}

	if _, _, err := r.tasks.Admit(ctx, doc.ID, true); !errors.Is(err, repository.ErrTaskActive) {
		t.Fatalf("expected ErrTaskActive, got %v", err)
	}
	if !errors.Is(repository.ErrTaskActive, common.ErrConflict) {
		t.Fatal("ErrTaskActive should be a conflict")
	}

	if ok, _ := r.tasks.MarkRunning(ctx, task.ID); !ok {
		t.Fatal("expected task to start")
	}
	if _, err := r.tasks.Complete(ctx, task.ID, "HELLO"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, _, err := r.tasks.Admit(ctx, doc.ID, false); !errors.Is(err, repository.ErrAlreadyAnalyzed) {
		t.Fatalf("expected ErrAlreadyAnalyzed, got %v", err)
	}
	if _, _, err := r.tasks.Admit(ctx, doc.ID, true); err != nil {
		t.Fatalf("forced admit: %v", err)
	}
}

func TestTaskCompleteStoresTextAndMarksDone(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	doc, _ := r.docs.Create(ctx, "documents/a.png", time.Now())
	stored := r.analyze(t, doc.ID, false, "HELLO")
	if stored.DocumentID != doc.ID || stored.Content() != "HELLO" {
		t.Fatalf("unexpected stored text %+v", stored)
	}

	got, err := r.texts.GetByID(ctx, stored.ID)
	if err != nil || got.Content() != "HELLO" {
		t.Fatalf("get text = %+v, %v", got, err)
	}
}

func TestTaskCompleteDiscardsAfterDocumentDeleted(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	doc, _ := r.docs.Create(ctx, "documents/a.png", time.Now())
	task, _, _ := r.tasks.Admit(ctx, doc.ID, false)
	_, _ = r.tasks.MarkRunning(ctx, task.ID)

	if _, err := r.docs.Delete(ctx, doc.ID, nil); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := r.tasks.Complete(ctx, task.ID, "late"); !errors.Is(err, repository.ErrDocumentGone) {
		t.Fatalf("expected ErrDocumentGone, got %v", err)
	}
	if n, _ := r.texts.Count(ctx); n != 0 {
		t.Fatalf("expected no texts, got %d", n)
	}
}

func TestTaskCompleteRejectedAfterFail(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	doc, _ := r.docs.Create(ctx, "documents/a.png", time.Now())
	task, _, _ := r.tasks.Admit(ctx, doc.ID, false)
	_, _ = r.tasks.MarkRunning(ctx, task.ID)

	ok, err := r.tasks.Fail(ctx, task.ID, common.KindExtractionFailed, "analysis timed out")
	if err != nil || !ok {
		t.Fatalf("fail = %v, %v", ok, err)
	}
	if ok, _ := r.tasks.Fail(ctx, task.ID, common.KindExtractionFailed, "again"); ok {
		t.Fatal("terminal task must not fail twice")
	}
	if ok, _ := r.tasks.MarkRunning(ctx, task.ID); ok {
		t.Fatal("terminal task must not restart")
	}

	if _, err := r.tasks.Complete(ctx, task.ID, "late"); !errors.Is(err, repository.ErrTaskNotRunning) {
		t.Fatalf("expected ErrTaskNotRunning, got %v", err)
	}
	if n, _ := r.texts.CountByDocument(ctx, doc.ID); n != 0 {
		t.Fatalf("expected no texts, got %d", n)
	}

	got, err := r.tasks.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != constants.TaskStatusFailed || got.ErrorKind == nil || *got.ErrorKind != string(common.KindExtractionFailed) {
		t.Fatalf("unexpected task state %+v", got)
	}
	if got.FinishedAt == nil {
		t.Fatal("expected finished_at to be set")
	}
}

func TestListByDocumentReturnsOnlyItsRows(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	doc, _ := r.docs.Create(ctx, "documents/a.png", time.Now())
	other, _ := r.docs.Create(ctx, "documents/b.png", time.Now())

	r.analyze(t, doc.ID, false, "one")
	r.analyze(t, other.ID, false, "noise")
	r.analyze(t, doc.ID, true, "two")
	r.analyze(t, doc.ID, true, "three")

	texts, err := r.texts.ListByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"one", "two", "three"}
	if len(texts) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(texts))
	}
	for i, txt := range texts {
		if txt.Content() != want[i] || txt.DocumentID != doc.ID {
			t.Fatalf("row %d = %+v, want %q", i, txt, want[i])
		}
	}
}

func TestTaskFailStaleOnlyTouchesOldActiveTasks(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	old, _ := r.docs.Create(ctx, "documents/a.png", time.Now())
	done, _ := r.docs.Create(ctx, "documents/b.png", time.Now())
	fresh, _ := r.docs.Create(ctx, "documents/c.png", time.Now())

	queued, _, _ := r.tasks.Admit(ctx, old.ID, false)
	r.analyze(t, done.ID, false, "finished")
	running, _, _ := r.tasks.Admit(ctx, fresh.ID, false)
	_, _ = r.tasks.MarkRunning(ctx, running.ID)

	n, err := r.tasks.FailStale(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("fail stale: %v", err)
	}
	if n != 0 {
		t.Fatalf("no task is older than the cutoff, changed %d", n)
	}

	n, err = r.tasks.FailStale(ctx, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("fail stale: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected both active tasks failed, changed %d", n)
	}
	for _, id := range []string{queued.ID, running.ID} {
		got, _ := r.tasks.GetByID(ctx, id)
		if got.Status != constants.TaskStatusFailed || got.ErrorMessage == nil || *got.ErrorMessage != repository.StaleTaskMessage {
			t.Fatalf("unexpected task state %+v", got)
		}
	}
	if _, _, err := r.tasks.Admit(ctx, old.ID, false); err != nil {
		t.Fatalf("admit after sweep: %v", err)
	}
	if n, _ := r.texts.CountByDocument(ctx, done.ID); n != 1 {
		t.Fatalf("finished task's text must survive, got %d", n)
	}
}
