// Package doctest wires a document service over SQLite, a temp directory
// blob store and the in-process worker pool for tests.
package doctest

import (
	"context"
	"testing"
	"time"

	"github.com/joseph-ayodele/docs-analyzer/internal/analysis"
	"github.com/joseph-ayodele/docs-analyzer/internal/async"
	"github.com/joseph-ayodele/docs-analyzer/internal/blob"
	"github.com/joseph-ayodele/docs-analyzer/internal/ocr"
	"github.com/joseph-ayodele/docs-analyzer/internal/repository"
	"github.com/joseph-ayodele/docs-analyzer/internal/repository/repotest"
	"github.com/joseph-ayodele/docs-analyzer/internal/services/documents"
)

type Options struct {
	// Engine replaces the configured OCR engine when set.
	Engine  ocr.Engine
	Mode    async.Mode
	Timeout time.Duration
	// StaleAfter overrides the age at which unfinished tasks are abandoned.
	StaleAfter time.Duration
	// Blobs wraps the directory store, e.g. to inject failures.
	Blobs func(blob.Store) blob.Store
	// Docs wraps the document repository.
	Docs func(repository.DocumentRepository) repository.DocumentRepository
}

type Stack struct {
	DB         *repository.DB
	Docs       repository.DocumentRepository
	Texts      repository.TextRepository
	Tasks      repository.TaskRepository
	Dir        *blob.FSStore
	Blobs      blob.Store
	Dispatcher *async.Dispatcher
	Service    *documents.Service
}

// New builds a stack that is shut down when the test ends.
func New(t testing.TB, opts Options) *Stack {
	t.Helper()
	log := repotest.Logger()
	db := repotest.Open(t)

	dir, err := blob.NewFSStore(t.TempDir(), log)
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	var blobs blob.Store = dir
	if opts.Blobs != nil {
		blobs = opts.Blobs(dir)
	}

	var extractorOpts []ocr.Option
	if opts.Engine != nil {
		extractorOpts = append(extractorOpts, ocr.WithEngine(opts.Engine))
	}
	extractor, err := ocr.NewExtractor(ocr.Config{}, log, extractorOpts...)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}

	var docs repository.DocumentRepository = repository.NewDocumentRepository(db, log)
	if opts.Docs != nil {
		docs = opts.Docs(docs)
	}
	texts := repository.NewTextRepository(db, log)
	tasks := repository.NewTaskRepository(db, log)

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	proc := analysis.NewProcessor(log, tasks, blobs, extractor)
	queue := async.NewProcessorQueue(proc, log, async.WithWorkers(2), async.WithProcessTimeout(timeout))
	dispatcher := async.NewDispatcher(queue, tasks, opts.Mode, timeout, log)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		dispatcher.Shutdown(ctx)
	})

	return &Stack{
		DB:         db,
		Docs:       docs,
		Texts:      texts,
		Tasks:      tasks,
		Dir:        dir,
		Blobs:      blobs,
		Dispatcher: dispatcher,
		Service:    documents.NewService(docs, texts, tasks, blobs, dispatcher, log, documents.WithStaleAfter(opts.StaleAfter)),
	}
}
