// Package analysis runs OCR for a queued task and records the outcome.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/docs-analyzer/internal/async"
	"github.com/joseph-ayodele/docs-analyzer/internal/blob"
	"github.com/joseph-ayodele/docs-analyzer/internal/common"
	"github.com/joseph-ayodele/docs-analyzer/internal/ocr"
	"github.com/joseph-ayodele/docs-analyzer/internal/repository"
)

// Extractor is the part of *ocr.Extractor the processor needs.
type Extractor interface {
	ExtractReader(ctx context.Context, r io.Reader) (ocr.ExtractionResult, error)
}

// Processor coordinates one analysis: start the task, read the blob, OCR it, store the text.
type Processor struct {
	logger    *slog.Logger
	tasks     repository.TaskRepository
	blobs     blob.Store
	extractor Extractor
}

var _ async.Executor = (*Processor)(nil)

func NewProcessor(logger *slog.Logger, tasks repository.TaskRepository, blobs blob.Store, extractor Extractor) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{logger: logger, tasks: tasks, blobs: blobs, extractor: extractor}
}

// Execute records the task's outcome. Extraction problems end the task as
// FAILED and return nil; only errors that left the outcome unrecorded are returned.
func (p *Processor) Execute(ctx context.Context, task async.Task) error {
	log := common.LoggerFromContext(ctx, p.logger).With("task_id", task.ID, "document_id", task.DocumentID)

	started, err := p.tasks.MarkRunning(ctx, task.ID)
	if err != nil {
		return err
	}
	if !started {
		log.Info("task no longer runnable, skipping")
		return nil
	}

	start := time.Now()
	res, err := p.extract(ctx, task.Path)
	if err != nil {
		return p.fail(ctx, log, task, err)
	}
	log.Debug("ocr done", "format", res.Format, "method", res.Method, "chars", len(res.Text), "duration_ms", time.Since(start).Milliseconds())

	stored, err := p.tasks.Complete(ctx, task.ID, res.Text)
	switch {
	case errors.Is(err, repository.ErrDocumentGone), errors.Is(err, repository.ErrTaskNotRunning):
		log.Info("analysis result discarded", "reason", err)
		return nil
	case err != nil:
		return fmt.Errorf("store text: %w", err)
	}
	log.Info("analysis completed", "text_id", stored.ID, "elapsed", time.Since(start))
	return nil
}

func (p *Processor) extract(ctx context.Context, path string) (ocr.ExtractionResult, error) {
	rc, err := p.blobs.Open(ctx, path)
	if err != nil {
		return ocr.ExtractionResult{}, fmt.Errorf("open blob: %w", err)
	}
	defer rc.Close()
	return p.extractor.ExtractReader(ctx, rc)
}

func (p *Processor) fail(ctx context.Context, log *slog.Logger, task async.Task, cause error) error {
	// timeouts are recorded by the dispatcher with its own message
	if ctx.Err() != nil {
		return ctx.Err()
	}
	msg := failureMessage(cause)
	log.Warn("analysis failed", "reason", msg, "error", cause)
	if _, err := p.tasks.Fail(ctx, task.ID, common.KindExtractionFailed, msg); err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, ocr.ErrUnsupportedImage):
		return "document is not a supported image"
	case errors.Is(err, ocr.ErrNoText):
		return "no text found in document"
	case errors.Is(err, blob.ErrNotFound):
		return "document content is missing"
	default:
		return "text extraction failed"
	}
}
