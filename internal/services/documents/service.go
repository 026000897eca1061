package documents

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docs-analyzer/constants"
	"github.com/joseph-ayodele/docs-analyzer/internal/async"
	"github.com/joseph-ayodele/docs-analyzer/internal/blob"
	"github.com/joseph-ayodele/docs-analyzer/internal/common"
	"github.com/joseph-ayodele/docs-analyzer/internal/entity"
	"github.com/joseph-ayodele/docs-analyzer/internal/repository"
)

// Dispatcher is the part of *async.Dispatcher the service needs.
type Dispatcher interface {
	Submit(ctx context.Context, task async.Task) error
	Mode() async.Mode
	Timeout() time.Duration
}

// staleGrace is added to the dispatch timeout before an unfinished task is
// treated as abandoned.
const staleGrace = 30 * time.Second

type Option func(*Service)

// WithStaleAfter sets the age at which a QUEUED or RUNNING task is considered
// abandoned and failed, unblocking new analyses of its document.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// AnalysisHandle is the outcome of Analyze. Text is set only when Status is DONE.
type AnalysisHandle struct {
	Status constants.TaskStatus
	Task   *entity.AnalysisTask
	Text   *entity.ExtractedText
}

// Service handles document business logic.
type Service struct {
	docs       repository.DocumentRepository
	texts      repository.TextRepository
	tasks      repository.TaskRepository
	blobs      blob.Store
	dispatcher Dispatcher
	logger     *slog.Logger
	now        func() time.Time
	staleAfter time.Duration
}

// NewService creates a new document service.
func NewService(
	docs repository.DocumentRepository,
	texts repository.TextRepository,
	tasks repository.TaskRepository,
	blobs blob.Store,
	dispatcher Dispatcher,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		docs:       docs,
		texts:      texts,
		tasks:      tasks,
		blobs:      blobs,
		dispatcher: dispatcher,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		staleAfter: dispatcher.Timeout() + staleGrace,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Upload stores r as a new blob and records it. Either both exist afterwards or neither does.
func (s *Service) Upload(ctx context.Context, r io.Reader, originalName string) (*entity.Document, error) {
	log := common.LoggerFromContext(ctx, s.logger)

	br := bufio.NewReader(r)
	if _, err := br.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, common.InvalidInputError("uploaded file is empty")
		}
		return nil, common.InvalidInputError("could not read uploaded file")
	}

	name := uuid.NewString() + constants.SafeExt(filepath.Ext(filepath.Base(originalName)))
	path, err := s.blobs.Put(ctx, name, br)
	if err != nil {
		log.Error("blob write failed", "name", name, "error", err)
		return nil, common.NewAppError(common.KindBlobWriteFailed, "could not store document", err)
	}

	doc, err := s.docs.Create(ctx, path, s.now())
	if err != nil {
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), path); derr != nil && !errors.Is(derr, blob.ErrNotFound) {
			log.Error("orphaned blob after failed insert", "path", path, "error", derr)
		}
		return nil, common.NewAppError(common.KindRecordInsertFailed, "could not record document", err)
	}

	log.Info("document uploaded", "document_id", doc.ID, "path", doc.Path)
	return doc, nil
}

// Delete removes the document, its texts and its blob. A blob that is already
// gone does not block deletion; any other blob error leaves the record intact.
func (s *Service) Delete(ctx context.Context, id int) error {
	log := common.LoggerFromContext(ctx, s.logger).With("document_id", id)

	blobRemoved := false
	_, err := s.docs.Delete(ctx, id, func(d *entity.Document) error {
		err := s.blobs.Delete(ctx, d.Path)
		switch {
		case errors.Is(err, blob.ErrNotFound):
			log.Warn("blob already missing, deleting record anyway", "path", d.Path)
			return nil
		case err != nil:
			return common.NewAppError(common.KindBlobDeleteFailed, "could not delete document content", err)
		}
		blobRemoved = true
		return nil
	})

	switch {
	case err == nil:
		log.Info("document deleted")
		return nil
	case errors.Is(err, common.ErrNotFound):
		return common.NotFoundError("document not found")
	case common.KindOf(err) == common.KindBlobDeleteFailed:
		log.Error("blob delete failed, record kept", "error", err)
		return err
	case blobRemoved:
		log.Error("record delete failed after blob was removed", "orphaned_record", id, "error", err)
	default:
		log.Error("record delete failed", "error", err)
	}
	return common.NewAppError(common.KindRecordDeleteFailed, "could not delete document record", err)
}

// Analyze records a task for the document and submits it. In sync mode the
// handle carries the stored text; in async mode it carries the queued task.
func (s *Service) Analyze(ctx context.Context, id int, force bool) (*AnalysisHandle, error) {
	log := common.LoggerFromContext(ctx, s.logger).With("document_id", id)

	task, doc, err := s.tasks.Admit(ctx, id, force)
	if errors.Is(err, repository.ErrTaskActive) {
		// the active task may belong to a process that died
		if n, rerr := s.ReapStaleTasks(ctx); rerr == nil && n > 0 {
			task, doc, err = s.tasks.Admit(ctx, id, force)
		}
	}
	switch {
	case err == nil:
	case errors.Is(err, common.ErrNotFound):
		return nil, common.NotFoundError("document not found")
	case errors.Is(err, repository.ErrTaskActive):
		return nil, common.ConflictError("analysis of document %d is already in progress", id)
	case errors.Is(err, repository.ErrAlreadyAnalyzed):
		return nil, common.ConflictError("document %d has already been analyzed; pass force=true to analyze it again", id)
	default:
		return nil, common.InternalError("could not start analysis", err)
	}

	payload := async.Task{ID: task.ID, DocumentID: doc.ID, Path: doc.Path, SubmittedAt: task.CreatedAt}
	submitErr := s.dispatcher.Submit(ctx, payload)

	if s.dispatcher.Mode() == async.ModeAsync {
		if submitErr != nil {
			return nil, common.NewAppError(common.KindUnavailable, "analysis could not be started", submitErr)
		}
		log.Info("analysis accepted", "task_id", task.ID)
		return &AnalysisHandle{Status: task.Status, Task: task}, nil
	}
	return s.result(ctx, task.ID, submitErr)
}

// ReapStaleTasks fails QUEUED and RUNNING tasks older than the stale age.
// No live dispatcher still waits on such a task.
func (s *Service) ReapStaleTasks(ctx context.Context) (int, error) {
	n, err := s.tasks.FailStale(ctx, s.now().Add(-s.staleAfter))
	if err != nil {
		s.logger.Error("stale task sweep failed", "error", err)
		return 0, err
	}
	if n > 0 {
		s.logger.Warn("abandoned analysis tasks failed", "count", n, "stale_after", s.staleAfter)
	}
	return n, nil
}

// result reads back the outcome of a synchronously dispatched task.
func (s *Service) result(ctx context.Context, taskID string, submitErr error) (*AnalysisHandle, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	task, err := s.tasks.GetByID(ctx, taskID)
	if errors.Is(err, common.ErrNotFound) {
		// the document was deleted while the task ran
		return nil, common.NotFoundError("document not found")
	}
	if err != nil {
		return nil, common.InternalError("could not read analysis result", err)
	}

	switch task.Status {
	case constants.TaskStatusDone:
		if task.TextID == nil {
			return nil, common.InternalError("analysis finished without text", nil)
		}
		text, err := s.texts.GetByID(ctx, *task.TextID)
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NotFoundError("document not found")
		}
		if err != nil {
			return nil, common.InternalError("could not read analysis result", err)
		}
		return &AnalysisHandle{Status: task.Status, Task: task, Text: text}, nil

	case constants.TaskStatusFailed:
		kind, msg := common.KindExtractionFailed, "text extraction failed"
		if task.ErrorKind != nil {
			kind = common.Kind(*task.ErrorKind)
		}
		if task.ErrorMessage != nil {
			msg = *task.ErrorMessage
		}
		return nil, common.NewAppError(kind, msg, submitErr)
	}

	if submitErr != nil {
		return nil, common.ExtractionFailedError("analysis did not finish", submitErr)
	}
	return nil, common.InternalError("analysis did not finish", nil)
}

// GetText returns every text stored for the document in creation order.
func (s *Service) GetText(ctx context.Context, id int) ([]*entity.ExtractedText, error) {
	if _, err := s.docs.GetByID(ctx, id); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NotFoundError("document not found")
		}
		return nil, common.InternalError("could not load document", err)
	}

	texts, err := s.texts.ListByDocument(ctx, id)
	if err != nil {
		return nil, common.InternalError("could not load texts", err)
	}
	if len(texts) == 0 {
		return nil, common.NotFoundError("text not found")
	}
	return texts, nil
}

// Task returns the analysis task with the given id.
func (s *Service) Task(ctx context.Context, id string) (*entity.AnalysisTask, error) {
	v := common.NewValidator().Field("task_id", id, common.Required, common.UUID)
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NotFoundError("task not found")
		}
		return nil, common.InternalError("could not load task", err)
	}
	return task, nil
}
