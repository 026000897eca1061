package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/docs-analyzer/constants"
	"github.com/joseph-ayodele/docs-analyzer/internal/common"
	"github.com/joseph-ayodele/docs-analyzer/internal/entity"
)

var taskColumns = []string{
	"id", "document_id", "status", "force", "text_id",
	"error_kind", "error_message", "created_at", "started_at", "finished_at",
}

var (
	ErrTaskActive      = fmt.Errorf("analysis already in progress: %w", common.ErrConflict)
	ErrAlreadyAnalyzed = fmt.Errorf("document already analyzed: %w", common.ErrConflict)
	ErrTaskNotRunning  = errors.New("task is not running")
	ErrDocumentGone    = errors.New("document no longer exists")
)

type TaskRepository interface {
	// Admit records a QUEUED task for the document. It fails with ErrNotFound,
	// ErrTaskActive, or (unless force) ErrAlreadyAnalyzed.
	Admit(ctx context.Context, documentID int, force bool) (*entity.AnalysisTask, *entity.Document, error)
	GetByID(ctx context.Context, id string) (*entity.AnalysisTask, error)
	// ListByDocument returns the document's tasks oldest first.
	ListByDocument(ctx context.Context, documentID int) ([]*entity.AnalysisTask, error)
	// MarkRunning moves a QUEUED or RUNNING task to RUNNING. It reports false
	// when the task is gone or already terminal.
	MarkRunning(ctx context.Context, id string) (bool, error)
	// Fail moves a non-terminal task to FAILED. It reports false when the task
	// was gone or already terminal.
	Fail(ctx context.Context, id string, kind common.Kind, message string) (bool, error)
	// FailStale marks QUEUED and RUNNING tasks created before cutoff as
	// FAILED/extraction_failed and reports how many it changed.
	FailStale(ctx context.Context, cutoff time.Time) (int, error)
	// Complete stores text for a RUNNING task and marks it DONE, atomically.
	// It returns ErrDocumentGone or ErrTaskNotRunning and stores nothing when
	// the document was deleted or the task left RUNNING in the meantime.
	Complete(ctx context.Context, id string, text string) (*entity.ExtractedText, error)
}

type taskRepo struct {
	db  *DB
	log *slog.Logger
	now func() time.Time
}

func NewTaskRepository(db *DB, log *slog.Logger) TaskRepository {
	if log == nil {
		log = slog.Default()
	}
	return &taskRepo{db: db, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func activeStatuses() []any {
	out := make([]any, 0, len(constants.ActiveTaskStatuses))
	for _, s := range constants.ActiveTaskStatuses {
		out = append(out, string(s))
	}
	return out
}

func (r *taskRepo) Admit(ctx context.Context, documentID int, force bool) (*entity.AnalysisTask, *entity.Document, error) {
	docs := &documentRepo{db: r.db, log: r.log}
	var (
		task *entity.AnalysisTask
		doc  *entity.Document
	)
	err := r.db.withTx(ctx, func(tx dialect.Tx) error {
		d, err := docs.get(ctx, tx, documentID, true)
		if err != nil {
			return err
		}
		doc = d

		active, err := r.db.count(ctx, tx, tasksTable, entsql.And(
			entsql.EQ("document_id", documentID),
			entsql.In("status", activeStatuses()...),
		))
		if err != nil {
			return fmt.Errorf("count active tasks: %w", err)
		}
		if active > 0 {
			return ErrTaskActive
		}

		if !force {
			texts, err := r.db.count(ctx, tx, textsTable, entsql.EQ("id_doc", documentID))
			if err != nil {
				return fmt.Errorf("count texts: %w", err)
			}
			if texts > 0 {
				return ErrAlreadyAnalyzed
			}
		}

		t := &entity.AnalysisTask{
			ID:         uuid.NewString(),
			DocumentID: documentID,
			Status:     constants.TaskStatusQueued,
			Force:      force,
			CreatedAt:  r.now(),
		}
		query, args := r.db.builder().Insert(tasksTable).
			Columns("id", "document_id", "status", "force", "created_at").
			Values(t.ID, t.DocumentID, string(t.Status), t.Force, t.CreatedAt).
			Query()
		if _, err := execQuery(ctx, tx, query, args); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		task = t
		return nil
	})
	if err != nil {
		r.log.Warn("analysis task not admitted", "document_id", documentID, "force", force, "error", err)
		return nil, nil, err
	}
	r.log.Info("analysis task queued", "task_id", task.ID, "document_id", documentID, "force", force)
	return task, doc, nil
}

func (r *taskRepo) GetByID(ctx context.Context, id string) (*entity.AnalysisTask, error) {
	return r.get(ctx, r.db.drv, id, false)
}

func (r *taskRepo) get(ctx context.Context, q dialect.ExecQuerier, id string, lock bool) (*entity.AnalysisTask, error) {
	b := r.db.builder()
	sel := b.Select(taskColumns...).
		From(b.Table(tasksTable)).
		Where(entsql.EQ("id", id))
	if lock {
		r.db.lockRow(sel)
	}
	query, args := sel.Query()

	var task *entity.AnalysisTask
	err := queryRows(ctx, q, query, args, func(rows *entsql.Rows) error {
		t, err := scanTask(rows)
		task = t
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	if task == nil {
		return nil, fmt.Errorf("task %s: %w", id, common.ErrNotFound)
	}
	return task, nil
}

func (r *taskRepo) ListByDocument(ctx context.Context, documentID int) ([]*entity.AnalysisTask, error) {
	b := r.db.builder()
	query, args := b.Select(taskColumns...).
		From(b.Table(tasksTable)).
		Where(entsql.EQ("document_id", documentID)).
		OrderBy("created_at", "id").
		Query()

	var out []*entity.AnalysisTask
	err := queryRows(ctx, r.db.drv, query, args, func(rows *entsql.Rows) error {
		t, err := scanTask(rows)
		if err == nil {
			out = append(out, t)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks for document %d: %w", documentID, err)
	}
	return out, nil
}

func (r *taskRepo) MarkRunning(ctx context.Context, id string) (bool, error) {
	query, args := r.db.builder().Update(tasksTable).
		Set("status", string(constants.TaskStatusRunning)).
		Set("started_at", r.now()).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.In("status", activeStatuses()...),
		)).
		Query()
	res, err := execQuery(ctx, r.db.drv, query, args)
	if err != nil {
		r.log.Error("analysis task start failed", "task_id", id, "err", err)
		return false, fmt.Errorf("start task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		r.log.Info("analysis task not startable", "task_id", id)
		return false, nil
	}
	r.log.Info("analysis task running", "task_id", id)
	return true, nil
}

func (r *taskRepo) Fail(ctx context.Context, id string, kind common.Kind, message string) (bool, error) {
	query, args := r.db.builder().Update(tasksTable).
		Set("status", string(constants.TaskStatusFailed)).
		Set("error_kind", string(kind)).
		Set("error_message", message).
		Set("finished_at", r.now()).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.In("status", activeStatuses()...),
		)).
		Query()
	res, err := execQuery(ctx, r.db.drv, query, args)
	if err != nil {
		r.log.Error("analysis task finish(FAILED) failed", "task_id", id, "err", err)
		return false, fmt.Errorf("fail task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	r.log.Warn("analysis task finished (FAILED)", "task_id", id, "kind", kind, "error", message)
	return true, nil
}

// StaleTaskMessage is recorded on tasks that outlived the analysis timeout.
const StaleTaskMessage = "analysis timed out"

func (r *taskRepo) FailStale(ctx context.Context, cutoff time.Time) (int, error) {
	query, args := r.db.builder().Update(tasksTable).
		Set("status", string(constants.TaskStatusFailed)).
		Set("error_kind", string(common.KindExtractionFailed)).
		Set("error_message", StaleTaskMessage).
		Set("finished_at", r.now()).
		Where(entsql.And(
			entsql.In("status", activeStatuses()...),
			entsql.LT("created_at", cutoff.UTC()),
		)).
		Query()
	res, err := execQuery(ctx, r.db.drv, query, args)
	if err != nil {
		r.log.Error("stale task sweep failed", "cutoff", cutoff, "err", err)
		return 0, fmt.Errorf("fail stale tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.log.Warn("stale analysis tasks failed", "count", n, "cutoff", cutoff)
	}
	return int(n), nil
}

func (r *taskRepo) Complete(ctx context.Context, id string, text string) (*entity.ExtractedText, error) {
	docs := &documentRepo{db: r.db, log: r.log}
	var stored *entity.ExtractedText
	err := r.db.withTx(ctx, func(tx dialect.Tx) error {
		// Lock order matches Delete: document row first, then the task.
		task, err := r.get(ctx, tx, id, false)
		if errors.Is(err, common.ErrNotFound) {
			// tasks are removed together with their document
			return ErrDocumentGone
		}
		if err != nil {
			return err
		}
		if _, err := docs.get(ctx, tx, task.DocumentID, true); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return ErrDocumentGone
			}
			return err
		}
		if task, err = r.get(ctx, tx, id, true); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return ErrDocumentGone
			}
			return err
		}
		if task.Status != constants.TaskStatusRunning {
			return ErrTaskNotRunning
		}

		ib := r.db.builder().Insert(textsTable).
			Columns("id_doc", "text").
			Values(task.DocumentID, text)
		textID, err := r.db.insertID(ctx, tx, ib)
		if err != nil {
			return fmt.Errorf("insert text: %w", err)
		}

		query, args := r.db.builder().Update(tasksTable).
			Set("status", string(constants.TaskStatusDone)).
			Set("text_id", textID).
			Set("finished_at", r.now()).
			Where(entsql.And(
				entsql.EQ("id", id),
				entsql.EQ("status", string(constants.TaskStatusRunning)),
			)).
			Query()
		res, err := execQuery(ctx, tx, query, args)
		if err != nil {
			return fmt.Errorf("finish task: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n != 1 {
			return ErrTaskNotRunning
		}

		content := text
		stored = &entity.ExtractedText{ID: textID, DocumentID: task.DocumentID, Text: &content}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDocumentGone) || errors.Is(err, ErrTaskNotRunning) {
			r.log.Info("analysis result discarded", "task_id", id, "reason", err)
		} else {
			r.log.Error("analysis task finish(DONE) failed", "task_id", id, "err", err)
		}
		return nil, err
	}
	r.log.Info("analysis task finished (DONE)", "task_id", id, "text_id", stored.ID, "document_id", stored.DocumentID)
	return stored, nil
}

func scanTask(rows *entsql.Rows) (*entity.AnalysisTask, error) {
	var (
		t            entity.AnalysisTask
		status       string
		textID       sql.NullInt64
		errorKind    sql.NullString
		errorMessage sql.NullString
		startedAt    sql.NullTime
		finishedAt   sql.NullTime
	)
	if err := rows.Scan(&t.ID, &t.DocumentID, &status, &t.Force, &textID,
		&errorKind, &errorMessage, &t.CreatedAt, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	t.Status = constants.TaskStatus(status)
	t.CreatedAt = t.CreatedAt.UTC()
	if textID.Valid {
		v := int(textID.Int64)
		t.TextID = &v
	}
	if errorKind.Valid {
		t.ErrorKind = &errorKind.String
	}
	if errorMessage.Valid {
		t.ErrorMessage = &errorMessage.String
	}
	if startedAt.Valid {
		v := startedAt.Time.UTC()
		t.StartedAt = &v
	}
	if finishedAt.Valid {
		v := finishedAt.Time.UTC()
		t.FinishedAt = &v
	}
	return &t, nil
}
