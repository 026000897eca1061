package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/docs-analyzer/internal/common"
	"github.com/joseph-ayodele/docs-analyzer/internal/entity"
)

var documentColumns = []string{"id", "path", "date"}

type DocumentRepository interface {
	Create(ctx context.Context, path string, createdAt time.Time) (*entity.Document, error)
	GetByID(ctx context.Context, id int) (*entity.Document, error)
	List(ctx context.Context) ([]*entity.Document, error)
	Count(ctx context.Context) (int, error)
	// Delete removes the document with its texts and tasks in one transaction.
	// release runs inside the transaction after the rows are gone; a non-nil
	// error from it rolls everything back and is returned unchanged.
	Delete(ctx context.Context, id int, release func(*entity.Document) error) (*entity.Document, error)
}

type documentRepo struct {
	db  *DB
	log *slog.Logger
}

func NewDocumentRepository(db *DB, log *slog.Logger) DocumentRepository {
	if log == nil {
		log = slog.Default()
	}
	return &documentRepo{db: db, log: log}
}

func (r *documentRepo) Create(ctx context.Context, path string, createdAt time.Time) (*entity.Document, error) {
	createdAt = createdAt.UTC()
	ib := r.db.builder().Insert(documentsTable).
		Columns("path", "date").
		Values(path, createdAt)

	id, err := r.db.insertID(ctx, r.db.drv, ib)
	if err != nil {
		r.log.Error("document insert failed", "error", err)
		return nil, fmt.Errorf("insert document: %w", err)
	}
	r.log.Info("document created", "document_id", id)
	return &entity.Document{ID: id, Path: path, CreatedAt: createdAt}, nil
}

func (r *documentRepo) GetByID(ctx context.Context, id int) (*entity.Document, error) {
	return r.get(ctx, r.db.drv, id, false)
}

func (r *documentRepo) get(ctx context.Context, q dialect.ExecQuerier, id int, lock bool) (*entity.Document, error) {
	b := r.db.builder()
	sel := b.Select(documentColumns...).
		From(b.Table(documentsTable)).
		Where(entsql.EQ("id", id))
	if lock {
		r.db.lockRow(sel)
	}
	query, args := sel.Query()

	var doc *entity.Document
	err := queryRows(ctx, q, query, args, func(rows *entsql.Rows) error {
		d, err := scanDocument(rows)
		doc = d
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get document %d: %w", id, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document %d: %w", id, common.ErrNotFound)
	}
	return doc, nil
}

func (r *documentRepo) List(ctx context.Context) ([]*entity.Document, error) {
	b := r.db.builder()
	query, args := b.Select(documentColumns...).
		From(b.Table(documentsTable)).
		OrderBy("id").
		Query()

	var out []*entity.Document
	err := queryRows(ctx, r.db.drv, query, args, func(rows *entsql.Rows) error {
		d, err := scanDocument(rows)
		if err == nil {
			out = append(out, d)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return out, nil
}

func (r *documentRepo) Count(ctx context.Context) (int, error) {
	return r.db.count(ctx, r.db.drv, documentsTable, nil)
}

func (r *documentRepo) Delete(ctx context.Context, id int, release func(*entity.Document) error) (*entity.Document, error) {
	var doc *entity.Document
	err := r.db.withTx(ctx, func(tx dialect.Tx) error {
		d, err := r.get(ctx, tx, id, true)
		if err != nil {
			return err
		}
		doc = d

		b := r.db.builder()
		deletes := []*entsql.DeleteBuilder{
			b.Delete(textsTable).Where(entsql.EQ("id_doc", id)),
			b.Delete(tasksTable).Where(entsql.EQ("document_id", id)),
			b.Delete(documentsTable).Where(entsql.EQ("id", id)),
		}
		for _, del := range deletes {
			query, args := del.Query()
			if _, err := execQuery(ctx, tx, query, args); err != nil {
				return fmt.Errorf("delete document %d: %w", id, err)
			}
		}

		if release != nil {
			return release(d)
		}
		return nil
	})
	if err != nil {
		r.log.Warn("document delete aborted", "document_id", id, "error", err)
		return nil, err
	}
	r.log.Info("document deleted", "document_id", id)
	return doc, nil
}

func scanDocument(rows *entsql.Rows) (*entity.Document, error) {
	var d entity.Document
	if err := rows.Scan(&d.ID, &d.Path, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.CreatedAt = d.CreatedAt.UTC()
	return &d, nil
}
