package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/docs-analyzer/internal/common"
	"github.com/joseph-ayodele/docs-analyzer/internal/entity"
)

var textColumns = []string{"id", "id_doc", "text"}

type TextRepository interface {
	GetByID(ctx context.Context, id int) (*entity.ExtractedText, error)
	ListByDocument(ctx context.Context, documentID int) ([]*entity.ExtractedText, error)
	ListAll(ctx context.Context) ([]*entity.ExtractedText, error)
	CountByDocument(ctx context.Context, documentID int) (int, error)
	Count(ctx context.Context) (int, error)
}

type textRepo struct {
	db  *DB
	log *slog.Logger
}

func NewTextRepository(db *DB, log *slog.Logger) TextRepository {
	if log == nil {
		log = slog.Default()
	}
	return &textRepo{db: db, log: log}
}

func (r *textRepo) GetByID(ctx context.Context, id int) (*entity.ExtractedText, error) {
	texts, err := r.list(ctx, r.db.drv, entsql.EQ("id", id))
	if err != nil {
		return nil, fmt.Errorf("get text %d: %w", id, err)
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("text %d: %w", id, common.ErrNotFound)
	}
	return texts[0], nil
}

// ListByDocument returns the document's texts in creation order.
func (r *textRepo) ListByDocument(ctx context.Context, documentID int) ([]*entity.ExtractedText, error) {
	texts, err := r.list(ctx, r.db.drv, entsql.EQ("id_doc", documentID))
	if err != nil {
		r.log.Error("list texts failed", "document_id", documentID, "error", err)
		return nil, fmt.Errorf("list texts for document %d: %w", documentID, err)
	}
	return texts, nil
}

func (r *textRepo) ListAll(ctx context.Context) ([]*entity.ExtractedText, error) {
	texts, err := r.list(ctx, r.db.drv, nil)
	if err != nil {
		return nil, fmt.Errorf("list texts: %w", err)
	}
	return texts, nil
}

func (r *textRepo) CountByDocument(ctx context.Context, documentID int) (int, error) {
	return r.db.count(ctx, r.db.drv, textsTable, entsql.EQ("id_doc", documentID))
}

func (r *textRepo) Count(ctx context.Context) (int, error) {
	return r.db.count(ctx, r.db.drv, textsTable, nil)
}

func (r *textRepo) list(ctx context.Context, q dialect.ExecQuerier, where *entsql.Predicate) ([]*entity.ExtractedText, error) {
	b := r.db.builder()
	sel := b.Select(textColumns...).From(b.Table(textsTable)).OrderBy("id")
	if where != nil {
		sel.Where(where)
	}
	query, args := sel.Query()

	var out []*entity.ExtractedText
	err := queryRows(ctx, q, query, args, func(rows *entsql.Rows) error {
		var (
			t    entity.ExtractedText
			text sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.DocumentID, &text); err != nil {
			return err
		}
		if text.Valid {
			t.Text = &text.String
		}
		out = append(out, &t)
		return nil
	})
	return out, err
}
