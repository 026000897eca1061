package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/docs-analyzer/internal/common"
	"github.com/joseph-ayodele/docs-analyzer/internal/entity"
	"github.com/joseph-ayodele/docs-analyzer/internal/repository"
)

const (
	DocumentsSheet = "Documents"
	TextsSheet     = "Texts"

	// excel rejects longer cell values
	maxCellChars = 32767
)

// Service produces XLSX bytes for exports.
type Service struct {
	docs   repository.DocumentRepository
	texts  repository.TextRepository
	logger *slog.Logger
}

func NewService(docs repository.DocumentRepository, texts repository.TextRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{docs: docs, texts: texts, logger: logger}
}

// DocumentsXLSX returns a workbook with one sheet of documents and one of their extracted texts.
func (s *Service) DocumentsXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	var (
		docs  []*entity.Document
		texts []*entity.ExtractedText
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		docs, err = s.docs.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		texts, err = s.texts.ListAll(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, common.WrapError(err, "load export rows")
	}

	perDoc := make(map[int]int, len(docs))
	for _, t := range texts {
		perDoc[t.DocumentID]++
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), DocumentsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(TextsSheet); err != nil {
		return nil, err
	}

	if err := writeRows(f, DocumentsSheet, []any{"Document ID", "Uploaded", "Path", "Texts"}, len(docs), func(i int) []any {
		d := docs[i]
		return []any{d.ID, d.CreatedAt.Format(time.RFC3339), d.Path, perDoc[d.ID]}
	}); err != nil {
		return nil, err
	}
	if err := writeRows(f, TextsSheet, []any{"Text ID", "Document ID", "Text"}, len(texts), func(i int) []any {
		t := texts[i]
		return []any{t.ID, t.DocumentID, truncate(t.Content(), maxCellChars)}
	}); err != nil {
		return nil, err
	}

	_ = f.SetColWidth(DocumentsSheet, "B", "B", 22) // uploaded
	_ = f.SetColWidth(DocumentsSheet, "C", "C", 60) // path
	_ = f.SetColWidth(TextsSheet, "C", "C", 80)     // text

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, common.WrapError(err, "xlsx write")
	}

	s.logger.Info("export.xlsx.ok",
		"documents", len(docs),
		"texts", len(texts),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, header []any, n int, row func(int) []any) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("%s header: %w", sheet, err)
	}
	for i := 0; i < n; i++ {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := row(i)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
