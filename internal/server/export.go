package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/joseph-ayodele/docs-analyzer/internal/common"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Exporter is implemented by *export.Service.
type Exporter interface {
	DocumentsXLSX(ctx context.Context) ([]byte, error)
}

type ExportHandler struct {
	svc    Exporter
	logger *slog.Logger
}

func NewExportHandler(svc Exporter, logger *slog.Logger) *ExportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportHandler{svc: svc, logger: logger}
}

func (h *ExportHandler) Documents(w http.ResponseWriter, r *http.Request) {
	xlsx, err := h.svc.DocumentsXLSX(r.Context())
	if err != nil {
		writeError(w, r, h.logger, common.InternalError("export failed", err))
		return
	}

	name := fmt.Sprintf("documents-%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(xlsx)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(xlsx)
}
