package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/joseph-ayodele/docs-analyzer/internal/common"
	"github.com/joseph-ayodele/docs-analyzer/internal/entity"
	"github.com/joseph-ayodele/docs-analyzer/internal/services/documents"
)

// multipart framing allowance on top of the file size limit
const multipartOverhead = 1 << 20

// DocumentService is implemented by *documents.Service.
type DocumentService interface {
	Upload(ctx context.Context, r io.Reader, originalName string) (*entity.Document, error)
	Delete(ctx context.Context, id int) error
	Analyze(ctx context.Context, id int, force bool) (*documents.AnalysisHandle, error)
	GetText(ctx context.Context, id int) ([]*entity.ExtractedText, error)
	Task(ctx context.Context, id string) (*entity.AnalysisTask, error)
}

type DocumentHandler struct {
	svc         DocumentService
	maxFileSize int64
	logger      *slog.Logger
}

func NewDocumentHandler(svc DocumentService, maxFileSize int64, logger *slog.Logger) *DocumentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentHandler{svc: svc, maxFileSize: maxFileSize, logger: logger}
}

type messageResponse struct {
	Message string `json:"message"`
}

type analysisAcceptedResponse struct {
	Message    string `json:"message"`
	DocumentID int    `json:"document_id"`
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
}

type textsResponse struct {
	Texts []string `json:"texts"`
}

func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, h.logger, h.tooLarge(err))
			return
		}
		writeError(w, r, h.logger, common.InvalidInputError("multipart field \"file\" is required"))
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	if header.Size > h.maxFileSize {
		writeError(w, r, h.logger, h.tooLarge(nil))
		return
	}

	doc, err := h.svc.Upload(r.Context(), file, header.Filename)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) tooLarge(cause error) error {
	return common.NewAppError(common.KindPayloadTooLarge,
		fmt.Sprintf("file exceeds the %d byte limit", h.maxFileSize), cause)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := common.ParseID("document_id", mux.Vars(r)["document_id"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Document with id %d has been deleted", id),
	})
}

func (h *DocumentHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, err := common.ParseID("id", q.Get("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	force, err := common.ParseFlag("force", q.Get("force"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	handle, err := h.svc.Analyze(r.Context(), id, force)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if handle.Text != nil {
		writeJSON(w, http.StatusOK, handle.Text)
		return
	}
	writeJSON(w, http.StatusAccepted, analysisAcceptedResponse{
		Message:    "Document analysis started",
		DocumentID: id,
		TaskID:     handle.Task.ID,
		Status:     handle.Status.String(),
	})
}

func (h *DocumentHandler) GetText(w http.ResponseWriter, r *http.Request) {
	id, err := common.ParseID("doc_id", mux.Vars(r)["doc_id"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	texts, err := h.svc.GetText(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := textsResponse{Texts: make([]string, 0, len(texts))}
	for _, t := range texts {
		out.Texts = append(out.Texts, t.Content())
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *DocumentHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.svc.Task(r.Context(), mux.Vars(r)["task_id"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}
