package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/joseph-ayodele/docs-analyzer/internal/common"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// writeError maps err to a status and a body that carries no internal detail.
// Server-side failures are logged with their cause.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := common.HTTPStatus(err)
	log := common.LoggerFromContext(r.Context(), logger)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "status", status, "kind", common.KindOf(err), "error", err)
	} else {
		log.Debug("request rejected", "status", status, "kind", common.KindOf(err), "error", err)
	}
	writeJSON(w, status, ErrorResponse{
		Error:   string(common.KindOf(err)),
		Message: common.PublicMessage(err),
	})
}
