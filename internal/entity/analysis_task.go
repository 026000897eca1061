package entity

import (
	"time"

	"github.com/joseph-ayodele/docs-analyzer/constants"
)

// AnalysisTask tracks one analysis submission for a document.
type AnalysisTask struct {
	ID           string               `json:"id"`
	DocumentID   int                  `json:"document_id"`
	Status       constants.TaskStatus `json:"status"`
	Force        bool                 `json:"force"`
	TextID       *int                 `json:"text_id,omitempty"`
	ErrorKind    *string              `json:"error_kind,omitempty"`
	ErrorMessage *string              `json:"error_message,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	StartedAt    *time.Time           `json:"started_at,omitempty"`
	FinishedAt   *time.Time           `json:"finished_at,omitempty"`
}
