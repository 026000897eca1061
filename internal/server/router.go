// Package server exposes the document service over HTTP.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/joseph-ayodele/docs-analyzer/internal/common"
)

type RouterConfig struct {
	MaxFileSize    int64
	AllowedOrigins []string
	HealthTimeout  time.Duration
}

// RouterConfigFrom maps the server section of the application config.
func RouterConfigFrom(c common.ServerConfig) RouterConfig {
	return RouterConfig{MaxFileSize: c.MaxFileSize, AllowedOrigins: c.AllowedOrigins}
}

// NewRouter creates the HTTP handler with all routes and middleware configured.
func NewRouter(cfg RouterConfig, docs DocumentService, exporter Exporter, db Pinger, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	router := mux.NewRouter()

	documentHandler := NewDocumentHandler(docs, cfg.MaxFileSize, logger)
	exportHandler := NewExportHandler(exporter, logger)
	healthHandler := NewHealthHandler(db, cfg.HealthTimeout, logger)

	router.HandleFunc("/", greet).Methods(http.MethodGet)
	router.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)

	router.HandleFunc("/upload_doc/", documentHandler.Upload).Methods(http.MethodPost)
	router.HandleFunc("/doc_delete/{document_id}", documentHandler.Delete).Methods(http.MethodDelete)
	router.HandleFunc("/analyse_doc/", documentHandler.Analyze).Methods(http.MethodPost)
	router.HandleFunc("/get_text/{doc_id}", documentHandler.GetText).Methods(http.MethodGet)
	router.HandleFunc("/tasks/{task_id}", documentHandler.GetTask).Methods(http.MethodGet)
	router.HandleFunc("/export/", exportHandler.Documents).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, logger, common.NotFoundError("route not found"))
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
			Error:   string(common.KindInvalidInput),
			Message: "method not allowed",
		})
	})

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader, "Content-Disposition"},
		MaxAge:         300,
	})

	var h http.Handler = router
	h = WithRecover(logger)(h)
	h = WithRequestContext(logger)(h)
	return c.Handler(h)
}

func greet(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Hello world!"))
}
