package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/docs-analyzer/internal/analysis"
	"github.com/joseph-ayodele/docs-analyzer/internal/async"
	"github.com/joseph-ayodele/docs-analyzer/internal/blob"
	"github.com/joseph-ayodele/docs-analyzer/internal/common"
	"github.com/joseph-ayodele/docs-analyzer/internal/export"
	"github.com/joseph-ayodele/docs-analyzer/internal/ocr"
	repo "github.com/joseph-ayodele/docs-analyzer/internal/repository"
	"github.com/joseph-ayodele/docs-analyzer/internal/server"
	"github.com/joseph-ayodele/docs-analyzer/internal/services/documents"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env", "error", err)
	}
	cfg := common.LoadConfig()
	logger := common.NewLogger(cfg.Log, os.Stdout)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("docsd stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *common.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.Open(ctx, repo.ConfigFrom(cfg.Database), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.HealthCheck(ctx, cfg.Database.DialTimeout); err != nil {
		return err
	}
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}

	blobs, closeBlobs, err := blob.Open(ctx, cfg.Blob, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeBlobs(); cerr != nil {
			logger.Error("close blob store", "error", cerr)
		}
	}()

	docsRepo := repo.NewDocumentRepository(db, logger)
	textsRepo := repo.NewTextRepository(db, logger)
	tasksRepo := repo.NewTaskRepository(db, logger)

	transport, err := newTransport(cfg, logger, tasksRepo, blobs)
	if err != nil {
		return err
	}
	dispatcher := async.NewDispatcher(transport, tasksRepo, async.Mode(cfg.Dispatch.Mode), cfg.Dispatch.Timeout, logger)

	docs := documents.NewService(docsRepo, textsRepo, tasksRepo, blobs, dispatcher, logger)
	// tasks left behind by a previous run are never finished by anyone
	if _, err := docs.ReapStaleTasks(ctx); err != nil {
		return err
	}
	exporter := export.NewService(docsRepo, textsRepo, logger)
	handler := server.NewRouter(server.RouterConfigFrom(cfg.Server), docs, exporter, db, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("docsd listening",
			"addr", cfg.Server.Addr,
			"analyze_mode", cfg.Dispatch.Mode,
			"transport", cfg.Dispatch.Transport,
			"db", db.Dialect(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		dispatcher.Shutdown(shutdownCtx)
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

// newTransport builds the in-process worker pool or the CloudEvents client.
func newTransport(cfg *common.Config, logger *slog.Logger, tasks repo.TaskRepository, blobs blob.Store) (async.Transport, error) {
	if cfg.Dispatch.Transport == common.TransportCloudEvents {
		return async.NewCloudEventsTransport(cfg.Dispatch.WorkerURL, logger,
			async.WithRetries(cfg.Dispatch.Retries, 500*time.Millisecond),
		)
	}

	extractor, err := ocr.NewExtractor(ocr.ConfigFrom(cfg.OCR), logger)
	if err != nil {
		return nil, err
	}
	proc := analysis.NewProcessor(logger, tasks, blobs, extractor)
	return async.NewProcessorQueue(proc, logger,
		async.WithWorkers(cfg.Dispatch.Workers),
		async.WithQueueSize(cfg.Dispatch.QueueSize),
		async.WithProcessTimeout(cfg.Dispatch.Timeout),
	), nil
}
