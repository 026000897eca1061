package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/docs-analyzer/internal/analysis"
	"github.com/joseph-ayodele/docs-analyzer/internal/async"
	"github.com/joseph-ayodele/docs-analyzer/internal/blob"
	"github.com/joseph-ayodele/docs-analyzer/internal/common"
	"github.com/joseph-ayodele/docs-analyzer/internal/ocr"
	repo "github.com/joseph-ayodele/docs-analyzer/internal/repository"
)

// functionName is also the HTTP path the worker serves when FUNCTION_TARGET is unset.
const functionName = "AnalyzeDocument"

type worker struct {
	exec    async.Executor
	timeout time.Duration
	logger  *slog.Logger
}

// analyzeDocument acks once the task outcome is recorded. Returning an error
// makes the framework answer 500, which the API records as a failed task.
func (w *worker) analyzeDocument(ctx context.Context, e cloudevents.Event) error {
	log := w.logger.With("event_id", e.ID(), "event_type", e.Type())
	if e.Type() != async.EventTypeAnalysisRequested {
		log.Warn("ignoring unexpected event type")
		return fmt.Errorf("unsupported event type %q", e.Type())
	}

	task, err := async.DecodeTask(e.Data())
	if err != nil {
		log.Error("rejecting malformed task payload", "error", err)
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	ctx = common.WithLogger(ctx, log.With("task_id", task.ID, "document_id", task.DocumentID))

	start := time.Now()
	if err := w.exec.Execute(ctx, task); err != nil {
		log.Error("task execution failed", "task_id", task.ID, "error", err)
		return err
	}
	log.Info("task executed", "task_id", task.ID, "elapsed", time.Since(start))
	return nil
}

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
		logger.Error("ocr-worker stopped with error", "error", err)
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

	blobs, closeBlobs, err := blob.Open(ctx, cfg.Blob, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeBlobs(); cerr != nil {
			logger.Error("close blob store", "error", cerr)
		}
	}()

	extractor, err := ocr.NewExtractor(ocr.ConfigFrom(cfg.OCR), logger)
	if err != nil {
		return err
	}
	tasks := repo.NewTaskRepository(db, logger)
	w := &worker{
		exec:    analysis.NewProcessor(logger, tasks, blobs, extractor),
		timeout: cfg.Dispatch.Timeout,
		logger:  logger,
	}
	functions.CloudEvent(functionName, w.analyzeDocument)

	// gRPC health on its own port
	lis, err := net.Listen("tcp", cfg.Worker.HealthAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Worker.HealthAddr, err)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("health server listening", "addr", cfg.Worker.HealthAddr)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()
	go func() {
		logger.Info("ocr-worker listening", "port", cfg.Worker.Port, "function", functionName)
		if err := funcframework.Start(cfg.Worker.Port); err != nil {
			errCh <- fmt.Errorf("functions framework: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case err = <-errCh:
	}
	healthServer.Shutdown()
	grpcServer.GracefulStop()
	return err
}
