package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/docs-analyzer/internal/common"
	"github.com/joseph-ayodele/docs-analyzer/internal/ocr"
)

func main() {
	cfg := common.LoadConfig()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "runocr <image-file>")
		os.Exit(2)
	}
	path := os.Args[1]

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Dispatch.Timeout)
	defer cancel()

	extractor, err := ocr.NewExtractor(ocr.ConfigFrom(cfg.OCR), logger)
	if err != nil {
		logger.Error("build extractor", "error", err)
		os.Exit(1)
	}

	start := time.Now()
	res, err := extractor.ExtractFile(ctx, path)
	dur := time.Since(start)
	if err != nil {
		logger.Error("text extraction failed", "file", path, "error", err, "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}

	logger.Info("text extraction OK",
		"format", res.Format,
		"method", res.Method,
		"lang", res.Language,
		"chars", len(res.Text),
		"duration_ms", dur.Milliseconds(),
	)
	fmt.Println(res.Text)
}
