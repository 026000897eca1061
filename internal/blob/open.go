package blob

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"

	"github.com/joseph-ayodele/docs-analyzer/internal/common"
)

// Open builds the configured store. The returned close func releases any client it created.
func Open(ctx context.Context, cfg common.BlobConfig, logger *slog.Logger) (Store, func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Backend {
	case common.BlobBackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create storage client: %w", err)
		}
		logger.Info("using gcs blob store", "bucket", cfg.GCSBucket)
		return NewGCSStore(client, cfg.GCSBucket, logger), client.Close, nil
	case common.BlobBackendFS, "":
		s, err := NewFSStore(cfg.DocumentsDir, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using filesystem blob store", "dir", cfg.DocumentsDir)
		return s, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported blob backend %q", cfg.Backend)
	}
}
