package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

const gcsScheme = "gs://"

// GCSStore keeps blobs as objects in one Cloud Storage bucket.
// Paths have the form gs://bucket/name.
type GCSStore struct {
	bucket *storage.BucketHandle
	name   string
	logger *slog.Logger
}

// NewGCSStore uses an existing client; the caller owns and closes it.
func NewGCSStore(client *storage.Client, bucket string, logger *slog.Logger) *GCSStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &GCSStore{bucket: client.Bucket(bucket), name: bucket, logger: logger}
}

func (s *GCSStore) Put(ctx context.Context, name string, r io.Reader) (string, error) {
	if name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("invalid blob name %q", name)
	}

	// Cancelling the writer context aborts the upload so no partial object is finalized.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.bucket.Object(name).If(storage.Conditions{DoesNotExist: true}).NewWriter(wctx)
	n, err := io.Copy(w, r)
	if err != nil {
		cancel()
		_ = w.Close()
		return "", fmt.Errorf("write object: %w", gcsErr(name, err))
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize object: %w", gcsErr(name, err))
	}

	s.logger.Debug("object written", "bucket", s.name, "name", name, "bytes", n)
	return gcsScheme + s.name + "/" + name, nil
}

func (s *GCSStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	name, err := s.objectName(path)
	if err != nil {
		return nil, err
	}
	rc, err := s.bucket.Object(name).NewReader(ctx)
	if err != nil {
		return nil, gcsErr(name, err)
	}
	return rc, nil
}

func (s *GCSStore) Delete(ctx context.Context, path string) error {
	name, err := s.objectName(path)
	if err != nil {
		return err
	}
	if err := s.bucket.Object(name).Delete(ctx); err != nil {
		return gcsErr(name, err)
	}
	s.logger.Debug("object removed", "bucket", s.name, "name", name)
	return nil
}

func (s *GCSStore) objectName(path string) (string, error) {
	prefix := gcsScheme + s.name + "/"
	if !strings.HasPrefix(path, prefix) || len(path) == len(prefix) {
		return "", fmt.Errorf("path not in bucket %s", s.name)
	}
	return strings.TrimPrefix(path, prefix), nil
}

func gcsErr(name string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("%s: %w", name, ErrExists)
	}
	return err
}
