// Package repotest opens throwaway SQLite databases for tests.
package repotest

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/joseph-ayodele/docs-analyzer/internal/common"
	"github.com/joseph-ayodele/docs-analyzer/internal/repository"
)

// Logger discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// DSN returns a file-backed SQLite DSN inside dir.
func DSN(dir string) string {
	return "file:" + filepath.Join(dir, "test.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Open creates a migrated database that is closed when the test ends.
func Open(t testing.TB) *repository.DB {
	t.Helper()
	ctx := context.Background()

	db, err := repository.Open(ctx, repository.Config{
		Driver:      common.DriverSQLite,
		DSN:         DSN(t.TempDir()),
		DialTimeout: 5 * time.Second,
	}, Logger())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}
