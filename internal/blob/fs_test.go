package blob

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestFSStore(t *testing.T) *FSStore {
	t.Helper()
	s, err := NewFSStore(filepath.Join(t.TempDir(), "documents"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestFSStore_PutOpenDelete(t *testing.T) {
	s := newTestFSStore(t)
	ctx := context.Background()

	path, err := s.Put(ctx, "abc.png", strings.NewReader("0123456789"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !strings.HasSuffix(path, "abc.png") || filepath.Dir(path) != s.Dir() {
		t.Fatalf("unexpected path %s", path)
	}

	rc, err := s.Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "0123456789" {
		t.Fatalf("unexpected content %q", data)
	}

	if err := s.Delete(ctx, path); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, path); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := s.Open(ctx, path); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on open, got %v", err)
	}
}

func TestFSStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "documents")
	if _, err := NewFSStore(dir, nil); err != nil {
		t.Fatalf("new store: %v", err)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Fatalf("expected directory to exist: %v", err)
	}
}

type failingReader struct{ after int }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.after <= 0 {
		return 0, errors.New("connection reset")
	}
	n := min(len(p), f.after)
	for i := range p[:n] {
		p[i] = 'x'
	}
	f.after -= n
	return n, nil
}

func TestFSStore_FailedPutLeavesNothing(t *testing.T) {
	s := newTestFSStore(t)

	_, err := s.Put(context.Background(), "partial.png", &failingReader{after: 64})
	if err == nil {
		t.Fatal("expected error")
	}
	if names := listDir(t, s.Dir()); len(names) != 0 {
		t.Fatalf("expected empty dir after failed put, got %v", names)
	}
}

func TestFSStore_RejectsOverwriteAndBadNames(t *testing.T) {
	s := newTestFSStore(t)
	ctx := context.Background()

	if _, err := s.Put(ctx, "a.png", strings.NewReader("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Put(ctx, "a.png", strings.NewReader("y")); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := s.Put(ctx, "../escape.png", strings.NewReader("y")); err == nil {
		t.Fatal("expected error for name with path")
	}
	if err := s.Delete(ctx, "/etc/passwd"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected rejection of outside path, got %v", err)
	}
}

func TestFSStore_CancelledPut(t *testing.T) {
	s := newTestFSStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Put(ctx, "c.png", strings.NewReader("data")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if names := listDir(t, s.Dir()); len(names) != 0 {
		t.Fatalf("expected empty dir, got %v", names)
	}
}
