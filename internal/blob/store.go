// Package blob stores uploaded document bytes outside the database.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a blob does not exist.
var ErrNotFound = errors.New("blob not found")

// ErrExists is returned when a write would overwrite an existing blob.
var ErrExists = errors.New("blob already exists")

// Store persists raw bytes under generated names.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put writes r under name and returns the path recorded on the document.
	// A failed Put leaves nothing behind.
	Put(ctx context.Context, name string, r io.Reader) (string, error)
	// Open returns a reader for a path previously returned by Put.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Delete removes the blob. It returns ErrNotFound when it is already gone.
	Delete(ctx context.Context, path string) error
}
