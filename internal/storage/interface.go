package storage

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrObjectNotFound is returned when no object exists under a key
	ErrObjectNotFound = errors.New("object not found")
	// ErrInvalidKey is returned for empty keys or keys escaping the storage root
	ErrInvalidKey = errors.New("invalid storage key")
)

// BlobStorage stores photo bytes under opaque keys
type BlobStorage interface {
	// Store saves content under key
	Store(ctx context.Context, key string, content io.Reader, contentType string) error

	// Retrieve opens the content stored under key. The caller closes it.
	Retrieve(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	// GetSize returns the stored size in bytes
	GetSize(ctx context.Context, key string) (int64, error)
}
