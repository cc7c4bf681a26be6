// Package storage defines the blob backend used to keep namespace archives.
// Backends register themselves by name; NewStorage picks one from archive.backend.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when a key does not exist in the backend.
var ErrNotFound = errors.New("object not found")

// Storage is the blob backend contract.
type Storage interface {
	// Upload writes the content of r under key, replacing any existing object.
	// size may be -1 when unknown.
	Upload(ctx context.Context, key string, r io.Reader, size int64) (*ObjectInfo, error)

	// Download opens the object at key. The caller closes the reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object at key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	// GetMetadata returns size and timestamps for key, or ErrNotFound.
	GetMetadata(ctx context.Context, key string) (*ObjectInfo, error)
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	Checksum     string    `json:"checksum,omitempty"`
	LastModified time.Time `json:"last_modified"`
}
