// package storage is the durable blob store for raw and derived media.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"loopcast.media/loopcast/internal/config"
)

// ErrNotFound is returned when a key has no blob.
var ErrNotFound = errors.New("storage: blob not found")

// BlobStore is the narrow API the pipeline uses for media bytes. The
// pipeline never assumes anything about layout behind a key.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error

	// SignedURL returns a time-limited URL a client can fetch the blob
	// from directly.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// NewBlobStore builds the configured backend.
func NewBlobStore(ctx context.Context, conf config.Config) (BlobStore, error) {
	switch conf.StorageBackend {
	case "s3":
		return NewS3Store(ctx, conf)
	case "fs":
		return NewFSStore(conf.StorageFSRoot)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", conf.StorageBackend)
	}
}
