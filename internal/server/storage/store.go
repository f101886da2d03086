// Package storage holds binary-object store implementations for proof
// artifacts: S3-compatible buckets and an in-memory store.
package storage

import (
	"context"
	"io"
	"time"
)

// ObjectStore stores opaque blobs under caller-chosen keys.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	// PresignGet returns a time-limited URL for downloading key.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}
