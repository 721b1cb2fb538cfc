// Package blobstore persists design files and previews as opaque bytes keyed
// by slash-separated paths. Backends: local filesystem and any S3-compatible
// object store.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNotFound is returned by Get when no blob exists at the key.
var ErrNotFound = errors.New("blob not found")

// Store is an opaque byte store keyed by path
type Store interface {
	// Put writes the blob at key, replacing any existing content.
	Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) error

	// Get returns a reader over the blob at key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether a blob is stored at key.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the blob at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// FileKey returns the storage path for one version of a design file,
// files/<design-id>/v<N><ext>.
func FileKey(designID string, version int, ext string) string {
	return fmt.Sprintf("files/%s/v%d%s", designID, version, ext)
}

// PreviewKey returns the storage path for a design's preview image.
func PreviewKey(designID, ext string) string {
	return fmt.Sprintf("previews/%s%s", designID, ext)
}

// PutRetry calls Put up to attempts times with a short backoff between tries.
// Upload failures are usually transient; missing-bucket style errors still
// surface after the last attempt.
func PutRetry(ctx context.Context, store Store, key string, data []byte, contentType string, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i) * 500 * time.Millisecond):
			}
		}
		err = store.Put(ctx, key, bytesReader(data), int64(len(data)), contentType)
		if err == nil {
			return nil
		}
	}
	return fmt.Errorf("upload of %s failed after %d attempts: %w", key, attempts, err)
}
