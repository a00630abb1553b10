package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the interface for object storage operations.
type ObjectStorage interface {
	// Upload uploads an object to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download downloads an object from storage
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete deletes an object from storage
	Delete(ctx context.Context, key string) error

	// DeleteByPrefix deletes every object under the given key prefix
	DeleteByPrefix(ctx context.Context, prefix string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)

	// URI returns the canonical s3:// URI for a key
	URI(key string) string

	// KeyForURI resolves an s3:// URI back to a key in this bucket
	KeyForURI(uri string) (string, bool)

	// Bucket returns the bucket name objects are stored in
	Bucket() string
}
