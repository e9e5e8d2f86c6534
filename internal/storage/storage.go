package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned when a bucket/key pair does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Object represents a stored file
type Object struct {
	Key          string            `json:"key"`
	Bucket       string            `json:"bucket"`
	Size         int64             `json:"size"`
	ContentType  string            `json:"content_type"`
	LastModified time.Time         `json:"last_modified"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// UploadOptions contains options for uploading files
type UploadOptions struct {
	ContentType     string
	Metadata        map[string]string
	CacheControl    string
	ContentEncoding string
}

// Storage defines the file operations used to read bundle sources and
// persist built bundles.
type Storage interface {
	// Upload uploads a file to storage
	Upload(ctx context.Context, bucket, key string, data io.Reader, size int64, opts *UploadOptions) (*Object, error)

	// Download opens a file for reading. The caller closes the reader.
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, *Object, error)

	// Delete deletes a file from storage
	Delete(ctx context.Context, bucket, key string) error

	// Exists checks if a file exists
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// GetObject gets object metadata without downloading the file
	GetObject(ctx context.Context, bucket, key string) (*Object, error)
}

// Provider is the interface that storage providers must implement
type Provider interface {
	Storage
	Name() string
	Health(ctx context.Context) error
}

// ReadAll downloads a whole object into memory.
func ReadAll(ctx context.Context, p Storage, bucket, key string) ([]byte, error) {
	rc, _, err := p.Download(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
