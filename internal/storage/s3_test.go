package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These are integration tests against an S3-compatible server. Point
// ASSETBUNDLE_TEST_S3_ENDPOINT at one, e.g.
//
//	docker run -p 9000:9000 -e MINIO_ROOT_USER=minioadmin -e MINIO_ROOT_PASSWORD=minioadmin minio/minio server /data
func setupS3Storage(t *testing.T) *S3Storage {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping S3 tests in short mode")
	}
	endpoint := os.Getenv("ASSETBUNDLE_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("Skipping S3 tests: ASSETBUNDLE_TEST_S3_ENDPOINT not set")
	}

	s3, err := NewS3Storage(endpoint, "minioadmin", "minioadmin", "us-east-1", false)
	if err != nil {
		t.Skipf("Skipping S3 tests: cannot create client for %s: %v", endpoint, err)
	}
	if err := s3.Health(context.Background()); err != nil {
		t.Skipf("Skipping S3 tests: server not available: %v", err)
	}
	return s3
}

// uniqueBucket returns a bucket name no other test run uses
func uniqueBucket(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), rand.Int63n(1000000))
}

func TestS3Storage_Name(t *testing.T) {
	s3 := setupS3Storage(t)
	assert.Equal(t, "s3", s3.Name())
}

func TestS3Storage_RoundTrip(t *testing.T) {
	s3 := setupS3Storage(t)
	ctx := context.Background()
	bucket := uniqueBucket("bundles")

	require.NoError(t, s3.EnsureBucket(ctx, bucket))
	// Idempotent
	require.NoError(t, s3.EnsureBucket(ctx, bucket))

	key := "js/site.js"
	content := []byte("var a;")
	obj, err := s3.Upload(ctx, bucket, key, bytes.NewReader(content), int64(len(content)), &UploadOptions{
		ContentType: "application/javascript",
	})
	require.NoError(t, err)
	assert.Equal(t, key, obj.Key)
	assert.Equal(t, int64(len(content)), obj.Size)
	assert.NotEmpty(t, obj.ETag)

	exists, err := s3.Exists(ctx, bucket, key)
	require.NoError(t, err)
	assert.True(t, exists)

	reader, info, err := s3.Download(ctx, bucket, key)
	require.NoError(t, err)
	defer reader.Close()
	assert.Equal(t, "application/javascript", info.ContentType)

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	require.NoError(t, s3.Delete(ctx, bucket, key))
	exists, err = s3.Exists(ctx, bucket, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestS3Storage_NotFound(t *testing.T) {
	s3 := setupS3Storage(t)
	ctx := context.Background()
	bucket := uniqueBucket("missing")
	require.NoError(t, s3.EnsureBucket(ctx, bucket))

	_, err := ReadAll(ctx, s3, bucket, "css/none.css")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
