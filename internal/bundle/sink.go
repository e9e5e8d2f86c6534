package bundle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fluxbase-eu/assetbundle/internal/cache"
	"github.com/fluxbase-eu/assetbundle/internal/storage"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
)

// Sink persists built bundles. A location is an output key after hash
// substitution, for example "~/js/site_0A1B.js".
type Sink interface {
	Persist(ctx context.Context, location, content string) error
	Exists(ctx context.Context, location string) (bool, error)
	Read(ctx context.Context, location string) (string, error)
	// URL is the public path of location, as placed in the rendered tag.
	URL(location string) string
}

// FileSink writes bundles to a storage bucket.
type FileSink struct {
	provider storage.Provider
	bucket   string
	appPath  string
	gzip     bool
}

// NewFileSink creates a sink writing to bucket. appPath expands "~/" in
// the public URL.
func NewFileSink(provider storage.Provider, bucket, appPath string) *FileSink {
	return &FileSink{provider: provider, bucket: bucket, appPath: appPath}
}

// WithGzip also writes a gzip-compressed copy next to every bundle.
func (s *FileSink) WithGzip(enabled bool) *FileSink {
	s.gzip = enabled
	return s
}

func (s *FileSink) Persist(ctx context.Context, location, content string) error {
	key := StorageKey(location)
	opts := &storage.UploadOptions{ContentType: contentTypeOf(key)}
	if _, err := s.provider.Upload(ctx, s.bucket, key, strings.NewReader(content), int64(len(content)), opts); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	if !s.gzip {
		return nil
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return err
	}
	if _, err := zw.Write([]byte(content)); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	gzOpts := &storage.UploadOptions{ContentType: opts.ContentType, ContentEncoding: "gzip"}
	if _, err := s.provider.Upload(ctx, s.bucket, key+".gz", &buf, int64(buf.Len()), gzOpts); err != nil {
		return fmt.Errorf("write %s.gz: %w", key, err)
	}
	log.Debug().Str("key", key).Int("size", len(content)).Int("gzip_size", buf.Len()).Msg("Wrote gzip sidecar")
	return nil
}

func (s *FileSink) Exists(ctx context.Context, location string) (bool, error) {
	return s.provider.Exists(ctx, s.bucket, StorageKey(location))
}

func (s *FileSink) Read(ctx context.Context, location string) (string, error) {
	data, err := storage.ReadAll(ctx, s.provider, s.bucket, StorageKey(location))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *FileSink) URL(location string) string {
	return ExpandAppRelative(s.appPath, location)
}

// CacheSink keeps bundles in the content cache only; they are served from
// route by the HTTP server.
type CacheSink struct {
	store   cache.Store
	kind    Kind
	route   string
	appPath string
}

// NewCacheSink creates a cache sink for kind served under route.
func NewCacheSink(store cache.Store, kind Kind, route, appPath string) *CacheSink {
	return &CacheSink{store: store, kind: kind, route: route, appPath: appPath}
}

// ContentKey is the cache key holding the bytes served for name under a
// kind's cache route.
func ContentKey(kind Kind, name string) string {
	return "content:" + kind.CachePrefix + "_" + StorageKey(name)
}

// Key is the cache key the bytes for location are stored under.
func (s *CacheSink) Key(location string) string {
	return ContentKey(s.kind, location)
}

func (s *CacheSink) Persist(ctx context.Context, location, content string) error {
	key := s.Key(location)
	// A rebuild after eviction replaces the previous bytes
	if err := s.store.Delete(ctx, key); err != nil {
		return err
	}
	_, err := s.store.Put(ctx, key, &cache.Entry{Content: content, Location: location})
	return err
}

func (s *CacheSink) Exists(ctx context.Context, location string) (bool, error) {
	return s.store.Contains(ctx, ContentKey(s.kind, location))
}

func (s *CacheSink) Read(ctx context.Context, location string) (string, error) {
	e, err := s.store.Get(ctx, ContentKey(s.kind, location))
	if errors.Is(err, cache.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNotCached, location)
	}
	if err != nil {
		return "", err
	}
	return e.Content, nil
}

func (s *CacheSink) URL(location string) string {
	return ExpandAppRelative(s.appPath, s.route) + location
}

func contentTypeOf(key string) string {
	lower := strings.ToLower(key)
	switch {
	case strings.HasSuffix(lower, ".js"):
		return "application/javascript"
	case strings.HasSuffix(lower, ".css"):
		return "text/css"
	default:
		return "application/octet-stream"
	}
}
