package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fluxbase-eu/assetbundle/internal/config"
)

// NewProvider creates the storage provider selected by configuration.
func NewProvider(cfg *config.StorageConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "local", "":
		provider, err := NewLocalStorage(cfg.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local storage: %w", err)
		}
		return provider, nil

	case "s3":
		// Endpoint scheme decides TLS; bare hosts use TLS
		useSSL := !strings.HasPrefix(cfg.S3Endpoint, "http://")
		endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.S3Endpoint, "https://"), "http://")
		if endpoint == "" {
			endpoint = "s3.amazonaws.com"
			useSSL = true
		}

		provider, err := NewS3Storage(endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Region, useSSL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
		return provider, nil

	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Provider)
	}
}

// EnsureBuckets creates the given buckets on providers that need it.
func EnsureBuckets(ctx context.Context, p Provider, buckets ...string) error {
	creator, ok := p.(interface {
		EnsureBucket(ctx context.Context, bucket string) error
	})
	if !ok {
		return nil
	}
	for _, b := range buckets {
		if err := creator.EnsureBucket(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}
