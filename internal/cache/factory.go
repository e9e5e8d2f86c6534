package cache

import (
	"context"
	"fmt"

	"github.com/fluxbase-eu/assetbundle/internal/config"
	"github.com/rs/zerolog/log"
)

// NewStore creates a content cache based on configuration.
//
// Backend options:
// - "local": In-memory store (default for single instance)
// - "redis": Redis-compatible store shared by every instance
// - "postgres": PostgreSQL-backed store (for multi-instance without Redis)
func NewStore(ctx context.Context, cfg *config.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case "local", "":
		log.Info().Msg("Using in-memory bundle cache (single instance mode)")
		return NewMemoryStore(), nil

	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis_url is required for redis cache backend")
		}
		log.Info().Msg("Using Redis-compatible bundle cache (multi-instance mode)")
		store, err := NewRedisStore(cfg.RedisURL, cfg.KeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return store, nil

	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database_url is required for postgres cache backend")
		}
		log.Info().Msg("Using PostgreSQL bundle cache (multi-instance mode)")
		return ConnectPostgresStore(ctx, cfg.DatabaseURL, cfg.KeyPrefix)

	default:
		return nil, fmt.Errorf("unknown cache backend: %s (valid options: local, redis, postgres)", cfg.Backend)
	}
}
