package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresStore implements Store using PostgreSQL.
// This is suitable for multi-instance deployments without requiring Redis.
// Entries live in the bundle_cache table, namespaced by a key prefix.
type PostgresStore struct {
	pool   *pgxpool.Pool
	prefix string
	owned  bool
}

// NewPostgresStore creates a store on an existing pool. The pool is not
// closed by Close.
func NewPostgresStore(pool *pgxpool.Pool, prefix string) *PostgresStore {
	return &PostgresStore{
		pool:   pool,
		prefix: prefix + ":",
	}
}

// ConnectPostgresStore opens a pool for databaseURL, ensures the table
// exists and returns a store that owns the pool.
func ConnectPostgresStore(ctx context.Context, databaseURL, prefix string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := NewPostgresStore(pool, prefix)
	s.owned = true
	if err := s.EnsureTable(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create bundle_cache table: %w", err)
	}

	log.Info().Str("prefix", prefix).Msg("Connected to PostgreSQL for bundle cache")
	return s, nil
}

// EnsureTable creates the bundle_cache table if it doesn't exist.
func (s *PostgresStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS bundle_cache (
			key TEXT PRIMARY KEY,
			entry JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// Contains reports whether key has an entry.
func (s *PostgresStore) Contains(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM bundle_cache WHERE key = $1)
	`, s.prefix+key).Scan(&exists)
	return exists, err
}

// Get returns the entry for key.
func (s *PostgresStore) Get(ctx context.Context, key string) (*Entry, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT entry FROM bundle_cache WHERE key = $1
	`, s.prefix+key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return &e, nil
}

// Put inserts entry; ON CONFLICT DO NOTHING keeps the first writer.
func (s *PostgresStore) Put(ctx context.Context, key string, entry *Entry) (bool, error) {
	e := cloneEntry(entry)
	e.Key = key
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("encode cache entry %s: %w", key, err)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO bundle_cache (key, entry, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO NOTHING
	`, s.prefix+key, data, e.CreatedAt)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to write bundle cache entry")
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes key.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM bundle_cache WHERE key = $1`, s.prefix+key)
	return err
}

// Keys lists keys under the store prefix.
func (s *PostgresStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT substr(key, $2) FROM bundle_cache
		WHERE starts_with(key, $1)
		ORDER BY key
	`, s.prefix, len(s.prefix)+1)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Clear removes every entry under the store prefix.
func (s *PostgresStore) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM bundle_cache WHERE starts_with(key, $1)`, s.prefix)
	return err
}

// Pool returns the underlying connection pool.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the pool when the store opened it.
func (s *PostgresStore) Close() error {
	if s.owned {
		s.pool.Close()
	}
	return nil
}
