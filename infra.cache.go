package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const enrichmentCacheSchema = `
CREATE TABLE IF NOT EXISTS enrichment_cache (
	source TEXT NOT NULL,
	cache_key TEXT NOT NULL,
	data TEXT NOT NULL,
	cached_at INTEGER NOT NULL,
	PRIMARY KEY (source, cache_key)
);

CREATE INDEX IF NOT EXISTS idx_enrichment_cached_at ON enrichment_cache(cached_at);
`

// EnrichmentCache stores upstream lookups results per source and key.
type EnrichmentCache interface {
	Get(ctx context.Context, source, key string, v interface{}) (bool, error)
	Put(ctx context.Context, source, key string, v interface{}) error
}

var _ EnrichmentCache = (*sqliteCache)(nil)

// sqliteCache is an EnrichmentCache backed by a sqlite database file.
// Entries older than ttl are treated as absent.
type sqliteCache struct {
	db    *sql.DB
	ttl   time.Duration
	clock Clocker
}

// NewSQLiteCache opens (or creates) the cache database at path.
func NewSQLiteCache(path string, ttl time.Duration, clock Clocker) (*sqliteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to connect to cache database: %w", err), closeErr)
	}
	if _, err := db.Exec(enrichmentCacheSchema); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to create cache table: %w", err), closeErr)
	}
	return &sqliteCache{db: db, ttl: ttl, clock: clock}, nil
}

// Get decodes the cached entry into v and reports whether a fresh entry existed.
func (c *sqliteCache) Get(ctx context.Context, source, key string, v interface{}) (bool, error) {
	var data string
	var cachedAt int64
	err := c.db.QueryRowContext(ctx,
		`SELECT data, cached_at FROM enrichment_cache WHERE source = ? AND cache_key = ?`,
		source, key,
	).Scan(&data, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if c.ttl > 0 && c.clock.Now().Sub(time.Unix(cachedAt, 0)) > c.ttl {
		return false, nil
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return false, err
	}
	return true, nil
}

// Put stores or replaces the entry.
func (c *sqliteCache) Put(ctx context.Context, source, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO enrichment_cache (source, cache_key, data, cached_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(source, cache_key) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at`,
		source, key, string(data), c.clock.Now().Unix(),
	)
	return err
}

// Close closes the database connection.
func (c *sqliteCache) Close() error {
	return c.db.Close()
}

// getOrFetch returns the cached value of source/key or calls fetch and caches
// its successful result. Cache failures are logged and never fail the lookup.
func getOrFetch[T any](ctx context.Context, logger *zap.Logger, cache EnrichmentCache, source, key string, fetch func() (T, error)) (T, error) {
	var value T
	if cache != nil {
		found, err := cache.Get(ctx, source, key, &value)
		if err != nil {
			logger.Warn("cache: lookup failed", zap.String("cache.source", source), zap.String("cache.key", key), zap.Error(err))
		}
		if found {
			return value, nil
		}
	}
	value, err := fetch()
	if err != nil {
		return value, err
	}
	if cache != nil {
		if err := cache.Put(ctx, source, key, value); err != nil {
			logger.Warn("cache: store failed", zap.String("cache.source", source), zap.String("cache.key", key), zap.Error(err))
		}
	}
	return value, nil
}
