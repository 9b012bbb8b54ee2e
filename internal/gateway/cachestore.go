// Package gateway implements the offline-first caching proxy that fronts
// the electoral office server: per-resource-class caching strategies
// (cache-first, stale-while-revalidate, network-first) over a versioned,
// SQLite-backed response cache.
package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/electoral-office/fieldsync/internal/logging"
)

// CachedResponse is one stored upstream response.
type CachedResponse struct {
	Status    int
	Header    http.Header
	Body      []byte
	FetchedAt time.Time
}

// CacheStore persists responses under a versioned cache name. Bumping the
// version starts a fresh cache; PruneOldVersions drops the previous ones.
type CacheStore struct {
	db   *sql.DB
	name string
	log  logging.Logger
}

func NewCacheStore(ctx context.Context, db *sql.DB, name string, log logging.Logger) (*CacheStore, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS http_cache (
			cache_name TEXT NOT NULL,
			url        TEXT NOT NULL,
			status     INTEGER NOT NULL,
			header     TEXT NOT NULL,
			body       BLOB NOT NULL,
			fetched_at TEXT NOT NULL,
			PRIMARY KEY (cache_name, url)
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}

	return &CacheStore{db: db, name: name, log: log.With("component", "cache", "cache", name)}, nil
}

// Name returns the versioned cache name.
func (c *CacheStore) Name() string {
	return c.name
}

// Get returns the cached response for url, or nil on a miss.
func (c *CacheStore) Get(ctx context.Context, url string) (*CachedResponse, error) {
	var (
		resp      CachedResponse
		header    string
		fetchedAt string
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT status, header, body, fetched_at FROM http_cache WHERE cache_name = ? AND url = ?`,
		c.name, url).Scan(&resp.Status, &header, &resp.Body, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache lookup failed: %w", err)
	}

	if err := json.Unmarshal([]byte(header), &resp.Header); err != nil {
		return nil, fmt.Errorf("corrupt cached header: %w", err)
	}
	if resp.FetchedAt, err = time.Parse(time.RFC3339Nano, fetchedAt); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Put stores or replaces the cached response for url.
func (c *CacheStore) Put(ctx context.Context, url string, resp *CachedResponse) error {
	header, err := json.Marshal(resp.Header)
	if err != nil {
		return err
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO http_cache (cache_name, url, status, header, body, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_name, url) DO UPDATE SET
			status = excluded.status,
			header = excluded.header,
			body = excluded.body,
			fetched_at = excluded.fetched_at
	`, c.name, url, resp.Status, string(header), resp.Body,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("cache write failed: %w", err)
	}
	return nil
}

// Clear drops every entry of the current cache version.
func (c *CacheStore) Clear(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM http_cache WHERE cache_name = ?`, c.name)
	if err != nil {
		return fmt.Errorf("cache clear failed: %w", err)
	}
	c.log.Info(ctx, "cache cleared")
	return nil
}

// PruneOldVersions removes entries of any other cache version under the
// given naming prefix. Called on activation of a new version.
func (c *CacheStore) PruneOldVersions(ctx context.Context, prefix string) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM http_cache WHERE cache_name LIKE ? || '%' AND cache_name != ?`,
		prefix, c.name)
	if err != nil {
		return 0, fmt.Errorf("cache prune failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.log.Info(ctx, "pruned old cache versions", "entries", n)
	}
	return n, nil
}
