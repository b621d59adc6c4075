// Package metacache persists remote metadata lookups in a local SQLite
// database so repeated runs don't hammer the upstream API. Only search
// responses are stored here; resolved cover images live in memory for the
// life of the process and are never written to disk.
package metacache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	// DefaultTTL is the time-to-live for cached lookups (30 days).
	DefaultTTL = 720 * time.Hour
	// NegativeTTL is the shorter TTL for "not found" responses (7 days),
	// so misses get retried sooner than hits get refreshed.
	NegativeTTL = 168 * time.Hour
)

const schema = `
CREATE TABLE IF NOT EXISTS openlibrary_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	ttl_seconds INTEGER NOT NULL DEFAULT 0,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_openlibrary_cached_at ON openlibrary_cache(cached_at);
`

// FetchFunc fetches a value from the upstream source on a cache miss.
type FetchFunc[T any] func() (T, error)

// DB is a handle to the metadata cache database. It is safe for
// concurrent use.
type DB struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
	ttl  time.Duration
}

// Open opens (creating if necessary) the cache database at path. A
// non-positive ttl falls back to DefaultTTL.
func Open(path string, ttl time.Duration) (*DB, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to connect to cache database: %w", err), closeErr)
	}

	if _, err := db.Exec(schema); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to create cache table: %w", err), closeErr)
	}

	return &DB{db: db, path: path, ttl: ttl}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Get returns the cached value for key if present and not expired. An
// entry stored with its own TTL expires by that; otherwise the database
// default applies.
func (d *DB) Get(key string) (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var data string
	var ttlSeconds int64
	var cachedAt time.Time
	err := d.db.QueryRow(
		`SELECT data, ttl_seconds, cached_at FROM openlibrary_cache WHERE cache_key = ?`, key,
	).Scan(&data, &ttlSeconds, &cachedAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query cache: %w", err)
	}

	ttl := d.ttl
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	if age := time.Now().UTC().Sub(cachedAt); age > ttl {
		slog.Debug("Metadata cache entry expired", "key", key, "age", age)
		return "", false, nil
	}

	return data, true, nil
}

// Set stores a value under key with the given TTL, replacing any previous
// entry. A non-positive ttl means the database default.
func (d *DB) Set(key, data string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var ttlSeconds int64
	if ttl > 0 {
		ttlSeconds = int64(ttl / time.Second)
	}

	_, err := d.db.Exec(
		`INSERT OR REPLACE INTO openlibrary_cache (cache_key, data, ttl_seconds, cached_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)`,
		key, data, ttlSeconds,
	)
	if err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

// Clear removes all cached entries and returns how many were deleted.
func (d *DB) Clear() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	result, err := d.db.Exec(`DELETE FROM openlibrary_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// ClearExpired removes entries older than the database default TTL.
func (d *DB) ClearExpired() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := time.Now().UTC().Add(-d.ttl)
	result, err := d.db.Exec(`DELETE FROM openlibrary_cache WHERE cached_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to clear expired cache entries: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		slog.Info("Cleared expired metadata cache entries", "count", rows)
	}
	return nil
}

// GetOrFetch returns the cached value for key, or calls fetch and caches
// the result. ttlFor, when non-nil, selects the TTL for the fetched
// value; use Negative to cache "not found" results with the shorter
// NegativeTTL. The bool result reports whether the value came from cache.
//
// A nil *DB is valid and degrades to a plain fetch, so callers can treat
// the cache as optional.
func GetOrFetch[T any](d *DB, key string, fetch FetchFunc[T], ttlFor func(T) time.Duration) (T, bool, error) {
	var zero T

	if d == nil {
		data, err := fetch()
		return data, false, err
	}

	cached, hit, err := d.Get(key)
	if err == nil && hit {
		var result T
		if err := json.Unmarshal([]byte(cached), &result); err == nil {
			slog.Debug("Metadata cache hit", "key", key)
			return result, true, nil
		}
		slog.Warn("Failed to unmarshal cached metadata, refetching", "key", key, "error", err)
	}

	slog.Debug("Metadata cache miss, fetching", "key", key)
	data, err := fetch()
	if err != nil {
		return zero, false, fmt.Errorf("failed to fetch metadata: %w", err)
	}

	var ttl time.Duration
	if ttlFor != nil {
		ttl = ttlFor(data)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		slog.Warn("Failed to marshal metadata for caching", "key", key, "error", err)
		return data, false, nil
	}
	if err := d.Set(key, string(payload), ttl); err != nil {
		// A caching failure should never fail the lookup itself.
		slog.Warn("Failed to cache metadata", "key", key, "error", err)
		return data, false, nil
	}

	slog.Debug("Metadata cached", "key", key, "ttl", ttl)
	return data, false, nil
}

// Negative builds a TTL selector that caches "not found" results with
// NegativeTTL and everything else with the default TTL.
func Negative[T any](isNotFound func(T) bool) func(T) time.Duration {
	return func(result T) time.Duration {
		if isNotFound(result) {
			return NegativeTTL
		}
		return 0
	}
}
