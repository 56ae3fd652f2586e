// Package cache stores backend responses in a local SQLite database with a
// per-entry expiry.
package cache

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/blake2b"
	_ "modernc.org/sqlite"

	"stract/internal/metrics"
	"stract/internal/slogutil"
)

const currentSchemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS response_cache (
    namespace TEXT NOT NULL,
    cache_key TEXT NOT NULL,
    value BLOB NOT NULL,
    created_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL,
    PRIMARY KEY (namespace, cache_key)
);

CREATE INDEX IF NOT EXISTS idx_response_cache_expires ON response_cache(expires_at);
`

// Cache is a TTL key/value store backed by SQLite.
type Cache struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens or creates the cache database at path.
func Open(path string, logger *slog.Logger) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	c := &Cache{
		db:     db,
		logger: slogutil.OrDiscard(logger),
		now:    time.Now,
	}
	if err := c.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return c, nil
}

func (c *Cache) initSchema() error {
	if _, err := c.db.Exec(schema); err != nil {
		return err
	}
	_, err := c.db.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", currentSchemaVersion)
	return err
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Key hashes parts into a fixed-length cache key.
func Key(parts ...string) string {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// Get returns the value stored under namespace/key if it has not expired.
func (c *Cache) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	var value []byte
	var expiresAt int64

	err := c.db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM response_cache WHERE namespace = ? AND cache_key = ?",
		namespace, key,
	).Scan(&value, &expiresAt)

	switch {
	case err == sql.ErrNoRows:
		metrics.CacheLookups.WithLabelValues(namespace, "miss").Inc()
		return nil, false, nil
	case err != nil:
		metrics.CacheLookups.WithLabelValues(namespace, "error").Inc()
		return nil, false, err
	}

	if c.now().UnixMilli() >= expiresAt {
		metrics.CacheLookups.WithLabelValues(namespace, "miss").Inc()
		if _, delErr := c.db.ExecContext(ctx,
			"DELETE FROM response_cache WHERE namespace = ? AND cache_key = ?", namespace, key); delErr != nil {
			c.logger.Debug("Failed to drop expired cache entry", "namespace", namespace, "error", delErr)
		}
		return nil, false, nil
	}

	metrics.CacheLookups.WithLabelValues(namespace, "hit").Inc()
	return value, true, nil
}

// Set stores value under namespace/key for ttl. A non-positive ttl is a no-op.
func (c *Cache) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := c.now()
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO response_cache (namespace, cache_key, value, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		namespace, key, value, now.UnixMilli(), now.Add(ttl).UnixMilli(),
	)
	return err
}

// Purge deletes every expired entry and returns how many were removed.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, "DELETE FROM response_cache WHERE expires_at <= ?", c.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Clear deletes all entries in namespace, or every entry when namespace is empty.
func (c *Cache) Clear(ctx context.Context, namespace string) error {
	if namespace == "" {
		_, err := c.db.ExecContext(ctx, "DELETE FROM response_cache")
		return err
	}
	_, err := c.db.ExecContext(ctx, "DELETE FROM response_cache WHERE namespace = ?", namespace)
	return err
}
