package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/paneq/meta-search/pkg/observability"
)

const defaultCacheTTL = 30 * time.Second

// ResultCache stores materialized query results in Redis, keyed by a hash
// of the compiled statement and its bound arguments. It is strictly
// best-effort: Redis failures are logged and the query falls through to
// the database.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewResultCache creates a result cache with the given TTL. A zero TTL
// uses the default of 30 seconds.
func NewResultCache(client *redis.Client, ttl time.Duration, logger *observability.Logger) *ResultCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = observability.Discard()
	}
	return &ResultCache{client: client, ttl: ttl, logger: logger}
}

func cacheKey(kind, stmt string, args []any) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%v", kind, stmt, args)
	return "metasearch:result:" + hex.EncodeToString(h.Sum(nil))
}

// GetRows returns the cached rows for the statement, if present.
func (c *ResultCache) GetRows(ctx context.Context, stmt string, args []any) ([]Row, bool) {
	data, err := c.client.Get(ctx, cacheKey("rows", stmt, args)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Warn("result cache read failed")
		}
		return nil, false
	}

	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		c.logger.WithError(err).Warn("result cache entry corrupt")
		return nil, false
	}
	return rows, true
}

// SetRows stores the rows for the statement.
func (c *ResultCache) SetRows(ctx context.Context, stmt string, args []any, rows []Row) {
	data, err := json.Marshal(rows)
	if err != nil {
		c.logger.WithError(err).Warn("result cache encode failed")
		return
	}
	if err := c.client.Set(ctx, cacheKey("rows", stmt, args), data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("result cache write failed")
	}
}

// GetCount returns the cached count for the statement, if present.
func (c *ResultCache) GetCount(ctx context.Context, stmt string, args []any) (int64, bool) {
	n, err := c.client.Get(ctx, cacheKey("count", stmt, args)).Int64()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Warn("result cache read failed")
		}
		return 0, false
	}
	return n, true
}

// SetCount stores the count for the statement.
func (c *ResultCache) SetCount(ctx context.Context, stmt string, args []any, n int64) {
	if err := c.client.Set(ctx, cacheKey("count", stmt, args), n, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("result cache write failed")
	}
}
