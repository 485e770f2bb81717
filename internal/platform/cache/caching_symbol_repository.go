// Package cache provides caching implementations for repository interfaces.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"brokerdesk/internal/feature/mastercontract/domain/entity"
	"brokerdesk/internal/feature/mastercontract/usecase"
)

// DefaultNamespace is the key prefix of cached symbol searches.
const DefaultNamespace = "symsearch"

// SymbolStore is the read and write side of the symbol master that the cache wraps.
type SymbolStore interface {
	usecase.SymbolRepository
	usecase.ContractStore
}

// CachingSymbolRepository decorates a SymbolStore with Redis caching.
// Reads are cached per (exchange, query, limit); any write invalidates the
// whole namespace because a single row can match many queries.
type CachingSymbolRepository struct {
	inner     SymbolStore
	rdb       *redis.Client
	ttl       func() time.Duration
	namespace string
}

var _ SymbolStore = (*CachingSymbolRepository)(nil)

// NewCachingSymbolRepository decorates a SymbolStore with Redis caching.
// If ttl is 0, entries expire at the next 08:00 IST master contract refresh.
// If namespace is empty, it uses DefaultNamespace.
func NewCachingSymbolRepository(rdb *redis.Client, ttl time.Duration, inner SymbolStore, namespace string) *CachingSymbolRepository {
	ttlFn := TimeUntilNext8AM
	if ttl > 0 {
		ttlFn = func() time.Duration { return ttl }
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &CachingSymbolRepository{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttlFn,
		namespace: namespace,
	}
}

// Search retrieves symbols, checking cache first then falling back to the database.
func (c *CachingSymbolRepository) Search(ctx context.Context, query, exchange string, limit int) ([]entity.SymbolRecord, error) {
	// Bypass cache if Redis is not configured
	if c.rdb == nil {
		return c.inner.Search(ctx, query, exchange, limit)
	}

	key := c.cacheKey(query, exchange, limit)

	// 1) Check cache
	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out []entity.SymbolRecord
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		// Delete corrupted cache entry
		_ = c.rdb.Del(ctx, key).Err()
	}

	// 2) Fallback to database
	out, err := c.inner.Search(ctx, query, exchange, limit)
	if err != nil {
		return nil, err
	}

	// 3) Store in cache (best effort)
	if b, err := json.Marshal(out); err == nil {
		_ = c.rdb.Set(ctx, key, b, c.ttl()).Err()
	}

	return out, nil
}

// UpsertBatch writes rows and invalidates every cached search.
func (c *CachingSymbolRepository) UpsertBatch(ctx context.Context, records []entity.SymbolRecord) error {
	if err := c.inner.UpsertBatch(ctx, records); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	_ = c.InvalidateAll(ctx) // Best effort: don't fail if cache deletion fails
	return nil
}

// ReplaceExchange replaces an exchange's rows and invalidates every cached search.
func (c *CachingSymbolRepository) ReplaceExchange(ctx context.Context, exchange string, records []entity.SymbolRecord) (int64, error) {
	n, err := c.inner.ReplaceExchange(ctx, exchange, records)
	if err != nil {
		return n, err
	}
	_ = c.InvalidateAll(ctx)
	return n, nil
}

// InvalidateAll removes every key of the namespace.
func (c *CachingSymbolRepository) InvalidateAll(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	return c.deleteByPattern(ctx, c.namespace+":*")
}

// cacheKey generates a cache key for a specific query. Lookups are
// case-insensitive, so query and exchange are normalised to upper case.
func (c *CachingSymbolRepository) cacheKey(query, exchange string, limit int) string {
	return fmt.Sprintf("%s:%s:%s:%d",
		c.namespace,
		safe(strings.ToUpper(exchange)),
		safe(strings.ToUpper(query)),
		limit,
	)
}

// deleteByPattern deletes all cache keys matching a given pattern using SCAN.
func (c *CachingSymbolRepository) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, cur, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return nil
}

// safe はキー区切りの ":" や SCAN パターンの "*" を含まない形にエンコードします。
// 異なる入力が同じキーにならないよう、置換ではなく可逆なエンコードを使う。
func safe(s string) string {
	return url.QueryEscape(s)
}
