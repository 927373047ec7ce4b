// Package resultcache stores fully ranked result sets keyed by query hash.
package resultcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/unisearch/internal/db"
	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/search/result"
)

// DefaultTTL is how long a ranked result set stays servable.
const DefaultTTL = 5 * time.Minute

// delChunk bounds the keys removed per UNLINK during invalidation.
const delChunk = 500

// store is the consumer interface for the result cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	Unlink(ctx context.Context, keys ...string) (int, error)
}

// Cache is a TTL-bound store of result entries.
// Keys look like <prefix>search:<tenant>:<query hash>.
type Cache struct {
	store  store
	prefix string
}

// New creates a result cache.
func New(s store, keyPrefix string) *Cache {
	if keyPrefix == "" {
		keyPrefix = domain.KeyPrefix
	}
	return &Cache{store: s, prefix: keyPrefix + "search:"}
}

// Key builds the cache key for a tenant's query hash.
func (c *Cache) Key(tenantID int64, hash string) string {
	return c.TenantPrefix(tenantID) + hash
}

// TenantPrefix addresses every cached entry of one tenant.
func (c *Cache) TenantPrefix(tenantID int64) string {
	return c.prefix + strconv.FormatInt(tenantID, 10) + ":"
}

// Prefix addresses every cached entry.
func (c *Cache) Prefix() string { return c.prefix }

// Get returns the cached entry. A miss reports ok=false with a nil error.
func (c *Cache) Get(ctx context.Context, key string) (result.Entry, bool, error) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return result.Entry{}, false, nil
		}
		return result.Entry{}, false, fmt.Errorf("get %s: %w: %w", key, err, domain.ErrCacheFailure)
	}

	var entry result.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return result.Entry{}, false, fmt.Errorf("decode %s: %w: %w", key, err, domain.ErrCacheFailure)
	}
	return entry, true, nil
}

// Set stores an entry. Non-positive ttl falls back to DefaultTTL.
func (c *Cache) Set(ctx context.Context, key string, entry result.Entry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode %s: %w: %w", key, err, domain.ErrCacheFailure)
	}
	if err := c.store.SetWithTTL(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("set %s: %w: %w", key, err, domain.ErrCacheFailure)
	}
	return nil
}

// InvalidatePrefix deletes every entry whose key starts with prefix and returns how many were removed.
// Entries written while the scan runs may survive; they expire on their own TTL.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := c.store.Scan(ctx, prefix+"*")
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w: %w", prefix, err, domain.ErrCacheFailure)
	}

	removed := 0
	for start := 0; start < len(keys); start += delChunk {
		end := min(start+delChunk, len(keys))
		n, err := c.store.Unlink(ctx, keys[start:end]...)
		if err != nil {
			return removed, fmt.Errorf("delete %s: %w: %w", prefix, err, domain.ErrCacheFailure)
		}
		removed += n
	}
	return removed, nil
}
