package db

import (
	"context"
	"time"
)

// Store is the main database facade combining all sub-interfaces.
//
//nolint:interfacebloat // facade; consumers depend on the narrow sub-interfaces
type Store interface {
	Pinger
	HashStore
	KVStore
	Locker
	SortedSetStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashStore covers the hash records: mirrored source records read in bulk, analytics events
// written with a retention TTL.
type HashStore interface {
	HSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	// Unlink removes keys without blocking the server and reports how many existed.
	Unlink(ctx context.Context, keys ...string) (int, error)
}

// KVStore provides expiring blobs: cached result sets, vectors, suggestions and tokens.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Locker provides owner-tagged expiring locks.
type Locker interface {
	// SetNX stores value only if key is absent. Reports whether the value was stored.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// DelIfEqual deletes key only while it still holds value. Reports whether it was deleted.
	DelIfEqual(ctx context.Context, key string, value []byte) (bool, error)
}

// ScoredMember is one sorted-set entry.
type ScoredMember struct {
	Member string
	Score  float64
}

// SortedSetStore provides the sorted-set operations used for frequency counters.
type SortedSetStore interface {
	ZIncrBy(ctx context.Context, key, member string, incr float64) error
	ZRevRangeWithScores(ctx context.Context, key string, limit int) ([]ScoredMember, error)
}
