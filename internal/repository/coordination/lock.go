// Package coordination holds the redis-backed primitives that keep index writers apart:
// owner-tagged scope locks and idempotency tokens.
package coordination

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/unisearch/internal/domain"
)

// DefaultLockTTL outlives the longest full rebuild so a crashed writer frees the scope eventually.
const DefaultLockTTL = 65 * time.Minute

// locker is the consumer interface for scope locks (ISP).
type locker interface {
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	DelIfEqual(ctx context.Context, key string, value []byte) (bool, error)
}

// Locks hands out exclusive leases keyed by name.
type Locks struct {
	store  locker
	prefix string
	ttl    time.Duration
}

// NewLocks creates a lock manager.
func NewLocks(s locker, keyPrefix string, ttl time.Duration) *Locks {
	if keyPrefix == "" {
		keyPrefix = domain.KeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &Locks{store: s, prefix: keyPrefix + "lock:", ttl: ttl}
}

// lease is a held lock.
type lease struct {
	store locker
	key   string
	owner string
}

// Acquire takes the named lock or fails with domain.ErrRebuildInProgress when another owner holds it.
// The returned func releases the lock.
func (l *Locks) Acquire(ctx context.Context, name string) (func(context.Context) error, error) {
	key := l.prefix + name
	owner := uuid.NewString()
	ok, err := l.store.SetNX(ctx, key, []byte(owner), l.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("acquire %s: %w", name, domain.ErrRebuildInProgress)
	}
	le := &lease{store: l.store, key: key, owner: owner}
	return le.release, nil
}

// release frees the lock if this lease still owns it. An expired lease releases nothing.
func (le *lease) release(ctx context.Context) error {
	if _, err := le.store.DelIfEqual(ctx, le.key, []byte(le.owner)); err != nil {
		return fmt.Errorf("release %s: %w", le.key, err)
	}
	return nil
}
