package coordination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/unisearch/internal/db"
	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/manifest"
)

// DefaultTokenTTL is how long a completed run answers repeats of its token.
const DefaultTokenTTL = 24 * time.Hour

// kv is the consumer interface for idempotency tokens (ISP).
type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Tokens remembers which run an idempotency token produced.
type Tokens struct {
	store  kv
	prefix string
	ttl    time.Duration
}

// NewTokens creates a token store.
func NewTokens(s kv, keyPrefix string, ttl time.Duration) *Tokens {
	if keyPrefix == "" {
		keyPrefix = domain.KeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Tokens{store: s, prefix: keyPrefix + "idem:", ttl: ttl}
}

// Lookup returns the run recorded for token. ok is false when the token is unseen.
func (t *Tokens) Lookup(ctx context.Context, token string) (manifest.Ref, bool, error) {
	data, err := t.store.Get(ctx, t.prefix+token)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return manifest.Ref{}, false, nil
		}
		return manifest.Ref{}, false, fmt.Errorf("lookup token: %w", err)
	}
	var ref manifest.Ref
	if err := json.Unmarshal(data, &ref); err != nil {
		return manifest.Ref{}, false, fmt.Errorf("decode token: %w", err)
	}
	return ref, true, nil
}

// Remember records the run produced for token.
func (t *Tokens) Remember(ctx context.Context, token string, ref manifest.Ref) error {
	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := t.store.SetWithTTL(ctx, t.prefix+token, data, t.ttl); err != nil {
		return fmt.Errorf("remember token: %w", err)
	}
	return nil
}
