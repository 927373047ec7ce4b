// Package analytics stores query events, clicks and per-tenant query frequencies in redis.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/unisearch/internal/db"
	"github.com/kailas-cloud/unisearch/internal/domain"
	domanalytics "github.com/kailas-cloud/unisearch/internal/domain/analytics"
)

// DefaultEventTTL is how long raw query and click records are kept.
const DefaultEventTTL = 30 * 24 * time.Hour

// store is the consumer interface for analytics (ISP).
type store interface {
	HSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	ZIncrBy(ctx context.Context, key, member string, incr float64) error
	ZRevRangeWithScores(ctx context.Context, key string, limit int) ([]db.ScoredMember, error)
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Repo writes analytics records under <prefix>analytics:.
type Repo struct {
	store    store
	prefix   string
	eventTTL time.Duration
}

// New creates an analytics repository.
func New(s store, keyPrefix string, eventTTL time.Duration) *Repo {
	if keyPrefix == "" {
		keyPrefix = domain.KeyPrefix
	}
	if eventTTL <= 0 {
		eventTTL = DefaultEventTTL
	}
	return &Repo{store: s, prefix: keyPrefix + "analytics:", eventTTL: eventTTL}
}

// RecordQuery stores the event and bumps the tenant's query frequency.
func (r *Repo) RecordQuery(ctx context.Context, ev *domanalytics.Event, normalized string) error {
	key := r.prefix + "event:" + ev.CorrelationID
	fields := map[string]string{
		"tenant_id":        strconv.FormatInt(ev.TenantID, 10),
		"user_id":          ev.UserID,
		"query":            ev.Query,
		"modules":          strings.Join(ev.Modules, ","),
		"filters":          strings.Join(ev.Filters, ";"),
		"result_count":     strconv.Itoa(ev.ResultCount),
		"response_time_ms": strconv.FormatInt(ev.ResponseTimeMs, 10),
		"from_cache":       strconv.FormatBool(ev.FromCache),
		"at":               ev.At.UTC().Format(time.RFC3339Nano),
	}
	if err := r.store.HSetWithTTL(ctx, key, fields, r.eventTTL); err != nil {
		return fmt.Errorf("record query event: %w", err)
	}
	if normalized == "" {
		return nil
	}
	if err := r.store.ZIncrBy(ctx, r.queriesKey(ev.TenantID), normalized, 1); err != nil {
		return fmt.Errorf("count query: %w", err)
	}
	return nil
}

// RecordClick stores one click, keyed by correlation id and result position.
func (r *Repo) RecordClick(ctx context.Context, c *domanalytics.Click) error {
	key := r.prefix + "click:" + c.CorrelationID + ":" + strconv.Itoa(c.Position)
	fields := map[string]string{
		"correlation_id": c.CorrelationID,
		"tenant_id":      strconv.FormatInt(c.TenantID, 10),
		"user_id":        c.UserID,
		"entity_type":    string(c.EntityType),
		"entity_id":      c.EntityID,
		"position":       strconv.Itoa(c.Position),
		"at":             c.At.UTC().Format(time.RFC3339Nano),
	}
	if err := r.store.HSetWithTTL(ctx, key, fields, r.eventTTL); err != nil {
		return fmt.Errorf("record click: %w", err)
	}
	return nil
}

// TopQueries returns the tenant's most frequent normalized queries.
func (r *Repo) TopQueries(ctx context.Context, tenantID int64, n int) ([]db.ScoredMember, error) {
	out, err := r.store.ZRevRangeWithScores(ctx, r.queriesKey(tenantID), n)
	if err != nil {
		return nil, fmt.Errorf("top queries: %w", err)
	}
	return out, nil
}

// CachedSuggestions returns a previously cached suggestion list. ok is false on a miss.
func (r *Repo) CachedSuggestions(ctx context.Context, tenantID int64, prefix string, limit int) ([]string, bool, error) {
	data, err := r.store.Get(ctx, r.suggestKey(tenantID, prefix, limit))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get suggestions: %w: %w", err, domain.ErrCacheFailure)
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false, fmt.Errorf("decode suggestions: %w: %w", err, domain.ErrCacheFailure)
	}
	return out, true, nil
}

// CacheSuggestions stores a suggestion list for ttl.
func (r *Repo) CacheSuggestions(
	ctx context.Context, tenantID int64, prefix string, limit int, list []string, ttl time.Duration,
) error {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode suggestions: %w", err)
	}
	if err := r.store.SetWithTTL(ctx, r.suggestKey(tenantID, prefix, limit), data, ttl); err != nil {
		return fmt.Errorf("cache suggestions: %w: %w", err, domain.ErrCacheFailure)
	}
	return nil
}

func (r *Repo) queriesKey(tenantID int64) string {
	return r.prefix + "queries:" + strconv.FormatInt(tenantID, 10)
}

func (r *Repo) suggestKey(tenantID int64, prefix string, limit int) string {
	return r.prefix + "suggest:" + strconv.FormatInt(tenantID, 10) + ":" + strconv.Itoa(limit) + ":" + prefix
}
