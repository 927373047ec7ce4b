// Package analytics records query and click events and serves query suggestions built from them.
package analytics

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/unisearch/internal/db"
	"github.com/kailas-cloud/unisearch/internal/domain"
	domanalytics "github.com/kailas-cloud/unisearch/internal/domain/analytics"
	"github.com/kailas-cloud/unisearch/internal/domain/search/query"
	"github.com/kailas-cloud/unisearch/internal/metrics"
)

// Defaults for Options.
const (
	DefaultWorkers         = 4
	DefaultWriteTimeout    = 2 * time.Second
	DefaultSuggestCacheTTL = time.Hour
	// DefaultSuggestDepth is how many of the tenant's top queries are scanned for a prefix.
	DefaultSuggestDepth = 200
)

// Store is the analytics persistence the service writes through.
type Store interface {
	RecordQuery(ctx context.Context, ev *domanalytics.Event, normalized string) error
	RecordClick(ctx context.Context, c *domanalytics.Click) error
	TopQueries(ctx context.Context, tenantID int64, n int) ([]db.ScoredMember, error)
	CachedSuggestions(ctx context.Context, tenantID int64, prefix string, limit int) ([]string, bool, error)
	CacheSuggestions(ctx context.Context, tenantID int64, prefix string, limit int, list []string, ttl time.Duration) error
}

// Options tune the service.
type Options struct {
	// Workers bounds concurrent event writes. Events arriving while every worker is busy are dropped.
	Workers         int
	WriteTimeout    time.Duration
	SuggestCacheTTL time.Duration
	SuggestDepth    int
}

// Service is the analytics sink of the query path and the backend of click tracking and suggestions.
type Service struct {
	store  Store
	pool   *ants.Pool
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	wg sync.WaitGroup
}

// New creates the service. Call Close to flush pending writes.
func New(store Store, opts Options, logger *zap.Logger) (*Service, error) {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.SuggestCacheTTL <= 0 {
		opts.SuggestCacheTTL = DefaultSuggestCacheTTL
	}
	if opts.SuggestDepth <= 0 {
		opts.SuggestDepth = DefaultSuggestDepth
	}
	pool, err := ants.NewPool(opts.Workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create analytics pool: %w", err)
	}
	return &Service{store: store, pool: pool, opts: opts, logger: logger, now: time.Now}, nil
}

// Record queues a query event and returns immediately. Write failures and overload are
// counted and logged, never reported to the caller.
func (s *Service) Record(ev domanalytics.Event) {
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	s.wg.Add(1)
	err := s.pool.Submit(func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
		defer cancel()
		if err := s.store.RecordQuery(ctx, &ev, query.Normalize(ev.Query)); err != nil {
			metrics.AnalyticsFailuresTotal.WithLabelValues("query").Inc()
			s.logger.Warn("Analytics write failed",
				zap.String("correlation_id", ev.CorrelationID),
				zap.Int64("tenant_id", ev.TenantID),
				zap.Error(err),
			)
		}
	})
	if err != nil {
		s.wg.Done()
		metrics.AnalyticsFailuresTotal.WithLabelValues("query").Inc()
		s.logger.Warn("Analytics event dropped",
			zap.String("correlation_id", ev.CorrelationID),
			zap.Int64("tenant_id", ev.TenantID),
			zap.Error(err),
		)
	}
}

// Click stores a result click for the query identified by c.CorrelationID.
func (s *Service) Click(ctx context.Context, c domanalytics.Click) error {
	if c.TenantID <= 0 {
		return domain.NewValidationError(domain.CodeInvalidTenant, "tenant_id must be positive")
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if c.At.IsZero() {
		c.At = s.now()
	}
	if err := s.store.RecordClick(ctx, &c); err != nil {
		metrics.AnalyticsFailuresTotal.WithLabelValues("click").Inc()
		s.logger.Warn("Click write failed",
			zap.String("correlation_id", c.CorrelationID),
			zap.Int64("tenant_id", c.TenantID),
			zap.Error(err),
		)
		return fmt.Errorf("record click: %w", err)
	}
	return nil
}

// Suggest returns up to limit of the tenant's frequent past queries starting with prefix,
// most frequent first. limit 0 means domanalytics.MaxSuggestLimit.
func (s *Service) Suggest(ctx context.Context, tenantID int64, prefix string, limit int) ([]string, error) {
	if tenantID <= 0 {
		return nil, domain.NewValidationError(domain.CodeInvalidTenant, "tenant_id must be positive")
	}
	normalized := query.Normalize(prefix)
	if normalized == "" {
		return nil, domain.NewValidationError(domain.CodeInvalidPrefix, "prefix is required")
	}
	if len(normalized) > query.MaxTextLength {
		return nil, domain.NewValidationError(domain.CodeQueryTooLong, "prefix too long (max %d chars)", query.MaxTextLength)
	}
	if limit == 0 {
		limit = domanalytics.MaxSuggestLimit
	}
	if limit < 1 || limit > domanalytics.MaxSuggestLimit {
		return nil, domain.NewValidationError(
			domain.CodeInvalidLimit, "limit must be between 1 and %d, got %d", domanalytics.MaxSuggestLimit, limit,
		)
	}

	cached, ok, err := s.store.CachedSuggestions(ctx, tenantID, normalized, limit)
	if err != nil {
		s.logger.Debug("Suggestion cache read failed", zap.Int64("tenant_id", tenantID), zap.Error(err))
	}
	if ok {
		return cached, nil
	}

	top, err := s.store.TopQueries(ctx, tenantID, s.opts.SuggestDepth)
	if err != nil {
		return nil, fmt.Errorf("suggest: %w", err)
	}
	out := make([]string, 0, limit)
	for _, q := range top {
		if !strings.HasPrefix(q.Member, normalized) {
			continue
		}
		out = append(out, q.Member)
		if len(out) == limit {
			break
		}
	}

	if err := s.store.CacheSuggestions(ctx, tenantID, normalized, limit, out, s.opts.SuggestCacheTTL); err != nil {
		s.logger.Debug("Suggestion cache write failed", zap.Int64("tenant_id", tenantID), zap.Error(err))
	}
	return out, nil
}

// Close waits for queued writes and stops the worker pool.
func (s *Service) Close() {
	s.wg.Wait()
	s.pool.Release()
}
