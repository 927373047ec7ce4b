package search

import (
	"context"
	"time"

	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/analytics"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
	"github.com/kailas-cloud/unisearch/internal/domain/search/query"
	"github.com/kailas-cloud/unisearch/internal/domain/search/result"
	"github.com/kailas-cloud/unisearch/internal/vectorindex"
)

// ModuleSearcher fetches candidate documents from one module's source of truth.
type ModuleSearcher interface {
	Module() module.Module
	Search(ctx context.Context, tenantID int64, text string, limit int, filters query.Filters) ([]domain.SearchDocument, error)
}

// ResultCache stores ranked result sets.
type ResultCache interface {
	Key(tenantID int64, hash string) string
	Get(ctx context.Context, key string) (result.Entry, bool, error)
	Set(ctx context.Context, key string, entry result.Entry, ttl time.Duration) error
}

// AnalyticsSink receives one event per answered query. Record must not block.
type AnalyticsSink interface {
	Record(ev analytics.Event)
}

// QueryEmbedder vectorizes the query for semantic recall.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SemanticIndex looks up the live similarity index serving a tenant.
type SemanticIndex interface {
	Similar(tenantID int64, vec []float32, k int, keep func(*domain.SearchDocument) bool) ([]vectorindex.Hit, error)
}
