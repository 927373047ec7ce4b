package chi

import (
	"context"

	domanalytics "github.com/kailas-cloud/unisearch/internal/domain/analytics"
	"github.com/kailas-cloud/unisearch/internal/domain/manifest"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
	"github.com/kailas-cloud/unisearch/internal/domain/search/query"
	"github.com/kailas-cloud/unisearch/internal/domain/search/result"
	healthuc "github.com/kailas-cloud/unisearch/internal/usecase/health"
	"github.com/kailas-cloud/unisearch/internal/usecase/indexing"
)

// Searcher runs unified queries.
type Searcher interface {
	Search(ctx context.Context, spec query.Spec, userID string) (result.Response, error)
}

// Analytics records clicks and serves suggestions.
type Analytics interface {
	Click(ctx context.Context, c domanalytics.Click) error
	Suggest(ctx context.Context, tenantID int64, prefix string, limit int) ([]string, error)
}

// Indexer triggers and inspects index runs.
type Indexer interface {
	Rebuild(ctx context.Context, scope manifest.Scope, token string) (manifest.Manifest, error)
	Update(ctx context.Context, scope manifest.Scope, m module.Module, token string) (manifest.Manifest, error)
	Live(scope manifest.Scope) (manifest.Manifest, error)
	History(scope manifest.Scope, limit int) ([]manifest.Manifest, error)
	Status() []indexing.RunStatus
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
