package indexing

import (
	"context"
	"time"

	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/manifest"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
	"github.com/kailas-cloud/unisearch/internal/vectorindex"
)

// Exporter produces the indexable corpus of one module.
type Exporter interface {
	Module() module.Module
	Export(ctx context.Context, scope manifest.Scope, since *time.Time) (domain.ExportResult, error)
}

// IndexProvider embeds documents and builds, saves and loads similarity indexes.
type IndexProvider interface {
	EmbedDocuments(ctx context.Context, docs []domain.SearchDocument) ([][]float32, error)
	BuildIndex(ctx context.Context, docs []domain.SearchDocument) (*vectorindex.Index, error)
	SaveIndex(ix *vectorindex.Index, path string) error
	LoadIndex(path string) (*vectorindex.Index, error)
}

// ManifestStore persists manifests append-then-swap.
type ManifestStore interface {
	Append(m manifest.Manifest) (manifest.Manifest, error)
	Swap(m manifest.Manifest) (manifest.Manifest, error)
	Live(scope manifest.Scope) (manifest.Manifest, error)
	Get(scope manifest.Scope, generation uint64) (manifest.Manifest, error)
	List(scope manifest.Scope, limit int) ([]manifest.Manifest, error)
	Scopes() ([]manifest.Scope, error)
}

// Locker hands out exclusive named locks.
type Locker interface {
	Acquire(ctx context.Context, name string) (release func(context.Context) error, err error)
}

// TokenStore remembers which run an idempotency token produced.
type TokenStore interface {
	Lookup(ctx context.Context, token string) (manifest.Ref, bool, error)
	Remember(ctx context.Context, token string, ref manifest.Ref) error
}

// CacheInvalidator drops cached result sets after a full rebuild.
type CacheInvalidator interface {
	Prefix() string
	TenantPrefix(tenantID int64) string
	InvalidatePrefix(ctx context.Context, prefix string) (int, error)
}
