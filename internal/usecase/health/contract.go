package health

import "context"

// DBPinger checks the store that backs the module adapters and caches.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks the embedding provider.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexChecker reports whether a similarity index is being served.
type IndexChecker interface {
	HasLiveIndex() bool
}
