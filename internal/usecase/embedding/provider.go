package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/metrics"
	"github.com/kailas-cloud/unisearch/internal/vectorindex"
)

// Defaults for Provider.
const (
	DefaultBatchSize = 64
	DefaultWorkers   = 4
)

// ProviderConfig sizes the embedding worker pool.
type ProviderConfig struct {
	// BatchSize is the number of texts sent per provider call.
	BatchSize int
	// Workers bounds concurrent provider calls across all index runs.
	Workers int
}

// Provider embeds text and builds, saves and loads similarity indexes.
// The index builder and the query path depend on it, never on a concrete model.
type Provider struct {
	embedder  domain.Embedder
	pool      *ants.Pool
	batchSize int
	logger    *zap.Logger
}

// NewProvider creates a provider backed by a bounded worker pool. Call Release when done.
func NewProvider(embedder domain.Embedder, cfg ProviderConfig, logger *zap.Logger) (*Provider, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}
	return &Provider{
		embedder:  embedder,
		pool:      pool,
		batchSize: cfg.BatchSize,
		logger:    logger,
	}, nil
}

// Release stops the worker pool.
func (p *Provider) Release() {
	p.pool.Release()
}

// Embed vectorizes a single text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w: %w", err, domain.ErrEmbeddingProviderError)
	}
	return res.Embedding, nil
}

// EmbedDocuments vectorizes documents in batches spread across the worker pool.
// The first failing batch cancels the rest.
func (p *Provider) EmbedDocuments(ctx context.Context, docs []domain.SearchDocument) ([][]float32, error) {
	vecs := make([][]float32, len(docs))
	if len(docs) == 0 {
		return vecs, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for start := 0; start < len(docs); start += p.batchSize {
		end := min(start+p.batchSize, len(docs))
		if ctx.Err() != nil {
			break
		}

		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = docs[i].Text()
		}

		wg.Add(1)
		offset := start
		err := p.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			metrics.EmbeddingBatchesInFlight.Inc()
			defer metrics.EmbeddingBatchesInFlight.Dec()
			metrics.EmbeddingBatchDocuments.Observe(float64(len(texts)))
			res, err := domain.BatchEmbed(ctx, p.embedder, texts)
			if err != nil {
				fail(fmt.Errorf("batch at offset %d: %w: %w", offset, err, domain.ErrEmbeddingProviderError))
				return
			}
			copy(vecs[offset:], res.Embeddings)
			domain.UsageFromContext(ctx).AddBatch(res.TotalTokens)
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit batch at offset %d: %w", offset, err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	return vecs, nil
}

// BuildIndex embeds docs and returns a new in-memory index.
func (p *Provider) BuildIndex(ctx context.Context, docs []domain.SearchDocument) (*vectorindex.Index, error) {
	vecs, err := p.EmbedDocuments(ctx, docs)
	if err != nil {
		return nil, err
	}
	ix := vectorindex.New(0)
	for i := range docs {
		if err := ix.Add(docs[i], vecs[i]); err != nil {
			return nil, fmt.Errorf("add to index: %w: %w", err, domain.ErrEmbeddingProviderError)
		}
	}
	p.logger.Debug("Index built", zap.Int("documents", ix.Len()), zap.Int("dims", ix.Dims()))
	return ix, nil
}

// SaveIndex persists an index at path.
func (p *Provider) SaveIndex(ix *vectorindex.Index, path string) error {
	if err := ix.Save(path); err != nil {
		return fmt.Errorf("save index: %w: %w", err, domain.ErrPersistenceFailure)
	}
	return nil
}

// LoadIndex opens a persisted index.
func (p *Provider) LoadIndex(path string) (*vectorindex.Index, error) {
	ix, err := vectorindex.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load index: %w: %w", err, domain.ErrPersistenceFailure)
	}
	return ix, nil
}
