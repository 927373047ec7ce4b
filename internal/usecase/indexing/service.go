// Package indexing builds and maintains the similarity index: weekly full rebuilds that swap in
// a new generation, and per-module incremental updates merged into the live generation.
package indexing

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/manifest"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
	"github.com/kailas-cloud/unisearch/internal/metrics"
	"github.com/kailas-cloud/unisearch/internal/vectorindex"
)

// Defaults for Options.
const (
	DefaultMaxDocsPerModule = 10000
	DefaultFullTimeout      = time.Hour
	DefaultKeepArtifacts    = 2
)

// Deps are the collaborators of the builder.
type Deps struct {
	Exporters []Exporter
	Provider  IndexProvider
	Manifests ManifestStore
	Locks     Locker
	Tokens    TokenStore
	Cache     CacheInvalidator
}

// Options tune the builder.
type Options struct {
	// DataDir holds one artifact file per generation.
	DataDir          string
	MaxDocsPerModule int
	FullTimeout      time.Duration
	// KeepArtifacts is how many recent artifact files per scope survive a rebuild.
	KeepArtifacts int
}

// Service is the index builder. It also serves the live indexes to the query path.
type Service struct {
	exporters map[module.Module]Exporter
	provider  IndexProvider
	manifests ManifestStore
	locks     Locker
	tokens    TokenStore
	cache     CacheInvalidator
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
	states    *tracker

	mu   sync.RWMutex
	live map[manifest.Scope]*vectorindex.Index

	// swapMu serializes manifest swaps per scope within this process.
	swapMu sync.Map // manifest.Scope -> *sync.Mutex
}

// New creates an index builder.
func New(deps Deps, opts Options, logger *zap.Logger) *Service {
	if opts.MaxDocsPerModule <= 0 {
		opts.MaxDocsPerModule = DefaultMaxDocsPerModule
	}
	if opts.FullTimeout <= 0 {
		opts.FullTimeout = DefaultFullTimeout
	}
	if opts.KeepArtifacts <= 0 {
		opts.KeepArtifacts = DefaultKeepArtifacts
	}
	exporters := make(map[module.Module]Exporter, len(deps.Exporters))
	for _, e := range deps.Exporters {
		exporters[e.Module()] = e
	}
	s := &Service{
		exporters: exporters,
		provider:  deps.Provider,
		manifests: deps.Manifests,
		locks:     deps.Locks,
		tokens:    deps.Tokens,
		cache:     deps.Cache,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
		live:      make(map[manifest.Scope]*vectorindex.Index),
	}
	s.states = newTracker(func() time.Time { return s.now() })
	return s
}

// Rebuild runs a full rebuild of scope: export every module, embed, persist a new artifact and
// swap the manifest. A token seen before returns the manifest of the run it produced.
// A rebuild already running for the scope fails with domain.ErrRebuildInProgress.
func (s *Service) Rebuild(ctx context.Context, scope manifest.Scope, token string) (manifest.Manifest, error) {
	if m, ok := s.replay(ctx, token); ok {
		return m, nil
	}

	release, err := s.locks.Acquire(ctx, lockName(scope, ""))
	if err != nil {
		return manifest.Manifest{}, fmt.Errorf("rebuild %s: %w", scope, err)
	}
	defer s.release(release, scope)

	ctx, cancel := context.WithTimeout(ctx, s.opts.FullTimeout)
	defer cancel()

	m := manifest.Manifest{
		RunID:            uuid.NewString(),
		Scope:            scope,
		Kind:             manifest.KindFull,
		IdempotencyToken: token,
		StartedAt:        s.now().UTC(),
	}
	r, err := s.states.begin(scope, manifest.KindFull, "", m.RunID)
	if err != nil {
		return manifest.Manifest{}, fmt.Errorf("rebuild %s: %w: %w", scope, err, domain.ErrRebuildInProgress)
	}
	defer r.finish()

	start := s.now()
	out, err := s.rebuild(ctx, r, m)
	status := "success"
	if err != nil {
		status = "failed"
	}
	metrics.IndexRunDuration.WithLabelValues(string(manifest.KindFull), status).Observe(s.now().Sub(start).Seconds())
	return out, err
}

func (s *Service) rebuild(ctx context.Context, r *run, m manifest.Manifest) (manifest.Manifest, error) {
	ctx, usage := domain.NewContextWithUsage(ctx)
	collectedAt := s.now().UTC()
	docs, counts, truncated, err := s.exportAll(ctx, m.Scope)
	if err != nil {
		return s.fail(r, m, 0, err)
	}
	m.ModuleCounts = counts
	m.Truncated = truncated
	m.Watermarks = make(map[module.Module]time.Time, len(counts))
	for mod := range counts {
		m.Watermarks[mod] = collectedAt
	}
	r.setDocuments(len(docs))

	if err := r.to(manifest.StateEmbedding); err != nil {
		return s.fail(r, m, len(docs), err)
	}
	built, err := s.provider.BuildIndex(ctx, docs)
	if err != nil {
		return s.fail(r, m, len(docs), err)
	}
	m.EmbeddingTokens = usage.Tokens()

	if err := r.to(manifest.StatePersisting); err != nil {
		return s.fail(r, m, len(docs), err)
	}
	m.ArtifactPath = s.artifactPath(m.Scope, m.RunID)
	if err := s.provider.SaveIndex(built, m.ArtifactPath); err != nil {
		return s.fail(r, m, len(docs), err)
	}
	ix, err := s.provider.LoadIndex(m.ArtifactPath)
	if err != nil {
		removeArtifact(m.ArtifactPath)
		return s.fail(r, m, len(docs), err)
	}

	mu := s.scopeLock(m.Scope)
	mu.Lock()
	m.State = manifest.StateLive
	m.BuiltAt = s.now().UTC()
	stored, err := s.manifests.Swap(m)
	if err != nil {
		mu.Unlock()
		_ = ix.Close()
		removeArtifact(m.ArtifactPath)
		return s.fail(r, m, len(docs), err)
	}
	s.publish(m.Scope, ix)
	mu.Unlock()

	if err := r.to(manifest.StateLive); err != nil {
		s.logger.Error("Index state machine out of sync", zap.Error(err))
	}
	s.observeLive(&stored)
	s.logger.Info("Index rebuilt",
		zap.String("scope", string(stored.Scope)),
		zap.Uint64("generation", stored.Generation),
		zap.Int("documents", stored.TotalDocuments()),
		zap.Int("embedding_tokens", stored.EmbeddingTokens),
		zap.Any("truncated", stored.Truncated),
	)

	s.invalidate(ctx, stored.Scope)
	s.remember(ctx, stored)
	s.prune(stored.Scope)
	return stored, nil
}

// exportAll runs every exporter concurrently. Any failure aborts the rebuild so a partial
// corpus never goes live.
func (s *Service) exportAll(
	ctx context.Context, scope manifest.Scope,
) ([]domain.SearchDocument, map[module.Module]int, []module.Module, error) {
	results := make([]domain.ExportResult, len(module.All))
	g, gctx := errgroup.WithContext(ctx)
	for i, mod := range module.All {
		exp, ok := s.exporters[mod]
		if !ok {
			continue
		}
		g.Go(func() error {
			res, err := exp.Export(gctx, scope, nil)
			if err != nil {
				return fmt.Errorf("export %s: %w", mod, err)
			}
			results[i] = s.capped(res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	var docs []domain.SearchDocument
	counts := make(map[module.Module]int)
	var truncated []module.Module
	for i, mod := range module.All {
		if _, ok := s.exporters[mod]; !ok {
			continue
		}
		counts[mod] = len(results[i].Documents)
		if results[i].Truncated {
			truncated = append(truncated, mod)
		}
		docs = append(docs, results[i].Documents...)
	}
	return docs, counts, truncated, nil
}

func (s *Service) capped(res domain.ExportResult) domain.ExportResult {
	if len(res.Documents) > s.opts.MaxDocsPerModule {
		res.Documents = res.Documents[:s.opts.MaxDocsPerModule]
		res.Truncated = true
	}
	return res
}

// fail records a failed run. The live manifest and artifact are left untouched.
func (s *Service) fail(r *run, m manifest.Manifest, docCount int, cause error) (manifest.Manifest, error) {
	stage := r.state()
	r.fail(cause)

	m.State = manifest.StateFailed
	m.Error = cause.Error()
	m.BuiltAt = s.now().UTC()
	if m.ArtifactPath != "" && m.Kind == manifest.KindFull {
		m.ArtifactPath = ""
	}

	metrics.IndexFailuresTotal.WithLabelValues(string(m.Kind), string(stage)).Inc()
	s.logger.Error("Index run failed",
		zap.String("kind", string(m.Kind)),
		zap.String("scope", string(m.Scope)),
		zap.String("module", string(m.Module)),
		zap.String("stage", string(stage)),
		zap.Int("documents", docCount),
		zap.Error(cause),
	)

	stored, err := s.manifests.Append(m)
	if err != nil {
		s.logger.Error("Failed to record failed index run", zap.String("scope", string(m.Scope)), zap.Error(err))
		stored = m
	}
	return stored, fmt.Errorf("%s %s failed while %s: %w", m.Kind, m.Scope, stage, cause)
}

func (s *Service) replay(ctx context.Context, token string) (manifest.Manifest, bool) {
	if token == "" || s.tokens == nil {
		return manifest.Manifest{}, false
	}
	ref, ok, err := s.tokens.Lookup(ctx, token)
	if err != nil {
		s.logger.Warn("Idempotency lookup failed", zap.String("token", token), zap.Error(err))
		return manifest.Manifest{}, false
	}
	if !ok {
		return manifest.Manifest{}, false
	}
	m, err := s.manifests.Get(ref.Scope, ref.Generation)
	if err != nil {
		s.logger.Warn("Manifest for idempotency token missing", zap.String("token", token), zap.Error(err))
		return manifest.Manifest{}, false
	}
	s.logger.Info("Index run replayed", zap.String("token", token), zap.Uint64("generation", m.Generation))
	return m, true
}

func (s *Service) remember(ctx context.Context, m manifest.Manifest) {
	if m.IdempotencyToken == "" || s.tokens == nil {
		return
	}
	if err := s.tokens.Remember(ctx, m.IdempotencyToken, m.Ref()); err != nil {
		s.logger.Warn("Failed to record idempotency token", zap.String("token", m.IdempotencyToken), zap.Error(err))
	}
}

// invalidate drops cached result sets after a full rebuild. Best-effort.
func (s *Service) invalidate(ctx context.Context, scope manifest.Scope) {
	if s.cache == nil {
		return
	}
	prefix := s.cache.Prefix()
	if id, ok := scope.TenantID(); ok {
		prefix = s.cache.TenantPrefix(id)
	}
	n, err := s.cache.InvalidatePrefix(ctx, prefix)
	if err != nil {
		s.logger.Warn("Result cache invalidation failed", zap.String("scope", string(scope)), zap.Error(err))
		return
	}
	s.logger.Debug("Result cache invalidated", zap.String("scope", string(scope)), zap.Int("entries", n))
}

func (s *Service) release(release func(context.Context) error, scope manifest.Scope) {
	// The run context may be done; the lock must still be freed.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := release(ctx); err != nil {
		s.logger.Warn("Failed to release index lock", zap.String("scope", string(scope)), zap.Error(err))
	}
}

func (s *Service) scopeLock(scope manifest.Scope) *sync.Mutex {
	mu, _ := s.swapMu.LoadOrStore(scope, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *Service) artifactPath(scope manifest.Scope, runID string) string {
	return filepath.Join(s.opts.DataDir, artifactPrefix(scope)+runID+".db")
}

// artifactPrefix maps a scope to a file name prefix, e.g. "tenant-7-".
func artifactPrefix(scope manifest.Scope) string {
	return strings.ReplaceAll(string(scope), ":", "-") + "-"
}

func lockName(scope manifest.Scope, m module.Module) string {
	if m == "" {
		return "index:" + string(scope)
	}
	return "index:" + string(scope) + ":" + string(m)
}

func (s *Service) observeLive(m *manifest.Manifest) {
	metrics.IndexGeneration.WithLabelValues(string(m.Scope)).Set(float64(m.Generation))
	for mod, n := range m.ModuleCounts {
		metrics.IndexDocuments.WithLabelValues(string(m.Scope), string(mod)).Set(float64(n))
	}
}
