package indexing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/manifest"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
	"github.com/kailas-cloud/unisearch/internal/metrics"
)

// errSuperseded means a full rebuild swapped the scope while an update was running.
var errSuperseded = errors.New("live generation changed during update")

// Update re-indexes the documents of one module changed since the module's watermark and
// merges them into the live generation of scope. Deletions are not applied; they disappear with
// the next full rebuild. Updates of different modules run independently.
func (s *Service) Update(
	ctx context.Context, scope manifest.Scope, m module.Module, token string,
) (manifest.Manifest, error) {
	if !slices.Contains(module.Incremental, m) {
		return manifest.Manifest{}, fmt.Errorf("%s is not incrementally indexed: %w", m, domain.ErrUnknownModule)
	}
	exp, ok := s.exporters[m]
	if !ok {
		return manifest.Manifest{}, fmt.Errorf("no exporter for %s: %w", m, domain.ErrUnknownModule)
	}

	if prev, ok := s.replay(ctx, token); ok {
		return prev, nil
	}

	base, err := s.Live(scope)
	if err != nil {
		return manifest.Manifest{}, fmt.Errorf("update %s/%s: %w", scope, m, err)
	}
	if _, ok := s.liveIndex(scope); !ok {
		return manifest.Manifest{}, fmt.Errorf("update %s/%s: index not loaded: %w", scope, m, domain.ErrIndexNotReady)
	}

	release, err := s.locks.Acquire(ctx, lockName(scope, m))
	if err != nil {
		return manifest.Manifest{}, fmt.Errorf("update %s/%s: %w", scope, m, err)
	}
	defer s.release(release, scope)

	next := manifest.Manifest{
		RunID:            uuid.NewString(),
		Scope:            scope,
		Kind:             manifest.KindIncremental,
		Module:           m,
		IdempotencyToken: token,
		StartedAt:        s.now().UTC(),
		ArtifactPath:     base.ArtifactPath,
	}
	r, err := s.states.begin(scope, manifest.KindIncremental, m, next.RunID)
	if err != nil {
		return manifest.Manifest{}, fmt.Errorf("update %s/%s: %w: %w", scope, m, err, domain.ErrRebuildInProgress)
	}
	defer r.finish()

	start := s.now()
	out, err := s.update(ctx, r, exp, base, next)
	status := "success"
	if err != nil {
		status = "failed"
	}
	metrics.IndexRunDuration.WithLabelValues(string(manifest.KindIncremental), status).Observe(s.now().Sub(start).Seconds())
	return out, err
}

func (s *Service) update(
	ctx context.Context, r *run, exp Exporter, base, next manifest.Manifest,
) (manifest.Manifest, error) {
	ctx, usage := domain.NewContextWithUsage(ctx)
	m := next.Module
	var since *time.Time
	if wm, ok := base.Watermarks[m]; ok && !wm.IsZero() {
		since = &wm
	}

	collectedAt := s.now().UTC()
	res, err := exp.Export(ctx, next.Scope, since)
	if err != nil {
		return s.fail(r, next, 0, err)
	}
	res = s.capped(res)
	docs := res.Documents
	if res.Truncated {
		next.Truncated = []module.Module{m}
	}
	r.setDocuments(len(docs))

	if err := r.to(manifest.StateEmbedding); err != nil {
		return s.fail(r, next, len(docs), err)
	}
	vecs, err := s.provider.EmbedDocuments(ctx, docs)
	if err != nil {
		return s.fail(r, next, len(docs), err)
	}
	next.EmbeddingTokens = usage.Tokens()

	if err := r.to(manifest.StatePersisting); err != nil {
		return s.fail(r, next, len(docs), err)
	}

	mu := s.scopeLock(next.Scope)
	mu.Lock()
	defer mu.Unlock()

	current, err := s.manifests.Live(next.Scope)
	if err != nil {
		return s.fail(r, next, len(docs), err)
	}
	ix, ok := s.liveIndex(next.Scope)
	if current.Generation != base.Generation || !ok || ix.Path() != base.ArtifactPath {
		return s.fail(r, next, len(docs), errSuperseded)
	}
	if err := ix.Upsert(docs, vecs); err != nil {
		return s.fail(r, next, len(docs), fmt.Errorf("merge delta: %w: %w", err, domain.ErrPersistenceFailure))
	}

	next.ModuleCounts = ix.Counts()
	next.Watermarks = make(map[module.Module]time.Time, len(current.Watermarks)+1)
	for k, v := range current.Watermarks {
		next.Watermarks[k] = v
	}
	next.Watermarks[m] = collectedAt
	next.State = manifest.StateLive
	next.BuiltAt = s.now().UTC()

	stored, err := s.manifests.Swap(next)
	if err != nil {
		return s.fail(r, next, len(docs), err)
	}
	if err := r.to(manifest.StateLive); err != nil {
		s.logger.Error("Index state machine out of sync", zap.Error(err))
	}

	s.observeLive(&stored)
	s.logger.Info("Index updated",
		zap.String("scope", string(stored.Scope)),
		zap.String("module", string(m)),
		zap.Uint64("generation", stored.Generation),
		zap.Int("delta", len(docs)),
		zap.Int("embedding_tokens", stored.EmbeddingTokens),
	)
	s.remember(ctx, stored)
	return stored, nil
}
