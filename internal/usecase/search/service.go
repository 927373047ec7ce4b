package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/analytics"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
	"github.com/kailas-cloud/unisearch/internal/domain/search/query"
	"github.com/kailas-cloud/unisearch/internal/domain/search/result"
	"github.com/kailas-cloud/unisearch/internal/logger"
	"github.com/kailas-cloud/unisearch/internal/metrics"
	"github.com/kailas-cloud/unisearch/internal/usecase/ranking"
)

// Defaults for Options.
const (
	DefaultCacheTTL           = 5 * time.Minute
	DefaultAdapterTimeout     = 2500 * time.Millisecond
	DefaultSemanticCandidates = 20
)

// Deps are the collaborators of the orchestrator. Analytics, Embedder and Index are optional.
type Deps struct {
	Adapters  []ModuleSearcher
	Cache     ResultCache
	Analytics AnalyticsSink
	Embedder  QueryEmbedder
	Index     SemanticIndex
}

// Options tune the query path.
type Options struct {
	CacheTTL       time.Duration
	AdapterTimeout time.Duration
	Weights        ranking.Weights
	// SemanticCandidates is how many index neighbours semantic recall considers.
	SemanticCandidates int
}

// Service is the search orchestrator: cache, concurrent module fan-out, ranking.
type Service struct {
	adapters map[module.Module]ModuleSearcher
	cache    ResultCache
	sink     AnalyticsSink
	embedder QueryEmbedder
	index    SemanticIndex
	opts     Options
	now      func() time.Time
}

// New creates a search service.
func New(deps Deps, opts Options) *Service {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.AdapterTimeout <= 0 {
		opts.AdapterTimeout = DefaultAdapterTimeout
	}
	if opts.SemanticCandidates <= 0 {
		opts.SemanticCandidates = DefaultSemanticCandidates
	}
	adapters := make(map[module.Module]ModuleSearcher, len(deps.Adapters))
	for _, a := range deps.Adapters {
		adapters[a.Module()] = a
	}
	return &Service{
		adapters: adapters,
		cache:    deps.Cache,
		sink:     deps.Analytics,
		embedder: deps.Embedder,
		index:    deps.Index,
		opts:     opts,
		now:      time.Now,
	}
}

// Search answers a validated query. Only a malformed spec fails; adapter, cache and
// semantic failures degrade the answer instead.
func (s *Service) Search(ctx context.Context, spec query.Spec, userID string) (result.Response, error) {
	start := s.now()
	ctx = logger.With(ctx, zap.Int64("tenant_id", spec.TenantID()))
	log := logger.FromContext(ctx)

	if spec.Text() == "" {
		return result.Response{}, domain.NewValidationError(domain.CodeEmptyQuery, "query text is required")
	}

	key := s.cache.Key(spec.TenantID(), spec.CacheKey())
	if entry, ok := s.lookup(ctx, key); ok {
		resp := s.respond(spec, entry, start, true)
		metrics.SearchDuration.WithLabelValues("hit").Observe(s.now().Sub(start).Seconds())
		s.record(spec, userID, &resp)
		return resp, nil
	}

	fanStart := s.now()
	docs, searched, moduleMs := s.fanOut(ctx, spec)
	fanOutMs := s.now().Sub(fanStart).Milliseconds()

	candidates := make([]ranking.Candidate, len(docs))
	for i := range docs {
		candidates[i] = ranking.Candidate{Document: docs[i]}
	}

	var semanticMs int64
	if s.semanticEnabled() {
		semStart := s.now()
		var err error
		candidates, err = s.recall(ctx, spec, candidates)
		if err != nil {
			log.Warn("Semantic recall skipped", zap.Int64("tenant_id", spec.TenantID()), zap.Error(err))
		}
		semanticMs = s.now().Sub(semStart).Milliseconds()
	}

	rankStart := s.now()
	ranked := ranking.Rank(candidates, spec.Text(), s.now(), s.opts.Weights)
	total := len(ranked)
	if len(ranked) > spec.Limit() {
		ranked = ranked[:spec.Limit()]
	}
	rankMs := s.now().Sub(rankStart).Milliseconds()

	entry := result.Entry{
		Results:         ranked,
		TotalCount:      total,
		Suggestions:     Suggestions(ranked, spec.Text()),
		FuzzyMatches:    FuzzyMatches(ranked, spec.Text()),
		ModulesSearched: module.Strings(searched),
		Timings: result.Timings{
			TotalMs:    s.now().Sub(start).Milliseconds(),
			FanOutMs:   fanOutMs,
			RankMs:     rankMs,
			SemanticMs: semanticMs,
			ModulesMs:  moduleMs,
		},
	}
	if entry.Results == nil {
		entry.Results = []result.Ranked{}
	}

	// Degraded answers are not cached so a recovered module shows up on the next query.
	if len(searched) == len(spec.Modules()) {
		if err := s.cache.Set(ctx, key, entry, s.opts.CacheTTL); err != nil {
			log.Debug("Result cache write failed", zap.String("key", key), zap.Error(err))
		}
	}

	resp := s.respond(spec, entry, start, false)
	metrics.SearchDuration.WithLabelValues("miss").Observe(s.now().Sub(start).Seconds())
	metrics.SearchResultsReturned.Observe(float64(len(resp.Results)))
	s.record(spec, userID, &resp)
	return resp, nil
}

func (s *Service) lookup(ctx context.Context, key string) (result.Entry, bool) {
	entry, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.SearchCacheTotal.WithLabelValues("error").Inc()
		logger.FromContext(ctx).Debug("Result cache read failed", zap.String("key", key), zap.Error(err))
		return result.Entry{}, false
	case ok:
		metrics.SearchCacheTotal.WithLabelValues("hit").Inc()
		return entry, true
	default:
		metrics.SearchCacheTotal.WithLabelValues("miss").Inc()
		return result.Entry{}, false
	}
}

func (s *Service) respond(spec query.Spec, entry result.Entry, start time.Time, fromCache bool) result.Response {
	return result.Response{
		Entry:         entry,
		Query:         spec.Text(),
		SearchTimeMs:  s.now().Sub(start).Milliseconds(),
		FromCache:     fromCache,
		CorrelationID: uuid.NewString(),
	}
}

func (s *Service) record(spec query.Spec, userID string, resp *result.Response) {
	if s.sink == nil {
		return
	}
	s.sink.Record(analytics.Event{
		CorrelationID:  resp.CorrelationID,
		TenantID:       spec.TenantID(),
		UserID:         userID,
		Query:          spec.Text(),
		Modules:        module.Strings(spec.Modules()),
		Filters:        spec.Filters().Items(),
		ResultCount:    len(resp.Results),
		ResponseTimeMs: resp.SearchTimeMs,
		FromCache:      resp.FromCache,
		At:             s.now().UTC(),
	})
}

type moduleOutcome struct {
	module module.Module
	docs   []domain.SearchDocument
	err    error
	reason string
	took   time.Duration
}

// fanOut queries every selected module concurrently and merges the answers in module order.
// Failed, timed-out and abandoned modules contribute nothing and are left out of searched.
func (s *Service) fanOut(
	ctx context.Context, spec query.Spec,
) (docs []domain.SearchDocument, searched []module.Module, moduleMs map[string]int64) {
	mods := spec.Modules()
	ch := make(chan moduleOutcome, len(mods))
	for _, m := range mods {
		go func() { ch <- s.searchModule(ctx, m, spec) }()
	}

	got := make(map[module.Module]moduleOutcome, len(mods))
collect:
	for range mods {
		select {
		case o := <-ch:
			got[o.module] = o
		case <-ctx.Done():
			break collect
		}
	}

	log := logger.FromContext(ctx)
	moduleMs = make(map[string]int64, len(mods))
	for _, m := range mods {
		o, ok := got[m]
		if !ok {
			metrics.AdapterFailuresTotal.WithLabelValues(string(m), "canceled").Inc()
			log.Warn("Module search abandoned",
				zap.String("module", string(m)), zap.Int64("tenant_id", spec.TenantID()), zap.Error(ctx.Err()))
			continue
		}
		moduleMs[string(m)] = o.took.Milliseconds()
		metrics.AdapterDuration.WithLabelValues(string(m)).Observe(o.took.Seconds())
		if o.err != nil {
			metrics.AdapterFailuresTotal.WithLabelValues(string(m), o.reason).Inc()
			log.Warn("Module search failed",
				zap.String("module", string(m)), zap.Int64("tenant_id", spec.TenantID()),
				zap.String("reason", o.reason), zap.Error(o.err))
			continue
		}
		searched = append(searched, m)
		for i := range o.docs {
			// Adapters filter by tenant; this guards against one that does not.
			if o.docs[i].VisibleTo(spec.TenantID()) {
				docs = append(docs, o.docs[i])
			}
		}
	}
	return docs, searched, moduleMs
}

// searchModule runs one adapter under its own deadline. An adapter that ignores its context
// is abandoned at the deadline; its late answer is dropped.
func (s *Service) searchModule(ctx context.Context, m module.Module, spec query.Spec) moduleOutcome {
	start := s.now()
	a, ok := s.adapters[m]
	if !ok {
		return moduleOutcome{module: m, err: fmt.Errorf("no adapter for %s: %w", m, domain.ErrUnknownModule), reason: "error"}
	}

	actx, cancel := context.WithTimeout(ctx, s.opts.AdapterTimeout)
	defer cancel()

	done := make(chan moduleOutcome, 1)
	go func() {
		docs, err := a.Search(actx, spec.TenantID(), spec.Text(), spec.Limit(), spec.Filters())
		done <- moduleOutcome{module: m, docs: docs, err: err}
	}()

	var o moduleOutcome
	select {
	case o = <-done:
	case <-actx.Done():
		o = moduleOutcome{module: m, err: actx.Err()}
	}
	o.took = s.now().Sub(start)
	if o.err != nil {
		o.reason = "error"
		if errors.Is(o.err, context.DeadlineExceeded) && ctx.Err() == nil {
			o.reason = "timeout"
		} else if ctx.Err() != nil {
			o.reason = "canceled"
		}
	}
	return o
}

func (s *Service) semanticEnabled() bool {
	return s.opts.Weights.Semantic > 0 && s.embedder != nil && s.index != nil
}

// recall attaches index similarity to the candidates. Without structured filters it also adds
// index neighbours the adapters did not return; with filters it only rescores, since filter
// support is adapter knowledge.
func (s *Service) recall(ctx context.Context, spec query.Spec, candidates []ranking.Candidate) ([]ranking.Candidate, error) {
	ectx, cancel := context.WithTimeout(ctx, s.opts.AdapterTimeout)
	defer cancel()

	vec, err := s.embedder.Embed(ectx, spec.Text())
	if err != nil {
		return candidates, fmt.Errorf("embed query: %w", err)
	}

	selected := make(map[module.Module]bool)
	for _, m := range spec.Modules() {
		selected[m] = true
	}
	tenantID := spec.TenantID()
	hits, err := s.index.Similar(tenantID, vec, s.opts.SemanticCandidates, func(d *domain.SearchDocument) bool {
		return selected[d.Module] && d.VisibleTo(tenantID)
	})
	if err != nil {
		return candidates, fmt.Errorf("similar documents: %w", err)
	}

	pos := make(map[string]int, len(candidates))
	for i := range candidates {
		pos[candidates[i].Document.ID] = i
	}
	addNew := spec.Filters().IsEmpty()
	for _, h := range hits {
		if i, ok := pos[h.Document.ID]; ok {
			candidates[i].Similarity = h.Similarity
			continue
		}
		if addNew {
			pos[h.Document.ID] = len(candidates)
			candidates = append(candidates, ranking.Candidate{Document: h.Document, Similarity: h.Similarity})
		}
	}
	return candidates, nil
}

// queryWords returns the lower-cased words of the query.
func queryWords(text string) []string {
	return ranking.Words(strings.ToLower(text))
}
