package indexing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/manifest"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
	"github.com/kailas-cloud/unisearch/internal/metrics"
	"github.com/kailas-cloud/unisearch/internal/vectorindex"
)

// --- Mocks ---

type mockExporter struct {
	module module.Module
	mu     sync.Mutex
	docs   []domain.SearchDocument
	err    error
	calls  int
	sinces []*time.Time
}

func (m *mockExporter) Module() module.Module { return m.module }

func (m *mockExporter) Export(_ context.Context, _ manifest.Scope, since *time.Time) (domain.ExportResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.sinces = append(m.sinces, since)
	if m.err != nil {
		return domain.ExportResult{}, m.err
	}
	return domain.ExportResult{Documents: append([]domain.SearchDocument(nil), m.docs...)}, nil
}

func (m *mockExporter) set(docs []domain.SearchDocument, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = docs
	m.err = err
}

// mockProvider embeds deterministically and persists through the real vector index.
type mockProvider struct {
	mu       sync.Mutex
	embedErr error
}

func vectorFor(doc *domain.SearchDocument) []float32 {
	return []float32{float32(len(doc.Title) + 1), 1}
}

func (m *mockProvider) EmbedDocuments(_ context.Context, docs []domain.SearchDocument) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	out := make([][]float32, len(docs))
	for i := range docs {
		out[i] = vectorFor(&docs[i])
	}
	return out, nil
}

func (m *mockProvider) BuildIndex(ctx context.Context, docs []domain.SearchDocument) (*vectorindex.Index, error) {
	vecs, err := m.EmbedDocuments(ctx, docs)
	if err != nil {
		return nil, err
	}
	ix := vectorindex.New(0)
	for i := range docs {
		if err := ix.Add(docs[i], vecs[i]); err != nil {
			return nil, err
		}
	}
	return ix, nil
}

func (m *mockProvider) SaveIndex(ix *vectorindex.Index, path string) error { return ix.Save(path) }

func (m *mockProvider) LoadIndex(path string) (*vectorindex.Index, error) { return vectorindex.Open(path) }

type mockManifests struct {
	mu      sync.Mutex
	runs    map[manifest.Scope][]manifest.Manifest
	live    map[manifest.Scope]uint64
	swapErr error
}

func newMockManifests() *mockManifests {
	return &mockManifests{runs: map[manifest.Scope][]manifest.Manifest{}, live: map[manifest.Scope]uint64{}}
}

func (m *mockManifests) Append(in manifest.Manifest) (manifest.Manifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in.Generation = uint64(len(m.runs[in.Scope]) + 1)
	m.runs[in.Scope] = append(m.runs[in.Scope], in)
	return in, nil
}

func (m *mockManifests) Swap(in manifest.Manifest) (manifest.Manifest, error) {
	if m.swapErr != nil {
		return manifest.Manifest{}, m.swapErr
	}
	out, _ := m.Append(in)
	m.mu.Lock()
	m.live[in.Scope] = out.Generation
	m.mu.Unlock()
	return out, nil
}

func (m *mockManifests) Live(scope manifest.Scope) (manifest.Manifest, error) {
	m.mu.Lock()
	gen, ok := m.live[scope]
	m.mu.Unlock()
	if !ok {
		return manifest.Manifest{}, domain.ErrNotFound
	}
	return m.Get(scope, gen)
}

func (m *mockManifests) Get(scope manifest.Scope, gen uint64) (manifest.Manifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := m.runs[scope]
	if gen == 0 || int(gen) > len(runs) {
		return manifest.Manifest{}, domain.ErrNotFound
	}
	return runs[gen-1], nil
}

func (m *mockManifests) List(scope manifest.Scope, limit int) ([]manifest.Manifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []manifest.Manifest
	runs := m.runs[scope]
	for i := len(runs) - 1; i >= 0; i-- {
		out = append(out, runs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockManifests) Scopes() ([]manifest.Scope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []manifest.Scope
	for s := range m.live {
		out = append(out, s)
	}
	return out, nil
}

type mockLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMockLocks() *mockLocks { return &mockLocks{held: map[string]bool{}} }

func (m *mockLocks) Acquire(_ context.Context, name string) (func(context.Context) error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[name] {
		return nil, domain.ErrRebuildInProgress
	}
	m.held[name] = true
	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, name)
		return nil
	}, nil
}

type mockTokens struct {
	mu   sync.Mutex
	refs map[string]manifest.Ref
}

func (m *mockTokens) Lookup(_ context.Context, token string) (manifest.Ref, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.refs[token]
	return ref, ok, nil
}

func (m *mockTokens) Remember(_ context.Context, token string, ref manifest.Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[token] = ref
	return nil
}

type mockCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (m *mockCache) Prefix() string                     { return "search:" }
func (m *mockCache) TenantPrefix(tenantID int64) string { return fmt.Sprintf("search:%d:", tenantID) }

func (m *mockCache) InvalidatePrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, prefix)
	return 1, nil
}

// --- Fixture ---

type fixture struct {
	svc       *Service
	tickets   *mockExporter
	assets    *mockExporter
	kb        *mockExporter
	provider  *mockProvider
	manifests *mockManifests
	locks     *mockLocks
	tokens    *mockTokens
	cache     *mockCache
	dir       string
	clock     time.Time
}

func tenant(id int64) *int64 { return &id }

func ts(t time.Time) *time.Time { return &t }

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		tickets: &mockExporter{module: module.Tickets, docs: []domain.SearchDocument{
			{ID: "tickets:t1", Module: module.Tickets, Title: "Ticket T001", BodyText: "AC not cooling", TenantID: tenant(1), Timestamp: ts(baseTime)},
			{ID: "tickets:t2", Module: module.Tickets, Title: "Ticket T002", BodyText: "Door", TenantID: tenant(2), Timestamp: ts(baseTime)},
		}},
		assets: &mockExporter{module: module.Assets, docs: []domain.SearchDocument{
			{ID: "assets:a1", Module: module.Assets, Title: "Rooftop AC Unit", TenantID: tenant(1)},
		}},
		kb: &mockExporter{module: module.KnowledgeBase, docs: []domain.SearchDocument{
			{ID: "knowledge_base:k1", Module: module.KnowledgeBase, Title: "Chiller reset guide"},
		}},
		provider:  &mockProvider{},
		manifests: newMockManifests(),
		locks:     newMockLocks(),
		tokens:    &mockTokens{refs: map[string]manifest.Ref{}},
		cache:     &mockCache{},
		dir:       t.TempDir(),
		clock:     baseTime.Add(time.Hour),
	}
	opts.DataDir = f.dir
	f.svc = New(Deps{
		Exporters: []Exporter{f.tickets, f.assets, f.kb},
		Provider:  f.provider,
		Manifests: f.manifests,
		Locks:     f.locks,
		Tokens:    f.tokens,
		Cache:     f.cache,
	}, opts, zap.NewNop())
	f.svc.now = func() time.Time { return f.clock }
	t.Cleanup(f.svc.Close)
	return f
}

func artifacts(t *testing.T, dir string) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "*.db"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return files
}

// --- Full rebuild ---

func TestRebuild_SwapsInNewGeneration(t *testing.T) {
	f := newFixture(t, Options{})

	m, err := f.svc.Rebuild(context.Background(), manifest.Global, "")
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if m.State != manifest.StateLive || m.Kind != manifest.KindFull || m.Generation != 1 {
		t.Errorf("unexpected manifest: %+v", m)
	}
	if m.ModuleCounts[module.Tickets] != 2 || m.ModuleCounts[module.Assets] != 1 || m.ModuleCounts[module.KnowledgeBase] != 1 {
		t.Errorf("unexpected counts: %v", m.ModuleCounts)
	}
	if !m.Watermarks[module.Tickets].Equal(f.clock) {
		t.Errorf("watermark = %v, want collection start %v", m.Watermarks[module.Tickets], f.clock)
	}
	if _, err := os.Stat(m.ArtifactPath); err != nil {
		t.Errorf("artifact missing: %v", err)
	}

	live, err := f.svc.Live(manifest.Global)
	if err != nil || live.Generation != 1 {
		t.Errorf("Live = %+v, %v", live, err)
	}

	hits, err := f.svc.Similar(1, []float32{12, 1}, 10, func(d *domain.SearchDocument) bool { return d.VisibleTo(1) })
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if len(hits) != 3 {
		t.Errorf("tenant 1 sees its ticket, its asset and the article; got %d hits", len(hits))
	}

	if len(f.cache.invalidated) != 1 || f.cache.invalidated[0] != "search:" {
		t.Errorf("global rebuild must invalidate every cached result, got %v", f.cache.invalidated)
	}

	for _, st := range f.svc.Status() {
		if st.State != manifest.StateIdle || st.LastState != manifest.StateLive {
			t.Errorf("slot must return to idle after going live: %+v", st)
		}
	}
}

func TestRebuild_TenantScopeInvalidatesOnlyThatTenant(t *testing.T) {
	f := newFixture(t, Options{})
	if _, err := f.svc.Rebuild(context.Background(), manifest.TenantScope(1), ""); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if len(f.cache.invalidated) != 1 || f.cache.invalidated[0] != "search:1:" {
		t.Errorf("unexpected invalidation: %v", f.cache.invalidated)
	}
}

func TestRebuild_UnchangedDataGivesIdenticalCounts(t *testing.T) {
	f := newFixture(t, Options{})
	first, err := f.svc.Rebuild(context.Background(), manifest.Global, "")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.svc.Rebuild(context.Background(), manifest.Global, "")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.Generation != first.Generation+1 {
		t.Errorf("generation %d -> %d", first.Generation, second.Generation)
	}
	for mod, n := range first.ModuleCounts {
		if second.ModuleCounts[mod] != n {
			t.Errorf("%s: %d vs %d", mod, n, second.ModuleCounts[mod])
		}
	}
	keep := func(d *domain.SearchDocument) bool { return d.VisibleTo(1) }
	a, _ := f.svc.Similar(1, []float32{12, 1}, 10, keep)
	if len(a) != 3 {
		t.Fatalf("hits = %d", len(a))
	}
}

func TestRebuild_TokenReplaysPreviousRun(t *testing.T) {
	f := newFixture(t, Options{})
	first, err := f.svc.Rebuild(context.Background(), manifest.Global, "full:all:1700000000")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.svc.Rebuild(context.Background(), manifest.Global, "full:all:1700000000")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.Generation != first.Generation || second.RunID != first.RunID {
		t.Errorf("replay must return the original manifest: %+v", second)
	}
	if f.tickets.calls != 1 {
		t.Errorf("replay must not export again, calls=%d", f.tickets.calls)
	}
}

func TestRebuild_EmbeddingFailureKeepsPriorGeneration(t *testing.T) {
	f := newFixture(t, Options{})
	if _, err := f.svc.Rebuild(context.Background(), manifest.Global, ""); err != nil {
		t.Fatalf("first: %v", err)
	}

	before := testutil.ToFloat64(metrics.IndexFailuresTotal.WithLabelValues("full", "embedding"))
	f.provider.embedErr = fmt.Errorf("quota: %w", domain.ErrEmbeddingProviderError)
	failed, err := f.svc.Rebuild(context.Background(), manifest.Global, "")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
	if failed.State != manifest.StateFailed || failed.Error == "" {
		t.Errorf("failed run must be recorded: %+v", failed)
	}
	if got := testutil.ToFloat64(metrics.IndexFailuresTotal.WithLabelValues("full", "embedding")); got != before+1 {
		t.Errorf("failure stage not counted: %v -> %v", before, got)
	}

	live, err := f.svc.Live(manifest.Global)
	if err != nil || live.Generation != 1 {
		t.Errorf("prior manifest must stay live, got %+v, %v", live, err)
	}
	if _, err := f.svc.Similar(1, []float32{1, 1}, 5, nil); err != nil {
		t.Errorf("prior index must keep serving: %v", err)
	}
	if n := len(artifacts(t, f.dir)); n != 1 {
		t.Errorf("failed run must not leave an artifact, found %d files", n)
	}

	st := f.svc.Status()
	if len(st) != 1 || st[0].State != manifest.StateIdle || st[0].LastState != manifest.StateFailed || st[0].LastError == "" {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestRebuild_ExportFailureAbortsBeforeEmbedding(t *testing.T) {
	f := newFixture(t, Options{})
	f.assets.set(nil, fmt.Errorf("source down: %w", domain.ErrAdapterFailure))

	_, err := f.svc.Rebuild(context.Background(), manifest.Global, "")
	if !errors.Is(err, domain.ErrAdapterFailure) {
		t.Fatalf("expected ErrAdapterFailure, got %v", err)
	}
	if _, err := f.svc.Live(manifest.Global); !errors.Is(err, domain.ErrIndexNotReady) {
		t.Errorf("nothing may go live, got %v", err)
	}
}

func TestRebuild_SwapFailureRemovesArtifact(t *testing.T) {
	f := newFixture(t, Options{})
	f.manifests.swapErr = fmt.Errorf("disk full: %w", domain.ErrPersistenceFailure)

	_, err := f.svc.Rebuild(context.Background(), manifest.Global, "")
	if !errors.Is(err, domain.ErrPersistenceFailure) {
		t.Fatalf("expected ErrPersistenceFailure, got %v", err)
	}
	if n := len(artifacts(t, f.dir)); n != 0 {
		t.Errorf("unswapped artifact left behind: %d files", n)
	}
	if f.svc.HasLiveIndex() {
		t.Error("no index may be served")
	}
}

func TestRebuild_ExclusivePerScope(t *testing.T) {
	f := newFixture(t, Options{})
	release, err := f.locks.Acquire(context.Background(), lockName(manifest.Global, ""))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release(context.Background())

	if _, err := f.svc.Rebuild(context.Background(), manifest.Global, ""); !errors.Is(err, domain.ErrRebuildInProgress) {
		t.Fatalf("expected ErrRebuildInProgress, got %v", err)
	}
	if f.tickets.calls != 0 {
		t.Error("a blocked rebuild must not export")
	}
	if _, err := f.svc.Rebuild(context.Background(), manifest.TenantScope(1), ""); err != nil {
		t.Errorf("other scopes are independent: %v", err)
	}
}

func TestRebuild_CapsDocumentsPerModule(t *testing.T) {
	f := newFixture(t, Options{MaxDocsPerModule: 1})
	m, err := f.svc.Rebuild(context.Background(), manifest.Global, "")
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if m.ModuleCounts[module.Tickets] != 1 {
		t.Errorf("tickets = %d, want 1", m.ModuleCounts[module.Tickets])
	}
	if len(m.Truncated) != 1 || m.Truncated[0] != module.Tickets {
		t.Errorf("truncated = %v", m.Truncated)
	}
}

func TestRebuild_PrunesOldArtifacts(t *testing.T) {
	f := newFixture(t, Options{KeepArtifacts: 2})
	var last manifest.Manifest
	for i := 0; i < 4; i++ {
		var err error
		if last, err = f.svc.Rebuild(context.Background(), manifest.Global, ""); err != nil {
			t.Fatalf("Rebuild %d: %v", i, err)
		}
	}
	files := artifacts(t, f.dir)
	if len(files) != 2 {
		t.Fatalf("expected 2 artifacts, got %v", files)
	}
	found := false
	for _, p := range files {
		if filepath.Clean(p) == filepath.Clean(last.ArtifactPath) {
			found = true
		}
	}
	if !found {
		t.Error("live artifact was pruned")
	}
}

// --- Incremental update ---

func TestUpdate_MergesDeltaIntoLiveGeneration(t *testing.T) {
	f := newFixture(t, Options{})
	full, err := f.svc.Rebuild(context.Background(), manifest.Global, "")
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	f.clock = f.clock.Add(15 * time.Minute)
	f.tickets.set([]domain.SearchDocument{
		{ID: "tickets:t3", Module: module.Tickets, Title: "Ticket T003", TenantID: tenant(1), Timestamp: ts(f.clock)},
	}, nil)

	m, err := f.svc.Update(context.Background(), manifest.Global, module.Tickets, "incremental:tickets:1")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if m.Kind != manifest.KindIncremental || m.Module != module.Tickets || m.Generation != full.Generation+1 {
		t.Errorf("unexpected manifest: %+v", m)
	}
	if m.ArtifactPath != full.ArtifactPath {
		t.Error("an update merges into the live artifact")
	}
	if m.ModuleCounts[module.Tickets] != 3 {
		t.Errorf("tickets = %d, want 3", m.ModuleCounts[module.Tickets])
	}
	if !m.Watermarks[module.Tickets].Equal(f.clock) || !m.Watermarks[module.Assets].Equal(full.Watermarks[module.Assets]) {
		t.Errorf("unexpected watermarks: %v", m.Watermarks)
	}

	sinces := f.tickets.sinces
	if last := sinces[len(sinces)-1]; last == nil || !last.Equal(full.Watermarks[module.Tickets]) {
		t.Errorf("delta must be exported since the previous watermark, got %v", last)
	}

	ix, ok := f.svc.liveIndex(manifest.Global)
	if !ok || !ix.Contains("tickets:t3") {
		t.Error("delta not visible to readers")
	}
	if len(f.cache.invalidated) != 1 {
		t.Error("incremental updates must not invalidate the result cache")
	}
}

func TestUpdate_WritesThroughToArtifact(t *testing.T) {
	f := newFixture(t, Options{})
	full, err := f.svc.Rebuild(context.Background(), manifest.Global, "")
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	f.tickets.set([]domain.SearchDocument{
		{ID: "tickets:t3", Module: module.Tickets, Title: "Ticket T003", TenantID: tenant(1)},
	}, nil)
	if _, err := f.svc.Update(context.Background(), manifest.Global, module.Tickets, ""); err != nil {
		t.Fatalf("Update: %v", err)
	}

	f.svc.Close()
	reopened, err := vectorindex.Open(full.ArtifactPath)
	if err != nil {
		t.Fatalf("reopen artifact: %v", err)
	}
	defer reopened.Close()
	if !reopened.Contains("tickets:t3") || reopened.Len() != 5 {
		t.Errorf("merged document missing from the artifact file, len %d", reopened.Len())
	}
}

func TestUpdate_RejectsKnowledgeBase(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.Update(context.Background(), manifest.Global, module.KnowledgeBase, "")
	if !errors.Is(err, domain.ErrUnknownModule) {
		t.Errorf("expected ErrUnknownModule, got %v", err)
	}
}

func TestUpdate_NeedsLiveIndex(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.Update(context.Background(), manifest.Global, module.Tickets, "")
	if !errors.Is(err, domain.ErrIndexNotReady) {
		t.Errorf("expected ErrIndexNotReady, got %v", err)
	}
}

func TestUpdate_ModulesAreIndependent(t *testing.T) {
	f := newFixture(t, Options{})
	if _, err := f.svc.Rebuild(context.Background(), manifest.Global, ""); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	f.tickets.set(nil, fmt.Errorf("timeout: %w", domain.ErrAdapterFailure))

	var wg sync.WaitGroup
	errs := make(map[module.Module]error)
	var mu sync.Mutex
	for _, m := range []module.Module{module.Tickets, module.Assets} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Update(context.Background(), manifest.Global, m, "")
			mu.Lock()
			errs[m] = err
			mu.Unlock()
		}()
	}
	wg.Wait()

	if !errors.Is(errs[module.Tickets], domain.ErrAdapterFailure) {
		t.Errorf("tickets: expected ErrAdapterFailure, got %v", errs[module.Tickets])
	}
	if errs[module.Assets] != nil {
		t.Errorf("assets must not be blocked by tickets: %v", errs[module.Assets])
	}
}

func TestUpdate_SupersededByRebuild(t *testing.T) {
	f := newFixture(t, Options{})
	if _, err := f.svc.Rebuild(context.Background(), manifest.Global, ""); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	base, _ := f.svc.Live(manifest.Global)

	// A rebuild lands between the update's export and its merge.
	if _, err := f.svc.Rebuild(context.Background(), manifest.Global, ""); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	r, err := f.svc.states.begin(manifest.Global, manifest.KindIncremental, module.Tickets, "run")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	next := manifest.Manifest{Scope: manifest.Global, Kind: manifest.KindIncremental, Module: module.Tickets, ArtifactPath: base.ArtifactPath}
	_, err = f.svc.update(context.Background(), r, f.tickets, base, next)
	if !errors.Is(err, errSuperseded) {
		t.Errorf("expected errSuperseded, got %v", err)
	}
}

// --- Startup ---

func TestLoad_RestoresLiveIndexes(t *testing.T) {
	f := newFixture(t, Options{})
	if _, err := f.svc.Rebuild(context.Background(), manifest.Global, ""); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	f.svc.Close()

	restarted := New(Deps{Provider: f.provider, Manifests: f.manifests, Locks: f.locks}, Options{DataDir: f.dir}, zap.NewNop())
	defer restarted.Close()
	if err := restarted.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	hits, err := restarted.Similar(1, []float32{1, 1}, 10, nil)
	if err != nil || len(hits) != 4 {
		t.Errorf("restored index: %d hits, err %v", len(hits), err)
	}
}

func TestSimilar_PrefersTenantGeneration(t *testing.T) {
	f := newFixture(t, Options{})
	if _, err := f.svc.Similar(1, []float32{1, 1}, 5, nil); !errors.Is(err, domain.ErrIndexNotReady) {
		t.Fatalf("expected ErrIndexNotReady, got %v", err)
	}
	if _, err := f.svc.Rebuild(context.Background(), manifest.Global, ""); err != nil {
		t.Fatalf("global: %v", err)
	}
	f.tickets.set(f.tickets.docs[:1], nil)
	f.assets.set(nil, nil)
	f.kb.set(nil, nil)
	if _, err := f.svc.Rebuild(context.Background(), manifest.TenantScope(1), ""); err != nil {
		t.Fatalf("tenant: %v", err)
	}

	own, _ := f.svc.Similar(1, []float32{1, 1}, 10, nil)
	if len(own) != 1 {
		t.Errorf("tenant 1 must read its own generation, got %d hits", len(own))
	}
	other, _ := f.svc.Similar(2, []float32{1, 1}, 10, nil)
	if len(other) != 4 {
		t.Errorf("tenant 2 must fall back to global, got %d hits", len(other))
	}
}
