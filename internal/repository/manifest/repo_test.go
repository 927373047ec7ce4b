package manifest

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kailas-cloud/unisearch/internal/domain"
	dommanifest "github.com/kailas-cloud/unisearch/internal/domain/manifest"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
)

func openTestRepo(t *testing.T) *Repo {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "nested", "manifests.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func liveManifest(scope dommanifest.Scope, tickets int) dommanifest.Manifest {
	return dommanifest.Manifest{
		RunID:        "run",
		Scope:        scope,
		Kind:         dommanifest.KindFull,
		State:        dommanifest.StateLive,
		ModuleCounts: map[module.Module]int{module.Tickets: tickets},
		Watermarks:   map[module.Module]time.Time{module.Tickets: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		ArtifactPath: "/data/global-1.db",
		BuiltAt:      time.Now().UTC(),
	}
}

func TestRepo_LiveMissing(t *testing.T) {
	r := openTestRepo(t)
	_, err := r.Live(dommanifest.Global)
	if !errors.Is(err, domain.ErrNotFound) || !IsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRepo_SwapAndLive(t *testing.T) {
	r := openTestRepo(t)

	first, err := r.Swap(liveManifest(dommanifest.Global, 3))
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if first.Generation != 1 {
		t.Errorf("first generation = %d", first.Generation)
	}
	second, err := r.Swap(liveManifest(dommanifest.Global, 5))
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if second.Generation != 2 {
		t.Errorf("second generation = %d", second.Generation)
	}

	live, err := r.Live(dommanifest.Global)
	if err != nil {
		t.Fatalf("Live: %v", err)
	}
	if live.Generation != 2 || live.ModuleCounts[module.Tickets] != 5 {
		t.Errorf("unexpected live manifest: %+v", live)
	}
	if !live.Watermarks[module.Tickets].Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("watermark lost: %v", live.Watermarks)
	}

	old, err := r.Get(dommanifest.Global, 1)
	if err != nil || old.ModuleCounts[module.Tickets] != 3 {
		t.Errorf("old generation must stay readable: %+v, %v", old, err)
	}
}

func TestRepo_AppendFailedKeepsLive(t *testing.T) {
	r := openTestRepo(t)
	if _, err := r.Swap(liveManifest(dommanifest.Global, 3)); err != nil {
		t.Fatalf("Swap: %v", err)
	}

	failed := liveManifest(dommanifest.Global, 0)
	failed.State = dommanifest.StateFailed
	failed.Error = "embedding provider down"
	rec, err := r.Append(failed)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if rec.Generation != 2 {
		t.Errorf("failed run generation = %d", rec.Generation)
	}

	live, err := r.Live(dommanifest.Global)
	if err != nil || live.Generation != 1 {
		t.Errorf("prior manifest must stay live, got %+v, %v", live, err)
	}
}

func TestRepo_SwapRejectsNonLive(t *testing.T) {
	r := openTestRepo(t)
	m := liveManifest(dommanifest.Global, 1)
	m.State = dommanifest.StateFailed
	if _, err := r.Swap(m); err == nil {
		t.Fatal("expected error")
	}
}

func TestRepo_ListNewestFirst(t *testing.T) {
	r := openTestRepo(t)
	for i := 1; i <= 4; i++ {
		if _, err := r.Swap(liveManifest(dommanifest.Global, i)); err != nil {
			t.Fatalf("Swap: %v", err)
		}
	}

	got, err := r.List(dommanifest.Global, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].Generation != 4 || got[1].Generation != 3 {
		t.Errorf("unexpected order: %+v", got)
	}

	all, err := r.List(dommanifest.Global, 0)
	if err != nil || len(all) != 4 {
		t.Errorf("expected 4 manifests, got %d (%v)", len(all), err)
	}

	none, err := r.List(dommanifest.TenantScope(9), 0)
	if err != nil || len(none) != 0 {
		t.Errorf("unknown scope: %v, %v", none, err)
	}
}

func TestRepo_ScopesAreIndependent(t *testing.T) {
	r := openTestRepo(t)
	if _, err := r.Swap(liveManifest(dommanifest.Global, 1)); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	tm, err := r.Swap(liveManifest(dommanifest.TenantScope(7), 2))
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if tm.Generation != 1 {
		t.Errorf("generations are per scope, got %d", tm.Generation)
	}

	failed := liveManifest(dommanifest.TenantScope(8), 0)
	failed.State = dommanifest.StateFailed
	if _, err := r.Append(failed); err != nil {
		t.Fatalf("Append: %v", err)
	}

	scopes, err := r.Scopes()
	if err != nil {
		t.Fatalf("Scopes: %v", err)
	}
	if len(scopes) != 2 {
		t.Errorf("expected 2 live scopes, got %v", scopes)
	}
}

func TestRepo_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifests.db")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := r.Swap(liveManifest(dommanifest.Global, 9)); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer r.Close()
	live, err := r.Live(dommanifest.Global)
	if err != nil || live.ModuleCounts[module.Tickets] != 9 {
		t.Errorf("live manifest lost across reopen: %+v, %v", live, err)
	}
}
