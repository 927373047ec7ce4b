package vectorindex

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
)

func tenant(id int64) *int64 { return &id }

func doc(id string, m module.Module, tenantID *int64) domain.SearchDocument {
	return domain.SearchDocument{ID: id, Module: m, Title: id, TenantID: tenantID}
}

func TestSearch_OrdersBySimilarity(t *testing.T) {
	ix := New(0)
	mustAdd(t, ix, doc("tickets:a", module.Tickets, tenant(1)), []float32{1, 0})
	mustAdd(t, ix, doc("tickets:b", module.Tickets, tenant(1)), []float32{0.7, 0.7})
	mustAdd(t, ix, doc("tickets:c", module.Tickets, tenant(1)), []float32{0, 1})

	hits := ix.Search([]float32{1, 0.1}, 2, nil)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Document.ID != "tickets:a" || hits[1].Document.ID != "tickets:b" {
		t.Errorf("unexpected order: %s, %s", hits[0].Document.ID, hits[1].Document.ID)
	}
	if hits[0].Similarity <= hits[1].Similarity {
		t.Errorf("similarities not descending: %v", hits)
	}
}

func TestSearch_AppliesFilter(t *testing.T) {
	ix := New(2)
	mustAdd(t, ix, doc("tickets:mine", module.Tickets, tenant(1)), []float32{1, 0})
	mustAdd(t, ix, doc("tickets:theirs", module.Tickets, tenant(2)), []float32{1, 0})
	mustAdd(t, ix, doc("knowledge_base:kb", module.KnowledgeBase, nil), []float32{1, 0})

	hits := ix.Search([]float32{1, 0}, 10, func(d *domain.SearchDocument) bool { return d.VisibleTo(1) })
	if len(hits) != 2 {
		t.Fatalf("expected 2 visible hits, got %d", len(hits))
	}
	for _, h := range hits {
		if h.Document.ID == "tickets:theirs" {
			t.Error("document of another tenant leaked through the filter")
		}
	}
}

func TestSearch_WrongDimsReturnsNothing(t *testing.T) {
	ix := New(2)
	mustAdd(t, ix, doc("tickets:a", module.Tickets, tenant(1)), []float32{1, 0})
	if hits := ix.Search([]float32{1, 0, 0}, 5, nil); hits != nil {
		t.Errorf("expected no hits, got %v", hits)
	}
}

func TestAdd_DimensionMismatch(t *testing.T) {
	ix := New(2)
	err := ix.Add(doc("tickets:a", module.Tickets, tenant(1)), []float32{1, 0, 0})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestAdd_ReplacesSameID(t *testing.T) {
	ix := New(0)
	mustAdd(t, ix, doc("tickets:a", module.Tickets, tenant(1)), []float32{1, 0})
	updated := doc("tickets:a", module.Tickets, tenant(1))
	updated.Title = "renamed"
	mustAdd(t, ix, updated, []float32{0, 1})

	if ix.Len() != 1 {
		t.Fatalf("expected 1 document, got %d", ix.Len())
	}
	hits := ix.Search([]float32{0, 1}, 1, nil)
	if hits[0].Document.Title != "renamed" || hits[0].Similarity < 0.99 {
		t.Errorf("replacement not applied: %+v", hits[0])
	}
}

func TestSaveOpen_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "global", "gen-1.idx")

	ix := New(0)
	mustAdd(t, ix, doc("tickets:a", module.Tickets, tenant(1)), []float32{1, 0})
	mustAdd(t, ix, doc("knowledge_base:k", module.KnowledgeBase, nil), []float32{0, 1})
	if err := ix.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file must not survive a successful save")
	}

	loaded, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer loaded.Close()

	if loaded.Len() != 2 || loaded.Dims() != 2 {
		t.Fatalf("unexpected loaded index: len=%d dims=%d", loaded.Len(), loaded.Dims())
	}
	counts := loaded.Counts()
	if counts[module.Tickets] != 1 || counts[module.KnowledgeBase] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
	hits := loaded.Search([]float32{0, 1}, 1, nil)
	if hits[0].Document.ID != "knowledge_base:k" || hits[0].Document.TenantID != nil {
		t.Errorf("unexpected hit: %+v", hits[0].Document)
	}
}

func TestUpsert_WritesThroughToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gen-1.idx")
	ix := New(0)
	mustAdd(t, ix, doc("tickets:a", module.Tickets, tenant(1)), []float32{1, 0})
	if err := ix.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	live, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	err = live.Upsert(
		[]domain.SearchDocument{doc("assets:x", module.Assets, tenant(1))},
		[][]float32{{0, 1}},
	)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !live.Contains("assets:x") {
		t.Error("upserted document not visible in memory")
	}
	if err := live.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.Len() != 2 || !reopened.Contains("assets:x") {
		t.Errorf("upsert not persisted: len=%d", reopened.Len())
	}
}

func TestUpsert_RejectsMismatchedBatch(t *testing.T) {
	ix := New(2)
	if err := ix.Upsert([]domain.SearchDocument{doc("tickets:a", module.Tickets, tenant(1))}, nil); err == nil {
		t.Error("expected error for missing vectors")
	}
	err := ix.Upsert(
		[]domain.SearchDocument{doc("tickets:a", module.Tickets, tenant(1))},
		[][]float32{{1, 2, 3}},
	)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if ix.Len() != 0 {
		t.Error("rejected batch must not be applied")
	}
}

func TestOpen_MissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope", "x.idx")); err == nil {
		t.Error("expected error for missing file")
	}
}

func mustAdd(t *testing.T, ix *Index, d domain.SearchDocument, v []float32) {
	t.Helper()
	if err := ix.Add(d, v); err != nil {
		t.Fatalf("Add(%s): %v", d.ID, err)
	}
}

func TestOpen_DoesNotCreateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.idx")
	if _, err := Open(path); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Open must not create the artifact")
	}
}
