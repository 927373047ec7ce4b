// Package vectorindex is the similarity index built by the index builder:
// a flat cosine index held in memory and persisted as one bbolt file per generation.
package vectorindex

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
)

// ErrDimensionMismatch is returned when a vector's length differs from the index dimensionality.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Hit is one similarity search result.
type Hit struct {
	Document   domain.SearchDocument
	Similarity float64
}

// Index is safe for many concurrent readers and serialized writers.
type Index struct {
	mu   sync.RWMutex
	dims int
	docs []domain.SearchDocument
	vecs [][]float32 // unit length
	pos  map[string]int

	// db is set for indexes opened from disk; Upsert writes through to it.
	db   *bolt.DB
	path string
}

// New creates an empty in-memory index. dims 0 adopts the length of the first vector added.
func New(dims int) *Index {
	return &Index{dims: dims, pos: make(map[string]int)}
}

// Add inserts or replaces a document in memory only.
func (ix *Index) Add(doc domain.SearchDocument, vec []float32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.put(doc, vec)
}

// Upsert inserts or replaces documents. For an index opened from disk the batch is written to
// the artifact file in one transaction before it becomes visible to readers.
func (ix *Index) Upsert(docs []domain.SearchDocument, vecs [][]float32) error {
	if len(docs) != len(vecs) {
		return fmt.Errorf("upsert: %d documents but %d vectors", len(docs), len(vecs))
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, v := range vecs {
		if err := ix.checkDims(v); err != nil {
			return err
		}
	}

	if ix.db != nil {
		err := ix.db.Update(func(tx *bolt.Tx) error {
			return writeEntries(tx, docs, vecs)
		})
		if err != nil {
			return fmt.Errorf("persist upsert to %s: %w", ix.path, err)
		}
	}

	for i := range docs {
		if err := ix.put(docs[i], vecs[i]); err != nil {
			return err
		}
	}
	return nil
}

// Search returns the k documents most similar to query that pass keep, best first.
// Ties keep insertion order.
func (ix *Index) Search(query []float32, k int, keep func(*domain.SearchDocument) bool) []Hit {
	if k <= 0 || len(query) == 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(query) != ix.dims {
		return nil
	}
	q := normalize(query)

	hits := make([]Hit, 0, k)
	for i := range ix.docs {
		if keep != nil && !keep(&ix.docs[i]) {
			continue
		}
		hits = append(hits, Hit{Document: ix.docs[i], Similarity: dot(q, ix.vecs[i])})
	}

	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Similarity > hits[b].Similarity })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Len returns the number of documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Dims returns the vector dimensionality, 0 while empty.
func (ix *Index) Dims() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dims
}

// Counts returns documents per module.
func (ix *Index) Counts() map[module.Module]int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make(map[module.Module]int)
	for i := range ix.docs {
		out[ix.docs[i].Module]++
	}
	return out
}

// Contains reports whether a document id is present.
func (ix *Index) Contains(id string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.pos[id]
	return ok
}

// Path returns the artifact file backing the index, empty for in-memory indexes.
func (ix *Index) Path() string { return ix.path }

// Close releases the artifact file handle.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.db == nil {
		return nil
	}
	err := ix.db.Close()
	ix.db = nil
	if err != nil {
		return fmt.Errorf("close index %s: %w", ix.path, err)
	}
	return nil
}

func (ix *Index) checkDims(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty vector: %w", ErrDimensionMismatch)
	}
	if ix.dims != 0 && len(vec) != ix.dims {
		return fmt.Errorf("got %d, want %d: %w", len(vec), ix.dims, ErrDimensionMismatch)
	}
	return nil
}

// put requires ix.mu held for writing.
func (ix *Index) put(doc domain.SearchDocument, vec []float32) error {
	if err := ix.checkDims(vec); err != nil {
		return fmt.Errorf("document %s: %w", doc.ID, err)
	}
	if ix.dims == 0 {
		ix.dims = len(vec)
	}
	n := normalize(vec)
	if i, ok := ix.pos[doc.ID]; ok {
		ix.docs[i] = doc
		ix.vecs[i] = n
		return nil
	}
	ix.pos[doc.ID] = len(ix.docs)
	ix.docs = append(ix.docs, doc)
	ix.vecs = append(ix.vecs, n)
	return nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, f := range v {
		out[i] = float32(float64(f) * inv)
	}
	return out
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
