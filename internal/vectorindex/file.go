package vectorindex

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kailas-cloud/unisearch/internal/domain"
)

var (
	bucketMeta    = []byte("meta")
	bucketDocs    = []byte("docs")
	bucketVectors = []byte("vectors")
	keyDims       = []byte("dims")
)

// openTimeout bounds how long Open waits for the file lock held by another process.
const openTimeout = time.Second

// Save writes the index to path. The file is built under a temporary name and renamed into
// place, so path holds either nothing or a complete artifact.
func (ix *Index) Save(path string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale temp file: %w", err)
	}

	store, err := bolt.Open(tmp, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return fmt.Errorf("open temp index file: %w", err)
	}

	err = store.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		if err := meta.Put(keyDims, []byte(strconv.Itoa(ix.dims))); err != nil {
			return fmt.Errorf("write dims: %w", err)
		}
		return writeEntries(tx, ix.docs, ix.vecs)
	})
	if closeErr := store.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close temp index file: %w", closeErr)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("publish index file: %w", err)
	}
	return nil
}

// Open loads an artifact into memory and keeps the file open so Upsert can write through.
func Open(path string) (*Index, error) {
	// bolt.Open would create a missing file.
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat index file: %w", err)
	}
	store, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("open index file %s: %w", path, err)
	}

	ix := New(0)
	err = store.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		docs := tx.Bucket(bucketDocs)
		vecs := tx.Bucket(bucketVectors)
		if meta == nil || docs == nil || vecs == nil {
			return fmt.Errorf("index file %s is missing buckets", path)
		}
		if raw := meta.Get(keyDims); raw != nil {
			dims, err := strconv.Atoi(string(raw))
			if err != nil {
				return fmt.Errorf("parse dims: %w", err)
			}
			ix.dims = dims
		}

		return docs.ForEach(func(k, v []byte) error {
			var doc domain.SearchDocument
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("decode document %s: %w", k, err)
			}
			vec, err := domain.DecodeVector(vecs.Get(k))
			if err != nil {
				return fmt.Errorf("decode vector %s: %w", k, err)
			}
			return ix.put(doc, vec)
		})
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	ix.db = store
	ix.path = path
	return ix, nil
}

func writeEntries(tx *bolt.Tx, docs []domain.SearchDocument, vecs [][]float32) error {
	db, err := tx.CreateBucketIfNotExists(bucketDocs)
	if err != nil {
		return fmt.Errorf("create docs bucket: %w", err)
	}
	vb, err := tx.CreateBucketIfNotExists(bucketVectors)
	if err != nil {
		return fmt.Errorf("create vectors bucket: %w", err)
	}
	for i := range docs {
		key := []byte(docs[i].ID)
		data, err := json.Marshal(&docs[i])
		if err != nil {
			return fmt.Errorf("encode document %s: %w", docs[i].ID, err)
		}
		if err := db.Put(key, data); err != nil {
			return fmt.Errorf("write document %s: %w", docs[i].ID, err)
		}
		if err := vb.Put(key, domain.EncodeVector(vecs[i])); err != nil {
			return fmt.Errorf("write vector %s: %w", docs[i].ID, err)
		}
	}
	return nil
}
