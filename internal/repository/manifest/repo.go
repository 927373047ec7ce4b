// Package manifest persists index manifests in a bbolt file. Records are append-only; each scope
// keeps a live pointer that is moved in the same transaction that appends the new record.
package manifest

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kailas-cloud/unisearch/internal/domain"
	dommanifest "github.com/kailas-cloud/unisearch/internal/domain/manifest"
)

const (
	scopeBucketPrefix = "scope:"
	runsBucket        = "runs"
	liveKey           = "live"
)

// Repo stores manifests, one bucket per scope.
type Repo struct {
	store *bolt.DB
}

// Open opens (or creates) the manifest file.
func Open(path string) (*Repo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create manifest directory: %w", err)
	}
	store, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open manifest file: %w", err)
	}
	return &Repo{store: store}, nil
}

// Close releases the file.
func (r *Repo) Close() error {
	if err := r.store.Close(); err != nil {
		return fmt.Errorf("close manifest file: %w", err)
	}
	return nil
}

// Append records a run without touching the live pointer (failed runs).
// The stored record gets the next generation number of its scope.
func (r *Repo) Append(m dommanifest.Manifest) (dommanifest.Manifest, error) {
	return r.write(m, false)
}

// Swap appends m and makes it the live manifest of its scope atomically.
func (r *Repo) Swap(m dommanifest.Manifest) (dommanifest.Manifest, error) {
	if m.State != dommanifest.StateLive {
		return dommanifest.Manifest{}, fmt.Errorf("swap manifest in state %s: only live runs can be swapped in", m.State)
	}
	return r.write(m, true)
}

func (r *Repo) write(m dommanifest.Manifest, live bool) (dommanifest.Manifest, error) {
	err := r.store.Update(func(tx *bolt.Tx) error {
		sb, err := tx.CreateBucketIfNotExists(scopeBucket(m.Scope))
		if err != nil {
			return fmt.Errorf("create scope bucket: %w", err)
		}
		runs, err := sb.CreateBucketIfNotExists([]byte(runsBucket))
		if err != nil {
			return fmt.Errorf("create runs bucket: %w", err)
		}
		gen, err := runs.NextSequence()
		if err != nil {
			return fmt.Errorf("next generation: %w", err)
		}
		m.Generation = gen

		data, err := json.Marshal(&m)
		if err != nil {
			return fmt.Errorf("encode manifest: %w", err)
		}
		key := genKey(gen)
		if err := runs.Put(key, data); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
		if live {
			if err := sb.Put([]byte(liveKey), key); err != nil {
				return fmt.Errorf("swap live pointer: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return dommanifest.Manifest{}, fmt.Errorf("%s: %w: %w", m.Scope, err, domain.ErrPersistenceFailure)
	}
	return m, nil
}

// Live returns the live manifest of a scope, or domain.ErrNotFound.
func (r *Repo) Live(scope dommanifest.Scope) (dommanifest.Manifest, error) {
	var m dommanifest.Manifest
	err := r.store.View(func(tx *bolt.Tx) error {
		sb := tx.Bucket(scopeBucket(scope))
		if sb == nil {
			return domain.ErrNotFound
		}
		key := sb.Get([]byte(liveKey))
		if key == nil {
			return domain.ErrNotFound
		}
		return decode(sb.Bucket([]byte(runsBucket)), key, &m)
	})
	if err != nil {
		return dommanifest.Manifest{}, fmt.Errorf("live manifest of %s: %w", scope, err)
	}
	return m, nil
}

// Get returns one generation of a scope.
func (r *Repo) Get(scope dommanifest.Scope, generation uint64) (dommanifest.Manifest, error) {
	var m dommanifest.Manifest
	err := r.store.View(func(tx *bolt.Tx) error {
		sb := tx.Bucket(scopeBucket(scope))
		if sb == nil {
			return domain.ErrNotFound
		}
		return decode(sb.Bucket([]byte(runsBucket)), genKey(generation), &m)
	})
	if err != nil {
		return dommanifest.Manifest{}, fmt.Errorf("manifest %s/%d: %w", scope, generation, err)
	}
	return m, nil
}

// List returns up to limit manifests of a scope, newest first. limit <= 0 returns all.
func (r *Repo) List(scope dommanifest.Scope, limit int) ([]dommanifest.Manifest, error) {
	var out []dommanifest.Manifest
	err := r.store.View(func(tx *bolt.Tx) error {
		sb := tx.Bucket(scopeBucket(scope))
		if sb == nil {
			return nil
		}
		runs := sb.Bucket([]byte(runsBucket))
		if runs == nil {
			return nil
		}
		c := runs.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var m dommanifest.Manifest
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("decode manifest %d: %w", binary.BigEndian.Uint64(k), err)
			}
			out = append(out, m)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list manifests of %s: %w", scope, err)
	}
	return out, nil
}

// Scopes returns every scope that has a live manifest.
func (r *Repo) Scopes() ([]dommanifest.Scope, error) {
	var out []dommanifest.Scope
	err := r.store.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			if b.Get([]byte(liveKey)) == nil {
				return nil
			}
			if scope, ok := scopeFromBucket(name); ok {
				out = append(out, scope)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}
	return out, nil
}

func decode(runs *bolt.Bucket, key []byte, m *dommanifest.Manifest) error {
	if runs == nil {
		return domain.ErrNotFound
	}
	data := runs.Get(key)
	if data == nil {
		return domain.ErrNotFound
	}
	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	return nil
}

func scopeBucket(scope dommanifest.Scope) []byte {
	return []byte(scopeBucketPrefix + string(scope))
}

func scopeFromBucket(name []byte) (dommanifest.Scope, bool) {
	s := string(name)
	if len(s) <= len(scopeBucketPrefix) || s[:len(scopeBucketPrefix)] != scopeBucketPrefix {
		return "", false
	}
	scope, err := dommanifest.ParseScope(s[len(scopeBucketPrefix):])
	if err != nil {
		return "", false
	}
	return scope, true
}

// genKey encodes a generation so byte order matches numeric order.
func genKey(gen uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, gen)
	return b
}

// IsNotFound reports whether err means no manifest exists.
func IsNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }
