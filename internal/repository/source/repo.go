package source

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
)

// globalSegment replaces the tenant segment for tenant-agnostic records.
const globalSegment = "global"

// fetchChunk bounds the number of hashes read per DoMulti round-trip.
const fetchChunk = 500

// store is the consumer interface for source records (ISP).
type store interface {
	Scan(ctx context.Context, pattern string) ([]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
}

// Record is one source-of-truth entity as mirrored by its owning service.
type Record struct {
	Module   module.Module
	TenantID *int64
	EntityID string
	Fields   map[string]string
}

// Repo reads source records stored as hashes at <prefix>src:<module>:<tenant|global>:<id>.
// It never writes: the owning services are authoritative.
type Repo struct {
	store  store
	prefix string
}

// New creates a source record repository.
func New(s store, keyPrefix string) *Repo {
	if keyPrefix == "" {
		keyPrefix = domain.KeyPrefix
	}
	return &Repo{store: s, prefix: keyPrefix + "src:"}
}

// Key builds the hash key of a record. A nil tenant addresses a tenant-agnostic record.
func (r *Repo) Key(m module.Module, tenantID *int64, entityID string) string {
	return r.prefix + string(m) + ":" + tenantSegment(tenantID) + ":" + entityID
}

// List returns every record of a module. For tenant-scoped modules a nil tenantID lists all
// tenants; tenant-agnostic modules ignore tenantID. Records come back sorted by key.
func (r *Repo) List(ctx context.Context, m module.Module, tenantID *int64) ([]Record, error) {
	pattern := r.prefix + string(m) + ":"
	switch {
	case !m.TenantScoped():
		pattern += globalSegment + ":*"
	case tenantID == nil:
		pattern += "*"
	default:
		pattern += tenantSegment(tenantID) + ":*"
	}

	keys, err := r.store.Scan(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("scan %s records: %w", m, err)
	}
	sort.Strings(keys)

	records := make([]Record, 0, len(keys))
	for start := 0; start < len(keys); start += fetchChunk {
		end := min(start+fetchChunk, len(keys))
		chunk := keys[start:end]

		fields, err := r.store.HGetAllMulti(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("read %s records: %w", m, err)
		}
		for i, key := range chunk {
			if len(fields[i]) == 0 {
				continue // deleted between SCAN and HGETALL
			}
			rec, ok := r.parseKey(key)
			if !ok || rec.Module != m {
				continue
			}
			rec.Fields = fields[i]
			records = append(records, rec)
		}
	}
	return records, nil
}

func (r *Repo) parseKey(key string) (Record, bool) {
	rest, ok := strings.CutPrefix(key, r.prefix)
	if !ok {
		return Record{}, false
	}
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) != 3 || parts[2] == "" {
		return Record{}, false
	}
	rec := Record{Module: module.Module(parts[0]), EntityID: parts[2]}
	if parts[1] == globalSegment {
		return rec, !rec.Module.TenantScoped()
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || !rec.Module.TenantScoped() {
		return Record{}, false
	}
	rec.TenantID = &id
	return rec, true
}

func tenantSegment(tenantID *int64) string {
	if tenantID == nil {
		return globalSegment
	}
	return strconv.FormatInt(*tenantID, 10)
}
