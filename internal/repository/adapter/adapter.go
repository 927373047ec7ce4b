// Package adapter holds the module adapters: one per source-of-truth entity type, each
// turning source records into search documents for the query path and for index rebuilds.
package adapter

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/manifest"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
	"github.com/kailas-cloud/unisearch/internal/domain/search/query"
	"github.com/kailas-cloud/unisearch/internal/repository/source"
)

// DefaultMaxExport caps the documents one Export call returns.
const DefaultMaxExport = 10000

// sourceReader is the consumer interface for source records (ISP).
type sourceReader interface {
	List(ctx context.Context, m module.Module, tenantID *int64) ([]source.Record, error)
}

// mapping is the per-module part of an adapter.
type mapping struct {
	module module.Module
	// searchFields are matched against the query text.
	searchFields []string
	// filterKeys lists the structured filters the module understands; others are ignored.
	filterKeys map[string]bool
	toDocument func(rec source.Record) domain.SearchDocument
}

// Adapter searches and exports one module.
type Adapter struct {
	src       sourceReader
	m         mapping
	maxExport int
}

func newAdapter(src sourceReader, m mapping, maxExport int) *Adapter {
	if maxExport <= 0 {
		maxExport = DefaultMaxExport
	}
	return &Adapter{src: src, m: m, maxExport: maxExport}
}

// All returns one adapter per module, in canonical module order.
func All(src sourceReader, maxExport int) []*Adapter {
	return []*Adapter{
		NewTickets(src, maxExport),
		NewWorkOrders(src, maxExport),
		NewAssets(src, maxExport),
		NewPeople(src, maxExport),
		NewKnowledgeBase(src, maxExport),
	}
}

// Module returns the module this adapter serves.
func (a *Adapter) Module() module.Module { return a.m.module }

// Search returns up to limit matching documents for a tenant, most recent first.
// A tenant-scoped module called without a tenant is a caller bug and fails with ErrTenantRequired.
func (a *Adapter) Search(
	ctx context.Context, tenantID int64, text string, limit int, filters query.Filters,
) ([]domain.SearchDocument, error) {
	if a.m.module.TenantScoped() && tenantID <= 0 {
		return nil, fmt.Errorf("search %s: %w", a.m.module, domain.ErrTenantRequired)
	}

	var tenant *int64
	if a.m.module.TenantScoped() {
		tenant = &tenantID
	}
	records, err := a.src.List(ctx, a.m.module, tenant)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w: %w", a.m.module, err, domain.ErrAdapterFailure)
	}

	words := queryWords(text)
	phrase := query.Normalize(text)

	var out []domain.SearchDocument
	for _, rec := range records {
		if a.m.module.TenantScoped() && (rec.TenantID == nil || *rec.TenantID != tenantID) {
			continue
		}
		if !a.matchesText(rec, phrase, words) || !a.matchesFilters(rec, filters) {
			continue
		}
		out = append(out, a.document(rec))
	}

	sortRecent(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Export returns the indexable corpus of the module for a scope. A non-nil since keeps only
// records updated after it; undated records are then skipped since their freshness is unknown.
func (a *Adapter) Export(ctx context.Context, scope manifest.Scope, since *time.Time) (domain.ExportResult, error) {
	var tenant *int64
	if id, ok := scope.TenantID(); ok && a.m.module.TenantScoped() {
		tenant = &id
	}

	records, err := a.src.List(ctx, a.m.module, tenant)
	if err != nil {
		return domain.ExportResult{}, fmt.Errorf("export %s: %w: %w", a.m.module, err, domain.ErrAdapterFailure)
	}

	docs := make([]domain.SearchDocument, 0, len(records))
	for _, rec := range records {
		doc := a.document(rec)
		if since != nil && (doc.Timestamp == nil || !doc.Timestamp.After(*since)) {
			continue
		}
		docs = append(docs, doc)
	}

	sortRecent(docs)
	res := domain.ExportResult{Documents: docs}
	if len(docs) > a.maxExport {
		res.Documents = docs[:a.maxExport]
		res.Truncated = true
	}
	return res, nil
}

func (a *Adapter) document(rec source.Record) domain.SearchDocument {
	doc := a.m.toDocument(rec)
	doc.ID = domain.DocumentID(a.m.module, rec.EntityID)
	doc.Module = a.m.module
	doc.Score = a.m.module.Weight()
	if a.m.module.TenantScoped() {
		doc.TenantID = rec.TenantID
	} else {
		doc.TenantID = nil
	}
	if doc.Timestamp == nil {
		doc.Timestamp = recordTime(rec.Fields)
	}
	return doc
}

// matchesText accepts a record when the whole phrase or any query word occurs in a searchable field.
func (a *Adapter) matchesText(rec source.Record, phrase string, words []string) bool {
	if phrase == "" {
		return true
	}
	var b strings.Builder
	for _, f := range a.m.searchFields {
		if v := rec.Fields[f]; v != "" {
			b.WriteString(strings.ToLower(v))
			b.WriteByte(' ')
		}
	}
	hay := b.String()
	if strings.Contains(hay, phrase) {
		return true
	}
	for _, w := range words {
		if strings.Contains(hay, w) {
			return true
		}
	}
	return false
}

func (a *Adapter) matchesFilters(rec source.Record, f query.Filters) bool {
	if f.Status != "" && a.m.filterKeys["status"] && !strings.EqualFold(rec.Fields["status"], f.Status) {
		return false
	}
	if f.Priority != "" && a.m.filterKeys["priority"] && !strings.EqualFold(rec.Fields["priority"], f.Priority) {
		return false
	}
	if (f.DateFrom != nil || f.DateTo != nil) && a.m.filterKeys["date"] {
		return f.InRange(recordTime(rec.Fields))
	}
	return true
}

// minWordLength drops one-letter noise words from keyword matching.
const minWordLength = 2

func queryWords(text string) []string {
	fields := query.Words(strings.ToLower(text))
	out := fields[:0]
	for _, w := range fields {
		if len(w) >= minWordLength {
			out = append(out, w)
		}
	}
	return out
}

// sortRecent orders newest first; undated documents go last, ties keep source order.
func sortRecent(docs []domain.SearchDocument) {
	sort.SliceStable(docs, func(i, j int) bool {
		ti, tj := docs[i].Timestamp, docs[j].Timestamp
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
}
