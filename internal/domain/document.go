package domain

import (
	"time"

	"github.com/kailas-cloud/unisearch/internal/domain/module"
)

// SearchDocument is the canonical unit that is indexed and returned.
// Documents are produced by module adapters and never mutated by the query path.
type SearchDocument struct {
	ID        string            `json:"id"`
	Module    module.Module     `json:"module"`
	Title     string            `json:"title"`
	BodyText  string            `json:"body_text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	TenantID  *int64            `json:"tenant_id,omitempty"`
	Timestamp *time.Time        `json:"timestamp,omitempty"`
	URL       string            `json:"url"`
	// Score is the module-level prior weight seeded by the adapter.
	Score float64 `json:"score"`
}

// DocumentID builds the stable external identifier for an entity.
func DocumentID(m module.Module, entityID string) string {
	return string(m) + ":" + entityID
}

// VisibleTo reports whether a tenant may see this document.
// Knowledge-base documents carry no tenant and are visible to everyone.
func (d *SearchDocument) VisibleTo(tenantID int64) bool {
	if d.TenantID == nil {
		return d.Module == module.KnowledgeBase
	}
	return *d.TenantID == tenantID
}

// Text returns title and body joined, as used for keyword matching and embedding.
func (d *SearchDocument) Text() string {
	if d.BodyText == "" {
		return d.Title
	}
	return d.Title + " " + d.BodyText
}

// ExportResult is one module export pass used by index builds.
type ExportResult struct {
	Documents []SearchDocument
	// Truncated is set when the per-module cap cut the corpus short.
	Truncated bool
}
