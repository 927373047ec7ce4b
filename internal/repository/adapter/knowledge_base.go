package adapter

import (
	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
	"github.com/kailas-cloud/unisearch/internal/repository/source"
)

// NewKnowledgeBase creates the knowledge base adapter. Articles are shared by all tenants.
func NewKnowledgeBase(src sourceReader, maxExport int) *Adapter {
	return newAdapter(src, mapping{
		module:       module.KnowledgeBase,
		searchFields: []string{"title", "content", "category", "tags"},
		filterKeys:   map[string]bool{"status": true, "date": true},
		toDocument: func(rec source.Record) domain.SearchDocument {
			f := rec.Fields
			return domain.SearchDocument{
				Title:    f["title"],
				BodyText: f["content"],
				Metadata: pick(f, "category", "tags", "status", "author"),
				URL:      "/kb/" + rec.EntityID,
			}
		},
	}, maxExport)
}
