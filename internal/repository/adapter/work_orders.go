package adapter

import (
	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
	"github.com/kailas-cloud/unisearch/internal/repository/source"
)

// NewWorkOrders creates the work orders adapter.
func NewWorkOrders(src sourceReader, maxExport int) *Adapter {
	return newAdapter(src, mapping{
		module:       module.WorkOrders,
		searchFields: []string{"wo_number", "title", "description", "work_type"},
		filterKeys:   map[string]bool{"status": true, "priority": true, "date": true},
		toDocument: func(rec source.Record) domain.SearchDocument {
			f := rec.Fields
			title := f["title"]
			if title == "" {
				title = join(" ", "Work Order", f["wo_number"])
			}
			return domain.SearchDocument{
				Title:    title,
				BodyText: f["description"],
				Metadata: pick(f, "wo_number", "status", "priority", "work_type", "asset_id", "scheduled_date"),
				URL:      "/work-orders/" + rec.EntityID,
			}
		},
	}, maxExport)
}
