package adapter

import (
	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
	"github.com/kailas-cloud/unisearch/internal/repository/source"
)

// NewAssets creates the assets adapter. Assets have no priority.
func NewAssets(src sourceReader, maxExport int) *Adapter {
	return newAdapter(src, mapping{
		module:       module.Assets,
		searchFields: []string{"name", "asset_code", "description", "location", "manufacturer", "model"},
		filterKeys:   map[string]bool{"status": true, "date": true},
		toDocument: func(rec source.Record) domain.SearchDocument {
			f := rec.Fields
			code := ""
			if f["asset_code"] != "" {
				code = "unit code " + f["asset_code"]
			}
			return domain.SearchDocument{
				Title:    f["name"],
				BodyText: join(" ", code, f["description"], f["location"]),
				Metadata: pick(f, "asset_code", "status", "location", "category", "manufacturer", "model"),
				URL:      "/assets/" + rec.EntityID,
			}
		},
	}, maxExport)
}
