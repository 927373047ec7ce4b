package adapter

import (
	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
	"github.com/kailas-cloud/unisearch/internal/repository/source"
)

// NewPeople creates the people adapter.
func NewPeople(src sourceReader, maxExport int) *Adapter {
	return newAdapter(src, mapping{
		module:       module.People,
		searchFields: []string{"first_name", "last_name", "email", "job_title", "department"},
		filterKeys:   map[string]bool{"status": true},
		toDocument: func(rec source.Record) domain.SearchDocument {
			f := rec.Fields
			return domain.SearchDocument{
				Title:    join(" ", f["first_name"], f["last_name"]),
				BodyText: join(" ", f["job_title"], f["department"], f["email"]),
				Metadata: pick(f, "email", "job_title", "department", "phone", "status"),
				URL:      "/people/" + rec.EntityID,
			}
		},
	}, maxExport)
}
