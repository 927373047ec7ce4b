package adapter

import (
	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
	"github.com/kailas-cloud/unisearch/internal/repository/source"
)

// NewTickets creates the tickets adapter.
func NewTickets(src sourceReader, maxExport int) *Adapter {
	return newAdapter(src, mapping{
		module:       module.Tickets,
		searchFields: []string{"ticket_number", "subject", "description", "category"},
		filterKeys:   map[string]bool{"status": true, "priority": true, "date": true},
		toDocument: func(rec source.Record) domain.SearchDocument {
			f := rec.Fields
			return domain.SearchDocument{
				Title:    join(" ", "Ticket", f["ticket_number"]),
				BodyText: join(" ", f["subject"], f["description"]),
				Metadata: pick(f, "ticket_number", "status", "priority", "category", "assignee"),
				URL:      "/tickets/" + rec.EntityID,
			}
		},
	}, maxExport)
}
