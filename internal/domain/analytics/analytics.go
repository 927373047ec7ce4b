// Package analytics holds the query and click events sent to the analytics store.
package analytics

import (
	"time"

	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
)

// MaxSuggestLimit bounds a suggestion lookup.
const MaxSuggestLimit = 10

// Event describes one executed query.
type Event struct {
	CorrelationID  string
	TenantID       int64
	UserID         string
	Query          string
	Modules        []string
	Filters        []string
	ResultCount    int
	ResponseTimeMs int64
	FromCache      bool
	At             time.Time
}

// Click ties a result click to the query that produced it.
type Click struct {
	CorrelationID string
	TenantID      int64
	UserID        string
	EntityType    module.Module
	EntityID      string
	Position      int
	At            time.Time
}

// Validate checks the click fields the store relies on.
func (c *Click) Validate() error {
	switch {
	case c.CorrelationID == "":
		return domain.NewValidationError(domain.CodeInvalidClick, "correlation_id is required")
	case !c.EntityType.IsValid():
		return domain.NewValidationError(domain.CodeInvalidModule, "unknown entity_type %q", c.EntityType)
	case c.EntityID == "":
		return domain.NewValidationError(domain.CodeInvalidClick, "entity_id is required")
	case c.Position < 0:
		return domain.NewValidationError(domain.CodeInvalidClick, "position must be >= 0")
	}
	return nil
}
