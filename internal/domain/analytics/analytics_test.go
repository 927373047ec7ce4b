package analytics

import (
	"errors"
	"testing"

	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
)

func TestClick_Validate(t *testing.T) {
	valid := Click{CorrelationID: "c", EntityType: module.Tickets, EntityID: "e", Position: 0}

	tests := []struct {
		name     string
		mutate   func(c *Click)
		wantCode string
	}{
		{"valid", func(*Click) {}, ""},
		{"no correlation", func(c *Click) { c.CorrelationID = "" }, domain.CodeInvalidClick},
		{"bad module", func(c *Click) { c.EntityType = "invoices" }, domain.CodeInvalidModule},
		{"no entity", func(c *Click) { c.EntityID = "" }, domain.CodeInvalidClick},
		{"negative position", func(c *Click) { c.Position = -1 }, domain.CodeInvalidClick},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid
			tc.mutate(&c)
			err := c.Validate()
			if tc.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, domain.ErrInvalidQuery) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if got := domain.ValidationCode(err); got != tc.wantCode {
				t.Errorf("code = %q, want %q", got, tc.wantCode)
			}
		})
	}
}
