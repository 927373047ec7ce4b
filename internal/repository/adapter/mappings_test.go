package adapter

import (
	"testing"

	"github.com/kailas-cloud/unisearch/internal/domain/module"
	"github.com/kailas-cloud/unisearch/internal/repository/source"
)

func TestMappings(t *testing.T) {
	tests := []struct {
		name      string
		adapter   *Adapter
		rec       source.Record
		wantTitle string
		wantBody  string
		wantURL   string
		wantScore float64
	}{
		{
			name:    "ticket",
			adapter: NewTickets(nil, 0),
			rec: source.Record{Module: module.Tickets, TenantID: tenant(1), EntityID: "u1", Fields: map[string]string{
				"ticket_number": "T001", "subject": "AC not cooling",
			}},
			wantTitle: "Ticket T001", wantBody: "AC not cooling", wantURL: "/tickets/u1", wantScore: 1.0,
		},
		{
			name:    "work order without title",
			adapter: NewWorkOrders(nil, 0),
			rec: source.Record{Module: module.WorkOrders, TenantID: tenant(1), EntityID: "w", Fields: map[string]string{
				"wo_number": "WO-9", "description": "Replace filter",
			}},
			wantTitle: "Work Order WO-9", wantBody: "Replace filter", wantURL: "/work-orders/w", wantScore: 0.9,
		},
		{
			name:    "asset",
			adapter: NewAssets(nil, 0),
			rec: source.Record{Module: module.Assets, TenantID: tenant(1), EntityID: "a", Fields: map[string]string{
				"name": "Rooftop AC Unit", "asset_code": "AC-12", "location": "Roof",
			}},
			wantTitle: "Rooftop AC Unit", wantBody: "unit code AC-12 Roof", wantURL: "/assets/a", wantScore: 0.8,
		},
		{
			name:    "person",
			adapter: NewPeople(nil, 0),
			rec: source.Record{Module: module.People, TenantID: tenant(1), EntityID: "p", Fields: map[string]string{
				"first_name": "Ana", "last_name": "Silva", "job_title": "Technician",
			}},
			wantTitle: "Ana Silva", wantBody: "Technician", wantURL: "/people/p", wantScore: 0.7,
		},
		{
			name:    "article",
			adapter: NewKnowledgeBase(nil, 0),
			rec: source.Record{Module: module.KnowledgeBase, EntityID: "k", Fields: map[string]string{
				"title": "Resetting breakers", "content": "Step one",
			}},
			wantTitle: "Resetting breakers", wantBody: "Step one", wantURL: "/kb/k", wantScore: 0.85,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := tc.adapter.document(tc.rec)
			if d.Title != tc.wantTitle {
				t.Errorf("Title = %q, want %q", d.Title, tc.wantTitle)
			}
			if d.BodyText != tc.wantBody {
				t.Errorf("BodyText = %q, want %q", d.BodyText, tc.wantBody)
			}
			if d.URL != tc.wantURL {
				t.Errorf("URL = %q, want %q", d.URL, tc.wantURL)
			}
			if d.Score != tc.wantScore {
				t.Errorf("Score = %v, want %v", d.Score, tc.wantScore)
			}
			if d.Module.TenantScoped() && (d.TenantID == nil || *d.TenantID != *tc.rec.TenantID) {
				t.Error("tenant id must match the source record")
			}
		})
	}
}

func TestParseTime(t *testing.T) {
	for _, s := range []string{"2026-01-02T03:04:05Z", "2026-01-02T03:04:05.123+02:00", "2026-01-02 03:04:05", "2026-01-02"} {
		if parseTime(s) == nil {
			t.Errorf("parseTime(%q) = nil", s)
		}
	}
	if parseTime("yesterday") != nil || parseTime("") != nil {
		t.Error("unparsable input must yield nil")
	}
}

func TestRecordTimeFallsBackToCreatedAt(t *testing.T) {
	got := recordTime(map[string]string{"created_at": "2026-01-02"})
	if got == nil || got.Day() != 2 {
		t.Errorf("expected created_at fallback, got %v", got)
	}
}
