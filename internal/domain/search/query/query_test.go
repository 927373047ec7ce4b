package query

import (
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
)

func TestNew_Defaults(t *testing.T) {
	s, err := New("  pump  ", 1, nil, DefaultLimit, Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Text() != "pump" {
		t.Errorf("Text() = %q", s.Text())
	}
	if s.Limit() != DefaultLimit {
		t.Errorf("Limit() = %d, want %d", s.Limit(), DefaultLimit)
	}
	if len(s.Modules()) != len(module.All) {
		t.Errorf("Modules() = %v, want all", s.Modules())
	}
}

func TestNew_ValidationCodes(t *testing.T) {
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		text    string
		tenant  int64
		modules []string
		limit   int
		filters Filters
		code    string
	}{
		{"empty", "", 1, nil, 0, Filters{}, domain.CodeEmptyQuery},
		{"whitespace", " \t\n", 1, nil, 0, Filters{}, domain.CodeEmptyQuery},
		{"limit above max", "x", 1, nil, 101, Filters{}, domain.CodeInvalidLimit},
		{"negative limit", "x", 1, nil, -1, Filters{}, domain.CodeInvalidLimit},
		{"zero limit", "x", 1, nil, 0, Filters{}, domain.CodeInvalidLimit},
		{"unknown module", "x", 1, []string{"invoices"}, 0, Filters{}, domain.CodeInvalidModule},
		{"no tenant", "x", 0, nil, 0, Filters{}, domain.CodeInvalidTenant},
		{"inverted dates", "x", 1, nil, 0, Filters{DateFrom: &from, DateTo: &to}, domain.CodeInvalidFilter},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.text, tc.tenant, tc.modules, tc.limit, tc.filters)
			if !errors.Is(err, domain.ErrInvalidQuery) {
				t.Fatalf("expected ErrInvalidQuery, got %v", err)
			}
			if got := domain.ValidationCode(err); got != tc.code {
				t.Errorf("code = %q, want %q", got, tc.code)
			}
		})
	}
}

func TestNew_LimitBounds(t *testing.T) {
	for _, limit := range []int{MinLimit, MaxLimit} {
		s, err := New("x", 1, nil, limit, Filters{})
		if err != nil {
			t.Fatalf("limit %d: unexpected error: %v", limit, err)
		}
		if s.Limit() != limit {
			t.Errorf("Limit() = %d, want %d", s.Limit(), limit)
		}
	}
}

func TestCacheKey_Deterministic(t *testing.T) {
	a, _ := New("Pump  Failure", 1, []string{"tickets", "assets"}, 10, Filters{Status: "open"})
	b, _ := New("pump failure", 1, []string{"assets", "tickets", "assets"}, 10, Filters{Status: "OPEN"})
	if a.CacheKey() != b.CacheKey() {
		t.Error("equivalent specs must share a cache key")
	}
	if len(a.CacheKey()) != 64 {
		t.Errorf("expected sha256 hex digest, got %q", a.CacheKey())
	}
}

func TestCacheKey_Distinguishes(t *testing.T) {
	base, _ := New("pump", 1, nil, 10, Filters{})
	variants := map[string]func() (Spec, error){
		"tenant":  func() (Spec, error) { return New("pump", 2, nil, 10, Filters{}) },
		"text":    func() (Spec, error) { return New("pumps", 1, nil, 10, Filters{}) },
		"modules": func() (Spec, error) { return New("pump", 1, []string{"tickets"}, 10, Filters{}) },
		"limit":   func() (Spec, error) { return New("pump", 1, nil, 11, Filters{}) },
		"filters": func() (Spec, error) { return New("pump", 1, nil, 10, Filters{Priority: "high"}) },
	}
	for name, mk := range variants {
		s, err := mk()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if s.CacheKey() == base.CacheKey() {
			t.Errorf("%s: expected a different cache key", name)
		}
	}
}

func TestCacheKey_AllEqualsNil(t *testing.T) {
	a, _ := New("pump", 1, nil, 10, Filters{})
	b, _ := New("pump", 1, []string{"all"}, 10, Filters{})
	if a.CacheKey() != b.CacheKey() {
		t.Error(`"all" and omitted modules must share a cache key`)
	}
}

func TestFilters_InRange(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	inside := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	outside := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	f := Filters{DateFrom: &from, DateTo: &to}
	if !f.InRange(&inside) {
		t.Error("expected inside to match")
	}
	if f.InRange(&outside) {
		t.Error("expected outside to be excluded")
	}
	if f.InRange(nil) {
		t.Error("expected undated record to be excluded by a date range")
	}
	if !(Filters{}).InRange(nil) {
		t.Error("open range must match undated records")
	}
}

func TestWords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"pump leaking", []string{"pump", "leaking"}},
		{"pump, leaking?", []string{"pump", "leaking"}},
		{"(T-003)", []string{"T", "003"}},
		{"  ?! ", nil},
	}
	for _, tc := range tests {
		got := Words(tc.in)
		if len(got) != len(tc.want) {
			t.Errorf("Words(%q) = %q, want %q", tc.in, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("Words(%q)[%d] = %q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}
}
