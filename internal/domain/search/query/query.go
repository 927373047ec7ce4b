package query

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
)

// Query parameter limits.
const (
	// MaxTextLength is the maximum allowed query length in bytes.
	MaxTextLength = 1024
	DefaultLimit  = 20
	MinLimit      = 1
	MaxLimit      = 100
)

// cacheKeyVersion is bumped whenever the key layout changes.
const cacheKeyVersion = "v1"

// Filters are the structured filters ANDed with the text match.
// Adapters ignore the keys they do not support.
type Filters struct {
	Status   string     `json:"status,omitempty"`
	Priority string     `json:"priority,omitempty"`
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`
}

// IsEmpty reports whether no filter is set.
func (f Filters) IsEmpty() bool {
	return f.Status == "" && f.Priority == "" && f.DateFrom == nil && f.DateTo == nil
}

// Items returns the set filters as sorted key=value pairs.
func (f Filters) Items() []string {
	var items []string
	if f.DateFrom != nil {
		items = append(items, "date_from="+f.DateFrom.UTC().Format(time.RFC3339))
	}
	if f.DateTo != nil {
		items = append(items, "date_to="+f.DateTo.UTC().Format(time.RFC3339))
	}
	if f.Priority != "" {
		items = append(items, "priority="+strings.ToLower(f.Priority))
	}
	if f.Status != "" {
		items = append(items, "status="+strings.ToLower(f.Status))
	}
	sort.Strings(items)
	return items
}

// InRange reports whether t falls inside the date range. A nil t matches only an open range.
func (f Filters) InRange(t *time.Time) bool {
	if f.DateFrom == nil && f.DateTo == nil {
		return true
	}
	if t == nil {
		return false
	}
	if f.DateFrom != nil && t.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && t.After(*f.DateTo) {
		return false
	}
	return true
}

// Spec is a validated, immutable search query.
type Spec struct {
	text     string
	tenantID int64
	modules  []module.Module
	limit    int
	filters  Filters
}

// New validates search parameters. A nil or "all" module list selects every module.
// limit must lie in [MinLimit, MaxLimit]; callers apply DefaultLimit when the client omitted it.
func New(text string, tenantID int64, modules []string, limit int, filters Filters) (Spec, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Spec{}, domain.NewValidationError(domain.CodeEmptyQuery, "query text is required")
	}
	if len(trimmed) > MaxTextLength {
		return Spec{}, domain.NewValidationError(domain.CodeQueryTooLong, "query too long (max %d chars)", MaxTextLength)
	}
	if tenantID <= 0 {
		return Spec{}, domain.NewValidationError(domain.CodeInvalidTenant, "tenant id must be positive")
	}

	mods, err := module.ParseList(modules)
	if err != nil {
		return Spec{}, domain.NewValidationError(domain.CodeInvalidModule, "%s", err.Error())
	}

	if limit < MinLimit || limit > MaxLimit {
		return Spec{}, domain.NewValidationError(
			domain.CodeInvalidLimit, "limit must be between %d and %d, got %d", MinLimit, MaxLimit, limit,
		)
	}

	if filters.DateFrom != nil && filters.DateTo != nil && filters.DateFrom.After(*filters.DateTo) {
		return Spec{}, domain.NewValidationError(domain.CodeInvalidFilter, "date_from is after date_to")
	}

	return Spec{
		text:     trimmed,
		tenantID: tenantID,
		modules:  mods,
		limit:    limit,
		filters:  filters,
	}, nil
}

// Text returns the trimmed query text.
func (s Spec) Text() string { return s.text }

// TenantID returns the requesting tenant.
func (s Spec) TenantID() int64 { return s.tenantID }

// Limit returns the maximum number of results.
func (s Spec) Limit() int { return s.limit }

// Filters returns the structured filters.
func (s Spec) Filters() Filters { return s.filters }

// Modules returns the selected modules, every module when none were named.
func (s Spec) Modules() []module.Module {
	if len(s.modules) == 0 {
		return append([]module.Module(nil), module.All...)
	}
	return append([]module.Module(nil), s.modules...)
}

// NormalizedText lowercases and collapses whitespace.
func (s Spec) NormalizedText() string {
	return Normalize(s.text)
}

// CacheKey returns a deterministic hex digest over the normalized text, tenant,
// sorted module list and sorted filter items.
func (s Spec) CacheKey() string {
	mods := "all"
	if len(s.modules) > 0 {
		mods = strings.Join(module.Strings(s.modules), ",")
	}

	var b strings.Builder
	b.WriteString(cacheKeyVersion)
	b.WriteByte('\n')
	b.WriteString(s.NormalizedText())
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(s.tenantID, 10))
	b.WriteByte('\n')
	b.WriteString(mods)
	b.WriteByte('\n')
	b.WriteString(strconv.Itoa(s.limit))
	b.WriteByte('\n')
	b.WriteString(strings.Join(s.filters.Items(), "&"))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Words splits text into letter/digit runs; punctuation and whitespace separate words.
func Words(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Normalize lowercases text and collapses runs of whitespace into single spaces.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
