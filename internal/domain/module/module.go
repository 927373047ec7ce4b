package module

import (
	"fmt"
	"sort"
	"strings"
)

// Module is one category of indexed business entity.
type Module string

// Module constants.
const (
	Tickets       Module = "tickets"
	WorkOrders    Module = "work_orders"
	Assets        Module = "assets"
	People        Module = "people"
	KnowledgeBase Module = "knowledge_base"
)

// All lists every module in canonical order.
var All = []Module{Tickets, WorkOrders, Assets, People, KnowledgeBase}

// Incremental lists the modules covered by the 15-minute incremental cadence.
// The knowledge base only changes through full rebuilds.
var Incremental = []Module{Tickets, WorkOrders, Assets, People}

// Prior weights reflect typical operational importance. Fixed, not user-configurable.
var priorWeights = map[Module]float64{
	Tickets:       1.0,
	WorkOrders:    0.9,
	KnowledgeBase: 0.85,
	Assets:        0.8,
	People:        0.7,
}

// IsValid checks if the module is one of the supported values.
func (m Module) IsValid() bool {
	_, ok := priorWeights[m]
	return ok
}

// Weight returns the module-level prior used as a ranking input.
func (m Module) Weight() float64 {
	return priorWeights[m]
}

// TenantScoped reports whether documents of this module belong to a tenant.
func (m Module) TenantScoped() bool {
	return m != KnowledgeBase
}

// Parse converts a string into a Module.
func Parse(s string) (Module, error) {
	m := Module(strings.ToLower(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", fmt.Errorf("unknown module %q", s)
	}
	return m, nil
}

// ParseList converts names into a sorted, de-duplicated module list.
// An empty input or the single value "all" yields nil, meaning every module.
func ParseList(names []string) ([]Module, error) {
	if len(names) == 0 || (len(names) == 1 && strings.EqualFold(strings.TrimSpace(names[0]), "all")) {
		return nil, nil
	}
	seen := make(map[Module]struct{}, len(names))
	out := make([]Module, 0, len(names))
	for _, n := range names {
		m, err := Parse(n)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Strings converts modules back to their names.
func Strings(mods []Module) []string {
	out := make([]string, len(mods))
	for i, m := range mods {
		out[i] = string(m)
	}
	return out
}
