package manifest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/unisearch/internal/domain/module"
)

// Scope identifies which corpus an index generation covers.
type Scope string

// Global covers every tenant plus the knowledge base.
const Global Scope = "global"

const tenantScopePrefix = "tenant:"

// TenantScope returns the scope for a single tenant.
func TenantScope(tenantID int64) Scope {
	return Scope(tenantScopePrefix + strconv.FormatInt(tenantID, 10))
}

// ParseScope parses "global" or "tenant:<id>". An empty string means global.
func ParseScope(s string) (Scope, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == string(Global) {
		return Global, nil
	}
	rest, ok := strings.CutPrefix(s, tenantScopePrefix)
	if !ok {
		return "", fmt.Errorf("invalid scope %q: want global or tenant:<id>", s)
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return "", fmt.Errorf("invalid tenant in scope %q", s)
	}
	return TenantScope(id), nil
}

// TenantID returns the tenant of a tenant scope. ok is false for the global scope.
func (s Scope) TenantID() (id int64, ok bool) {
	rest, found := strings.CutPrefix(string(s), tenantScopePrefix)
	if !found {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Kind distinguishes full rebuilds from incremental updates.
type Kind string

// Kind constants.
const (
	KindFull        Kind = "full"
	KindIncremental Kind = "incremental"
)

// State is a step of the index builder state machine.
type State string

// State constants.
const (
	StateIdle       State = "idle"
	StateCollecting State = "collecting"
	StateEmbedding  State = "embedding"
	StatePersisting State = "persisting"
	StateLive       State = "live"
	StateFailed     State = "failed"
)

// transitions lists the legal next states. FAILED is reachable from any non-idle state.
var transitions = map[State][]State{
	StateIdle:       {StateCollecting},
	StateCollecting: {StateEmbedding, StateFailed},
	StateEmbedding:  {StatePersisting, StateFailed},
	StatePersisting: {StateLive, StateFailed},
	StateLive:       {StateIdle},
	StateFailed:     {StateIdle},
}

// CanTransition reports whether the builder may move from s to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Manifest describes one generation of the built index. Records are appended, never edited;
// the live pointer of a scope is swapped to a new record only when a run succeeds.
type Manifest struct {
	RunID            string                      `json:"run_id"`
	Generation       uint64                      `json:"generation"`
	Scope            Scope                       `json:"scope"`
	Kind             Kind                        `json:"kind"`
	Module           module.Module               `json:"module,omitempty"`
	State            State                       `json:"state"`
	ModuleCounts     map[module.Module]int       `json:"module_counts"`
	Truncated        []module.Module             `json:"truncated,omitempty"`
	Watermarks       map[module.Module]time.Time `json:"watermarks,omitempty"`
	ArtifactPath     string                      `json:"artifact_path,omitempty"`
	IdempotencyToken string                      `json:"idempotency_token,omitempty"`
	StartedAt        time.Time                   `json:"started_at"`
	BuiltAt          time.Time                   `json:"built_at"`
	Error            string                      `json:"error,omitempty"`
	EmbeddingTokens  int                         `json:"embedding_tokens,omitempty"`
}

// TotalDocuments sums the per-module counts.
func (m *Manifest) TotalDocuments() int {
	n := 0
	for _, c := range m.ModuleCounts {
		n += c
	}
	return n
}

// IsLive reports whether the run completed successfully.
func (m *Manifest) IsLive() bool { return m.State == StateLive }

// Ref points at one stored manifest.
type Ref struct {
	Scope      Scope  `json:"scope"`
	Generation uint64 `json:"generation"`
}

// Ref returns the pointer to m.
func (m *Manifest) Ref() Ref { return Ref{Scope: m.Scope, Generation: m.Generation} }
