package indexing

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kailas-cloud/unisearch/internal/domain/manifest"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
)

// RunStatus is the in-memory state of one builder slot: a scope's full rebuild,
// or a scope's incremental job for one module.
type RunStatus struct {
	Scope     manifest.Scope `json:"scope"`
	Kind      manifest.Kind  `json:"kind"`
	Module    module.Module  `json:"module,omitempty"`
	State     manifest.State `json:"state"`
	RunID     string         `json:"run_id,omitempty"`
	Documents int            `json:"documents"`
	StartedAt time.Time      `json:"started_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	LastError string         `json:"last_error,omitempty"`
	LastState manifest.State `json:"last_state,omitempty"`
}

type slotKey struct {
	scope  manifest.Scope
	kind   manifest.Kind
	module module.Module
}

// tracker holds the state machine of every slot.
type tracker struct {
	mu    sync.Mutex
	slots map[slotKey]*RunStatus
	now   func() time.Time
}

func newTracker(now func() time.Time) *tracker {
	return &tracker{slots: make(map[slotKey]*RunStatus), now: now}
}

// run is a handle on one slot for the duration of a run.
type run struct {
	t   *tracker
	key slotKey
}

// begin moves the slot from idle to collecting.
func (t *tracker) begin(scope manifest.Scope, kind manifest.Kind, m module.Module, runID string) (*run, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := slotKey{scope: scope, kind: kind, module: m}
	st, ok := t.slots[key]
	if !ok {
		st = &RunStatus{Scope: scope, Kind: kind, Module: m, State: manifest.StateIdle}
		t.slots[key] = st
	}
	if !st.State.CanTransition(manifest.StateCollecting) {
		return nil, fmt.Errorf("%s %s run already %s", scope, kind, st.State)
	}
	now := t.now()
	st.State = manifest.StateCollecting
	st.RunID = runID
	st.Documents = 0
	st.StartedAt = now
	st.UpdatedAt = now
	st.LastError = ""
	return &run{t: t, key: key}, nil
}

// to advances the run. Illegal transitions are programming errors and are reported.
func (r *run) to(next manifest.State) error {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	st := r.t.slots[r.key]
	if !st.State.CanTransition(next) {
		return fmt.Errorf("illegal index state transition %s -> %s", st.State, next)
	}
	st.State = next
	st.UpdatedAt = r.t.now()
	return nil
}

func (r *run) setDocuments(n int) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	r.t.slots[r.key].Documents = n
}

func (r *run) state() manifest.State {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	return r.t.slots[r.key].State
}

// fail moves the run to failed and records the error.
func (r *run) fail(err error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	st := r.t.slots[r.key]
	if st.State.CanTransition(manifest.StateFailed) {
		st.State = manifest.StateFailed
	}
	st.LastError = err.Error()
	st.UpdatedAt = r.t.now()
}

// finish returns the slot to idle from live or failed.
func (r *run) finish() {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	st := r.t.slots[r.key]
	st.LastState = st.State
	if st.State.CanTransition(manifest.StateIdle) {
		st.State = manifest.StateIdle
	}
	st.UpdatedAt = r.t.now()
}

func (t *tracker) snapshot() []RunStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]RunStatus, 0, len(t.slots))
	for _, st := range t.slots {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Scope != b.Scope {
			return a.Scope < b.Scope
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Module < b.Module
	})
	return out
}
