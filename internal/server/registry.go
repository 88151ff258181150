package server

import (
	"sync"
	"time"

	"sentinel/internal/orchestrator"
	"sentinel/internal/types"
)

// RunStatus is the externally visible state of one run.
type RunStatus struct {
	RunID      string              `json:"run_id"`
	Stage      orchestrator.Stage  `json:"stage"`
	Repository string              `json:"repository"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
	Error      string              `json:"error,omitempty"`
	Summary    *types.CycleSummary `json:"summary,omitempty"`
}

// registry tracks runs for status queries and enforces one active run
// per process. Finished runs stay queryable until the process exits.
type registry struct {
	mu     sync.RWMutex
	byID   map[string]*RunStatus
	active string
}

func newRegistry() *registry {
	return &registry{byID: make(map[string]*RunStatus)}
}

// begin claims the active slot. It fails when another run is in flight.
func (r *registry) begin(runID, repository string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != "" {
		return false
	}
	r.active = runID
	r.byID[runID] = &RunStatus{
		RunID:      runID,
		Stage:      orchestrator.StageNotStarted,
		Repository: repository,
		StartedAt:  time.Now().UTC(),
	}
	return true
}

func (r *registry) setStage(runID string, stage orchestrator.Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.byID[runID]; ok {
		st.Stage = stage
	}
}

// finish releases the active slot and records the outcome.
func (r *registry) finish(runID string, summary *types.CycleSummary, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.byID[runID]
	if !ok {
		return
	}
	now := time.Now().UTC()
	st.FinishedAt = &now
	if err != nil {
		st.Stage = orchestrator.StageFailed
		st.Error = err.Error()
	} else {
		st.Stage = orchestrator.StageDone
		st.Summary = summary
	}
	if r.active == runID {
		r.active = ""
	}
}

func (r *registry) get(runID string) (RunStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.byID[runID]
	if !ok {
		return RunStatus{}, false
	}
	return *st, true
}

func (r *registry) activeRun() (RunStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == "" {
		return RunStatus{}, false
	}
	return *r.byID[r.active], true
}
