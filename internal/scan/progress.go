package scan

import (
	"sync"

	"github.com/raysh454/dorkrecon/internal/store"
)

// PlatformProgress counts work items for one platform within a run.
type PlatformProgress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// ProgressState is the in-memory, per-session progress record. It is mutated
// only through Tracker.Update and read through snapshots; losing it on
// process restart is acceptable because the persisted session remains the
// source of truth.
type ProgressState struct {
	SessionID      string                      `json:"session_id"`
	Status         store.Status                `json:"status"`
	Progress       int                         `json:"progress"`
	CurrentStep    string                      `json:"current_step"`
	TotalSteps     int                         `json:"total_steps"`
	CompletedSteps int                         `json:"completed_steps"`
	Platforms      map[string]PlatformProgress `json:"platforms"`
}

// Tracker is the process-wide keyed progress state, read by polling clients
// while the orchestrator's run goroutine mutates it.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*ProgressState
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]*ProgressState)}
}

// Create registers a fresh progress record for a session.
func (t *Tracker) Create(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[sessionID] = &ProgressState{
		SessionID:   sessionID,
		Status:      store.StatusRunning,
		CurrentStep: "Starting scan...",
		Platforms:   make(map[string]PlatformProgress),
	}
}

// Update applies fn to the session's record as one atomic read-modify-write.
// Unknown sessions are ignored.
func (t *Tracker) Update(sessionID string, fn func(*ProgressState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.sessions[sessionID]; ok {
		fn(st)
	}
}

// Snapshot returns a copy of the session's record, or ok=false when the
// tracker has no record (typically: finished before this process started).
func (t *Tracker) Snapshot(sessionID string) (ProgressState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.sessions[sessionID]
	if !ok {
		return ProgressState{}, false
	}
	cp := *st
	cp.Platforms = make(map[string]PlatformProgress, len(st.Platforms))
	for k, v := range st.Platforms {
		cp.Platforms[k] = v
	}
	return cp, true
}

// Delete drops a session's record.
func (t *Tracker) Delete(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionID)
}
