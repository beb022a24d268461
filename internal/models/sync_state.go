package models

import "time"

// SyncState represents the per-mapping reconciliation state.
const (
	StatePending SyncState = "pending"
	StateSynced  SyncState = "synced"
	StateError   SyncState = "error"
)

type SyncState string

func (s SyncState) String() string {
	return string(s)
}

// MappingStatus tracks the health of one mapping's reconciliation loop.
// Lifecycle: pending at creation, synced on success, error on failure,
// back to synced on recovery.
type MappingStatus struct {
	TargetID       string
	State          SyncState
	Reason         string
	LastTransition time.Time
	LastAttempt    time.Time
}

// Transition moves the status to a new state, keeping the transition
// timestamp stable when the state does not change.
func (m *MappingStatus) Transition(state SyncState, reason string, now time.Time) {
	m.LastAttempt = now
	if m.State == state && m.Reason == reason {
		return
	}
	m.State = state
	m.Reason = reason
	m.LastTransition = now
}
