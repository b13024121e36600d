package observability

import (
	"sync"
	"time"
)

// Phase is the coordinator's current position in the cycle.
type Phase string

const (
	PhaseIdle         Phase = "IDLE"
	PhaseScanning     Phase = "SCANNING"
	PhasePrioritizing Phase = "PRIORITIZING"
	PhaseSelecting    Phase = "SELECTING"
	PhasePlanning     Phase = "PLANNING"
	PhaseExecuting    Phase = "EXECUTING"
	PhaseFinalizing   Phase = "FINALIZING"
)

// StatusSnapshot is a point-in-time copy of SystemStatus.
type StatusSnapshot struct {
	Phase         Phase     `json:"phase"`
	ActiveGoalID  int64     `json:"active_goal_id,omitempty"`
	ActiveGoal    string    `json:"active_goal,omitempty"`
	Cycles        int64     `json:"cycles"`
	LastCycle     time.Time `json:"last_cycle"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	StartedAt     time.Time `json:"started_at"`
}

// SystemStatus tracks what the coordinator is doing. It is safe for
// concurrent use; readers get snapshots.
type SystemStatus struct {
	mu   sync.RWMutex
	snap StatusSnapshot
}

func NewSystemStatus() *SystemStatus {
	now := time.Now()
	return &SystemStatus{snap: StatusSnapshot{
		Phase:         PhaseIdle,
		StartedAt:     now,
		LastHeartbeat: now,
	}}
}

// SetPhase records the current phase.
func (s *SystemStatus) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Phase = p
	if p == PhaseIdle {
		s.snap.ActiveGoalID = 0
		s.snap.ActiveGoal = ""
	}
}

// SetActiveGoal records the goal being worked on.
func (s *SystemStatus) SetActiveGoal(id int64, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.ActiveGoalID = id
	s.snap.ActiveGoal = title
}

// CycleDone counts a finished cycle.
func (s *SystemStatus) CycleDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Cycles++
	s.snap.LastCycle = time.Now()
}

// Heartbeat updates the last heartbeat time.
func (s *SystemStatus) Heartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastHeartbeat = time.Now()
}

// Snapshot retrieves a copy of the status.
func (s *SystemStatus) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}
