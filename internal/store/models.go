package store

import (
	"time"

	"github.com/rahul/autogoal/internal/goal"
)

// Record kinds written by the coordinator.
const (
	KindGoalSummary = "goal_summary"
	KindFinding     = "finding"
)

// Record is a structured entry in the memory store.
type Record struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	GoalID    int64          `json:"goal_id,omitempty"`
	Summary   string         `json:"summary"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Status goal.Status
	Type   goal.Type
}
