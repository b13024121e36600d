package agent

import (
	"sort"

	"github.com/rahul/autogoal/internal/goal"
)

// Prioritize returns a copy of goals ordered by priority (lower first), then
// by creation time. Ties keep their input order.
func Prioritize(goals []goal.Goal) []goal.Goal {
	out := make([]goal.Goal, len(goals))
	copy(out, goals)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
