package goal

import (
	"time"
)

// Type classifies the kind of work a goal represents.
type Type string

const (
	TypeMaintenance  Type = "MAINTENANCE"
	TypeOptimization Type = "OPTIMIZATION"
	TypeResearch     Type = "RESEARCH"
	TypeDevelopment  Type = "DEVELOPMENT"
	TypeImprovement  Type = "IMPROVEMENT"
)

// Valid reports whether t is one of the known goal types.
func (t Type) Valid() bool {
	switch t {
	case TypeMaintenance, TypeOptimization, TypeResearch, TypeDevelopment, TypeImprovement:
		return true
	}
	return false
}

// Status represents the lifecycle state of a goal.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusBlocked    Status = "BLOCKED"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// IsTerminal returns true if no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsOpen reports whether a goal in this status counts for de-duplication.
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusInProgress
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusBlocked, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress},
	StatusInProgress: {StatusBlocked, StatusCompleted, StatusFailed},
	StatusBlocked:    {StatusInProgress, StatusFailed},
}

// CanTransition reports whether moving a goal from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Metadata keys written by the generator and read back by the planner.
const (
	MetaSource         = "source"
	MetaFile           = "file"
	MetaSymbol         = "symbol"
	MetaLine           = "line"
	MetaTopic          = "topic"
	MetaTags           = "tags"
	MetaOrigin         = "origin"
	MetaTargetFile     = "target_file"
	MetaOldFragment    = "old_fragment"
	MetaNewFragment    = "new_fragment"
	MetaNewFile        = "new_file"
	MetaNewFileContent = "new_file_content"
	MetaTestPattern    = "test_pattern"
)

// Goal is a unit of autonomous work with a lifecycle status.
type Goal struct {
	ID              int64             `json:"id"`
	Type            Type              `json:"type"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Priority        int               `json:"priority"`
	Status          Status            `json:"status"`
	Progress        float64           `json:"progress"`
	Blockers        []string          `json:"blockers,omitempty"`
	ParentID        *int64            `json:"parent_id,omitempty"`
	SuccessCriteria []string          `json:"success_criteria,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CancelRequested bool              `json:"cancel_requested,omitempty"`
	ResumeRequested bool              `json:"resume_requested,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
}

// Clone returns a deep copy so callers never share slices or maps with the store.
func (g Goal) Clone() Goal {
	c := g
	if g.Blockers != nil {
		c.Blockers = append([]string(nil), g.Blockers...)
	}
	if g.SuccessCriteria != nil {
		c.SuccessCriteria = append([]string(nil), g.SuccessCriteria...)
	}
	if g.Metadata != nil {
		c.Metadata = make(map[string]string, len(g.Metadata))
		for k, v := range g.Metadata {
			c.Metadata[k] = v
		}
	}
	if g.ParentID != nil {
		id := *g.ParentID
		c.ParentID = &id
	}
	if g.CompletedAt != nil {
		t := *g.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

// LastBlocker returns the most recent blocker reason, or "".
func (g Goal) LastBlocker() string {
	if len(g.Blockers) == 0 {
		return ""
	}
	return g.Blockers[len(g.Blockers)-1]
}

// Meta returns the metadata value for key, or "".
func (g Goal) Meta(key string) string {
	if g.Metadata == nil {
		return ""
	}
	return g.Metadata[key]
}
