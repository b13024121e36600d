package goal

import "time"

// ActionType is one entry of the closed action vocabulary.
type ActionType string

const (
	ActionSearchCodebase ActionType = "SEARCH_CODEBASE"
	ActionApplyPatch     ActionType = "APPLY_PATCH"
	ActionCreateFile     ActionType = "CREATE_FILE"
	ActionRunTests       ActionType = "RUN_TESTS"
	ActionShellCommand   ActionType = "SHELL_COMMAND"
)

// Actions lists the full vocabulary in a stable order.
var Actions = []ActionType{
	ActionSearchCodebase,
	ActionApplyPatch,
	ActionCreateFile,
	ActionRunTests,
	ActionShellCommand,
}

// Valid reports whether a is part of the vocabulary.
func (a ActionType) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// StepStatus is the per-attempt state of a plan step.
type StepStatus string

const (
	StepPending   StepStatus = "PENDING"
	StepRunning   StepStatus = "RUNNING"
	StepSucceeded StepStatus = "SUCCEEDED"
	StepFailed    StepStatus = "FAILED"
)

// IsTerminal returns true once the step has resolved.
func (s StepStatus) IsTerminal() bool {
	return s == StepSucceeded || s == StepFailed
}

// ParamRecord marks a step whose result data is written to the memory store.
const ParamRecord = "record"

// PlanStep is one ordered, typed action belonging to exactly one goal.
type PlanStep struct {
	ID         int64          `json:"id"`
	GoalID     int64          `json:"goal_id"`
	Attempt    int            `json:"attempt"`
	StepNumber int            `json:"step_number"`
	ActionType ActionType     `json:"action_type"`
	Parameters map[string]any `json:"parameters"`
	Status     StepStatus     `json:"status"`
	Result     *StepResult    `json:"result,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	ExecutedAt *time.Time     `json:"executed_at,omitempty"`
}

// Records reports whether the step asked for its findings to be recorded.
func (s PlanStep) Records() bool {
	v, ok := s.Parameters[ParamRecord].(bool)
	return ok && v
}

// StepResult is the uniform outcome of every action.
type StepResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}
