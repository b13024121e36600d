package goal

import "fmt"

// GoalNotFoundError is returned when a goal ID does not exist.
type GoalNotFoundError struct {
	ID int64
}

func (e *GoalNotFoundError) Error() string {
	return fmt.Sprintf("goal not found: %d", e.ID)
}

// InvalidTransitionError is returned when a status change is not in the transition table.
type InvalidTransitionError struct {
	ID   int64
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("goal %d: invalid transition %s -> %s", e.ID, e.From, e.To)
}

// UnplannableGoalError is returned when no decomposition template fits a goal.
type UnplannableGoalError struct {
	GoalID int64
	Reason string
}

func (e *UnplannableGoalError) Error() string {
	return fmt.Sprintf("goal %d is unplannable: %s", e.GoalID, e.Reason)
}

// StepOrderError is returned when a step would start out of order.
type StepOrderError struct {
	GoalID     int64
	StepNumber int
	Reason     string
}

func (e *StepOrderError) Error() string {
	return fmt.Sprintf("goal %d step %d cannot start: %s", e.GoalID, e.StepNumber, e.Reason)
}

// InvalidPlanError is returned when a plan violates numbering or vocabulary rules.
type InvalidPlanError struct {
	GoalID int64
	Reason string
}

func (e *InvalidPlanError) Error() string {
	return fmt.Sprintf("invalid plan for goal %d: %s", e.GoalID, e.Reason)
}

// DuplicateGoalError is returned when an equal open goal already exists.
type DuplicateGoalError struct {
	ExistingID int64
	Type       Type
}

func (e *DuplicateGoalError) Error() string {
	return fmt.Sprintf("an open %s goal with the same description already exists: %d", e.Type, e.ExistingID)
}

// PolicyDeniedError is returned when the policy gate rejects a goal.
type PolicyDeniedError struct {
	Reason string
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("rejected by policy: %s", e.Reason)
}
