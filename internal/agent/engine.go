package agent

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/rahul/autogoal/internal/goal"
	"github.com/rahul/autogoal/internal/governance"
	"github.com/rahul/autogoal/internal/observability"
	"github.com/rahul/autogoal/internal/store"
)

// Submission is an operator request for a new goal. Zero Type and Priority
// are inferred.
type Submission struct {
	Description     string            `json:"description"`
	Title           string            `json:"title,omitempty"`
	Type            goal.Type         `json:"type,omitempty"`
	Priority        int               `json:"priority,omitempty"`
	ParentID        *int64            `json:"parent_id,omitempty"`
	SuccessCriteria []string          `json:"success_criteria,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Engine is the read/submit surface used by the CLI and chat gateways. It
// never executes steps; cancel and resume only record requests that the
// coordinator applies on its next cycle.
type Engine struct {
	Store     *store.GoalStore
	Generator *Generator
	Gate      governance.PolicyEngine
	Logger    *observability.Logger
	status    *observability.SystemStatus
	metrics   *observability.Metrics
}

func NewEngine(st *store.GoalStore, gate governance.PolicyEngine, status *observability.SystemStatus, metrics *observability.Metrics, logger *observability.Logger) *Engine {
	if gate == nil {
		gate = governance.NewDefaultPolicyEngine()
	}
	if status == nil {
		status = observability.NewSystemStatus()
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Engine{
		Store:     st,
		Generator: NewGenerator(st),
		Gate:      gate,
		Logger:    logger,
		status:    status,
		metrics:   metrics,
	}
}

// ListGoals returns all goals, or those with the given status, ordered by id.
func (e *Engine) ListGoals(ctx context.Context, status *goal.Status) ([]goal.Goal, error) {
	var f store.Filter
	if status != nil {
		f.Status = *status
	}
	return e.Store.List(ctx, f)
}

func (e *Engine) GetGoal(ctx context.Context, id int64) (goal.Goal, error) {
	return e.Store.Get(ctx, id)
}

// SubmitGoal validates, gates and de-duplicates sub, then stores it as a
// PENDING goal.
func (e *Engine) SubmitGoal(ctx context.Context, sub Submission) (goal.Goal, error) {
	g, err := e.Generator.FromSubmission(sub)
	if err != nil {
		return goal.Goal{}, err
	}
	if g.ParentID != nil {
		if _, err := e.Store.Get(ctx, *g.ParentID); err != nil {
			return goal.Goal{}, err
		}
	}

	res, err := e.Gate.Evaluate(ctx, governance.Request{
		Action:    governance.ActionCreateGoal,
		Arguments: g.Description,
		Context: map[string]string{
			"description": g.Description,
			"type":        string(g.Type),
		},
	})
	if err != nil {
		return goal.Goal{}, err
	}
	if !res.Allowed() {
		if e.metrics != nil {
			e.metrics.PolicyDenials.Inc()
		}
		return goal.Goal{}, &goal.PolicyDeniedError{Reason: res.Reason}
	}

	saved, created, err := e.Store.CreateIfAbsent(ctx, g)
	if err != nil {
		return goal.Goal{}, err
	}
	if !created {
		return saved, &goal.DuplicateGoalError{ExistingID: saved.ID, Type: saved.Type}
	}
	if e.metrics != nil {
		e.metrics.GoalsCreated.WithLabelValues(string(saved.Type)).Inc()
	}
	e.Logger.Info("goal submitted",
		zap.Int64("goal_id", saved.ID),
		zap.String("type", string(saved.Type)),
		zap.Int("priority", saved.Priority))
	return saved, nil
}

// GetPlanSteps returns every step of every plan attempt for a goal.
func (e *Engine) GetPlanSteps(ctx context.Context, id int64) ([]goal.PlanStep, error) {
	return e.Store.PlanSteps(ctx, id)
}

// CancelGoal asks the coordinator to fail the goal at the next step boundary.
func (e *Engine) CancelGoal(ctx context.Context, id int64) (goal.Goal, error) {
	return e.Store.RequestCancel(ctx, id)
}

// ResumeGoal asks the coordinator to re-plan a BLOCKED goal.
func (e *Engine) ResumeGoal(ctx context.Context, id int64) (goal.Goal, error) {
	return e.Store.RequestResume(ctx, id)
}

func (e *Engine) Status() observability.StatusSnapshot {
	return e.status.Snapshot()
}

// IsUserError reports whether err is a rejection the caller can act on, as
// opposed to an internal failure.
func IsUserError(err error) bool {
	var (
		notFound  *goal.GoalNotFoundError
		invalid   *goal.InvalidTransitionError
		duplicate *goal.DuplicateGoalError
		denied    *goal.PolicyDeniedError
	)
	return errors.As(err, &notFound) || errors.As(err, &invalid) ||
		errors.As(err, &duplicate) || errors.As(err, &denied)
}
