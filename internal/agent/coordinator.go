package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rahul/autogoal/internal/goal"
	"github.com/rahul/autogoal/internal/governance"
	"github.com/rahul/autogoal/internal/observability"
	"github.com/rahul/autogoal/internal/scanner"
	"github.com/rahul/autogoal/internal/store"
)

const (
	DefaultInterval = 60 * time.Second

	reasonCancelled   = "cancelled by operator"
	reasonInterrupted = "interrupted by restart"
)

// FindingSource produces scan findings. *scanner.Scanner implements it.
type FindingSource interface {
	Scan(ctx context.Context) []scanner.Finding
}

// GoalPlanner decomposes a goal into plan steps. *Planner implements it.
type GoalPlanner interface {
	Plan(ctx context.Context, g goal.Goal) ([]goal.PlanStep, error)
}

// StepExecutor runs one plan step. *tools.Executor implements it.
type StepExecutor interface {
	Execute(ctx context.Context, step goal.PlanStep) goal.StepResult
}

// MemoryWriter persists structured records. *store.HistoryStore implements it.
type MemoryWriter interface {
	Write(ctx context.Context, rec store.Record) error
}

// CoordinatorConfig wires the coordinator's collaborators. Store, Planner and
// Executor are required; everything else is optional.
type CoordinatorConfig struct {
	Store     *store.GoalStore
	Scanner   FindingSource
	Generator *Generator
	Planner   GoalPlanner
	Executor  StepExecutor
	Gate      governance.PolicyEngine
	Memory    MemoryWriter
	Messenger Messenger
	// NotifyChatID is passed to Messenger.Send.
	NotifyChatID string
	Logger       *observability.Logger
	Metrics      *observability.Metrics
	Status       *observability.SystemStatus
	Interval     time.Duration
}

// Coordinator drives the goal lifecycle one cycle at a time. At most one goal
// is IN_PROGRESS and its steps run strictly in order.
type Coordinator struct {
	cfg     CoordinatorConfig
	logger  *observability.Logger
	metrics *observability.Metrics
	status  *observability.SystemStatus

	// mu serializes cycles and recovery.
	mu sync.Mutex
}

func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, errors.New("coordinator requires a goal store")
	}
	if cfg.Planner == nil {
		return nil, errors.New("coordinator requires a planner")
	}
	if cfg.Executor == nil {
		return nil, errors.New("coordinator requires an executor")
	}
	if cfg.Gate == nil {
		cfg.Gate = governance.NewDefaultPolicyEngine()
	}
	if cfg.Generator == nil {
		cfg.Generator = NewGenerator(cfg.Store)
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewMetrics()
	}
	if cfg.Status == nil {
		cfg.Status = observability.NewSystemStatus()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Coordinator{
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		status:  cfg.Status,
	}, nil
}

// Status returns the coordinator's live status tracker.
func (c *Coordinator) Status() *observability.SystemStatus {
	return c.status
}

// RunCycle performs one IDLE → ... → IDLE pass. Failures inside a phase are
// logged and, when a goal was selected, block that goal; only store outages
// and context cancellation are returned.
func (c *Coordinator) RunCycle(ctx context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cycle := uuid.NewString()
	clog := c.logger.With(zap.String("cycle", cycle))
	var selected *goal.Goal

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
		}
		if err != nil && ctx.Err() == nil && !store.IsUnavailable(err) {
			c.metrics.CycleErrors.Inc()
			clog.Error("cycle failed", zap.Error(err))
			reason := err.Error()
			err = nil
			if selected != nil {
				err = c.block(ctx, selected.ID, reason)
			}
		}
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		c.status.SetPhase(observability.PhaseIdle)
		c.status.CycleDone()
		c.metrics.Cycles.Inc()
		c.metrics.ActiveGoalGauge.Set(0)
	}()

	c.status.SetPhase(observability.PhaseScanning)
	if err := c.scan(ctx); err != nil {
		if store.IsUnavailable(err) || ctx.Err() != nil {
			return err
		}
		clog.Warn("scan phase failed", zap.Error(err))
	}

	c.status.SetPhase(observability.PhasePrioritizing)
	pending, err := c.cfg.Store.List(ctx, store.Filter{Status: goal.StatusPending})
	if err != nil {
		return err
	}
	ordered := Prioritize(pending)

	c.status.SetPhase(observability.PhaseSelecting)
	g, ok, err := c.selectGoal(ctx, ordered)
	if err != nil || !ok {
		return err
	}
	selected = &g
	c.status.SetActiveGoal(g.ID, g.Title)
	c.metrics.ActiveGoalGauge.Set(float64(g.ID))

	return c.advance(ctx, g)
}

func (c *Coordinator) scan(ctx context.Context) error {
	if c.cfg.Scanner == nil {
		return nil
	}
	findings := c.cfg.Scanner.Scan(ctx)
	for _, f := range findings {
		c.metrics.ScanFindings.WithLabelValues(string(f.Source)).Inc()
	}
	created, err := c.cfg.Generator.Generate(ctx, findings)
	for _, g := range created {
		c.metrics.GoalsCreated.WithLabelValues(string(g.Type)).Inc()
		c.logger.Log(observability.Event{
			Type:    observability.EventTypeGoal,
			GoalID:  g.ID,
			Message: "goal created",
			Data:    map[string]any{"type": g.Type, "description": g.Description, "priority": g.Priority},
		})
	}
	return err
}

// selectGoal applies operator requests on blocked goals, then returns the goal
// to work on: the goal already IN_PROGRESS, a resumed goal, or the first
// pending goal in priority order.
func (c *Coordinator) selectGoal(ctx context.Context, ordered []goal.Goal) (goal.Goal, bool, error) {
	blocked, err := c.cfg.Store.List(ctx, store.Filter{Status: goal.StatusBlocked})
	if err != nil {
		return goal.Goal{}, false, err
	}
	for _, b := range blocked {
		if b.CancelRequested {
			if err := c.transition(ctx, b.ID, goal.StatusFailed, reasonCancelled); err != nil {
				return goal.Goal{}, false, err
			}
		}
	}

	active, err := c.cfg.Store.List(ctx, store.Filter{Status: goal.StatusInProgress})
	if err != nil {
		return goal.Goal{}, false, err
	}
	if len(active) > 0 {
		return active[0], true, nil
	}

	for _, b := range blocked {
		if b.ResumeRequested && !b.CancelRequested {
			if err := c.transition(ctx, b.ID, goal.StatusInProgress, "resumed by operator"); err != nil {
				return goal.Goal{}, false, err
			}
			g, err := c.cfg.Store.Get(ctx, b.ID)
			return g, err == nil, err
		}
	}

	for _, p := range ordered {
		if err := c.transition(ctx, p.ID, goal.StatusInProgress, "selected"); err != nil {
			return goal.Goal{}, false, err
		}
		if p.CancelRequested {
			if err := c.transition(ctx, p.ID, goal.StatusFailed, reasonCancelled); err != nil {
				return goal.Goal{}, false, err
			}
			continue
		}
		g, err := c.cfg.Store.Get(ctx, p.ID)
		return g, err == nil, err
	}
	return goal.Goal{}, false, nil
}

// advance plans (if needed), executes and finalizes g.
func (c *Coordinator) advance(ctx context.Context, g goal.Goal) error {
	plan, err := c.ensurePlan(ctx, g)
	if err != nil || plan == nil {
		return err
	}

	c.status.SetPhase(observability.PhaseExecuting)
	done, err := c.execute(ctx, g, plan)
	if err != nil || !done {
		return err
	}

	c.status.SetPhase(observability.PhaseFinalizing)
	return c.finalize(ctx, g, plan)
}

// ensurePlan returns the plan to execute, or nil when g was blocked instead.
func (c *Coordinator) ensurePlan(ctx context.Context, g goal.Goal) ([]goal.PlanStep, error) {
	current, err := c.cfg.Store.CurrentPlan(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	if len(current) > 0 && !hasFailedStep(current) {
		return current, nil
	}

	c.status.SetPhase(observability.PhasePlanning)
	res, err := c.cfg.Gate.Evaluate(ctx, governance.Request{
		Action:    governance.ActionCreateGoal,
		Arguments: g.Description,
		Context: map[string]string{
			"description": g.Description,
			"type":        string(g.Type),
		},
	})
	if err != nil {
		return nil, c.block(ctx, g.ID, "policy gate unavailable: "+err.Error())
	}
	c.logger.LogPolicyCheck(g.ID, governance.ActionCreateGoal, string(res.Effect), res.Reason)
	if !res.Allowed() {
		c.metrics.PolicyDenials.Inc()
		return nil, c.block(ctx, g.ID, res.Reason)
	}

	steps, err := c.cfg.Planner.Plan(ctx, g)
	var unplannable *goal.UnplannableGoalError
	if errors.As(err, &unplannable) {
		return nil, c.block(ctx, g.ID, unplannable.Error())
	}
	if err != nil {
		return nil, err
	}

	saved, err := c.cfg.Store.SavePlan(ctx, g.ID, steps)
	if err != nil {
		return nil, err
	}
	if _, err := c.cfg.Store.UpdateProgress(ctx, g.ID, 0); err != nil {
		return nil, err
	}
	c.logger.Log(observability.Event{
		Type:    observability.EventTypePlan,
		GoalID:  g.ID,
		Message: "plan created",
		Data:    map[string]any{"attempt": saved[0].Attempt, "steps": planSummary(saved)},
	})
	return saved, nil
}

// failureReason is the blocker recorded for a failed step.
func failureReason(s goal.PlanStep) string {
	if s.Result != nil && s.Result.Error != "" {
		return s.Result.Error
	}
	return fmt.Sprintf("step %d (%s) failed", s.StepNumber, s.ActionType)
}

func hasFailedStep(plan []goal.PlanStep) bool {
	for _, s := range plan {
		if s.Status == goal.StepFailed {
			return true
		}
	}
	return false
}

func planSummary(plan []goal.PlanStep) []string {
	out := make([]string, len(plan))
	for i, s := range plan {
		out[i] = fmt.Sprintf("%d:%s", s.StepNumber, s.ActionType)
	}
	return out
}

// execute runs the pending steps of plan in order. It reports whether every
// step succeeded; on the first failure the goal is blocked and it stops.
func (c *Coordinator) execute(ctx context.Context, g goal.Goal, plan []goal.PlanStep) (bool, error) {
	succeeded := 0
	for _, s := range plan {
		if s.Status == goal.StepSucceeded {
			succeeded++
		}
	}

	for _, s := range plan {
		if s.Status == goal.StepSucceeded {
			continue
		}

		cur, err := c.cfg.Store.Get(ctx, g.ID)
		if err != nil {
			return false, err
		}
		if cur.Status != goal.StatusInProgress {
			return false, nil
		}
		if cur.CancelRequested {
			return false, c.transition(ctx, g.ID, goal.StatusFailed, reasonCancelled)
		}

		running, err := c.cfg.Store.MarkStepRunning(ctx, s.ID)
		if err != nil {
			return false, err
		}

		start := time.Now()
		result := c.cfg.Executor.Execute(ctx, running)
		elapsed := time.Since(start)
		if ctx.Err() != nil {
			// Left RUNNING; recovery fails it on the next start.
			return false, ctx.Err()
		}

		if _, err := c.cfg.Store.CompleteStep(ctx, s.ID, result); err != nil {
			return false, err
		}
		c.metrics.ObserveStep(string(s.ActionType), result.Success, elapsed)
		c.logger.LogStep(g.ID, s.StepNumber, string(s.ActionType), result.Success, result.Error)

		if !result.Success {
			s.Result = &result
			return false, c.block(ctx, g.ID, failureReason(s))
		}

		succeeded++
		if _, err := c.cfg.Store.UpdateProgress(ctx, g.ID, float64(succeeded)/float64(len(plan))); err != nil {
			return false, err
		}
		if s.Records() {
			c.remember(ctx, store.Record{
				Kind:    store.KindFinding,
				GoalID:  g.ID,
				Summary: fmt.Sprintf("%s result for goal #%d: %s", s.ActionType, g.ID, g.Title),
				Data:    result.Data,
			})
		}
	}
	return true, nil
}

func (c *Coordinator) finalize(ctx context.Context, g goal.Goal, plan []goal.PlanStep) error {
	if _, err := c.cfg.Store.UpdateProgress(ctx, g.ID, 1); err != nil {
		return err
	}
	if err := c.transition(ctx, g.ID, goal.StatusCompleted, "all steps succeeded"); err != nil {
		return err
	}

	attempt := 0
	if len(plan) > 0 {
		attempt = plan[0].Attempt
	}
	c.remember(ctx, store.Record{
		Kind:    store.KindGoalSummary,
		GoalID:  g.ID,
		Summary: fmt.Sprintf("Completed goal #%d: %s", g.ID, g.Title),
		Data: map[string]any{
			"type":        string(g.Type),
			"description": g.Description,
			"steps":       planSummary(plan),
			"attempt":     attempt,
		},
	})
	c.notify(fmt.Sprintf("✅ Goal #%d completed: %s", g.ID, g.Title))
	return nil
}

func (c *Coordinator) transition(ctx context.Context, id int64, to goal.Status, reason string) error {
	before, err := c.cfg.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := c.cfg.Store.Transition(ctx, id, to, reason); err != nil {
		return err
	}
	c.metrics.Transitions.WithLabelValues(string(to)).Inc()
	c.logger.LogTransition(id, string(before.Status), string(to), reason)
	return nil
}

// block moves a goal to BLOCKED. A goal that already left IN_PROGRESS is left
// alone; only store errors are returned.
func (c *Coordinator) block(ctx context.Context, id int64, reason string) error {
	err := c.transition(ctx, id, goal.StatusBlocked, reason)
	var invalid *goal.InvalidTransitionError
	if errors.As(err, &invalid) {
		c.logger.Warn("goal not blockable", zap.Int64("goal_id", id), zap.String("status", string(invalid.From)))
		return nil
	}
	if err != nil {
		return err
	}
	c.notify(fmt.Sprintf("⛔ Goal #%d blocked: %s", id, reason))
	return nil
}

func (c *Coordinator) remember(ctx context.Context, rec store.Record) {
	if c.cfg.Memory == nil {
		return
	}
	if err := c.cfg.Memory.Write(ctx, rec); err != nil {
		c.logger.Warn("memory write failed", zap.Int64("goal_id", rec.GoalID), zap.Error(err))
	}
}

func (c *Coordinator) notify(text string) {
	if c.cfg.Messenger == nil {
		return
	}
	if err := c.cfg.Messenger.Send(c.cfg.NotifyChatID, text); err != nil {
		c.logger.Warn("notification failed", zap.Error(err))
	}
}

// Recover reconciles IN_PROGRESS goals after a restart using only the store.
func (c *Coordinator) Recover(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	active, err := c.cfg.Store.List(ctx, store.Filter{Status: goal.StatusInProgress})
	if err != nil {
		return err
	}

	for i, g := range active {
		if i > 0 {
			if err := c.block(ctx, g.ID, "another goal was already in progress at restart"); err != nil {
				return err
			}
			continue
		}
		if err := c.recoverGoal(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) recoverGoal(ctx context.Context, g goal.Goal) error {
	plan, err := c.cfg.Store.CurrentPlan(ctx, g.ID)
	if err != nil {
		return err
	}
	logRecovery := func(action string) {
		c.logger.Log(observability.Event{
			Type:    observability.EventTypeRecovery,
			GoalID:  g.ID,
			Message: "goal recovered",
			Data:    map[string]string{"action": action},
		})
	}

	if len(plan) == 0 {
		logRecovery("replan")
		return nil
	}

	allSucceeded := true
	for _, s := range plan {
		switch s.Status {
		case goal.StepRunning:
			reason := fmt.Sprintf("step %d (%s) %s", s.StepNumber, s.ActionType, reasonInterrupted)
			if _, err := c.cfg.Store.CompleteStep(ctx, s.ID, goal.StepResult{
				Success: false,
				Error:   reasonInterrupted,
				Data:    map[string]any{"error_kind": "interrupted"},
			}); err != nil {
				return err
			}
			logRecovery("block")
			return c.block(ctx, g.ID, reason)
		case goal.StepFailed:
			// A failure already recorded as the latest blocker means the goal
			// was resumed by the operator and is waiting to be replanned.
			reason := failureReason(s)
			if n := len(g.Blockers); n > 0 && g.Blockers[n-1] == reason {
				logRecovery("replan")
				return nil
			}
			logRecovery("block")
			return c.block(ctx, g.ID, reason)
		case goal.StepSucceeded:
		default:
			allSucceeded = false
		}
	}

	if allSucceeded {
		logRecovery("finalize")
		return c.finalize(ctx, g, plan)
	}
	logRecovery("resume")
	return nil
}
