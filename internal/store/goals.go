package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rahul/autogoal/internal/goal"
)

// GoalStore persists goals and their plan steps and owns the goal state machine.
// Mutations are serialised by mu and committed in a single transaction, so
// readers only ever observe whole records.
type GoalStore struct {
	DB  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

func NewGoalStore(db *sql.DB) (*GoalStore, error) {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS goals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			priority INTEGER NOT NULL,
			status TEXT NOT NULL,
			progress REAL NOT NULL DEFAULT 0,
			blockers TEXT NOT NULL DEFAULT '[]',
			parent_id INTEGER REFERENCES goals(id),
			success_criteria TEXT NOT NULL DEFAULT '[]',
			metadata TEXT NOT NULL DEFAULT '{}',
			cancel_requested INTEGER NOT NULL DEFAULT 0,
			resume_requested INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			completed_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_goals_status ON goals(status);`,
		`CREATE INDEX IF NOT EXISTS idx_goals_dedupe ON goals(type, description);`,
		`CREATE TABLE IF NOT EXISTS plan_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			goal_id INTEGER NOT NULL REFERENCES goals(id),
			attempt INTEGER NOT NULL,
			step_number INTEGER NOT NULL,
			action_type TEXT NOT NULL,
			parameters TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL,
			result TEXT,
			created_at TEXT NOT NULL,
			executed_at TEXT,
			UNIQUE(goal_id, attempt, step_number)
		);`,
	}
	if err := migrate(db, queries); err != nil {
		return nil, err
	}
	return &GoalStore{DB: db, now: time.Now}, nil
}

const goalColumns = `id, type, title, description, priority, status, progress, blockers, parent_id,
	success_criteria, metadata, cancel_requested, resume_requested, created_at, updated_at, completed_at`

const stepColumns = `id, goal_id, attempt, step_number, action_type, parameters, status, result, created_at, executed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Create inserts a new goal in PENDING status.
func (s *GoalStore) Create(ctx context.Context, g goal.Goal) (goal.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateNew(g); err != nil {
		return goal.Goal{}, err
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return goal.Goal{}, wrap("create", err)
	}
	defer tx.Rollback()

	created, err := s.insertGoal(ctx, tx, g)
	if err != nil {
		return goal.Goal{}, err
	}
	if err := tx.Commit(); err != nil {
		return goal.Goal{}, wrap("create", err)
	}
	return created, nil
}

// CreateIfAbsent inserts g unless an open goal (PENDING or IN_PROGRESS) with the
// same type and description exists, in which case that goal is returned and
// created is false.
func (s *GoalStore) CreateIfAbsent(ctx context.Context, g goal.Goal) (goal.Goal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateNew(g); err != nil {
		return goal.Goal{}, false, err
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return goal.Goal{}, false, wrap("create", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE type = ? AND description = ? AND status IN (?, ?) ORDER BY id LIMIT 1`,
		string(g.Type), g.Description, string(goal.StatusPending), string(goal.StatusInProgress))
	existing, err := scanGoal(row)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return goal.Goal{}, false, wrap("create", err)
	}

	created, err := s.insertGoal(ctx, tx, g)
	if err != nil {
		return goal.Goal{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return goal.Goal{}, false, wrap("create", err)
	}
	return created, true, nil
}

func validateNew(g goal.Goal) error {
	if !g.Type.Valid() {
		return fmt.Errorf("invalid goal type %q", g.Type)
	}
	if strings.TrimSpace(g.Description) == "" {
		return errors.New("goal description is required")
	}
	return nil
}

func (s *GoalStore) insertGoal(ctx context.Context, tx *sql.Tx, g goal.Goal) (goal.Goal, error) {
	now := s.now().UTC()
	g = g.Clone()
	g.ID = 0
	g.Status = goal.StatusPending
	g.Progress = 0
	g.Blockers = nil
	g.CancelRequested = false
	g.ResumeRequested = false
	g.CreatedAt = now
	g.UpdatedAt = now
	g.CompletedAt = nil
	if g.Title == "" {
		g.Title = g.Description
	}

	blockers, criteria, meta, err := encodeGoalJSON(g)
	if err != nil {
		return goal.Goal{}, err
	}
	var parent any
	if g.ParentID != nil {
		parent = *g.ParentID
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO goals (type, title, description, priority, status, progress, blockers, parent_id,
			success_criteria, metadata, cancel_requested, resume_requested, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		string(g.Type), g.Title, g.Description, g.Priority, string(g.Status), g.Progress, blockers, parent,
		criteria, meta, formatTime(now), formatTime(now))
	if err != nil {
		return goal.Goal{}, wrap("insert goal", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return goal.Goal{}, wrap("insert goal", err)
	}
	g.ID = id
	return g, nil
}

// Get returns a snapshot of one goal.
func (s *GoalStore) Get(ctx context.Context, id int64) (goal.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getGoal(ctx, s.DB, id)
}

func getGoal(ctx context.Context, q queryer, id int64) (goal.Goal, error) {
	row := q.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ?`, id)
	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return goal.Goal{}, &goal.GoalNotFoundError{ID: id}
	}
	if err != nil {
		return goal.Goal{}, wrap("get goal", err)
	}
	return g, nil
}

// List returns goals matching f ordered by id.
func (s *GoalStore) List(ctx context.Context, f Filter) ([]goal.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	query := `SELECT ` + goalColumns + ` FROM goals`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list goals", err)
	}
	defer rows.Close()

	var goals []goal.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, wrap("list goals", err)
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list goals", err)
	}
	return goals, nil
}

// Transition moves a goal to a new status if the transition table allows it.
// The reason is appended to the blockers when the goal becomes BLOCKED or FAILED.
func (s *GoalStore) Transition(ctx context.Context, id int64, to goal.Status, reason string) (goal.Goal, error) {
	return s.mutate(ctx, "transition", id, func(g *goal.Goal, now time.Time) error {
		if !goal.CanTransition(g.Status, to) {
			return &goal.InvalidTransitionError{ID: g.ID, From: g.Status, To: to}
		}
		g.Status = to
		switch to {
		case goal.StatusBlocked:
			if reason == "" {
				reason = "blocked without a reason"
			}
			g.Blockers = append(g.Blockers, reason)
		case goal.StatusFailed:
			if reason != "" {
				g.Blockers = append(g.Blockers, reason)
			}
		case goal.StatusInProgress:
			g.ResumeRequested = false
		}
		if to.IsTerminal() {
			g.CompletedAt = &now
		}
		return nil
	})
}

// UpdateProgress sets the completion fraction, clamped to [0,1].
func (s *GoalStore) UpdateProgress(ctx context.Context, id int64, fraction float64) (goal.Goal, error) {
	return s.mutate(ctx, "update progress", id, func(g *goal.Goal, _ time.Time) error {
		switch {
		case math.IsNaN(fraction) || fraction < 0:
			fraction = 0
		case fraction > 1:
			fraction = 1
		}
		g.Progress = fraction
		return nil
	})
}

// RequestCancel flags a non-terminal goal for cancellation at the next step boundary.
func (s *GoalStore) RequestCancel(ctx context.Context, id int64) (goal.Goal, error) {
	return s.mutate(ctx, "request cancel", id, func(g *goal.Goal, _ time.Time) error {
		if g.Status.IsTerminal() {
			return &goal.InvalidTransitionError{ID: g.ID, From: g.Status, To: goal.StatusFailed}
		}
		g.CancelRequested = true
		return nil
	})
}

// RequestResume flags a BLOCKED goal to be re-planned by the coordinator.
func (s *GoalStore) RequestResume(ctx context.Context, id int64) (goal.Goal, error) {
	return s.mutate(ctx, "request resume", id, func(g *goal.Goal, _ time.Time) error {
		if g.Status != goal.StatusBlocked {
			return &goal.InvalidTransitionError{ID: g.ID, From: g.Status, To: goal.StatusInProgress}
		}
		g.ResumeRequested = true
		return nil
	})
}

func (s *GoalStore) mutate(ctx context.Context, op string, id int64, fn func(g *goal.Goal, now time.Time) error) (goal.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return goal.Goal{}, wrap(op, err)
	}
	defer tx.Rollback()

	g, err := getGoal(ctx, tx, id)
	if err != nil {
		return goal.Goal{}, err
	}
	now := s.now().UTC()
	if err := fn(&g, now); err != nil {
		return goal.Goal{}, err
	}
	g.UpdatedAt = now

	blockers, criteria, meta, err := encodeGoalJSON(g)
	if err != nil {
		return goal.Goal{}, err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE goals SET status = ?, progress = ?, blockers = ?, success_criteria = ?, metadata = ?,
			cancel_requested = ?, resume_requested = ?, updated_at = ?, completed_at = ?
		WHERE id = ?`,
		string(g.Status), g.Progress, blockers, criteria, meta,
		boolInt(g.CancelRequested), boolInt(g.ResumeRequested), formatTime(now), nullTime(g.CompletedAt), g.ID)
	if err != nil {
		return goal.Goal{}, wrap(op, err)
	}
	if err := tx.Commit(); err != nil {
		return goal.Goal{}, wrap(op, err)
	}
	return g, nil
}

// SavePlan stores steps as the next plan attempt for a goal. Step numbers must
// run 1..N without gaps and every action must be part of the vocabulary.
func (s *GoalStore) SavePlan(ctx context.Context, goalID int64, steps []goal.PlanStep) ([]goal.PlanStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(steps) == 0 {
		return nil, &goal.InvalidPlanError{GoalID: goalID, Reason: "plan has no steps"}
	}
	for i, st := range steps {
		if st.StepNumber != i+1 {
			return nil, &goal.InvalidPlanError{GoalID: goalID, Reason: fmt.Sprintf("step %d is numbered %d", i+1, st.StepNumber)}
		}
		if !st.ActionType.Valid() {
			return nil, &goal.InvalidPlanError{GoalID: goalID, Reason: fmt.Sprintf("unknown action %q", st.ActionType)}
		}
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap("save plan", err)
	}
	defer tx.Rollback()

	if _, err := getGoal(ctx, tx, goalID); err != nil {
		return nil, err
	}
	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(attempt) FROM plan_steps WHERE goal_id = ?`, goalID).Scan(&last); err != nil {
		return nil, wrap("save plan", err)
	}
	attempt := int(last.Int64) + 1
	now := s.now().UTC()

	saved := make([]goal.PlanStep, 0, len(steps))
	for _, st := range steps {
		params, err := json.Marshal(nonNilParams(st.Parameters))
		if err != nil {
			return nil, fmt.Errorf("encode step parameters: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO plan_steps (goal_id, attempt, step_number, action_type, parameters, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			goalID, attempt, st.StepNumber, string(st.ActionType), string(params), string(goal.StepPending), formatTime(now))
		if err != nil {
			return nil, wrap("save plan", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, wrap("save plan", err)
		}
		saved = append(saved, goal.PlanStep{
			ID:         id,
			GoalID:     goalID,
			Attempt:    attempt,
			StepNumber: st.StepNumber,
			ActionType: st.ActionType,
			Parameters: cloneParams(st.Parameters),
			Status:     goal.StepPending,
			CreatedAt:  now,
		})
	}
	if err := tx.Commit(); err != nil {
		return nil, wrap("save plan", err)
	}
	return saved, nil
}

// CurrentPlan returns the steps of the latest plan attempt, or nil if the goal has none.
func (s *GoalStore) CurrentPlan(ctx context.Context, goalID int64) ([]goal.PlanStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return currentPlan(ctx, s.DB, goalID)
}

func currentPlan(ctx context.Context, q queryer, goalID int64) ([]goal.PlanStep, error) {
	return querySteps(ctx, q,
		`SELECT `+stepColumns+` FROM plan_steps
		WHERE goal_id = ? AND attempt = (SELECT MAX(attempt) FROM plan_steps WHERE goal_id = ?)
		ORDER BY step_number`, goalID, goalID)
}

// PlanSteps returns every step of every attempt for a goal.
func (s *GoalStore) PlanSteps(ctx context.Context, goalID int64) ([]goal.PlanStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := getGoal(ctx, s.DB, goalID); err != nil {
		return nil, err
	}
	return querySteps(ctx, s.DB,
		`SELECT `+stepColumns+` FROM plan_steps WHERE goal_id = ? ORDER BY attempt, step_number`, goalID)
}

// MarkStepRunning starts a step. It refuses while a sibling is RUNNING or any
// earlier step of the same attempt has not SUCCEEDED.
func (s *GoalStore) MarkStepRunning(ctx context.Context, stepID int64) (goal.PlanStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return goal.PlanStep{}, wrap("start step", err)
	}
	defer tx.Rollback()

	st, err := getStep(ctx, tx, stepID)
	if err != nil {
		return goal.PlanStep{}, err
	}
	if st.Status != goal.StepPending {
		return goal.PlanStep{}, &goal.StepOrderError{GoalID: st.GoalID, StepNumber: st.StepNumber, Reason: "step is " + string(st.Status)}
	}
	siblings, err := querySteps(ctx, tx,
		`SELECT `+stepColumns+` FROM plan_steps WHERE goal_id = ? AND attempt = ? ORDER BY step_number`,
		st.GoalID, st.Attempt)
	if err != nil {
		return goal.PlanStep{}, err
	}
	for _, sib := range siblings {
		if sib.Status == goal.StepRunning {
			return goal.PlanStep{}, &goal.StepOrderError{GoalID: st.GoalID, StepNumber: st.StepNumber,
				Reason: fmt.Sprintf("step %d is running", sib.StepNumber)}
		}
		if sib.StepNumber < st.StepNumber && sib.Status != goal.StepSucceeded {
			return goal.PlanStep{}, &goal.StepOrderError{GoalID: st.GoalID, StepNumber: st.StepNumber,
				Reason: fmt.Sprintf("step %d is %s", sib.StepNumber, sib.Status)}
		}
	}

	now := s.now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE plan_steps SET status = ?, executed_at = ? WHERE id = ?`,
		string(goal.StepRunning), formatTime(now), stepID); err != nil {
		return goal.PlanStep{}, wrap("start step", err)
	}
	if err := tx.Commit(); err != nil {
		return goal.PlanStep{}, wrap("start step", err)
	}
	st.Status = goal.StepRunning
	st.ExecutedAt = &now
	return st, nil
}

// CompleteStep resolves a RUNNING step with its result.
func (s *GoalStore) CompleteStep(ctx context.Context, stepID int64, result goal.StepResult) (goal.PlanStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return goal.PlanStep{}, wrap("complete step", err)
	}
	defer tx.Rollback()

	st, err := getStep(ctx, tx, stepID)
	if err != nil {
		return goal.PlanStep{}, err
	}
	if st.Status != goal.StepRunning {
		return goal.PlanStep{}, &goal.StepOrderError{GoalID: st.GoalID, StepNumber: st.StepNumber, Reason: "step is not running"}
	}
	status := goal.StepFailed
	if result.Success {
		status = goal.StepSucceeded
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return goal.PlanStep{}, fmt.Errorf("encode step result: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE plan_steps SET status = ?, result = ? WHERE id = ?`,
		string(status), string(encoded), stepID); err != nil {
		return goal.PlanStep{}, wrap("complete step", err)
	}
	if err := tx.Commit(); err != nil {
		return goal.PlanStep{}, wrap("complete step", err)
	}
	st.Status = status
	st.Result = &result
	return st, nil
}

// StepNotFoundError is returned when a plan step ID does not exist.
type StepNotFoundError struct {
	ID int64
}

func (e *StepNotFoundError) Error() string {
	return fmt.Sprintf("plan step not found: %d", e.ID)
}

func getStep(ctx context.Context, q queryer, id int64) (goal.PlanStep, error) {
	st, err := scanStep(q.QueryRowContext(ctx, `SELECT `+stepColumns+` FROM plan_steps WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return goal.PlanStep{}, &StepNotFoundError{ID: id}
	}
	if err != nil {
		return goal.PlanStep{}, wrap("get step", err)
	}
	return st, nil
}

func querySteps(ctx context.Context, q queryer, query string, args ...any) ([]goal.PlanStep, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list steps", err)
	}
	defer rows.Close()

	var steps []goal.PlanStep
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, wrap("list steps", err)
		}
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list steps", err)
	}
	return steps, nil
}

func scanGoal(r rowScanner) (goal.Goal, error) {
	var (
		g                        goal.Goal
		typ, status              string
		blockers, criteria, meta string
		parent                   sql.NullInt64
		cancel, resume           int
		createdAt, updatedAt     string
		completedAt              sql.NullString
	)
	err := r.Scan(&g.ID, &typ, &g.Title, &g.Description, &g.Priority, &status, &g.Progress, &blockers, &parent,
		&criteria, &meta, &cancel, &resume, &createdAt, &updatedAt, &completedAt)
	if err != nil {
		return goal.Goal{}, err
	}
	g.Type = goal.Type(typ)
	g.Status = goal.Status(status)
	g.CancelRequested = cancel != 0
	g.ResumeRequested = resume != 0
	if parent.Valid {
		id := parent.Int64
		g.ParentID = &id
	}
	if err := json.Unmarshal([]byte(blockers), &g.Blockers); err != nil {
		return goal.Goal{}, fmt.Errorf("decode blockers: %w", err)
	}
	if err := json.Unmarshal([]byte(criteria), &g.SuccessCriteria); err != nil {
		return goal.Goal{}, fmt.Errorf("decode success criteria: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &g.Metadata); err != nil {
		return goal.Goal{}, fmt.Errorf("decode metadata: %w", err)
	}
	if g.CreatedAt, err = parseTime(createdAt); err != nil {
		return goal.Goal{}, err
	}
	if g.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return goal.Goal{}, err
	}
	if g.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return goal.Goal{}, err
	}
	return g, nil
}

func scanStep(r rowScanner) (goal.PlanStep, error) {
	var (
		st                     goal.PlanStep
		action, status, params string
		result, executedAt     sql.NullString
		createdAt              string
	)
	err := r.Scan(&st.ID, &st.GoalID, &st.Attempt, &st.StepNumber, &action, &params, &status, &result, &createdAt, &executedAt)
	if err != nil {
		return goal.PlanStep{}, err
	}
	st.ActionType = goal.ActionType(action)
	st.Status = goal.StepStatus(status)
	if err := json.Unmarshal([]byte(params), &st.Parameters); err != nil {
		return goal.PlanStep{}, fmt.Errorf("decode step parameters: %w", err)
	}
	if result.Valid && result.String != "" {
		var res goal.StepResult
		if err := json.Unmarshal([]byte(result.String), &res); err != nil {
			return goal.PlanStep{}, fmt.Errorf("decode step result: %w", err)
		}
		st.Result = &res
	}
	if st.CreatedAt, err = parseTime(createdAt); err != nil {
		return goal.PlanStep{}, err
	}
	if st.ExecutedAt, err = parseNullTime(executedAt); err != nil {
		return goal.PlanStep{}, err
	}
	return st, nil
}

func encodeGoalJSON(g goal.Goal) (blockers, criteria, meta string, err error) {
	b, err := json.Marshal(nonNilStrings(g.Blockers))
	if err != nil {
		return "", "", "", fmt.Errorf("encode blockers: %w", err)
	}
	c, err := json.Marshal(nonNilStrings(g.SuccessCriteria))
	if err != nil {
		return "", "", "", fmt.Errorf("encode success criteria: %w", err)
	}
	m := g.Metadata
	if m == nil {
		m = map[string]string{}
	}
	mb, err := json.Marshal(m)
	if err != nil {
		return "", "", "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), string(c), string(mb), nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilParams(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return p
}

func cloneParams(p map[string]any) map[string]any {
	c := make(map[string]any, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
