package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rahul/autogoal/internal/goal"
	"github.com/rahul/autogoal/internal/governance"
	"github.com/rahul/autogoal/internal/scanner"
	"github.com/rahul/autogoal/internal/store"
	"github.com/rahul/autogoal/internal/tools"
)

type fakeMessenger struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *fakeMessenger) Send(_ string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, text)
	return m.err
}

func (m *fakeMessenger) messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

type harness struct {
	root      string
	db        interface{ Close() error }
	goals     *store.GoalStore
	memory    *store.HistoryStore
	coord     *Coordinator
	engine    *Engine
	messenger *fakeMessenger
}

type harnessOption func(cfg *CoordinatorConfig, opts *tools.Options)

func withTestCommand(timeout time.Duration, argv ...string) harnessOption {
	return func(_ *CoordinatorConfig, opts *tools.Options) {
		opts.TestCommand = argv
		opts.TestTimeout = timeout
	}
}

func withGate(gate governance.PolicyEngine) harnessOption {
	return func(cfg *CoordinatorConfig, _ *tools.Options) {
		cfg.Gate = gate
	}
}

func newHarness(t *testing.T, options ...harnessOption) *harness {
	t.Helper()
	root := t.TempDir()
	sb, err := tools.NewSandbox([]string{root}, []string{"rm", "sudo"})
	require.NoError(t, err)

	db, err := store.Open(filepath.Join(t.TempDir(), "autogoal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	goals, err := store.NewGoalStore(db)
	require.NoError(t, err)
	memory, err := store.NewHistoryStore(db)
	require.NoError(t, err)

	opts := tools.Options{TestCommand: []string{"sh", "-c", "exit 0"}}
	messenger := &fakeMessenger{}
	cfg := CoordinatorConfig{
		Store:     goals,
		Memory:    memory,
		Messenger: messenger,
		Interval:  20 * time.Millisecond,
	}
	for _, o := range options {
		o(&cfg, &opts)
	}
	cfg.Executor = tools.NewExecutor(sb, opts)
	cfg.Planner = NewPlanner(sb, nil, "uptime")

	coord, err := NewCoordinator(cfg)
	require.NoError(t, err)

	return &harness{
		root:      sb.Roots()[0],
		db:        db,
		goals:     goals,
		memory:    memory,
		coord:     coord,
		engine:    NewEngine(goals, cfg.Gate, coord.Status(), nil, nil),
		messenger: messenger,
	}
}

func (h *harness) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(h.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func (h *harness) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(h.root, rel))
	require.NoError(t, err)
	return string(data)
}

func (h *harness) get(t *testing.T, id int64) goal.Goal {
	t.Helper()
	g, err := h.goals.Get(context.Background(), id)
	require.NoError(t, err)
	return g
}

func TestCoordinator_MaintenanceEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.write(t, "bar.py", "def foo():\n    return 1\n")

	cq, err := scanner.NewCodeQualityScan(h.root, nil, nil, 10)
	require.NoError(t, err)
	h.coord.cfg.Scanner = scanner.New(nil, cq)

	require.NoError(t, h.coord.RunCycle(ctx))

	all, err := h.engine.ListGoals(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	g := all[0]
	assert.Equal(t, goal.TypeMaintenance, g.Type)
	assert.Equal(t, "Add documentation to `foo` in `bar.py`", g.Description)
	assert.Equal(t, goal.StatusCompleted, g.Status)
	assert.Equal(t, 1.0, g.Progress)
	require.NotNil(t, g.CompletedAt)

	assert.Equal(t, "def foo():\n    \"\"\"Documentation for foo.\"\"\"\n    return 1\n", h.read(t, "bar.py"))

	steps, err := h.engine.GetPlanSteps(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	for i, want := range []goal.ActionType{goal.ActionSearchCodebase, goal.ActionApplyPatch, goal.ActionRunTests} {
		assert.Equal(t, want, steps[i].ActionType)
		assert.Equal(t, goal.StepSucceeded, steps[i].Status)
		assert.Equal(t, i+1, steps[i].StepNumber)
	}

	recs, err := h.memory.Records(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, store.KindGoalSummary, recs[0].Kind)
	assert.Contains(t, h.messenger.messages()[0], "completed")

	// The symbol is documented now, so the next scan yields no new goal.
	require.NoError(t, h.coord.RunCycle(ctx))
	all, err = h.engine.ListGoals(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCoordinator_HaltsOnFirstFailure(t *testing.T) {
	h := newHarness(t, withTestCommand(5*time.Second, "sh", "-c", "touch ran"))
	ctx := context.Background()
	h.write(t, "app.py", "x = 1\nx = 1\n")

	g, err := h.engine.SubmitGoal(ctx, Submission{
		Description: "Bump the counter in app.py",
		Type:        goal.TypeDevelopment,
		Metadata: map[string]string{
			goal.MetaTargetFile:  "app.py",
			goal.MetaOldFragment: "x = 1",
			goal.MetaNewFragment: "x = 2",
		},
	})
	require.NoError(t, err)

	require.NoError(t, h.coord.RunCycle(ctx))

	got := h.get(t, g.ID)
	assert.Equal(t, goal.StatusBlocked, got.Status)
	assert.Equal(t, "patch fragment is ambiguous in app.py: 2 occurrences", got.LastBlocker())

	steps, err := h.goals.CurrentPlan(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, goal.StepSucceeded, steps[0].Status)
	assert.Equal(t, goal.StepFailed, steps[1].Status)
	assert.Equal(t, goal.StepPending, steps[2].Status)
	assert.NoFileExists(t, filepath.Join(h.root, "ran"))
	assert.Equal(t, "x = 1\nx = 1\n", h.read(t, "app.py"))

	// BLOCKED is never retried automatically.
	require.NoError(t, h.coord.RunCycle(ctx))
	assert.Equal(t, goal.StatusBlocked, h.get(t, g.ID).Status)
}

func TestCoordinator_TimeoutBlocksGoal(t *testing.T) {
	h := newHarness(t, withTestCommand(time.Second, "sh", "-c", "sleep 30"))
	ctx := context.Background()
	h.write(t, "bar.py", "def foo():\n    return 1\n")

	g, err := h.engine.SubmitGoal(ctx, Submission{Description: "Add documentation to `foo` in `bar.py`"})
	require.NoError(t, err)
	assert.Equal(t, goal.TypeMaintenance, g.Type)

	start := time.Now()
	require.NoError(t, h.coord.RunCycle(ctx))
	assert.Less(t, time.Since(start), 10*time.Second)

	got := h.get(t, g.ID)
	assert.Equal(t, goal.StatusBlocked, got.Status)
	assert.Contains(t, got.LastBlocker(), "timed out")
}

func TestCoordinator_PriorityOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ids := map[int]int64{}
	for _, p := range []int{3, 1, 2} {
		g, err := h.engine.SubmitGoal(ctx, Submission{
			Description: "Research topic: topic " + string(rune('a'+p)),
			Type:        goal.TypeResearch,
			Priority:    p,
		})
		require.NoError(t, err)
		ids[p] = g.ID
	}

	for _, p := range []int{1, 2, 3} {
		require.NoError(t, h.coord.RunCycle(ctx))
		assert.Equal(t, goal.StatusCompleted, h.get(t, ids[p]).Status, "priority %d", p)
		for _, later := range []int{1, 2, 3} {
			if later > p {
				assert.Equal(t, goal.StatusPending, h.get(t, ids[later]).Status)
			}
		}
	}

	// Research steps are recorded in memory alongside the summary.
	recs, err := h.memory.Records(ctx, ids[1])
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, store.KindFinding, recs[0].Kind)
}

func TestCoordinator_PolicyDenialBlocks(t *testing.T) {
	gate := governance.NewDefaultPolicyEngine()
	require.NoError(t, gate.DenyArguments(`(?i)production`))
	h := newHarness(t, withGate(gate))
	ctx := context.Background()

	g, err := h.goals.Create(ctx, goal.Goal{
		Type:        goal.TypeDevelopment,
		Description: "create service `production/deploy.py`",
		Priority:    1,
	})
	require.NoError(t, err)

	require.NoError(t, h.coord.RunCycle(ctx))

	got := h.get(t, g.ID)
	assert.Equal(t, goal.StatusBlocked, got.Status)
	assert.Contains(t, got.LastBlocker(), "restricted pattern")
	steps, err := h.goals.PlanSteps(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, steps)
	assert.NoFileExists(t, filepath.Join(h.root, "production", "deploy.py"))
}

func TestCoordinator_UnplannableBlocks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	g, err := h.engine.SubmitGoal(ctx, Submission{Description: "Make everything better somehow", Type: goal.TypeDevelopment})
	require.NoError(t, err)
	require.NoError(t, h.coord.RunCycle(ctx))

	got := h.get(t, g.ID)
	assert.Equal(t, goal.StatusBlocked, got.Status)
	assert.Contains(t, got.LastBlocker(), "unplannable")
}

func TestCoordinator_CreatesServiceFile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	g, err := h.engine.SubmitGoal(ctx, Submission{Description: "Create service `services/cache.py`"})
	require.NoError(t, err)
	assert.Equal(t, goal.TypeDevelopment, g.Type)

	require.NoError(t, h.coord.RunCycle(ctx))
	assert.Equal(t, goal.StatusCompleted, h.get(t, g.ID).Status)
	assert.Equal(t, "\"\"\"cache module.\"\"\"\n", h.read(t, "services/cache.py"))
}

func TestCoordinator_ResumeReplans(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	g, err := h.engine.SubmitGoal(ctx, Submission{Description: "Add documentation to `foo` in `bar.py`"})
	require.NoError(t, err)
	require.NoError(t, h.coord.RunCycle(ctx))
	require.Equal(t, goal.StatusBlocked, h.get(t, g.ID).Status)

	h.write(t, "bar.py", "def foo():\n    return 1\n")
	_, err = h.engine.ResumeGoal(ctx, g.ID)
	require.NoError(t, err)
	require.NoError(t, h.coord.RunCycle(ctx))

	got := h.get(t, g.ID)
	assert.Equal(t, goal.StatusCompleted, got.Status)
	assert.False(t, got.ResumeRequested)
}

func TestCoordinator_CancelRequests(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	blocked, err := h.engine.SubmitGoal(ctx, Submission{Description: "Add documentation to `foo` in `missing.py`"})
	require.NoError(t, err)
	require.NoError(t, h.coord.RunCycle(ctx))
	require.Equal(t, goal.StatusBlocked, h.get(t, blocked.ID).Status)

	pending, err := h.engine.SubmitGoal(ctx, Submission{Description: "Research topic: sqlite", Type: goal.TypeResearch})
	require.NoError(t, err)

	_, err = h.engine.CancelGoal(ctx, blocked.ID)
	require.NoError(t, err)
	_, err = h.engine.CancelGoal(ctx, pending.ID)
	require.NoError(t, err)

	require.NoError(t, h.coord.RunCycle(ctx))
	assert.Equal(t, goal.StatusFailed, h.get(t, blocked.ID).Status)
	got := h.get(t, pending.ID)
	assert.Equal(t, goal.StatusFailed, got.Status)
	assert.Equal(t, reasonCancelled, got.LastBlocker())

	_, err = h.engine.CancelGoal(ctx, pending.ID)
	var invalid *goal.InvalidTransitionError
	assert.ErrorAs(t, err, &invalid)
}

func TestCoordinator_RecoverInterruptedStep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	g, err := h.goals.Create(ctx, goal.Goal{Type: goal.TypeResearch, Description: "Research topic: wal", Priority: 5})
	require.NoError(t, err)
	_, err = h.goals.Transition(ctx, g.ID, goal.StatusInProgress, "")
	require.NoError(t, err)
	steps, err := h.goals.SavePlan(ctx, g.ID, []goal.PlanStep{
		{StepNumber: 1, ActionType: goal.ActionSearchCodebase, Parameters: map[string]any{"query": "wal"}},
		{StepNumber: 2, ActionType: goal.ActionRunTests},
	})
	require.NoError(t, err)
	_, err = h.goals.MarkStepRunning(ctx, steps[0].ID)
	require.NoError(t, err)

	require.NoError(t, h.coord.Recover(ctx))

	got := h.get(t, g.ID)
	assert.Equal(t, goal.StatusBlocked, got.Status)
	assert.Contains(t, got.LastBlocker(), "interrupted by restart")
	plan, err := h.goals.CurrentPlan(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, goal.StepFailed, plan[0].Status)
	assert.Equal(t, goal.StepPending, plan[1].Status)
}

func TestCoordinator_RecoverFailedStep(t *testing.T) {
	setup := func(t *testing.T, h *harness) goal.Goal {
		t.Helper()
		ctx := context.Background()
		g, err := h.goals.Create(ctx, goal.Goal{Type: goal.TypeResearch, Description: "Research topic: wal", Priority: 5})
		require.NoError(t, err)
		_, err = h.goals.Transition(ctx, g.ID, goal.StatusInProgress, "")
		require.NoError(t, err)
		steps, err := h.goals.SavePlan(ctx, g.ID, []goal.PlanStep{
			{StepNumber: 1, ActionType: goal.ActionSearchCodebase, Parameters: map[string]any{"query": "wal"}},
			{StepNumber: 2, ActionType: goal.ActionRunTests},
		})
		require.NoError(t, err)
		_, err = h.goals.MarkStepRunning(ctx, steps[0].ID)
		require.NoError(t, err)
		_, err = h.goals.CompleteStep(ctx, steps[0].ID, goal.StepResult{Success: false, Error: "no matches for wal"})
		require.NoError(t, err)
		return g
	}

	t.Run("crash before block", func(t *testing.T) {
		h := newHarness(t)
		g := setup(t, h)

		require.NoError(t, h.coord.Recover(context.Background()))
		got := h.get(t, g.ID)
		assert.Equal(t, goal.StatusBlocked, got.Status)
		assert.Equal(t, "no matches for wal", got.LastBlocker())

		// The failed goal is not picked up again without an operator.
		require.NoError(t, h.coord.RunCycle(context.Background()))
		assert.Equal(t, goal.StatusBlocked, h.get(t, g.ID).Status)
	})

	t.Run("resumed by operator", func(t *testing.T) {
		h := newHarness(t)
		g := setup(t, h)
		ctx := context.Background()
		_, err := h.goals.Transition(ctx, g.ID, goal.StatusBlocked, "no matches for wal")
		require.NoError(t, err)
		_, err = h.goals.Transition(ctx, g.ID, goal.StatusInProgress, "resumed by operator")
		require.NoError(t, err)

		require.NoError(t, h.coord.Recover(ctx))
		assert.Equal(t, goal.StatusInProgress, h.get(t, g.ID).Status)
	})
}

func TestCoordinator_RecoverFinalizesAndResumes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	done, err := h.goals.Create(ctx, goal.Goal{Type: goal.TypeResearch, Description: "Research topic: done", Priority: 5})
	require.NoError(t, err)
	_, err = h.goals.Transition(ctx, done.ID, goal.StatusInProgress, "")
	require.NoError(t, err)
	steps, err := h.goals.SavePlan(ctx, done.ID, []goal.PlanStep{
		{StepNumber: 1, ActionType: goal.ActionSearchCodebase, Parameters: map[string]any{"query": "done"}},
	})
	require.NoError(t, err)
	_, err = h.goals.MarkStepRunning(ctx, steps[0].ID)
	require.NoError(t, err)
	_, err = h.goals.CompleteStep(ctx, steps[0].ID, goal.StepResult{Success: true})
	require.NoError(t, err)

	require.NoError(t, h.coord.Recover(ctx))
	assert.Equal(t, goal.StatusCompleted, h.get(t, done.ID).Status)

	// A goal with pending steps resumes from the first of them on the next cycle.
	resumed, err := h.goals.Create(ctx, goal.Goal{Type: goal.TypeResearch, Description: "Research topic: resume", Priority: 5})
	require.NoError(t, err)
	_, err = h.goals.Transition(ctx, resumed.ID, goal.StatusInProgress, "")
	require.NoError(t, err)
	_, err = h.goals.SavePlan(ctx, resumed.ID, []goal.PlanStep{
		{StepNumber: 1, ActionType: goal.ActionSearchCodebase, Parameters: map[string]any{"query": "resume"}},
	})
	require.NoError(t, err)

	require.NoError(t, h.coord.Recover(ctx))
	assert.Equal(t, goal.StatusInProgress, h.get(t, resumed.ID).Status)
	require.NoError(t, h.coord.RunCycle(ctx))
	assert.Equal(t, goal.StatusCompleted, h.get(t, resumed.ID).Status)
	all, err := h.goals.PlanSteps(ctx, resumed.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

type panickyPlanner struct{}

func (panickyPlanner) Plan(context.Context, goal.Goal) ([]goal.PlanStep, error) {
	panic("planner bug")
}

func TestCoordinator_PanicBlocksSelectedGoal(t *testing.T) {
	h := newHarness(t)
	h.coord.cfg.Planner = panickyPlanner{}
	ctx := context.Background()

	g, err := h.engine.SubmitGoal(ctx, Submission{Description: "Research topic: panics", Type: goal.TypeResearch})
	require.NoError(t, err)

	require.NoError(t, h.coord.RunCycle(ctx))
	got := h.get(t, g.ID)
	assert.Equal(t, goal.StatusBlocked, got.Status)
	assert.Contains(t, got.LastBlocker(), "planner bug")
}

func TestCoordinator_MessengerFailureIgnored(t *testing.T) {
	h := newHarness(t)
	h.messenger.err = errors.New("gateway down")
	ctx := context.Background()

	g, err := h.engine.SubmitGoal(ctx, Submission{Description: "Research topic: outages", Type: goal.TypeResearch})
	require.NoError(t, err)

	require.NoError(t, h.coord.RunCycle(ctx))
	assert.Equal(t, goal.StatusCompleted, h.get(t, g.ID).Status)
}

func TestCoordinator_AtMostOneInProgress(t *testing.T) {
	h := newHarness(t, withTestCommand(5*time.Second, "sh", "-c", "exit 1"))
	ctx := context.Background()
	h.write(t, "a.py", "def a():\n    return 1\n")
	h.write(t, "b.py", "def b():\n    return 1\n")

	for _, d := range []string{"Add documentation to `a` in `a.py`", "Add documentation to `b` in `b.py`"} {
		_, err := h.engine.SubmitGoal(ctx, Submission{Description: d})
		require.NoError(t, err)
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, h.coord.RunCycle(ctx))
		inProgress := goal.StatusInProgress
		active, err := h.engine.ListGoals(ctx, &inProgress)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(active), 1)
	}
}

func TestCoordinator_StartStopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.coord.Start(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not stop")
	}
	assert.Positive(t, h.coord.Status().Snapshot().Cycles)
	require.NoError(t, h.db.Close())
}

func TestCoordinator_StartFailsWhenStoreUnavailable(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.db.Close())

	err := h.coord.Start(context.Background())
	require.Error(t, err)
	assert.True(t, store.IsUnavailable(err))
}

func TestNewCoordinator_RequiresCollaborators(t *testing.T) {
	_, err := NewCoordinator(CoordinatorConfig{})
	assert.Error(t, err)
}

func TestCoordinator_SubmittedDocstringGoal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.write(t, "bar.py", "def foo():\n    return 1\n")

	g, err := h.engine.SubmitGoal(ctx, Submission{Description: "Add docstring to `foo()` in `bar.py`", Priority: 1})
	require.NoError(t, err)
	assert.Equal(t, goal.TypeMaintenance, g.Type)
	assert.Equal(t, 1, g.Priority)

	require.NoError(t, h.coord.RunCycle(ctx))

	got := h.get(t, g.ID)
	assert.Equal(t, goal.StatusCompleted, got.Status)
	assert.Equal(t, 1.0, got.Progress)
	steps, err := h.goals.CurrentPlan(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []goal.ActionType{goal.ActionSearchCodebase, goal.ActionApplyPatch, goal.ActionRunTests}, actions(steps))
	assert.Contains(t, h.read(t, "bar.py"), `"""Documentation for foo."""`)
}
