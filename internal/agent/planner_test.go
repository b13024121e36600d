package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/autogoal/internal/goal"
	"github.com/rahul/autogoal/internal/scanner"
	"github.com/rahul/autogoal/internal/tools"
)

func newTestPlanner(t *testing.T, files map[string]string) *Planner {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	sb, err := tools.NewSandbox([]string{root}, nil)
	require.NoError(t, err)
	return NewPlanner(sb, nil, "uptime")
}

func actions(steps []goal.PlanStep) []goal.ActionType {
	out := make([]goal.ActionType, len(steps))
	for i, s := range steps {
		out[i] = s.ActionType
	}
	return out
}

func TestPlanner_MaintenancePython(t *testing.T) {
	p := newTestPlanner(t, map[string]string{
		"bar.py": "import os\n\nclass Greeter:\n    def hello(self, name):\n        return name\n",
	})
	g := goal.Goal{
		ID:          4,
		Type:        goal.TypeMaintenance,
		Description: "Add documentation to `Greeter.hello` in `bar.py`",
		Metadata:    map[string]string{goal.MetaTestPattern: "test_hello"},
	}

	steps, err := p.Plan(context.Background(), g)
	require.NoError(t, err)
	require.Equal(t, []goal.ActionType{goal.ActionSearchCodebase, goal.ActionApplyPatch, goal.ActionRunTests}, actions(steps))

	for i, s := range steps {
		assert.Equal(t, i+1, s.StepNumber)
		assert.Equal(t, int64(4), s.GoalID)
		assert.Equal(t, goal.StepPending, s.Status)
	}
	assert.Equal(t, "def hello(self, name):", steps[0].Parameters["query"])
	assert.Equal(t, "bar.py", steps[0].Parameters["path"])
	assert.Equal(t, "    def hello(self, name):\n        return name", steps[1].Parameters["old_fragment"])
	assert.Equal(t, "    def hello(self, name):\n        \"\"\"Documentation for hello.\"\"\"\n        return name", steps[1].Parameters["new_fragment"])
	assert.Equal(t, "test_hello", steps[2].Parameters["pattern"])

	again, err := p.Plan(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, steps, again)
}

func TestPlanner_MaintenanceGo(t *testing.T) {
	p := newTestPlanner(t, map[string]string{
		"svc/run.go": "package svc\n\nfunc Run(n int) int {\n\treturn n\n}\n",
	})
	steps, err := p.Plan(context.Background(), goal.Goal{
		Type:     goal.TypeMaintenance,
		Metadata: map[string]string{goal.MetaFile: "svc/run.go", goal.MetaSymbol: "Run"},
	})
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, "func Run(n int) int {", steps[1].Parameters["old_fragment"])
	assert.Equal(t, "// Run documentation.\nfunc Run(n int) int {", steps[1].Parameters["new_fragment"])
}

func TestPlanner_MaintenanceUnplannable(t *testing.T) {
	p := newTestPlanner(t, map[string]string{
		"done.py": "def ok():\n    \"\"\"Already here.\"\"\"\n    return 1\n",
	})
	tests := map[string]string{
		"no target":    "Tidy things up",
		"missing file": "Add documentation to `foo` in `missing.py`",
		"documented":   "Add documentation to `ok` in `done.py`",
		"outside":      "Add documentation to `foo` in `../../etc/passwd`",
	}
	for name, desc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := p.Plan(context.Background(), goal.Goal{Type: goal.TypeMaintenance, Description: desc})
			var unplannable *goal.UnplannableGoalError
			assert.ErrorAs(t, err, &unplannable)
		})
	}
}

func TestPlanner_Development(t *testing.T) {
	p := newTestPlanner(t, nil)

	steps, err := p.Plan(context.Background(), goal.Goal{
		Type:        goal.TypeDevelopment,
		Description: "Create service `api/handlers.go`",
	})
	require.NoError(t, err)
	assert.Equal(t, []goal.ActionType{goal.ActionSearchCodebase, goal.ActionCreateFile, goal.ActionRunTests}, actions(steps))
	assert.Equal(t, "handlers", steps[0].Parameters["query"])
	assert.Equal(t, "api/handlers.go", steps[1].Parameters["filepath"])
	assert.Equal(t, "// Package api provides handlers.\npackage api\n", steps[1].Parameters["content"])

	steps, err = p.Plan(context.Background(), goal.Goal{
		Type:        goal.TypeImprovement,
		Description: "Replace `retries = 1` with `retries = 3` in `client.py`",
	})
	require.NoError(t, err)
	assert.Equal(t, []goal.ActionType{goal.ActionSearchCodebase, goal.ActionApplyPatch, goal.ActionRunTests}, actions(steps))
	assert.Equal(t, "retries = 1", steps[0].Parameters["query"])
	assert.Equal(t, true, steps[0].Parameters["require_match"])
	assert.Equal(t, "client.py", steps[1].Parameters["filepath"])
	assert.Equal(t, "retries = 3", steps[1].Parameters["new_fragment"])

	_, err = p.Plan(context.Background(), goal.Goal{Type: goal.TypeDevelopment, Description: "Make it better"})
	var unplannable *goal.UnplannableGoalError
	assert.ErrorAs(t, err, &unplannable)
}

func TestPlanner_ResearchAndOptimization(t *testing.T) {
	p := newTestPlanner(t, nil)

	steps, err := p.Plan(context.Background(), goal.Goal{
		Type:        goal.TypeResearch,
		Description: "Research topic: WAL checkpoints",
	})
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, goal.ActionSearchCodebase, steps[0].ActionType)
	assert.Equal(t, `(?i)WAL checkpoints`, steps[0].Parameters["query"])
	assert.True(t, steps[0].Records())

	steps, err = p.Plan(context.Background(), goal.Goal{
		Type:        goal.TypeOptimization,
		Description: "Reduce cpu utilization above 85.0%",
	})
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, goal.ActionShellCommand, steps[0].ActionType)
	assert.Equal(t, "uptime", steps[0].Parameters["command"])
	assert.True(t, steps[0].Records())

	p.DiagnosticCommand = ""
	_, err = p.Plan(context.Background(), goal.Goal{Type: goal.TypeOptimization, Description: "Reduce load"})
	var unplannable *goal.UnplannableGoalError
	assert.ErrorAs(t, err, &unplannable)
}

func TestPlanner_MaintenanceFromNestedScanRoot(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "src", "pkg", "bar.py")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("def foo():\n    return 1\n"), 0644))

	sb, err := tools.NewSandbox([]string{root}, nil)
	require.NoError(t, err)
	scan, err := scanner.NewCodeQualityScan(filepath.Join(root, "src"), nil, nil, 10)
	require.NoError(t, err)
	scan.Base = sb.Roots()[0]

	findings, err := scan.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, findings, 1)

	g, ok := NewGenerator(nil).Build(findings[0])
	require.True(t, ok)
	g.ID = 1

	steps, err := NewPlanner(sb, nil, "uptime").Plan(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, "src/pkg/bar.py", steps[1].Parameters["filepath"])
}

func TestPlanner_MaintenanceCRLF(t *testing.T) {
	files := map[string]string{
		"crlf.py": "def foo():\r\n    return 1\r\n",
		"crlf.go": "package crlf\r\n\r\nfunc Run() {\r\n}\r\n",
	}
	want := map[string]string{
		"crlf.py": "def foo():\r\n    \"\"\"Documentation for foo.\"\"\"\r\n    return 1\r\n",
		"crlf.go": "package crlf\r\n\r\n// Run documentation.\r\nfunc Run() {\r\n}\r\n",
	}
	symbols := map[string]string{"crlf.py": "foo", "crlf.go": "Run"}

	p := newTestPlanner(t, files)
	executor := tools.NewExecutor(p.Sandbox, tools.Options{})
	for file, symbol := range symbols {
		t.Run(file, func(t *testing.T) {
			steps, err := p.Plan(context.Background(), goal.Goal{
				ID:       1,
				Type:     goal.TypeMaintenance,
				Metadata: map[string]string{goal.MetaFile: file, goal.MetaSymbol: symbol},
			})
			require.NoError(t, err)

			res := executor.Execute(context.Background(), steps[1])
			require.True(t, res.Success, res.Error)
			data, err := os.ReadFile(filepath.Join(p.Sandbox.Roots()[0], file))
			require.NoError(t, err)
			assert.Equal(t, want[file], string(data))
		})
	}
}
