package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/autogoal/internal/goal"
)

func newTestExecutor(t *testing.T, opts Options) (*Executor, string) {
	t.Helper()
	sb := newTestSandbox(t, "rm", "sudo")
	if len(opts.TestCommand) == 0 {
		opts.TestCommand = []string{"sh", "-c", "exit 0"}
	}
	return NewExecutor(sb, opts), sb.Roots()[0]
}

func step(action goal.ActionType, params map[string]any) goal.PlanStep {
	return goal.PlanStep{ActionType: action, Parameters: params}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestExecutor_UnknownAction(t *testing.T) {
	e, _ := newTestExecutor(t, Options{})
	res := e.Execute(context.Background(), step("DELETE_EVERYTHING", nil))
	assert.False(t, res.Success)
	assert.Equal(t, "unknown_action", res.Data["error_kind"])
}

func TestRegistry_RejectsUnknownAction(t *testing.T) {
	r := NewRegistry()
	err := r.Register(fakeHandler{action: "WEB_BROWSE"})
	var unknown *UnknownActionError
	assert.ErrorAs(t, err, &unknown)
	assert.Nil(t, r.Get("WEB_BROWSE"))
}

type fakeHandler struct {
	action goal.ActionType
}

func (f fakeHandler) Action() goal.ActionType { return f.action }

func (f fakeHandler) Scope(map[string]any) (Scope, error) { return Scope{}, nil }

func (f fakeHandler) Run(context.Context, Invocation) (map[string]any, error) {
	panic("boom")
}

func TestExecutor_RecoversHandlerPanic(t *testing.T) {
	e, _ := newTestExecutor(t, Options{})
	require.NoError(t, e.Registry.Register(fakeHandler{action: goal.ActionShellCommand}))

	res := e.Execute(context.Background(), step(goal.ActionShellCommand, nil))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "panicked")
	assert.Equal(t, "execution", res.Data["error_kind"])
}

func TestApplyPatch(t *testing.T) {
	e, root := newTestExecutor(t, Options{})
	target := filepath.Join(root, "bar.py")

	t.Run("exactly once", func(t *testing.T) {
		writeFile(t, target, "def foo():\n    return 1\n")
		res := e.Execute(context.Background(), step(goal.ActionApplyPatch, map[string]any{
			"filepath":     "bar.py",
			"old_fragment": "return 1",
			"new_fragment": "return 2",
		}))
		require.True(t, res.Success, res.Error)
		assert.Equal(t, "def foo():\n    return 2\n", readFile(t, target))
	})

	t.Run("ambiguous", func(t *testing.T) {
		writeFile(t, target, "x = 1\nx = 1\n")
		res := e.Execute(context.Background(), step(goal.ActionApplyPatch, map[string]any{
			"filepath":     "bar.py",
			"old_fragment": "x = 1",
			"new_fragment": "x = 2",
		}))
		assert.False(t, res.Success)
		assert.Equal(t, "ambiguous_or_missing_patch", res.Data["error_kind"])
		assert.Equal(t, "x = 1\nx = 1\n", readFile(t, target))
	})

	t.Run("missing", func(t *testing.T) {
		writeFile(t, target, "y = 1\n")
		res := e.Execute(context.Background(), step(goal.ActionApplyPatch, map[string]any{
			"filepath":     "bar.py",
			"old_fragment": "z = 1",
			"new_fragment": "z = 2",
		}))
		assert.False(t, res.Success)
		assert.Equal(t, "ambiguous_or_missing_patch", res.Data["error_kind"])
	})

	t.Run("outside sandbox", func(t *testing.T) {
		outside := filepath.Join(t.TempDir(), "victim.txt")
		writeFile(t, outside, "keep me")
		res := e.Execute(context.Background(), step(goal.ActionApplyPatch, map[string]any{
			"filepath":     outside,
			"old_fragment": "keep",
			"new_fragment": "lose",
		}))
		assert.False(t, res.Success)
		assert.Equal(t, "out_of_sandbox", res.Data["error_kind"])
		assert.Equal(t, "keep me", readFile(t, outside))
	})
}

func TestCreateFile(t *testing.T) {
	e, root := newTestExecutor(t, Options{})
	ctx := context.Background()

	res := e.Execute(ctx, step(goal.ActionCreateFile, map[string]any{
		"filepath": "services/cache.py",
		"content":  "class Cache:\n    pass\n",
	}))
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "class Cache:\n    pass\n", readFile(t, filepath.Join(root, "services", "cache.py")))

	res = e.Execute(ctx, step(goal.ActionCreateFile, map[string]any{
		"filepath": "services/cache.py",
		"content":  "other",
	}))
	assert.False(t, res.Success)
	assert.Equal(t, "file_already_exists", res.Data["error_kind"])

	res = e.Execute(ctx, step(goal.ActionCreateFile, map[string]any{
		"filepath":  "services/cache.py",
		"content":   "other",
		"overwrite": true,
	}))
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "other", readFile(t, filepath.Join(root, "services", "cache.py")))

	res = e.Execute(ctx, step(goal.ActionCreateFile, map[string]any{
		"filepath": "../escape.txt",
		"content":  "x",
	}))
	assert.False(t, res.Success)
	assert.Equal(t, "out_of_sandbox", res.Data["error_kind"])
}

func TestSearchCodebase(t *testing.T) {
	e, root := newTestExecutor(t, Options{MaxSearchResults: 3})
	ctx := context.Background()
	writeFile(t, filepath.Join(root, "bar.py"), "def foo():\n    return 1\n")
	writeFile(t, filepath.Join(root, "pkg", "baz.go"), "package pkg\n\nfunc Foo() {}\n")
	writeFile(t, filepath.Join(root, ".git", "config"), "def foo")
	writeFile(t, filepath.Join(root, "many.txt"), "hit\nhit\nhit\nhit\nhit\n")

	res := e.Execute(ctx, step(goal.ActionSearchCodebase, map[string]any{
		"query":         "def foo",
		"file_patterns": []string{"*.py"},
	}))
	require.True(t, res.Success, res.Error)
	matches := res.Data["matches"].([]SearchMatch)
	require.Len(t, matches, 1)
	assert.Equal(t, SearchMatch{File: "bar.py", Line: 1, Text: "def foo():"}, matches[0])

	res = e.Execute(ctx, step(goal.ActionSearchCodebase, map[string]any{
		"query": `func \w+\(`,
		"regex": true,
	}))
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 1, res.Data["count"])

	res = e.Execute(ctx, step(goal.ActionSearchCodebase, map[string]any{"query": "hit"}))
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 3, res.Data["count"])
	assert.Equal(t, true, res.Data["truncated"])

	res = e.Execute(ctx, step(goal.ActionSearchCodebase, map[string]any{
		"query":         "nowhere to be found",
		"require_match": true,
	}))
	assert.False(t, res.Success)
	assert.Equal(t, "no_match", res.Data["error_kind"])

	res = e.Execute(ctx, step(goal.ActionSearchCodebase, map[string]any{"query": "x", "path": "/etc"}))
	assert.False(t, res.Success)
	assert.Equal(t, "out_of_sandbox", res.Data["error_kind"])
}

func TestRunTests(t *testing.T) {
	ctx := context.Background()

	t.Run("passing", func(t *testing.T) {
		e, _ := newTestExecutor(t, Options{TestCommand: []string{"sh", "-c", "echo ok; exit 0"}})
		res := e.Execute(ctx, step(goal.ActionRunTests, nil))
		require.True(t, res.Success, res.Error)
		assert.Equal(t, 0, res.Data["exit_code"])
		assert.Equal(t, "ok", res.Data["stdout_tail"])
	})

	t.Run("failing", func(t *testing.T) {
		e, _ := newTestExecutor(t, Options{TestCommand: []string{"sh", "-c", "echo broken >&2; exit 3"}})
		res := e.Execute(ctx, step(goal.ActionRunTests, nil))
		assert.False(t, res.Success)
		assert.Equal(t, "non_zero_exit", res.Data["error_kind"])
		assert.Equal(t, 3, res.Data["exit_code"])
		assert.Equal(t, "broken", res.Data["stderr_tail"])
	})

	t.Run("timeout", func(t *testing.T) {
		e, _ := newTestExecutor(t, Options{
			TestCommand: []string{"sh", "-c", "sleep 30"},
			TestTimeout: time.Second,
		})
		start := time.Now()
		res := e.Execute(ctx, step(goal.ActionRunTests, nil))
		assert.Less(t, time.Since(start), 5*time.Second)
		assert.False(t, res.Success)
		assert.Equal(t, "timeout", res.Data["error_kind"])
		assert.Equal(t, true, res.Data["timed_out"])
		assert.Contains(t, res.Error, "timed out after 1s")
	})

	t.Run("pattern flag", func(t *testing.T) {
		e, _ := newTestExecutor(t, Options{
			TestCommand:     []string{"echo"},
			TestPatternFlag: "-run",
		})
		res := e.Execute(ctx, step(goal.ActionRunTests, map[string]any{"pattern": "TestFoo"}))
		require.True(t, res.Success, res.Error)
		assert.Equal(t, "-run TestFoo", res.Data["stdout_tail"])
	})
}

func TestShellCommand(t *testing.T) {
	e, root := newTestExecutor(t, Options{})
	ctx := context.Background()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0755))

	res := e.Execute(ctx, step(goal.ActionShellCommand, map[string]any{
		"command":     "pwd",
		"working_dir": "sub",
	}))
	require.True(t, res.Success, res.Error)
	assert.Equal(t, filepath.Join(root, "sub"), res.Data["stdout_tail"])

	res = e.Execute(ctx, step(goal.ActionShellCommand, map[string]any{"command": "true && rm -rf sub"}))
	assert.False(t, res.Success)
	assert.Equal(t, "blocked_command", res.Data["error_kind"])
	assert.DirExists(t, filepath.Join(root, "sub"))

	res = e.Execute(ctx, step(goal.ActionShellCommand, map[string]any{"command": "ls", "working_dir": "/"}))
	assert.False(t, res.Success)
	assert.Equal(t, "out_of_sandbox", res.Data["error_kind"])
}

func TestTailBuffer(t *testing.T) {
	var b tailBuffer
	for i := 0; i < 200; i++ {
		_, _ = b.Write([]byte("line\n"))
	}
	tail := b.Tail()
	assert.LessOrEqual(t, len(tail), tailBytes)
	assert.Len(t, splitLines(tail), tailLines)
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func TestSearchCodebase_TruncatesOnRuneBoundary(t *testing.T) {
	e, root := newTestExecutor(t, Options{})
	writeFile(t, filepath.Join(root, "wide.txt"), "x"+strings.Repeat("é", 300)+"\n")

	res := e.Execute(context.Background(), step(goal.ActionSearchCodebase, map[string]any{"query": "x"}))
	require.True(t, res.Success, res.Error)
	matches := res.Data["matches"].([]SearchMatch)
	require.Len(t, matches, 1)
	assert.True(t, utf8.ValidString(matches[0].Text))
	assert.Equal(t, "x"+strings.Repeat("é", 119), matches[0].Text)
}
