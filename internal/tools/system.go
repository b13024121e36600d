package tools

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rahul/autogoal/internal/goal"
)

const (
	tailLines = 50
	tailBytes = 4096
	waitDelay = 500 * time.Millisecond
)

type processResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

func (r processResult) data(command string) map[string]any {
	return map[string]any{
		"success":     r.ExitCode == 0 && !r.TimedOut,
		"exit_code":   r.ExitCode,
		"stdout_tail": r.Stdout,
		"stderr_tail": r.Stderr,
		"duration_ms": r.Duration.Milliseconds(),
		"command":     command,
	}
}

// runProcess runs argv in dir with a hard deadline. The whole process group is
// killed on timeout so children cannot keep the pipes open.
func runProcess(ctx context.Context, action goal.ActionType, dir string, argv []string, timeout time.Duration) (processResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	var stdout, stderr tailBuffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	start := time.Now()
	err := cmd.Run()
	res := processResult{
		Duration: time.Since(start),
		Stdout:   stdout.Tail(),
		Stderr:   stderr.Tail(),
		ExitCode: -1,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		return res, &TimeoutError{Action: action, Timeout: timeout}
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, &ExitError{Action: action, ExitCode: res.ExitCode}
		}
		return res, err
	}
	return res, nil
}

// tailBuffer keeps only the last tailBytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - tailBytes; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

// Tail returns at most the last tailLines lines.
func (t *tailBuffer) Tail() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := bytes.TrimRight(t.buf, "\n")
	lines := bytes.Split(out, []byte("\n"))
	if len(lines) > tailLines {
		lines = lines[len(lines)-tailLines:]
	}
	return strings.ToValidUTF8(string(bytes.Join(lines, []byte("\n"))), "")
}
