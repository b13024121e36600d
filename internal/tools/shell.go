package tools

import (
	"context"
	"strings"
	"time"

	"github.com/rahul/autogoal/internal/goal"
)

// ShellTool runs a single shell command inside the sandbox.
type ShellTool struct {
	Timeout time.Duration
}

func NewShellTool(timeout time.Duration) *ShellTool {
	return &ShellTool{Timeout: timeout}
}

type shellArgs struct {
	Command    string `json:"command"`
	WorkingDir string `json:"working_dir"`
	TimeoutSec int    `json:"timeout"`
}

func (s *ShellTool) Action() goal.ActionType {
	return goal.ActionShellCommand
}

func (s *ShellTool) Scope(params map[string]any) (Scope, error) {
	var args shellArgs
	if err := decodeParams(s.Action(), params, &args); err != nil {
		return Scope{}, err
	}
	if strings.TrimSpace(args.Command) == "" {
		return Scope{}, &InvalidParametersError{Action: s.Action(), Reason: "command is required"}
	}
	scope := Scope{Commands: []string{args.Command}}
	if args.WorkingDir != "" {
		scope.Paths = []string{args.WorkingDir}
	}
	return scope, nil
}

func (s *ShellTool) Run(ctx context.Context, inv Invocation) (map[string]any, error) {
	var args shellArgs
	if err := decodeParams(s.Action(), inv.Params, &args); err != nil {
		return nil, err
	}

	dir := inv.Sandbox.Roots()[0]
	if len(inv.Paths) > 0 {
		dir = inv.Paths[0]
	}
	// A step may shorten the timeout, never extend it.
	timeout := s.Timeout
	if t := time.Duration(args.TimeoutSec) * time.Second; t > 0 && t < timeout {
		timeout = t
	}

	res, err := runProcess(ctx, s.Action(), dir, []string{"sh", "-c", args.Command}, timeout)
	data := res.data(args.Command)
	data["timed_out"] = res.TimedOut
	return data, err
}
