package tools

import (
	"context"
	"strings"
	"time"

	"github.com/rahul/autogoal/internal/goal"
)

// RunTestsTool runs the project's configured test command. Callers may narrow
// it with a pattern but cannot change the command or its timeout.
type RunTestsTool struct {
	Command     []string
	PatternFlag string
	Timeout     time.Duration
}

func NewRunTestsTool(command []string, patternFlag string, timeout time.Duration) *RunTestsTool {
	return &RunTestsTool{Command: command, PatternFlag: patternFlag, Timeout: timeout}
}

type runTestsArgs struct {
	Pattern string `json:"pattern"`
}

func (r *RunTestsTool) Action() goal.ActionType {
	return goal.ActionRunTests
}

func (r *RunTestsTool) Scope(params map[string]any) (Scope, error) {
	var args runTestsArgs
	if err := decodeParams(r.Action(), params, &args); err != nil {
		return Scope{}, err
	}
	return Scope{Commands: []string{strings.Join(r.argv(args.Pattern), " ")}}, nil
}

func (r *RunTestsTool) argv(pattern string) []string {
	argv := append([]string(nil), r.Command...)
	if pattern != "" && r.PatternFlag != "" {
		argv = append(argv, r.PatternFlag, pattern)
	}
	return argv
}

func (r *RunTestsTool) Run(ctx context.Context, inv Invocation) (map[string]any, error) {
	var args runTestsArgs
	if err := decodeParams(r.Action(), inv.Params, &args); err != nil {
		return nil, err
	}
	argv := r.argv(args.Pattern)
	res, err := runProcess(ctx, r.Action(), inv.Sandbox.Roots()[0], argv, r.Timeout)
	data := res.data(strings.Join(argv, " "))
	data["timed_out"] = res.TimedOut
	return data, err
}
