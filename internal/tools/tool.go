package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rahul/autogoal/internal/goal"
)

// Scope lists every filesystem path and command a step will touch. The
// executor checks all of it against the sandbox before a handler runs.
type Scope struct {
	Paths    []string
	Commands []string
}

// Invocation is what a handler receives once its scope has been approved.
// Paths holds the resolved form of Scope.Paths, in the same order.
type Invocation struct {
	Params  map[string]any
	Paths   []string
	Sandbox *Sandbox
}

// Handler implements one action of the closed vocabulary.
type Handler interface {
	Action() goal.ActionType
	Scope(params map[string]any) (Scope, error)
	Run(ctx context.Context, inv Invocation) (map[string]any, error)
}

// Registry manages the set of available handlers.
type Registry struct {
	Handlers map[goal.ActionType]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		Handlers: make(map[goal.ActionType]Handler),
	}
}

// Register adds h. Action types outside the vocabulary are refused.
func (r *Registry) Register(h Handler) error {
	if !h.Action().Valid() {
		return &UnknownActionError{Action: h.Action()}
	}
	r.Handlers[h.Action()] = h
	return nil
}

func (r *Registry) Get(action goal.ActionType) Handler {
	return r.Handlers[action]
}

// Options configures the built-in handlers.
type Options struct {
	TestCommand      []string
	TestPatternFlag  string
	TestTimeout      time.Duration
	CommandTimeout   time.Duration
	MaxSearchResults int
}

const (
	DefaultTestTimeout      = 120 * time.Second
	DefaultCommandTimeout   = 60 * time.Second
	DefaultMaxSearchResults = 50
)

// Executor runs plan steps inside the sandbox.
type Executor struct {
	Sandbox  *Sandbox
	Registry *Registry
}

// NewExecutor builds an executor with all five handlers registered.
func NewExecutor(sb *Sandbox, opts Options) *Executor {
	if opts.TestTimeout <= 0 {
		opts.TestTimeout = DefaultTestTimeout
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.MaxSearchResults <= 0 {
		opts.MaxSearchResults = DefaultMaxSearchResults
	}
	if len(opts.TestCommand) == 0 {
		opts.TestCommand = []string{"go", "test", "./..."}
	}

	registry := NewRegistry()
	for _, h := range []Handler{
		NewSearchCodebaseTool(opts.MaxSearchResults),
		NewApplyPatchTool(),
		NewCreateFileTool(),
		NewRunTestsTool(opts.TestCommand, opts.TestPatternFlag, opts.TestTimeout),
		NewShellTool(opts.CommandTimeout),
	} {
		// Built-in handlers are always part of the vocabulary.
		_ = registry.Register(h)
	}
	return &Executor{Sandbox: sb, Registry: registry}
}

// Execute runs one step and always returns a StepResult; failures are reported
// in the result, never as a panic or error.
func (e *Executor) Execute(ctx context.Context, step goal.PlanStep) (result goal.StepResult) {
	defer func() {
		if r := recover(); r != nil {
			result = failure(fmt.Errorf("%s handler panicked: %v", step.ActionType, r), nil)
		}
	}()

	h := e.Registry.Get(step.ActionType)
	if h == nil {
		return failure(&UnknownActionError{Action: step.ActionType}, nil)
	}
	scope, err := h.Scope(step.Parameters)
	if err != nil {
		return failure(err, nil)
	}

	inv := Invocation{Params: step.Parameters, Sandbox: e.Sandbox}
	for _, p := range scope.Paths {
		resolved, err := e.Sandbox.Resolve(p)
		if err != nil {
			return failure(err, nil)
		}
		inv.Paths = append(inv.Paths, resolved)
	}
	for _, c := range scope.Commands {
		if err := e.Sandbox.CheckCommand(c); err != nil {
			return failure(err, nil)
		}
	}

	data, err := h.Run(ctx, inv)
	if err != nil {
		return failure(err, data)
	}
	return goal.StepResult{Success: true, Data: data}
}

func failure(err error, data map[string]any) goal.StepResult {
	if data == nil {
		data = map[string]any{}
	}
	data["error_kind"] = ErrorKind(err)
	return goal.StepResult{Success: false, Data: data, Error: err.Error()}
}

func decodeParams(action goal.ActionType, params map[string]any, v any) error {
	if params == nil {
		params = map[string]any{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return &InvalidParametersError{Action: action, Reason: err.Error()}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &InvalidParametersError{Action: action, Reason: err.Error()}
	}
	return nil
}
