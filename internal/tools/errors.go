package tools

import (
	"errors"
	"fmt"
	"time"

	"github.com/rahul/autogoal/internal/goal"
)

// OutOfSandboxError is returned when a path resolves outside every allowed root.
type OutOfSandboxError struct {
	Path     string
	Resolved string
}

func (e *OutOfSandboxError) Error() string {
	if e.Resolved != "" && e.Resolved != e.Path {
		return fmt.Sprintf("path %q (resolved to %q) is outside the sandbox", e.Path, e.Resolved)
	}
	return fmt.Sprintf("path %q is outside the sandbox", e.Path)
}

// BlockedCommandError is returned when a command contains a block-listed token.
type BlockedCommandError struct {
	Command string
	Token   string
}

func (e *BlockedCommandError) Error() string {
	return fmt.Sprintf("command %q is blocked by sandbox policy (matched %q)", e.Command, e.Token)
}

// AmbiguousOrMissingPatchError is returned when the fragment to replace does not occur exactly once.
type AmbiguousOrMissingPatchError struct {
	Path        string
	Occurrences int
}

func (e *AmbiguousOrMissingPatchError) Error() string {
	if e.Occurrences == 0 {
		return fmt.Sprintf("patch fragment not found in %s", e.Path)
	}
	return fmt.Sprintf("patch fragment is ambiguous in %s: %d occurrences", e.Path, e.Occurrences)
}

// FileAlreadyExistsError is returned by CREATE_FILE without the overwrite flag.
type FileAlreadyExistsError struct {
	Path string
}

func (e *FileAlreadyExistsError) Error() string {
	return fmt.Sprintf("file already exists: %s", e.Path)
}

// TimeoutError is returned when a subprocess exceeds its deadline and is killed.
type TimeoutError struct {
	Action  goal.ActionType
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Action, e.Timeout)
}

// ExitError is returned when a subprocess finishes with a non-zero exit code.
type ExitError struct {
	Action   goal.ActionType
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Action, e.ExitCode)
}

// NoMatchError is returned by SEARCH_CODEBASE when a match was required.
type NoMatchError struct {
	Query string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no matches for %q", e.Query)
}

// InvalidParametersError is returned when a step's parameters cannot be decoded.
type InvalidParametersError struct {
	Action goal.ActionType
	Reason string
}

func (e *InvalidParametersError) Error() string {
	return fmt.Sprintf("invalid parameters for %s: %s", e.Action, e.Reason)
}

// UnknownActionError is returned for action types without a registered handler.
type UnknownActionError struct {
	Action goal.ActionType
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action type %q", e.Action)
}

// ErrorKind classifies err for StepResult data.
func ErrorKind(err error) string {
	var (
		sandbox *OutOfSandboxError
		blocked *BlockedCommandError
		patch   *AmbiguousOrMissingPatchError
		exists  *FileAlreadyExistsError
		timeout *TimeoutError
		exit    *ExitError
		noMatch *NoMatchError
		params  *InvalidParametersError
		unknown *UnknownActionError
	)
	switch {
	case errors.As(err, &sandbox):
		return "out_of_sandbox"
	case errors.As(err, &blocked):
		return "blocked_command"
	case errors.As(err, &patch):
		return "ambiguous_or_missing_patch"
	case errors.As(err, &exists):
		return "file_already_exists"
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &exit):
		return "non_zero_exit"
	case errors.As(err, &noMatch):
		return "no_match"
	case errors.As(err, &params):
		return "invalid_parameters"
	case errors.As(err, &unknown):
		return "unknown_action"
	}
	return "execution"
}
