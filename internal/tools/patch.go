package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rahul/autogoal/internal/goal"
)

// ApplyPatchTool replaces exactly one occurrence of a fragment in a file.
type ApplyPatchTool struct{}

func NewApplyPatchTool() *ApplyPatchTool {
	return &ApplyPatchTool{}
}

type patchArgs struct {
	Path        string `json:"filepath"`
	OldFragment string `json:"old_fragment"`
	NewFragment string `json:"new_fragment"`
}

func (p *ApplyPatchTool) Action() goal.ActionType {
	return goal.ActionApplyPatch
}

func (p *ApplyPatchTool) Scope(params map[string]any) (Scope, error) {
	var args patchArgs
	if err := decodeParams(p.Action(), params, &args); err != nil {
		return Scope{}, err
	}
	if args.Path == "" {
		return Scope{}, &InvalidParametersError{Action: p.Action(), Reason: "filepath is required"}
	}
	if args.OldFragment == "" {
		return Scope{}, &InvalidParametersError{Action: p.Action(), Reason: "old_fragment is required"}
	}
	return Scope{Paths: []string{args.Path}}, nil
}

func (p *ApplyPatchTool) Run(ctx context.Context, inv Invocation) (map[string]any, error) {
	var args patchArgs
	if err := decodeParams(p.Action(), inv.Params, &args); err != nil {
		return nil, err
	}
	target := inv.Paths[0]

	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", args.Path, err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", args.Path, err)
	}

	content := string(data)
	if n := strings.Count(content, args.OldFragment); n != 1 {
		return nil, &AmbiguousOrMissingPatchError{Path: args.Path, Occurrences: n}
	}

	idx := strings.Index(content, args.OldFragment)
	updated := content[:idx] + args.NewFragment + content[idx+len(args.OldFragment):]
	if err := writeFileAtomic(target, []byte(updated), info.Mode().Perm()); err != nil {
		return nil, err
	}

	return map[string]any{
		"filepath":       args.Path,
		"line":           strings.Count(content[:idx], "\n") + 1,
		"content_length": len(updated),
	}, nil
}
