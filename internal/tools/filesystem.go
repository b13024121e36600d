package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rahul/autogoal/internal/goal"
)

// CreateFileTool writes a new file inside the sandbox.
type CreateFileTool struct{}

func NewCreateFileTool() *CreateFileTool {
	return &CreateFileTool{}
}

type createFileArgs struct {
	Path      string `json:"filepath"`
	Content   string `json:"content"`
	Overwrite bool   `json:"overwrite"`
}

func (f *CreateFileTool) Action() goal.ActionType {
	return goal.ActionCreateFile
}

func (f *CreateFileTool) Scope(params map[string]any) (Scope, error) {
	var args createFileArgs
	if err := decodeParams(f.Action(), params, &args); err != nil {
		return Scope{}, err
	}
	if args.Path == "" {
		return Scope{}, &InvalidParametersError{Action: f.Action(), Reason: "filepath is required"}
	}
	return Scope{Paths: []string{args.Path}}, nil
}

func (f *CreateFileTool) Run(ctx context.Context, inv Invocation) (map[string]any, error) {
	var args createFileArgs
	if err := decodeParams(f.Action(), inv.Params, &args); err != nil {
		return nil, err
	}
	target := inv.Paths[0]

	info, err := os.Stat(target)
	switch {
	case err == nil && info.IsDir():
		return nil, fmt.Errorf("cannot create file %s: path is a directory", args.Path)
	case err == nil && !args.Overwrite:
		return nil, &FileAlreadyExistsError{Path: args.Path}
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to stat %s: %w", args.Path, err)
	}
	existed := err == nil

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err := writeFileAtomic(target, []byte(args.Content), 0644); err != nil {
		return nil, err
	}

	return map[string]any{
		"filepath":       args.Path,
		"content_length": len(args.Content),
		"overwritten":    existed,
	}, nil
}

// writeFileAtomic writes data to a temp file in the same directory and renames
// it over path, so readers never observe a partial write.
func writeFileAtomic(path string, data []byte, perm fs.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	name := tmp.Name()
	defer os.Remove(name)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(name, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
