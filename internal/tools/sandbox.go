package tools

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Sandbox holds the two static execution policies: the directory roots every
// path must resolve under, and the commands that may never run.
type Sandbox struct {
	roots   []string
	blocked map[string]bool
	phrases [][]string
}

// NewSandbox resolves each root to an absolute, symlink-free path. Blocked
// entries are single command names ("rm") or token phrases ("git push").
func NewSandbox(roots []string, blockedCommands []string) (*Sandbox, error) {
	if len(roots) == 0 {
		return nil, errors.New("sandbox needs at least one allowed root")
	}
	s := &Sandbox{blocked: make(map[string]bool)}
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve sandbox root %q: %w", root, err)
		}
		eval, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate sandbox root %q: %w", root, err)
		}
		s.roots = append(s.roots, filepath.Clean(eval))
	}
	for _, c := range blockedCommands {
		fields := strings.Fields(c)
		switch len(fields) {
		case 0:
		case 1:
			s.blocked[fields[0]] = true
		default:
			s.phrases = append(s.phrases, fields)
		}
	}
	return s, nil
}

// Roots returns the resolved allowed roots. The first root is the default
// working directory and the base for relative paths.
func (s *Sandbox) Roots() []string {
	return append([]string(nil), s.roots...)
}

// Resolve converts path to an absolute, cleaned, symlink-resolved path and
// fails with OutOfSandboxError unless it lies under an allowed root.
func (s *Sandbox) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", &OutOfSandboxError{Path: path}
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.roots[0], abs)
	}
	resolved := resolveSymlinks(filepath.Clean(abs))
	for _, root := range s.roots {
		if within(resolved, root) {
			return resolved, nil
		}
	}
	return "", &OutOfSandboxError{Path: path, Resolved: resolved}
}

// Contains reports whether path resolves inside the sandbox.
func (s *Sandbox) Contains(path string) bool {
	_, err := s.Resolve(path)
	return err == nil
}

func within(path, root string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

// resolveSymlinks evaluates symlinks on the longest existing prefix of path so
// that files which do not exist yet are still checked against their real parent.
func resolveSymlinks(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}

	var missing []string
	current := path
	for {
		parent := filepath.Dir(current)
		missing = append(missing, filepath.Base(current))
		if parent == current {
			return path
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved
		}
		current = parent
	}
}

// CheckCommand fails with BlockedCommandError if any token of command, or any
// consecutive token phrase, is on the block list. Shell separators split
// tokens so "true && rm -rf x" is caught.
func (s *Sandbox) CheckCommand(command string) error {
	tokens := commandTokens(command)
	for _, tok := range tokens {
		if s.blocked[tok] {
			return &BlockedCommandError{Command: command, Token: tok}
		}
		if base := filepath.Base(tok); base != tok && s.blocked[base] {
			return &BlockedCommandError{Command: command, Token: base}
		}
	}
	for _, phrase := range s.phrases {
		for i := 0; i+len(phrase) <= len(tokens); i++ {
			match := true
			for j, p := range phrase {
				if tokens[i+j] != p && filepath.Base(tokens[i+j]) != p {
					match = false
					break
				}
			}
			if match {
				return &BlockedCommandError{Command: command, Token: strings.Join(phrase, " ")}
			}
		}
	}
	return nil
}

var shellSeparators = strings.NewReplacer(
	";", " ", "|", " ", "&", " ", "(", " ", ")", " ",
	"`", " ", "$", " ", "<", " ", ">", " ", "\n", " ",
	"{", " ", "}", " ",
)

func commandTokens(command string) []string {
	fields := strings.Fields(shellSeparators.Replace(command))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `"'\`)
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
