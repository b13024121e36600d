package tools

import (
	"bufio"
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gobwas/glob"

	"github.com/rahul/autogoal/internal/goal"
)

const (
	maxSearchFileSize = 1 << 20
	maxMatchLineLen   = 240
)

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
}

// SearchCodebaseTool finds lines matching a query in files under the sandbox. It never writes.
type SearchCodebaseTool struct {
	MaxResults int
}

func NewSearchCodebaseTool(maxResults int) *SearchCodebaseTool {
	return &SearchCodebaseTool{MaxResults: maxResults}
}

type searchArgs struct {
	Query        string   `json:"query"`
	FilePatterns []string `json:"file_patterns"`
	MaxResults   int      `json:"max_results"`
	Regex        bool     `json:"regex"`
	RequireMatch bool     `json:"require_match"`
	Path         string   `json:"path"`
}

func (s *SearchCodebaseTool) Action() goal.ActionType {
	return goal.ActionSearchCodebase
}

func (s *SearchCodebaseTool) Scope(params map[string]any) (Scope, error) {
	var args searchArgs
	if err := decodeParams(s.Action(), params, &args); err != nil {
		return Scope{}, err
	}
	if strings.TrimSpace(args.Query) == "" {
		return Scope{}, &InvalidParametersError{Action: s.Action(), Reason: "query is required"}
	}
	if args.Path != "" {
		return Scope{Paths: []string{args.Path}}, nil
	}
	return Scope{}, nil
}

// SearchMatch is one matching line.
type SearchMatch struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

func (s *SearchCodebaseTool) Run(ctx context.Context, inv Invocation) (map[string]any, error) {
	var args searchArgs
	if err := decodeParams(s.Action(), inv.Params, &args); err != nil {
		return nil, err
	}

	limit := args.MaxResults
	if limit <= 0 || limit > s.MaxResults {
		limit = s.MaxResults
	}

	match := func(line string) bool { return strings.Contains(line, args.Query) }
	if args.Regex {
		re, err := regexp.Compile(args.Query)
		if err != nil {
			return nil, &InvalidParametersError{Action: s.Action(), Reason: "invalid regex: " + err.Error()}
		}
		match = re.MatchString
	}

	var patterns []glob.Glob
	for _, p := range args.FilePatterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, &InvalidParametersError{Action: s.Action(), Reason: "invalid file pattern " + p}
		}
		patterns = append(patterns, g)
	}

	roots := inv.Paths
	if len(roots) == 0 {
		roots = inv.Sandbox.Roots()
	}

	var matches []SearchMatch
	truncated := false
	for _, root := range roots {
		if truncated {
			break
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() {
				if path != root && skipDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			if rel == "." {
				rel = filepath.Base(path)
			}
			if !matchesAny(patterns, rel) {
				return nil
			}
			found, err := searchFile(path, rel, match, limit-len(matches))
			if err != nil {
				return nil
			}
			matches = append(matches, found...)
			if len(matches) >= limit {
				truncated = true
				return fs.SkipAll
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	data := map[string]any{
		"query":     args.Query,
		"matches":   matches,
		"count":     len(matches),
		"truncated": truncated,
	}
	if args.RequireMatch && len(matches) == 0 {
		return data, &NoMatchError{Query: args.Query}
	}
	return data, nil
}

func matchesAny(patterns []glob.Glob, rel string) bool {
	if len(patterns) == 0 {
		return true
	}
	base := rel[strings.LastIndex(rel, "/")+1:]
	for _, p := range patterns {
		if p.Match(rel) || p.Match(base) {
			return true
		}
	}
	return false
}

func searchFile(path, rel string, match func(string) bool, budget int) ([]SearchMatch, error) {
	info, err := os.Stat(path)
	if err != nil || info.Size() > maxSearchFileSize {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isBinary(data) {
		return nil, nil
	}

	var out []SearchMatch
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxSearchFileSize)
	line := 0
	for scanner.Scan() && len(out) < budget {
		line++
		text := scanner.Text()
		if !match(text) {
			continue
		}
		text = strings.TrimSpace(text)
		if len(text) > maxMatchLineLen {
			cut := maxMatchLineLen
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			text = text[:cut]
		}
		out = append(out, SearchMatch{File: rel, Line: line, Text: text})
	}
	return out, scanner.Err()
}

func isBinary(data []byte) bool {
	head := data
	if len(head) > 8000 {
		head = head[:8000]
	}
	return bytes.IndexByte(head, 0) >= 0
}
