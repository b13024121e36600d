package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

const maxIndexFileSize = 1 << 20

// DefaultCodePatterns selects the files CodeQualityScan inspects.
var DefaultCodePatterns = []string{"**.py", "**.go"}

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
}

// CodeQualityScan reports functions and methods that lack documentation.
// Finding.File is relative to Base when set (normally the first sandbox
// root), otherwise to Root. Files outside Base are reported absolute.
type CodeQualityScan struct {
	Root        string
	Base        string
	Include     []glob.Glob
	Exclude     []glob.Glob
	MaxFindings int
	Index       *CodeIndex
}

// NewCodeQualityScan compiles include and exclude glob patterns, matched
// against slash-separated paths relative to root.
func NewCodeQualityScan(root string, include, exclude []string, maxFindings int) (*CodeQualityScan, error) {
	if len(include) == 0 {
		include = DefaultCodePatterns
	}
	if maxFindings <= 0 {
		maxFindings = 10
	}
	s := &CodeQualityScan{Root: root, MaxFindings: maxFindings, Index: NewCodeIndex()}
	for _, p := range include {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern %q: %w", p, err)
		}
		s.Include = append(s.Include, g)
	}
	for _, p := range exclude {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		s.Exclude = append(s.Exclude, g)
	}
	return s, nil
}

func (s *CodeQualityScan) Name() string {
	return string(SourceCodeQuality)
}

func (s *CodeQualityScan) Scan(ctx context.Context) ([]Finding, error) {
	base := ""
	if s.Base != "" {
		base = realPath(s.Base)
	}
	var findings []Finding
	err := filepath.WalkDir(s.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != s.Root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(s.Root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !s.selected(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() > maxIndexFileSize {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		symbols, err := s.Index.Parse(ctx, rel, content)
		if err != nil {
			return nil
		}
		file := rel
		if base != "" {
			file = relativeTo(base, realPath(path))
		}
		for _, sym := range symbols {
			if sym.Documented {
				continue
			}
			findings = append(findings, Finding{
				Source: SourceCodeQuality,
				Text:   fmt.Sprintf("undocumented function %s in %s", sym.QualifiedName(), file),
				File:   file,
				Symbol: sym.QualifiedName(),
				Line:   sym.Line,
			})
			if len(findings) >= s.MaxFindings {
				return fs.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return findings, nil
}

// realPath makes path absolute and resolves symlinks where it can.
func realPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if eval, err := filepath.EvalSymlinks(abs); err == nil {
		return eval
	}
	return abs
}

func relativeTo(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return filepath.ToSlash(rel)
}

func (s *CodeQualityScan) selected(rel string) bool {
	if _, ok := LanguageFor(rel); !ok {
		return false
	}
	for _, g := range s.Exclude {
		if g.Match(rel) {
			return false
		}
	}
	for _, g := range s.Include {
		if g.Match(rel) {
			return true
		}
	}
	return false
}
