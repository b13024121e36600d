package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rahul/autogoal/internal/goal"
	"github.com/rahul/autogoal/internal/scanner"
	"github.com/rahul/autogoal/internal/tools"
)

var (
	docTargetPattern = regexp.MustCompile("(?i)(?:docstring|documentation|doc comment|docs)\\s+(?:to|for)\\s+`?([\\w.]+)(?:\\(\\))?`?\\s+in\\s+`?([^\\s`]+)`?")
	replacePattern   = regexp.MustCompile("(?i)replace\\s+`([^`]+)`\\s+with\\s+`([^`]*)`\\s+in\\s+`([^`]+)`")
	createPattern    = regexp.MustCompile("(?i)create\\s+(?:an?\\s+|new\\s+)*(?:service|module|layer|file)\\s+`([^`]+)`")
)

// Planner decomposes a goal into steps drawn from the closed action
// vocabulary. It is deterministic: equal goals over an equal tree yield equal
// plans.
type Planner struct {
	Sandbox           *tools.Sandbox
	Index             *scanner.CodeIndex
	DiagnosticCommand string
}

func NewPlanner(sb *tools.Sandbox, index *scanner.CodeIndex, diagnosticCommand string) *Planner {
	if index == nil {
		index = scanner.NewCodeIndex()
	}
	return &Planner{Sandbox: sb, Index: index, DiagnosticCommand: diagnosticCommand}
}

// Plan returns the steps for g, numbered from 1, or an UnplannableGoalError.
func (p *Planner) Plan(ctx context.Context, g goal.Goal) ([]goal.PlanStep, error) {
	var (
		steps []goal.PlanStep
		err   error
	)
	switch g.Type {
	case goal.TypeMaintenance:
		steps, err = p.planMaintenance(ctx, g)
	case goal.TypeDevelopment, goal.TypeImprovement:
		steps, err = p.planDevelopment(g)
	case goal.TypeResearch:
		steps, err = p.planResearch(g)
	case goal.TypeOptimization:
		steps, err = p.planOptimization(g)
	default:
		err = unplannable(g, "unsupported goal type %q", g.Type)
	}
	if err != nil {
		return nil, err
	}

	for i := range steps {
		steps[i].GoalID = g.ID
		steps[i].StepNumber = i + 1
		steps[i].Status = goal.StepPending
	}
	return steps, nil
}

func unplannable(g goal.Goal, format string, args ...any) error {
	return &goal.UnplannableGoalError{GoalID: g.ID, Reason: fmt.Sprintf(format, args...)}
}

func newStep(action goal.ActionType, params map[string]any) goal.PlanStep {
	return goal.PlanStep{ActionType: action, Parameters: params}
}

func testStep(g goal.Goal) goal.PlanStep {
	params := map[string]any{}
	if pattern := g.Meta(goal.MetaTestPattern); pattern != "" {
		params["pattern"] = pattern
	}
	return newStep(goal.ActionRunTests, params)
}

// docTarget returns the file and symbol a maintenance goal should document.
func docTarget(g goal.Goal) (file, symbol string) {
	file, symbol = g.Meta(goal.MetaFile), g.Meta(goal.MetaSymbol)
	if file != "" && symbol != "" {
		return file, symbol
	}
	if m := docTargetPattern.FindStringSubmatch(g.Description); m != nil {
		return m[2], m[1]
	}
	return "", ""
}

func (p *Planner) planMaintenance(ctx context.Context, g goal.Goal) ([]goal.PlanStep, error) {
	file, symbol := docTarget(g)
	if file == "" {
		return nil, unplannable(g, "no documentation target in goal description")
	}
	path, err := p.Sandbox.Resolve(file)
	if err != nil {
		return nil, unplannable(g, "%v", err)
	}
	sym, err := p.Index.Find(ctx, path, symbol)
	if err != nil {
		return nil, unplannable(g, "%v", err)
	}
	if sym.Documented {
		return nil, unplannable(g, "%s in %s is already documented", symbol, file)
	}

	var oldFragment, newFragment string
	switch sym.Language {
	case scanner.LanguagePython:
		if sym.BodyLine == 0 || sym.SameLineBody {
			return nil, unplannable(g, "%s in %s has no block body to document", symbol, file)
		}
		doc := fmt.Sprintf("%s\"\"\"Documentation for %s.\"\"\"", sym.BodyIndent, sym.Name)
		oldFragment = sym.Header + "\n"
		newFragment = sym.Header + "\n" + doc + sym.Newline
		if sym.BodyLine == sym.HeaderEnd+1 {
			oldFragment += sym.BodyFirst
			newFragment += sym.BodyFirst
		}
	case scanner.LanguageGo:
		signature, _, _ := strings.Cut(sym.Header, "\n")
		oldFragment = signature
		newFragment = fmt.Sprintf("// %s documentation.%s%s", sym.Name, sym.Newline, signature)
	default:
		return nil, unplannable(g, "unsupported language for %s", file)
	}

	firstLine, _, _ := strings.Cut(sym.Header, "\n")
	return []goal.PlanStep{
		newStep(goal.ActionSearchCodebase, map[string]any{
			"query":         strings.TrimSpace(firstLine),
			"path":          file,
			"require_match": true,
		}),
		newStep(goal.ActionApplyPatch, map[string]any{
			"filepath":     file,
			"old_fragment": oldFragment,
			"new_fragment": newFragment,
		}),
		testStep(g),
	}, nil
}

type devDirectives struct {
	targetFile  string
	oldFragment string
	newFragment string
	newFile     string
	newContent  string
}

func parseDirectives(g goal.Goal) devDirectives {
	d := devDirectives{
		targetFile:  g.Meta(goal.MetaTargetFile),
		oldFragment: g.Meta(goal.MetaOldFragment),
		newFragment: g.Meta(goal.MetaNewFragment),
		newFile:     g.Meta(goal.MetaNewFile),
		newContent:  g.Meta(goal.MetaNewFileContent),
	}
	if d.oldFragment == "" {
		if m := replacePattern.FindStringSubmatch(g.Description); m != nil {
			d.oldFragment, d.newFragment, d.targetFile = m[1], m[2], m[3]
		}
	}
	if d.newFile == "" {
		if m := createPattern.FindStringSubmatch(g.Description); m != nil {
			d.newFile = m[1]
		}
	}
	if d.newFile != "" && d.newContent == "" {
		d.newContent = stubContent(d.newFile)
	}
	return d
}

// stubContent is the initial content of a created file when none is given.
func stubContent(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	switch filepath.Ext(path) {
	case ".py":
		return fmt.Sprintf("\"\"\"%s module.\"\"\"\n", name)
	case ".go":
		pkg := filepath.Base(filepath.Dir(path))
		if pkg == "." || pkg == "/" {
			pkg = "main"
		}
		return fmt.Sprintf("// Package %s provides %s.\npackage %s\n", pkg, name, pkg)
	}
	return ""
}

func (p *Planner) planDevelopment(g goal.Goal) ([]goal.PlanStep, error) {
	d := parseDirectives(g)
	hasPatch := d.targetFile != "" && d.oldFragment != ""
	if !hasPatch && d.newFile == "" {
		return nil, unplannable(g, "no actionable change in goal description")
	}

	var steps []goal.PlanStep
	if hasPatch {
		steps = append(steps, newStep(goal.ActionSearchCodebase, map[string]any{
			"query":         d.oldFragment,
			"path":          d.targetFile,
			"require_match": true,
		}))
	} else {
		name := strings.TrimSuffix(filepath.Base(d.newFile), filepath.Ext(d.newFile))
		steps = append(steps, newStep(goal.ActionSearchCodebase, map[string]any{
			"query": name,
		}))
	}
	if d.newFile != "" {
		steps = append(steps, newStep(goal.ActionCreateFile, map[string]any{
			"filepath": d.newFile,
			"content":  d.newContent,
		}))
	}
	if hasPatch {
		steps = append(steps, newStep(goal.ActionApplyPatch, map[string]any{
			"filepath":     d.targetFile,
			"old_fragment": d.oldFragment,
			"new_fragment": d.newFragment,
		}))
	}
	return append(steps, testStep(g)), nil
}

func researchTopic(g goal.Goal) string {
	if topic := g.Meta(goal.MetaTopic); topic != "" {
		return topic
	}
	desc := strings.TrimSpace(g.Description)
	if _, rest, ok := strings.Cut(desc, ":"); ok && strings.TrimSpace(rest) != "" {
		return strings.TrimSpace(rest)
	}
	return desc
}

func (p *Planner) planResearch(g goal.Goal) ([]goal.PlanStep, error) {
	topic := researchTopic(g)
	if topic == "" {
		return nil, unplannable(g, "no research topic")
	}
	return []goal.PlanStep{
		newStep(goal.ActionSearchCodebase, map[string]any{
			"query":          "(?i)" + regexp.QuoteMeta(topic),
			"regex":          true,
			"max_results":    20,
			goal.ParamRecord: true,
		}),
	}, nil
}

func (p *Planner) planOptimization(g goal.Goal) ([]goal.PlanStep, error) {
	if strings.TrimSpace(p.DiagnosticCommand) == "" {
		return nil, unplannable(g, "no diagnostic command configured")
	}
	return []goal.PlanStep{
		newStep(goal.ActionShellCommand, map[string]any{
			"command":        p.DiagnosticCommand,
			goal.ParamRecord: true,
		}),
	}, nil
}
