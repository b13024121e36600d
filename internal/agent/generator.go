package agent

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/rahul/autogoal/internal/goal"
	"github.com/rahul/autogoal/internal/scanner"
)

// DefaultPriorities maps goal types to their priority when none is given.
// Lower numbers are more urgent.
var DefaultPriorities = map[goal.Type]int{
	goal.TypeOptimization: 1,
	goal.TypeMaintenance:  3,
	goal.TypeDevelopment:  4,
	goal.TypeImprovement:  4,
	goal.TypeResearch:     5,
}

var sourceTypes = map[scanner.Source]goal.Type{
	scanner.SourceCodeQuality:  goal.TypeMaintenance,
	scanner.SourceSystemLoad:   goal.TypeOptimization,
	scanner.SourceKnowledgeGap: goal.TypeResearch,
}

// GoalCreator persists goals with de-duplication against open goals.
type GoalCreator interface {
	CreateIfAbsent(ctx context.Context, g goal.Goal) (goal.Goal, bool, error)
}

// Generator turns scan findings and operator submissions into goals.
type Generator struct {
	Store  GoalCreator
	policy *bluemonday.Policy
}

func NewGenerator(store GoalCreator) *Generator {
	return &Generator{Store: store, policy: bluemonday.StrictPolicy()}
}

const maxTitleLen = 60

// Sanitize strips markup from a display line and collapses whitespace. It is
// applied to titles only; descriptions are free text the planner reads
// directives from, so they are stored as given.
func (gen *Generator) Sanitize(s string) string {
	s = html.UnescapeString(gen.policy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

// title builds the display title, falling back to fallback when nothing is
// left after sanitizing.
func (gen *Generator) title(s, fallback string) string {
	t := gen.Sanitize(s)
	if t == "" {
		t = fallback
	}
	return truncateRunes(t, maxTitleLen)
}

// truncateRunes shortens s to at most limit runes, ending in "...".
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:limit-3])) + "..."
}

// Generate creates one goal per finding unless an equivalent open goal
// exists. It returns only the goals that were created.
func (gen *Generator) Generate(ctx context.Context, findings []scanner.Finding) ([]goal.Goal, error) {
	var created []goal.Goal
	for _, f := range findings {
		g, ok := gen.Build(f)
		if !ok {
			continue
		}
		saved, isNew, err := gen.Store.CreateIfAbsent(ctx, g)
		if err != nil {
			return created, fmt.Errorf("failed to persist goal for finding %q: %w", f.Text, err)
		}
		if isNew {
			created = append(created, saved)
		}
	}
	return created, nil
}

// Build maps a finding to an unsaved goal. Findings from unknown sources are
// skipped.
func (gen *Generator) Build(f scanner.Finding) (goal.Goal, bool) {
	typ, ok := sourceTypes[f.Source]
	if !ok {
		return goal.Goal{}, false
	}
	g := goal.Goal{
		Type:     typ,
		Priority: DefaultPriorities[typ],
		Metadata: map[string]string{
			goal.MetaSource: string(f.Source),
			goal.MetaOrigin: "scanner",
		},
	}

	switch f.Source {
	case scanner.SourceCodeQuality:
		file, symbol := strings.TrimSpace(f.File), strings.TrimSpace(f.Symbol)
		if file == "" || symbol == "" {
			return goal.Goal{}, false
		}
		g.Title = gen.title("Document "+symbol, "Document function")
		g.Description = fmt.Sprintf("Add documentation to `%s` in `%s`", symbol, file)
		g.SuccessCriteria = []string{
			fmt.Sprintf("`%s` in `%s` has documentation", symbol, file),
			"project tests pass",
		}
		g.Metadata[goal.MetaFile] = file
		g.Metadata[goal.MetaSymbol] = symbol
		g.Metadata[goal.MetaLine] = strconv.Itoa(f.Line)
	case scanner.SourceSystemLoad:
		metric := strings.TrimSpace(f.Metric)
		if metric == "" {
			return goal.Goal{}, false
		}
		g.Title = gen.title(fmt.Sprintf("Reduce %s utilization", metric), "Reduce utilization")
		g.Description = fmt.Sprintf("Reduce %s utilization above %.1f%%", metric, f.Threshold)
		g.SuccessCriteria = []string{
			fmt.Sprintf("%s utilization below %.1f%%", metric, f.Threshold),
			"diagnostic output recorded",
		}
		g.Metadata["metric"] = metric
		g.Metadata["value"] = strconv.FormatFloat(f.Value, 'f', 1, 64)
		g.Metadata["threshold"] = strconv.FormatFloat(f.Threshold, 'f', 1, 64)
	case scanner.SourceKnowledgeGap:
		topic := strings.Join(strings.Fields(f.Topic), " ")
		if topic == "" {
			return goal.Goal{}, false
		}
		g.Title = gen.title("Research "+topic, "Research topic")
		g.Description = "Research topic: " + topic
		g.SuccessCriteria = []string{
			"codebase references to the topic recorded in memory",
		}
		g.Metadata[goal.MetaTopic] = topic
	}
	return g, true
}

var typeHints = []struct {
	typ goal.Type
	re  *regexp.Regexp
}{
	{goal.TypeMaintenance, regexp.MustCompile(`(?i)\b(?:document|documentation|docstring|doc comment|docs)\b`)},
	{goal.TypeOptimization, regexp.MustCompile(`(?i)\b(?:optimi[sz]e|performance|latency|utilization|speed up)\b`)},
	{goal.TypeResearch, regexp.MustCompile(`(?i)\b(?:research|investigate|learn about|look into)\b`)},
	{goal.TypeImprovement, regexp.MustCompile(`(?i)\b(?:improve|refactor|replace|clean up|rename)\b`)},
}

// InferType guesses a goal type from free text. DEVELOPMENT is the fallback.
func InferType(description string) goal.Type {
	for _, h := range typeHints {
		if h.re.MatchString(description) {
			return h.typ
		}
	}
	return goal.TypeDevelopment
}

// FromSubmission builds an unsaved goal from an operator submission.
func (gen *Generator) FromSubmission(sub Submission) (goal.Goal, error) {
	description := strings.TrimSpace(sub.Description)
	if description == "" {
		return goal.Goal{}, fmt.Errorf("goal description is required")
	}

	typ := sub.Type
	if typ == "" {
		typ = InferType(description)
	}
	if !typ.Valid() {
		return goal.Goal{}, fmt.Errorf("invalid goal type %q", sub.Type)
	}

	priority := sub.Priority
	if priority <= 0 {
		priority = DefaultPriorities[typ]
	}

	title := gen.title(sub.Title, "")
	if title == "" {
		title = gen.title(description, strings.ToLower(string(typ))+" goal")
	}

	meta := map[string]string{goal.MetaOrigin: "operator"}
	for k, v := range sub.Metadata {
		meta[k] = v
	}

	var parent *int64
	if sub.ParentID != nil {
		id := *sub.ParentID
		parent = &id
	}

	return goal.Goal{
		Type:            typ,
		Title:           title,
		Description:     description,
		Priority:        priority,
		ParentID:        parent,
		SuccessCriteria: sub.SuccessCriteria,
		Metadata:        meta,
	}, nil
}
