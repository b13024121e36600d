package scanner

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const maxKnowledgeTopics = 5

// MemoryReader exposes recent conversational memory.
type MemoryReader interface {
	ReadRecent(ctx context.Context, limit int) ([]string, error)
}

var uncertaintyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bI (?:don't|do not|dont) know (?:about|much about|anything about) ([^.,;!?\n]+)`),
	regexp.MustCompile(`(?i)\bnot sure (?:about|how|what|why|whether) ([^.,;!?\n]+)`),
	regexp.MustCompile(`(?i)\bunfamiliar with ([^.,;!?\n]+)`),
	regexp.MustCompile(`(?i)\bno idea (?:about|how|what) ([^.,;!?\n]+)`),
}

// KnowledgeGapScan extracts topics the agent expressed uncertainty about.
type KnowledgeGapScan struct {
	Memory MemoryReader
	Limit  int
}

func NewKnowledgeGapScan(memory MemoryReader, limit int) *KnowledgeGapScan {
	if limit <= 0 {
		limit = 50
	}
	return &KnowledgeGapScan{Memory: memory, Limit: limit}
}

func (s *KnowledgeGapScan) Name() string {
	return string(SourceKnowledgeGap)
}

func (s *KnowledgeGapScan) Scan(ctx context.Context) ([]Finding, error) {
	messages, err := s.Memory.ReadRecent(ctx, s.Limit)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var findings []Finding
	for _, msg := range messages {
		for _, topic := range ExtractTopics(msg) {
			key := strings.ToLower(topic)
			if seen[key] {
				continue
			}
			seen[key] = true
			findings = append(findings, Finding{
				Source: SourceKnowledgeGap,
				Text:   fmt.Sprintf("knowledge gap: %s", key),
				Topic:  topic,
			})
			if len(findings) >= maxKnowledgeTopics {
				return findings, nil
			}
		}
	}
	return findings, nil
}

// ExtractTopics returns the subjects of uncertainty expressions in text, in
// order of appearance.
func ExtractTopics(text string) []string {
	type hit struct {
		pos   int
		topic string
	}
	var hits []hit
	for _, re := range uncertaintyPatterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			topic := cleanTopic(text[m[2]:m[3]])
			if topic != "" {
				hits = append(hits, hit{pos: m[0], topic: topic})
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	topics := make([]string, 0, len(hits))
	for _, h := range hits {
		topics = append(topics, h.topic)
	}
	return topics
}

func cleanTopic(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`+"`")
	words := strings.Fields(s)
	if len(words) > 6 {
		words = words[:6]
	}
	return strings.Join(words, " ")
}
