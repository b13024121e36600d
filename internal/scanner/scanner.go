// Package scanner inspects the environment and reports findings that the goal
// generator turns into goals.
package scanner

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rahul/autogoal/internal/observability"
)

// Source names the sub-scan that produced a finding.
type Source string

const (
	SourceCodeQuality  Source = "code_quality"
	SourceSystemLoad   Source = "system_load"
	SourceKnowledgeGap Source = "knowledge_gap"
)

// Finding is one observation from a sub-scan. Only the fields relevant to the
// source are set.
type Finding struct {
	Source    Source
	Text      string
	File      string
	Symbol    string
	Line      int
	Topic     string
	Metric    string
	Value     float64
	Threshold float64
}

// SubScan is one independent inspection.
type SubScan interface {
	Name() string
	Scan(ctx context.Context) ([]Finding, error)
}

// Scanner runs sub-scans concurrently. A failing or panicking sub-scan
// contributes no findings and never aborts the others.
type Scanner struct {
	scans  []SubScan
	logger *observability.Logger
}

func New(logger *observability.Logger, scans ...SubScan) *Scanner {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Scanner{scans: scans, logger: logger}
}

// Register appends a sub-scan.
func (s *Scanner) Register(scan SubScan) {
	s.scans = append(s.scans, scan)
}

// Scan returns the findings of every sub-scan in registration order,
// de-duplicated by text.
func (s *Scanner) Scan(ctx context.Context) []Finding {
	results := make([][]Finding, len(s.scans))
	var g errgroup.Group
	var mu sync.Mutex
	failed := 0

	for i, scan := range s.scans {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
				}
				if err != nil {
					mu.Lock()
					failed++
					mu.Unlock()
					s.logger.Warn("sub-scan failed", zap.String("scan", scan.Name()), zap.Error(err))
				}
			}()
			findings, err := scan.Scan(ctx)
			if err != nil {
				return err
			}
			results[i] = findings
			return nil
		})
	}
	// Errors are logged per sub-scan above.
	_ = g.Wait()

	seen := make(map[string]bool)
	var out []Finding
	for _, findings := range results {
		for _, f := range findings {
			if f.Text == "" || seen[f.Text] {
				continue
			}
			seen[f.Text] = true
			out = append(out, f)
		}
	}

	s.logger.Log(observability.Event{
		Type:    observability.EventTypeScan,
		Message: "scan complete",
		Data: map[string]int{
			"scans":    len(s.scans),
			"failed":   failed,
			"findings": len(out),
		},
	})
	return out
}
