package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// LoadSample is one utilization reading, in percent.
type LoadSample struct {
	CPUPercent    float64
	MemoryPercent float64
}

// LoadSampler reads current host utilization.
type LoadSampler interface {
	Sample(ctx context.Context) (LoadSample, error)
}

// HostSampler samples the local machine with gopsutil.
type HostSampler struct {
	Interval time.Duration
}

func (h HostSampler) Sample(ctx context.Context) (LoadSample, error) {
	interval := h.Interval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	cpus, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil {
		return LoadSample{}, fmt.Errorf("failed to sample cpu: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return LoadSample{}, fmt.Errorf("failed to sample memory: %w", err)
	}
	s := LoadSample{MemoryPercent: vm.UsedPercent}
	if len(cpus) > 0 {
		s.CPUPercent = cpus[0]
	}
	return s, nil
}

// LoadScan reports utilization above Threshold percent.
type LoadScan struct {
	Sampler   LoadSampler
	Threshold float64
}

func NewLoadScan(sampler LoadSampler, threshold float64) *LoadScan {
	if threshold <= 0 {
		threshold = 85
	}
	return &LoadScan{Sampler: sampler, Threshold: threshold}
}

func (s *LoadScan) Name() string {
	return string(SourceSystemLoad)
}

func (s *LoadScan) Scan(ctx context.Context) ([]Finding, error) {
	sample, err := s.Sampler.Sample(ctx)
	if err != nil {
		return nil, err
	}
	var findings []Finding
	for _, m := range []struct {
		name  string
		value float64
	}{
		{"cpu", sample.CPUPercent},
		{"memory", sample.MemoryPercent},
	} {
		if m.value <= s.Threshold {
			continue
		}
		findings = append(findings, Finding{
			Source:    SourceSystemLoad,
			Text:      fmt.Sprintf("high %s utilization", m.name),
			Metric:    m.name,
			Value:     m.value,
			Threshold: s.Threshold,
		})
	}
	return findings, nil
}
