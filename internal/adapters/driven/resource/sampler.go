// Package resource samples host memory and CPU usage for the query dispatcher.
package resource

import (
	"context"
	"fmt"
	"sync"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
)

// Ensure the samplers implement the interface.
var (
	_ driven.ResourceSampler = (*HostSampler)(nil)
	_ driven.ResourceSampler = (*StaticSampler)(nil)
)

// HostSampler reads live figures from the operating system.
type HostSampler struct {
	// cpu enables the CPU reading. A failed reading leaves CPUFraction at zero.
	cpu bool
}

// NewHostSampler creates a sampler. withCPU adds a non-blocking CPU reading
// measured since the previous call.
func NewHostSampler(withCPU bool) *HostSampler {
	return &HostSampler{cpu: withCPU}
}

// Sample reads virtual memory statistics.
func (s *HostSampler) Sample(ctx context.Context) (domain.ResourceSample, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return domain.ResourceSample{}, fmt.Errorf("read memory statistics: %w", err)
	}

	sample := domain.ResourceSample{
		MemoryFraction: vm.UsedPercent / 100,
		AvailableBytes: vm.Available,
	}
	if s.cpu {
		if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
			sample.CPUFraction = pct[0] / 100
		}
	}
	return sample, nil
}

// StaticSampler returns a fixed sample. It is used in tests and when host
// sampling is disabled.
type StaticSampler struct {
	mu     sync.Mutex
	sample domain.ResourceSample
	err    error
	calls  int
}

// NewStaticSampler creates a sampler that always reports sample.
func NewStaticSampler(sample domain.ResourceSample) *StaticSampler {
	return &StaticSampler{sample: sample}
}

// Set replaces the reported sample and error.
func (s *StaticSampler) Set(sample domain.ResourceSample, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sample = sample
	s.err = err
}

// Calls returns how many times Sample was called.
func (s *StaticSampler) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Sample returns the configured sample.
func (s *StaticSampler) Sample(_ context.Context) (domain.ResourceSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.sample, s.err
}
