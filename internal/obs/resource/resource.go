// Package resource samples process CPU/memory via gopsutil and exposes a
// memory-pressure back-off multiplier. The graph scheduler does not read
// it; its AGAIN back-off stays fixed.
package resource

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"ssw-trace-core/internal/metrics"
)

// Sample is one point-in-time resource reading.
type Sample struct {
	CPUPercent    float64
	MemoryPercent float64
}

// Sampler periodically reads process/host resource usage and exposes the
// latest Sample to callers (e.g. a scheduler deciding whether to widen
// its AGAIN back-off under memory pressure).
type Sampler struct {
	interval time.Duration
	logger   *logrus.Logger

	mu     sync.RWMutex
	latest Sample
}

// NewSampler builds a Sampler with the given sample interval.
func NewSampler(interval time.Duration, logger *logrus.Logger) *Sampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Sampler{interval: interval, logger: logger}
}

// Run samples until ctx is done. Intended to run in its own goroutine.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleOnce()
		}
	}
}

func (s *Sampler) sampleOnce() {
	var next Sample

	cpuPercents, err := cpu.Percent(0, false)
	if err != nil {
		s.logger.WithError(err).Warn("resource: failed to sample CPU")
	} else if len(cpuPercents) > 0 {
		next.CPUPercent = cpuPercents[0]
		metrics.ResourceSampleDuration.WithLabelValues("cpu_percent").Set(next.CPUPercent)
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		s.logger.WithError(err).Warn("resource: failed to sample memory")
	} else {
		next.MemoryPercent = vm.UsedPercent
		metrics.ResourceSampleDuration.WithLabelValues("memory_percent").Set(next.MemoryPercent)
	}

	s.mu.Lock()
	s.latest = next
	s.mu.Unlock()
}

// Latest returns the most recent Sample (zero value before the first
// tick completes).
func (s *Sampler) Latest() Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// BackoffMultiplier scales a base back-off duration by the current
// memory pressure: past 85% used memory, the scheduler should slow
// down rather than spin the decode pipeline harder.
func (s *Sampler) BackoffMultiplier() float64 {
	latest := s.Latest()
	if latest.MemoryPercent > 85 {
		return 4.0
	}
	if latest.MemoryPercent > 70 {
		return 2.0
	}
	return 1.0
}
