// internal/loadtest/sampler.go
package loadtest

import (
	"runtime"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shirou/gopsutil/v3/cpu"
)

// ResourceSample is one periodic CPU/memory reading taken during a run.
// Samples are append-only and ordered by timestamp.
type ResourceSample struct {
	Timestamp  time.Time `json:"timestamp"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	Goroutines int       `json:"goroutines"`
}

// ResourceMetrics aggregates the samples collected over a run.
type ResourceMetrics struct {
	Samples        []ResourceSample `json:"samples"`
	PeakCPUPercent float64          `json:"peak_cpu_percent"`
	AvgCPUPercent  float64          `json:"avg_cpu_percent"`
	PeakMemoryMB   float64          `json:"peak_memory_mb"`
	AvgMemoryMB    float64          `json:"avg_memory_mb"`
}

// resourceSampler collects ResourceSamples on a fixed ticker. Sampling
// is independent of request issuance: it keeps running even while every
// in-flight request is blocked.
type resourceSampler struct {
	interval time.Duration
	clk      clock.Clock

	mu      sync.Mutex
	samples []ResourceSample

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newResourceSampler(interval time.Duration, clk clock.Clock) *resourceSampler {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &resourceSampler{
		interval: interval,
		clk:      clk,
		samples:  make([]ResourceSample, 0, 128),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// start begins sampling in the background until stop is called. The
// first sample is taken immediately so short runs still record one.
func (s *resourceSampler) start() {
	go func() {
		defer close(s.doneCh)

		s.takeSample()
		ticker := s.clk.Ticker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.takeSample()
			}
		}
	}()
}

// stop halts sampling and waits for the sampling goroutine to exit.
// Idempotent.
func (s *resourceSampler) stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

func (s *resourceSampler) takeSample() {
	// Non-blocking CPU read: compares against the previous call, so the
	// first reading of a run may be zero.
	var cpuPct float64
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		cpuPct = pcts[0]
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	sample := ResourceSample{
		Timestamp:  s.clk.Now(),
		CPUPercent: cpuPct,
		MemoryMB:   float64(memStats.HeapAlloc) / (1024 * 1024),
		Goroutines: runtime.NumGoroutine(),
	}

	s.mu.Lock()
	s.samples = append(s.samples, sample)
	s.mu.Unlock()
}

// metrics returns a copy of the samples plus peak/average aggregates.
func (s *resourceSampler) metrics() ResourceMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := ResourceMetrics{
		Samples: make([]ResourceSample, len(s.samples)),
	}
	copy(m.Samples, s.samples)

	if len(m.Samples) == 0 {
		return m
	}

	var cpuSum, memSum float64
	for _, sample := range m.Samples {
		cpuSum += sample.CPUPercent
		memSum += sample.MemoryMB
		if sample.CPUPercent > m.PeakCPUPercent {
			m.PeakCPUPercent = sample.CPUPercent
		}
		if sample.MemoryMB > m.PeakMemoryMB {
			m.PeakMemoryMB = sample.MemoryMB
		}
	}
	m.AvgCPUPercent = cpuSum / float64(len(m.Samples))
	m.AvgMemoryMB = memSum / float64(len(m.Samples))
	return m
}
