// internal/loadtest/sampler_test.go
package loadtest

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceSampler_CollectsSamples(t *testing.T) {
	s := newResourceSampler(50*time.Millisecond, clock.New())
	s.start()
	time.Sleep(300 * time.Millisecond)
	s.stop()

	m := s.metrics()
	require.NotEmpty(t, m.Samples, "the first sample is taken immediately")
	assert.GreaterOrEqual(t, len(m.Samples), 2)

	for _, sample := range m.Samples {
		assert.False(t, sample.Timestamp.IsZero())
		assert.GreaterOrEqual(t, sample.CPUPercent, 0.0)
		assert.Positive(t, sample.MemoryMB, "a live process always has heap")
		assert.Positive(t, sample.Goroutines)
	}
}

func TestResourceSampler_SamplesOrdered(t *testing.T) {
	s := newResourceSampler(30*time.Millisecond, clock.New())
	s.start()
	time.Sleep(200 * time.Millisecond)
	s.stop()

	m := s.metrics()
	for i := 1; i < len(m.Samples); i++ {
		assert.False(t, m.Samples[i].Timestamp.Before(m.Samples[i-1].Timestamp),
			"samples are append-only and ordered")
	}
}

func TestResourceSampler_Aggregates(t *testing.T) {
	s := newResourceSampler(30*time.Millisecond, clock.New())
	s.start()
	time.Sleep(150 * time.Millisecond)
	s.stop()

	m := s.metrics()
	require.NotEmpty(t, m.Samples)

	assert.GreaterOrEqual(t, m.PeakCPUPercent, m.AvgCPUPercent)
	assert.GreaterOrEqual(t, m.PeakMemoryMB, m.AvgMemoryMB)
	assert.Positive(t, m.AvgMemoryMB)
}

func TestResourceSampler_StopIdempotent(t *testing.T) {
	s := newResourceSampler(20*time.Millisecond, clock.New())
	s.start()
	time.Sleep(50 * time.Millisecond)

	s.stop()
	s.stop() // second stop must not panic or block

	before := len(s.metrics().Samples)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, before, len(s.metrics().Samples), "no samples after stop")
}

func TestResourceSampler_EmptyMetrics(t *testing.T) {
	s := newResourceSampler(time.Hour, clock.New())

	m := s.metrics()
	assert.Empty(t, m.Samples)
	assert.Zero(t, m.PeakCPUPercent)
	assert.Zero(t, m.AvgMemoryMB)
}

func TestResourceSampler_DefaultInterval(t *testing.T) {
	s := newResourceSampler(0, clock.New())
	assert.Equal(t, 500*time.Millisecond, s.interval)
}
