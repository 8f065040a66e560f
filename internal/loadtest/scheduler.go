// internal/loadtest/scheduler.go
package loadtest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// State is the scheduler's lifecycle state. Phase transitions are
// strictly sequential within one run; Cancelled is reachable from any
// non-Idle, non-Completed state.
type State string

const (
	StateIdle      State = "idle"
	StateRampUp    State = "ramp_up"
	StateSustained State = "sustained"
	StateRampDown  State = "ramp_down"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// scenario is the normalized shape the scheduler drives, after the
// Agent has resolved residential- or commercial-specific naming.
type scenario struct {
	name           string
	kind           RequestKind
	complexity     Complexity
	batchSize      int
	totalUnits     int
	maxConcurrency int
	phases         PhaseConfig
}

// schedulerTick is the batch-issuance decision interval. Cancellation
// and concurrency targets are observed at this granularity.
const schedulerTick = 10 * time.Millisecond

// scheduler converts a scenario into a timed sequence of request
// batches: concurrency ramps linearly from 1 to the configured maximum
// over the ramp-up window, holds there for the sustained window, then
// drains without issuing new batches during ramp-down. Each batch
// occupies one concurrency slot and processes its units sequentially.
type scheduler struct {
	sc      scenario
	rec     *Recorder
	sampler *resourceSampler
	sim     Simulator
	clk     clock.Clock
	log     *zap.Logger

	mu    sync.RWMutex
	state State

	unitsClaimed int64

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newScheduler(sc scenario, rec *Recorder, sampler *resourceSampler, sim Simulator, clk clock.Clock, log *zap.Logger) *scheduler {
	return &scheduler{
		sc:      sc,
		rec:     rec,
		sampler: sampler,
		sim:     sim,
		clk:     clk,
		log:     log,
		state:   StateIdle,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *scheduler) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()

	s.log.Debug("scheduler state transition",
		zap.String("scenario", s.sc.name),
		zap.String("from", string(prev)),
		zap.String("to", string(st)))
}

// Stop requests cancellation and blocks until the run reaches a
// terminal state. In-flight batches are allowed to finish so recorded
// latencies are never artificially truncated. Idempotent; a Stop on a
// scheduler that never ran returns once run() observes the flag.
func (s *scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

// UnitsClaimed reports how many units have been handed to batches.
func (s *scheduler) UnitsClaimed() int64 {
	return atomic.LoadInt64(&s.unitsClaimed)
}

// run executes the full phase sequence. It returns once the run is
// terminal; a cancelled run is not an error, it just ends early.
func (s *scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	s.sampler.start()
	defer s.sampler.stop()

	s.rec.Start(s.clk.Now())

	var wg sync.WaitGroup
	var inFlight atomic.Int64

	total := int64(s.sc.totalUnits)
	cancelled := false

	phases := []struct {
		state State
		dur   time.Duration
	}{
		{StateRampUp, s.sc.phases.RampUp},
		{StateSustained, s.sc.phases.Sustained},
	}

	ticker := s.clk.Ticker(schedulerTick)
	defer ticker.Stop()

issuance:
	for _, phase := range phases {
		if atomic.LoadInt64(&s.unitsClaimed) >= total {
			break
		}
		s.setState(phase.state)
		phaseStart := s.clk.Now()

		for s.clk.Since(phaseStart) < phase.dur {
			select {
			case <-ctx.Done():
				cancelled = true
			case <-s.stopCh:
				cancelled = true
			case <-ticker.C:
				target := s.targetConcurrency(phase.state, s.clk.Since(phaseStart))
				for int(inFlight.Load()) < target {
					n := s.claimUnits(total)
					if n == 0 {
						break
					}
					inFlight.Add(1)
					wg.Add(1)
					go func(units int) {
						defer wg.Done()
						defer inFlight.Add(-1)
						s.runBatch(ctx, units)
					}(n)
				}
			}
			if cancelled {
				break issuance
			}
			if atomic.LoadInt64(&s.unitsClaimed) >= total {
				break
			}
		}
	}

	if cancelled {
		// Dispatched batches drain; no forced abort.
		wg.Wait()
		s.setState(StateCancelled)
		return
	}

	s.setState(StateRampDown)

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()

	rampDown := s.clk.Timer(s.sc.phases.RampDown)
	defer rampDown.Stop()

	select {
	case <-drained:
	case <-rampDown.C:
		// Window elapsed with work still in flight: allow the drain to
		// finish past the window rather than truncate latencies.
		<-drained
	case <-ctx.Done():
		<-drained
		s.setState(StateCancelled)
		return
	case <-s.stopCh:
		<-drained
		s.setState(StateCancelled)
		return
	}

	s.setState(StateCompleted)
}

// claimUnits reserves up to batchSize units, never exceeding totalUnits
// across all batches.
func (s *scheduler) claimUnits(total int64) int {
	for {
		claimed := atomic.LoadInt64(&s.unitsClaimed)
		remaining := total - claimed
		if remaining <= 0 {
			return 0
		}
		n := int64(s.sc.batchSize)
		if n > remaining {
			n = remaining
		}
		if atomic.CompareAndSwapInt64(&s.unitsClaimed, claimed, claimed+n) {
			return int(n)
		}
	}
}

// runBatch processes one batch's units sequentially within a single
// concurrency slot. Cancellation is observed at issuance decision
// points, not inside a batch: a dispatched batch is in flight.
func (s *scheduler) runBatch(ctx context.Context, units int) {
	for i := 0; i < units; i++ {
		outcome := s.sim(ctx, s.sc.kind, s.sc.complexity)
		s.rec.Record(outcome)
	}
}

// targetConcurrency returns the concurrency cap for the given phase at
// the given elapsed offset: linear 1..max over ramp-up, max while
// sustained, zero otherwise.
func (s *scheduler) targetConcurrency(st State, elapsed time.Duration) int {
	max := s.sc.maxConcurrency
	switch st {
	case StateRampUp:
		if s.sc.phases.RampUp <= 0 || max <= 1 {
			return max
		}
		frac := float64(elapsed) / float64(s.sc.phases.RampUp)
		if frac > 1 {
			frac = 1
		}
		return 1 + int(frac*float64(max-1))
	case StateSustained:
		return max
	default:
		return 0
	}
}
