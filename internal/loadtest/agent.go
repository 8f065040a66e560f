// internal/loadtest/agent.go
package loadtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LoadTestResult is the unit of record for one scenario execution. It
// is owned by the caller once returned; the reporter only reads it.
type LoadTestResult struct {
	TestID             string              `json:"test_id"`
	Scenario           string              `json:"scenario"`
	StartTime          time.Time           `json:"start_time"`
	EndTime            time.Time           `json:"end_time"`
	Duration           time.Duration       `json:"duration"`
	TotalRequests      int64               `json:"total_requests"`
	SuccessfulRequests int64               `json:"successful_requests"`
	FailedRequests     int64               `json:"failed_requests"`
	ErrorRate          float64             `json:"error_rate"`
	ResponseTime       ResponseTimeMetrics `json:"response_time"`
	Throughput         ThroughputMetrics   `json:"throughput"`
	Resources          ResourceMetrics     `json:"resources"`
	RouterStats        *AIRouterStats      `json:"ai_router_stats,omitempty"`
	Errors             []string            `json:"errors"`
	Warnings           []string            `json:"warnings"`
}

// AgentOptions carries the Agent's collaborators. Nil fields resolve to
// defaults at construction time.
type AgentOptions struct {
	Logger    *zap.Logger
	Clock     clock.Clock
	Simulator Simulator
	Router    RouterClient
	Metrics   *RunMetrics
}

// Agent is the engine façade: it owns the scenario configuration, runs
// one scenario at a time, and assembles a LoadTestResult per run.
// Concurrent run* calls on the same Agent fail fast with
// ErrAlreadyRunning; separate Agents are fully independent.
type Agent struct {
	cfg     *Config
	log     *zap.Logger
	clk     clock.Clock
	sim     Simulator
	router  RouterClient
	metrics *RunMetrics

	mu      sync.Mutex
	running bool
	current *scheduler
}

// NewAgent creates an Agent for the given configuration. The config is
// validated here; invalid bounds are construction-time errors.
func NewAgent(cfg *Config, opts *AgentOptions) (*Agent, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &AgentOptions{}
	}

	a := &Agent{
		cfg:     cfg,
		log:     opts.Logger,
		clk:     opts.Clock,
		sim:     opts.Simulator,
		router:  opts.Router,
		metrics: opts.Metrics,
	}
	if a.log == nil {
		a.log = zap.NewNop()
	}
	if a.clk == nil {
		a.clk = clock.New()
	}
	if a.sim == nil {
		a.sim = DefaultSimulator(a.clk)
	}
	if a.router == nil {
		a.router = NewSimulatedRouterClient(a.clk)
	}
	return a, nil
}

// RunHeavyResidentialLoad runs the residential batch scenario.
func (a *Agent) RunHeavyResidentialLoad(ctx context.Context) (*LoadTestResult, error) {
	rc := a.cfg.HeavyResidential
	if !rc.Enabled {
		return nil, fmt.Errorf("heavy residential: %w", ErrScenarioDisabled)
	}

	return a.runScenario(ctx, scenario{
		name:           "heavy-residential",
		kind:           RequestKindParcel,
		batchSize:      rc.BatchSize,
		totalUnits:     rc.TotalParcels,
		maxConcurrency: rc.ConcurrentBatches,
		phases:         rc.Phases,
	})
}

// RunModerateCommercialLoad runs the commercial portfolio scenario.
// Complexity scales the simulated per-request processing cost.
func (a *Agent) RunModerateCommercialLoad(ctx context.Context) (*LoadTestResult, error) {
	cc := a.cfg.ModerateCommercial
	if !cc.Enabled {
		return nil, fmt.Errorf("moderate commercial: %w", ErrScenarioDisabled)
	}

	return a.runScenario(ctx, scenario{
		name:           "moderate-commercial",
		kind:           RequestKindPortfolio,
		complexity:     cc.Complexity,
		batchSize:      cc.PortfolioSize,
		totalUnits:     cc.TotalPortfolios,
		maxConcurrency: cc.ConcurrentPortfolios,
		phases:         cc.Phases,
	})
}

// RunAIRouterStress runs the router stability harness end to end and
// returns a full result with AIRouterStats attached.
func (a *Agent) RunAIRouterStress(ctx context.Context) (*LoadTestResult, error) {
	rc := a.cfg.AIRouter
	if !rc.Enabled {
		return nil, fmt.Errorf("ai router: %w", ErrScenarioDisabled)
	}

	if err := a.begin(nil); err != nil {
		return nil, err
	}
	defer a.end()

	rec := NewRecorder(a.cfg.MaxLatencySamples)
	rec.Start(a.clk.Now())
	sampler := newResourceSampler(a.cfg.SampleInterval, a.clk)
	sampler.start()

	harness, err := newStabilityHarness(rc, a.router, rec, a.clk, a.log)
	if err != nil {
		sampler.stop()
		return nil, err
	}

	a.log.Info("starting ai router stability run",
		zap.Int("total_requests", rc.TotalRequests),
		zap.Float64("budget_limit_usd", rc.BudgetLimitUSD))

	start := a.clk.Now()
	stats, err := harness.Run(ctx)
	end := a.clk.Now()
	sampler.stop()

	if err != nil {
		// Dependency absent: propagate verbatim so callers can tell it
		// apart from a degraded run.
		return nil, err
	}

	result := a.buildResult("ai-router-stress", rec, sampler, start, end, nil)
	result.RouterStats = stats
	if stats.CircuitBreakerTrips > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("budget admission control rejected %d calls", stats.CircuitBreakerTrips))
	}

	if a.metrics != nil {
		a.metrics.ObserveResult(result)
		a.metrics.ObserveRouter(stats)
	}

	a.log.Info("ai router stability run finished",
		zap.Int64("sent", stats.TotalRequests),
		zap.Float64("budget_spent_usd", stats.BudgetSpentUSD),
		zap.Int64("breaker_trips", stats.CircuitBreakerTrips))
	return result, nil
}

// TestAIRouterStability runs the harness and returns only its stats,
// propagating ErrRouterUnavailable to the caller unchanged.
func (a *Agent) TestAIRouterStability(ctx context.Context) (*AIRouterStats, error) {
	result, err := a.RunAIRouterStress(ctx)
	if err != nil {
		return nil, err
	}
	return result.RouterStats, nil
}

// IsTestRunning reports whether any scenario is currently in a
// non-terminal state on this Agent.
func (a *Agent) IsTestRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Stop requests cancellation of the running scheduler, if any, and
// blocks until it reaches a terminal state. Calling Stop when nothing
// is running is a no-op, never an error.
func (a *Agent) Stop() {
	a.mu.Lock()
	current := a.current
	a.mu.Unlock()

	if current == nil {
		return
	}
	current.Stop()
}

func (a *Agent) begin(sch *scheduler) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return ErrAlreadyRunning
	}
	a.running = true
	a.current = sch
	return nil
}

func (a *Agent) end() {
	a.mu.Lock()
	a.running = false
	a.current = nil
	a.mu.Unlock()
}

func (a *Agent) runScenario(ctx context.Context, sc scenario) (*LoadTestResult, error) {
	rec := NewRecorder(a.cfg.MaxLatencySamples)
	sampler := newResourceSampler(a.cfg.SampleInterval, a.clk)
	sch := newScheduler(sc, rec, sampler, a.sim, a.clk, a.log)

	if err := a.begin(sch); err != nil {
		return nil, err
	}
	defer a.end()

	a.log.Info("starting load scenario",
		zap.String("scenario", sc.name),
		zap.Int("total_units", sc.totalUnits),
		zap.Int("batch_size", sc.batchSize),
		zap.Int("max_concurrency", sc.maxConcurrency),
		zap.Duration("phase_total", sc.phases.Total()))

	start := a.clk.Now()
	sch.run(ctx)
	end := a.clk.Now()

	result := a.buildResult(sc.name, rec, sampler, start, end, sch)

	if a.metrics != nil {
		a.metrics.ObserveResult(result)
	}

	a.log.Info("load scenario finished",
		zap.String("scenario", sc.name),
		zap.String("state", string(sch.State())),
		zap.Int64("total_requests", result.TotalRequests),
		zap.Float64("error_rate", result.ErrorRate),
		zap.Duration("p99", result.ResponseTime.P99))
	return result, nil
}

func (a *Agent) buildResult(name string, rec *Recorder, sampler *resourceSampler, start, end time.Time, sch *scheduler) *LoadTestResult {
	total, success, failed := rec.Counts()
	rt, tp := rec.Snapshot(end)

	result := &LoadTestResult{
		TestID:             uuid.NewString(),
		Scenario:           name,
		StartTime:          start,
		EndTime:            end,
		Duration:           end.Sub(start),
		TotalRequests:      total,
		SuccessfulRequests: success,
		FailedRequests:     failed,
		ResponseTime:       rt,
		Throughput:         tp,
		Resources:          sampler.metrics(),
		Errors:             []string{},
		Warnings:           []string{},
	}
	if total > 0 {
		result.ErrorRate = float64(failed) / float64(total)
	}

	if dropped := rec.Overwritten(); dropped > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%d latencies evicted from percentile buffer; totals remain exact", dropped))
	}

	if sch != nil {
		switch sch.State() {
		case StateCancelled:
			result.Warnings = append(result.Warnings, "run cancelled before completion; partial result")
		case StateCompleted:
			if claimed := sch.UnitsClaimed(); claimed < int64(sch.sc.totalUnits) {
				// Phase time is authoritative: expiring before all
				// units are processed is expected behavior.
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("phase windows elapsed after %d of %d units", claimed, sch.sc.totalUnits))
			}
		}
	}
	return result
}
