// internal/loadtest/agent_test.go
package loadtest

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastTestConfig trades realism for runtime: small unit counts and
// short phase windows so scenarios finish in well under a second.
func fastTestConfig() *Config {
	cfg := DefaultConfig()
	cfg.HeavyResidential.BatchSize = 10
	cfg.HeavyResidential.TotalParcels = 100
	cfg.HeavyResidential.ConcurrentBatches = 4
	cfg.HeavyResidential.Phases = PhaseConfig{
		RampUp:    50 * time.Millisecond,
		Sustained: 5 * time.Second,
		RampDown:  100 * time.Millisecond,
	}
	cfg.ModerateCommercial.PortfolioSize = 5
	cfg.ModerateCommercial.TotalPortfolios = 20
	cfg.ModerateCommercial.ConcurrentPortfolios = 2
	cfg.ModerateCommercial.Phases = cfg.HeavyResidential.Phases
	cfg.AIRouter.TotalRequests = 6
	cfg.AIRouter.MaxConcurrent = 3
	cfg.AIRouter.MaxRPS = 0
	cfg.SampleInterval = 25 * time.Millisecond
	return cfg
}

func TestNewAgent_Defaults(t *testing.T) {
	a, err := NewAgent(nil, nil)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.False(t, a.IsTestRunning())
}

func TestNewAgent_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeavyResidential.BatchSize = -1

	a, err := NewAgent(cfg, nil)
	assert.Nil(t, a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_size")
}

func TestAgent_DisabledScenario(t *testing.T) {
	var calls atomic.Int64
	cfg := fastTestConfig()
	cfg.HeavyResidential.Enabled = false
	cfg.ModerateCommercial.Enabled = false
	cfg.AIRouter.Enabled = false

	a, err := NewAgent(cfg, &AgentOptions{Simulator: stubSimulator(0, &calls)})
	require.NoError(t, err)

	res, err := a.RunHeavyResidentialLoad(context.Background())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrScenarioDisabled)

	res, err = a.RunModerateCommercialLoad(context.Background())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrScenarioDisabled)

	res, err = a.RunAIRouterStress(context.Background())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrScenarioDisabled)

	assert.Zero(t, calls.Load(), "disabled scenarios must issue no requests")
	assert.False(t, a.IsTestRunning())
}

func TestAgent_RunHeavyResidentialLoad(t *testing.T) {
	a, err := NewAgent(fastTestConfig(), &AgentOptions{Simulator: stubSimulator(time.Millisecond, nil)})
	require.NoError(t, err)

	res, err := a.RunHeavyResidentialLoad(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.NotEmpty(t, res.TestID)
	assert.Equal(t, "heavy-residential", res.Scenario)
	assert.Equal(t, int64(100), res.TotalRequests)
	assert.Equal(t, res.TotalRequests, res.SuccessfulRequests+res.FailedRequests)
	assert.Zero(t, res.ErrorRate)
	assert.Positive(t, res.Duration)
	assert.False(t, res.EndTime.Before(res.StartTime))
	assert.Empty(t, res.Warnings)
	assert.False(t, a.IsTestRunning())
}

func TestAgent_RunModerateCommercialLoad(t *testing.T) {
	a, err := NewAgent(fastTestConfig(), &AgentOptions{Simulator: stubSimulator(time.Millisecond, nil)})
	require.NoError(t, err)

	res, err := a.RunModerateCommercialLoad(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "moderate-commercial", res.Scenario)
	assert.Equal(t, int64(20), res.TotalRequests)
}

func TestAgent_SequentialRunsIndependent(t *testing.T) {
	a, err := NewAgent(fastTestConfig(), &AgentOptions{Simulator: stubSimulator(0, nil)})
	require.NoError(t, err)

	first, err := a.RunHeavyResidentialLoad(context.Background())
	require.NoError(t, err)
	second, err := a.RunHeavyResidentialLoad(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.TestID, second.TestID)
	assert.Equal(t, first.TotalRequests, second.TotalRequests)
}

func TestAgent_ConcurrentRunRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once atomic.Bool
	sim := func(ctx context.Context, kind RequestKind, complexity Complexity) RequestOutcome {
		if once.CompareAndSwap(false, true) {
			close(started)
		}
		<-release
		return RequestOutcome{Latency: time.Millisecond, Success: true}
	}

	a, err := NewAgent(fastTestConfig(), &AgentOptions{Simulator: sim})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_, _ = a.RunHeavyResidentialLoad(context.Background())
		close(done)
	}()

	<-started
	assert.True(t, a.IsTestRunning())

	_, err = a.RunModerateCommercialLoad(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("first run never finished")
	}
	assert.False(t, a.IsTestRunning())
}

func TestAgent_StopIdleIsNoop(t *testing.T) {
	a, err := NewAgent(fastTestConfig(), nil)
	require.NoError(t, err)

	a.Stop()
	a.Stop()
	assert.False(t, a.IsTestRunning())
}

func TestAgent_StopCancelsRun(t *testing.T) {
	cfg := fastTestConfig()
	cfg.HeavyResidential.TotalParcels = 1_000_000
	cfg.HeavyResidential.Phases.Sustained = 60 * time.Second

	a, err := NewAgent(cfg, &AgentOptions{Simulator: stubSimulator(time.Millisecond, nil)})
	require.NoError(t, err)

	type runOutcome struct {
		res *LoadTestResult
		err error
	}
	results := make(chan runOutcome, 1)
	go func() {
		res, runErr := a.RunHeavyResidentialLoad(context.Background())
		results <- runOutcome{res, runErr}
	}()

	require.Eventually(t, a.IsTestRunning, 2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	a.Stop()

	var out runOutcome
	select {
	case out = <-results:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop within the grace period")
	}
	require.NoError(t, out.err)
	res := out.res

	// A cancelled run still yields a valid partial result.
	assert.Positive(t, res.TotalRequests)
	assert.Less(t, res.TotalRequests, int64(1_000_000))
	assert.Contains(t, res.Warnings, "run cancelled before completion; partial result")

	require.Eventually(t, func() bool { return !a.IsTestRunning() },
		time.Second, 5*time.Millisecond)
}

func TestAgent_RunAIRouterStress(t *testing.T) {
	a, err := NewAgent(fastTestConfig(), nil)
	require.NoError(t, err)

	res, err := a.RunAIRouterStress(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.RouterStats)

	assert.Equal(t, "ai-router-stress", res.Scenario)
	assert.Equal(t, int64(6), res.RouterStats.TotalRequests)
	assert.Equal(t, res.RouterStats.TotalRequests, res.TotalRequests)
	assert.GreaterOrEqual(t, res.RouterStats.BudgetRemainingUSD, 0.0)
}

func TestAgent_TestAIRouterStability(t *testing.T) {
	a, err := NewAgent(fastTestConfig(), nil)
	require.NoError(t, err)

	stats, err := a.TestAIRouterStability(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(6), stats.TotalRequests)
	assert.Equal(t, int64(6), stats.SchemaValidationSuccesses)
}

func TestAgent_RouterUnavailable(t *testing.T) {
	router := NewSimulatedRouterClient(nil)
	router.Unavailable = true

	a, err := NewAgent(fastTestConfig(), &AgentOptions{Router: router})
	require.NoError(t, err)

	stats, err := a.TestAIRouterStability(context.Background())
	assert.Nil(t, stats)
	assert.ErrorIs(t, err, ErrRouterUnavailable)
	assert.False(t, a.IsTestRunning())
}
