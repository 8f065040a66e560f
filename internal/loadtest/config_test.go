// internal/loadtest/config_test.go
package loadtest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.HeavyResidential.Enabled)
	assert.True(t, cfg.ModerateCommercial.Enabled)
	assert.True(t, cfg.AIRouter.Enabled)
	assert.Equal(t, ComplexityMedium, cfg.ModerateCommercial.Complexity)
	assert.Equal(t, 40*time.Second, cfg.HeavyResidential.Phases.Total())
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "negative batch size",
			mutate:  func(c *Config) { c.HeavyResidential.BatchSize = -5 },
			wantErr: "batch_size",
		},
		{
			name:    "zero total parcels",
			mutate:  func(c *Config) { c.HeavyResidential.TotalParcels = 0 },
			wantErr: "total_parcels",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.ModerateCommercial.ConcurrentPortfolios = 0 },
			wantErr: "concurrent_portfolios",
		},
		{
			name:    "unknown complexity",
			mutate:  func(c *Config) { c.ModerateCommercial.Complexity = "extreme" },
			wantErr: "complexity",
		},
		{
			name:    "negative phase duration",
			mutate:  func(c *Config) { c.HeavyResidential.Phases.RampUp = -time.Second },
			wantErr: "phase durations",
		},
		{
			name: "zero total phase duration",
			mutate: func(c *Config) {
				c.HeavyResidential.Phases = PhaseConfig{}
			},
			wantErr: "positive total duration",
		},
		{
			name:    "zero router budget",
			mutate:  func(c *Config) { c.AIRouter.BudgetLimitUSD = 0 },
			wantErr: "budget_limit_usd",
		},
		{
			name:    "negative router rps",
			mutate:  func(c *Config) { c.AIRouter.MaxRPS = -1 },
			wantErr: "max_rps",
		},
		{
			name:    "zero sample interval",
			mutate:  func(c *Config) { c.SampleInterval = 0 },
			wantErr: "sample_interval",
		},
		{
			name:    "zero latency buffer",
			mutate:  func(c *Config) { c.MaxLatencySamples = 0 },
			wantErr: "max_latency_samples",
		},
		{
			name:    "error rate out of range",
			mutate:  func(c *Config) { c.Thresholds.MaxErrorRate = 1.5 },
			wantErr: "max_error_rate",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestConfig_DisabledScenarioSkipsValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeavyResidential.Enabled = false
	cfg.HeavyResidential.BatchSize = -100 // ignored while disabled

	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	t.Run("overlays defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "loadtest.yaml")
		doc := `
heavy_residential:
  total_parcels: 5000
  concurrent_batches: 8
ai_router:
  budget_limit_usd: 2.5
thresholds:
  max_p99: 250ms
`
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, 5000, cfg.HeavyResidential.TotalParcels)
		assert.Equal(t, 8, cfg.HeavyResidential.ConcurrentBatches)
		assert.Equal(t, 2.5, cfg.AIRouter.BudgetLimitUSD)
		assert.Equal(t, 250*time.Millisecond, cfg.Thresholds.MaxP99)

		// Untouched fields keep their defaults.
		assert.Equal(t, 100, cfg.HeavyResidential.BatchSize)
		assert.Equal(t, ComplexityMedium, cfg.ModerateCommercial.Complexity)
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("heavy_residential:\n  batch_size: -1\n"), 0o600))

		cfg, err := LoadConfig(path)
		assert.Nil(t, cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "batch_size")
	})

	t.Run("missing file", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Nil(t, cfg)
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "garbage.yaml")
		require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o600))

		_, err := LoadConfig(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse config")
	})
}

func TestPhaseConfig_Total(t *testing.T) {
	p := PhaseConfig{RampUp: time.Second, Sustained: 3 * time.Second, RampDown: 2 * time.Second}
	assert.Equal(t, 6*time.Second, p.Total())
}
