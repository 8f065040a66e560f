// internal/loadtest/config.go
package loadtest

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Complexity scales the simulated cost of a commercial portfolio request.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

func (c Complexity) valid() bool {
	switch c {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
		return true
	}
	return false
}

// durationValue parses human-readable durations ("500ms", "30s") from
// YAML, which the yaml package does not do for time.Duration itself.
type durationValue time.Duration

func (d *durationValue) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q, use forms like \"500ms\" or \"30s\"", value.Value)
	}
	*d = durationValue(parsed)
	return nil
}

// PhaseConfig defines the three timed phases of a scenario run.
type PhaseConfig struct {
	RampUp    time.Duration `yaml:"ramp_up"`
	Sustained time.Duration `yaml:"sustained"`
	RampDown  time.Duration `yaml:"ramp_down"`
}

// UnmarshalYAML overlays only the fields present in the document so a
// partial phases block keeps the remaining defaults.
func (p *PhaseConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		RampUp    *durationValue `yaml:"ramp_up"`
		Sustained *durationValue `yaml:"sustained"`
		RampDown  *durationValue `yaml:"ramp_down"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.RampUp != nil {
		p.RampUp = time.Duration(*raw.RampUp)
	}
	if raw.Sustained != nil {
		p.Sustained = time.Duration(*raw.Sustained)
	}
	if raw.RampDown != nil {
		p.RampDown = time.Duration(*raw.RampDown)
	}
	return nil
}

// Total returns the full phase sequence duration.
func (p PhaseConfig) Total() time.Duration {
	return p.RampUp + p.Sustained + p.RampDown
}

func (p PhaseConfig) validate(scope string) error {
	if p.RampUp < 0 || p.Sustained < 0 || p.RampDown < 0 {
		return fmt.Errorf("%s: phase durations must not be negative", scope)
	}
	if p.Total() <= 0 {
		return fmt.Errorf("%s: phase sequence must have a positive total duration", scope)
	}
	return nil
}

// ResidentialConfig shapes the heavy residential scenario: batches of
// parcel valuations issued at bounded concurrency.
type ResidentialConfig struct {
	Enabled           bool        `yaml:"enabled"`
	BatchSize         int         `yaml:"batch_size"`
	TotalParcels      int         `yaml:"total_parcels"`
	ConcurrentBatches int         `yaml:"concurrent_batches"`
	Phases            PhaseConfig `yaml:"phases"`
}

func (c ResidentialConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("heavy_residential: batch_size must be positive, got %d", c.BatchSize)
	}
	if c.TotalParcels <= 0 {
		return fmt.Errorf("heavy_residential: total_parcels must be positive, got %d", c.TotalParcels)
	}
	if c.ConcurrentBatches <= 0 {
		return fmt.Errorf("heavy_residential: concurrent_batches must be positive, got %d", c.ConcurrentBatches)
	}
	return c.Phases.validate("heavy_residential")
}

// CommercialConfig shapes the moderate commercial scenario: portfolio
// analysis requests whose simulated cost scales with complexity.
type CommercialConfig struct {
	Enabled              bool        `yaml:"enabled"`
	PortfolioSize        int         `yaml:"portfolio_size"`
	TotalPortfolios      int         `yaml:"total_portfolios"`
	ConcurrentPortfolios int         `yaml:"concurrent_portfolios"`
	Complexity           Complexity  `yaml:"complexity"`
	Phases               PhaseConfig `yaml:"phases"`
}

func (c CommercialConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if c.PortfolioSize <= 0 {
		return fmt.Errorf("moderate_commercial: portfolio_size must be positive, got %d", c.PortfolioSize)
	}
	if c.TotalPortfolios <= 0 {
		return fmt.Errorf("moderate_commercial: total_portfolios must be positive, got %d", c.TotalPortfolios)
	}
	if c.ConcurrentPortfolios <= 0 {
		return fmt.Errorf("moderate_commercial: concurrent_portfolios must be positive, got %d", c.ConcurrentPortfolios)
	}
	if !c.Complexity.valid() {
		return fmt.Errorf("moderate_commercial: complexity must be low, medium or high, got %q", c.Complexity)
	}
	return c.Phases.validate("moderate_commercial")
}

// RouterConfig shapes the AI router stability scenario.
type RouterConfig struct {
	Enabled        bool    `yaml:"enabled"`
	TotalRequests  int     `yaml:"total_requests"`
	MaxConcurrent  int     `yaml:"max_concurrent"`
	MaxRPS         int     `yaml:"max_rps"` // 0 = unpaced
	BudgetLimitUSD float64 `yaml:"budget_limit_usd"`
}

func (c RouterConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if c.TotalRequests <= 0 {
		return fmt.Errorf("ai_router: total_requests must be positive, got %d", c.TotalRequests)
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("ai_router: max_concurrent must be positive, got %d", c.MaxConcurrent)
	}
	if c.MaxRPS < 0 {
		return fmt.Errorf("ai_router: max_rps must not be negative, got %d", c.MaxRPS)
	}
	if c.BudgetLimitUSD <= 0 {
		return fmt.Errorf("ai_router: budget_limit_usd must be positive, got %f", c.BudgetLimitUSD)
	}
	return nil
}

// Thresholds are the fixed service-level targets the Compliance Reporter
// evaluates results against.
type Thresholds struct {
	MaxP99          time.Duration `yaml:"max_p99"`
	MaxErrorRate    float64       `yaml:"max_error_rate"` // fraction, 0.0-1.0
	MinThroughput   float64       `yaml:"min_throughput"` // requests per second
	MaxCPUPercent   float64       `yaml:"max_cpu_percent"`
	MaxMemoryMB     float64       `yaml:"max_memory_mb"`
	MaxBreakerTrips int64         `yaml:"max_breaker_trips"`
}

func (t *Thresholds) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		MaxP99          *durationValue `yaml:"max_p99"`
		MaxErrorRate    *float64       `yaml:"max_error_rate"`
		MinThroughput   *float64       `yaml:"min_throughput"`
		MaxCPUPercent   *float64       `yaml:"max_cpu_percent"`
		MaxMemoryMB     *float64       `yaml:"max_memory_mb"`
		MaxBreakerTrips *int64         `yaml:"max_breaker_trips"`
	}{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.MaxP99 != nil {
		t.MaxP99 = time.Duration(*raw.MaxP99)
	}
	if raw.MaxErrorRate != nil {
		t.MaxErrorRate = *raw.MaxErrorRate
	}
	if raw.MinThroughput != nil {
		t.MinThroughput = *raw.MinThroughput
	}
	if raw.MaxCPUPercent != nil {
		t.MaxCPUPercent = *raw.MaxCPUPercent
	}
	if raw.MaxMemoryMB != nil {
		t.MaxMemoryMB = *raw.MaxMemoryMB
	}
	if raw.MaxBreakerTrips != nil {
		t.MaxBreakerTrips = *raw.MaxBreakerTrips
	}
	return nil
}

func (t Thresholds) validate() error {
	if t.MaxP99 <= 0 {
		return fmt.Errorf("thresholds: max_p99 must be positive, got %v", t.MaxP99)
	}
	if t.MaxErrorRate < 0 || t.MaxErrorRate > 1 {
		return fmt.Errorf("thresholds: max_error_rate must be within [0,1], got %f", t.MaxErrorRate)
	}
	if t.MinThroughput < 0 {
		return fmt.Errorf("thresholds: min_throughput must not be negative, got %f", t.MinThroughput)
	}
	if t.MaxCPUPercent <= 0 || t.MaxMemoryMB <= 0 {
		return fmt.Errorf("thresholds: resource ceilings must be positive")
	}
	if t.MaxBreakerTrips < 0 {
		return fmt.Errorf("thresholds: max_breaker_trips must not be negative, got %d", t.MaxBreakerTrips)
	}
	return nil
}

// Config is the full engine configuration, one YAML document. Overrides
// are resolved at construction time; invalid bounds surface as errors
// here rather than being silently defaulted.
type Config struct {
	HeavyResidential   ResidentialConfig `yaml:"heavy_residential"`
	ModerateCommercial CommercialConfig  `yaml:"moderate_commercial"`
	AIRouter           RouterConfig      `yaml:"ai_router"`

	// SampleInterval is how often resource samples are collected during
	// a run, independent of request issuance.
	SampleInterval time.Duration `yaml:"sample_interval"`

	// MaxLatencySamples bounds the recorder's in-memory latency buffer.
	// Totals and error rate stay exact past the cap; only percentile
	// precision degrades.
	MaxLatencySamples int `yaml:"max_latency_samples"`

	Thresholds Thresholds `yaml:"thresholds"`
}

// UnmarshalYAML decodes sections in place so a partial document overlays
// whatever the Config already holds, normally the defaults.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		HeavyResidential   *ResidentialConfig `yaml:"heavy_residential"`
		ModerateCommercial *CommercialConfig  `yaml:"moderate_commercial"`
		AIRouter           *RouterConfig      `yaml:"ai_router"`
		SampleInterval     *durationValue     `yaml:"sample_interval"`
		MaxLatencySamples  *int               `yaml:"max_latency_samples"`
		Thresholds         *Thresholds        `yaml:"thresholds"`
	}{
		HeavyResidential:   &c.HeavyResidential,
		ModerateCommercial: &c.ModerateCommercial,
		AIRouter:           &c.AIRouter,
		Thresholds:         &c.Thresholds,
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.SampleInterval != nil {
		c.SampleInterval = time.Duration(*raw.SampleInterval)
	}
	if raw.MaxLatencySamples != nil {
		c.MaxLatencySamples = *raw.MaxLatencySamples
	}
	return nil
}

// DefaultConfig returns sensible defaults for all three scenarios.
func DefaultConfig() *Config {
	return &Config{
		HeavyResidential: ResidentialConfig{
			Enabled:           true,
			BatchSize:         100,
			TotalParcels:      1000,
			ConcurrentBatches: 4,
			Phases: PhaseConfig{
				RampUp:    5 * time.Second,
				Sustained: 30 * time.Second,
				RampDown:  5 * time.Second,
			},
		},
		ModerateCommercial: CommercialConfig{
			Enabled:              true,
			PortfolioSize:        25,
			TotalPortfolios:      200,
			ConcurrentPortfolios: 3,
			Complexity:           ComplexityMedium,
			Phases: PhaseConfig{
				RampUp:    5 * time.Second,
				Sustained: 30 * time.Second,
				RampDown:  5 * time.Second,
			},
		},
		AIRouter: RouterConfig{
			Enabled:        true,
			TotalRequests:  100,
			MaxConcurrent:  10,
			MaxRPS:         50,
			BudgetLimitUSD: 5.00,
		},
		SampleInterval:    500 * time.Millisecond,
		MaxLatencySamples: 100_000,
		Thresholds:        DefaultThresholds(),
	}
}

// DefaultThresholds returns the platform's standing performance targets.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxP99:          500 * time.Millisecond,
		MaxErrorRate:    0.05,
		MinThroughput:   10,
		MaxCPUPercent:   85,
		MaxMemoryMB:     2048,
		MaxBreakerTrips: 0,
	}
}

// Validate checks numeric bounds for every enabled scenario.
func (c *Config) Validate() error {
	if err := c.HeavyResidential.validate(); err != nil {
		return err
	}
	if err := c.ModerateCommercial.validate(); err != nil {
		return err
	}
	if err := c.AIRouter.validate(); err != nil {
		return err
	}
	if c.SampleInterval <= 0 {
		return fmt.Errorf("sample_interval must be positive, got %v", c.SampleInterval)
	}
	if c.MaxLatencySamples <= 0 {
		return fmt.Errorf("max_latency_samples must be positive, got %d", c.MaxLatencySamples)
	}
	return c.Thresholds.validate()
}

// LoadConfig reads a YAML config file, overlaying it on DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 - operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
