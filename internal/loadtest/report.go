// internal/loadtest/report.go
package loadtest

import (
	"time"
)

// PerformanceCompliance groups the core latency/error/throughput checks.
type PerformanceCompliance struct {
	P99WithinTarget         bool `json:"p99_within_target"`
	ErrorRateWithinLimit    bool `json:"error_rate_within_limit"`
	ThroughputMet           bool `json:"throughput_met"`
	ResourcesWithinCeilings bool `json:"resources_within_ceilings"`
}

// RouterCompliance groups the AI-router budget and contract checks.
type RouterCompliance struct {
	BudgetRespected         bool `json:"budget_respected"`
	NoBreakerTrips          bool `json:"no_breaker_trips"`
	SchemaValidationPassing bool `json:"schema_validation_passing"`
}

// DatabaseCompliance reflects how the bulk ingest and portfolio query
// paths held up under load, derived from the matching scenarios.
type DatabaseCompliance struct {
	BulkIngestWithinTarget       bool `json:"bulk_ingest_within_target"`
	PortfolioQueriesWithinTarget bool `json:"portfolio_queries_within_target"`
}

// SecurityCompliance checks that protective layers did not collapse
// under load: the error budget held and tail latency stayed bounded
// relative to the median.
type SecurityCompliance struct {
	ErrorBudgetPreserved   bool `json:"error_budget_preserved"`
	LatencyStableUnderLoad bool `json:"latency_stable_under_load"`
}

// Compliance is the full check matrix for a report.
type Compliance struct {
	PerformanceTargets PerformanceCompliance `json:"performance_targets"`
	AIRouter           RouterCompliance      `json:"ai_router"`
	Database           DatabaseCompliance    `json:"database"`
	Security           SecurityCompliance    `json:"security"`
}

// ReportSummary is the roll-up across all supplied results.
type ReportSummary struct {
	TotalTests       int     `json:"total_tests"`
	PassedTests      int     `json:"passed_tests"`
	PerformanceScore float64 `json:"performance_score"` // 0-100
}

// ComplianceReport is created once per reporting call from an immutable
// list of results and never mutated after construction. Serializing it
// is the caller's concern.
type ComplianceReport struct {
	SuiteName       string           `json:"suite_name"`
	GeneratedAt     time.Time        `json:"generated_at"`
	Summary         ReportSummary    `json:"summary"`
	Results         []LoadTestResult `json:"results"`
	Compliance      Compliance       `json:"compliance"`
	Recommendations []string         `json:"recommendations"`
}

// Reporter evaluates LoadTestResults against configured thresholds. It
// never errors on degraded input: a result with a 100% error rate is
// valid and simply scores zero.
type Reporter struct {
	thresholds Thresholds
}

// NewReporter creates a reporter. A zero Thresholds value falls back to
// the platform defaults.
func NewReporter(t Thresholds) *Reporter {
	if t == (Thresholds{}) {
		t = DefaultThresholds()
	}
	return &Reporter{thresholds: t}
}

// resultChecks is the per-result check vector. routerApplicable guards
// the fourth check group for results without router stats.
type resultChecks struct {
	latencyOK        bool
	errorRateOK      bool
	throughputOK     bool
	resourcesOK      bool
	routerApplicable bool
	routerOK         bool
	schemaOK         bool
	tailStable       bool
}

// GenerateReport evaluates the supplied results and assembles the
// report. Recommendations are a pure function of which checks failed.
func (r *Reporter) GenerateReport(results []LoadTestResult, suiteName string) *ComplianceReport {
	if suiteName == "" {
		suiteName = "charly-performance"
	}

	report := &ComplianceReport{
		SuiteName:   suiteName,
		GeneratedAt: time.Now(),
		Results:     append([]LoadTestResult(nil), results...),
		// Every check starts true and is ANDed down per result.
		Compliance: Compliance{
			PerformanceTargets: PerformanceCompliance{
				P99WithinTarget:         true,
				ErrorRateWithinLimit:    true,
				ThroughputMet:           true,
				ResourcesWithinCeilings: true,
			},
			AIRouter: RouterCompliance{
				BudgetRespected:         true,
				NoBreakerTrips:          true,
				SchemaValidationPassing: true,
			},
			Database: DatabaseCompliance{
				BulkIngestWithinTarget:       true,
				PortfolioQueriesWithinTarget: true,
			},
			Security: SecurityCompliance{
				ErrorBudgetPreserved:   true,
				LatencyStableUnderLoad: true,
			},
		},
		Recommendations: []string{},
	}
	report.Summary.TotalTests = len(results)

	if len(results) == 0 {
		return report
	}

	var scoreSum float64
	for i := range results {
		checks := r.evaluate(&results[i])
		score := r.score(&results[i], checks)
		scoreSum += score

		if r.allPass(checks) {
			report.Summary.PassedTests++
		}
		r.foldCompliance(&report.Compliance, &results[i], checks)
	}
	report.Summary.PerformanceScore = scoreSum / float64(len(results))
	report.Recommendations = recommend(report.Compliance)

	return report
}

func (r *Reporter) evaluate(res *LoadTestResult) resultChecks {
	t := r.thresholds

	checks := resultChecks{
		latencyOK:   res.ResponseTime.P99 <= t.MaxP99,
		errorRateOK: res.ErrorRate <= t.MaxErrorRate,
		throughputOK: t.MinThroughput <= 0 ||
			res.Throughput.RequestsPerSec >= t.MinThroughput,
		resourcesOK: res.Resources.PeakCPUPercent <= t.MaxCPUPercent &&
			res.Resources.PeakMemoryMB <= t.MaxMemoryMB,
		tailStable: res.ResponseTime.P50 <= 0 ||
			res.ResponseTime.Max <= 20*res.ResponseTime.P50,
	}

	if res.RouterStats != nil {
		checks.routerApplicable = true
		checks.routerOK = res.RouterStats.BudgetRemainingUSD >= 0 &&
			res.RouterStats.CircuitBreakerTrips <= t.MaxBreakerTrips
		checks.schemaOK = res.RouterStats.TotalRequests == 0 ||
			res.RouterStats.SchemaValidationSuccesses > 0
	}
	return checks
}

// score averages the weighted checks and scales to 0-100. A result that
// produced no successful requests scores zero outright.
func (r *Reporter) score(res *LoadTestResult, checks resultChecks) float64 {
	if res.TotalRequests > 0 && res.SuccessfulRequests == 0 {
		return 0
	}

	passed, applicable := 0, 3
	if checks.latencyOK {
		passed++
	}
	if checks.errorRateOK {
		passed++
	}
	if checks.resourcesOK {
		passed++
	}
	if checks.routerApplicable {
		applicable++
		if checks.routerOK && checks.schemaOK {
			passed++
		}
	}
	return float64(passed) / float64(applicable) * 100
}

func (r *Reporter) allPass(checks resultChecks) bool {
	if !checks.latencyOK || !checks.errorRateOK || !checks.throughputOK || !checks.resourcesOK {
		return false
	}
	if checks.routerApplicable && (!checks.routerOK || !checks.schemaOK) {
		return false
	}
	return true
}

// foldCompliance ANDs a result's checks into the report-wide matrix,
// attributing database checks to the scenario that exercised that path.
func (r *Reporter) foldCompliance(c *Compliance, res *LoadTestResult, checks resultChecks) {
	c.PerformanceTargets.P99WithinTarget = c.PerformanceTargets.P99WithinTarget && checks.latencyOK
	c.PerformanceTargets.ErrorRateWithinLimit = c.PerformanceTargets.ErrorRateWithinLimit && checks.errorRateOK
	c.PerformanceTargets.ThroughputMet = c.PerformanceTargets.ThroughputMet && checks.throughputOK
	c.PerformanceTargets.ResourcesWithinCeilings = c.PerformanceTargets.ResourcesWithinCeilings && checks.resourcesOK

	if checks.routerApplicable {
		stats := res.RouterStats
		c.AIRouter.BudgetRespected = c.AIRouter.BudgetRespected && stats.BudgetRemainingUSD >= 0
		c.AIRouter.NoBreakerTrips = c.AIRouter.NoBreakerTrips && stats.CircuitBreakerTrips == 0
		c.AIRouter.SchemaValidationPassing = c.AIRouter.SchemaValidationPassing && checks.schemaOK
	}

	switch res.Scenario {
	case "heavy-residential":
		c.Database.BulkIngestWithinTarget = c.Database.BulkIngestWithinTarget &&
			checks.latencyOK && checks.errorRateOK
	case "moderate-commercial":
		c.Database.PortfolioQueriesWithinTarget = c.Database.PortfolioQueriesWithinTarget &&
			checks.latencyOK && checks.errorRateOK
	}

	c.Security.ErrorBudgetPreserved = c.Security.ErrorBudgetPreserved && checks.errorRateOK
	c.Security.LatencyStableUnderLoad = c.Security.LatencyStableUnderLoad && checks.tailStable
}

// recommend maps failed compliance booleans to fixed remediation text.
// No free-text analysis: same failures, same recommendations.
func recommend(c Compliance) []string {
	recs := []string{}

	if !c.PerformanceTargets.P99WithinTarget {
		recs = append(recs, "API p99 latency exceeded its target: add caching on valuation lookups and review slow endpoints before the next compliance run.")
	}
	if !c.PerformanceTargets.ErrorRateWithinLimit {
		recs = append(recs, "Error rate exceeded the configured limit: inspect failed request logs and add retries where the failures are transient.")
	}
	if !c.PerformanceTargets.ThroughputMet {
		recs = append(recs, "Throughput fell below the configured floor: increase worker concurrency or batch sizes for bulk operations.")
	}
	if !c.PerformanceTargets.ResourcesWithinCeilings {
		recs = append(recs, "Resource ceilings were exceeded: profile CPU and heap under sustained load, or raise instance capacity.")
	}
	if !c.AIRouter.NoBreakerTrips {
		recs = append(recs, "AI router budget admission tripped during the run: raise the budget ceiling or route bulk tasks to a lower-cost model.")
	}
	if !c.AIRouter.BudgetRespected {
		recs = append(recs, "AI router spend reached its ceiling: review per-task token estimates against actual costs.")
	}
	if !c.AIRouter.SchemaValidationPassing {
		recs = append(recs, "AI router responses failed schema validation: align the router response contract with the published schema.")
	}
	if !c.Database.BulkIngestWithinTarget {
		recs = append(recs, "Bulk parcel ingest degraded under load: batch database writes and verify index coverage on parcel tables.")
	}
	if !c.Database.PortfolioQueriesWithinTarget {
		recs = append(recs, "Portfolio analysis queries degraded under load: precompute NOI aggregates for large portfolios.")
	}
	if !c.Security.LatencyStableUnderLoad {
		recs = append(recs, "Tail latency diverged sharply from the median: check rate limiting and connection pool saturation.")
	}

	return recs
}
