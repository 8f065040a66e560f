// Package loadtest implements the platform's embedded load-testing and
// performance-compliance engine: it synthesizes realistic traffic
// against the platform's own request paths and the external AI-routing
// dependency, measures latency, throughput and resource behavior under
// controlled ramp-up, sustained and ramp-down phases, and grades each
// run against fixed service-level targets.
//
// # Overview
//
// The engine has five parts:
//
//   - Recorder: accumulates per-request outcomes and computes
//     descriptive statistics (nearest-rank percentiles) on demand
//   - scheduler: drives a scenario through RampUp, Sustained and
//     RampDown with a bounded batch worker pool
//   - stability harness: concurrent AI-router calls under a finite
//     spend budget with local admission control and response schema
//     validation
//   - Agent: the façade owning configuration and run lifecycle, one
//     scenario at a time per instance
//   - Reporter: folds one or more results into a ComplianceReport with
//     a 0-100 performance score and deterministic recommendations
//
// # Quick Start
//
//	cfg := loadtest.DefaultConfig()
//	cfg.HeavyResidential.TotalParcels = 5000
//
//	agent, err := loadtest.NewAgent(cfg, nil)
//	if err != nil {
//	    return err
//	}
//
//	result, err := agent.RunHeavyResidentialLoad(ctx)
//	if err != nil {
//	    return err // ErrScenarioDisabled, ErrAlreadyRunning
//	}
//
//	report := loadtest.NewReporter(cfg.Thresholds).
//	    GenerateReport([]loadtest.LoadTestResult{*result}, "nightly")
//
// # Scenarios
//
// Three fixed scenario shapes exist: heavy residential (parcel
// valuation batches), moderate commercial (portfolio analysis, cost
// scaled by complexity), and AI router stress (budget-bounded routing
// calls). This is deliberately not a general-purpose load framework:
// no protocol plugins, no distributed generation.
//
// # Collaborators
//
// The system under test is an opaque Simulator func; the AI router is a
// RouterClient. Both have in-process defaults so the engine runs
// standalone, and both can be replaced to point at live systems.
// A RouterClient must wrap ErrRouterUnavailable when the dependency is
// absent entirely, which aborts a stability run; per-call errors are
// recorded and never abort anything.
//
// # Cancellation
//
// Agent.Stop requests cancellation at the next batch-issuance decision
// point and blocks until the run is terminal. In-flight batches drain
// so recorded latencies are never truncated; a cancelled run still
// yields a valid partial LoadTestResult.
package loadtest
