// internal/loadtest/errors.go
package loadtest

import "errors"

var (
	// ErrScenarioDisabled is returned when a run is requested for a
	// scenario whose configuration has enabled: false. It is fatal to
	// that run only, not to the Agent.
	ErrScenarioDisabled = errors.New("loadtest: scenario disabled by configuration")

	// ErrAlreadyRunning is returned when a run is requested while the
	// Agent is still driving another scenario. Runs never queue.
	ErrAlreadyRunning = errors.New("loadtest: a scenario is already running on this agent")

	// ErrRouterUnavailable indicates the AI routing dependency is absent
	// entirely (connection-level failure), as opposed to returning
	// per-call errors. The stability harness propagates it verbatim.
	ErrRouterUnavailable = errors.New("loadtest: ai router unavailable")
)
