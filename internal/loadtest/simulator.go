// internal/loadtest/simulator.go
package loadtest

import (
	"context"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
)

// RequestKind identifies which platform operation a simulated request
// represents.
type RequestKind string

const (
	RequestKindParcel    RequestKind = "parcel_valuation"
	RequestKindPortfolio RequestKind = "portfolio_analysis"
	RequestKindRouter    RequestKind = "ai_router"
)

// Simulator is the opaque system-under-test collaborator: one call, one
// outcome. The engine never inspects payloads, only latency and
// success/failure.
type Simulator func(ctx context.Context, kind RequestKind, complexity Complexity) RequestOutcome

// DefaultSimulator returns an in-process stub with synthetic latency and
// a small failure rate, so the engine runs standalone. Parcel valuations
// are cheap; portfolio analysis cost scales with complexity to emulate
// NOI and cap-rate computation across a whole portfolio.
func DefaultSimulator(clk clock.Clock) Simulator {
	return func(ctx context.Context, kind RequestKind, complexity Complexity) RequestOutcome {
		base, jitterMax, bytes, failureRate := simulatedProfile(kind, complexity)
		latency := base + time.Duration(rand.Int63n(int64(jitterMax))) // #nosec G404 - synthetic traffic

		start := clk.Now()
		timer := clk.Timer(latency)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			// The caller's context expired mid-request; report what we
			// actually waited, as a failure.
			return RequestOutcome{
				Latency:   clk.Since(start),
				Success:   false,
				Timestamp: clk.Now(),
			}
		case <-timer.C:
		}

		return RequestOutcome{
			Latency:   latency,
			Success:   rand.Float64() >= failureRate, // #nosec G404
			Bytes:     bytes,
			Timestamp: clk.Now(),
		}
	}
}

func simulatedProfile(kind RequestKind, complexity Complexity) (base, jitterMax time.Duration, bytes int64, failureRate float64) {
	switch kind {
	case RequestKindPortfolio:
		switch complexity {
		case ComplexityHigh:
			base = 45 * time.Millisecond
		case ComplexityMedium:
			base = 25 * time.Millisecond
		default:
			base = 12 * time.Millisecond
		}
		return base, base / 2, 16 * 1024, 0.02
	default:
		base = 8 * time.Millisecond
		return base, base / 2, 2 * 1024, 0.01
	}
}
