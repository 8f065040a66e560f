// internal/loadtest/harness.go
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RouterRequest is one routing task submitted to the AI router
// collaborator. Task types and token estimates mirror the platform's
// real routing traffic (narrative generation, summaries, bulk runs).
type RouterRequest struct {
	TaskType      string `json:"task_type"`
	TokenEstimate int    `json:"token_estimate"`
}

// RouterResponse is the collaborator's answer: which model served the
// task, what it cost, and the raw body for schema validation.
type RouterResponse struct {
	Model   string
	CostUSD float64
	Body    []byte
}

// RouterClient is the opaque AI-routing collaborator. Implementations
// must wrap ErrRouterUnavailable when the dependency is absent entirely,
// as opposed to returning an ordinary error for a degraded call.
type RouterClient interface {
	Invoke(ctx context.Context, req RouterRequest) (*RouterResponse, error)
}

// AIRouterStats summarizes a stability run against the AI router.
type AIRouterStats struct {
	TotalRequests             int64   `json:"total_requests"`
	BudgetSpentUSD            float64 `json:"budget_spent_usd"`
	BudgetRemainingUSD        float64 `json:"budget_remaining_usd"`
	CircuitBreakerTrips       int64   `json:"circuit_breaker_trips"`
	SchemaValidationSuccesses int64   `json:"schema_validation_successes"`
}

// routerResponseSchema is the contract every router response must meet.
const routerResponseSchema = `{
	"type": "object",
	"required": ["model", "cost_usd", "content"],
	"properties": {
		"model": {"type": "string", "minLength": 1},
		"cost_usd": {"type": "number", "minimum": 0},
		"content": {"type": "string"}
	}
}`

// nominalCostPerToken is the admission-control estimate used before a
// call is sent; the collaborator reports the actual cost afterwards.
const nominalCostPerToken = 0.000015

// routerTasks is the fixed traffic mix the harness cycles through.
var routerTasks = []RouterRequest{
	{TaskType: "narrative", TokenEstimate: 800},
	{TaskType: "summary", TokenEstimate: 1000},
	{TaskType: "bulk", TokenEstimate: 10000},
}

// stabilityHarness issues concurrent router calls while tracking spend
// against a finite budget. Once the next call's estimated cost would
// exceed the budget limit, the call is rejected locally (never sent)
// and counted as a circuit-breaker trip; that is the harness's own
// admission control, standing in for the production circuit breaker.
type stabilityHarness struct {
	cfg     RouterConfig
	client  RouterClient
	rec     *Recorder // optional; nil skips outcome recording
	clk     clock.Clock
	log     *zap.Logger
	limiter *rate.Limiter
	schema  *gojsonschema.Schema

	mu    sync.Mutex
	spent float64
	trips int64

	sent     int64
	schemaOK int64
}

func newStabilityHarness(cfg RouterConfig, client RouterClient, rec *Recorder, clk clock.Clock, log *zap.Logger) (*stabilityHarness, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(routerResponseSchema))
	if err != nil {
		return nil, fmt.Errorf("compile router response schema: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.MaxRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxRPS), cfg.MaxRPS)
	}

	return &stabilityHarness{
		cfg:     cfg,
		client:  client,
		rec:     rec,
		clk:     clk,
		log:     log,
		limiter: limiter,
		schema:  schema,
	}, nil
}

// Run issues the configured number of calls at bounded concurrency and
// returns the accumulated stats. A dependency-absent collaborator
// aborts the run with ErrRouterUnavailable; per-call failures do not.
func (h *stabilityHarness) Run(ctx context.Context) (*AIRouterStats, error) {
	sem := make(chan struct{}, h.cfg.MaxConcurrent)
	var wg sync.WaitGroup

	var unavailable atomic.Bool
	var firstErr error
	var errOnce sync.Once

	for i := 0; i < h.cfg.TotalRequests; i++ {
		if unavailable.Load() || ctx.Err() != nil {
			break
		}

		req := routerTasks[i%len(routerTasks)]

		if !h.admit(estimateCost(req)) {
			continue
		}

		if h.limiter != nil {
			if err := h.limiter.Wait(ctx); err != nil {
				break
			}
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(req RouterRequest) {
			defer wg.Done()
			defer func() { <-sem }()

			atomic.AddInt64(&h.sent, 1)
			start := h.clk.Now()
			resp, err := h.client.Invoke(ctx, req)
			latency := h.clk.Since(start)

			if err != nil {
				if errors.Is(err, ErrRouterUnavailable) {
					unavailable.Store(true)
					errOnce.Do(func() { firstErr = err })
				}
				h.record(RequestOutcome{Latency: latency, Success: false, Timestamp: h.clk.Now()})
				return
			}

			h.settle(resp.CostUSD)
			if h.validate(resp.Body) {
				atomic.AddInt64(&h.schemaOK, 1)
			}
			h.record(RequestOutcome{
				Latency:   latency,
				Success:   true,
				Bytes:     int64(len(resp.Body)),
				Timestamp: h.clk.Now(),
			})
		}(req)
	}

	wg.Wait()

	if unavailable.Load() {
		return nil, firstErr
	}
	return h.stats(), nil
}

// admit applies budget admission control before a call is sent. A
// rejection counts as a circuit-breaker trip.
func (h *stabilityHarness) admit(estimatedCost float64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.spent+estimatedCost > h.cfg.BudgetLimitUSD {
		h.trips++
		return false
	}
	return true
}

// settle books the actual cost of a completed call. Spend is clamped at
// the limit so remaining budget can never go negative, even when the
// actual cost overshoots the admission estimate.
func (h *stabilityHarness) settle(cost float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.spent += cost
	if h.spent > h.cfg.BudgetLimitUSD {
		h.spent = h.cfg.BudgetLimitUSD
	}
}

func (h *stabilityHarness) validate(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	result, err := h.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		h.log.Debug("router response schema validation failed", zap.Error(err))
		return false
	}
	return result.Valid()
}

func (h *stabilityHarness) record(o RequestOutcome) {
	if h.rec != nil {
		h.rec.Record(o)
	}
}

func (h *stabilityHarness) stats() *AIRouterStats {
	h.mu.Lock()
	spent := h.spent
	trips := h.trips
	h.mu.Unlock()

	remaining := h.cfg.BudgetLimitUSD - spent
	if remaining < 0 {
		remaining = 0
	}

	return &AIRouterStats{
		TotalRequests:             atomic.LoadInt64(&h.sent),
		BudgetSpentUSD:            spent,
		BudgetRemainingUSD:        remaining,
		CircuitBreakerTrips:       trips,
		SchemaValidationSuccesses: atomic.LoadInt64(&h.schemaOK),
	}
}

func estimateCost(req RouterRequest) float64 {
	return float64(req.TokenEstimate) * nominalCostPerToken
}
