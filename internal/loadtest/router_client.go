// internal/loadtest/router_client.go
package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
)

// RouterHTTPClient calls a live AI-routing endpoint over HTTP. A
// connection-level failure (the dependency is absent, not merely
// erroring) maps to ErrRouterUnavailable; a non-2xx status is an
// ordinary per-call failure.
type RouterHTTPClient struct {
	baseURL string
	httpc   *http.Client
}

// NewRouterHTTPClient creates a client for the given router base URL.
func NewRouterHTTPClient(baseURL string) *RouterHTTPClient {
	return &RouterHTTPClient{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Invoke submits one routing task.
func (c *RouterHTTPClient) Invoke(ctx context.Context, req RouterRequest) (*RouterResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal router request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/route", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build router request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("reach router at %s: %w: %v", c.baseURL, ErrRouterUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read router response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("router returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Model   string  `json:"model"`
		CostUSD float64 `json:"cost_usd"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode router response: %w", err)
	}

	return &RouterResponse{
		Model:   parsed.Model,
		CostUSD: parsed.CostUSD,
		Body:    body,
	}, nil
}

// simulatedModel mirrors the platform's routing table: quality tiers
// with per-token costs, cheapest admissible model wins.
type simulatedModel struct {
	name         string
	costPerToken float64
	latency      time.Duration
}

var simulatedModels = []simulatedModel{
	{name: "llama-openrouter", costPerToken: 0.000002, latency: 20 * time.Millisecond},
	{name: "anthropic-claude", costPerToken: 0.000015, latency: 35 * time.Millisecond},
	{name: "openai-gpt4", costPerToken: 0.000030, latency: 50 * time.Millisecond},
}

// SimulatedRouterClient is an in-process RouterClient used for
// standalone runs and tests. Narrative tasks require a high-quality
// model; everything else takes the cheapest tier.
type SimulatedRouterClient struct {
	clk clock.Clock

	// FailureRate is the fraction of calls that return a degraded-call
	// error. Unavailable makes every call report dependency absence.
	FailureRate float64
	Unavailable bool
}

// NewSimulatedRouterClient creates a simulated router with no failures.
func NewSimulatedRouterClient(clk clock.Clock) *SimulatedRouterClient {
	return &SimulatedRouterClient{clk: clk}
}

// Invoke serves one routing task synthetically.
func (c *SimulatedRouterClient) Invoke(ctx context.Context, req RouterRequest) (*RouterResponse, error) {
	if c.Unavailable {
		return nil, fmt.Errorf("simulated router: %w", ErrRouterUnavailable)
	}

	model := simulatedModels[0]
	if req.TaskType == "narrative" {
		model = simulatedModels[2]
	}

	timer := c.clk.Timer(model.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	if c.FailureRate > 0 && rand.Float64() < c.FailureRate { // #nosec G404 - synthetic traffic
		return nil, fmt.Errorf("simulated router: model %s overloaded", model.name)
	}

	cost := float64(req.TokenEstimate) * model.costPerToken
	body, err := json.Marshal(map[string]interface{}{
		"model":    model.name,
		"cost_usd": cost,
		"content":  fmt.Sprintf("synthetic %s response", req.TaskType),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal simulated response: %w", err)
	}

	return &RouterResponse{Model: model.name, CostUSD: cost, Body: body}, nil
}
