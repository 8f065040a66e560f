// internal/loadtest/metrics.go
package loadtest

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics exports run outcomes to Prometheus so an operator can
// watch a suite live on the /metrics endpoint the CLI exposes.
type RunMetrics struct {
	requestsTotal *prometheus.CounterVec
	breakerTrips  prometheus.Counter
	budgetSpent   prometheus.Gauge
	peakCPU       prometheus.Gauge
	peakHeapMB    prometheus.Gauge
	lastErrorRate *prometheus.GaugeVec
	lastP99Ms     *prometheus.GaugeVec
}

// NewRunMetrics creates and registers the collectors on the given
// registerer.
func NewRunMetrics(reg prometheus.Registerer) *RunMetrics {
	m := &RunMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loadtest_requests_total",
			Help: "Simulated requests issued, by scenario and outcome",
		}, []string{"scenario", "outcome"}),
		breakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loadtest_router_breaker_trips_total",
			Help: "AI router calls rejected by budget admission control",
		}),
		budgetSpent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loadtest_router_budget_spent_usd",
			Help: "AI router budget consumed in the latest stability run",
		}),
		peakCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loadtest_peak_cpu_percent",
			Help: "Peak CPU usage observed during the latest run",
		}),
		peakHeapMB: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loadtest_peak_heap_mb",
			Help: "Peak heap allocation observed during the latest run",
		}),
		lastErrorRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loadtest_error_rate",
			Help: "Error rate of the latest run, by scenario",
		}, []string{"scenario"}),
		lastP99Ms: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loadtest_p99_latency_ms",
			Help: "p99 latency of the latest run in milliseconds, by scenario",
		}, []string{"scenario"}),
	}

	reg.MustRegister(
		m.requestsTotal,
		m.breakerTrips,
		m.budgetSpent,
		m.peakCPU,
		m.peakHeapMB,
		m.lastErrorRate,
		m.lastP99Ms,
	)
	return m
}

// ObserveResult records a finished run's headline numbers.
func (m *RunMetrics) ObserveResult(res *LoadTestResult) {
	m.requestsTotal.WithLabelValues(res.Scenario, "success").Add(float64(res.SuccessfulRequests))
	m.requestsTotal.WithLabelValues(res.Scenario, "failure").Add(float64(res.FailedRequests))
	m.lastErrorRate.WithLabelValues(res.Scenario).Set(res.ErrorRate)
	m.lastP99Ms.WithLabelValues(res.Scenario).Set(float64(res.ResponseTime.P99.Milliseconds()))
	m.peakCPU.Set(res.Resources.PeakCPUPercent)
	m.peakHeapMB.Set(res.Resources.PeakMemoryMB)
}

// ObserveRouter records AI router stability stats.
func (m *RunMetrics) ObserveRouter(stats *AIRouterStats) {
	m.breakerTrips.Add(float64(stats.CircuitBreakerTrips))
	m.budgetSpent.Set(stats.BudgetSpentUSD)
}
