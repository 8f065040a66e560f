// internal/loadtest/recorder.go
package loadtest

import (
	"math"
	"sort"
	"sync"
	"time"
)

// RequestOutcome captures one simulated request. Outcomes are produced
// and consumed within a single run; they are never persisted.
type RequestOutcome struct {
	Latency   time.Duration
	Success   bool
	Bytes     int64
	Timestamp time.Time
}

// ResponseTimeMetrics are derived latency statistics, recomputed from
// the full outcome buffer and immutable once produced.
type ResponseTimeMetrics struct {
	Min  time.Duration `json:"min"`
	Max  time.Duration `json:"max"`
	Mean time.Duration `json:"mean"`
	P50  time.Duration `json:"p50"`
	P95  time.Duration `json:"p95"`
	P99  time.Duration `json:"p99"`
}

// ThroughputMetrics are derived from total outcome count and run duration.
type ThroughputMetrics struct {
	RequestsPerSec float64 `json:"requests_per_sec"`
	BytesPerSec    float64 `json:"bytes_per_sec"`
}

// Recorder accumulates per-request outcomes for one scenario run. It is
// the single shared-mutable point in the engine: Record may be called
// from any number of concurrent batch tasks. The latency buffer is
// bounded; once the cap is reached, the oldest latencies are overwritten
// so they drop out of percentile computation, while totals, byte counts
// and error rate remain exact. That trade-off keeps memory flat on very
// long runs at the cost of percentile precision.
type Recorder struct {
	mu sync.Mutex

	maxSamples int
	latencies  []time.Duration
	next       int // overwrite cursor once the buffer is full
	overwrites int64

	total   int64
	success int64
	failed  int64
	bytes   int64

	start time.Time
}

const defaultMaxLatencySamples = 100_000

// NewRecorder creates a recorder with the given latency buffer cap.
// Non-positive caps fall back to the default.
func NewRecorder(maxSamples int) *Recorder {
	if maxSamples <= 0 {
		maxSamples = defaultMaxLatencySamples
	}
	return &Recorder{
		maxSamples: maxSamples,
		latencies:  make([]time.Duration, 0, minInt(maxSamples, 16_384)),
	}
}

// Start marks the beginning of a run and clears any previous state.
// A recorder is owned by exactly one scheduler run at a time.
func (r *Recorder) Start(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.latencies = r.latencies[:0]
	r.next = 0
	r.overwrites = 0
	r.total = 0
	r.success = 0
	r.failed = 0
	r.bytes = 0
	r.start = now
}

// Record appends one outcome. It never blocks beyond the mutex; the
// buffer is pre-bounded so there is no allocation growth past the cap.
func (r *Recorder) Record(o RequestOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	if o.Success {
		r.success++
	} else {
		r.failed++
	}
	r.bytes += o.Bytes

	if len(r.latencies) < r.maxSamples {
		r.latencies = append(r.latencies, o.Latency)
		return
	}
	r.latencies[r.next] = o.Latency
	r.next = (r.next + 1) % r.maxSamples
	r.overwrites++
}

// Counts returns the exact outcome totals so far.
func (r *Recorder) Counts() (total, success, failed int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total, r.success, r.failed
}

// Overwritten reports how many latencies have been evicted from the
// percentile buffer.
func (r *Recorder) Overwritten() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overwrites
}

// Snapshot computes response-time and throughput metrics over the
// buffer. Safe to call during or after a run; percentiles are computed
// on a sorted copy so recording order never affects the result.
func (r *Recorder) Snapshot(now time.Time) (ResponseTimeMetrics, ThroughputMetrics) {
	r.mu.Lock()
	sorted := make([]time.Duration, len(r.latencies))
	copy(sorted, r.latencies)
	total := r.total
	bytes := r.bytes
	start := r.start
	r.mu.Unlock()

	var rt ResponseTimeMetrics
	if len(sorted) > 0 {
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		rt.Min = sorted[0]
		rt.Max = sorted[len(sorted)-1]

		var sum time.Duration
		for _, l := range sorted {
			sum += l
		}
		rt.Mean = sum / time.Duration(len(sorted))

		rt.P50 = nearestRank(sorted, 50)
		rt.P95 = nearestRank(sorted, 95)
		rt.P99 = nearestRank(sorted, 99)
	}

	var tp ThroughputMetrics
	if !start.IsZero() {
		if elapsed := now.Sub(start).Seconds(); elapsed > 0 {
			tp.RequestsPerSec = float64(total) / elapsed
			tp.BytesPerSec = float64(bytes) / elapsed
		}
	}
	return rt, tp
}

// nearestRank selects the p-th percentile from an ascending-sorted
// slice using nearest-rank selection (no interpolation), so the result
// is always an observed value and is deterministic for a given set.
func nearestRank(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
