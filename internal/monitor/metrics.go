package monitor

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// CycleMetrics tracks engine cycle performance across the fleet. It
// implements the engine Observer seam.
type CycleMetrics struct {
	CycleLatency *LatencyHistogram

	cycles uint64
	faults uint64
}

// NewCycleMetrics creates a metrics instance with a 1000-sample window.
func NewCycleMetrics() *CycleMetrics {
	return &CycleMetrics{CycleLatency: NewLatencyHistogram(1000)}
}

func (m *CycleMetrics) ObserveCycle(d time.Duration) {
	atomic.AddUint64(&m.cycles, 1)
	m.CycleLatency.Record(float64(d.Microseconds()) / 1000.0)
}

func (m *CycleMetrics) ObserveFault() {
	atomic.AddUint64(&m.faults, 1)
}

// Snapshot returns current counters and latency stats.
func (m *CycleMetrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Cycles:  atomic.LoadUint64(&m.cycles),
		Faults:  atomic.LoadUint64(&m.faults),
		Latency: m.CycleLatency.Stats(),
	}
}

// MetricsSnapshot is the API-facing metrics view.
type MetricsSnapshot struct {
	Cycles  uint64       `json:"cycles"`
	Faults  uint64       `json:"faults"`
	Latency LatencyStats `json:"cycle_latency_ms"`
}

// LatencyHistogram keeps a sliding window of samples with lazily computed
// percentile stats.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// LatencyStats summarizes a sample window in milliseconds.
type LatencyStats struct {
	Count int     `json:"count"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	Max   float64 `json:"max"`
}

// NewLatencyHistogram creates a sliding-window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// Stats computes (or returns cached) window statistics.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		h.cachedStats = LatencyStats{}
		h.dirty = false
		return h.cachedStats
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}

	h.cachedStats = LatencyStats{
		Count: n,
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[min(n-1, n*95/100)],
		Max:   sorted[n-1],
	}
	h.dirty = false
	return h.cachedStats
}
