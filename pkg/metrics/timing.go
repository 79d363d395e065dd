// Package metrics provides performance instrumentation for the window
// pipeline: per-stage timing counters collected in-memory with atomic
// operations. Collection is on by default and can be disabled with
// RA2_METRICS=0; the accumulated stats are reported once at shutdown.
//
// Usage:
//
//	func loadWindow() {
//	    defer metrics.Timer(metrics.WindowLoad)()
//	    // ... operation code
//	}
package metrics

import (
	"os"
	"sync/atomic"
	"time"
)

var enabled = os.Getenv("RA2_METRICS") != "0"

// TimingMetric accumulates timings for one named pipeline stage.
// All methods are safe for concurrent use.
type TimingMetric struct {
	name    string
	count   int64
	totalNs int64
	maxNs   int64
}

func newTimingMetric(name string) *TimingMetric {
	return &TimingMetric{name: name}
}

// Record adds a single measurement.
func (m *TimingMetric) Record(d time.Duration) {
	if !enabled {
		return
	}
	ns := d.Nanoseconds()
	atomic.AddInt64(&m.count, 1)
	atomic.AddInt64(&m.totalNs, ns)
	for {
		old := atomic.LoadInt64(&m.maxNs)
		if ns <= old || atomic.CompareAndSwapInt64(&m.maxNs, old, ns) {
			return
		}
	}
}

// Count returns the number of recorded measurements.
func (m *TimingMetric) Count() int64 {
	return atomic.LoadInt64(&m.count)
}

// Stats returns a snapshot of the accumulated statistics.
func (m *TimingMetric) Stats() TimingStats {
	count := atomic.LoadInt64(&m.count)
	totalNs := atomic.LoadInt64(&m.totalNs)
	maxNs := atomic.LoadInt64(&m.maxNs)

	var avgNs int64
	if count > 0 {
		avgNs = totalNs / count
	}
	return TimingStats{
		Name:    m.name,
		Count:   count,
		TotalMs: float64(totalNs) / 1e6,
		AvgMs:   float64(avgNs) / 1e6,
		MaxMs:   float64(maxNs) / 1e6,
	}
}

// TimingStats is one stage's snapshot.
type TimingStats struct {
	Name    string  `json:"name"`
	Count   int64   `json:"count"`
	TotalMs float64 `json:"total_ms"`
	AvgMs   float64 `json:"avg_ms"`
	MaxMs   float64 `json:"max_ms"`
}

// Timer returns a function that records elapsed time when called.
// Use with defer for automatic timing:
//
//	defer metrics.Timer(metrics.WindowLoad)()
func Timer(m *TimingMetric) func() {
	if !enabled || m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.Record(time.Since(start))
	}
}

// Timing metrics for the pipeline stages.
var (
	WindowLoad       = newTimingMetric("window_load")
	EdgeBuild        = newTimingMetric("edge_build")
	DiffusionCompute = newTimingMetric("diffusion_compute")
	VariantMetrics   = newTimingMetric("variant_metrics")
	PageRankCompute  = newTimingMetric("pagerank_compute")
	LouvainCompute   = newTimingMetric("louvain_compute")
	EchoCompute      = newTimingMetric("echo_compute")
	ResultWrite      = newTimingMetric("result_write")
)

// AllTimingStats returns stats for every stage that recorded data.
func AllTimingStats() []TimingStats {
	all := []*TimingMetric{
		WindowLoad,
		EdgeBuild,
		DiffusionCompute,
		VariantMetrics,
		PageRankCompute,
		LouvainCompute,
		EchoCompute,
		ResultWrite,
	}
	stats := make([]TimingStats, 0, len(all))
	for _, m := range all {
		if m.Count() > 0 {
			stats = append(stats, m.Stats())
		}
	}
	return stats
}
