package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// LatencyTracker keeps per-operation latency quantiles in DDSketches.
// Prometheus histograms answer "how many under N seconds"; the tracker
// answers "what is p99 right now" for /api/stats and the CLI summary.
type LatencyTracker struct {
	mu               sync.Mutex
	sketches         map[string]*ddsketch.DDSketch
	relativeAccuracy float64
}

// LatencyStats summarises one operation. Values are milliseconds.
type LatencyStats struct {
	Operation string  `json:"operation"`
	Count     int64   `json:"count"`
	Min       float64 `json:"minMs"`
	P50       float64 `json:"p50Ms"`
	P90       float64 `json:"p90Ms"`
	P99       float64 `json:"p99Ms"`
	Max       float64 `json:"maxMs"`
}

// NewLatencyTracker creates a tracker; relativeAccuracy of 0.01 means
// quantiles are accurate to within 1%.
func NewLatencyTracker(relativeAccuracy float64) *LatencyTracker {
	return &LatencyTracker{
		sketches:         make(map[string]*ddsketch.DDSketch),
		relativeAccuracy: relativeAccuracy,
	}
}

// Record adds one observation for operation.
func (lt *LatencyTracker) Record(operation string, d time.Duration) {
	if lt == nil {
		return
	}

	lt.mu.Lock()
	defer lt.mu.Unlock()

	sketch, ok := lt.sketches[operation]
	if !ok {
		var err error
		sketch, err = ddsketch.LogUnboundedDenseDDSketch(lt.relativeAccuracy)
		if err != nil {
			sketch, _ = ddsketch.NewDefaultDDSketch(lt.relativeAccuracy)
		}
		lt.sketches[operation] = sketch
	}

	// DDSketch rejects negative values
	ms := float64(d.Microseconds()) / 1000.0
	if ms < 0 {
		ms = 0
	}
	_ = sketch.Add(ms)
}

// Stats returns the summary for a single operation.
func (lt *LatencyTracker) Stats(operation string) (LatencyStats, error) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.statsLocked(operation)
}

func (lt *LatencyTracker) statsLocked(operation string) (LatencyStats, error) {
	sketch, ok := lt.sketches[operation]
	if !ok {
		return LatencyStats{}, fmt.Errorf("no data for operation: %s", operation)
	}

	count := sketch.GetCount()
	if count == 0 {
		return LatencyStats{Operation: operation}, nil
	}

	minV, _ := sketch.GetMinValue()
	p50, _ := sketch.GetValueAtQuantile(0.50)
	p90, _ := sketch.GetValueAtQuantile(0.90)
	p99, _ := sketch.GetValueAtQuantile(0.99)
	maxV, _ := sketch.GetMaxValue()

	return LatencyStats{
		Operation: operation,
		Count:     int64(count),
		Min:       minV,
		P50:       p50,
		P90:       p90,
		P99:       p99,
		Max:       maxV,
	}, nil
}

// All returns the summaries for every tracked operation, sorted by name.
func (lt *LatencyTracker) All() []LatencyStats {
	if lt == nil {
		return nil
	}

	lt.mu.Lock()
	defer lt.mu.Unlock()

	out := make([]LatencyStats, 0, len(lt.sketches))
	for op := range lt.sketches {
		if s, err := lt.statsLocked(op); err == nil {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}

func (s LatencyStats) String() string {
	if s.Count == 0 {
		return fmt.Sprintf("  %s: no data", s.Operation)
	}
	return fmt.Sprintf("  %s (n=%d): min=%.2fms p50=%.2fms p90=%.2fms p99=%.2fms max=%.2fms",
		s.Operation, s.Count, s.Min, s.P50, s.P90, s.P99, s.Max)
}
