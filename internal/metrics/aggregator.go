// Package metrics owns the coordinator's running aggregate state.
//
// The aggregator is the single place chunk summaries are folded into
// process-wide totals. Merging is a pure additive fold, commutative and
// associative, so reports from concurrently-completing workers can land
// in any order and produce identical final state. It is deliberately not
// idempotent: merging the same summary twice double-counts. Exactly-once
// delivery of each summary is the distributor's obligation, discharged by
// only merging reports that match a worker's outstanding assignment.
package metrics

import (
	"sync"

	"github.com/dreamware/logmill/internal/cluster"
)

// Aggregator accumulates per-chunk metric summaries into running totals.
// Created empty at coordinator start and never reset; there is no
// persistence across restarts.
//
// Thread-safe: Merge and Snapshot may be called concurrently. Merge is
// serialized under the mutex, so Snapshot never observes a summary whose
// fields are only partially applied.
type Aggregator struct {
	perSecond         map[string]int64
	mu                sync.RWMutex
	totalRequests     int64
	totalErrors       int64
	totalResponseTime float64
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		perSecond: make(map[string]int64),
	}
}

// Merge folds one chunk summary into the running totals. The per-second
// map is merged additively, keyed by second bucket; insertion order is
// irrelevant and the key set is the union across all merged summaries.
func (a *Aggregator) Merge(summary *cluster.ChunkSummary) {
	if summary == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalRequests += summary.RequestCount
	a.totalErrors += summary.ErrorCount
	a.totalResponseTime += summary.TotalResponseTime
	for bucket, count := range summary.RequestCountPerSecond {
		a.perSecond[bucket] += count
	}
}

// Snapshot returns a consistent read-only copy of the current aggregate,
// with the derived error rate and average response time computed at read
// time (both 0 when no requests have been merged).
func (a *Aggregator) Snapshot() cluster.MetricsSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := cluster.MetricsSnapshot{
		TotalRequests:         a.totalRequests,
		TotalErrors:           a.totalErrors,
		RequestCountPerSecond: make(map[string]int64, len(a.perSecond)),
	}
	for bucket, count := range a.perSecond {
		snap.RequestCountPerSecond[bucket] = count
	}

	if a.totalRequests > 0 {
		snap.ErrorRate = float64(a.totalErrors) / float64(a.totalRequests)
		snap.AvgResponseTime = a.totalResponseTime / float64(a.totalRequests)
	}

	return snap
}
