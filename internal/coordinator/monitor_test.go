package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSweepTransitionsByAge drives the HEALTHY → SUSPECT → FAILED walk
// with a synthetic clock: Sweep takes "now", so no real time passes.
func TestSweepTransitionsByAge(t *testing.T) {
	reg := NewWorkerRegistry()
	reg.Register("worker-1", "http://localhost:8081")
	monitor := NewHeartbeatMonitor(reg, 100*time.Millisecond, 2*time.Second, 5*time.Second)

	rec, _ := reg.Get("worker-1")
	base := rec.LastHeartbeat

	// Fresh heartbeat: still healthy
	monitor.Sweep(base.Add(1 * time.Second))
	rec, _ = reg.Get("worker-1")
	assert.Equal(t, StateHealthy, rec.State)

	// Past the suspect threshold
	monitor.Sweep(base.Add(3 * time.Second))
	rec, _ = reg.Get("worker-1")
	assert.Equal(t, StateSuspect, rec.State)

	// Past the failure threshold
	monitor.Sweep(base.Add(6 * time.Second))
	rec, _ = reg.Get("worker-1")
	assert.Equal(t, StateFailed, rec.State)
}

// TestSweepFiresOnFailedOnce verifies the on-failed callback fires when a
// worker crosses the failure threshold, and not again on later sweeps.
func TestSweepFiresOnFailedOnce(t *testing.T) {
	reg := NewWorkerRegistry()
	reg.Register("worker-1", "http://localhost:8081")
	monitor := NewHeartbeatMonitor(reg, 100*time.Millisecond, 1*time.Second, 2*time.Second)

	var mu sync.Mutex
	var failed []string
	monitor.SetOnFailed(func(id string) {
		mu.Lock()
		failed = append(failed, id)
		mu.Unlock()
	})

	rec, _ := reg.Get("worker-1")
	base := rec.LastHeartbeat

	monitor.Sweep(base.Add(3 * time.Second))
	monitor.Sweep(base.Add(4 * time.Second))
	monitor.Sweep(base.Add(5 * time.Second))

	// Callback runs in its own goroutine
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(failed) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"worker-1"}, failed)
	mu.Unlock()
}

// TestHeartbeatResetsStaleness verifies a fresh heartbeat rescues a
// SUSPECT worker before the failure threshold.
func TestHeartbeatResetsStaleness(t *testing.T) {
	reg := NewWorkerRegistry()
	reg.Register("worker-1", "http://localhost:8081")
	monitor := NewHeartbeatMonitor(reg, 100*time.Millisecond, 1*time.Second, 10*time.Second)

	rec, _ := reg.Get("worker-1")
	monitor.Sweep(rec.LastHeartbeat.Add(2 * time.Second))
	rec, _ = reg.Get("worker-1")
	require.Equal(t, StateSuspect, rec.State)

	require.NoError(t, reg.Heartbeat("worker-1"))
	rec, _ = reg.Get("worker-1")
	assert.Equal(t, StateHealthy, rec.State)

	// The new heartbeat restarts the staleness clock
	monitor.Sweep(rec.LastHeartbeat.Add(500 * time.Millisecond))
	rec, _ = reg.Get("worker-1")
	assert.Equal(t, StateHealthy, rec.State)
}

// TestStartAndStop verifies the sweep loop runs on its interval and
// shuts down cleanly.
func TestStartAndStop(t *testing.T) {
	reg := NewWorkerRegistry()
	reg.Register("worker-1", "http://localhost:8081")

	// Thresholds of zero mean the first sweep already sees the worker as
	// past the failure threshold.
	monitor := NewHeartbeatMonitor(reg, 10*time.Millisecond, 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx)

	require.Eventually(t, func() bool {
		rec, _ := reg.Get("worker-1")
		return rec.State == StateFailed
	}, time.Second, 5*time.Millisecond)

	monitor.Stop() // must not hang
}
