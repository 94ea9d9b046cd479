package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// HeartbeatMonitor watches heartbeat ages in the registry and drives the
// HEALTHY → SUSPECT → FAILED transitions. Unlike a probing monitor, it
// never contacts workers: workers push heartbeats, the monitor only reads
// clocks. A worker whose heartbeat goes stale beyond suspectAfter becomes
// SUSPECT; beyond failAfter it becomes FAILED and the on-failed callback
// fires so the distributor can reassign its outstanding chunk.
//
// Thread-safe: all registry access goes through the registry's own
// locking; the monitor itself holds no worker state.
type HeartbeatMonitor struct {
	registry     *WorkerRegistry
	onFailed     func(workerID string)
	ctx          context.Context
	cancel       context.CancelFunc
	interval     time.Duration
	suspectAfter time.Duration
	failAfter    time.Duration
	wg           sync.WaitGroup
}

// NewHeartbeatMonitor creates a monitor that sweeps the registry every
// interval. A worker is SUSPECT once its heartbeat is older than
// suspectAfter and FAILED once older than failAfter.
func NewHeartbeatMonitor(registry *WorkerRegistry, interval, suspectAfter, failAfter time.Duration) *HeartbeatMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &HeartbeatMonitor{
		registry:     registry,
		interval:     interval,
		suspectAfter: suspectAfter,
		failAfter:    failAfter,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// SetOnFailed sets the callback invoked (in its own goroutine) when a
// worker transitions to FAILED. This is what triggers reassignment of the
// worker's outstanding chunk.
func (m *HeartbeatMonitor) SetOnFailed(callback func(workerID string)) {
	m.onFailed = callback
}

// Start runs the sweep loop in the current goroutine until the context is
// canceled. Callers typically invoke it as `go monitor.Start(ctx)`.
func (m *HeartbeatMonitor) Start(ctx context.Context) {
	m.wg.Add(1)
	defer m.wg.Done()

	if ctx == nil {
		ctx = m.ctx
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", m.interval).
		Dur("suspect_after", m.suspectAfter).
		Dur("fail_after", m.failAfter).
		Msg("heartbeat monitor started")

	for {
		select {
		case <-ticker.C:
			m.Sweep(time.Now())
		case <-ctx.Done():
			return
		case <-m.ctx.Done():
			return
		}
	}
}

// Stop cancels the sweep loop and waits for it to exit.
func (m *HeartbeatMonitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Sweep examines every worker's heartbeat age as of now and applies the
// due transitions. Exposed so tests can drive the state machine with a
// synthetic clock instead of sleeping through real intervals.
func (m *HeartbeatMonitor) Sweep(now time.Time) {
	for _, rec := range m.registry.Snapshot() {
		if rec.State == StateFailed {
			continue
		}

		age := now.Sub(rec.LastHeartbeat)
		switch {
		case age >= m.failAfter:
			m.registry.MarkFailed(rec.ID)
			log.Warn().
				Str("worker_id", rec.ID).
				Dur("heartbeat_age", age).
				Msg("worker failed: heartbeat timeout")
			if m.onFailed != nil {
				// Callback runs outside any registry lock.
				go m.onFailed(rec.ID)
			}
		case age >= m.suspectAfter && rec.State == StateHealthy:
			m.registry.MarkSuspect(rec.ID)
			log.Warn().
				Str("worker_id", rec.ID).
				Dur("heartbeat_age", age).
				Msg("worker suspect: heartbeat stale")
		}
	}
}
