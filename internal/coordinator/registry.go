// Package coordinator implements the orchestration layer for Logmill's
// distributed log processing.
// See doc.go for complete package documentation.
package coordinator

import (
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/logmill/internal/cluster"
)

// HealthState is the coordinator's view of a worker's liveness.
//
// Transitions:
//
//	UNREGISTERED → HEALTHY            on registration
//	HEALTHY      → SUSPECT → FAILED   as heartbeats go stale
//	HEALTHY/SUSPECT → HEALTHY         on a fresh heartbeat
//	FAILED       → HEALTHY            on re-registration only
//
// FAILED is terminal for the worker's current assignment but not for its
// identity: a failed worker may re-register and rejoin the pool.
type HealthState string

const (
	StateHealthy HealthState = "HEALTHY"
	StateSuspect HealthState = "SUSPECT"
	StateFailed  HealthState = "FAILED"
)

// ErrUnknownWorker is returned for operations on a worker ID that has
// never registered (or was removed).
var ErrUnknownWorker = errors.New("unknown worker")

// ErrWorkerBusy is returned when a dispatch would give a worker a second
// outstanding assignment. Each WorkerRecord is a single-owner resource
// during a dispatch-through-completion cycle.
var ErrWorkerBusy = errors.New("worker already has an outstanding assignment")

// ErrWorkerFailed is returned for heartbeats from a worker already
// declared FAILED. The worker must re-register to rejoin the pool; its
// heartbeats are refused so it learns that, rather than pinging a
// registry that will never heal it.
var ErrWorkerFailed = errors.New("worker is failed and must re-register")

// WorkerRecord is the coordinator's view of one worker: identity, address,
// health state, last heartbeat, and the at-most-one outstanding chunk.
//
// The registry returns copies; callers never hold a pointer into registry
// state.
type WorkerRecord struct {
	LastHeartbeat time.Time
	Assignment    *cluster.ChunkAssignment
	ID            string
	Addr          string
	State         HealthState
}

// WorkerRegistry tracks known workers, their liveness, and their current
// assignments. It is the only shared mutable view of the worker pool;
// the distributor and the heartbeat monitor both funnel their mutations
// through it.
//
// Concurrency model (same as the rest of the coordinator):
//   - read operations take RLock and copy out
//   - write operations take Lock
//   - no locks are held during network I/O
type WorkerRegistry struct {
	workers map[string]*WorkerRecord
	mu      sync.RWMutex
}

// NewWorkerRegistry returns an empty registry.
func NewWorkerRegistry() *WorkerRegistry {
	return &WorkerRegistry{
		workers: make(map[string]*WorkerRecord),
	}
}

// Register upserts a worker. Registration is idempotent: a known worker
// has its address refreshed and its heartbeat clock reset. A FAILED
// worker re-registering returns to HEALTHY with no assignment; its old
// chunk, if any, was already handed to the failure path.
func (r *WorkerRegistry) Register(id, addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.workers[id]
	if !ok {
		r.workers[id] = &WorkerRecord{
			ID:            id,
			Addr:          addr,
			State:         StateHealthy,
			LastHeartbeat: time.Now(),
		}
		return
	}

	if rec.State == StateFailed {
		rec.Assignment = nil
	}
	rec.Addr = addr
	rec.State = StateHealthy
	rec.LastHeartbeat = time.Now()
}

// Heartbeat records a liveness signal. A fresh heartbeat returns a
// HEALTHY or SUSPECT worker to HEALTHY. A FAILED worker's heartbeat is
// refused with ErrWorkerFailed so the worker re-registers instead of
// heartbeating forever against a state that only registration resets.
func (r *WorkerRegistry) Heartbeat(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.workers[id]
	if !ok {
		return ErrUnknownWorker
	}
	if rec.State == StateFailed {
		return ErrWorkerFailed
	}

	rec.LastHeartbeat = time.Now()
	rec.State = StateHealthy
	return nil
}

// Get returns a copy of one worker's record.
func (r *WorkerRegistry) Get(id string) (WorkerRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.workers[id]
	if !ok {
		return WorkerRecord{}, false
	}
	return copyRecord(rec), true
}

// Healthy returns copies of all HEALTHY workers, sorted by ID for
// deterministic assignment order.
func (r *WorkerRegistry) Healthy() []WorkerRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []WorkerRecord
	for _, rec := range r.workers {
		if rec.State == StateHealthy {
			out = append(out, copyRecord(rec))
		}
	}
	sortRecords(out)
	return out
}

// Snapshot returns copies of every known worker, sorted by ID.
func (r *WorkerRegistry) Snapshot() []WorkerRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]WorkerRecord, 0, len(r.workers))
	for _, rec := range r.workers {
		out = append(out, copyRecord(rec))
	}
	sortRecords(out)
	return out
}

// SetAssignment marks a worker as holding one outstanding chunk. Giving a
// busy worker a second chunk is a coding error on the dispatch path and
// is rejected with ErrWorkerBusy.
func (r *WorkerRegistry) SetAssignment(id string, a cluster.ChunkAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.workers[id]
	if !ok {
		return ErrUnknownWorker
	}
	if rec.Assignment != nil {
		return ErrWorkerBusy
	}
	assignment := a
	rec.Assignment = &assignment
	return nil
}

// ClearAssignment releases a worker's outstanding chunk, either because
// its summary was received or because the chunk was reassigned.
func (r *WorkerRegistry) ClearAssignment(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.workers[id]; ok {
		rec.Assignment = nil
	}
}

// MarkSuspect moves a HEALTHY worker to SUSPECT. Any other state is left
// alone: SUSPECT only ever sits between HEALTHY and FAILED.
func (r *WorkerRegistry) MarkSuspect(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.workers[id]; ok && rec.State == StateHealthy {
		rec.State = StateSuspect
	}
}

// MarkFailed transitions a worker to FAILED and returns its outstanding
// assignment, if any, so the failure path can redispatch the exact same
// chunk. The assignment slot is cleared here; redispatch happens on
// another worker.
func (r *WorkerRegistry) MarkFailed(id string) *cluster.ChunkAssignment {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.workers[id]
	if !ok {
		return nil
	}
	rec.State = StateFailed
	outstanding := rec.Assignment
	rec.Assignment = nil
	return outstanding
}

func copyRecord(rec *WorkerRecord) WorkerRecord {
	out := *rec
	if rec.Assignment != nil {
		assignment := *rec.Assignment
		out.Assignment = &assignment
	}
	return out
}

func sortRecords(records []WorkerRecord) {
	slices.SortFunc(records, func(a, b WorkerRecord) int {
		return strings.Compare(a.ID, b.ID)
	})
}
