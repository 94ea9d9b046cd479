// Package coordinator tests for the worker registry state machine.
package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/logmill/internal/cluster"
)

// TestRegisterCreatesHealthyWorker verifies registration creates a
// HEALTHY record with no assignment.
func TestRegisterCreatesHealthyWorker(t *testing.T) {
	reg := NewWorkerRegistry()
	reg.Register("worker-1", "http://localhost:8081")

	rec, ok := reg.Get("worker-1")
	require.True(t, ok)
	assert.Equal(t, StateHealthy, rec.State)
	assert.Equal(t, "http://localhost:8081", rec.Addr)
	assert.Nil(t, rec.Assignment)
	assert.False(t, rec.LastHeartbeat.IsZero())
}

// TestRegisterIsIdempotent verifies re-registering refreshes the address
// without duplicating the worker.
func TestRegisterIsIdempotent(t *testing.T) {
	reg := NewWorkerRegistry()
	reg.Register("worker-1", "http://localhost:8081")
	reg.Register("worker-1", "http://localhost:9091")

	assert.Len(t, reg.Snapshot(), 1)
	rec, _ := reg.Get("worker-1")
	assert.Equal(t, "http://localhost:9091", rec.Addr)
	assert.Equal(t, StateHealthy, rec.State)
}

// TestHeartbeatHealsSuspect verifies HEALTHY/SUSPECT → HEALTHY on a fresh
// heartbeat, and that heartbeats from unknown workers are rejected.
func TestHeartbeatHealsSuspect(t *testing.T) {
	reg := NewWorkerRegistry()
	reg.Register("worker-1", "http://localhost:8081")
	reg.MarkSuspect("worker-1")

	rec, _ := reg.Get("worker-1")
	require.Equal(t, StateSuspect, rec.State)

	require.NoError(t, reg.Heartbeat("worker-1"))
	rec, _ = reg.Get("worker-1")
	assert.Equal(t, StateHealthy, rec.State)

	assert.ErrorIs(t, reg.Heartbeat("worker-99"), ErrUnknownWorker)
}

// TestHeartbeatDoesNotReviveFailed verifies FAILED is terminal against
// heartbeats: the heartbeat is refused with ErrWorkerFailed so the
// worker knows to re-register, and only re-registration brings it back.
func TestHeartbeatDoesNotReviveFailed(t *testing.T) {
	reg := NewWorkerRegistry()
	reg.Register("worker-1", "http://localhost:8081")
	reg.MarkFailed("worker-1")

	assert.ErrorIs(t, reg.Heartbeat("worker-1"), ErrWorkerFailed)
	rec, _ := reg.Get("worker-1")
	assert.Equal(t, StateFailed, rec.State)

	// Re-registration heals, after which heartbeats are accepted again
	reg.Register("worker-1", "http://localhost:8081")
	rec, _ = reg.Get("worker-1")
	assert.Equal(t, StateHealthy, rec.State)
	assert.Nil(t, rec.Assignment)
	assert.NoError(t, reg.Heartbeat("worker-1"))
}

// TestAssignmentSlotIsExclusive verifies a worker holds at most one
// outstanding assignment at a time.
func TestAssignmentSlotIsExclusive(t *testing.T) {
	reg := NewWorkerRegistry()
	reg.Register("worker-1", "http://localhost:8081")

	a := cluster.ChunkAssignment{FilePath: "/tmp/a.log", StartOffset: 0, Size: 100}
	require.NoError(t, reg.SetAssignment("worker-1", a))

	b := cluster.ChunkAssignment{FilePath: "/tmp/a.log", StartOffset: 100, Size: 100}
	assert.ErrorIs(t, reg.SetAssignment("worker-1", b), ErrWorkerBusy)

	reg.ClearAssignment("worker-1")
	assert.NoError(t, reg.SetAssignment("worker-1", b))

	assert.ErrorIs(t, reg.SetAssignment("worker-99", a), ErrUnknownWorker)
}

// TestMarkFailedReturnsOutstanding verifies MarkFailed hands back the
// outstanding chunk for redispatch and clears the slot.
func TestMarkFailedReturnsOutstanding(t *testing.T) {
	reg := NewWorkerRegistry()
	reg.Register("worker-1", "http://localhost:8081")

	a := cluster.ChunkAssignment{FilePath: "/tmp/a.log", StartOffset: 200, Size: 100}
	require.NoError(t, reg.SetAssignment("worker-1", a))

	outstanding := reg.MarkFailed("worker-1")
	require.NotNil(t, outstanding)
	assert.Equal(t, a, *outstanding)

	rec, _ := reg.Get("worker-1")
	assert.Equal(t, StateFailed, rec.State)
	assert.Nil(t, rec.Assignment)

	// Failing an idle worker returns no assignment
	reg.Register("worker-2", "http://localhost:8082")
	assert.Nil(t, reg.MarkFailed("worker-2"))
	assert.Nil(t, reg.MarkFailed("worker-99"))
}

// TestMarkSuspectOnlyFromHealthy verifies SUSPECT is reachable only from
// HEALTHY.
func TestMarkSuspectOnlyFromHealthy(t *testing.T) {
	reg := NewWorkerRegistry()
	reg.Register("worker-1", "http://localhost:8081")
	reg.MarkFailed("worker-1")

	reg.MarkSuspect("worker-1")
	rec, _ := reg.Get("worker-1")
	assert.Equal(t, StateFailed, rec.State)
}

// TestHealthySelection verifies Healthy returns only HEALTHY workers,
// sorted by ID.
func TestHealthySelection(t *testing.T) {
	reg := NewWorkerRegistry()
	reg.Register("worker-c", "http://localhost:8083")
	reg.Register("worker-a", "http://localhost:8081")
	reg.Register("worker-b", "http://localhost:8082")
	reg.MarkSuspect("worker-b")

	healthy := reg.Healthy()
	require.Len(t, healthy, 2)
	assert.Equal(t, "worker-a", healthy[0].ID)
	assert.Equal(t, "worker-c", healthy[1].ID)
}

// TestCopiesDoNotAlias verifies mutating returned records cannot reach
// registry state.
func TestCopiesDoNotAlias(t *testing.T) {
	reg := NewWorkerRegistry()
	reg.Register("worker-1", "http://localhost:8081")
	require.NoError(t, reg.SetAssignment("worker-1", cluster.ChunkAssignment{
		FilePath: "/tmp/a.log", StartOffset: 0, Size: 100,
	}))

	rec, _ := reg.Get("worker-1")
	rec.Assignment.StartOffset = 999
	rec.State = StateFailed

	fresh, _ := reg.Get("worker-1")
	assert.Equal(t, int64(0), fresh.Assignment.StartOffset)
	assert.Equal(t, StateHealthy, fresh.State)
}
