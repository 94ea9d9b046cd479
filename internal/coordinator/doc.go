// Package coordinator implements the control plane for Logmill's
// distributed log processing: worker registry, heartbeat-driven failure
// detection, and the work distributor that partitions files, dispatches
// chunks, and compensates for worker failure.
//
// # Overview
//
// The coordinator makes all global decisions: which workers exist, which
// are healthy, which chunk each worker is processing, and when a chunk
// must be redispatched. Workers hold no coordination state; they receive
// a ChunkAssignment, process it, and report a ChunkSummary.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│         COORDINATOR                  │
//	├─────────────────────────────────────┤
//	│                                     │
//	│  ┌──────────────────────────────┐  │
//	│  │   Worker Registry             │  │
//	│  │   - identity and address      │  │
//	│  │   - HEALTHY/SUSPECT/FAILED    │  │
//	│  │   - one assignment per worker │  │
//	│  └──────────────────────────────┘  │
//	│                                     │
//	│  ┌──────────────────────────────┐  │
//	│  │   Heartbeat Monitor           │  │
//	│  │   - heartbeat age sweeps      │  │
//	│  │   - staleness transitions     │  │
//	│  │   - on-failed callback        │  │
//	│  └──────────────────────────────┘  │
//	│                                     │
//	│  ┌──────────────────────────────┐  │
//	│  │   Distributor                 │  │
//	│  │   - file partitioning         │  │
//	│  │   - concurrent dispatch       │  │
//	│  │   - verbatim reassignment     │  │
//	│  │   - exactly-once merging      │  │
//	│  └──────────────────────────────┘  │
//	│                                     │
//	└─────────────────────────────────────┘
//
// # Worker lifecycle
//
// A worker registers, heartbeats on a fixed interval, and accepts
// dispatches. Its registry state walks
//
//	UNREGISTERED → HEALTHY → SUSPECT → FAILED
//
// with fresh heartbeats healing HEALTHY/SUSPECT back to HEALTHY and
// re-registration healing FAILED. FAILED is terminal for the worker's
// outstanding assignment: that chunk is immediately handed to the
// reassignment path.
//
// # Distribution protocol
//
// Distribute(file) snapshots the healthy pool, tiles the file into one
// contiguous byte range per healthy worker (last range absorbs the
// remainder, union exactly covers the file), and dispatches all ranges
// concurrently. The call is a fan-out/fan-in barrier: it returns only
// after every chunk is merged or terminal.
//
// Failure of a dispatch, absence of a report within the result deadline,
// and heartbeat-declared worker failure are all treated identically: the
// worker is FAILED and its exact assignment (same file, offset and
// size) goes to one remaining healthy worker. A chunk that exhausts the
// pool is listed in the result as unrecoverable and the distribution
// completes degraded, never silently short.
//
// # Exactly-once merging
//
// The aggregator's merge deliberately double-counts duplicates, so the
// distributor merges a report only when the reporting worker holds a
// pending dispatch cycle. Duplicates and reports that arrive after a
// chunk was reassigned find no pending slot and are dropped with an ack.
//
// # Concurrency model
//
//   - the registry and the aggregator are the only cross-task shared
//     mutable state; both are mutex-guarded and copy out
//   - a worker's assignment slot is mutated only by its own
//     dispatch-through-completion cycle and the failure path
//   - no locks are held during network I/O
//
// # What the coordinator does not do
//
// No exactly-once processing across coordinator restarts (aggregate state
// is in-memory only), no worker authentication, no discovery beyond
// explicit registration, and no consensus: one coordinator is the single
// control plane.
//
// # See Also
//
// Related packages:
//   - internal/cluster: wire protocol shared with workers
//   - internal/chunk: worker-side chunk processing
//   - internal/metrics: the aggregate the distributor feeds
package coordinator
