// Package cluster defines the wire protocol shared by the Logmill
// coordinator and its workers: the message shapes for registration,
// heartbeats, chunk dispatch and result reporting, plus the JSON/HTTP
// helpers both sides use to exchange them.
//
// # Overview
//
// Logmill distributes the processing of large log files across a pool of
// worker processes. The coordinator carves a file into contiguous byte
// ranges (chunks), ships one ChunkAssignment to each healthy worker, and
// folds the reported ChunkSummary values into running aggregate metrics.
// This package is the vocabulary of that conversation; it has no behavior
// of its own beyond HTTP plumbing.
//
// # Topology
//
//	              ┌──────────────┐
//	              │ Coordinator  │
//	              │              │
//	              │ - Registry   │
//	              │ - Monitor    │
//	              │ - Aggregator │
//	              └──────┬───────┘
//	                     │
//	      ┌──────────────┼──────────────┐
//	      │              │              │
//	┌─────▼─────┐ ┌─────▼─────┐ ┌─────▼─────┐
//	│ Worker 1  │ │ Worker 2  │ │ Worker 3  │
//	│           │ │           │ │           │
//	│ chunk     │ │ chunk     │ │ chunk     │
//	│ [0,100)   │ │ [100,200) │ │ [200,300) │
//	└───────────┘ └───────────┘ └───────────┘
//
// # Protocol
//
// Worker to coordinator:
//   - POST /register  - announce identity and address (idempotent upsert)
//   - POST /heartbeat - periodic liveness signal
//   - POST /report    - deliver a ChunkSummary, or a processing error
//
// Coordinator to worker:
//   - POST /process   - dispatch one ChunkAssignment (202 ack, async result)
//   - GET  /health    - plain liveness probe
//
// External:
//   - GET  /metrics   - current MetricsSnapshot, available at any time
//
// All messages are JSON over HTTP with a 5 second client timeout. A status
// code of 300 or above is surfaced to the caller as an error; transport
// retries are the caller's concern (see internal/retry).
//
// # Failure vocabulary
//
// The protocol deliberately distinguishes "this chunk produced nothing"
// (a ChunkSummary with zero counts) from "this chunk could not be read"
// (a ReportRequest carrying Error). The coordinator reassigns the latter
// and merges the former, so an unreadable file never masquerades as an
// empty one.
package cluster
