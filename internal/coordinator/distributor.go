package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/logmill/internal/cluster"
	"github.com/dreamware/logmill/internal/metrics"
)

// ErrNoAvailableWorkers is returned by Distribute when the healthy pool
// is empty at call time. It is a typed outcome for the caller, not a
// fatal condition; no dispatch is performed and no state is mutated.
var ErrNoAvailableWorkers = errors.New("no available workers")

// DispatchFunc sends one assignment to a worker address and returns once
// the worker has acknowledged it. Injectable for tests; the default posts
// to the worker's /process endpoint.
type DispatchFunc func(ctx context.Context, addr string, req cluster.DispatchRequest) error

// Result describes the outcome of one Distribute call. Degraded means
// one or more chunks could not be processed by any available worker;
// the chunks in question are listed verbatim in Unrecoverable rather
// than silently dropped.
type Result struct {
	Unrecoverable []cluster.ChunkAssignment `json:"unrecoverable,omitempty"`
	ChunksTotal   int                       `json:"chunks_total"`
	ChunksMerged  int                       `json:"chunks_merged"`
	Degraded      bool                      `json:"degraded"`
}

// reportOutcome is what a dispatch cycle waits on: either the worker's
// summary, or a failure (worker-reported processing error, heartbeat
// timeout, or no report within the result deadline).
type reportOutcome struct {
	summary *cluster.ChunkSummary
	err     error
}

// Distributor partitions a file into chunks across the currently-healthy
// workers, tracks in-flight assignments, folds reported summaries into
// the aggregator, and compensates for worker failure by redispatching the
// exact failed assignment to another healthy worker.
//
// One pending slot exists per worker while its dispatch cycle is in
// flight; a report is merged only if the worker still owns a pending slot,
// which is what guarantees each summary is merged exactly once despite
// retries, duplicates and late reports.
type Distributor struct {
	registry      *WorkerRegistry
	agg           *metrics.Aggregator
	dispatch      DispatchFunc
	pending       map[string]chan reportOutcome
	resultTimeout time.Duration
	retryPoll     time.Duration
	mu            sync.Mutex
}

// NewDistributor wires a distributor over the given registry and
// aggregator with production defaults: a 30s deadline for a dispatched
// chunk's report and a 50ms poll while hunting a free replacement worker.
func NewDistributor(registry *WorkerRegistry, agg *metrics.Aggregator) *Distributor {
	d := &Distributor{
		registry:      registry,
		agg:           agg,
		pending:       make(map[string]chan reportOutcome),
		resultTimeout: 30 * time.Second,
		retryPoll:     50 * time.Millisecond,
	}
	d.dispatch = d.defaultDispatch
	return d
}

// SetDispatchFunc overrides the dispatch transport. Used by tests and by
// callers that need custom transports.
func (d *Distributor) SetDispatchFunc(fn DispatchFunc) {
	d.dispatch = fn
}

// SetResultTimeout overrides the per-chunk report deadline.
func (d *Distributor) SetResultTimeout(timeout time.Duration) {
	d.resultTimeout = timeout
}

// Partition tiles [0, size) into n contiguous ranges over filePath:
// equal-sized floors with the last range absorbing the remainder, so the
// union is exactly the file with no gap or overlap.
func Partition(filePath string, size int64, n int) []cluster.ChunkAssignment {
	if n <= 0 || size <= 0 {
		return nil
	}

	chunkSize := size / int64(n)
	out := make([]cluster.ChunkAssignment, 0, n)
	for i := 0; i < n; i++ {
		a := cluster.ChunkAssignment{
			FilePath:    filePath,
			StartOffset: int64(i) * chunkSize,
			Size:        chunkSize,
		}
		if i == n-1 {
			a.Size = size - a.StartOffset
		}
		out = append(out, a)
	}
	return out
}

// Distribute partitions filePath across the currently-healthy workers and
// blocks until every chunk has either been merged or become terminal
// (fan-out/fan-in barrier).
//
// Failure handling per chunk: a dispatch error, missing report, or
// heartbeat-declared worker failure marks the worker FAILED and
// redispatches the identical assignment (same file, offset and size)
// to one currently-healthy worker from the remaining pool, at most once.
// A chunk no worker could process is listed in Result.Unrecoverable and
// the call completes degraded rather than failing.
func (d *Distributor) Distribute(ctx context.Context, filePath string) (*Result, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", filePath, err)
	}

	healthy := d.registry.Healthy()
	if len(healthy) == 0 {
		return nil, ErrNoAvailableWorkers
	}

	assignments := Partition(filePath, info.Size(), len(healthy))
	result := &Result{ChunksTotal: len(assignments)}

	log.Info().
		Str("file", filePath).
		Int64("size", info.Size()).
		Int("workers", len(healthy)).
		Msg("distributing file")

	var resultMu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for i := range assignments {
		assignment := assignments[i]
		first := healthy[i]
		g.Go(func() error {
			var summary *cluster.ChunkSummary
			if assignment.Size == 0 {
				// A file smaller than the pool partitions into zero-length
				// trailing ranges. They hold no bytes, so they resolve to an
				// empty summary here with no dispatch.
				summary = &cluster.ChunkSummary{}
			} else {
				summary = d.runChunk(ctx, assignment, first)
			}
			resultMu.Lock()
			defer resultMu.Unlock()
			if summary != nil {
				d.agg.Merge(summary)
				result.ChunksMerged++
			} else {
				result.Unrecoverable = append(result.Unrecoverable, assignment)
			}
			return nil
		})
	}
	// Goroutines only signal completion; per-chunk failure is folded into
	// the result, never returned as an error.
	_ = g.Wait()

	result.Degraded = len(result.Unrecoverable) > 0
	log.Info().
		Str("file", filePath).
		Int("chunks_total", result.ChunksTotal).
		Int("chunks_merged", result.ChunksMerged).
		Bool("degraded", result.Degraded).
		Msg("distribution complete")

	return result, nil
}

// runChunk drives one assignment through dispatch and at most one
// reassignment. It returns the chunk's summary, or nil when the chunk is
// unrecoverable.
func (d *Distributor) runChunk(ctx context.Context, assignment cluster.ChunkAssignment, first WorkerRecord) *cluster.ChunkSummary {
	tried := map[string]bool{first.ID: true}

	summary, err := d.tryWorker(ctx, first, assignment)
	if err == nil {
		return summary
	}
	log.Warn().
		Err(err).
		Str("worker_id", first.ID).
		Int64("start", assignment.StartOffset).
		Msg("chunk attempt failed, reassigning")

	// Bounded retry: exactly one reassignment, to one currently-healthy
	// worker the chunk has not visited. The assignment is forwarded
	// verbatim; the partition is never recomputed.
	replacement, ok := d.awaitReplacement(ctx, tried)
	if !ok {
		log.Error().
			Int64("start", assignment.StartOffset).
			Int64("size", assignment.Size).
			Msg("chunk unrecoverable: no healthy worker remains")
		return nil
	}

	summary, err = d.tryWorker(ctx, replacement, assignment)
	if err != nil {
		log.Error().
			Err(err).
			Str("worker_id", replacement.ID).
			Int64("start", assignment.StartOffset).
			Msg("chunk unrecoverable: reassignment failed")
		return nil
	}
	return summary
}

// tryWorker runs one dispatch-through-completion cycle on a single
// worker: claim the assignment slot, dispatch, then wait for the report
// or a failure signal. The worker's pending channel exists only for the
// duration of the cycle, which is what makes late or duplicate reports
// droppable.
func (d *Distributor) tryWorker(ctx context.Context, worker WorkerRecord, assignment cluster.ChunkAssignment) (*cluster.ChunkSummary, error) {
	if err := d.registry.SetAssignment(worker.ID, assignment); err != nil {
		return nil, err
	}

	ch := make(chan reportOutcome, 1)
	d.mu.Lock()
	d.pending[worker.ID] = ch
	d.mu.Unlock()
	defer d.removePending(worker.ID)

	if err := d.dispatch(ctx, worker.Addr, cluster.DispatchRequest{Assignment: assignment}); err != nil {
		d.registry.MarkFailed(worker.ID)
		return nil, fmt.Errorf("dispatch to %s: %w", worker.ID, err)
	}

	select {
	case outcome := <-ch:
		if outcome.err != nil {
			// Worker-reported processing failure: the chunk failed but
			// the worker answered, so it stays in the pool.
			d.registry.ClearAssignment(worker.ID)
			return nil, outcome.err
		}
		d.registry.ClearAssignment(worker.ID)
		return outcome.summary, nil
	case <-time.After(d.resultTimeout):
		d.registry.MarkFailed(worker.ID)
		return nil, fmt.Errorf("worker %s: no report within %v", worker.ID, d.resultTimeout)
	case <-ctx.Done():
		d.registry.ClearAssignment(worker.ID)
		return nil, ctx.Err()
	}
}

// awaitReplacement picks a healthy worker not in tried with a free
// assignment slot, polling until one frees up, the healthy pool empties,
// or the context ends. Workers are busy with their own chunks during a
// distribution, so a replacement usually appears as peers finish.
func (d *Distributor) awaitReplacement(ctx context.Context, tried map[string]bool) (WorkerRecord, bool) {
	ticker := time.NewTicker(d.retryPoll)
	defer ticker.Stop()

	for {
		candidates := 0
		for _, rec := range d.registry.Healthy() {
			if tried[rec.ID] {
				continue
			}
			candidates++
			if rec.Assignment == nil {
				tried[rec.ID] = true
				return rec, true
			}
		}
		if candidates == 0 {
			// No healthy worker remains that could ever take this chunk.
			return WorkerRecord{}, false
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return WorkerRecord{}, false
		}
	}
}

// Report delivers a worker's report into its pending dispatch cycle.
// Reports for workers with no pending slot, duplicates or late arrivals
// after the chunk was reassigned, are acknowledged and dropped, which is
// the exactly-once guarantee the aggregator's non-idempotent merge
// depends on.
func (d *Distributor) Report(workerID string, summary *cluster.ChunkSummary, errMsg string) {
	d.mu.Lock()
	ch, ok := d.pending[workerID]
	if ok {
		delete(d.pending, workerID)
	}
	d.mu.Unlock()

	if !ok {
		log.Debug().
			Str("worker_id", workerID).
			Msg("dropping report with no pending assignment")
		return
	}

	if errMsg != "" {
		ch <- reportOutcome{err: fmt.Errorf("worker %s: chunk processing failed: %s", workerID, errMsg)}
		return
	}
	ch <- reportOutcome{summary: summary}
}

// WorkerFailed is the heartbeat monitor's entry point: it aborts the
// worker's pending dispatch cycle, if any, so the chunk can be
// redispatched. The registry transition to FAILED has already happened
// by the time this runs.
func (d *Distributor) WorkerFailed(workerID string) {
	d.mu.Lock()
	ch, ok := d.pending[workerID]
	if ok {
		delete(d.pending, workerID)
	}
	d.mu.Unlock()

	if ok {
		ch <- reportOutcome{err: fmt.Errorf("worker %s: declared failed mid-assignment", workerID)}
	}
}

// removePending drops the worker's pending slot if the cycle ended
// without a report (timeout, cancellation).
func (d *Distributor) removePending(workerID string) {
	d.mu.Lock()
	delete(d.pending, workerID)
	d.mu.Unlock()
}

func (d *Distributor) defaultDispatch(ctx context.Context, addr string, req cluster.DispatchRequest) error {
	return cluster.PostJSON(ctx, strings.TrimRight(addr, "/")+"/process", req, nil)
}
