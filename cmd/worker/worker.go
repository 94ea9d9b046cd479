package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dreamware/logmill/internal/chunk"
	"github.com/dreamware/logmill/internal/cluster"
	"github.com/dreamware/logmill/internal/config"
	"github.com/dreamware/logmill/internal/retry"
)

// Worker is the runtime state of one worker process. It accepts chunk
// assignments from the coordinator, processes them asynchronously, and
// reports each outcome back.
//
// Concurrency model:
//   - The coordinator assigns at most one chunk per worker at a time,
//     and the worker enforces the same invariant locally: an assignment
//     arriving while another is in flight is refused with 409.
//   - Processing runs in its own goroutine so the dispatch request can
//     be acknowledged immediately.
//   - wg tracks the in-flight processing goroutine so shutdown can wait
//     for the final report to go out.
type Worker struct {
	// processFn computes a chunk summary from an assignment. Defaults
	// to chunk.Process; replaceable in tests.
	processFn func(cluster.ChunkAssignment) (*cluster.ChunkSummary, error)

	// reportFn delivers a finished chunk's outcome to the coordinator.
	// Defaults to an HTTP POST with retries; replaceable in tests.
	reportFn func(ctx context.Context, req cluster.ReportRequest) error

	// inFlight is the assignment currently being processed, nil when
	// idle. Protected by mu.
	inFlight *cluster.ChunkAssignment

	cfg *config.Worker
	mu  sync.Mutex
	wg  sync.WaitGroup
}

// NewWorker creates a worker wired to report results to the coordinator
// named in the configuration.
func NewWorker(cfg *config.Worker) *Worker {
	w := &Worker{cfg: cfg}
	w.processFn = chunk.Process
	w.reportFn = func(ctx context.Context, req cluster.ReportRequest) error {
		return retry.Do(ctx, retry.DefaultConfig(), func() error {
			return cluster.PostJSON(ctx, cfg.CoordinatorAddr+"/report", req, nil)
		})
	}
	return w
}

// Busy reports whether the worker has an assignment in flight.
func (w *Worker) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inFlight != nil
}

// Wait blocks until any in-flight processing goroutine has finished,
// including delivery of its report.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// handleProcess accepts a chunk assignment from the coordinator.
//
// Endpoint: POST /process
//
// The request is acknowledged with 202 before processing starts; the
// outcome travels back later via POST /report on the coordinator. A
// second assignment while one is in flight is refused with 409 so the
// coordinator can route the chunk elsewhere.
func (w *Worker) handleProcess(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cluster.DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(rw, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Assignment.FilePath == "" || req.Assignment.Size < 0 {
		http.Error(rw, "file_path is required and size must not be negative", http.StatusBadRequest)
		return
	}

	w.mu.Lock()
	if w.inFlight != nil {
		w.mu.Unlock()
		http.Error(rw, "assignment already in flight", http.StatusConflict)
		return
	}
	assignment := req.Assignment
	w.inFlight = &assignment
	w.wg.Add(1)
	w.mu.Unlock()

	go w.run(assignment)

	rw.WriteHeader(http.StatusAccepted)
}

// run processes one assignment and reports the outcome. A processing
// error is reported as a failure rather than swallowed, so the
// coordinator can reassign the chunk.
func (w *Worker) run(assignment cluster.ChunkAssignment) {
	defer w.wg.Done()
	defer func() {
		w.mu.Lock()
		w.inFlight = nil
		w.mu.Unlock()
	}()

	summary, err := w.processFn(assignment)

	report := cluster.ReportRequest{WorkerID: w.cfg.ID}
	if err != nil {
		report.Error = err.Error()
		log.Error().
			Err(err).
			Str("file", assignment.FilePath).
			Int64("start_offset", assignment.StartOffset).
			Msg("chunk processing failed")
	} else {
		report.Summary = summary
		log.Info().
			Str("file", assignment.FilePath).
			Int64("start_offset", assignment.StartOffset).
			Int64("size", assignment.Size).
			Int64("requests", summary.RequestCount).
			Msg("chunk processed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := w.reportFn(ctx, report); err != nil {
		log.Error().Err(err).Msg("failed to deliver chunk report")
	}
}

// handleHealth answers liveness probes from the coordinator or an
// operator.
func (w *Worker) handleHealth(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(struct {
		ID   string `json:"id"`
		Busy bool   `json:"busy"`
	}{ID: w.cfg.ID, Busy: w.Busy()})
}

// register announces the worker to the coordinator, retrying to ride
// out coordinator startup delays. A worker cannot operate without a
// registration, so persistent failure is returned to the caller as a
// fatal condition.
func (w *Worker) register(ctx context.Context) error {
	body := cluster.RegisterRequest{
		Worker: cluster.WorkerInfo{ID: w.cfg.ID, Addr: w.cfg.PublicAddr},
	}
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 10
	return retry.Do(ctx, cfg, func() error {
		return cluster.PostJSON(ctx, w.cfg.CoordinatorAddr+"/register", body, nil)
	})
}

// heartbeatLoop sends a heartbeat every HeartbeatInterval until the
// context is cancelled. A heartbeat the coordinator refuses with 404
// means this worker was declared failed and forgotten; the loop
// re-registers to rejoin the pool.
func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()

	body := cluster.HeartbeatRequest{WorkerID: w.cfg.ID}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := cluster.PostJSON(ctx, w.cfg.CoordinatorAddr+"/heartbeat", body, nil)
			if err == nil {
				continue
			}
			log.Warn().Err(err).Msg("heartbeat failed")
			if isNotFound(err) {
				log.Info().Msg("coordinator no longer knows this worker, re-registering")
				if rerr := w.register(ctx); rerr != nil {
					log.Error().Err(rerr).Msg("re-registration failed")
				}
			}
		}
	}
}

// isNotFound matches the error PostJSON produces for a 404 response.
func isNotFound(err error) bool {
	return err != nil && strings.HasSuffix(err.Error(), ": 404")
}
