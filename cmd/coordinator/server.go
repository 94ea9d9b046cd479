package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dreamware/logmill/internal/cluster"
	"github.com/dreamware/logmill/internal/coordinator"
	"github.com/dreamware/logmill/internal/history"
	"github.com/dreamware/logmill/internal/metrics"
)

// server holds the coordinator's HTTP surface over the control-plane
// components. Handlers validate and translate; all coordination logic
// lives in internal/coordinator.
type server struct {
	registry *coordinator.WorkerRegistry
	agg      *metrics.Aggregator
	dist     *coordinator.Distributor
	runs     history.Store
}

func newServer(registry *coordinator.WorkerRegistry, agg *metrics.Aggregator, dist *coordinator.Distributor, runs history.Store) *server {
	return &server{
		registry: registry,
		agg:      agg,
		dist:     dist,
		runs:     runs,
	}
}

// handleRegister upserts a worker. Idempotent: re-registration refreshes
// the address and returns a FAILED worker to the healthy pool.
func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Worker.ID == "" || req.Worker.Addr == "" {
		http.Error(w, "missing id/addr", http.StatusBadRequest)
		return
	}

	s.registry.Register(req.Worker.ID, req.Worker.Addr)
	log.Info().
		Str("worker_id", req.Worker.ID).
		Str("addr", req.Worker.Addr).
		Msg("worker registered")
	w.WriteHeader(http.StatusNoContent)
}

// handleHeartbeat records a liveness signal from a registered worker.
// Unknown and FAILED workers both get 404: neither is in the pool, and
// the worker's response to 404 is to re-register.
func (s *server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.WorkerID == "" {
		http.Error(w, "missing worker_id", http.StatusBadRequest)
		return
	}

	if err := s.registry.Heartbeat(req.WorkerID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReport accepts a worker's chunk result. The distributor decides
// whether it matches a pending assignment; late and duplicate reports
// are acknowledged and dropped, so the response is 204 either way.
func (s *server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.WorkerID == "" {
		http.Error(w, "missing worker_id", http.StatusBadRequest)
		return
	}
	if req.Summary == nil && req.Error == "" {
		http.Error(w, "report carries neither summary nor error", http.StatusBadRequest)
		return
	}

	s.dist.Report(req.WorkerID, req.Summary, req.Error)
	w.WriteHeader(http.StatusNoContent)
}

// handleMetrics serves the running aggregate. Always answers with the
// best-available numbers, including under partial worker failure.
func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.agg.Snapshot())
}

// workerStatus is the /workers wire shape for one registry record.
type workerStatus struct {
	LastHeartbeat time.Time                `json:"last_heartbeat"`
	Assignment    *cluster.ChunkAssignment `json:"assignment,omitempty"`
	ID            string                   `json:"id"`
	Addr          string                   `json:"addr"`
	State         string                   `json:"state"`
}

// handleWorkers serves a snapshot of the registry.
func (s *server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records := s.registry.Snapshot()
	out := make([]workerStatus, 0, len(records))
	for _, rec := range records {
		out = append(out, workerStatus{
			ID:            rec.ID,
			Addr:          rec.Addr,
			State:         string(rec.State),
			LastHeartbeat: rec.LastHeartbeat,
			Assignment:    rec.Assignment,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Workers []workerStatus `json:"workers"`
	}{Workers: out})
}

// distributeRequest is the operator-facing body of POST /distribute.
type distributeRequest struct {
	FilePath string `json:"file_path"`
}

// handleDistribute runs one distribution to completion and returns its
// result. An empty healthy pool is 503; a degraded completion is still
// 200 with the unrecoverable chunks listed.
func (s *server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req distributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.FilePath == "" {
		http.Error(w, "missing file_path", http.StatusBadRequest)
		return
	}

	started := time.Now()
	result, err := s.dist.Distribute(r.Context(), req.FilePath)
	switch {
	case errors.Is(err, coordinator.ErrNoAvailableWorkers):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case errors.Is(err, os.ErrNotExist):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	run := history.Run{
		ID:         uuid.New().String(),
		FilePath:   req.FilePath,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Result:     *result,
	}
	if err := s.runs.Record(run); err != nil {
		log.Error().Err(err).Str("run_id", run.ID).Msg("failed to record run")
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		RunID string `json:"run_id"`
		coordinator.Result
	}{RunID: run.ID, Result: *result})
}

// handleRuns serves the distribution history: the full list on
// GET /runs, a single run on GET /runs/{id}.
func (s *server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/runs"), "/")
	w.Header().Set("Content-Type", "application/json")

	if id == "" {
		_ = json.NewEncoder(w).Encode(struct {
			Runs  []history.Run `json:"runs"`
			Stats history.Stats `json:"stats"`
		}{Runs: s.runs.List(), Stats: s.runs.Stats()})
		return
	}

	run, err := s.runs.Get(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(run)
}
