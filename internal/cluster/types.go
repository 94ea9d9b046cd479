package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SecondBucketLayout is the wire format for per-second aggregation keys.
// Entry timestamps are truncated to whole seconds and rendered in this
// layout before they cross process boundaries, so coordinator and worker
// always agree on bucket identity.
const SecondBucketLayout = "2006-01-02 15:04:05"

// WorkerInfo identifies one worker process to the coordinator.
type WorkerInfo struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

// RegisterRequest is the body of POST /register. Registration is an
// idempotent upsert: re-registering an existing worker refreshes its
// address and returns it to the healthy pool.
type RegisterRequest struct {
	Worker WorkerInfo `json:"worker"`
}

// HeartbeatRequest is the body of POST /heartbeat, sent periodically by
// each worker to prove liveness.
type HeartbeatRequest struct {
	WorkerID string `json:"worker_id"`
}

// ChunkAssignment is one unit of work: a contiguous byte range of a log
// file on the shared filesystem. Offsets are not required to fall on line
// boundaries; the parser absorbs the resulting partial fragments.
type ChunkAssignment struct {
	FilePath    string `json:"file_path"`
	StartOffset int64  `json:"start_offset"`
	Size        int64  `json:"size"`
}

// DispatchRequest is the body of POST /process, coordinator to worker.
// At most one assignment is outstanding per worker at any time.
type DispatchRequest struct {
	Assignment ChunkAssignment `json:"assignment"`
}

// ChunkSummary is the result of processing one ChunkAssignment.
//
// Invariants maintained by the chunk processor:
//   - ErrorCount <= RequestCount
//   - the values of RequestCountPerSecond sum to RequestCount
//
// Summaries are pure additive facts: merging any set of them is
// commutative and associative, which is what lets the coordinator fold
// them into running totals in whatever order workers report.
type ChunkSummary struct {
	RequestCount          int64            `json:"request_count"`
	ErrorCount            int64            `json:"error_count"`
	TotalResponseTime     float64          `json:"total_response_time"`
	RequestCountPerSecond map[string]int64 `json:"request_count_per_second"`
}

// ReportRequest is the body of POST /report, worker to coordinator.
// Exactly one of Summary or Error is set: a nil Summary with a non-empty
// Error means chunk processing failed worker-side and the coordinator
// should treat the assignment like any other worker failure.
type ReportRequest struct {
	WorkerID string        `json:"worker_id"`
	Summary  *ChunkSummary `json:"summary,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// MetricsSnapshot is the flat shape served by GET /metrics.
type MetricsSnapshot struct {
	TotalRequests         int64            `json:"total_requests"`
	TotalErrors           int64            `json:"total_errors"`
	ErrorRate             float64          `json:"error_rate"`
	AvgResponseTime       float64          `json:"avg_response_time"`
	RequestCountPerSecond map[string]int64 `json:"request_count_per_second"`
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

// PostJSON marshals body, POSTs it to url, and decodes the response into
// out when out is non-nil. Any status >= 300 is an error.
func PostJSON(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetJSON GETs url and decodes the JSON response into out.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
