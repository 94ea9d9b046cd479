package history

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/logmill/internal/cluster"
	"github.com/dreamware/logmill/internal/coordinator"
)

// ErrRunNotFound is returned when a run ID doesn't exist in the store
var ErrRunNotFound = errors.New("run not found")

// Run records one completed distribution: which file was processed,
// when, and how it went.
type Run struct {
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	ID         string             `json:"id"`
	FilePath   string             `json:"file_path"`
	Result     coordinator.Result `json:"result"`
}

// Store defines the interface for run-history storage
// All implementations must be thread-safe for concurrent access
type Store interface {
	// Record stores a completed run
	// Overwrites any existing run with the same ID
	Record(run Run) error

	// Get retrieves a run by ID
	// Returns ErrRunNotFound if the ID doesn't exist
	Get(id string) (Run, error)

	// List returns all recorded runs, newest first
	List() []Run

	// Stats returns history statistics
	Stats() Stats
}

// Stats summarizes the recorded runs
type Stats struct {
	Runs         int `json:"runs"`
	Degraded     int `json:"degraded"`
	ChunksMerged int `json:"chunks_merged"`
}

// MemoryStore implements Store with in-memory storage
// Uses sync.RWMutex for thread-safe concurrent access
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]Run
}

// NewMemoryStore creates a new in-memory run-history store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]Run),
	}
}

// Record stores a completed run
// Makes a copy of the run to prevent external modification
func (m *MemoryStore) Record(run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[run.ID] = copyRun(run)
	return nil
}

// Get retrieves a run by ID
// Returns a copy to prevent external modification
func (m *MemoryStore) Get(id string) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, exists := m.runs[id]
	if !exists {
		return Run{}, ErrRunNotFound
	}
	return copyRun(run), nil
}

// List returns all recorded runs ordered newest first
func (m *MemoryStore) List() []Run {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Run, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, copyRun(run))
	}
	slices.SortFunc(out, func(a, b Run) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return out
}

// Stats returns history statistics
func (m *MemoryStore) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{Runs: len(m.runs)}
	for _, run := range m.runs {
		if run.Result.Degraded {
			stats.Degraded++
		}
		stats.ChunksMerged += run.Result.ChunksMerged
	}
	return stats
}

// copyRun deep-copies a run so stored and returned values never alias
// caller memory through the unrecoverable-chunk slice.
func copyRun(run Run) Run {
	out := run
	if run.Result.Unrecoverable != nil {
		out.Result.Unrecoverable = make([]cluster.ChunkAssignment, len(run.Result.Unrecoverable))
		copy(out.Result.Unrecoverable, run.Result.Unrecoverable)
	}
	return out
}
