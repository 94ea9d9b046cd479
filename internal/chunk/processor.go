// Package chunk implements the worker side of Logmill's work unit: reading
// a byte range of a log file and reducing it to a ChunkSummary.
//
// A chunk is processed whole or not at all. There is no mid-chunk
// cancellation; either a full summary comes back, or the read fails and
// the coordinator redispatches the same byte range to another worker.
package chunk

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dreamware/logmill/internal/cluster"
	"github.com/dreamware/logmill/internal/logparse"
)

// Process reads the byte range described by the assignment and reduces it
// to a ChunkSummary.
//
// Reading fewer than Size bytes because end-of-file arrives first is not
// an error. The buffer is split on newlines and every fragment, including
// the partial first and last fragments produced when offsets do not fall
// on line boundaries, is attempted through the parser; fragments that
// fail parse as malformed are excluded from the counts and nothing else.
//
// The two failure-shaped outcomes are distinct:
//   - an unreadable file or offset returns (nil, error): the chunk failed
//     and the coordinator must be able to see that and reassign it
//   - a readable chunk with zero parseable lines returns a zero-count
//     summary and a nil error: the chunk legitimately contained nothing
func Process(assignment cluster.ChunkAssignment) (*cluster.ChunkSummary, error) {
	f, err := os.Open(assignment.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open chunk source: %w", err)
	}
	defer f.Close()

	section := io.NewSectionReader(f, assignment.StartOffset, assignment.Size)
	buf, err := io.ReadAll(section)
	if err != nil {
		return nil, fmt.Errorf("read chunk [%d,%d): %w",
			assignment.StartOffset, assignment.StartOffset+assignment.Size, err)
	}

	summary := &cluster.ChunkSummary{
		RequestCountPerSecond: make(map[string]int64),
	}

	malformed := 0
	for _, raw := range bytes.Split(buf, []byte("\n")) {
		if len(raw) == 0 {
			continue
		}
		entry, err := logparse.Parse(string(bytes.TrimSuffix(raw, []byte("\r"))))
		if err != nil {
			// Partial boundary fragments land here too; the parser
			// absorbs them so the processor needs no boundary logic.
			malformed++
			continue
		}

		summary.RequestCount++
		if entry.Level == "ERROR" {
			summary.ErrorCount++
		}
		if rt, ok := entry.Metrics["response_time"]; ok {
			summary.TotalResponseTime += rt
		}
		bucket := entry.Timestamp.Truncate(time.Second).Format(cluster.SecondBucketLayout)
		summary.RequestCountPerSecond[bucket]++
	}

	log.Debug().
		Str("file", assignment.FilePath).
		Int64("start", assignment.StartOffset).
		Int64("size", assignment.Size).
		Int64("requests", summary.RequestCount).
		Int64("errors", summary.ErrorCount).
		Int("malformed", malformed).
		Msg("chunk processed")

	return summary, nil
}
