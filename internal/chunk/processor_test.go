package chunk

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/logmill/internal/cluster"
)

// writeLog writes content to a temp file and returns its path.
func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestProcessSingleLine verifies the canonical single-line summary:
// one INFO request with a 127ms response time.
func TestProcessSingleLine(t *testing.T) {
	line := "2024-01-24 10:15:32.123 INFO Request processed in 127ms\n"
	path := writeLog(t, line)

	summary, err := Process(cluster.ChunkAssignment{
		FilePath:    path,
		StartOffset: 0,
		Size:        int64(len(line)),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.RequestCount)
	assert.Equal(t, int64(0), summary.ErrorCount)
	assert.Equal(t, 127.0, summary.TotalResponseTime)
	assert.Equal(t, map[string]int64{"2024-01-24 10:15:32": 1}, summary.RequestCountPerSecond)
}

// TestProcessErrorAndMalformed verifies that one ERROR line plus one
// malformed line yields request_count=1, error_count=1: the malformed
// line is excluded from every count.
func TestProcessErrorAndMalformed(t *testing.T) {
	content := "2024-01-24 10:15:33.500 ERROR upstream timeout after 3000ms\n" +
		"this line is not a log line\n"
	path := writeLog(t, content)

	summary, err := Process(cluster.ChunkAssignment{
		FilePath:    path,
		StartOffset: 0,
		Size:        int64(len(content)),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.RequestCount)
	assert.Equal(t, int64(1), summary.ErrorCount)
	assert.Equal(t, 3000.0, summary.TotalResponseTime)
}

// TestProcessPerSecondBuckets verifies entries are bucketed by truncating
// timestamps to whole seconds and that bucket counts sum to RequestCount.
func TestProcessPerSecondBuckets(t *testing.T) {
	content := strings.Join([]string{
		"2024-01-24 10:15:32.100 INFO a processed in 10ms",
		"2024-01-24 10:15:32.900 INFO b processed in 20ms",
		"2024-01-24 10:15:33.001 INFO c processed in 30ms",
	}, "\n") + "\n"
	path := writeLog(t, content)

	summary, err := Process(cluster.ChunkAssignment{
		FilePath:    path,
		StartOffset: 0,
		Size:        int64(len(content)),
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{
		"2024-01-24 10:15:32": 2,
		"2024-01-24 10:15:33": 1,
	}, summary.RequestCountPerSecond)

	var total int64
	for _, n := range summary.RequestCountPerSecond {
		total += n
	}
	assert.Equal(t, summary.RequestCount, total)
}

// TestProcessUnalignedOffsets verifies that a chunk starting mid-line
// drops the leading fragment as malformed while full lines inside the
// range still count. This is inherited imprecision: a line split across
// two chunks is never reconciled, only absorbed.
func TestProcessUnalignedOffsets(t *testing.T) {
	first := "2024-01-24 10:15:32.123 INFO first processed in 11ms\n"
	second := "2024-01-24 10:15:33.456 INFO second processed in 22ms\n"
	path := writeLog(t, first+second)

	// Start 10 bytes into the first line and run to EOF.
	summary, err := Process(cluster.ChunkAssignment{
		FilePath:    path,
		StartOffset: 10,
		Size:        int64(len(first) + len(second)),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.RequestCount, "only the intact second line counts")
	assert.Equal(t, 22.0, summary.TotalResponseTime)
}

// TestProcessShortReadAtEOF verifies that a size extending past EOF is a
// short read, not an error.
func TestProcessShortReadAtEOF(t *testing.T) {
	line := "2024-01-24 10:15:32.123 INFO solo processed in 5ms\n"
	path := writeLog(t, line)

	summary, err := Process(cluster.ChunkAssignment{
		FilePath:    path,
		StartOffset: 0,
		Size:        int64(len(line)) + 4096,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.RequestCount)
}

// TestProcessEmptyChunk verifies a readable range with no parseable lines
// is ProcessedEmpty: zero counts, nil error.
func TestProcessEmptyChunk(t *testing.T) {
	path := writeLog(t, "\n\n\n")

	summary, err := Process(cluster.ChunkAssignment{
		FilePath:    path,
		StartOffset: 0,
		Size:        3,
	})
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.Equal(t, int64(0), summary.RequestCount)
	assert.Equal(t, int64(0), summary.ErrorCount)
	assert.Empty(t, summary.RequestCountPerSecond)
}

// TestProcessMissingFile verifies an unreadable file is ProcessingFailed:
// nil summary and a non-nil error, distinguishable from an empty chunk.
func TestProcessMissingFile(t *testing.T) {
	summary, err := Process(cluster.ChunkAssignment{
		FilePath:    filepath.Join(t.TempDir(), "does-not-exist.log"),
		StartOffset: 0,
		Size:        100,
	})

	assert.Nil(t, summary)
	assert.Error(t, err)
}

// TestProcessCarriageReturns verifies CRLF line endings parse cleanly.
func TestProcessCarriageReturns(t *testing.T) {
	content := "2024-01-24 10:15:32.123 INFO windows line processed in 8ms\r\n"
	path := writeLog(t, content)

	summary, err := Process(cluster.ChunkAssignment{
		FilePath:    path,
		StartOffset: 0,
		Size:        int64(len(content)),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.RequestCount)
	assert.Equal(t, 8.0, summary.TotalResponseTime)
}
