package logparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseWellFormedLine verifies that a line matching the fixed format
// recovers timestamp, level and message exactly, including the extracted
// response_time metric.
func TestParseWellFormedLine(t *testing.T) {
	entry, err := Parse("2024-01-24 10:15:32.123 INFO Request processed in 127ms")
	require.NoError(t, err)
	require.NotNil(t, entry)

	expected := time.Date(2024, 1, 24, 10, 15, 32, 123_000_000, time.UTC)
	assert.True(t, entry.Timestamp.Equal(expected), "timestamp mismatch: %v", entry.Timestamp)
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "Request processed in 127ms", entry.Message)
	assert.Equal(t, 127.0, entry.Metrics["response_time"])
}

// TestParseErrorLevel verifies level is preserved verbatim; classification
// of ERROR lines is an exact, case-sensitive match downstream.
func TestParseErrorLevel(t *testing.T) {
	entry, err := Parse("2024-01-24 10:15:33.000 ERROR Database connection failed after 3000ms")
	require.NoError(t, err)

	assert.Equal(t, "ERROR", entry.Level)
	assert.Equal(t, 3000.0, entry.Metrics["response_time"])
}

// TestParseTooFewFields verifies that lines with fewer than four
// whitespace-delimited fields are malformed.
func TestParseTooFewFields(t *testing.T) {
	lines := []string{
		"",
		"garbage",
		"2024-01-24 10:15:32.123",
		"2024-01-24 10:15:32.123 INFO",
	}

	for _, line := range lines {
		entry, err := Parse(line)
		assert.Nil(t, entry, "line %q should not produce an entry", line)
		assert.True(t, IsMalformed(err), "line %q should be malformed, got %v", line, err)
	}
}

// TestParseBadTimestamp verifies that a line whose first two fields do not
// form a valid timestamp is malformed even when it has four fields.
func TestParseBadTimestamp(t *testing.T) {
	lines := []string{
		"not-a-date 10:15:32.123 INFO some message",
		"2024-01-24 25:99:99.999 INFO some message",
		"2024-01-24 10:15:32 INFO missing fractional seconds",
		"ocessed in 41ms 2024-01-24 chunk boundary fragment",
	}

	for _, line := range lines {
		entry, err := Parse(line)
		assert.Nil(t, entry, "line %q should not produce an entry", line)
		assert.True(t, IsMalformed(err), "line %q should be malformed, got %v", line, err)
	}
}

// TestParseMetricFailureTolerated verifies that a message containing "ms"
// without an extractable integer still yields a valid entry: a malformed
// metric never invalidates the line.
func TestParseMetricFailureTolerated(t *testing.T) {
	entry, err := Parse("2024-01-24 10:15:32.123 INFO msg with ms but no number")
	require.NoError(t, err)
	require.NotNil(t, entry)

	_, ok := entry.Metrics["response_time"]
	assert.False(t, ok, "no response_time should be extracted")
	assert.Equal(t, "msg with ms but no number", entry.Message)
}

// TestParseNoMetricSubstring verifies no metric extraction is attempted
// when the message does not mention "ms" at all.
func TestParseNoMetricSubstring(t *testing.T) {
	entry, err := Parse("2024-01-24 10:15:32.123 WARN cache miss for key user:42")
	require.NoError(t, err)
	assert.Empty(t, entry.Metrics)
}

// TestParseNeverPanics feeds hostile fragments through the parser, the
// kind produced by splitting a chunk at arbitrary byte offsets.
func TestParseNeverPanics(t *testing.T) {
	lines := []string{
		"\x00\x01\x02 \xff binary garbage here",
		"    ",
		"ms ms ms ms",
		"2024-01-24 10:15:32.123 INFO \xf0 partial utf8",
	}

	for _, line := range lines {
		assert.NotPanics(t, func() {
			Parse(line) //nolint:errcheck
		}, "line %q", line)
	}
}
