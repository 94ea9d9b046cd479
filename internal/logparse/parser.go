// Package logparse converts raw log lines into structured entries.
//
// The expected line format is fixed:
//
//	2024-01-24 10:15:32.123 INFO Request processed in 127ms
//	└── date ──┘└── time ──┘└lvl┘└──────── message ────────┘
//
// A line that cannot be split into at least four whitespace-delimited
// fields, or whose timestamp does not parse, is malformed. Malformed is a
// recoverable outcome, not a failure: chunk processing feeds arbitrary
// byte-range fragments through this parser and relies on malformed lines
// being skipped rather than aborting the chunk.
package logparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the fixed timestamp format of a log line, with
// millisecond precision.
const TimestampLayout = "2006-01-02 15:04:05.000"

// ErrMalformed marks a line that could not be parsed into an Entry.
// Callers test for it with errors.Is to distinguish "skip this line"
// from programming errors.
var ErrMalformed = errors.New("malformed log line")

// responseTimePattern extracts the integer immediately preceding a "ms"
// suffix, e.g. "processed in 127ms" yields 127.
var responseTimePattern = regexp.MustCompile(`(\d+)ms`)

// Entry is one parsed log line.
type Entry struct {
	Timestamp time.Time
	Level     string
	Message   string
	Metrics   map[string]float64
}

// Parse parses a single raw log line.
//
// The line is split into at most four parts on spaces: date, time, level
// and message. Fewer than four parts, or a timestamp that does not match
// TimestampLayout, returns an error wrapping ErrMalformed. A message whose
// "ms" metric cannot be extracted is still a valid entry: a malformed
// metric never invalidates an otherwise well-formed line, the entry just
// carries no response_time.
//
// Parse never panics; every failure path resolves to an ErrMalformed
// outcome observable by the caller.
func Parse(line string) (*Entry, error) {
	parts := strings.SplitN(line, " ", 4)
	if len(parts) < 4 {
		return nil, fmt.Errorf("%w: expected 4 fields, got %d", ErrMalformed, len(parts))
	}

	raw := parts[0] + " " + parts[1]
	ts, err := time.Parse(TimestampLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp %q", ErrMalformed, raw)
	}

	entry := &Entry{
		Timestamp: ts,
		Level:     parts[2],
		Message:   parts[3],
		Metrics:   make(map[string]float64),
	}

	// Best-effort metric extraction. The entry is valid with or without it.
	if strings.Contains(entry.Message, "ms") {
		if m := responseTimePattern.FindStringSubmatch(entry.Message); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				entry.Metrics["response_time"] = v
			}
		}
	}

	return entry, nil
}

// IsMalformed reports whether err is a malformed-line outcome from Parse.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}
