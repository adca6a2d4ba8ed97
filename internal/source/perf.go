package source

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/mrzor/cycletrace/internal/event"
)

// perfLine matches the default `perf script` layout:
//
//	COMM PID[/TID] [CPU] SECS.FRAC: [PERIOD] EVENT: ARGS
//
// COMM may contain spaces, so it is matched lazily up to the PID column.
var perfLine = regexp.MustCompile(
	`^\s*(.*?)\s+(\d+)(?:/\d+)?\s+\[(\d+)\]\s+(?:\S+\s+)?(\d+)\.(\d+):\s+(?:\d+\s+)?(\S+?):(?:\s+(.*))?$`)

// NewPerfText returns a Reader over `perf script` text output.
func NewPerfText(r io.Reader, opts ...Option) *Reader {
	return newReader(r, "perf", func(line []byte) (event.Event, error) {
		return ParsePerfLine(string(line))
	}, opts...)
}

// ParsePerfLine parses one `perf script` line. The event context is the
// raw argument string.
func ParsePerfLine(line string) (event.Event, error) {
	m := perfLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
	if m == nil {
		return event.Event{}, fmt.Errorf("not a perf script line: %q", line)
	}

	pid, err := strconv.ParseInt(m[2], 10, 32)
	if err != nil {
		return event.Event{}, fmt.Errorf("invalid pid %q: %w", m[2], err)
	}
	cpu, err := strconv.Atoi(m[3])
	if err != nil {
		return event.Event{}, fmt.Errorf("invalid cpu %q: %w", m[3], err)
	}
	ts, err := perfTimestamp(m[4], m[5])
	if err != nil {
		return event.Event{}, err
	}

	return event.New(m[6], m[7], event.Source(cpu), ts, int32(pid), m[1])
}

// perfTimestamp converts "SECS" and a fractional part of up to nine digits
// to nanoseconds.
func perfTimestamp(secs, frac string) (uint64, error) {
	s, err := strconv.ParseUint(secs, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp seconds %q: %w", secs, err)
	}
	if len(frac) > 9 {
		frac = frac[:9]
	}
	f, err := strconv.ParseUint(frac+strings.Repeat("0", 9-len(frac)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp fraction %q: %w", frac, err)
	}
	return s*1_000_000_000 + f, nil
}
