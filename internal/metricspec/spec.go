// Package metricspec describes the ordered marker event names a cycle is
// matched against, and the metrics derived from them for each mode.
package metricspec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mrzor/cycletrace/internal/event"
)

var (
	// ErrTooFewNames is returned when a mode's minimum name count is not met.
	ErrTooFewNames = errors.New("too few event names")
	// ErrDuplicateName is returned when the same marker appears twice.
	ErrDuplicateName = errors.New("duplicate event name")
	// ErrUnknownMode is returned by ParseMode for unrecognised modes.
	ErrUnknownMode = errors.New("unknown mode")
)

// Mode selects how cycles are reconstructed from marker events.
type Mode int

const (
	// Count tallies interior markers between a begin and an end edge.
	Count Mode = iota + 1
	// Latency measures elapsed time between consecutive markers.
	Latency
	// Timeslot counts markers per fixed-width time slot.
	Timeslot
)

// TotalMetric is the name of the first-to-last latency metric.
const TotalMetric = "total"

func (m Mode) String() string {
	switch m {
	case Count:
		return "count"
	case Latency:
		return "latency"
	case Timeslot:
		return "timeslot"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// MinNames is the minimum number of event names the mode accepts.
func (m Mode) MinNames() int {
	switch m {
	case Count:
		return 3
	case Latency:
		return 2
	default:
		return 1
	}
}

// ParseMode parses a mode name ("count", "latency" or "timeslot").
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "count", "count-between", "count_between":
		return Count, nil
	case "latency":
		return Latency, nil
	case "timeslot":
		return Timeslot, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Spec is a validated, immutable metric specification.
type Spec struct {
	mode    Mode
	names   []string
	index   map[string]int // canonical name -> position
	metrics []string
}

// New validates names for mode and builds a Spec.
func New(mode Mode, names []string) (*Spec, error) {
	if mode < Count || mode > Timeslot {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(mode))
	}
	if len(names) < mode.MinNames() {
		return nil, fmt.Errorf("%w: %s mode needs at least %d, got %d",
			ErrTooFewNames, mode, mode.MinNames(), len(names))
	}

	s := &Spec{
		mode:  mode,
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
	}
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("event name %d is empty", i)
		}
		key := event.CanonicalName(name)
		if _, dup := s.index[key]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
		s.index[key] = i
		s.names[i] = name
	}
	s.metrics = deriveMetrics(mode, s.names)

	return s, nil
}

func deriveMetrics(mode Mode, names []string) []string {
	switch mode {
	case Count:
		return append([]string(nil), names[1:len(names)-1]...)
	case Latency:
		metrics := make([]string, 0, len(names))
		for i := 0; i < len(names)-1; i++ {
			metrics = append(metrics, names[i]+" -> "+names[i+1])
		}
		return append(metrics, TotalMetric)
	default:
		return append([]string(nil), names...)
	}
}

// Mode returns the cycle mode.
func (s *Spec) Mode() Mode { return s.mode }

// Names returns the configured marker names in order.
func (s *Spec) Names() []string { return append([]string(nil), s.names...) }

// Len is the number of configured marker names.
func (s *Spec) Len() int { return len(s.names) }

// Metrics returns the ordered metric names produced by the mode.
func (s *Spec) Metrics() []string { return append([]string(nil), s.metrics...) }

// Index returns the position of an event name, accepting both the
// "subsystem:event" and "subsystem__event" spellings.
func (s *Spec) Index(name string) (int, bool) {
	i, ok := s.index[event.CanonicalName(name)]
	return i, ok
}
