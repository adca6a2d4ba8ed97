package event

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrEmptyName is returned when an event is constructed without a name.
var ErrEmptyName = errors.New("event name is empty")

// Source identifies an independent event sequence (normally a CPU number).
type Source int

// All is the synthetic source standing for the merge of every real source.
const All Source = -1

// String returns the source number, or "all" for the synthetic source.
func (s Source) String() string {
	if s == All {
		return "all"
	}
	return strconv.Itoa(int(s))
}

// Event is a single observed trace occurrence. Fields are read-only once
// constructed; callers pass Event by value.
type Event struct {
	Name      string
	Context   any
	Source    Source
	Timestamp uint64 // nanoseconds
	Pid       int32
	Comm      string
}

// ErrInvalidSource is matched by errors for events on a negative source.
// All is a query key only and never a valid event source.
var ErrInvalidSource = errors.New("invalid source")

// Validate reports whether ev can be ingested.
func (ev Event) Validate() error {
	if ev.Name == "" {
		return ErrEmptyName
	}
	if ev.Source < 0 {
		return fmt.Errorf("event %q: %w %d", ev.Name, ErrInvalidSource, ev.Source)
	}
	return nil
}

// New validates and builds an Event.
func New(name string, ctx any, source Source, timestamp uint64, pid int32, comm string) (Event, error) {
	ev := Event{
		Name:      name,
		Context:   ctx,
		Source:    source,
		Timestamp: timestamp,
		Pid:       pid,
		Comm:      comm,
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// CanonicalName maps a perf-style "subsystem:event" name to the form used by
// trace scripts ("subsystem__event"). Names without ':' are returned as-is.
func CanonicalName(name string) string {
	return strings.ReplaceAll(name, ":", "__")
}
